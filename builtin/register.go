// Package builtin wires the bundled embedding providers and stores into the
// default registry.
package builtin

import (
	ollamaEmbed "github.com/SuzumiyaAoba/ees-sub005/builtin/embedding/ollama"
	openaiEmbed "github.com/SuzumiyaAoba/ees-sub005/builtin/embedding/openai"
	sqliteStore "github.com/SuzumiyaAoba/ees-sub005/builtin/store/sqlite"
	"github.com/SuzumiyaAoba/ees-sub005/pkg/provider"
)

func init() {
	provider.RegisterEmbedding("ollama", func(cfg provider.Config) (provider.EmbeddingProvider, error) {
		return ollamaEmbed.New(cfg)
	})
	provider.RegisterEmbedding("openai", func(cfg provider.Config) (provider.EmbeddingProvider, error) {
		return openaiEmbed.New(cfg)
	})

	provider.RegisterStore("sqlite", func(path string) (provider.EmbeddingStore, error) {
		s := sqliteStore.New()
		if err := s.Init(path); err != nil {
			return nil, err
		}
		return s, nil
	})
}
