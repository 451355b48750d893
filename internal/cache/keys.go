package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/SuzumiyaAoba/ees-sub005/pkg/types"
)

// Keys follow {namespace}:{model}:{discriminator}. Free-form inputs (URIs,
// query text) are hashed so keys stay bounded and separator-safe; fixed
// inputs stay literal so keys are readable in stats and logs.

// EmbeddingKey identifies the stored embedding for (model, uri).
func EmbeddingKey(modelName, uri string) string {
	return fmt.Sprintf("%s:%s:%s", NamespaceEmbedding, modelName, hashHex(uri))
}

// SearchKey identifies a search result set. Every knob that changes the
// result participates: query text, metric, limit, and threshold. The query
// is trimmed and lower-cased first so trivial variants share an entry.
func SearchKey(modelName, query string, metric types.Metric, limit int, threshold float64) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	discriminator := fmt.Sprintf("%s|%s|%d|%g", normalized, metric, limit, threshold)
	return fmt.Sprintf("%s:%s:%s", NamespaceSearch, modelName, hashHex(discriminator))
}

// ModelsKey identifies a provider's model list.
func ModelsKey(providerName string) string {
	return fmt.Sprintf("%s:%s:all", NamespaceModels, providerName)
}

// ProviderStatusKey identifies a provider's availability probe result.
func ProviderStatusKey(providerName string) string {
	return fmt.Sprintf("%s:%s:status", NamespaceProviderStatus, providerName)
}

func hashHex(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
