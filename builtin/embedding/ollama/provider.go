// Package ollama implements EmbeddingProvider against a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/SuzumiyaAoba/ees-sub005/pkg/provider"
	"github.com/SuzumiyaAoba/ees-sub005/pkg/types"
)

// Default values
const (
	DefaultModel    = "nomic-embed-text"
	DefaultEndpoint = "http://localhost:11434"
)

// knownModels is the static catalog served when the server cannot be asked.
// Dimensions and token windows follow the published model cards; local
// models are free, so the price stays zero. Availability is unconfirmed
// without a live tag list.
var knownModels = []types.ModelDescriptor{
	{Name: "nomic-embed-text", Provider: "ollama", Dimensions: 768, MaxTokens: 8192, Languages: []string{"en"}},
	{Name: "mxbai-embed-large", Provider: "ollama", Dimensions: 1024, MaxTokens: 512, Languages: []string{"en"}},
	{Name: "all-minilm", Provider: "ollama", Dimensions: 384, MaxTokens: 256, Languages: []string{"en"}},
	{Name: "snowflake-arctic-embed", Provider: "ollama", Dimensions: 1024, MaxTokens: 512, Languages: []string{"en"}},
	{Name: "bge-m3", Provider: "ollama", Dimensions: 1024, MaxTokens: 8192, Languages: []string{"en", "zh", "de", "fr", "ja"}},
}

// embeddingModelPatterns marks tag names that are embedding models rather
// than chat models.
var embeddingModelPatterns = []string{
	"nomic-embed", "mxbai-embed", "bge-", "e5-", "gte-",
	"all-minilm", "snowflake-arctic-embed", "embed",
}

// Provider implements the EmbeddingProvider interface for Ollama.
type Provider struct {
	baseURL      string
	defaultModel string
	client       *http.Client
}

var _ provider.EmbeddingProvider = (*Provider)(nil)

// New creates a new Ollama embedding provider.
func New(cfg provider.Config) (*Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultEndpoint
	}
	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = DefaultModel
	}

	return &Provider{
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: defaultModel,
		client: &http.Client{
			Timeout: cfg.EffectiveTimeout(),
		},
	}, nil
}

// Name returns "ollama".
func (p *Provider) Name() string {
	return "ollama"
}

// DefaultModel returns the configured default model.
func (p *Provider) DefaultModel() string {
	return p.defaultModel
}

// GenerateEmbedding embeds a single text with the given model.
func (p *Provider) GenerateEmbedding(ctx context.Context, text, model string) ([]float64, error) {
	if model == "" {
		model = p.defaultModel
	}

	reqBody := map[string]any{
		"model":  model,
		"prompt": text,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, types.NewConnectionError("ollama", model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("ollama", model, resp.StatusCode, readBody(resp.Body))
	}

	var result struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(result.Embedding) == 0 {
		// Ollama answers 200 with an empty vector for non-embedding models
		return nil, types.NewModelError("ollama", model, "model returned no embedding; not an embedding model?")
	}

	return result.Embedding, nil
}

// ListModels returns the embedding models the server has pulled, enriched
// from the static catalog. When the server cannot be reached the catalog
// itself is returned, so a model listing never fails outright.
func (p *Provider) ListModels(ctx context.Context) ([]types.ModelDescriptor, error) {
	tags, err := p.listTags(ctx)
	if err != nil {
		fallback := make([]types.ModelDescriptor, len(knownModels))
		copy(fallback, knownModels)
		return fallback, nil
	}

	var models []types.ModelDescriptor
	for _, tag := range tags {
		if !isEmbeddingModel(tag) {
			continue
		}
		desc := catalogLookup(tag)
		desc.Available = true
		models = append(models, desc)
	}
	return models, nil
}

// IsModelAvailable reports whether the server has the model pulled. Tag
// suffixes are ignored on both sides, so "nomic-embed-text" matches
// "nomic-embed-text:latest".
func (p *Provider) IsModelAvailable(ctx context.Context, model string) bool {
	tags, err := p.listTags(ctx)
	if err != nil {
		return false
	}

	want := stripTag(model)
	for _, tag := range tags {
		if stripTag(tag) == want {
			return true
		}
	}
	return false
}

// GetModelInfo returns the descriptor for a model, or (nil, nil) when the
// model is unknown to this provider.
func (p *Provider) GetModelInfo(ctx context.Context, model string) (*types.ModelDescriptor, error) {
	want := stripTag(model)

	tags, err := p.listTags(ctx)
	if err == nil {
		for _, tag := range tags {
			if stripTag(tag) == want {
				desc := catalogLookup(tag)
				desc.Available = true
				return &desc, nil
			}
		}
	}

	// Not pulled (or server unreachable): the static catalog still
	// describes known models so compatibility checks can proceed.
	for _, desc := range knownModels {
		if desc.Name == want {
			d := desc
			return &d, nil
		}
	}
	return nil, nil
}

// Available checks that the Ollama server responds.
func (p *Provider) Available(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/api/version", nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return types.NewConnectionError("ollama", "", fmt.Errorf("not reachable at %s: %w", p.baseURL, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyStatus("ollama", "", resp.StatusCode, readBody(resp.Body))
	}
	return nil
}

// Close releases resources.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// listTags fetches the raw model names from /api/tags.
func (p *Provider) listTags(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, types.NewConnectionError("ollama", "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("ollama", "", resp.StatusCode, readBody(resp.Body))
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode tag list: %w", err)
	}

	names := make([]string, 0, len(result.Models))
	for _, m := range result.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// stripTag removes an Ollama tag suffix: "nomic-embed-text:latest" becomes
// "nomic-embed-text".
func stripTag(model string) string {
	if i := strings.Index(model, ":"); i >= 0 {
		return model[:i]
	}
	return model
}

func isEmbeddingModel(name string) bool {
	lower := strings.ToLower(name)
	for _, pattern := range embeddingModelPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// catalogLookup builds a descriptor for a live tag, taking dimensions and
// token window from the static catalog when the base name is known.
func catalogLookup(tag string) types.ModelDescriptor {
	base := stripTag(tag)
	for _, known := range knownModels {
		if known.Name == base {
			desc := known
			return desc
		}
	}
	return types.ModelDescriptor{
		Name:      base,
		Provider:  "ollama",
		MaxTokens: 2048, // conservative default for unlisted models
	}
}

// classifyStatus maps an HTTP status to the provider error taxonomy.
func classifyStatus(providerName, model string, status int, body string) *types.ProviderError {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.NewAuthenticationError(providerName, model, fmt.Sprintf("status %d: %s", status, body))
	case http.StatusTooManyRequests:
		return types.NewRateLimitError(providerName, model, fmt.Sprintf("status %d: %s", status, body))
	case http.StatusNotFound:
		return types.NewModelError(providerName, model, fmt.Sprintf("model not found: %s", body))
	default:
		return types.NewModelError(providerName, model, fmt.Sprintf("status %d: %s", status, body))
	}
}

func readBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 4096))
	return strings.TrimSpace(string(body))
}
