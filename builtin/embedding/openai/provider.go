// Package openai implements EmbeddingProvider for the OpenAI API and
// OpenAI-compatible backends.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/SuzumiyaAoba/ees-sub005/pkg/provider"
	"github.com/SuzumiyaAoba/ees-sub005/pkg/types"
)

// DefaultModel is used when the configuration names none.
const DefaultModel = "text-embedding-3-small"

// Embedding dimensions for known models
var modelDimensions = map[string]int{
	"text-embedding-ada-002": 1536,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
}

// Model context windows (max tokens) for known models
var modelMaxTokens = map[string]int{
	"text-embedding-ada-002": 8191,
	"text-embedding-3-small": 8191,
	"text-embedding-3-large": 8191,
}

// Price per input token in USD, from the published price sheet.
var modelPrices = map[string]float64{
	"text-embedding-ada-002": 0.0000001,
	"text-embedding-3-small": 0.00000002,
	"text-embedding-3-large": 0.00000013,
}

// OpenAI embedding models handle a wide language range; the list covers the
// majors for compatibility scoring.
var modelLanguages = []string{"en", "de", "fr", "es", "ja", "zh"}

// Provider implements the EmbeddingProvider interface for OpenAI.
type Provider struct {
	client       *openai.Client
	defaultModel string
	hasKey       bool
	customBase   bool
}

var _ provider.EmbeddingProvider = (*Provider)(nil)

// New creates a new OpenAI embedding provider. An empty APIKey falls back to
// the OPENAI_API_KEY environment variable; a custom BaseURL points the
// client at any OpenAI-compatible backend.
func New(cfg provider.Config) (*Provider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.EffectiveTimeout()}

	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = DefaultModel
	}

	return &Provider{
		client:       openai.NewClientWithConfig(clientConfig),
		defaultModel: defaultModel,
		hasKey:       apiKey != "",
		customBase:   cfg.BaseURL != "",
	}, nil
}

// Name returns "openai".
func (p *Provider) Name() string {
	return "openai"
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

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, classifyError(model, err)
	}
	if len(resp.Data) == 0 {
		return nil, types.NewModelError("openai", model, "backend returned no embedding data")
	}

	// The wire format is float32; widening to float64 is lossless.
	raw := resp.Data[0].Embedding
	vec := make([]float64, len(raw))
	for i, v := range raw {
		vec[i] = float64(v)
	}
	return vec, nil
}

// ListModels asks the backend for its model list and keeps the embedding
// models, enriched from the static tables. When the backend cannot be
// reached the static catalog is returned instead of an error.
func (p *Provider) ListModels(ctx context.Context) ([]types.ModelDescriptor, error) {
	resp, err := p.client.ListModels(ctx)
	if err != nil {
		return p.catalog(), nil
	}

	var models []types.ModelDescriptor
	for _, m := range resp.Models {
		if !isEmbeddingModel(m.ID) {
			continue
		}
		desc := p.describe(m.ID)
		desc.Available = true
		models = append(models, desc)
	}
	if len(models) == 0 {
		// Compatible backends often serve embeddings without listing them
		return p.catalog(), nil
	}
	return models, nil
}

// IsModelAvailable reports whether the backend lists the model.
func (p *Provider) IsModelAvailable(ctx context.Context, model string) bool {
	resp, err := p.client.ListModels(ctx)
	if err != nil {
		return false
	}
	for _, m := range resp.Models {
		if m.ID == model {
			return true
		}
	}
	return false
}

// GetModelInfo returns the descriptor for a model, or (nil, nil) when the
// model is unknown to this provider.
func (p *Provider) GetModelInfo(ctx context.Context, model string) (*types.ModelDescriptor, error) {
	if _, ok := modelDimensions[model]; ok {
		desc := p.describe(model)
		desc.Available = p.IsModelAvailable(ctx, model)
		return &desc, nil
	}

	// Unknown to the static tables; trust the backend's listing for
	// compatible servers that expose their own embedding models.
	if isEmbeddingModel(model) && p.IsModelAvailable(ctx, model) {
		desc := p.describe(model)
		desc.Available = true
		return &desc, nil
	}
	return nil, nil
}

// Available checks that the backend is reachable and credentials work.
func (p *Provider) Available(ctx context.Context) error {
	// The real OpenAI API always needs a key; compatible local backends
	// usually run keyless.
	if !p.hasKey && !p.customBase {
		return types.NewAuthenticationError("openai", "", "no API key configured and OPENAI_API_KEY not set")
	}

	if _, err := p.client.ListModels(ctx); err != nil {
		return classifyError("", err)
	}
	return nil
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}

// catalog returns descriptors for the statically known models.
func (p *Provider) catalog() []types.ModelDescriptor {
	models := make([]types.ModelDescriptor, 0, len(modelDimensions))
	for name := range modelDimensions {
		models = append(models, p.describe(name))
	}
	return models
}

func (p *Provider) describe(model string) types.ModelDescriptor {
	desc := types.ModelDescriptor{
		Name:      model,
		Provider:  "openai",
		MaxTokens: 2048, // conservative default for unknown models
		Languages: modelLanguages,
	}
	if d, ok := modelDimensions[model]; ok {
		desc.Dimensions = d
	}
	if t, ok := modelMaxTokens[model]; ok {
		desc.MaxTokens = t
	}
	if price, ok := modelPrices[model]; ok {
		desc.PricePerToken = price
	}
	return desc
}

func isEmbeddingModel(id string) bool {
	lower := strings.ToLower(id)
	return strings.Contains(lower, "embedding") || strings.Contains(lower, "embed")
}

// classifyError maps go-openai errors to the provider error taxonomy.
func classifyError(model string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(model, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(model, reqErr.HTTPStatusCode, reqErr.Error())
	}
	return types.NewConnectionError("openai", model, err)
}

func classifyStatus(model string, status int, message string) *types.ProviderError {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.NewAuthenticationError("openai", model, message)
	case http.StatusTooManyRequests:
		return types.NewRateLimitError("openai", model, message)
	case http.StatusNotFound:
		return types.NewModelError("openai", model, fmt.Sprintf("model not found: %s", message))
	default:
		return types.NewModelError("openai", model, fmt.Sprintf("status %d: %s", status, message))
	}
}
