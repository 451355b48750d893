package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/SuzumiyaAoba/ees-sub005/pkg/provider"
	"github.com/SuzumiyaAoba/ees-sub005/pkg/types"
)

func newTestProvider(t *testing.T, handler http.Handler) *Provider {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := New(provider.Config{
		Type:    types.ProviderOpenAI,
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func embeddingResponse(vec []float32) map[string]any {
	return map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"object": "embedding", "index": 0, "embedding": vec},
		},
		"model": "text-embedding-3-small",
		"usage": map[string]int{"prompt_tokens": 2, "total_tokens": 2},
	}
}

func modelsHandler(ids ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type model struct {
			ID      string `json:"id"`
			Object  string `json:"object"`
			OwnedBy string `json:"owned_by"`
		}
		models := make([]model, len(ids))
		for i, id := range ids {
			models[i] = model{ID: id, Object: "model", OwnedBy: "openai"}
		}
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": models})
	}
}

func errorHandler(status int, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": message, "type": "invalid_request_error"},
		})
	}
}

func TestGenerateEmbedding(t *testing.T) {
	var gotModel, gotAuth string
	var gotInput []string

	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		gotInput, gotModel = req.Input, req.Model
		json.NewEncoder(w).Encode(embeddingResponse([]float32{0.25, -0.5, 1.5}))
	})

	p := newTestProvider(t, mux)
	vec, err := p.GenerateEmbedding(context.Background(), "hello world", "text-embedding-3-small")
	if err != nil {
		t.Fatal(err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("authorization header = %q", gotAuth)
	}
	if gotModel != "text-embedding-3-small" {
		t.Errorf("request model = %q", gotModel)
	}
	if len(gotInput) != 1 || gotInput[0] != "hello world" {
		t.Errorf("request input = %v", gotInput)
	}

	// 0.25, -0.5 and 1.5 are exact in float32, so widening preserves them.
	want := []float64{0.25, -0.5, 1.5}
	if len(vec) != len(want) {
		t.Fatalf("got %d dimensions, want %d", len(vec), len(want))
	}
	for i := range want {
		if vec[i] != want[i] {
			t.Errorf("element %d = %v, want %v", i, vec[i], want[i])
		}
	}
}

func TestGenerateEmbeddingDefaultModel(t *testing.T) {
	var gotModel string

	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		json.NewEncoder(w).Encode(embeddingResponse([]float32{1}))
	})

	p := newTestProvider(t, mux)
	if _, err := p.GenerateEmbedding(context.Background(), "text", ""); err != nil {
		t.Fatal(err)
	}
	if gotModel != DefaultModel {
		t.Errorf("model = %q, want default %q", gotModel, DefaultModel)
	}
}

func TestGenerateEmbeddingStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		kind   types.ProviderErrorKind
	}{
		{http.StatusUnauthorized, types.ProviderErrAuthentication},
		{http.StatusForbidden, types.ProviderErrAuthentication},
		{http.StatusTooManyRequests, types.ProviderErrRateLimit},
		{http.StatusNotFound, types.ProviderErrModel},
		{http.StatusInternalServerError, types.ProviderErrModel},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			mux := http.NewServeMux()
			mux.Handle("/embeddings", errorHandler(tt.status, "backend says no"))

			p := newTestProvider(t, mux)
			_, err := p.GenerateEmbedding(context.Background(), "text", "m")
			if err == nil {
				t.Fatal("expected error")
			}
			if !types.IsProviderErrorKind(err, tt.kind) {
				t.Errorf("status %d classified as %v, want kind %s", tt.status, err, tt.kind)
			}
		})
	}
}

func TestGenerateEmbeddingConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close() // nothing listens anymore

	p, err := New(provider.Config{BaseURL: url, APIKey: "test-key", Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.GenerateEmbedding(context.Background(), "text", "m")
	if !types.IsProviderErrorKind(err, types.ProviderErrConnection) {
		t.Errorf("expected connection error, got %v", err)
	}
}

func TestGenerateEmbeddingNoData(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": []any{}})
	})

	p := newTestProvider(t, mux)
	_, err := p.GenerateEmbedding(context.Background(), "text", "m")
	if !types.IsProviderErrorKind(err, types.ProviderErrModel) {
		t.Errorf("expected model error for empty data, got %v", err)
	}
}

func TestListModels(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/models", modelsHandler("text-embedding-3-small", "gpt-4", "text-embedding-3-large"))

	p := newTestProvider(t, mux)
	models, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(models) != 2 {
		t.Fatalf("got %d models, want 2 (chat model filtered)", len(models))
	}
	byName := map[string]types.ModelDescriptor{}
	for _, m := range models {
		byName[m.Name] = m
		if !m.Available {
			t.Errorf("%s should be available from live listing", m.Name)
		}
		if m.Provider != "openai" {
			t.Errorf("%s provider = %q", m.Name, m.Provider)
		}
	}
	if byName["text-embedding-3-small"].Dimensions != 1536 {
		t.Errorf("3-small dimensions = %d, want 1536", byName["text-embedding-3-small"].Dimensions)
	}
	if byName["text-embedding-3-large"].Dimensions != 3072 {
		t.Errorf("3-large dimensions = %d, want 3072", byName["text-embedding-3-large"].Dimensions)
	}
	if byName["text-embedding-3-small"].MaxTokens != 8191 {
		t.Errorf("3-small max tokens = %d, want 8191", byName["text-embedding-3-small"].MaxTokens)
	}
}

func TestListModelsFallsBackWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p, err := New(provider.Config{BaseURL: url, APIKey: "test-key", Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}

	models, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatalf("listing must degrade, not fail: %v", err)
	}
	if len(models) != len(modelDimensions) {
		t.Errorf("got %d fallback models, want %d", len(models), len(modelDimensions))
	}
	for _, m := range models {
		if m.Available {
			t.Errorf("%s marked available without a live server", m.Name)
		}
	}
}

func TestListModelsCatalogWhenNoneListed(t *testing.T) {
	// Some compatible backends list only chat models while still serving
	// the embeddings endpoint.
	mux := http.NewServeMux()
	mux.Handle("/models", modelsHandler("gpt-4", "gpt-3.5-turbo"))

	p := newTestProvider(t, mux)
	models, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(models) != len(modelDimensions) {
		t.Errorf("got %d catalog models, want %d", len(models), len(modelDimensions))
	}
}

func TestGetModelInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/models", modelsHandler("text-embedding-3-small", "custom-embed-v2"))

	p := newTestProvider(t, mux)
	ctx := context.Background()

	desc, err := p.GetModelInfo(ctx, "text-embedding-3-small")
	if err != nil {
		t.Fatal(err)
	}
	if desc == nil {
		t.Fatal("expected descriptor for known model")
	}
	if desc.Dimensions != 1536 || !desc.Available {
		t.Errorf("descriptor = %+v", desc)
	}

	// A compatible backend's own embedding model: known only from the
	// live listing, so no dimension data.
	desc, err = p.GetModelInfo(ctx, "custom-embed-v2")
	if err != nil {
		t.Fatal(err)
	}
	if desc == nil {
		t.Fatal("expected descriptor for backend-listed model")
	}
	if !desc.Available || desc.Dimensions != 0 || desc.MaxTokens != 2048 {
		t.Errorf("descriptor = %+v", desc)
	}

	// Entirely unknown
	desc, err = p.GetModelInfo(ctx, "no-such-model")
	if err != nil {
		t.Fatal(err)
	}
	if desc != nil {
		t.Errorf("expected nil for unknown model, got %+v", desc)
	}
}

func TestGetModelInfoBackendDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p, err := New(provider.Config{BaseURL: url, APIKey: "test-key", Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}

	desc, err := p.GetModelInfo(context.Background(), "text-embedding-ada-002")
	if err != nil {
		t.Fatal(err)
	}
	if desc == nil {
		t.Fatal("catalog models keep their descriptors when the backend is down")
	}
	if desc.Available {
		t.Error("model marked available without a live server")
	}
}

func TestAvailableNoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	p, err := New(provider.Config{})
	if err != nil {
		t.Fatal(err)
	}

	// Fails fast without touching the network.
	if err := p.Available(context.Background()); !types.IsProviderErrorKind(err, types.ProviderErrAuthentication) {
		t.Errorf("expected authentication error, got %v", err)
	}
}

func TestAvailableKeylessCompatibleBackend(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	mux := http.NewServeMux()
	mux.Handle("/models", modelsHandler("custom-embed-v2"))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p, err := New(provider.Config{BaseURL: srv.URL, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Available(context.Background()); err != nil {
		t.Errorf("keyless compatible backend should be available, got %v", err)
	}
}

func TestIsEmbeddingModel(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"text-embedding-3-small", true},
		{"custom-embed-v2", true},
		{"gpt-4", false},
		{"whisper-1", false},
	}
	for _, tt := range tests {
		if got := isEmbeddingModel(tt.id); got != tt.want {
			t.Errorf("isEmbeddingModel(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
