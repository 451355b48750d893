package wizard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/SuzumiyaAoba/ees-sub005/internal/config"
)

// fakeOllama serves /api/version, /api/tags, and /api/show for the given
// model names.
func fakeOllama(t *testing.T, models ...string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"version": "0.5.0"})
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		type tag struct {
			Name string `json:"name"`
			Size int64  `json:"size"`
		}
		var tags []tag
		for _, name := range models {
			tags = append(tags, tag{Name: name, Size: 274 * 1024 * 1024})
		}
		json.NewEncoder(w).Encode(map[string]any{"models": tags})
	})
	mux.HandleFunc("/api/show", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		for _, name := range models {
			if name == req.Name {
				json.NewEncoder(w).Encode(map[string]any{"details": map[string]string{}})
				return
			}
		}
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDetectOllama(t *testing.T) {
	srv := fakeOllama(t, "nomic-embed-text:latest", "llama3:8b")
	w := NewWithEndpoint(srv.URL)

	info := w.detectOllama(context.Background())
	if !info.Available {
		t.Fatalf("not available: %s", info.Error)
	}
	if len(info.Models) != 2 {
		t.Fatalf("got %d models", len(info.Models))
	}

	byName := map[string]ModelInfo{}
	for _, m := range info.Models {
		byName[m.Name] = m
	}
	embed := byName["nomic-embed-text:latest"]
	if embed.Type != "embedding" || !embed.Recommended {
		t.Errorf("nomic = %+v", embed)
	}
	if byName["llama3:8b"].Type != "llm" {
		t.Errorf("llama3 = %+v", byName["llama3:8b"])
	}
}

func TestDetectOllamaDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	w := NewWithEndpoint(srv.URL)
	info := w.detectOllama(context.Background())
	if info.Available {
		t.Error("closed server reported available")
	}
	if info.Error == "" {
		t.Error("no error recorded")
	}
}

func TestDetectOpenAI(t *testing.T) {
	w := New()

	t.Setenv("OPENAI_API_KEY", "sk-test")
	if info := w.detectOpenAI(); !info.Available {
		t.Error("key set but not available")
	}

	t.Setenv("OPENAI_API_KEY", "")
	if info := w.detectOpenAI(); info.Available {
		t.Error("no key but available")
	}
}

func TestRecommend(t *testing.T) {
	w := New()

	tests := []struct {
		name         string
		env          DetectEnvironmentResult
		wantProvider string
		wantModel    string
		wantSteps    bool
	}{
		{
			name: "ollama with recommended model pulled",
			env: DetectEnvironmentResult{
				Ollama: OllamaInfo{Available: true, Endpoint: "http://localhost:11434", Models: []ModelInfo{
					{Name: "llama3:8b", Type: "llm"},
					{Name: "mxbai-embed-large:latest", Type: "embedding", Recommended: true},
				}},
			},
			wantProvider: "ollama",
			wantModel:    "mxbai-embed-large:latest",
		},
		{
			name: "ollama with an unknown embedding model",
			env: DetectEnvironmentResult{
				Ollama: OllamaInfo{Available: true, Models: []ModelInfo{
					{Name: "custom-embedder:v1", Type: "embedding"},
				}},
			},
			wantProvider: "ollama",
			wantModel:    "custom-embedder:v1",
		},
		{
			name: "ollama without embedding models suggests a pull",
			env: DetectEnvironmentResult{
				Ollama: OllamaInfo{Available: true, Models: []ModelInfo{
					{Name: "llama3:8b", Type: "llm"},
				}},
			},
			wantProvider: "ollama",
			wantModel:    "nomic-embed-text",
			wantSteps:    true,
		},
		{
			name: "openai fallback",
			env: DetectEnvironmentResult{
				OpenAI: OpenAIInfo{Available: true},
			},
			wantProvider: "openai",
			wantModel:    "text-embedding-3-small",
		},
		{
			name:         "nothing available",
			env:          DetectEnvironmentResult{},
			wantProvider: "ollama",
			wantModel:    "nomic-embed-text",
			wantSteps:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := w.recommend(&tt.env)
			if rec.Provider != tt.wantProvider {
				t.Errorf("provider = %q, want %q", rec.Provider, tt.wantProvider)
			}
			if rec.Model != tt.wantModel {
				t.Errorf("model = %q, want %q", rec.Model, tt.wantModel)
			}
			if (len(rec.Steps) > 0) != tt.wantSteps {
				t.Errorf("steps = %v", rec.Steps)
			}
		})
	}
}

func TestBuildConfig(t *testing.T) {
	env := &DetectEnvironmentResult{
		Recommendation: Recommendation{
			Provider: "ollama",
			Model:    "mxbai-embed-large",
			Endpoint: "http://10.0.0.2:11434",
		},
	}

	cfg := BuildConfig(env)
	if cfg.Provider != "ollama" {
		t.Errorf("provider = %q", cfg.Provider)
	}
	entry := cfg.Providers["ollama"]
	if entry.DefaultModel != "mxbai-embed-large" || entry.Endpoint != "http://10.0.0.2:11434" {
		t.Errorf("entry = %+v", entry)
	}
	if errs := config.Validate(cfg); len(errs) != 0 {
		t.Errorf("built config does not validate: %v", errs)
	}
}

func TestValidateConfig(t *testing.T) {
	srv := fakeOllama(t, "nomic-embed-text")
	w := New()

	cfg := config.DefaultConfig()
	cfg.Providers["ollama"] = config.ProviderConfig{
		Type:         "ollama",
		Endpoint:     srv.URL,
		DefaultModel: "nomic-embed-text",
	}
	delete(cfg.Providers, "openai")

	result, err := w.ValidateConfig(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid {
		t.Errorf("valid = false: %v", result.Errors)
	}
	if result.Tests["ollama_connection"].Status != "ok" {
		t.Errorf("connection test = %+v", result.Tests["ollama_connection"])
	}
	if result.Tests["ollama_model"].Status != "ok" {
		t.Errorf("model test = %+v", result.Tests["ollama_model"])
	}
}

func TestValidateConfigMissingModel(t *testing.T) {
	srv := fakeOllama(t, "nomic-embed-text")
	w := New()

	cfg := config.DefaultConfig()
	cfg.Providers["ollama"] = config.ProviderConfig{
		Type:         "ollama",
		Endpoint:     srv.URL,
		DefaultModel: "not-pulled",
	}
	delete(cfg.Providers, "openai")

	result, err := w.ValidateConfig(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if result.Tests["ollama_model"].Status != "error" {
		t.Errorf("model test = %+v", result.Tests["ollama_model"])
	}
	if len(result.Warnings) == 0 {
		t.Error("no warning for the missing model")
	}
}

func TestValidateConfigOpenAICredentials(t *testing.T) {
	w := New()

	t.Setenv("OPENAI_API_KEY", "")

	cfg := config.DefaultConfig()
	cfg.Provider = "openai"
	cfg.Providers = map[string]config.ProviderConfig{
		"openai": {Type: "openai"},
	}

	result, err := w.ValidateConfig(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if result.Tests["openai_credentials"].Status != "error" {
		t.Errorf("credentials test = %+v", result.Tests["openai_credentials"])
	}

	// A custom endpoint is assumed keyless-compatible
	cfg.Providers["openai"] = config.ProviderConfig{Type: "openai", Endpoint: "http://localhost:8081/v1"}
	result, _ = w.ValidateConfig(context.Background(), cfg)
	if result.Tests["openai_credentials"].Status != "skipped" {
		t.Errorf("credentials test = %+v", result.Tests["openai_credentials"])
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg.Providers["openai"] = config.ProviderConfig{Type: "openai"}
	result, _ = w.ValidateConfig(context.Background(), cfg)
	if result.Tests["openai_credentials"].Status != "ok" {
		t.Errorf("credentials test = %+v", result.Tests["openai_credentials"])
	}
}

func TestFormatEnvironmentSummary(t *testing.T) {
	env := &DetectEnvironmentResult{
		Ollama: OllamaInfo{Available: true, Endpoint: "http://localhost:11434", Models: []ModelInfo{
			{Name: "nomic-embed-text", Type: "embedding", Size: "274 MB", Recommended: true},
		}},
		System: SystemInfo{OS: "linux", Arch: "amd64", CPUCores: 8},
		Recommendation: Recommendation{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			Reason:   "Ollama is running; embeddings stay local and free",
		},
	}

	out := FormatEnvironmentSummary(env)
	for _, want := range []string{"Ollama: ✓", "nomic-embed-text", "linux/amd64", "Provider: ollama"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
