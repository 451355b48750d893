// Package wizard implements environment detection and configuration
// recommendations for first-time setup.
package wizard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/SuzumiyaAoba/ees-sub005/internal/config"
)

const (
	ollamaDefaultEndpoint = "http://localhost:11434"
	probeTimeout          = 5 * time.Second
)

// DetectEnvironmentResult contains detected environment information.
type DetectEnvironmentResult struct {
	Ollama OllamaInfo `json:"ollama"`
	OpenAI OpenAIInfo `json:"openai"`
	System SystemInfo `json:"system"`

	Recommendation Recommendation `json:"recommendation"`
}

// OllamaInfo contains Ollama detection results.
type OllamaInfo struct {
	Available bool        `json:"available"`
	Endpoint  string      `json:"endpoint"`
	Models    []ModelInfo `json:"models,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// ModelInfo describes one model the local Ollama install has pulled.
type ModelInfo struct {
	Name        string `json:"name"`
	Size        string `json:"size"`
	Type        string `json:"type"` // "embedding" or "llm"
	Recommended bool   `json:"recommended"`
}

// OpenAIInfo reports whether the OpenAI backend is usable.
type OpenAIInfo struct {
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// SystemInfo describes the host, as far as it matters for local inference.
type SystemInfo struct {
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	CPUCores     int    `json:"cpu_cores"`
	TotalRAM     string `json:"total_ram,omitempty"`
	AvailableRAM string `json:"available_ram,omitempty"`
	HasGPU       bool   `json:"has_gpu"`
	GPUInfo      string `json:"gpu_info,omitempty"`
}

// Recommendation is the suggested provider and model for this machine.
type Recommendation struct {
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
	Endpoint string   `json:"endpoint,omitempty"`
	Reason   string   `json:"reason"`
	Steps    []string `json:"steps,omitempty"` // commands to run before serving
}

// Wizard handles environment detection and recommendations.
type Wizard struct {
	ollamaEndpoint string
}

// New creates a wizard probing the default Ollama endpoint.
func New() *Wizard {
	return &Wizard{ollamaEndpoint: ollamaDefaultEndpoint}
}

// NewWithEndpoint creates a wizard probing a specific Ollama endpoint.
func NewWithEndpoint(endpoint string) *Wizard {
	if endpoint == "" {
		endpoint = ollamaDefaultEndpoint
	}
	return &Wizard{ollamaEndpoint: strings.TrimRight(endpoint, "/")}
}

// DetectEnvironment detects the environment and generates a recommendation.
func (w *Wizard) DetectEnvironment(ctx context.Context) (*DetectEnvironmentResult, error) {
	result := &DetectEnvironmentResult{}

	result.Ollama = w.detectOllama(ctx)
	result.OpenAI = w.detectOpenAI()
	result.System = w.detectSystem()
	result.Recommendation = w.recommend(result)

	return result, nil
}

// detectOllama checks Ollama availability and lists installed models.
func (w *Wizard) detectOllama(ctx context.Context) OllamaInfo {
	info := OllamaInfo{Endpoint: w.ollamaEndpoint}
	client := &http.Client{Timeout: probeTimeout}

	if err := fetchJSON(ctx, client, info.Endpoint+"/api/version", nil); err != nil {
		info.Error = "no Ollama at " + info.Endpoint
		return info
	}
	info.Available = true

	var tags struct {
		Models []struct {
			Name string `json:"name"`
			Size int64  `json:"size"`
		} `json:"models"`
	}
	if err := fetchJSON(ctx, client, info.Endpoint+"/api/tags", &tags); err != nil {
		return info // reachable but not listable; leave the model list empty
	}
	for _, m := range tags.Models {
		info.Models = append(info.Models, ModelInfo{
			Name:        m.Name,
			Size:        formatBytes(m.Size),
			Type:        classifyModel(m.Name),
			Recommended: isRecommendedModel(m.Name),
		})
	}
	return info
}

// detectOpenAI checks OpenAI availability.
func (w *Wizard) detectOpenAI() OpenAIInfo {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return OpenAIInfo{Error: "OPENAI_API_KEY not set"}
	}
	return OpenAIInfo{Available: true}
}

// detectSystem reports host facts a provider choice depends on.
func (w *Wizard) detectSystem() SystemInfo {
	info := SystemInfo{
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		CPUCores: runtime.NumCPU(),
	}
	switch runtime.GOOS {
	case "darwin":
		fillDarwinInfo(&info)
	case "linux":
		fillLinuxInfo(&info)
	}
	return info
}

func fillDarwinInfo(info *SystemInfo) {
	if out, err := exec.Command("sysctl", "-n", "hw.memsize").Output(); err == nil {
		if n, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64); err == nil {
			info.TotalRAM = formatBytes(n)
		}
	}
	out, err := exec.Command("system_profiler", "SPDisplaysDataType", "-json").Output()
	if err != nil {
		return
	}
	info.HasGPU = true
	if bytes.Contains(out, []byte("Apple")) {
		info.GPUInfo = "Apple Silicon GPU"
	}
}

func fillLinuxInfo(info *SystemInfo) {
	if data, err := os.ReadFile("/proc/meminfo"); err == nil {
		info.TotalRAM = meminfoValue(data, "MemTotal:")
		info.AvailableRAM = meminfoValue(data, "MemAvailable:")
	}
	if _, err := exec.LookPath("nvidia-smi"); err == nil {
		info.HasGPU = true
		info.GPUInfo = "NVIDIA GPU"
	}
}

// meminfoValue extracts one kB-denominated /proc/meminfo field, formatted
// for humans. Empty when the field is absent or malformed.
func meminfoValue(data []byte, field string) string {
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, field) {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			return ""
		}
		kb, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return ""
		}
		return formatBytes(kb * 1024)
	}
	return ""
}

// fetchJSON GETs url and decodes the body into out when out is non-nil.
// Any non-200 status is an error.
func fetchJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// recommend picks a provider and model from the detection results. Local
// inference wins when Ollama is reachable; otherwise OpenAI when a key is
// set.
func (w *Wizard) recommend(env *DetectEnvironmentResult) Recommendation {
	if env.Ollama.Available {
		rec := Recommendation{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			Endpoint: env.Ollama.Endpoint,
			Reason:   "Ollama is running; embeddings stay local and free",
		}

		// Prefer an embedding model that is already pulled
		var installed []string
		for _, m := range env.Ollama.Models {
			if m.Type == "embedding" {
				installed = append(installed, m.Name)
				if m.Recommended {
					rec.Model = m.Name
					return rec
				}
			}
		}
		if len(installed) > 0 {
			rec.Model = installed[0]
			return rec
		}

		rec.Steps = []string{"ollama pull nomic-embed-text"}
		return rec
	}

	if env.OpenAI.Available {
		return Recommendation{
			Provider: "openai",
			Model:    "text-embedding-3-small",
			Reason:   "Ollama not available; OPENAI_API_KEY is set",
		}
	}

	return Recommendation{
		Provider: "ollama",
		Model:    "nomic-embed-text",
		Endpoint: w.ollamaEndpoint,
		Reason:   "No embedding backend detected",
		Steps: []string{
			"install Ollama from https://ollama.com and run: ollama pull nomic-embed-text",
			"or set OPENAI_API_KEY to use OpenAI",
		},
	}
}

// BuildConfig turns a detection result into a ready-to-save configuration.
func BuildConfig(env *DetectEnvironmentResult) *config.Config {
	cfg := config.DefaultConfig()
	rec := env.Recommendation

	cfg.Provider = rec.Provider
	entry := cfg.Providers[rec.Provider]
	entry.Type = rec.Provider
	entry.DefaultModel = rec.Model
	if rec.Endpoint != "" {
		entry.Endpoint = rec.Endpoint
	}
	cfg.Providers[rec.Provider] = entry

	return cfg
}

// ValidateConfig validates configuration structure and live-tests the
// configured backends.
func (w *Wizard) ValidateConfig(ctx context.Context, cfg *config.Config) (*ValidateResult, error) {
	result := &ValidateResult{
		Valid: true,
		Tests: make(map[string]TestResult),
	}

	errs := config.Validate(cfg)
	for _, err := range errs {
		result.Errors = append(result.Errors, err.Error())
		result.Valid = false
	}

	for name, pc := range cfg.Providers {
		switch pc.Type {
		case "ollama":
			w.testOllama(ctx, name, pc, result)
		case "openai":
			w.testOpenAI(name, pc, result)
		}
	}

	return result, nil
}

// testOllama checks the endpoint and, when reachable, the default model.
func (w *Wizard) testOllama(ctx context.Context, name string, pc config.ProviderConfig, result *ValidateResult) {
	endpoint := strings.TrimRight(pc.Endpoint, "/")
	if endpoint == "" {
		endpoint = ollamaDefaultEndpoint
	}
	client := &http.Client{Timeout: probeTimeout}

	if err := fetchJSON(ctx, client, endpoint+"/api/version", nil); err != nil {
		result.Tests[name+"_connection"] = TestResult{
			Status:  "error",
			Message: "cannot connect to Ollama: " + err.Error(),
		}
		result.Valid = false
		return
	}
	result.Tests[name+"_connection"] = TestResult{
		Status:  "ok",
		Message: "connected to Ollama",
	}

	model := pc.DefaultModel
	if model == "" {
		model = "nomic-embed-text"
	}
	if err := w.showModel(ctx, client, endpoint, model); err != nil {
		result.Tests[name+"_model"] = TestResult{
			Status:  "error",
			Message: fmt.Sprintf("model %s not found, run: ollama pull %s", model, model),
		}
		result.Warnings = append(result.Warnings, fmt.Sprintf("provider %q: default model not available", name))
		return
	}
	result.Tests[name+"_model"] = TestResult{
		Status:  "ok",
		Message: "model " + model + " available",
	}
}

// showModel asks Ollama's show endpoint whether a model is pulled.
func (w *Wizard) showModel(ctx context.Context, client *http.Client, endpoint, model string) error {
	body, _ := json.Marshal(map[string]any{"name": model})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/api/show", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// testOpenAI checks that a credential is available. A custom endpoint is
// assumed to be an OpenAI-compatible backend that may not need a key.
func (w *Wizard) testOpenAI(name string, pc config.ProviderConfig, result *ValidateResult) {
	if pc.APIKey != "" || os.Getenv("OPENAI_API_KEY") != "" {
		result.Tests[name+"_credentials"] = TestResult{
			Status:  "ok",
			Message: "API key present",
		}
		return
	}
	if pc.Endpoint != "" {
		result.Tests[name+"_credentials"] = TestResult{
			Status:  "skipped",
			Message: "custom endpoint without key; assuming keyless compatible backend",
		}
		return
	}
	result.Tests[name+"_credentials"] = TestResult{
		Status:  "error",
		Message: "no API key configured and OPENAI_API_KEY not set",
	}
	result.Warnings = append(result.Warnings, fmt.Sprintf("provider %q: no credentials", name))
}

// ValidateResult aggregates structural config errors with the outcomes of
// the live backend checks.
type ValidateResult struct {
	Valid    bool                  `json:"valid"`
	Errors   []string              `json:"errors"`
	Warnings []string              `json:"warnings"`
	Tests    map[string]TestResult `json:"tests"`
}

// TestResult is the outcome of one live check.
type TestResult struct {
	Status  string `json:"status"` // "ok", "error", "warning", "skipped"
	Message string `json:"message"`
}

// Name fragments marking models that make good embedding defaults.
var preferredEmbedders = []string{"nomic-embed", "mxbai-embed", "snowflake-arctic-embed", "bge-m3", "all-minilm"}

// classifyModel sorts a pulled model into "embedding" or "llm" by name.
func classifyModel(name string) string {
	lower := strings.ToLower(name)
	for _, marker := range []string{"embed", "minilm", "bge"} {
		if strings.Contains(lower, marker) {
			return "embedding"
		}
	}
	return "llm"
}

func isRecommendedModel(name string) bool {
	lower := strings.ToLower(name)
	for _, candidate := range preferredEmbedders {
		if strings.Contains(lower, candidate) {
			return true
		}
	}
	return false
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.0f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.0f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
