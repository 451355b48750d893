package wizard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/SuzumiyaAoba/ees-sub005/internal/config"
)

// FormatEnvironmentSummary returns a human-readable detection report.
func FormatEnvironmentSummary(env *DetectEnvironmentResult) string {
	lines := []string{"=== Environment ==="}
	lines = append(lines, ollamaLines(env.Ollama)...)
	if env.OpenAI.Available {
		lines = append(lines, "OpenAI: ✓ API key configured")
	} else {
		lines = append(lines, "OpenAI: ✗ Not configured")
	}
	lines = append(lines, systemLine(env.System))

	lines = append(lines, "", "=== Recommendation ===")
	rec := env.Recommendation
	lines = append(lines, "Provider: "+rec.Provider, "Model: "+rec.Model)
	if rec.Endpoint != "" {
		lines = append(lines, "Endpoint: "+rec.Endpoint)
	}
	lines = append(lines, "Why: "+rec.Reason)
	for _, step := range rec.Steps {
		lines = append(lines, "• "+step)
	}

	return strings.Join(lines, "\n") + "\n"
}

func ollamaLines(info OllamaInfo) []string {
	if !info.Available {
		out := []string{"Ollama: ✗ Not running"}
		if info.Error != "" {
			out = append(out, "  "+info.Error)
		}
		return out
	}

	out := []string{"Ollama: ✓ Running at " + info.Endpoint}
	for _, m := range info.Models {
		mark := "  "
		if m.Recommended {
			mark = "✓ "
		}
		out = append(out, fmt.Sprintf("  %s%s (%s, %s)", mark, m.Name, m.Type, m.Size))
	}
	return out
}

func systemLine(sys SystemInfo) string {
	line := fmt.Sprintf("System: %s/%s, %d cores", sys.OS, sys.Arch, sys.CPUCores)
	if sys.TotalRAM != "" {
		line += ", " + sys.TotalRAM + " RAM"
	}
	if sys.HasGPU {
		line += ", GPU: " + sys.GPUInfo
	}
	return line
}

// FormatConfigSummary renders the effective configuration for display.
func FormatConfigSummary(cfg *config.Config) string {
	var sb strings.Builder

	sb.WriteString("=== Configuration ===\n")

	active := cfg.Providers[cfg.Provider]
	model := active.DefaultModel
	if model == "" {
		model = "(provider default)"
	}
	sb.WriteString(fmt.Sprintf("Provider: %s (%s)\n", cfg.Provider, model))
	if active.Endpoint != "" {
		sb.WriteString(fmt.Sprintf("Endpoint: %s\n", active.Endpoint))
	}

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		if name != cfg.Provider {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) > 0 {
		sb.WriteString(fmt.Sprintf("Fallback providers: %s\n", strings.Join(names, ", ")))
	}

	sb.WriteString(fmt.Sprintf("Database: %s\n", cfg.Database.Path))
	if cfg.Cache.Enabled {
		sb.WriteString(fmt.Sprintf("Cache: enabled (%d entries max)\n", cfg.Cache.MaxSize))
	} else {
		sb.WriteString("Cache: disabled\n")
	}
	sb.WriteString(fmt.Sprintf("Server: %s\n", cfg.Server.Addr()))

	return sb.String()
}

// FormatValidateResult returns a human-readable validation report.
func FormatValidateResult(result *ValidateResult) string {
	var sb strings.Builder

	if result.Valid {
		sb.WriteString("Configuration is valid\n")
	} else {
		sb.WriteString("Configuration has problems\n")
	}

	for _, e := range result.Errors {
		sb.WriteString(fmt.Sprintf("error: %s\n", e))
	}
	for _, w := range result.Warnings {
		sb.WriteString(fmt.Sprintf("warning: %s\n", w))
	}

	names := make([]string, 0, len(result.Tests))
	for name := range result.Tests {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		test := result.Tests[name]
		icon := "✓"
		if test.Status == "error" {
			icon = "✗"
		} else if test.Status == "skipped" {
			icon = "-"
		}
		sb.WriteString(fmt.Sprintf("%s %s: %s\n", icon, name, test.Message))
	}

	return sb.String()
}
