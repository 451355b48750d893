// ees is an embedding engine service: it stores vector embeddings in SQLite,
// generates them through pluggable providers, and serves similarity search.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/SuzumiyaAoba/ees-sub005/builtin"
	"github.com/SuzumiyaAoba/ees-sub005/internal/cache"
	"github.com/SuzumiyaAoba/ees-sub005/internal/config"
	"github.com/SuzumiyaAoba/ees-sub005/internal/engine"
	"github.com/SuzumiyaAoba/ees-sub005/internal/ingest"
	"github.com/SuzumiyaAoba/ees-sub005/internal/server"
	"github.com/SuzumiyaAoba/ees-sub005/internal/wizard"
	"github.com/SuzumiyaAoba/ees-sub005/pkg/provider"
	"github.com/SuzumiyaAoba/ees-sub005/pkg/types"
)

var (
	version   = "0.1.0"
	cfgFile   string
	logLevel  string
	logFormat string
)

func main() {
	if rootCmd.Execute() != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ees",
	Short: "Embedding engine service",
	Long: `ees stores text embeddings in SQLite, generates them through pluggable
providers (Ollama locally, any OpenAI-compatible API remotely), and serves
similarity search over them.

It supports:
- Multiple named providers with one active at a time
- Similarity search (cosine, euclidean, dot product)
- In-memory caching with per-namespace TTLs
- Migrating stored vectors between embedding models
- Directory ingestion with watch mode`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(logLevel, logFormat)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ees %s\n", version)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		runServe(addr)
	},
}

var createCmd = &cobra.Command{
	Use:   "create <text>",
	Short: "Create an embedding for a text",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		uri, _ := cmd.Flags().GetString("uri")
		model, _ := cmd.Flags().GetString("model")
		taskType, _ := cmd.Flags().GetString("task-type")
		runCreate(args[0], uri, model, taskType)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id|uri>",
	Short: "Fetch a stored embedding",
	Long: `Fetch a stored embedding. A numeric argument is treated as a record id;
anything else is looked up as a URI under --model (or the active provider's
default model).`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		model, _ := cmd.Flags().GetString("model")
		asJSON, _ := cmd.Flags().GetBool("json")
		runGet(args[0], model, asJSON)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored embeddings",
	Run: func(cmd *cobra.Command, args []string) {
		uri, _ := cmd.Flags().GetString("uri")
		model, _ := cmd.Flags().GetString("model")
		taskType, _ := cmd.Flags().GetString("task-type")
		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")
		runList(uri, model, taskType, page, limit)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a stored embedding",
	Long:  `Update a stored embedding. Changing the text re-embeds it with the record's model.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		req := types.UpdateRequest{}
		if cmd.Flags().Changed("text") {
			text, _ := cmd.Flags().GetString("text")
			req.Text = &text
		}
		if cmd.Flags().Changed("task-type") {
			taskType, _ := cmd.Flags().GetString("task-type")
			req.TaskType = &taskType
		}
		runUpdate(args[0], req)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id|uri>",
	Short: "Delete stored embeddings",
	Long: `Delete stored embeddings. A numeric argument deletes one record by id;
anything else deletes every record for that URI across all models.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runDelete(args[0])
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all stored embeddings",
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		runClear(force)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search embeddings by similarity",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		model, _ := cmd.Flags().GetString("model")
		metric, _ := cmd.Flags().GetString("metric")
		limit, _ := cmd.Flags().GetInt("limit")
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		runSearch(args[0], model, metric, limit, threshold)
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available embedding models",
	Run: func(cmd *cobra.Command, args []string) {
		runModels()
	},
}

var modelsInfoCmd = &cobra.Command{
	Use:   "info <model>",
	Short: "Show details for one model",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
		runModelsInfo(args[0], asJSON)
	},
}

var compatCmd = &cobra.Command{
	Use:   "compat <from-model> <to-model>",
	Short: "Check migration compatibility between two models",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runCompat(args[0], args[1])
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate <from-model> <to-model>",
	Short: "Re-embed stored records under a different model",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		continueOnError, _ := cmd.Flags().GetBool("continue-on-error")
		preserveOriginal, _ := cmd.Flags().GetBool("preserve-original")
		runMigrate(args[0], args[1], batchSize, continueOnError, preserveOriginal)
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Embed all matching files under a directory",
	Long: `Embed all matching files under a directory, one record per file keyed by
its relative path. If no path is provided, ingests the current directory.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		watch, _ := cmd.Flags().GetBool("watch")
		model, _ := cmd.Flags().GetString("model")
		taskType, _ := cmd.Flags().GetString("task-type")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		debounce, _ := cmd.Flags().GetInt("debounce")
		runIngest(path, watch, model, taskType, batchSize, debounce)
	},
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Show configured provider status",
	Run: func(cmd *cobra.Command, args []string) {
		doctor, _ := cmd.Flags().GetBool("doctor")
		runProviders(doctor)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and manage the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file",
	Run: func(cmd *cobra.Command, args []string) {
		detect, _ := cmd.Flags().GetBool("detect")
		force, _ := cmd.Flags().GetBool("force")
		output, _ := cmd.Flags().GetString("output")
		runConfigInit(detect, force, output)
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and test the configured backends",
	Run: func(cmd *cobra.Command, args []string) {
		runConfigValidate()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration (secrets redacted)",
	Run: func(cmd *cobra.Command, args []string) {
		runConfigShow()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./ees.yaml, ~/.config/ees/ees.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error; default from config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json; default from config)")

	serveCmd.Flags().String("addr", "", "listen address (host:port, overrides config)")

	createCmd.Flags().StringP("uri", "u", "", "record URI (unique per model)")
	createCmd.Flags().StringP("model", "m", "", "embedding model (default: active provider's model)")
	createCmd.Flags().String("task-type", "", "optional task type hint")

	getCmd.Flags().StringP("model", "m", "", "model for URI lookups")
	getCmd.Flags().Bool("json", false, "print the full record as JSON")

	listCmd.Flags().StringP("uri", "u", "", "URI pattern filter (* and ? globs)")
	listCmd.Flags().StringP("model", "m", "", "model filter")
	listCmd.Flags().String("task-type", "", "task type filter")
	listCmd.Flags().Int("page", 1, "page number (1-based)")
	listCmd.Flags().IntP("limit", "l", types.DefaultPageSize, "records per page")

	updateCmd.Flags().String("text", "", "new text (re-embeds the record)")
	updateCmd.Flags().String("task-type", "", "new task type")

	clearCmd.Flags().BoolP("force", "f", false, "skip the confirmation prompt")

	searchCmd.Flags().StringP("model", "m", "", "model whose records to search")
	searchCmd.Flags().String("metric", "cosine", "similarity metric (cosine, euclidean, dotProduct)")
	searchCmd.Flags().IntP("limit", "l", 10, "maximum results")
	searchCmd.Flags().Float64P("threshold", "t", 0, "minimum similarity score")

	modelsInfoCmd.Flags().Bool("json", false, "print the descriptor as JSON")
	modelsCmd.AddCommand(modelsInfoCmd)

	migrateCmd.Flags().Int("batch-size", 0, "records per batch (default 100)")
	migrateCmd.Flags().Bool("continue-on-error", true, "keep going past per-record failures")
	migrateCmd.Flags().Bool("preserve-original", false, "copy records instead of rewriting them")

	ingestCmd.Flags().BoolP("watch", "w", false, "keep watching for file changes after the initial pass")
	ingestCmd.Flags().StringP("model", "m", "", "embedding model (default: active provider's model)")
	ingestCmd.Flags().String("task-type", "", "task type recorded on ingested files")
	ingestCmd.Flags().Int("batch-size", 0, "files per embedding batch (default from config)")
	ingestCmd.Flags().Int("debounce", 500, "watch debounce time in milliseconds")

	providersCmd.Flags().Bool("doctor", false, "probe the local environment instead of the configured providers")

	configInitCmd.Flags().Bool("detect", false, "detect the environment and pick a provider automatically")
	configInitCmd.Flags().BoolP("force", "f", false, "overwrite an existing config file")
	configInitCmd.Flags().StringP("output", "o", "", "write to this path instead of the default location")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(compatCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(configCmd)
}

func setupLogging(level, format string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: l}
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadConfig loads the config file and re-applies logging with the merged
// flag/config settings.
func loadConfig() *config.Config {
	cfg, warnings, err := config.Load(cfgFile)
	if err != nil {
		slog.Error("cannot load config", "error", err)
		os.Exit(1)
	}
	for _, warning := range warnings {
		slog.Warn(warning)
	}

	level, format := cfg.Logging.Level, cfg.Logging.Format
	if logLevel != "" {
		level = logLevel
	}
	if logFormat != "" {
		format = logFormat
	}
	setupLogging(level, format)

	return cfg
}

// buildEngine wires the store, providers, and cache into an engine.
func buildEngine(cfg *config.Config) (*engine.Engine, error) {
	store, err := provider.DefaultRegistry.CreateStore("sqlite", cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", cfg.Database.Path, err)
	}

	set := provider.NewSet(cfg.Provider)
	for name, pc := range cfg.Providers {
		p, err := provider.DefaultRegistry.CreateEmbedding(pc.Type, pc.RuntimeConfig())
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to create provider %q: %w", name, err)
		}
		set.Add(name, p)
	}

	var c *cache.Cache
	var ttls cache.TTLConfig
	if cfg.Cache.Enabled {
		c = cache.New(cfg.Cache.MaxSize)
		ttls = cache.TTLConfig{
			Embedding:      cfg.Cache.EmbeddingTTL,
			Search:         cfg.Cache.SearchTTL,
			Models:         cfg.Cache.ModelsTTL,
			ProviderStatus: cfg.Cache.ProviderStatusTTL,
		}
	}

	return engine.New(engine.Config{
		Store:     store,
		Providers: set,
		Cache:     c,
		TTL:       ttls,
		Workers:   cfg.Migration.Workers,
	}), nil
}

// newEngine is buildEngine with CLI error handling.
func newEngine(cfg *config.Config) *engine.Engine {
	eng, err := buildEngine(cfg)
	if err != nil {
		slog.Error("failed to initialize engine", "error", err)
		os.Exit(1)
	}
	return eng
}

// confirm asks prompt on stdout and reads one line; only y or Y accepts.
func confirm(prompt string) bool {
	fmt.Print(prompt + " [y/N] ")
	var answer string
	_, _ = fmt.Scanln(&answer)
	return answer == "y" || answer == "Y"
}

func printJSON(v any) {
	output, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(output))
}

// snippet collapses text to a single line of at most n runes.
func snippet(text string, n int) string {
	line := strings.Join(strings.Fields(text), " ")
	runes := []rune(line)
	if len(runes) <= n {
		return line
	}
	return string(runes[:n]) + "..."
}

func runServe(addr string) {
	cfg := loadConfig()

	listen := cfg.Server.Addr()
	if addr != "" {
		listen = addr
	}

	eng := newEngine(cfg)
	defer eng.Close()

	srv, err := server.New(eng, server.Config{
		ListenAddr:  listen,
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting server",
		"addr", listen,
		"provider", cfg.Provider,
		"database", cfg.Database.Path,
		"cache", cfg.Cache.Enabled)

	if err := srv.Start(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func runCreate(text, uri, model, taskType string) {
	cfg := loadConfig()
	eng := newEngine(cfg)
	defer eng.Close()

	rec, err := eng.CreateEmbedding(context.Background(), types.CreateRequest{
		URI:       uri,
		Text:      text,
		ModelName: model,
		TaskType:  taskType,
	})
	if err != nil {
		slog.Error("failed to create embedding", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Created embedding %d (uri=%s, model=%s, dims=%d)\n",
		rec.ID, rec.URI, rec.ModelName, len(rec.Vector))
}

func runGet(target, model string, asJSON bool) {
	cfg := loadConfig()
	eng := newEngine(cfg)
	defer eng.Close()

	ctx := context.Background()

	var rec *types.EmbeddingRecord
	var err error
	if id, perr := strconv.ParseInt(target, 10, 64); perr == nil {
		rec, err = eng.GetEmbeddingByID(ctx, id)
	} else {
		rec, err = eng.GetEmbedding(ctx, target, model)
	}
	if err != nil {
		slog.Error("failed to fetch embedding", "error", err)
		os.Exit(1)
	}

	if asJSON {
		printJSON(rec)
		return
	}

	fmt.Printf("ID:        %d\n", rec.ID)
	fmt.Printf("URI:       %s\n", rec.URI)
	fmt.Printf("Model:     %s\n", rec.ModelName)
	if rec.TaskType != "" {
		fmt.Printf("Task type: %s\n", rec.TaskType)
	}
	fmt.Printf("Dims:      %d\n", len(rec.Vector))
	fmt.Printf("Created:   %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated:   %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Text:      %s\n", snippet(rec.Text, 200))
}

func runList(uri, model, taskType string, page, limit int) {
	cfg := loadConfig()
	eng := newEngine(cfg)
	defer eng.Close()

	result, err := eng.ListEmbeddings(context.Background(), types.ListFilter{
		URIPattern: uri,
		ModelName:  model,
		TaskType:   taskType,
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		slog.Error("failed to list embeddings", "error", err)
		os.Exit(1)
	}

	if len(result.Records) == 0 {
		fmt.Println("No records.")
		return
	}

	fmt.Printf("%-8s %-40s %-28s %s\n", "ID", "URI", "MODEL", "UPDATED")
	for _, r := range result.Records {
		fmt.Printf("%-8d %-40s %-28s %s\n",
			r.ID, r.URI, r.ModelName, r.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("\n%d of %d records (page %d, limit %d)\n",
		len(result.Records), result.Total, result.Page, result.Limit)
}

func runUpdate(idArg string, req types.UpdateRequest) {
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		slog.Error("invalid id", "id", idArg)
		os.Exit(1)
	}

	cfg := loadConfig()
	eng := newEngine(cfg)
	defer eng.Close()

	rec, err := eng.UpdateEmbedding(context.Background(), id, req)
	if err != nil {
		slog.Error("failed to update embedding", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Updated embedding %d (uri=%s, model=%s, dims=%d)\n",
		rec.ID, rec.URI, rec.ModelName, len(rec.Vector))
}

func runDelete(target string) {
	cfg := loadConfig()
	eng := newEngine(cfg)
	defer eng.Close()

	ctx := context.Background()

	if id, err := strconv.ParseInt(target, 10, 64); err == nil {
		if err := eng.DeleteEmbedding(ctx, id); err != nil {
			slog.Error("failed to delete embedding", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted embedding %d.\n", id)
		return
	}

	n, err := eng.DeleteByURI(ctx, target)
	if err != nil {
		slog.Error("failed to delete embeddings", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %d record(s) for %s.\n", n, target)
}

func runClear(force bool) {
	if !force && !confirm("This will delete all stored embeddings. Continue?") {
		fmt.Println("Aborted.")
		return
	}

	cfg := loadConfig()
	eng := newEngine(cfg)
	defer eng.Close()

	n, err := eng.DeleteAll(context.Background())
	if err != nil {
		slog.Error("failed to clear embeddings", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %d records.\n", n)
}

func runSearch(query, model, metric string, limit int, threshold float64) {
	cfg := loadConfig()
	eng := newEngine(cfg)
	defer eng.Close()

	result, err := eng.Search(context.Background(), &types.SearchRequest{
		Query:     query,
		ModelName: model,
		Metric:    types.Metric(metric),
		Limit:     limit,
		Threshold: threshold,
	})
	if err != nil {
		slog.Error("search failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%d results for %q (model %s)\n", result.TotalResults, result.Query, result.ModelName)
	for i, sr := range result.Results {
		fmt.Printf("\n%2d. [%.4f] %s (id=%d)\n", i+1, sr.Score, sr.Record.URI, sr.Record.ID)
		if text := snippet(sr.Record.Text, 100); text != "" {
			fmt.Printf("    %s\n", text)
		}
	}
}

func runModels() {
	cfg := loadConfig()
	eng := newEngine(cfg)
	defer eng.Close()

	models, err := eng.ListModels(context.Background())
	if err != nil {
		slog.Error("failed to list models", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%-36s %-10s %6s %11s %s\n", "MODEL", "PROVIDER", "DIMS", "MAX_TOKENS", "AVAILABLE")
	for _, m := range models {
		available := "yes"
		if !m.Available {
			available = "no"
		}
		fmt.Printf("%-36s %-10s %6d %11d %s\n",
			m.Name, m.Provider, m.Dimensions, m.MaxTokens, available)
	}
}

func runModelsInfo(name string, asJSON bool) {
	cfg := loadConfig()
	eng := newEngine(cfg)
	defer eng.Close()

	desc, err := eng.GetModelInfo(context.Background(), name)
	if err != nil {
		slog.Error("failed to get model info", "model", name, "error", err)
		os.Exit(1)
	}

	if asJSON {
		printJSON(desc)
		return
	}

	fmt.Printf("Model:      %s\n", desc.Name)
	fmt.Printf("Provider:   %s\n", desc.Provider)
	fmt.Printf("Dimensions: %d\n", desc.Dimensions)
	fmt.Printf("Max tokens: %d\n", desc.MaxTokens)
	fmt.Printf("Available:  %v\n", desc.Available)
	if desc.PricePerToken > 0 {
		fmt.Printf("Price:      $%.8f per token\n", desc.PricePerToken)
	}
	if len(desc.Languages) > 0 {
		fmt.Printf("Languages:  %s\n", strings.Join(desc.Languages, ", "))
	}
}

func runCompat(fromModel, toModel string) {
	cfg := loadConfig()
	eng := newEngine(cfg)
	defer eng.Close()

	result, err := eng.ValidateCompatibility(context.Background(), fromModel, toModel)
	if err != nil {
		slog.Error("compatibility check failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Compatible:       %v\n", result.Compatible)
	fmt.Printf("Similarity score: %.2f\n", result.SimilarityScore)
	if result.Reason != "" {
		fmt.Printf("Reason:           %s\n", result.Reason)
	}
	if !result.Compatible {
		os.Exit(1)
	}
}

func runMigrate(fromModel, toModel string, batchSize int, continueOnError, preserveOriginal bool) {
	cfg := loadConfig()
	eng := newEngine(cfg)
	defer eng.Close()

	opts := types.DefaultMigrationOptions()
	if batchSize > 0 {
		opts.BatchSize = batchSize
	}
	opts.ContinueOnError = continueOnError
	opts.PreserveOriginal = preserveOriginal

	slog.Info("starting migration", "from", fromModel, "to", toModel, "batch_size", opts.BatchSize)

	result, err := eng.Migrate(context.Background(), fromModel, toModel, opts)
	if err != nil {
		var migErr *types.MigrationError
		if errors.As(err, &migErr) && migErr.Result != nil {
			printMigrationResult(migErr.Result)
		}
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	printMigrationResult(result)
}

func printMigrationResult(result *types.MigrationResult) {
	fmt.Printf("Processed:  %d\n", result.TotalProcessed)
	fmt.Printf("Successful: %d\n", result.Successful)
	fmt.Printf("Failed:     %d\n", result.Failed)
	fmt.Printf("Duration:   %s\n", (time.Duration(result.DurationMs) * time.Millisecond).String())

	for _, d := range result.Details {
		if d.Status == types.StatusError {
			fmt.Printf("  failed %s (id=%d): %s\n", d.URI, d.ID, d.Error)
		}
	}
}

func runIngest(path string, watch bool, model, taskType string, batchSize, debounce int) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		slog.Error("invalid path", "path", path, "error", err)
		os.Exit(1)
	}

	cfg := loadConfig()

	maxSize, err := config.ParseSize(cfg.Ingest.MaxFileSize)
	if err != nil {
		slog.Error("invalid ingest.max_file_size", "error", err)
		os.Exit(1)
	}

	eng := newEngine(cfg)
	defer eng.Close()

	if batchSize <= 0 {
		batchSize = cfg.Ingest.BatchSize
	}

	ing := ingest.New(ingest.Config{
		Service:     eng,
		Include:     cfg.Ingest.Include,
		Exclude:     cfg.Ingest.Exclude,
		MaxFileSize: maxSize,
		BatchSize:   batchSize,
		Model:       model,
		TaskType:    taskType,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := ing.Run(ctx, absPath)
	if err != nil {
		slog.Error("ingestion failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Scanned %d files: %d embedded, %d failed, %d skipped (%s)\n",
		result.Scanned, result.Embedded, result.Failed, result.Skipped,
		result.Duration.Round(time.Millisecond))

	if !watch {
		return
	}

	w, err := ingest.NewWatcher(ing, absPath, time.Duration(debounce)*time.Millisecond)
	if err != nil {
		slog.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}

	fmt.Println("Watching for changes (press Ctrl+C to stop)...")
	if err := w.Watch(ctx); err != nil && ctx.Err() == nil {
		slog.Error("watcher error", "error", err)
		os.Exit(1)
	}
}

func runProviders(doctor bool) {
	if doctor {
		wiz := wizard.New()
		env, err := wiz.DetectEnvironment(context.Background())
		if err != nil {
			slog.Error("detection failed", "error", err)
			os.Exit(1)
		}
		fmt.Print(wizard.FormatEnvironmentSummary(env))
		return
	}

	cfg := loadConfig()
	eng := newEngine(cfg)
	defer eng.Close()

	statuses := eng.ProviderStatus(context.Background())

	fmt.Printf("%-12s %-8s %-28s %-10s %s\n", "NAME", "TYPE", "DEFAULT_MODEL", "AVAILABLE", "ERROR")
	for _, s := range statuses {
		available := "yes"
		if !s.Available {
			available = "no"
		}
		name := s.Name
		if name == cfg.Provider {
			name += "*"
		}
		fmt.Printf("%-12s %-8s %-28s %-10s %s\n", name, s.Type, s.DefaultModel, available, s.Error)
	}
	fmt.Println("\n* = active provider")
}

func runConfigInit(detect, force bool, output string) {
	path := output
	if path == "" {
		path = cfgFile
	}
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !force {
		fmt.Printf("Config already exists at %s\n", path)
		if !confirm("Overwrite?") {
			fmt.Println("Aborted.")
			return
		}
	}

	cfg := config.DefaultConfig()
	if detect {
		wiz := wizard.New()
		env, err := wiz.DetectEnvironment(context.Background())
		if err != nil {
			slog.Error("detection failed", "error", err)
			os.Exit(1)
		}
		fmt.Print(wizard.FormatEnvironmentSummary(env))
		fmt.Println()
		cfg = wizard.BuildConfig(env)
	}

	if err := config.Save(path, cfg); err != nil {
		slog.Error("failed to save config", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Created config at %s\n", path)
}

func runConfigValidate() {
	cfg, warnings, err := config.Load(cfgFile)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		fmt.Printf("Warning: %s\n", w)
	}

	wiz := wizard.New()
	result, err := wiz.ValidateConfig(context.Background(), cfg)
	if err != nil {
		fmt.Printf("Validation error: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(wizard.FormatValidateResult(result))
	if !result.Valid {
		os.Exit(1)
	}
}

func runConfigShow() {
	cfg := loadConfig()
	fmt.Print(wizard.FormatConfigSummary(cfg.Redacted()))
}
