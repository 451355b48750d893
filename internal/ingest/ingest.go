// Package ingest walks directories and embeds matching text files.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SuzumiyaAoba/ees-sub005/pkg/types"
)

// Service is the slice of the engine the ingester drives.
type Service interface {
	CreateBatch(ctx context.Context, req types.BatchCreateRequest) (*types.BatchResult, error)
	DeleteByURI(ctx context.Context, uri string) (int, error)
}

// Config contains ingester configuration.
type Config struct {
	Service     Service
	Include     []string // glob patterns; empty includes everything
	Exclude     []string
	MaxFileSize int64  // bytes; 0 = 1MB
	BatchSize   int    // files per embedding batch; 0 = 32
	Model       string // empty = active provider default
	TaskType    string
}

// Ingester embeds files under a directory, one record per file keyed by
// its slash-separated relative path.
type Ingester struct {
	service  Service
	include  []string
	exclude  []string
	maxSize  int64
	batch    int
	model    string
	taskType string
}

// Result summarizes one ingestion run.
type Result struct {
	Scanned  int           // files read and submitted
	Embedded int           // records stored
	Failed   int           // per-file embedding failures
	Skipped  int           // too large, binary, or empty
	Duration time.Duration
}

// New creates an Ingester.
func New(cfg Config) *Ingester {
	maxSize := cfg.MaxFileSize
	if maxSize == 0 {
		maxSize = 1 << 20
	}
	batch := cfg.BatchSize
	if batch == 0 {
		batch = 32
	}
	return &Ingester{
		service:  cfg.Service,
		include:  cfg.Include,
		exclude:  cfg.Exclude,
		maxSize:  maxSize,
		batch:    batch,
		model:    cfg.Model,
		taskType: cfg.TaskType,
	}
}

// Run walks root, reads every included file, and embeds the contents in
// batches. Files that are too large, binary, or empty are skipped.
func (ing *Ingester) Run(ctx context.Context, root string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}

	var pending []types.BatchText
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		batch, err := ing.service.CreateBatch(ctx, types.BatchCreateRequest{
			ModelName: ing.model,
			TaskType:  ing.taskType,
			Texts:     pending,
		})
		if err != nil {
			return err
		}
		result.Embedded += batch.Successful
		result.Failed += batch.Failed
		for _, item := range batch.Results {
			if item.Status == types.StatusError {
				slog.Warn("failed to embed file", "uri", item.URI, "error", item.Error)
			}
		}
		slog.Info("embedded batch", "files", len(pending), "ok", batch.Successful, "failed", batch.Failed)
		pending = pending[:0]
		return nil
	}

	slog.Info("scanning directory", "dir", root)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip unreadable entries
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if path == root {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			for _, pattern := range ing.exclude {
				if matchGlob(pattern, relPath+"/") {
					return filepath.SkipDir
				}
			}
			return nil
		}

		if !ing.shouldInclude(relPath) {
			return nil
		}

		text, ok := ing.readFile(path)
		if !ok {
			result.Skipped++
			return nil
		}

		result.Scanned++
		pending = append(pending, types.BatchText{URI: relPath, Text: text})
		if len(pending) >= ing.batch {
			return flush()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	slog.Info("ingestion complete",
		"scanned", result.Scanned,
		"embedded", result.Embedded,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"duration", result.Duration,
	)
	return result, nil
}

// shouldInclude applies the include and exclude patterns to a relative path.
func (ing *Ingester) shouldInclude(relPath string) bool {
	if len(ing.include) > 0 {
		included := false
		for _, pattern := range ing.include {
			if matchGlob(pattern, relPath) {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}
	for _, pattern := range ing.exclude {
		if matchGlob(pattern, relPath) {
			return false
		}
	}
	return true
}

// readFile returns the file's text, or ok=false for files that should be
// skipped: larger than the limit, empty, or binary (NUL in the first 512
// bytes).
func (ing *Ingester) readFile(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	if info.Size() == 0 || info.Size() > ing.maxSize {
		return "", false
	}

	content, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("failed to read file", "file", path, "error", err)
		return "", false
	}

	sniff := content
	if len(sniff) > 512 {
		sniff = sniff[:512]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return "", false
	}

	return string(content), true
}
