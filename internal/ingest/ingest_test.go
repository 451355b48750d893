package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/SuzumiyaAoba/ees-sub005/pkg/types"
)

// fakeService records every batch and delete it receives.
type fakeService struct {
	mu      sync.Mutex
	batches []types.BatchCreateRequest
	deleted []string
	failURI map[string]bool
}

func newFakeService() *fakeService {
	return &fakeService{failURI: make(map[string]bool)}
}

func (f *fakeService) CreateBatch(ctx context.Context, req types.BatchCreateRequest) (*types.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.batches = append(f.batches, req)
	result := &types.BatchResult{ModelName: req.ModelName}
	for i, item := range req.Texts {
		out := types.BatchItem{URI: item.URI, Status: types.StatusSuccess, ID: int64(i + 1)}
		if f.failURI[item.URI] {
			out.Status = types.StatusError
			out.Error = "refused"
			result.Failed++
		} else {
			result.Successful++
		}
		result.Results = append(result.Results, out)
	}
	return result, nil
}

func (f *fakeService) DeleteByURI(ctx context.Context, uri string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, uri)
	return 1, nil
}

func (f *fakeService) uris() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, batch := range f.batches {
		for _, item := range batch.Texts {
			out = append(out, item.URI)
		}
	}
	sort.Strings(out)
	return out
}

func (f *fakeService) deletedURIs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"**/*.md", "a.md", true},
		{"**/*.md", "docs/guide.md", true},
		{"**/*.md", "docs/nested/deep.md", true},
		{"**/*.md", "a.txt", false},
		{"*.md", "a.md", true},
		{"*.md", "docs/a.md", true}, // basename fallback
		{"**/node_modules/**", "node_modules/pkg/index.js", true},
		{"**/node_modules/**", "web/node_modules/pkg/index.js", true},
		{"**/node_modules/**", "node_modules/", true},
		{"**/node_modules/**", "src/main.go", false},
		{"**/.git/**", "x/.git/config", true},
		{"**/package-lock.json", "web/package-lock.json", true},
		{"docs/**", "docs/a.md", true},
		{"docs/**", "src/a.md", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.path, func(t *testing.T) {
			if got := matchGlob(tt.pattern, tt.path); got != tt.want {
				t.Errorf("matchGlob(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}
}

func TestShouldInclude(t *testing.T) {
	ing := New(Config{
		Service: newFakeService(),
		Include: []string{"**/*.md", "**/*.txt"},
		Exclude: []string{"**/node_modules/**", "**/*.min.txt"},
	})

	tests := []struct {
		path string
		want bool
	}{
		{"readme.md", true},
		{"docs/notes.txt", true},
		{"main.go", false},
		{"node_modules/pkg/readme.md", false},
		{"styles.min.txt", false},
	}
	for _, tt := range tests {
		if got := ing.shouldInclude(tt.path); got != tt.want {
			t.Errorf("shouldInclude(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	// No include patterns means everything not excluded is in
	all := New(Config{Service: newFakeService(), Exclude: []string{"**/.git/**"}})
	if !all.shouldInclude("anything.xyz") {
		t.Error("empty include list should admit any file")
	}
}

func writeTestFile(t *testing.T, root, rel string, content []byte) {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestRun(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "a.md", []byte("hello"))
	writeTestFile(t, root, "b.txt", []byte("world"))
	writeTestFile(t, root, "sub/d.md", []byte("nested"))
	writeTestFile(t, root, "binary.md", []byte("ab\x00cd"))
	writeTestFile(t, root, "empty.md", nil)
	writeTestFile(t, root, "big.md", make([]byte, 200))
	writeTestFile(t, root, "node_modules/skip.md", []byte("skip me"))
	writeTestFile(t, root, ".hidden/secret.md", []byte("hidden"))
	writeTestFile(t, root, "main.go", []byte("package main"))

	svc := newFakeService()
	ing := New(Config{
		Service:     svc,
		Include:     []string{"**/*.md", "**/*.txt"},
		Exclude:     []string{"**/node_modules/**"},
		MaxFileSize: 64,
		BatchSize:   2,
		Model:       "model-a",
	})

	result, err := ing.Run(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}

	if result.Scanned != 3 || result.Embedded != 3 || result.Failed != 0 {
		t.Errorf("scanned/embedded/failed = %d/%d/%d, want 3/3/0",
			result.Scanned, result.Embedded, result.Failed)
	}
	if result.Skipped != 3 { // binary, empty, too large
		t.Errorf("skipped = %d, want 3", result.Skipped)
	}

	want := []string{"a.md", "b.txt", "sub/d.md"}
	got := svc.uris()
	if len(got) != len(want) {
		t.Fatalf("embedded uris = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("uri[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// Batch size 2 over 3 files needs two batches
	if len(svc.batches) != 2 {
		t.Errorf("got %d batches, want 2", len(svc.batches))
	}
	for _, batch := range svc.batches {
		if batch.ModelName != "model-a" {
			t.Errorf("batch model = %q", batch.ModelName)
		}
	}
}

func TestRunCountsFailures(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, root, "good.md", []byte("fine"))
	writeTestFile(t, root, "bad.md", []byte("refused"))

	svc := newFakeService()
	svc.failURI["bad.md"] = true

	ing := New(Config{Service: svc, Include: []string{"**/*.md"}})
	result, err := ing.Run(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}

	if result.Embedded != 1 || result.Failed != 1 {
		t.Errorf("embedded/failed = %d/%d, want 1/1", result.Embedded, result.Failed)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWatcher(t *testing.T) {
	root := t.TempDir()
	svc := newFakeService()
	ing := New(Config{Service: svc, Include: []string{"**/*.md"}})

	w, err := NewWatcher(ing, root, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// Let the watcher register the root before producing events
	time.Sleep(100 * time.Millisecond)

	notePath := filepath.Join(root, "note.md")
	if err := os.WriteFile(notePath, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "note.md to be embedded", func() bool {
		for _, uri := range svc.uris() {
			if uri == "note.md" {
				return true
			}
		}
		return false
	})

	if err := os.Remove(notePath); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "note.md records to be deleted", func() bool {
		for _, uri := range svc.deletedURIs() {
			if uri == "note.md" {
				return true
			}
		}
		return false
	})

	// Files inside directories created after the watch started are seen too
	subDir := filepath.Join(root, "sub")
	if err := os.Mkdir(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(subDir, "nested.md"), []byte("deep"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "sub/nested.md to be embedded", func() bool {
		for _, uri := range svc.uris() {
			if uri == "sub/nested.md" {
				return true
			}
		}
		return false
	})

	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}
