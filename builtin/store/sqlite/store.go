// Package sqlite implements the embedding store on SQLite with WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/SuzumiyaAoba/ees-sub005/pkg/provider"
	"github.com/SuzumiyaAoba/ees-sub005/pkg/types"
)

// Store implements provider.EmbeddingStore backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

var _ provider.EmbeddingStore = (*Store)(nil)

// New creates a new SQLite store.
func New() *Store {
	return &Store{}
}

// Name returns the store name.
func (s *Store) Name() string {
	return "sqlite"
}

// Init opens (or creates) the database at path and bootstraps the schema.
func (s *Store) Init(path string) error {
	// Create directory if needed
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// WAL mode keeps readers unblocked during writes
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	s.db = db
	s.path = path

	if err := s.createSchema(); err != nil {
		db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

func (s *Store) createSchema() error {
	// Embeddings table
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS embeddings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uri TEXT NOT NULL,
			model_name TEXT NOT NULL,
			text TEXT NOT NULL,
			vector BLOB NOT NULL,
			task_type TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// The upsert in Create conflicts on this index
	_, err = s.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_embeddings_uri_model ON embeddings(uri, model_name)`)
	if err != nil {
		return err
	}

	// Index on model_name for search and migration scans
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_embeddings_model ON embeddings(model_name)`)
	if err != nil {
		return err
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Create inserts a record, or updates the existing row in place when the
// (uri, model_name) pair is already stored. The conflict clause makes the
// upsert a single atomic statement.
func (s *Store) Create(ctx context.Context, rec provider.CreateRecord) (*types.EmbeddingRecord, error) {
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (uri, model_name, text, vector, task_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uri, model_name) DO UPDATE SET
			text = excluded.text,
			vector = excluded.vector,
			task_type = excluded.task_type,
			updated_at = excluded.updated_at
	`, rec.URI, rec.ModelName, rec.Text, vectorToBytes(rec.Vector), rec.TaskType, now, now)
	if err != nil {
		return nil, types.NewStoreError("create", err)
	}

	// Re-read instead of LastInsertId: the update path of the upsert does
	// not advance last_insert_rowid.
	stored, err := s.FindByURI(ctx, rec.URI, rec.ModelName)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, types.NewStoreError("create", fmt.Errorf("record for %s vanished after upsert", rec.URI))
	}
	return stored, nil
}

// FindByURI returns the record for (uri, model_name), or (nil, nil) when
// no such record exists.
func (s *Store) FindByURI(ctx context.Context, uri, modelName string) (*types.EmbeddingRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, uri, model_name, text, vector, task_type, created_at, updated_at
		FROM embeddings WHERE uri = ? AND model_name = ?
	`, uri, modelName)

	rec, err := scanRecord(row)
	if err != nil {
		return nil, types.NewStoreError("find_by_uri", err)
	}
	return rec, nil
}

// FindByID returns the record with the given id, or (nil, nil).
func (s *Store) FindByID(ctx context.Context, id int64) (*types.EmbeddingRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, uri, model_name, text, vector, task_type, created_at, updated_at
		FROM embeddings WHERE id = ?
	`, id)

	rec, err := scanRecord(row)
	if err != nil {
		return nil, types.NewStoreError("find_by_id", err)
	}
	return rec, nil
}

// FindAll returns one page of records matching the filter plus the total
// match count ignoring paging. Records are ordered by ascending id.
func (s *Store) FindAll(ctx context.Context, filter types.ListFilter) ([]*types.EmbeddingRecord, int, error) {
	where, args := buildFilter(filter)

	var total int
	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings"+where, args...)
	if err := row.Scan(&total); err != nil {
		return nil, 0, types.NewStoreError("find_all", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = types.DefaultPageSize
	}

	query := "SELECT id, uri, model_name, text, vector, task_type, created_at, updated_at FROM embeddings" +
		where + " ORDER BY id ASC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, types.NewStoreError("find_all", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, 0, types.NewStoreError("find_all", err)
	}
	return records, total, nil
}

// FindByModel returns every record for a model, ordered by ascending id.
func (s *Store) FindByModel(ctx context.Context, modelName string) ([]*types.EmbeddingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, uri, model_name, text, vector, task_type, created_at, updated_at
		FROM embeddings WHERE model_name = ? ORDER BY id ASC
	`, modelName)
	if err != nil {
		return nil, types.NewStoreError("find_by_model", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, types.NewStoreError("find_by_model", err)
	}
	return records, nil
}

// Update applies a partial update and bumps updated_at. Returns
// types.ErrNotFound when the id does not exist.
func (s *Store) Update(ctx context.Context, id int64, upd provider.UpdateRecord) (*types.EmbeddingRecord, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if upd.Text != nil {
		sets = append(sets, "text = ?")
		args = append(args, *upd.Text)
	}
	if upd.Vector != nil {
		sets = append(sets, "vector = ?")
		args = append(args, vectorToBytes(upd.Vector))
	}
	if upd.ModelName != nil {
		sets = append(sets, "model_name = ?")
		args = append(args, *upd.ModelName)
	}
	if upd.TaskType != nil {
		sets = append(sets, "task_type = ?")
		args = append(args, *upd.TaskType)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, "UPDATE embeddings SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, types.NewStoreError("update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, types.NewStoreError("update", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("update record %d: %w", id, types.ErrNotFound)
	}

	return s.FindByID(ctx, id)
}

// Delete removes a record. Returns types.ErrNotFound when the id does not
// exist.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM embeddings WHERE id = ?", id)
	if err != nil {
		return types.NewStoreError("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return types.NewStoreError("delete", err)
	}
	if n == 0 {
		return fmt.Errorf("delete record %d: %w", id, types.ErrNotFound)
	}
	return nil
}

// DeleteAll removes every record and returns the count removed.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM embeddings")
	if err != nil {
		return 0, types.NewStoreError("delete_all", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, types.NewStoreError("delete_all", err)
	}
	return n, nil
}

// GetStats returns record counts and storage size.
func (s *Store) GetStats(ctx context.Context) (*types.StoreStats, error) {
	stats := &types.StoreStats{
		RecordsByModel: make(map[string]int),
	}

	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings")
	if err := row.Scan(&stats.TotalRecords); err != nil {
		return nil, types.NewStoreError("stats", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT model_name, COUNT(*) FROM embeddings GROUP BY model_name")
	if err != nil {
		return nil, types.NewStoreError("stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var model string
		var count int
		if err := rows.Scan(&model, &count); err != nil {
			return nil, types.NewStoreError("stats", err)
		}
		stats.RecordsByModel[model] = count
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewStoreError("stats", err)
	}

	// Aggregate functions drop the DATETIME decl type, so the driver would
	// hand MIN/MAX back as strings. Plain column selects convert cleanly.
	if stats.TotalRecords > 0 {
		var oldest, newest time.Time
		row = s.db.QueryRowContext(ctx, "SELECT created_at FROM embeddings ORDER BY created_at ASC LIMIT 1")
		if err := row.Scan(&oldest); err == nil {
			stats.OldestRecord = &oldest
		}
		row = s.db.QueryRowContext(ctx, "SELECT created_at FROM embeddings ORDER BY created_at DESC LIMIT 1")
		if err := row.Scan(&newest); err == nil {
			stats.NewestRecord = &newest
		}
	}

	// DB file size
	if info, err := os.Stat(s.path); err == nil {
		stats.DBSizeBytes = info.Size()
	}

	return stats, nil
}

// buildFilter renders a ListFilter into a WHERE clause and its arguments.
func buildFilter(filter types.ListFilter) (string, []any) {
	var conds []string
	var args []any

	if filter.URIPattern != "" {
		conds = append(conds, "uri LIKE ? ESCAPE '\\'")
		args = append(args, globToLike(filter.URIPattern))
	}
	if filter.ModelName != "" {
		conds = append(conds, "model_name = ?")
		args = append(args, filter.ModelName)
	}
	if filter.TaskType != "" {
		conds = append(conds, "task_type = ?")
		args = append(args, filter.TaskType)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// globToLike translates a glob pattern (* and ?) to a SQL LIKE pattern,
// escaping literal % and _ so they only match themselves.
func globToLike(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*types.EmbeddingRecord, error) {
	var rec types.EmbeddingRecord
	var blob []byte

	err := row.Scan(&rec.ID, &rec.URI, &rec.ModelName, &rec.Text, &blob, &rec.TaskType, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec.Vector, err = bytesToVector(blob)
	if err != nil {
		return nil, fmt.Errorf("record %d: %w", rec.ID, err)
	}
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]*types.EmbeddingRecord, error) {
	var records []*types.EmbeddingRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
