// Package journal keeps a local SQLite record of every save the console
// makes against the lab backend.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// Kind is what was saved.
type Kind string

const (
	KindAutosave Kind = "autosave"
	KindConfig   Kind = "config"
	KindTopology Kind = "topology"
)

// Status is the outcome of a save.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

var ErrNotFound = errors.New("snapshot not found")

// Snapshot is one journaled save.
type Snapshot struct {
	ID        string    `json:"id"`
	LabID     string    `json:"lab_id"`
	Device    string    `json:"device,omitempty"`
	Kind      Kind      `json:"kind"`
	Status    Status    `json:"status"`
	Size      int       `json:"size"`
	Content   string    `json:"content,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	LabID string
	Kind  Kind
	Limit int
}

// Journal is the SQLite-backed snapshot store.
type Journal struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the journal in dataDir.
func Open(dataDir string) (*Journal, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	dbPath := filepath.Join(dataDir, "journal.db")

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	j := &Journal{db: db, path: dbPath}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) initSchema() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("reading schema: %w", err)
	}
	_, err = j.db.Exec(string(schema))
	return err
}

// Path is the database file.
func (j *Journal) Path() string { return j.path }

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores s, assigning an id and timestamp when missing. Size
// defaults to the content length.
func (j *Journal) Record(ctx context.Context, s *Snapshot) error {
	if s.LabID == "" || s.Kind == "" {
		return errors.New("snapshot needs a lab and a kind")
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.Size == 0 {
		s.Size = len(s.Content)
	}
	if s.Status == "" {
		s.Status = StatusOK
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO snapshots (id, lab_id, device, kind, status, size, content, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.LabID, s.Device, string(s.Kind), string(s.Status), s.Size, s.Content, s.Error, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

// List returns snapshots newest first, without their content.
func (j *Journal) List(ctx context.Context, f Filter) ([]Snapshot, error) {
	var (
		where []string
		args  []any
	)
	if f.LabID != "" {
		where = append(where, "lab_id = ?")
		args = append(args, f.LabID)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	query := `SELECT id, lab_id, device, kind, status, size, '', error, created_at FROM snapshots`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Get returns one snapshot including its content.
func (j *Journal) Get(ctx context.Context, id string) (*Snapshot, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	row := j.db.QueryRowContext(ctx, `
		SELECT id, lab_id, device, kind, status, size, content, error, created_at
		FROM snapshots WHERE id = ?
	`, id)
	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// Prune deletes snapshots older than before and reports how many went.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	res, err := j.db.ExecContext(ctx, `DELETE FROM snapshots WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(sc scanner) (*Snapshot, error) {
	var (
		s            Snapshot
		kind, status string
	)
	if err := sc.Scan(&s.ID, &s.LabID, &s.Device, &kind, &status, &s.Size, &s.Content, &s.Error, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Kind = Kind(kind)
	s.Status = Status(status)
	return &s, nil
}
