package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"dialvision/internal/domain"
)

var ErrRunNotFound = errors.New("run not found")

const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// SQLiteStore keeps a log of runs, their attachments and completions.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		prompt      TEXT NOT NULL,
		status      TEXT NOT NULL,
		error       TEXT,
		started_at  DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS attachments (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		title      TEXT NOT NULL,
		url        TEXT NOT NULL,
		mime_type  TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_attachments_run ON attachments(run_id, id);

	CREATE TABLE IF NOT EXISTS completions (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		deployment  TEXT NOT NULL,
		content     TEXT,
		tokens_in   INTEGER DEFAULT 0,
		tokens_out  INTEGER DEFAULT 0,
		latency_ms  INTEGER DEFAULT 0,
		created_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_completions_run ON completions(run_id, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) StartRun(ctx context.Context, prompt string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, prompt, status, started_at) VALUES (?, ?, ?, ?)`,
		id, prompt, StatusRunning, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) AddAttachment(ctx context.Context, runID string, att domain.Attachment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attachments (run_id, title, url, mime_type) VALUES (?, ?, ?, ?)`,
		runID, att.Title, att.URL, att.Type,
	)
	return err
}

func (s *SQLiteStore) AddCompletion(ctx context.Context, runID string, c domain.Completion) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO completions (run_id, deployment, content, tokens_in, tokens_out, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, c.Deployment, c.Content, c.Usage.PromptTokens, c.Usage.CompletionTokens, c.LatencyMs, time.Now().UTC(),
	)
	return err
}

// FinishRun marks the run ok, or failed with runErr's message.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, runErr error) error {
	status, errText := StatusOK, ""
	if runErr != nil {
		status, errText = StatusFailed, runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, errText, time.Now().UTC(), runID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, prompt, status, COALESCE(error, ''), started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		var r domain.RunRecord
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Prompt, &r.Status, &r.Error, &r.StartedAt, &finished); err != nil {
			return nil, err
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Attachments(ctx context.Context, runID string) ([]domain.Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT title, url, mime_type FROM attachments WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var atts []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(&a.Title, &a.URL, &a.Type); err != nil {
			return nil, err
		}
		atts = append(atts, a)
	}
	return atts, rows.Err()
}

func (s *SQLiteStore) Completions(ctx context.Context, runID string) ([]domain.CompletionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, deployment, COALESCE(content, ''), tokens_in, tokens_out, latency_ms, created_at
		 FROM completions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CompletionRecord
	for rows.Next() {
		var c domain.CompletionRecord
		if err := rows.Scan(&c.ID, &c.RunID, &c.Deployment, &c.Content, &c.TokensIn, &c.TokensOut, &c.LatencyMs, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
