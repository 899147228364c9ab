package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/reviewstudio/studio/pkg/models"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// SQLiteTraceStore persists the run journal to a single SQLite file.
type SQLiteTraceStore struct {
	db *sql.DB
}

// NewSQLiteTraceStore opens (or creates) the journal at path and migrates it.
func NewSQLiteTraceStore(path string) (*SQLiteTraceStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("journal: create dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}
	// A single connection keeps writes serialised for the pure-Go driver.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal: pragma %q: %w", p, err)
		}
	}

	s := &SQLiteTraceStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: migration: %w", err)
	}
	log.Info().Str("path", path).Msg("🗄️  SQLite journal ready")
	return s, nil
}

func (s *SQLiteTraceStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS traces (
			id            TEXT PRIMARY KEY,
			session_id    TEXT NOT NULL,
			agent_id      TEXT NOT NULL,
			agent_name    TEXT NOT NULL,
			position      INTEGER NOT NULL,
			status        TEXT NOT NULL,
			provider      TEXT NOT NULL,
			model         TEXT NOT NULL,
			duration_ms   INTEGER NOT NULL DEFAULT 0,
			input_chars   INTEGER NOT NULL DEFAULT 0,
			output_chars  INTEGER NOT NULL DEFAULT 0,
			total_tokens  INTEGER NOT NULL DEFAULT 0,
			error_kind    TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			created_at    INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_traces_session ON traces(session_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteTraceStore) CreateTrace(ctx context.Context, t *models.Trace) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO traces (
			id, session_id, agent_id, agent_name, position, status, provider, model,
			duration_ms, input_chars, output_chars, total_tokens, error_kind, error_message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SessionID, t.AgentID, t.AgentName, t.Position, string(t.Status), string(t.Provider), t.Model,
		t.DurationMs, t.InputChars, t.OutputChars, t.TotalTokens, string(t.ErrorKind), t.ErrorMessage,
		t.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("journal: insert trace: %w", err)
	}
	return nil
}

const traceColumns = `id, session_id, agent_id, agent_name, position, status, provider, model,
	duration_ms, input_chars, output_chars, total_tokens, error_kind, error_message, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrace(row rowScanner) (*models.Trace, error) {
	var (
		t                         models.Trace
		status, provider, errKind string
		created                   int64
	)
	if err := row.Scan(&t.ID, &t.SessionID, &t.AgentID, &t.AgentName, &t.Position, &status, &provider, &t.Model,
		&t.DurationMs, &t.InputChars, &t.OutputChars, &t.TotalTokens, &errKind, &t.ErrorMessage, &created); err != nil {
		return nil, err
	}
	t.Status = models.StepStatus(status)
	t.Provider = models.ProviderKind(provider)
	t.ErrorKind = models.ErrorKind(errKind)
	t.CreatedAt = time.Unix(0, created).UTC()
	return &t, nil
}

func (s *SQLiteTraceStore) GetTrace(ctx context.Context, id string) (*models.Trace, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+traceColumns+` FROM traces WHERE id = ?`, id)
	t, err := scanTrace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "trace", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("journal: get trace: %w", err)
	}
	return t, nil
}

func (s *SQLiteTraceStore) ListTraces(ctx context.Context, sessionID string, limit int) ([]models.Trace, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + traceColumns + ` FROM traces`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: list traces: %w", err)
	}
	defer rows.Close()

	var result []models.Trace
	for rows.Next() {
		t, err := scanTrace(rows)
		if err != nil {
			return nil, fmt.Errorf("journal: scan trace: %w", err)
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}

func (s *SQLiteTraceStore) DeleteSessionTraces(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM traces WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("journal: delete session traces: %w", err)
	}
	return nil
}

func (s *SQLiteTraceStore) Close() error {
	return s.db.Close()
}
