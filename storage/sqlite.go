// Package storage persists session state in SQLite so weekly plans survive
// a restart.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/mattiatonolo-png/nutri-ai-assistant/ledger"
	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
)

// ErrNotFound is returned by Load when no session has the given ID.
var ErrNotFound = errors.New("session record not found")

// SessionRecord is the persisted form of a session.
type SessionRecord struct {
	ID             string
	Profile        models.PatientProfile
	History        []models.Message
	Recommendation string
	Plan           ledger.Snapshot
	UpdatedAt      time.Time
}

// SQLiteStore keeps one row per session with the profile, history and plan
// as JSON columns.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db, path: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		profile TEXT NOT NULL,
		history TEXT NOT NULL,
		recommendation TEXT NOT NULL,
		plan TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Save inserts or replaces the session row.
func (s *SQLiteStore) Save(ctx context.Context, rec SessionRecord) error {
	profile, err := json.Marshal(rec.Profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	history := rec.History
	if history == nil {
		history = []models.Message{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	plan, err := json.Marshal(rec.Plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	query := `
		INSERT INTO sessions (id, profile, history, recommendation, plan, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			profile = excluded.profile,
			history = excluded.history,
			recommendation = excluded.recommendation,
			plan = excluded.plan,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, string(profile), string(historyJSON), rec.Recommendation, string(plan), updated.Unix())
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", rec.ID, err)
	}
	return nil
}

// Load reads one session. A missing row is ErrNotFound.
func (s *SQLiteStore) Load(ctx context.Context, id string) (SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, profile, history, recommendation, plan, updated_at FROM sessions WHERE id = ?`, id)

	var (
		rec                    SessionRecord
		profile, history, plan string
		updated                int64
	)
	if err := row.Scan(&rec.ID, &profile, &history, &rec.Recommendation, &plan, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return SessionRecord{}, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(profile), &rec.Profile); err != nil {
		return SessionRecord{}, fmt.Errorf("failed to decode profile: %w", err)
	}
	if err := json.Unmarshal([]byte(history), &rec.History); err != nil {
		return SessionRecord{}, fmt.Errorf("failed to decode history: %w", err)
	}
	if err := json.Unmarshal([]byte(plan), &rec.Plan); err != nil {
		return SessionRecord{}, fmt.Errorf("failed to decode plan: %w", err)
	}
	rec.UpdatedAt = time.Unix(updated, 0)
	return rec, nil
}

// Delete removes a session row. Deleting a missing session is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// IDs lists stored sessions, most recently updated first.
func (s *SQLiteStore) IDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
