// Package history persists a transcript of dispatched commands in SQLite.
// Writes arrive through the event bus, so recording stays off the command
// path.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"ledbutler/internal/domain"
)

// Record is one dispatched command as stored.
type Record struct {
	ID        string
	Input     string
	Action    domain.ActionKind
	Message   string
	Success   bool
	Source    domain.ResolutionSource
	CreatedAt time.Time
}

// Store is a SQLite-backed command transcript.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New opens (or creates) the transcript database at path and migrates the
// schema. A single connection avoids SQLITE_BUSY on the Pi's slow SD card.
func New(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}

	return &Store{
		db:      db,
		logger:  logger,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS commands (
			id         TEXT PRIMARY KEY,
			input      TEXT NOT NULL,
			action     TEXT NOT NULL,
			message    TEXT NOT NULL,
			success    INTEGER NOT NULL,
			source     TEXT NOT NULL,
			created_at TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one transcript row. An empty ID gets a fresh ULID.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.ID == "" {
		rec.ID = s.newID(rec.CreatedAt)
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO commands (id, input, action, message, success, source, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.Input, string(rec.Action), rec.Message, boolToInt(rec.Success),
		string(rec.Source), rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return domain.NewDomainError("history.record", domain.ErrStoreFailure, err.Error())
	}
	return nil
}

// Recent returns up to n transcript rows, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, input, action, message, success, source, created_at FROM commands ORDER BY id DESC LIMIT ?", n)
	if err != nil {
		return nil, domain.NewDomainError("history.recent", domain.ErrStoreFailure, err.Error())
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var action, source, createdAt string
		var success int
		if err := rows.Scan(&rec.ID, &rec.Input, &action, &rec.Message, &success, &source, &createdAt); err != nil {
			return nil, domain.NewDomainError("history.recent", domain.ErrStoreFailure, err.Error())
		}
		rec.Action = domain.ActionKind(action)
		rec.Source = domain.ResolutionSource(source)
		rec.Success = success != 0
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Subscribe attaches the store to the bus so every dispatched command is
// recorded. Returns the unsubscribe function.
func (s *Store) Subscribe(bus domain.EventBus) func() {
	return bus.Subscribe(domain.EventCommandDispatched, func(ctx context.Context, event domain.Event) {
		var payload struct {
			Input   string                  `json:"input"`
			Action  domain.ActionKind       `json:"action"`
			Message string                  `json:"message"`
			Success bool                    `json:"success"`
			Source  domain.ResolutionSource `json:"source"`
		}
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			s.logger.Warn("history: unparseable command event", "error", err)
			return
		}
		rec := Record{
			Input:     payload.Input,
			Action:    payload.Action,
			Message:   payload.Message,
			Success:   payload.Success,
			Source:    payload.Source,
			CreatedAt: event.Timestamp.UTC(),
		}
		if err := s.Record(ctx, rec); err != nil {
			s.logger.Warn("history: record failed", "error", err)
		}
	})
}

// newID generates a ULID for t. Monotonic entropy keeps IDs sortable even
// within one millisecond.
func (s *Store) newID(t time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
