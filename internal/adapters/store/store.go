// Package store is the SQLite adapter behind ports.QuoteRepository and
// ports.ClientRepository. It owns three tables: quotes, clients and
// client_sequences (the per-client decks).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ditto-display/ditto/internal/platform/database"
	"github.com/ditto-display/ditto/internal/sequencer"
)

// Schema creates the store tables. It is safe to run on every start.
const Schema = `
CREATE TABLE IF NOT EXISTS quotes (
	id           TEXT PRIMARY KEY,
	content      TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	author       TEXT NOT NULL DEFAULT '',
	image_url    TEXT,
	image_expiry TEXT,
	updated_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS clients (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT NOT NULL UNIQUE,
	current_position INTEGER NOT NULL DEFAULT -1 CHECK (current_position >= -1),
	default_width    INTEGER NOT NULL,
	default_height   INTEGER NOT NULL,
	created_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS client_sequences (
	client_id INTEGER NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
	quote_id  TEXT NOT NULL REFERENCES quotes(id) ON DELETE CASCADE,
	position  INTEGER NOT NULL,
	PRIMARY KEY (client_id, quote_id),
	UNIQUE (client_id, position)
);

CREATE INDEX IF NOT EXISTS idx_client_sequences_quote ON client_sequences(quote_id);
`

const healthCheckName = "sqlite"

// Store implements the quote and client repositories on SQLite.
type Store struct {
	db  *sql.DB
	src sequencer.Source
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithSource sets the randomness used for shuffles and RANDOM navigation.
func WithSource(src sequencer.Source) Option {
	return func(s *Store) { s.src = src }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New wraps an open database and makes sure the schema exists.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*Store, error) {
	s := &Store{
		db:  db,
		src: sequencer.DefaultSource(),
		now: time.Now,
	}

	for _, o := range opts {
		o(s)
	}

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return s, nil
}

// Name implements ports.HealthChecker.
func (s *Store) Name() string {
	return healthCheckName
}

// Check implements ports.HealthChecker.
func (s *Store) Check(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	return database.RunTx(ctx, s.db, fn)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil //nolint:nilnil // absent timestamp
	}

	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, fmt.Errorf("parse time %q: %w", v.String, err)
	}

	return &t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func noRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
