package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ditto-display/ditto/internal/domain"
	"github.com/ditto-display/ditto/internal/sequencer"
)

const upsertQuoteSQL = `
INSERT INTO quotes (id, content, title, author, image_url, image_expiry, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	content      = excluded.content,
	title        = excluded.title,
	author       = excluded.author,
	image_url    = excluded.image_url,
	image_expiry = excluded.image_expiry,
	updated_at   = excluded.updated_at`

// UpsertQuote implements ports.QuoteRepository.
func (s *Store) UpsertQuote(ctx context.Context, q domain.Quote) error {
	return s.upsertQuote(ctx, s.db, q)
}

func (s *Store) upsertQuote(ctx context.Context, db querier, q domain.Quote) error {
	_, err := db.ExecContext(ctx, upsertQuoteSQL,
		q.ID, q.Content, q.Title, q.Author,
		nullString(q.ImageURL), nullTime(q.ImageExpiry), formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("upsert quote %s: %w", q.ID, err)
	}

	return nil
}

// DeleteQuote implements ports.QuoteRepository. Deck entries go with it
// through the foreign key cascade; remaining positions are not renumbered.
func (s *Store) DeleteQuote(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM quotes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete quote %s: %w", id, err)
	}

	return nil
}

// GetQuote implements ports.QuoteRepository.
func (s *Store) GetQuote(ctx context.Context, id string) (*domain.Quote, error) {
	return getQuote(ctx, s.db, id)
}

func getQuote(ctx context.Context, db querier, id string) (*domain.Quote, error) {
	q, err := scanQuote(db.QueryRowContext(ctx, selectQuoteSQL+` WHERE id = ?`, id))
	if noRows(err) {
		return nil, domain.NewNotFoundError(domain.EntityQuote, id)
	}

	if err != nil {
		return nil, fmt.Errorf("get quote %s: %w", id, err)
	}

	return q, nil
}

const selectQuoteSQL = `SELECT id, content, title, author, image_url, image_expiry FROM quotes`

func scanQuote(row rowScanner) (*domain.Quote, error) {
	var (
		q      domain.Quote
		url    sql.NullString
		expiry sql.NullString
	)

	if err := row.Scan(&q.ID, &q.Content, &q.Title, &q.Author, &url, &expiry); err != nil {
		return nil, err
	}

	q.ImageURL = url.String

	var err error
	if q.ImageExpiry, err = parseTime(expiry); err != nil {
		return nil, err
	}

	return &q, nil
}

// ListQuotes implements ports.QuoteRepository.
func (s *Store) ListQuotes(ctx context.Context) ([]domain.Quote, error) {
	rows, err := s.db.QueryContext(ctx, selectQuoteSQL+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()

	quotes := []domain.Quote{}

	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}

		quotes = append(quotes, *q)
	}

	return quotes, rows.Err()
}

// AllQuoteIDs implements ports.QuoteRepository.
func (s *Store) AllQuoteIDs(ctx context.Context) ([]string, error) {
	return allQuoteIDs(ctx, s.db)
}

func allQuoteIDs(ctx context.Context, db querier) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM quotes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list quote ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan quote id: %w", err)
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// UpdateImage implements ports.QuoteRepository.
func (s *Store) UpdateImage(ctx context.Context, id, url string, expiry *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE quotes SET image_url = ?, image_expiry = ?, updated_at = ? WHERE id = ?`,
		nullString(url), nullTime(expiry), formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("update image %s: %w", id, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewNotFoundError(domain.EntityQuote, id)
	}

	return nil
}

// ApplyCatalog implements ports.QuoteRepository. The whole swap runs in a
// single transaction so a failed or cancelled sync leaves the previous
// catalog intact.
func (s *Store) ApplyCatalog(ctx context.Context, quotes []domain.Quote) (domain.SyncResult, error) {
	var result domain.SyncResult

	err := s.tx(ctx, func(tx *sql.Tx) error {
		result = domain.SyncResult{}

		active := make(map[string]struct{}, len(quotes))

		for _, q := range quotes {
			if err := s.upsertQuote(ctx, tx, q); err != nil {
				return err
			}

			if _, dup := active[q.ID]; !dup {
				active[q.ID] = struct{}{}
				result.Synced++
			}
		}

		existing, err := allQuoteIDs(ctx, tx)
		if err != nil {
			return err
		}

		for _, id := range existing {
			if _, ok := active[id]; ok {
				continue
			}

			if _, err := tx.ExecContext(ctx, `DELETE FROM quotes WHERE id = ?`, id); err != nil {
				return fmt.Errorf("delete stale quote %s: %w", id, err)
			}

			result.Deleted++
		}

		clientIDs, err := listClientIDs(ctx, tx)
		if err != nil {
			return err
		}

		for _, clientID := range clientIDs {
			n, err := s.appendNew(ctx, tx, clientID)
			if err != nil {
				return err
			}

			result.Appended += n
		}

		return nil
	})
	if err != nil {
		return domain.SyncResult{}, fmt.Errorf("apply catalog: %w", err)
	}

	return result, nil
}

// Stats implements ports.QuoteRepository.
func (s *Store) Stats(ctx context.Context) (domain.Stats, error) {
	var st domain.Stats

	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM quotes), (SELECT COUNT(*) FROM clients)`,
	).Scan(&st.QuoteCount, &st.ClientCount)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("stats: %w", err)
	}

	return st, nil
}

// loadDeck reads a client's entries in position order.
func loadDeck(ctx context.Context, db querier, clientID int64) (sequencer.Deck, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT quote_id, position FROM client_sequences WHERE client_id = ? ORDER BY position ASC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("load deck %d: %w", clientID, err)
	}
	defer rows.Close()

	var entries []sequencer.Entry

	for rows.Next() {
		var e sequencer.Entry
		if err := rows.Scan(&e.QuoteID, &e.Position); err != nil {
			return nil, fmt.Errorf("scan deck entry: %w", err)
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sequencer.Deck(entries), nil
}

func insertEntries(ctx context.Context, db querier, clientID int64, entries []sequencer.Entry) error {
	for _, e := range entries {
		_, err := db.ExecContext(ctx,
			`INSERT INTO client_sequences (client_id, quote_id, position) VALUES (?, ?, ?)`,
			clientID, e.QuoteID, e.Position)
		if err != nil {
			return fmt.Errorf("insert deck entry %s for client %d: %w", e.QuoteID, clientID, err)
		}
	}

	return nil
}

// appendNew shuffles catalog ids missing from the client's deck onto its
// tail.
func (s *Store) appendNew(ctx context.Context, db querier, clientID int64) (int, error) {
	deck, err := loadDeck(ctx, db, clientID)
	if err != nil {
		return 0, err
	}

	all, err := allQuoteIDs(ctx, db)
	if err != nil {
		return 0, err
	}

	added := sequencer.AppendNew(deck, all, s.src)
	if err := insertEntries(ctx, db, clientID, added); err != nil {
		return 0, err
	}

	return len(added), nil
}
