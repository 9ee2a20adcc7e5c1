package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/ditto-display/ditto/internal/domain"
	"github.com/ditto-display/ditto/internal/sequencer"
)

const clientColumns = `id, name, current_position, default_width, default_height, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*domain.Client, error) {
	var (
		c       domain.Client
		created sql.NullString
	)

	if err := row.Scan(&c.ID, &c.Name, &c.CurrentPosition, &c.DefaultWidth, &c.DefaultHeight, &created); err != nil {
		return nil, err
	}

	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}

	if t != nil {
		c.CreatedAt = *t
	}

	return &c, nil
}

func getClientByName(ctx context.Context, db querier, name string) (*domain.Client, error) {
	c, err := scanClient(db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE name = ?`, name))
	if noRows(err) {
		return nil, domain.NewClientNotFoundError(name)
	}

	if err != nil {
		return nil, fmt.Errorf("get client %s: %w", name, err)
	}

	return c, nil
}

func getClientByID(ctx context.Context, db querier, id int64) (*domain.Client, error) {
	c, err := scanClient(db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = ?`, id))
	if noRows(err) {
		return nil, domain.NewClientNotFoundError(strconv.FormatInt(id, 10))
	}

	if err != nil {
		return nil, fmt.Errorf("get client %d: %w", id, err)
	}

	return c, nil
}

func listClientIDs(ctx context.Context, db querier) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM clients ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list client ids: %w", err)
	}
	defer rows.Close()

	var ids []int64

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// RegisterClient implements ports.ClientRepository.
func (s *Store) RegisterClient(ctx context.Context, name string, dims domain.Dimensions) (*domain.Client, bool, error) {
	var (
		client  *domain.Client
		created bool
	)

	err := s.tx(ctx, func(tx *sql.Tx) error {
		var err error
		client, created, err = s.register(ctx, tx, name, dims)

		return err
	})
	if err != nil {
		return nil, false, err
	}

	return client, created, nil
}

func (s *Store) register(ctx context.Context, tx *sql.Tx, name string, dims domain.Dimensions) (*domain.Client, bool, error) {
	existing, err := getClientByName(ctx, tx, name)
	if err == nil {
		return existing, false, nil
	}

	if !domain.IsNotFound(err) {
		return nil, false, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO clients (name, current_position, default_width, default_height, created_at) VALUES (?, ?, ?, ?, ?)`,
		name, domain.UnsetPosition, dims.Width, dims.Height, formatTime(s.now()))
	if err != nil {
		return nil, false, fmt.Errorf("insert client %s: %w", name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("insert client %s: %w", name, err)
	}

	ids, err := allQuoteIDs(ctx, tx)
	if err != nil {
		return nil, false, err
	}

	if err := insertEntries(ctx, tx, id, sequencer.Build(ids, s.src)); err != nil {
		return nil, false, err
	}

	client, err := getClientByID(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}

	return client, true, nil
}

// GetClient implements ports.ClientRepository.
func (s *Store) GetClient(ctx context.Context, name string) (*domain.Client, error) {
	return getClientByName(ctx, s.db, name)
}

// ListClients implements ports.ClientRepository.
func (s *Store) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	clients := []domain.Client{}

	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}

		clients = append(clients, *c)
	}

	return clients, rows.Err()
}

// UpdateClient implements ports.ClientRepository.
func (s *Store) UpdateClient(ctx context.Context, id int64, update domain.ClientUpdate) (*domain.Client, error) {
	if update.Position != nil && *update.Position < domain.UnsetPosition {
		return nil, domain.NewValidationErrorWithValue("position", "must be -1 or greater", *update.Position)
	}

	var client *domain.Client

	err := s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := getClientByID(ctx, tx, id); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
UPDATE clients SET
	default_width    = COALESCE(?, default_width),
	default_height   = COALESCE(?, default_height),
	current_position = COALESCE(?, current_position)
WHERE id = ?`,
			nullInt(update.Width), nullInt(update.Height), nullInt(update.Position), id)
		if err != nil {
			return fmt.Errorf("update client %d: %w", id, err)
		}

		client, err = getClientByID(ctx, tx, id)

		return err
	})
	if err != nil {
		return nil, err
	}

	return client, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// Deck implements ports.ClientRepository.
func (s *Store) Deck(ctx context.Context, name string) ([]string, error) {
	client, err := getClientByName(ctx, s.db, name)
	if err != nil {
		return nil, err
	}

	deck, err := loadDeck(ctx, s.db, client.ID)
	if err != nil {
		return nil, err
	}

	return deck.IDs(), nil
}

// Navigate implements ports.ClientRepository. Registration, growth, the
// position change and the quote read share one transaction, so a
// client's position is never updated from a stale read.
func (s *Store) Navigate(
	ctx context.Context, name string, dir domain.Direction, dims domain.Dimensions,
) (*domain.Quote, *domain.Client, error) {
	var (
		quote  *domain.Quote
		client *domain.Client
		empty  bool
	)

	err := s.tx(ctx, func(tx *sql.Tx) error {
		var err error

		quote, client, empty = nil, nil, false

		if client, _, err = s.register(ctx, tx, name, dims); err != nil {
			return err
		}

		if _, err = s.appendNew(ctx, tx, client.ID); err != nil {
			return err
		}

		deck, err := loadDeck(ctx, tx, client.ID)
		if err != nil {
			return err
		}

		pos, err := sequencer.Advance(client.CurrentPosition, deck.Len(), dir, s.src)
		if errors.Is(err, sequencer.ErrEmptyDeck) {
			empty = true
			return nil
		}

		if err != nil {
			return err
		}

		if pos != client.CurrentPosition {
			if _, err := tx.ExecContext(ctx,
				`UPDATE clients SET current_position = ? WHERE id = ?`, pos, client.ID); err != nil {
				return fmt.Errorf("move client %s: %w", name, err)
			}

			client.CurrentPosition = pos
		}

		quote, err = getQuote(ctx, tx, deck.At(pos))

		return err
	})
	if err != nil {
		return nil, nil, err
	}

	if empty {
		return nil, client, domain.ErrNoQuotes
	}

	return quote, client, nil
}
