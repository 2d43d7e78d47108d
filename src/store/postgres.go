package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mitplan/raidsocket/src/room"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS rooms (
	room_id    TEXT PRIMARY KEY,
	state      JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore is the durable room repository.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps a connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the rooms table if it does not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure rooms schema: %w", err)
	}
	return nil
}

// Create inserts a new row. An existing room_id is ErrRoomExists.
func (p *PostgresStore) Create(ctx context.Context, id string, s *room.State) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO rooms (room_id, state) VALUES ($1, $2) ON CONFLICT (room_id) DO NOTHING`,
		id, string(data))
	if err != nil {
		return fmt.Errorf("insert room %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRoomExists, id)
	}
	return nil
}

// Get loads the room row, or ErrRoomNotFound.
func (p *PostgresStore) Get(ctx context.Context, id string) (*room.State, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT state FROM rooms WHERE room_id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select room %s: %w", id, err)
	}
	return room.Decode(data)
}

// Exists reports whether a row for id exists.
func (p *PostgresStore) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE room_id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists room %s: %w", id, err)
	}
	return exists, nil
}

// Put upserts the room row.
func (p *PostgresStore) Put(ctx context.Context, id string, s *room.State) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO rooms (room_id, state) VALUES ($1, $2)
		ON CONFLICT (room_id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()`,
		id, string(data))
	if err != nil {
		return fmt.Errorf("upsert room %s: %w", id, err)
	}
	return nil
}

// Update locks the row for the duration of fn and writes the result with
// the next revision in the same transaction.
func (p *PostgresStore) Update(ctx context.Context, id string, fn UpdateFunc) (*room.State, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var data []byte
	err = tx.QueryRow(ctx, `SELECT state FROM rooms WHERE room_id = $1 FOR UPDATE`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select room %s: %w", id, err)
	}
	s, err := room.Decode(data)
	if err != nil {
		return nil, err
	}
	rev := s.Revision
	if err := fn(s); err != nil {
		return nil, err
	}
	s.Revision = rev + 1
	enc, err := s.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE rooms SET state = $2, updated_at = now() WHERE room_id = $1`, id, string(enc)); err != nil {
		return nil, fmt.Errorf("update room %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s, nil
}
