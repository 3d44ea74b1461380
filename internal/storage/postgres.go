package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists sessions in PostgreSQL as JSONB snapshots.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// CreateSession stores the provided session in PostgreSQL.
func (s *PostgresStore) CreateSession(ctx context.Context, session Session) (Session, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = time.Now()
	}

	state, err := json.Marshal(session)
	if err != nil {
		return Session{}, fmt.Errorf("encode session: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO stylist_sessions (id, state, updated_at) VALUES ($1, $2, $3)`,
		session.ID, state, session.UpdatedAt); err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

// GetSession loads a session by ID.
func (s *PostgresStore) GetSession(ctx context.Context, id string) (Session, error) {
	return scanSession(s.pool.QueryRow(ctx, `SELECT state FROM stylist_sessions WHERE id = $1`, id))
}

// UpdateSession locks the row, applies fn and writes the result in one transaction.
func (s *PostgresStore) UpdateSession(ctx context.Context, id string, fn func(Session) (Session, error)) (Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanSession(tx.QueryRow(ctx, `SELECT state FROM stylist_sessions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Session{}, err
	}

	next, err := fn(current)
	if err != nil {
		return Session{}, err
	}
	next.ID = id
	next.UpdatedAt = time.Now()

	state, err := json.Marshal(next)
	if err != nil {
		return Session{}, fmt.Errorf("encode session: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE stylist_sessions SET state = $2, updated_at = $3 WHERE id = $1`,
		id, state, next.UpdatedAt); err != nil {
		return Session{}, fmt.Errorf("update session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Session{}, fmt.Errorf("commit session: %w", err)
	}
	return next, nil
}

// DeleteSession removes a session row.
func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM stylist_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close releases database resources.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func scanSession(row pgx.Row) (Session, error) {
	var state []byte
	if err := row.Scan(&state); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(state, &session); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}
