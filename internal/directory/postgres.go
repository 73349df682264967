package directory

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists key records in Postgres via a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgresStore connects to Postgres, verifies connectivity, and returns a
// pool-backed store.
func NewPostgresStore(ctx context.Context, url string, log *slog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool, log: log}, nil
}

// Upsert inserts or replaces the key material for a username.
func (s *PostgresStore) Upsert(ctx context.Context, username, publicKeyB64 string) (Record, error) {
	if err := validate(username, publicKeyB64); err != nil {
		return Record{}, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO user_keys (username, public_key_b64)
		VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE
		SET public_key_b64 = EXCLUDED.public_key_b64, updated_at = NOW()
		RETURNING username, public_key_b64, updated_at
	`, username, publicKeyB64)

	var rec Record
	if err := row.Scan(&rec.Username, &rec.PublicKeyB64, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}

	s.log.Info("key stored", "username", rec.Username, "bytes", len(rec.PublicKeyB64))
	return rec, nil
}

// Get returns the record for a username or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, username string) (Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT username, public_key_b64, updated_at
		FROM user_keys
		WHERE username = $1
	`, username)

	var rec Record
	if err := row.Scan(&rec.Username, &rec.PublicKeyB64, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() { s.pool.Close() }
