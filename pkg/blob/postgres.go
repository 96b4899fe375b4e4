package blob

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orchestrate-hq/orchestrate/internal/types"
)

// PostgresStore keeps raw uploads in a blobs table addressed by
// bucket + key. It shares the connection pool with the vector store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS blobs (
			bucket TEXT NOT NULL,
			key TEXT NOT NULL,
			data BYTEA NOT NULL,
			PRIMARY KEY (bucket, key)
		)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create blobs table: %v", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Put(ctx context.Context, bucket, key string, data []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO blobs (bucket, key, data) VALUES ($1, $2, $3)
		ON CONFLICT (bucket, key) DO UPDATE SET data = EXCLUDED.data`,
		bucket, key, data)
	if err != nil {
		return fmt.Errorf("%w: put %s/%s: %v", types.ErrStorageUnavailable, bucket, key, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM blobs WHERE bucket = $1 AND key = $2`,
		bucket, key).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w: blob %s/%s not found", types.ErrInvalidInput, bucket, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s/%s: %v", types.ErrStorageUnavailable, bucket, key, err)
	}
	return data, nil
}

func (s *PostgresStore) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM blobs WHERE bucket = $1 AND key = $2`, bucket, key)
	if err != nil {
		return fmt.Errorf("%w: delete %s/%s: %v", types.ErrStorageUnavailable, bucket, key, err)
	}
	return nil
}
