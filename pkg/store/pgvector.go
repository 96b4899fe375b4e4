package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/orchestrate-hq/orchestrate/internal/models"
	"github.com/orchestrate-hq/orchestrate/internal/types"
)

type VectorStoreConfig struct {
	TableName string
	VectorDim int
	Metric    string // cosine or euclidean
}

// VectorStore persists chunks and their embeddings in Postgres with the
// pgvector extension.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(ctx context.Context, pool *pgxpool.Pool, config VectorStoreConfig) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}
	if config.Metric == "" {
		config.Metric = "cosine"
	}
	if config.Metric != "cosine" && config.Metric != "euclidean" {
		return nil, fmt.Errorf("unknown metric: %s", config.Metric)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(ctx); err != nil {
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	_, err = vs.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			bucket TEXT NOT NULL,
			storage_key TEXT NOT NULL,
			status TEXT NOT NULL,
			text_length INTEGER NOT NULL DEFAULT 0,
			uploaded_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create documents table: %v", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			start_offset INTEGER NOT NULL,
			end_offset INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d),
			model_version TEXT NOT NULL,
			PRIMARY KEY (document_id, chunk_index)
		)`, vs.config.TableName, vs.config.VectorDim)

	_, err = vs.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %v", err)
	}

	opclass := "vector_cosine_ops"
	if vs.config.Metric == "euclidean" {
		opclass = "vector_l2_ops"
	}
	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding %s)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName, opclass)

	_, err = vs.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	return nil
}

func (vs *VectorStore) operator() string {
	if vs.config.Metric == "euclidean" {
		return "<->"
	}
	return "<=>"
}

// Upsert writes chunks inside one transaction, idempotent by
// (document_id, chunk_index).
func (vs *VectorStore) Upsert(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", types.ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (document_id, chunk_index, start_offset, end_offset, content, embedding, model_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (document_id, chunk_index) DO UPDATE SET
			start_offset = EXCLUDED.start_offset,
			end_offset = EXCLUDED.end_offset,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			model_version = EXCLUDED.model_version`,
		vs.config.TableName)

	for _, chunk := range chunks {
		_, err = tx.Exec(ctx, stmt,
			chunk.DocumentID,
			chunk.Index,
			chunk.Start,
			chunk.End,
			sanitizeUTF8(chunk.Text),
			pgvector.NewVector(chunk.Embedding),
			chunk.ModelVersion,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %v", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

// Search returns the k chunks nearest to vector under the configured
// metric. Chunks embedded under a different model version are filtered
// out; if only mismatched chunks exist the call fails with
// ErrModelVersionMismatch rather than silently comparing across spaces.
func (vs *VectorStore) Search(ctx context.Context, vector []float32, modelVersion string, k int, filter *types.SearchFilter) ([]models.RetrievedChunk, error) {
	if k <= 0 {
		k = 5
	}

	where := "WHERE c.model_version = $2"
	args := []any{pgvector.NewVector(vector), modelVersion, k}
	if filter != nil && len(filter.DocumentIDs) > 0 {
		where += " AND c.document_id = ANY($4)"
		args = append(args, filter.DocumentIDs)
	}

	query := fmt.Sprintf(`
		SELECT c.document_id, c.chunk_index, c.start_offset, c.end_offset,
		       c.content, c.model_version, c.embedding %s $1 AS distance, d.uploaded_at
		FROM %s c
		JOIN documents d ON d.id = c.document_id
		%s
		ORDER BY distance, c.chunk_index, d.uploaded_at
		LIMIT $3`,
		vs.operator(), vs.config.TableName, where)

	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", types.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var results []models.RetrievedChunk
	for rows.Next() {
		var rc models.RetrievedChunk
		err := rows.Scan(
			&rc.Chunk.DocumentID,
			&rc.Chunk.Index,
			&rc.Chunk.Start,
			&rc.Chunk.End,
			&rc.Chunk.Text,
			&rc.Chunk.ModelVersion,
			&rc.Distance,
			&rc.UploadedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		results = append(results, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: search: %v", types.ErrStorageUnavailable, err)
	}

	if len(results) == 0 {
		mismatched, err := vs.countMismatched(ctx, modelVersion, filter)
		if err != nil {
			return nil, err
		}
		if mismatched > 0 {
			return nil, fmt.Errorf("%w: store holds vectors for a different model version", types.ErrModelVersionMismatch)
		}
	}

	return results, nil
}

func (vs *VectorStore) countMismatched(ctx context.Context, modelVersion string, filter *types.SearchFilter) (int, error) {
	where := "WHERE model_version <> $1"
	args := []any{modelVersion}
	if filter != nil && len(filter.DocumentIDs) > 0 {
		where += " AND document_id = ANY($2)"
		args = append(args, filter.DocumentIDs)
	}

	var n int
	query := fmt.Sprintf("SELECT count(*) FROM %s %s", vs.config.TableName, where)
	if err := vs.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %v", types.ErrStorageUnavailable, err)
	}
	return n, nil
}

// DeleteDocument removes a document's chunks and its record in one
// transaction; concurrent readers never observe a partial deletion.
func (vs *VectorStore) DeleteDocument(ctx context.Context, documentID string) error {
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", types.ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf("DELETE FROM %s WHERE document_id = $1", vs.config.TableName)
	if _, err := tx.Exec(ctx, stmt, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %v", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM documents WHERE id = $1", documentID); err != nil {
		return fmt.Errorf("failed to delete document: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}
