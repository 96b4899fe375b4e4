package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orchestrate-hq/orchestrate/internal/models"
	"github.com/orchestrate-hq/orchestrate/internal/types"
)

// Documents is the Postgres document repository. Status changes go
// through Advance, a compare-and-set on the status column: of two
// concurrent writers only the one that observes the expected prior
// status succeeds.
type Documents struct {
	pool *pgxpool.Pool
}

func NewDocuments(pool *pgxpool.Pool) *Documents {
	return &Documents{pool: pool}
}

func (d *Documents) Create(ctx context.Context, doc *models.Document) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO documents (id, filename, mime_type, bucket, storage_key, status, text_length, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		doc.ID, doc.Filename, doc.MIMEType, doc.Bucket, doc.StorageKey,
		doc.Status, doc.TextLength, doc.UploadedAt)
	if err != nil {
		return fmt.Errorf("%w: create document: %v", types.ErrStorageUnavailable, err)
	}
	return nil
}

func (d *Documents) Get(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := d.pool.QueryRow(ctx, `
		SELECT id, filename, mime_type, bucket, storage_key, status, text_length, uploaded_at
		FROM documents WHERE id = $1`, id).Scan(
		&doc.ID, &doc.Filename, &doc.MIMEType, &doc.Bucket, &doc.StorageKey,
		&doc.Status, &doc.TextLength, &doc.UploadedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w: document %s not found", types.ErrInvalidInput, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get document: %v", types.ErrStorageUnavailable, err)
	}
	return &doc, nil
}

// Advance moves a document from one status to the next. It returns false
// without error when another writer got there first.
func (d *Documents) Advance(ctx context.Context, id string, from, to models.Status) (bool, error) {
	if !from.CanAdvance(to) {
		return false, fmt.Errorf("%w: cannot advance %s to %s", types.ErrInvalidInput, from, to)
	}
	tag, err := d.pool.Exec(ctx,
		`UPDATE documents SET status = $1 WHERE id = $2 AND status = $3`,
		to, id, from)
	if err != nil {
		return false, fmt.Errorf("%w: advance document: %v", types.ErrStorageUnavailable, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (d *Documents) SetTextLength(ctx context.Context, id string, n int) error {
	_, err := d.pool.Exec(ctx,
		`UPDATE documents SET text_length = $1 WHERE id = $2`, n, id)
	if err != nil {
		return fmt.Errorf("%w: set text length: %v", types.ErrStorageUnavailable, err)
	}
	return nil
}

func (d *Documents) Recent(ctx context.Context, limit int) ([]models.Document, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := d.pool.Query(ctx, `
		SELECT id, filename, mime_type, bucket, storage_key, status, text_length, uploaded_at
		FROM documents ORDER BY uploaded_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list documents: %v", types.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		err := rows.Scan(&doc.ID, &doc.Filename, &doc.MIMEType, &doc.Bucket,
			&doc.StorageKey, &doc.Status, &doc.TextLength, &doc.UploadedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (d *Documents) Delete(ctx context.Context, id string) error {
	_, err := d.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete document: %v", types.ErrStorageUnavailable, err)
	}
	return nil
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
