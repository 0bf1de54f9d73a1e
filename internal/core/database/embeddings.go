package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/tayler-id/lab-agent-rag/internal/models"
)

// InsertEmbeddings stores one vector per chunk id. chunkIDs and vectors
// are positionally paired. Re-embedding an already-covered chunk is a
// no-op, which keeps resumed jobs idempotent.
func (c *DatabaseClient) InsertEmbeddings(ctx context.Context, chunkIDs []string, vectors [][]float32) error {
	if len(chunkIDs) != len(vectors) {
		return fmt.Errorf("embeddings: %d ids but %d vectors", len(chunkIDs), len(vectors))
	}
	if len(chunkIDs) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO embeddings (chunk_id, embedding)
		VALUES ($1, $2)
		ON CONFLICT (chunk_id) DO NOTHING
	`
	for i, id := range chunkIDs {
		if _, err := tx.ExecContext(ctx, q, id, pgvector.NewVector(vectors[i])); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListChunksMissingEmbeddings returns the version's chunks without an
// embedding row, in creation order.
func (c *DatabaseClient) ListChunksMissingEmbeddings(ctx context.Context, versionID string) ([]models.Chunk, error) {
	const q = `
		SELECT ch.id, ch.doc_version_id, ch.section_path, ch.page_start, ch.page_end,
		       ch.kind, ch.text, ch.token_count, ch.meta, ch.hash, ch.created_at
		FROM chunks ch
		LEFT JOIN embeddings e ON e.chunk_id = ch.id
		WHERE ch.doc_version_id = $1 AND e.chunk_id IS NULL
		ORDER BY ch.created_at, ch.id
	`
	rows, err := c.db.QueryContext(ctx, q, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var (
			ch   models.Chunk
			meta []byte
		)
		if err := rows.Scan(
			&ch.ID, &ch.DocVersionID, &ch.SectionPath, &ch.PageStart, &ch.PageEnd,
			&ch.Kind, &ch.Text, &ch.TokenCount, &meta, &ch.Hash, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ch.Meta); err != nil {
				return nil, fmt.Errorf("decode chunk meta: %w", err)
			}
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}
