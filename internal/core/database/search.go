package db

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"github.com/tayler-id/lab-agent-rag/internal/core"
	"github.com/tayler-id/lab-agent-rag/internal/models"
)

// SearchChunksLexical runs the keyword leg: websearch-style full-text
// match over the generated tsvector, ranked by ts_rank. Scores are raw
// leg scores; normalization happens at fusion time.
func (c *DatabaseClient) SearchChunksLexical(ctx context.Context, tenantID, query string, filters models.SearchFilters, limit int) ([]core.LegHit, error) {
	const q = `
		SELECT ch.id, d.id, v.id, d.title, ch.section_path, ch.text, ch.page_start, ch.kind,
		       ts_rank(ch.text_fts, websearch_to_tsquery('english', $2)) AS rank,
		       v.created_at
		FROM chunks ch
		JOIN document_versions v ON v.id = ch.doc_version_id
		JOIN documents d ON d.id = v.document_id
		WHERE d.tenant_id = $1
		  AND ch.text_fts @@ websearch_to_tsquery('english', $2)
		  AND ($3 = '' OR d.doc_type = $3)
		  AND ($4 = '' OR d.vendor = $4)
		ORDER BY rank DESC, v.created_at DESC, ch.id
		LIMIT $5
	`
	rows, err := c.db.QueryContext(ctx, q, tenantID, query, filters.DocType, filters.Vendor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []core.LegHit
	for rows.Next() {
		var h core.LegHit
		if err := rows.Scan(
			&h.ChunkID, &h.DocumentID, &h.VersionID, &h.Title, &h.SectionPath,
			&h.Text, &h.PageStart, &h.Kind, &h.Score, &h.VersionCreatedAt,
		); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// SearchChunksSemantic runs the vector leg: cosine similarity against
// the ivfflat index. Chunks without an embedding row are invisible here
// until ingestion finishes embedding them.
func (c *DatabaseClient) SearchChunksSemantic(ctx context.Context, tenantID string, queryVec []float32, filters models.SearchFilters, limit int) ([]core.LegHit, error) {
	const q = `
		SELECT ch.id, d.id, v.id, d.title, ch.section_path, ch.text, ch.page_start, ch.kind,
		       1 - (e.embedding <=> $2) AS similarity,
		       v.created_at
		FROM embeddings e
		JOIN chunks ch ON ch.id = e.chunk_id
		JOIN document_versions v ON v.id = ch.doc_version_id
		JOIN documents d ON d.id = v.document_id
		WHERE d.tenant_id = $1
		  AND ($3 = '' OR d.doc_type = $3)
		  AND ($4 = '' OR d.vendor = $4)
		ORDER BY e.embedding <=> $2, v.created_at DESC, ch.id
		LIMIT $5
	`
	rows, err := c.db.QueryContext(ctx, q, tenantID, pgvector.NewVector(queryVec), filters.DocType, filters.Vendor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []core.LegHit
	for rows.Next() {
		var h core.LegHit
		if err := rows.Scan(
			&h.ChunkID, &h.DocumentID, &h.VersionID, &h.Title, &h.SectionPath,
			&h.Text, &h.PageStart, &h.Kind, &h.Score, &h.VersionCreatedAt,
		); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
