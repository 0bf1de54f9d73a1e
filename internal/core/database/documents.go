package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tayler-id/lab-agent-rag/internal/models"
)

// UpsertDocument inserts or returns the existing document identified by
// (tenant_id, title), refreshing non-empty tags.
func (c *DatabaseClient) UpsertDocument(ctx context.Context, doc *models.Document) (*models.Document, error) {
	if doc == nil {
		return nil, errors.New("nil document")
	}
	const q = `
		INSERT INTO documents (id, tenant_id, title, vendor, model, doc_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (tenant_id, title) DO UPDATE SET
			vendor = COALESCE(NULLIF(EXCLUDED.vendor, ''), documents.vendor),
			model = COALESCE(NULLIF(EXCLUDED.model, ''), documents.model),
			doc_type = COALESCE(NULLIF(EXCLUDED.doc_type, ''), documents.doc_type),
			updated_at = now()
		RETURNING id, tenant_id, title, vendor, model, doc_type, created_at, updated_at
	`
	var out models.Document
	err := c.db.QueryRowContext(ctx, q,
		doc.ID, doc.TenantID, doc.Title, doc.Vendor, doc.Model, doc.DocType,
	).Scan(&out.ID, &out.TenantID, &out.Title, &out.Vendor, &out.Model, &out.DocType, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert document: %w", err)
	}
	return &out, nil
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		SELECT id, tenant_id, title, vendor, model, doc_type, created_at, updated_at
		FROM documents WHERE id = $1
	`
	var d models.Document
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.TenantID, &d.Title, &d.Vendor, &d.Model, &d.DocType, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) FindVersionByHash(ctx context.Context, documentID, sourceSHA256 string) (*models.DocumentVersion, error) {
	const q = `
		SELECT id, document_id, source_uri, source_sha256, published_at, parsed_at,
		       parse_quality_score, quality_flags, page_count, created_at
		FROM document_versions
		WHERE document_id = $1 AND source_sha256 = $2
	`
	var (
		v     models.DocumentVersion
		flags []byte
	)
	err := c.db.QueryRowContext(ctx, q, documentID, sourceSHA256).Scan(
		&v.ID, &v.DocumentID, &v.SourceURI, &v.SourceSHA256, &v.PublishedAt, &v.ParsedAt,
		&v.ParseQualityScore, &flags, &v.PageCount, &v.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &v.QualityFlags); err != nil {
			return nil, fmt.Errorf("decode quality flags: %w", err)
		}
	}
	return &v, nil
}

func (c *DatabaseClient) CreateVersion(ctx context.Context, v *models.DocumentVersion) error {
	if v == nil {
		return errors.New("nil version")
	}
	const q = `
		INSERT INTO document_versions (id, document_id, source_uri, source_sha256, published_at, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`
	_, err := c.db.ExecContext(ctx, q, v.ID, v.DocumentID, v.SourceURI, v.SourceSHA256, v.PublishedAt)
	return err
}

func (c *DatabaseClient) SetVersionParseResult(ctx context.Context, versionID string, score float64, flags []string, pageCount int, parsedAt time.Time) error {
	if flags == nil {
		flags = []string{}
	}
	encoded, err := json.Marshal(flags)
	if err != nil {
		return err
	}
	const q = `
		UPDATE document_versions
		SET parse_quality_score = $2, quality_flags = $3, page_count = $4, parsed_at = $5
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, versionID, score, encoded, pageCount, parsedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("version not found: %s", versionID)
	}
	return nil
}

// InsertChunks writes chunk rows in one transaction, skipping any whose
// (doc_version_id, hash) already exists so a partially completed job can
// re-run safely. Returns the ids actually inserted.
func (c *DatabaseClient) InsertChunks(ctx context.Context, chunks []models.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}

	const q = `
		INSERT INTO chunks (id, doc_version_id, section_path, page_start, page_end, kind, text, token_count, meta, hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (doc_version_id, hash) DO NOTHING
		RETURNING id
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	defer stmt.Close()

	var inserted []string
	for i := range chunks {
		ch := &chunks[i]
		meta, err := json.Marshal(ch.Meta)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		var id string
		err = stmt.QueryRowContext(ctx,
			ch.ID, ch.DocVersionID, ch.SectionPath, ch.PageStart, ch.PageEnd,
			ch.Kind, ch.Text, ch.TokenCount, meta, ch.Hash,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			continue // duplicate hash within the version
		}
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		inserted = append(inserted, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return inserted, nil
}

func (c *DatabaseClient) InsertTables(ctx context.Context, tables []models.Table) error {
	if len(tables) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO tables (id, chunk_id, doc_version_id, page, path, nrows, ncols, cells)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (chunk_id) DO NOTHING
	`
	for i := range tables {
		t := &tables[i]
		cells, err := json.Marshal(t.Cells)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, q, t.ID, t.ChunkID, t.DocVersionID, t.Page, t.Path, t.NRows, t.NCols, cells); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) UpsertFile(ctx context.Context, f *models.File) error {
	if f == nil {
		return errors.New("nil file")
	}
	const q = `
		INSERT INTO files (doc_version_id, bucket, storage_key, byte_size, mime_type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (doc_version_id) DO UPDATE SET
			bucket = EXCLUDED.bucket,
			storage_key = EXCLUDED.storage_key,
			byte_size = EXCLUDED.byte_size,
			mime_type = EXCLUDED.mime_type
	`
	_, err := c.db.ExecContext(ctx, q, f.DocVersionID, f.Bucket, f.StorageKey, f.ByteSize, f.MimeType)
	return err
}

func (c *DatabaseClient) GetFileByVersionID(ctx context.Context, versionID string) (*models.File, error) {
	const q = `
		SELECT doc_version_id, bucket, storage_key, byte_size, mime_type
		FROM files WHERE doc_version_id = $1
	`
	var f models.File
	err := c.db.QueryRowContext(ctx, q, versionID).Scan(
		&f.DocVersionID, &f.Bucket, &f.StorageKey, &f.ByteSize, &f.MimeType,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}
