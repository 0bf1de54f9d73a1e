package core

import (
	"context"
	"time"

	"github.com/tayler-id/lab-agent-rag/internal/models"
)

// Store defines all persistence operations the pipeline and retriever need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific
// DB. Every query takes an explicit tenant id where tenant data is involved;
// there is no ambient identity.
type Store interface {
	UpsertDocument(ctx context.Context, doc *models.Document) (*models.Document, error)
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)

	FindVersionByHash(ctx context.Context, documentID, sourceSHA256 string) (*models.DocumentVersion, error)
	CreateVersion(ctx context.Context, v *models.DocumentVersion) error
	SetVersionParseResult(ctx context.Context, versionID string, score float64, flags []string, pageCount int, parsedAt time.Time) error

	// InsertChunks skips rows whose (doc_version_id, hash) already exists
	// and returns the ids actually inserted, in input order.
	InsertChunks(ctx context.Context, chunks []models.Chunk) ([]string, error)
	InsertTables(ctx context.Context, tables []models.Table) error
	InsertEmbeddings(ctx context.Context, chunkIDs []string, vectors [][]float32) error
	// ListChunksMissingEmbeddings returns the version's chunks that have no
	// embedding row yet: the work left for a resumed job. A chunk is not
	// searchable until its embedding exists.
	ListChunksMissingEmbeddings(ctx context.Context, versionID string) ([]models.Chunk, error)
	UpsertFile(ctx context.Context, f *models.File) error
	// GetFileByVersionID returns the stored-source record for a version,
	// or nil when the version has no file row yet.
	GetFileByVersionID(ctx context.Context, versionID string) (*models.File, error)

	EnqueueJob(ctx context.Context, job *models.IngestionJob) error
	GetJob(ctx context.Context, id string) (*models.IngestionJob, error)
	// ClaimNextJob atomically moves one claimable job (pending, due retrying,
	// or processing with an expired lease) to processing under the given
	// owner token. Returns nil when nothing is claimable.
	ClaimNextJob(ctx context.Context, owner string, lease time.Duration) (*models.IngestionJob, error)
	// FinishJob releases the lease and records a terminal (or retrying)
	// status. The update is conditional on still owning the lease.
	FinishJob(ctx context.Context, jobID, owner, status, errMsg string, payload models.JobPayload, runAfter time.Time) error
	ResubmitJob(ctx context.Context, jobID string) error

	// SearchChunksLexical ranks tenant-scoped chunks by full-text relevance.
	SearchChunksLexical(ctx context.Context, tenantID, query string, filters models.SearchFilters, limit int) ([]LegHit, error)
	// SearchChunksSemantic ranks tenant-scoped chunks by vector similarity
	// (score = 1 - cosine distance). Only chunks with an embedding row are
	// eligible; embedding existence is the readiness signal.
	SearchChunksSemantic(ctx context.Context, tenantID string, queryVec []float32, filters models.SearchFilters, limit int) ([]LegHit, error)

	Close() error
}

// LegHit is one candidate from a single retrieval leg, before fusion.
type LegHit struct {
	ChunkID          string
	DocumentID       string
	VersionID        string
	Title            string
	SectionPath      string
	Text             string
	PageStart        int
	Kind             string
	Score            float64
	VersionCreatedAt time.Time
}

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so AWS can be replaced with MinIO, GCP, etc. easily.
type ObjectClient interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
	// PresignGet returns a time-limited download URL for the object.
	PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}
