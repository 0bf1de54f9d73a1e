package models

import (
	"time"
)

// Document is the logical identity of a file across its revisions.
// (tenant_id, title) is unique; re-uploads with the same title attach
// new versions to the same document.
type Document struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	Title     string    `db:"title" json:"title"`
	Vendor    string    `db:"vendor" json:"vendor,omitempty"`
	Model     string    `db:"model" json:"model,omitempty"`
	DocType   string    `db:"doc_type" json:"doc_type,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentVersion is one immutable ingested snapshot of a document.
// (document_id, source_sha256) is unique: byte-identical re-uploads
// never create a new version.
type DocumentVersion struct {
	ID                string     `db:"id" json:"id"`
	DocumentID        string     `db:"document_id" json:"document_id"`
	SourceURI         string     `db:"source_uri" json:"source_uri"`
	SourceSHA256      string     `db:"source_sha256" json:"source_sha256"`
	PublishedAt       *time.Time `db:"published_at" json:"published_at,omitempty"`
	ParsedAt          *time.Time `db:"parsed_at" json:"parsed_at,omitempty"`
	ParseQualityScore *float64   `db:"parse_quality_score" json:"parse_quality_score,omitempty"`
	QualityFlags      []string   `db:"quality_flags" json:"quality_flags,omitempty"`
	PageCount         int        `db:"page_count" json:"page_count"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}

// Chunk kinds.
const (
	KindParagraph = "paragraph"
	KindTable     = "table"
	KindWarning   = "warning"
	KindProcedure = "procedure"
	KindFigure    = "figure"
)

// Chunk is a citation-addressable passage of text. Hash is computed over
// the normalized text and is unique per version; rows are write-once.
type Chunk struct {
	ID           string            `db:"id" json:"id"`
	DocVersionID string            `db:"doc_version_id" json:"doc_version_id"`
	SectionPath  string            `db:"section_path" json:"section_path"`
	PageStart    int               `db:"page_start" json:"page_start"`
	PageEnd      int               `db:"page_end" json:"page_end"`
	Kind         string            `db:"kind" json:"kind"`
	Text         string            `db:"text" json:"text"`
	TokenCount   int               `db:"token_count" json:"token_count"`
	Meta         map[string]string `db:"meta" json:"meta,omitempty"`
	Hash         string            `db:"hash" json:"hash"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
}

// Table holds the structured cells behind a chunk of kind "table".
type Table struct {
	ID           string     `db:"id" json:"id"`
	ChunkID      string     `db:"chunk_id" json:"chunk_id"`
	DocVersionID string     `db:"doc_version_id" json:"doc_version_id"`
	Page         int        `db:"page" json:"page"`
	Path         string     `db:"path" json:"path"`
	NRows        int        `db:"nrows" json:"nrows"`
	NCols        int        `db:"ncols" json:"ncols"`
	Cells        [][]string `db:"cells" json:"cells"`
}

// File records where a version's source bytes live in object storage.
type File struct {
	DocVersionID string `db:"doc_version_id" json:"doc_version_id"`
	Bucket       string `db:"bucket" json:"bucket"`
	StorageKey   string `db:"storage_key" json:"storage_key"`
	ByteSize     int64  `db:"byte_size" json:"byte_size"`
	MimeType     string `db:"mime_type" json:"mime_type"`
}

// Job statuses. Transitions are monotonic: a terminal status is only left
// via an explicit resubmit, which resets to pending and bumps the payload
// attempt counter. "retrying" becomes claimable again once RunAfter passes.
const (
	JobPending     = "pending"
	JobProcessing  = "processing"
	JobRetrying    = "retrying"
	JobDone        = "done"
	JobNeedsReview = "needs_review"
	JobFailed      = "failed"
)

// IngestionJob tracks one document-version's trip through the pipeline.
type IngestionJob struct {
	ID             string     `db:"id" json:"id"`
	TenantID       string     `db:"tenant_id" json:"tenant_id"`
	Payload        JobPayload `db:"payload" json:"payload"`
	Status         string     `db:"status" json:"status"`
	ErrorMsg       string     `db:"error_msg" json:"error_msg,omitempty"`
	RunAfter       time.Time  `db:"run_after" json:"run_after"`
	LeaseOwner     string     `db:"lease_owner" json:"-"`
	LeaseExpiresAt *time.Time `db:"lease_expires_at" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether a status permits no further transitions.
func Terminal(status string) bool {
	switch status {
	case JobDone, JobNeedsReview, JobFailed:
		return true
	}
	return false
}

// RankedResult is one fused search hit with its citation anchors.
type RankedResult struct {
	ChunkID     string  `json:"chunk_id"`
	DocumentID  string  `json:"document_id"`
	VersionID   string  `json:"version_id"`
	Title       string  `json:"title"`
	SectionPath string  `json:"section_path"`
	Text        string  `json:"text"`
	PageStart   int     `json:"page_start"`
	Kind        string  `json:"kind"`
	Score       float64 `json:"score"`
	SafetyFlag  bool    `json:"safety_flag"`
}

// SearchFilters narrows a query to matching document tags.
type SearchFilters struct {
	DocType string `json:"document_type,omitempty"`
	Vendor  string `json:"vendor,omitempty"`
}
