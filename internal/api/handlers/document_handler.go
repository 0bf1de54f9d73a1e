package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tayler-id/lab-agent-rag/internal/config"
	"github.com/tayler-id/lab-agent-rag/internal/core"
	"github.com/tayler-id/lab-agent-rag/internal/core/hash"
	"github.com/tayler-id/lab-agent-rag/internal/models"
)

const (
	maxUploadBytes    = 64 << 20
	downloadURLExpiry = 15 * time.Minute
)

// DocumentStore is the slice of the store these handlers need.
type DocumentStore interface {
	EnqueueJob(ctx context.Context, job *models.IngestionJob) error
	GetJob(ctx context.Context, id string) (*models.IngestionJob, error)
	ResubmitJob(ctx context.Context, jobID string) error
	GetFileByVersionID(ctx context.Context, versionID string) (*models.File, error)
}

type DocumentHandler struct {
	store        DocumentStore
	objectclient core.ObjectClient
	cfg          *config.Config
}

func NewDocumentHandler(store DocumentStore, objectclient core.ObjectClient, cfg *config.Config) *DocumentHandler {
	return &DocumentHandler{store: store, objectclient: objectclient, cfg: cfg}
}

// UploadDocument accepts a multipart upload, stages the bytes in object
// storage, and enqueues an ingestion job. The response is the job record;
// parsing and embedding happen asynchronously.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	tenantID := r.FormValue("tenant_id")
	if tenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read file failed", http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		http.Error(w, "empty file", http.StatusBadRequest)
		return
	}

	title := r.FormValue("title")
	cleanFilename := filepath.Base(header.Filename)
	if title == "" {
		title = cleanFilename
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Key the object by content fingerprint so byte-identical re-uploads
	// land on the same key instead of piling up copies.
	fingerprint := hash.File(data)
	s3Key := fmt.Sprintf("%s/%s/%s", tenantID, fingerprint, cleanFilename)

	uploadCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	if _, err := h.objectclient.Put(uploadCtx, h.cfg.BucketName, s3Key, data, contentType); err != nil {
		http.Error(w, fmt.Sprintf("upload failed: %v", err), http.StatusInternalServerError)
		return
	}

	job := &models.IngestionJob{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Payload: models.JobPayload{
			StorageKey:  s3Key,
			FileName:    cleanFilename,
			MimeType:    contentType,
			Title:       title,
			Vendor:      r.FormValue("vendor"),
			Model:       r.FormValue("model"),
			DocType:     r.FormValue("doc_type"),
			PublishedAt: r.FormValue("published_at"),
		},
		Status: models.JobPending,
	}

	if err := h.store.EnqueueJob(uploadCtx, job); err != nil {
		log.Error().Err(err).Str("tenant", tenantID).Msg("enqueue job failed")
		http.Error(w, "failed to enqueue ingestion job", http.StatusInternalServerError)
		return
	}

	log.Info().Str("job", job.ID).Str("tenant", tenantID).Str("key", s3Key).Msg("document staged for ingestion")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(job)
}

// GetJob reports the status of an ingestion job.
func (h *DocumentHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(jobID); err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if job == nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(job)
}

// GetDocFile returns a time-limited download link for a version's stored
// source file.
func (h *DocumentHandler) GetDocFile(w http.ResponseWriter, r *http.Request) {
	versionID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(versionID); err != nil {
		http.Error(w, "invalid document version id", http.StatusBadRequest)
		return
	}

	f, err := h.store.GetFileByVersionID(r.Context(), versionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if f == nil {
		http.Error(w, "no stored file for this version", http.StatusNotFound)
		return
	}

	url, err := h.objectclient.PresignGet(r.Context(), f.Bucket, f.StorageKey, downloadURLExpiry)
	if err != nil {
		log.Error().Err(err).Str("version", versionID).Msg("presign download link failed")
		http.Error(w, "failed to create download link", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"doc_version_id": f.DocVersionID,
		"download_url":   url,
		"mime_type":      f.MimeType,
		"byte_size":      f.ByteSize,
		"expires_in":     int(downloadURLExpiry.Seconds()),
	})
}

// ResubmitJob puts a terminal job back on the queue for another run.
func (h *DocumentHandler) ResubmitJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(jobID); err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	if err := h.store.ResubmitJob(r.Context(), jobID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
