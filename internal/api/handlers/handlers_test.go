package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tayler-id/lab-agent-rag/internal/config"
	"github.com/tayler-id/lab-agent-rag/internal/core"
	"github.com/tayler-id/lab-agent-rag/internal/core/retrieval"
	"github.com/tayler-id/lab-agent-rag/internal/models"
)

type stubSearcher struct {
	hits []core.LegHit
}

func (s *stubSearcher) SearchChunksLexical(ctx context.Context, tenantID, query string, filters models.SearchFilters, limit int) ([]core.LegHit, error) {
	return s.hits, nil
}

func (s *stubSearcher) SearchChunksSemantic(ctx context.Context, tenantID string, queryVec []float32, filters models.SearchFilters, limit int) ([]core.LegHit, error) {
	return s.hits, nil
}

type stubEmbedder struct{}

func (stubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (stubEmbedder) Dimensions() int { return 3 }

type stubDocStore struct {
	file *models.File
	job  *models.IngestionJob
}

func (s *stubDocStore) EnqueueJob(ctx context.Context, job *models.IngestionJob) error {
	s.job = job
	return nil
}

func (s *stubDocStore) GetJob(ctx context.Context, id string) (*models.IngestionJob, error) {
	return s.job, nil
}

func (s *stubDocStore) ResubmitJob(ctx context.Context, jobID string) error { return nil }

func (s *stubDocStore) GetFileByVersionID(ctx context.Context, versionID string) (*models.File, error) {
	return s.file, nil
}

type stubObject struct{}

func (stubObject) Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	return key, nil
}

func (stubObject) Get(ctx context.Context, bucket, key string) ([]byte, error) { return nil, nil }

func (stubObject) Delete(ctx context.Context, bucket, key string) error { return nil }

func (stubObject) PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	return "https://" + bucket + ".signed.example.test/" + key, nil
}

func newTestAskHandler(hits []core.LegHit) *AskHandler {
	cfg := retrieval.DefaultRetrievalConfig()
	cfg.RerankEnabled = false
	return NewAskHandler(retrieval.NewHybridRetriever(&stubSearcher{hits: hits}, stubEmbedder{}, nil, cfg))
}

func TestAskRejectsMissingTenant(t *testing.T) {
	h := newTestAskHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"query":"rotor speed"}`))
	rec := httptest.NewRecorder()
	h.Ask(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAskRejectsEmptyQuery(t *testing.T) {
	h := newTestAskHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"tenant_id":"t1","query":"   "}`))
	rec := httptest.NewRecorder()
	h.Ask(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAskReturnsRankedResults(t *testing.T) {
	h := newTestAskHandler([]core.LegHit{{
		ChunkID:    "c1",
		DocumentID: "d1",
		VersionID:  "v1",
		Title:      "Centrifuge X200 Manual",
		Text:       "WARNING: do not exceed 4000 rpm.",
		Kind:       models.KindWarning,
		PageStart:  5,
		Score:      1.0,
	}})

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"tenant_id":"t1","query":"max rpm"}`))
	rec := httptest.NewRecorder()
	h.Ask(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp retrieval.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "c1", resp.Results[0].ChunkID)
	assert.True(t, resp.Results[0].SafetyFlag)
	assert.True(t, resp.Legs.Lexical)
	assert.True(t, resp.Legs.Semantic)
}

func TestAskHonorsRequestTopK(t *testing.T) {
	h := newTestAskHandler([]core.LegHit{
		{ChunkID: "c1", Text: "one", Score: 3.0},
		{ChunkID: "c2", Text: "two", Score: 2.0},
		{ChunkID: "c3", Text: "three", Score: 1.0},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"tenant_id":"t1","query":"q","top_k":1}`))
	rec := httptest.NewRecorder()
	h.Ask(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp retrieval.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "c1", resp.Results[0].ChunkID)
}

func TestAskRejectsNegativeTopK(t *testing.T) {
	h := newTestAskHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"tenant_id":"t1","query":"q","top_k":-3}`))
	rec := httptest.NewRecorder()
	h.Ask(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDocFileReturnsDownloadLink(t *testing.T) {
	versionID := uuid.NewString()
	store := &stubDocStore{file: &models.File{
		DocVersionID: versionID,
		Bucket:       "docs",
		StorageKey:   "t1/abc/manual.pdf",
		ByteSize:     1234,
		MimeType:     "application/pdf",
	}}
	h := NewDocumentHandler(store, stubObject{}, &config.Config{BucketName: "docs"})

	r := chi.NewRouter()
	r.Get("/api/docs/{id}", h.GetDocFile)

	req := httptest.NewRequest(http.MethodGet, "/api/docs/"+versionID, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, versionID, resp["doc_version_id"])
	assert.Equal(t, "https://docs.signed.example.test/t1/abc/manual.pdf", resp["download_url"])
	assert.Equal(t, "application/pdf", resp["mime_type"])
}

func TestGetDocFileNotFound(t *testing.T) {
	h := NewDocumentHandler(&stubDocStore{}, stubObject{}, &config.Config{})

	r := chi.NewRouter()
	r.Get("/api/docs/{id}", h.GetDocFile)

	req := httptest.NewRequest(http.MethodGet, "/api/docs/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadRejectsMissingTenant(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "manual.pdf")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("%PDF-1.4 fake"))
	require.NoError(t, mw.Close())

	h := NewDocumentHandler(nil, nil, &config.Config{BucketName: "test"})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.UploadDocument(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "tenant_id")
}

func TestUploadRejectsMissingFile(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("tenant_id", "t1"))
	require.NoError(t, mw.Close())

	h := NewDocumentHandler(nil, nil, &config.Config{BucketName: "test"})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.UploadDocument(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJobRejectsMalformedID(t *testing.T) {
	h := NewDocumentHandler(nil, nil, &config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	h.GetJob(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
