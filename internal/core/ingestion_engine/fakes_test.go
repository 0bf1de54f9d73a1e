package ingestion_engine

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tayler-id/lab-agent-rag/internal/core"
	"github.com/tayler-id/lab-agent-rag/internal/core/hash"
	"github.com/tayler-id/lab-agent-rag/internal/models"
)

// fakeStore is an in-memory core.Store good enough to exercise the
// orchestrator's state machine and dedupe rules.
type fakeStore struct {
	mu         sync.Mutex
	documents  map[string]*models.Document
	versions   map[string]*models.DocumentVersion
	chunks     map[string]*models.Chunk
	tables     map[string]*models.Table
	embeddings map[string][]float32
	files      map[string]*models.File
	jobs       map[string]*models.IngestionJob
	order      []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		documents:  map[string]*models.Document{},
		versions:   map[string]*models.DocumentVersion{},
		chunks:     map[string]*models.Chunk{},
		tables:     map[string]*models.Table{},
		embeddings: map[string][]float32{},
		files:      map[string]*models.File{},
		jobs:       map[string]*models.IngestionJob{},
	}
}

func (s *fakeStore) UpsertDocument(_ context.Context, doc *models.Document) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.documents {
		if d.TenantID == doc.TenantID && d.Title == doc.Title {
			return d, nil
		}
	}
	cp := *doc
	cp.CreatedAt = time.Now()
	s.documents[cp.ID] = &cp
	return &cp, nil
}

func (s *fakeStore) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documents[id], nil
}

func (s *fakeStore) FindVersionByHash(_ context.Context, docID, sha string) (*models.DocumentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.versions {
		if v.DocumentID == docID && v.SourceSHA256 == sha {
			return v, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreateVersion(_ context.Context, v *models.DocumentVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.versions[cp.ID] = &cp
	return nil
}

func (s *fakeStore) SetVersionParseResult(_ context.Context, versionID string, score float64, flags []string, pageCount int, parsedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.versions[versionID]
	v.ParseQualityScore = &score
	v.QualityFlags = flags
	v.PageCount = pageCount
	v.ParsedAt = &parsedAt
	return nil
}

func (s *fakeStore) InsertChunks(_ context.Context, chunks []models.Chunk) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var inserted []string
	for _, ch := range chunks {
		dup := false
		for _, have := range s.chunks {
			if have.DocVersionID == ch.DocVersionID && have.Hash == ch.Hash {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		cp := ch
		s.chunks[cp.ID] = &cp
		s.order = append(s.order, cp.ID)
		inserted = append(inserted, cp.ID)
	}
	return inserted, nil
}

func (s *fakeStore) InsertTables(_ context.Context, tables []models.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tables {
		cp := t
		s.tables[cp.ID] = &cp
	}
	return nil
}

func (s *fakeStore) InsertEmbeddings(_ context.Context, chunkIDs []string, vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, id := range chunkIDs {
		s.embeddings[id] = vectors[k]
	}
	return nil
}

func (s *fakeStore) ListChunksMissingEmbeddings(_ context.Context, versionID string) ([]models.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Chunk
	for _, id := range s.order {
		ch := s.chunks[id]
		if ch.DocVersionID != versionID {
			continue
		}
		if _, ok := s.embeddings[ch.ID]; !ok {
			out = append(out, *ch)
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertFile(_ context.Context, f *models.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *f
	s.files[cp.DocVersionID] = &cp
	return nil
}

func (s *fakeStore) GetFileByVersionID(_ context.Context, versionID string) (*models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.files[versionID]
	if f == nil {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}

func (s *fakeStore) EnqueueJob(_ context.Context, job *models.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.Status = models.JobPending
	cp.CreatedAt = time.Now()
	s.jobs[cp.ID] = &cp
	return nil
}

func (s *fakeStore) GetJob(_ context.Context, id string) (*models.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id], nil
}

func (s *fakeStore) ClaimNextJob(_ context.Context, owner string, lease time.Duration) (*models.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, j := range s.jobs {
		claimable := j.Status == models.JobPending ||
			(j.Status == models.JobRetrying && !j.RunAfter.After(now)) ||
			(j.Status == models.JobProcessing && j.LeaseExpiresAt != nil && j.LeaseExpiresAt.Before(now))
		if !claimable {
			continue
		}
		j.Status = models.JobProcessing
		j.LeaseOwner = owner
		exp := now.Add(lease)
		j.LeaseExpiresAt = &exp
		cp := *j
		return &cp, nil
	}
	return nil, nil
}

func (s *fakeStore) FinishJob(_ context.Context, jobID, owner, status, errMsg string, payload models.JobPayload, runAfter time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[jobID]
	if j == nil || j.LeaseOwner != owner {
		return core.ErrJobNotClaimed
	}
	j.Status = status
	j.ErrorMsg = errMsg
	j.Payload = payload
	j.RunAfter = runAfter
	j.LeaseOwner = ""
	j.LeaseExpiresAt = nil
	return nil
}

func (s *fakeStore) ResubmitJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[jobID]
	j.Status = models.JobPending
	j.Payload.Attempt++
	return nil
}

func (s *fakeStore) SearchChunksLexical(context.Context, string, string, models.SearchFilters, int) ([]core.LegHit, error) {
	return nil, nil
}

func (s *fakeStore) SearchChunksSemantic(context.Context, string, []float32, models.SearchFilters, int) ([]core.LegHit, error) {
	return nil, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) chunksForVersion(versionID string) []*models.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Chunk
	for _, id := range s.order {
		if s.chunks[id].DocVersionID == versionID {
			out = append(out, s.chunks[id])
		}
	}
	return out
}

// fakeObject serves fixed bytes for any key.
type fakeObject struct {
	data map[string][]byte
}

func (o *fakeObject) Put(_ context.Context, _, key string, data []byte, _ string) (string, error) {
	o.data[key] = data
	return key, nil
}

func (o *fakeObject) Get(_ context.Context, _, key string) ([]byte, error) {
	return o.data[key], nil
}

func (o *fakeObject) Delete(_ context.Context, _, key string) error {
	delete(o.data, key)
	return nil
}

func (o *fakeObject) PresignGet(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "https://" + bucket + ".example.test/" + key, nil
}

// fakeEmbedder is deterministic: the vector is derived from the text hash.
// failures counts down transient errors before it starts succeeding.
type fakeEmbedder struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (e *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.failures > 0 {
		e.failures--
		return nil, &core.EmbeddingError{Err: context.DeadlineExceeded}
	}
	out := make([][]float32, len(texts))
	for k, t := range texts {
		h := hash.Passage(t)
		vec := make([]float32, 4)
		for d := 0; d < 4; d++ {
			vec[d] = float32(binary.BigEndian.Uint16([]byte(h[d*2:d*2+2]))) / 65535
		}
		out[k] = vec
	}
	return out, nil
}

func (e *fakeEmbedder) Dimensions() int { return 4 }

// fakeParser returns a canned result or error.
type fakeParser struct {
	res *core.ParseResult
	err error
}

func (p *fakeParser) Parse(context.Context, []byte, string) (*core.ParseResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.res, nil
}
