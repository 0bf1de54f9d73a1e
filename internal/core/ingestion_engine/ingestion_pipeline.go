package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tayler-id/lab-agent-rag/internal/core"
	"github.com/tayler-id/lab-agent-rag/internal/core/hash"
	"github.com/tayler-id/lab-agent-rag/internal/core/quality"
	"github.com/tayler-id/lab-agent-rag/internal/models"
)

// DocumentIngestor claims jobs from the shared queue and drives each one
// through hash -> parse -> score -> chunk -> dedupe -> embed -> persist.
// Side effects become visible only at job state transitions; partial work
// is never rolled back because every step is idempotent under re-run.
type DocumentIngestor struct {
	store    core.Store
	obj      core.ObjectClient
	embedder core.EmbeddingProvider
	parser   core.DocumentParser
	chunker  *Chunker
	cfg      IngestConfig
	owner    string
}

func NewDocumentIngestor(store core.Store, obj core.ObjectClient, emb core.EmbeddingProvider, parser core.DocumentParser, cfg IngestConfig) *DocumentIngestor {
	return &DocumentIngestor{
		store:    store,
		obj:      obj,
		embedder: emb,
		parser:   parser,
		chunker:  NewChunker(cfg.TargetTokens, cfg.OverlapSentences),
		cfg:      cfg,
		owner:    uuid.NewString(),
	}
}

var _ Ingestor = (*DocumentIngestor)(nil)

// Start runs numWorkers claim-poll loops until ctx is cancelled.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				claimed, err := i.ProcessNext(ctx)
				if err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Int("worker", w).Msg("ingest worker iteration failed")
				}
				if claimed {
					continue
				}
				select {
				case <-ctx.Done():
					log.Debug().Int("worker", w).Msg("ingest worker shutting down")
					return
				case <-time.After(i.cfg.PollInterval):
				}
			}
		}(w)
	}
}

// ProcessNext claims one job and processes it. Processing errors are
// recorded on the job row and never returned past the worker boundary;
// only claim/infrastructure errors surface here.
func (i *DocumentIngestor) ProcessNext(ctx context.Context) (bool, error) {
	job, err := i.store.ClaimNextJob(ctx, i.owner, i.cfg.LeaseDuration)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	log.Info().Str("job", job.ID).Str("tenant", job.TenantID).Int("attempt", job.Payload.Attempt).Msg("processing ingestion job")
	i.processOne(ctx, job)
	return true, nil
}

func (i *DocumentIngestor) processOne(ctx context.Context, job *models.IngestionJob) {
	payload := job.Payload

	fail := func(msg string, err error) {
		detail := fmt.Sprintf("%s: %v", msg, err)
		payload.LastError = detail
		log.Error().Err(err).Str("job", job.ID).Msg(msg)
		i.finish(ctx, job, models.JobFailed, detail, payload, time.Time{})
	}

	data, err := i.obj.Get(ctx, i.cfg.Bucket, payload.StorageKey)
	if err != nil {
		// Storage reads are transient territory; retry like embedding.
		i.retryOrFail(ctx, job, payload, fmt.Errorf("fetch source: %w", err))
		return
	}

	fingerprint := hash.File(data)
	resumed := payload.SourceHash == fingerprint
	payload.SourceHash = fingerprint

	title := payload.Title
	if title == "" {
		title = payload.FileName
	}
	doc, err := i.store.UpsertDocument(ctx, &models.Document{
		ID:       uuid.NewString(),
		TenantID: job.TenantID,
		Title:    title,
		Vendor:   payload.Vendor,
		Model:    payload.Model,
		DocType:  payload.DocType,
	})
	if err != nil {
		i.retryOrFail(ctx, job, payload, fmt.Errorf("upsert document: %w", err))
		return
	}

	version, err := i.store.FindVersionByHash(ctx, doc.ID, fingerprint)
	if err != nil {
		i.retryOrFail(ctx, job, payload, fmt.Errorf("lookup version: %w", err))
		return
	}
	if version != nil && !resumed {
		// Byte-identical re-upload: idempotent no-op success.
		log.Info().Str("job", job.ID).Str("version", version.ID).Msg("duplicate source hash, skipping re-ingestion")
		i.finish(ctx, job, models.JobDone, "", payload, time.Time{})
		return
	}
	if version == nil {
		version = &models.DocumentVersion{
			ID:           uuid.NewString(),
			DocumentID:   doc.ID,
			SourceURI:    payload.StorageKey,
			SourceSHA256: fingerprint,
			PublishedAt:  parseDate(payload.PublishedAt),
		}
		if err := i.store.CreateVersion(ctx, version); err != nil {
			i.retryOrFail(ctx, job, payload, fmt.Errorf("create version: %w", err))
			return
		}
	}

	res, err := i.parser.Parse(ctx, data, payload.MimeType)
	if err != nil {
		var perr *core.ParseError
		if errors.As(err, &perr) {
			// A structurally bad file will not parse differently on retry.
			fail("parse failed", err)
			return
		}
		i.retryOrFail(ctx, job, payload, fmt.Errorf("parse: %w", err))
		return
	}

	score, flags := quality.Score(res)

	chunks, tableRecs := i.chunker.Chunk(version.ID, res.Blocks)
	if len(chunks) == 0 {
		flags = append(flags, "empty")
	}

	insertedIDs, err := i.store.InsertChunks(ctx, chunks)
	if err != nil {
		i.retryOrFail(ctx, job, payload, fmt.Errorf("insert chunks: %w", err))
		return
	}
	if len(tableRecs) > 0 {
		inserted := make(map[string]bool, len(insertedIDs))
		for _, id := range insertedIDs {
			inserted[id] = true
		}
		keep := tableRecs[:0]
		for _, tr := range tableRecs {
			if inserted[tr.ChunkID] {
				keep = append(keep, tr)
			}
		}
		if err := i.store.InsertTables(ctx, keep); err != nil {
			i.retryOrFail(ctx, job, payload, fmt.Errorf("insert tables: %w", err))
			return
		}
	}

	if err := i.store.UpsertFile(ctx, &models.File{
		DocVersionID: version.ID,
		Bucket:       i.cfg.Bucket,
		StorageKey:   payload.StorageKey,
		ByteSize:     int64(len(data)),
		MimeType:     payload.MimeType,
	}); err != nil {
		i.retryOrFail(ctx, job, payload, fmt.Errorf("upsert file: %w", err))
		return
	}

	if err := i.store.SetVersionParseResult(ctx, version.ID, score, flags, res.PageCount, time.Now().UTC()); err != nil {
		i.retryOrFail(ctx, job, payload, fmt.Errorf("record parse result: %w", err))
		return
	}

	if err := i.embedMissing(ctx, version.ID); err != nil {
		var eerr *core.EmbeddingError
		if errors.As(err, &eerr) {
			i.retryOrFail(ctx, job, payload, err)
			return
		}
		i.retryOrFail(ctx, job, payload, fmt.Errorf("persist embeddings: %w", err))
		return
	}

	terminal := models.JobDone
	if score < i.cfg.QualityThreshold {
		// Low-confidence parses stay fully searchable; the version is just
		// annotated so consumers can warn users.
		terminal = models.JobNeedsReview
	}
	log.Info().
		Str("job", job.ID).
		Str("version", version.ID).
		Float64("quality", score).
		Int("chunks", len(chunks)).
		Str("status", terminal).
		Msg("ingestion complete")
	i.finish(ctx, job, terminal, "", payload, time.Time{})
}

// embedMissing embeds every chunk of the version that has no embedding yet,
// in bounded concurrent batches. Covers both fresh chunks and those left
// over from a previously interrupted attempt.
func (i *DocumentIngestor) embedMissing(ctx context.Context, versionID string) error {
	pending, err := i.store.ListChunksMissingEmbeddings(ctx, versionID)
	if err != nil {
		return fmt.Errorf("list pending chunks: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.EmbedWorkers)

	for start := 0; start < len(pending); start += i.cfg.EmbedBatchSize {
		end := start + i.cfg.EmbedBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		g.Go(func() error {
			texts := make([]string, len(batch))
			ids := make([]string, len(batch))
			for k, ch := range batch {
				texts[k] = ch.Text
				ids[k] = ch.ID
			}
			vecs, err := i.embedder.EmbedTexts(gctx, texts)
			if err != nil {
				return err
			}
			if len(vecs) != len(batch) {
				return &core.EmbeddingError{Err: fmt.Errorf("size mismatch: got %d want %d", len(vecs), len(batch))}
			}
			return i.store.InsertEmbeddings(gctx, ids, vecs)
		})
	}
	return g.Wait()
}

// retryOrFail routes a transient failure to the retrying state with
// exponential backoff, or to failed once the attempt cap is reached.
func (i *DocumentIngestor) retryOrFail(ctx context.Context, job *models.IngestionJob, payload models.JobPayload, cause error) {
	payload.Attempt++
	payload.LastError = cause.Error()

	if payload.Attempt >= i.cfg.MaxAttempts {
		log.Error().Err(cause).Str("job", job.ID).Int("attempt", payload.Attempt).Msg("attempt cap reached")
		i.finish(ctx, job, models.JobFailed, cause.Error(), payload, time.Time{})
		return
	}

	backoff := i.cfg.RetryBackoff << uint(payload.Attempt-1)
	runAfter := time.Now().UTC().Add(backoff)
	log.Warn().Err(cause).Str("job", job.ID).Int("attempt", payload.Attempt).Dur("backoff", backoff).Msg("transient failure, scheduling retry")
	i.finish(ctx, job, models.JobRetrying, cause.Error(), payload, runAfter)
}

func (i *DocumentIngestor) finish(ctx context.Context, job *models.IngestionJob, status, errMsg string, payload models.JobPayload, runAfter time.Time) {
	if err := i.store.FinishJob(ctx, job.ID, i.owner, status, errMsg, payload, runAfter); err != nil {
		if errors.Is(err, core.ErrJobNotClaimed) {
			// Lease expired mid-run and another worker took over; our
			// partial writes are safe to abandon thanks to dedupe.
			log.Warn().Str("job", job.ID).Msg("lost job lease, abandoning transition")
			return
		}
		log.Error().Err(err).Str("job", job.ID).Str("status", status).Msg("failed to record job transition")
	}
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
