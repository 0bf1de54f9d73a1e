package retrieval

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tayler-id/lab-agent-rag/internal/core"
	"github.com/tayler-id/lab-agent-rag/internal/models"
)

// RetrievalConfig tunes the hybrid search.
type RetrievalConfig struct {
	LexicalWeight  float64
	SemanticWeight float64
	TopK           int
	RerankTopN     int
	RerankEnabled  bool
	LegTimeout     time.Duration
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		LexicalWeight:  0.5,
		SemanticWeight: 0.5,
		TopK:           25,
		RerankTopN:     8,
		RerankEnabled:  true,
		LegTimeout:     3 * time.Second,
	}
}

// LegStatus reports which retrieval legs contributed to a response.
type LegStatus struct {
	Lexical  bool `json:"lexical"`
	Semantic bool `json:"semantic"`
}

// FusionWeights are the weights actually applied, after any degraded-mode
// renormalization.
type FusionWeights struct {
	Lexical  float64 `json:"lexical"`
	Semantic float64 `json:"semantic"`
}

// SearchResponse is the ranked answer set plus enough telemetry for the
// caller to judge how it was produced.
type SearchResponse struct {
	Results  []models.RankedResult `json:"results"`
	Legs     LegStatus             `json:"legs"`
	Weights  FusionWeights         `json:"weights"`
	Reranked bool                  `json:"reranked"`
}

var safetyRe = regexp.MustCompile(`(?i)\b(warning|caution|danger)\b`)

// Searcher is the slice of the store the retriever needs.
type Searcher interface {
	SearchChunksLexical(ctx context.Context, tenantID, query string, filters models.SearchFilters, limit int) ([]core.LegHit, error)
	SearchChunksSemantic(ctx context.Context, tenantID string, queryVec []float32, filters models.SearchFilters, limit int) ([]core.LegHit, error)
}

// HybridRetriever fuses a full-text leg and a vector leg over the same
// chunk corpus. Either leg may fail independently; only both failing is
// an error.
type HybridRetriever struct {
	store    Searcher
	embedder core.EmbeddingProvider
	reranker core.Reranker
	cfg      RetrievalConfig
}

// NewHybridRetriever builds a retriever. reranker may be nil to disable
// the LLM rerank stage regardless of config.
func NewHybridRetriever(store Searcher, embedder core.EmbeddingProvider, reranker core.Reranker, cfg RetrievalConfig) *HybridRetriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 25
	}
	if cfg.LegTimeout <= 0 {
		cfg.LegTimeout = 3 * time.Second
	}
	if cfg.LexicalWeight <= 0 && cfg.SemanticWeight <= 0 {
		cfg.LexicalWeight, cfg.SemanticWeight = 0.5, 0.5
	}
	return &HybridRetriever{store: store, embedder: embedder, reranker: reranker, cfg: cfg}
}

// MaxTopK caps any per-request result count.
const MaxTopK = 50

// Ask runs both legs in parallel, min-max normalizes each leg's scores,
// fuses by weighted sum, and optionally reranks the head of the list.
// topK overrides the configured result count for this query when positive;
// values above MaxTopK are clamped.
func (r *HybridRetriever) Ask(ctx context.Context, tenantID, query string, filters models.SearchFilters, topK int) (*SearchResponse, error) {
	var (
		lexHits, semHits []core.LegHit
		lexErr, semErr   error
	)

	k := r.cfg.TopK
	if topK > 0 {
		k = topK
	}
	if k > MaxTopK {
		k = MaxTopK
	}

	// Fetch more than topK per leg so fusion has overlap to work with.
	legLimit := k * 2

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		legCtx, cancel := context.WithTimeout(gctx, r.cfg.LegTimeout)
		defer cancel()
		lexHits, lexErr = r.store.SearchChunksLexical(legCtx, tenantID, query, filters, legLimit)
		return nil
	})
	g.Go(func() error {
		legCtx, cancel := context.WithTimeout(gctx, r.cfg.LegTimeout)
		defer cancel()
		vecs, err := r.embedder.EmbedTexts(legCtx, []string{query})
		if err != nil {
			semErr = err
			return nil
		}
		if len(vecs) == 0 {
			semErr = errors.New("embedder returned no vector for query")
			return nil
		}
		semHits, semErr = r.store.SearchChunksSemantic(legCtx, tenantID, vecs[0], filters, legLimit)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lexErr != nil && semErr != nil {
		log.Error().Err(lexErr).AnErr("semantic", semErr).Msg("both retrieval legs failed")
		return nil, core.ErrBothLegsFailed
	}
	if lexErr != nil {
		log.Warn().Err(lexErr).Msg("lexical leg failed, degraded to semantic only")
	}
	if semErr != nil {
		log.Warn().Err(semErr).Msg("semantic leg failed, degraded to lexical only")
	}

	legs := LegStatus{Lexical: lexErr == nil, Semantic: semErr == nil}
	weights := r.appliedWeights(legs)
	results := fuse(lexHits, semHits, weights, k)

	reranked := false
	if r.cfg.RerankEnabled && r.reranker != nil && len(results) > 1 {
		results, reranked = r.rerank(ctx, query, results)
	}

	for i := range results {
		results[i].SafetyFlag = results[i].Kind == models.KindWarning || safetyRe.MatchString(results[i].Text)
	}

	return &SearchResponse{Results: results, Legs: legs, Weights: weights, Reranked: reranked}, nil
}

// appliedWeights renormalizes so the surviving legs always sum to 1.
func (r *HybridRetriever) appliedWeights(legs LegStatus) FusionWeights {
	lw, sw := r.cfg.LexicalWeight, r.cfg.SemanticWeight
	if !legs.Lexical {
		lw = 0
	}
	if !legs.Semantic {
		sw = 0
	}
	total := lw + sw
	if total == 0 {
		return FusionWeights{}
	}
	return FusionWeights{Lexical: lw / total, Semantic: sw / total}
}

// rerank asks the LLM to reorder the head of the fused list. Any rerank
// failure falls back to the fused order.
func (r *HybridRetriever) rerank(ctx context.Context, query string, results []models.RankedResult) ([]models.RankedResult, bool) {
	n := r.cfg.RerankTopN
	if n <= 0 || n > len(results) {
		n = len(results)
	}
	texts := make([]string, n)
	for i := 0; i < n; i++ {
		texts[i] = results[i].Text
	}
	order, err := r.reranker.Rerank(ctx, query, texts, n)
	if err != nil || len(order) == 0 {
		log.Warn().Err(err).Msg("rerank failed, keeping fused order")
		return results, false
	}
	head := make([]models.RankedResult, 0, n)
	seen := make(map[int]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			continue
		}
		seen[idx] = true
		head = append(head, results[idx])
	}
	// Candidates the model omitted keep their fused order below the head.
	for i := 0; i < n; i++ {
		if !seen[i] {
			head = append(head, results[i])
		}
	}
	return append(head, results[n:]...), true
}

type fusedHit struct {
	hit   core.LegHit
	score float64
}

func fuse(lexHits, semHits []core.LegHit, w FusionWeights, topK int) []models.RankedResult {
	byChunk := make(map[string]*fusedHit)

	accumulate := func(hits []core.LegHit, weight float64) {
		scores := normalize(hits)
		for i, h := range hits {
			f, ok := byChunk[h.ChunkID]
			if !ok {
				f = &fusedHit{hit: h}
				byChunk[h.ChunkID] = f
			}
			f.score += weight * scores[i]
		}
	}
	accumulate(lexHits, w.Lexical)
	accumulate(semHits, w.Semantic)

	fusedList := make([]*fusedHit, 0, len(byChunk))
	for _, f := range byChunk {
		fusedList = append(fusedList, f)
	}
	sort.Slice(fusedList, func(i, j int) bool {
		a, b := fusedList[i], fusedList[j]
		if a.score != b.score {
			return a.score > b.score
		}
		// Ties: prefer the freshest version, then stable id order.
		if !a.hit.VersionCreatedAt.Equal(b.hit.VersionCreatedAt) {
			return a.hit.VersionCreatedAt.After(b.hit.VersionCreatedAt)
		}
		return a.hit.ChunkID < b.hit.ChunkID
	})
	if len(fusedList) > topK {
		fusedList = fusedList[:topK]
	}

	out := make([]models.RankedResult, len(fusedList))
	for i, f := range fusedList {
		out[i] = models.RankedResult{
			ChunkID:     f.hit.ChunkID,
			DocumentID:  f.hit.DocumentID,
			VersionID:   f.hit.VersionID,
			Title:       f.hit.Title,
			SectionPath: f.hit.SectionPath,
			Text:        f.hit.Text,
			PageStart:   f.hit.PageStart,
			Kind:        f.hit.Kind,
			Score:       f.score,
		}
	}
	return out
}

// normalize maps one leg's raw scores onto [0,1] with min-max scaling so
// ts_rank and cosine similarity become comparable. A leg whose scores
// are all equal contributes 1 for every hit.
func normalize(hits []core.LegHit) []float64 {
	if len(hits) == 0 {
		return nil
	}
	lo, hi := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < lo {
			lo = h.Score
		}
		if h.Score > hi {
			hi = h.Score
		}
	}
	out := make([]float64, len(hits))
	if hi == lo {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, h := range hits {
		out[i] = (h.Score - lo) / (hi - lo)
	}
	return out
}
