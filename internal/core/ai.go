package core

import "context"

// EmbeddingProvider turns texts into fixed-dimension vectors. Implementations
// batch internally and must be deterministic for identical input.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Reranker reorders fused candidates with a more expensive relevance model.
// Implementations return the input slice reordered and truncated to topN.
// Rerank is a quality enhancement: callers fall back to the fused order on
// any error.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []string, topN int) ([]int, error)
}
