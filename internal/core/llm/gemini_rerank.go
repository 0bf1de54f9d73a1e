package llm

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/tayler-id/lab-agent-rag/internal/core"
)

// GeminiReranker reorders retrieval candidates by asking the generative
// model to rank passages against the query. It is a quality enhancement
// only: the retriever keeps its fused order whenever this fails.
type GeminiReranker struct {
	client    *genai.Client
	modelName string
}

func NewGeminiReranker(ctx context.Context, apiKey, modelName string) (*GeminiReranker, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiReranker{client: cl, modelName: modelName}, nil
}

func (g *GeminiReranker) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

const rerankSystemPrompt = "You rank document passages by relevance to a question. " +
	"Reply with the passage numbers only, most relevant first, comma separated. No other text."

// Rerank returns candidate indices in refined order, truncated to topN.
func (g *GeminiReranker) Rerank(ctx context.Context, query string, candidates []string, topN int) ([]int, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\n", query)
	for k, c := range candidates {
		fmt.Fprintf(&sb, "[%d] %s\n\n", k+1, c)
	}

	m := g.client.GenerativeModel(g.modelName)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(rerankSystemPrompt)},
	}

	resp, err := m.GenerateContent(ctx, genai.Text(sb.String()))
	if err != nil {
		return nil, fmt.Errorf("gemini rerank: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini rerank: empty response")
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}

	order, err := parseRanking(b.String(), len(candidates))
	if err != nil {
		return nil, err
	}
	if topN > 0 && len(order) > topN {
		order = order[:topN]
	}
	return order, nil
}

// parseRanking turns "3, 1, 2" into zero-based indices, dropping
// out-of-range or repeated entries.
func parseRanking(s string, n int) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '\n' || r == ' '
	})
	seen := make(map[int]bool, n)
	var order []int
	for _, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			continue
		}
		idx := v - 1
		if idx < 0 || idx >= n || seen[idx] {
			continue
		}
		seen[idx] = true
		order = append(order, idx)
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("rerank response contained no usable ranking: %q", s)
	}
	return order, nil
}

var _ core.Reranker = (*GeminiReranker)(nil)
