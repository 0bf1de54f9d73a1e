package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tayler-id/lab-agent-rag/internal/core"
	"github.com/tayler-id/lab-agent-rag/internal/core/retrieval"
	"github.com/tayler-id/lab-agent-rag/internal/models"
)

type AskHandler struct {
	retriever *retrieval.HybridRetriever
}

func NewAskHandler(retriever *retrieval.HybridRetriever) *AskHandler {
	return &AskHandler{retriever: retriever}
}

type askRequest struct {
	TenantID string               `json:"tenant_id"`
	Query    string               `json:"query"`
	Filters  models.SearchFilters `json:"filters"`
	// TopK optionally caps the result count for this query. Zero means
	// the configured default; the retriever clamps oversized values.
	TopK int `json:"top_k"`
}

// Ask runs hybrid retrieval over the tenant's ingested chunks.
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.TenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}
	if req.TopK < 0 {
		http.Error(w, "top_k must be positive", http.StatusBadRequest)
		return
	}

	resp, err := h.retriever.Ask(r.Context(), req.TenantID, req.Query, req.Filters, req.TopK)
	if err != nil {
		if errors.Is(err, core.ErrBothLegsFailed) {
			http.Error(w, "search is temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		log.Error().Err(err).Str("tenant", req.TenantID).Msg("ask failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
