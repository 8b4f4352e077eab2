package api

import (
	"net/http"

	"github.com/sentinelwatch/sentinelwatch/internal/domain/cost"
)

// handleListPricing returns the full rate card the recorder prices
// cost records against.
func (s *Server) handleListPricing(w http.ResponseWriter, r *http.Request) {
	rows, err := s.costs.ListPricing(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "failed to list pricing", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pricing": rows})
}

// handlePutPricing creates or replaces one model's per-million-token
// rates, then forces the recorder's pricing cache to pick it up
// immediately instead of waiting out its TTL.
func (s *Server) handlePutPricing(w http.ResponseWriter, r *http.Request) {
	var p cost.Pricing
	if err := readJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "could not decode request body", err.Error())
		return
	}
	if p.Provider == "" || p.ModelID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "provider and model_id are required", "")
		return
	}

	if err := s.costs.UpsertPricing(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "failed to upsert pricing", err.Error())
		return
	}
	if s.recorder != nil {
		s.recorder.RefreshPricingCache(r.Context())
	}
	writeJSON(w, http.StatusOK, p)
}

// handleDeletePricing removes a model's rate card entry.
func (s *Server) handleDeletePricing(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	model := r.PathValue("model")
	if err := s.costs.DeletePricing(r.Context(), provider, model); err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "failed to delete pricing", err.Error())
		return
	}
	if s.recorder != nil {
		s.recorder.RefreshPricingCache(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
