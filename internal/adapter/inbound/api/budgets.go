package api

import (
	"net/http"

	"github.com/sentinelwatch/sentinelwatch/internal/domain/budget"
)

// handleListBudgets returns every configured budget scope (global and
// per-agent).
func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	scopes, err := s.budgets.ListScopes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "failed to list budget scopes", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"scopes": scopes})
}

// budgetScopeRequest is PUT /api/budgets/{scope}'s body.
type budgetScopeRequest struct {
	DailyLimitUSD        *float64     `json:"daily_limit_usd"`
	Action               budget.Action `json:"action"`
	WarnThresholdPercent int           `json:"warn_threshold_percent"`
}

// handlePutBudgetScope creates or replaces one scope's limit, action,
// and early-warning threshold. scope is "global" or "agent:<id>".
func (s *Server) handlePutBudgetScope(w http.ResponseWriter, r *http.Request) {
	scope := r.PathValue("scope")
	var req budgetScopeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "could not decode request body", err.Error())
		return
	}
	switch req.Action {
	case budget.ActionWarn, budget.ActionBlock:
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "action must be warn or block", "")
		return
	}
	if req.WarnThresholdPercent < 0 || req.WarnThresholdPercent > 100 {
		writeError(w, http.StatusBadRequest, "invalid_request", "warn_threshold_percent must be between 0 and 100", "")
		return
	}

	if err := s.budgets.UpsertScope(r.Context(), scope, req.DailyLimitUSD, req.Action, req.WarnThresholdPercent); err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "failed to upsert budget scope", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
