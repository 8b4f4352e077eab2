package api

import (
	"net/http"

	"github.com/sentinelwatch/sentinelwatch/internal/adapter/outbound/sqlstore"
)

type costsPage struct {
	Items      []sqlstore.CostRecord `json:"items"`
	Total      int                   `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}

// handleListCosts serves GET /api/costs, a paginated query over
// recorded cost rows with agent_id/provider filters and a sort-column
// allowlist, mirroring handleListThreatIntel's shape.
func (s *Server) handleListCosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := parsePageParams(q, sqlstore.CostSortColumns, "recorded_at")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_pagination", err.Error(), "")
		return
	}

	filter := sqlstore.CostPageFilter{
		AgentID:  q.Get("agent_id"),
		Provider: q.Get("provider"),
		Sort:     page.Sort,
		Order:    page.Order,
		Page:     page.Page,
		PageSize: page.PageSize,
	}

	items, total, err := s.costs.ListCostsPage(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "failed to query cost records", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, costsPage{
		Items:      items,
		Total:      total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: totalPages(total, page.PageSize),
	})
}
