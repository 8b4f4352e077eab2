package api

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/sentinelwatch/sentinelwatch/internal/adapter/outbound/sqlstore"
)

type threatIntelPage struct {
	Items      []sqlstore.EventRecord `json:"items"`
	Total      int                    `json:"total"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"page_size"`
	TotalPages int                    `json:"total_pages"`
}

// handleListThreatIntel serves GET /api/threat-intel, spec.md §6's
// paginated event query with is_threat/threat_type/source/date-range
// filters and a sort-column allowlist.
func (s *Server) handleListThreatIntel(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := parsePageParams(q, sqlstore.EventSortColumns, "occurred_at")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_pagination", err.Error(), "")
		return
	}

	filter := sqlstore.PageFilter{
		ThreatType: q.Get("threat_type"),
		Source:     q.Get("source"),
		Sort:       page.Sort,
		Order:      page.Order,
		Page:       page.Page,
		PageSize:   page.PageSize,
	}
	if s := q.Get("is_threat"); s != "" {
		v := s == "true" || s == "1"
		filter.IsThreat = &v
	}
	if s := q.Get("start_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_pagination", "start_date must be RFC3339", "")
			return
		}
		filter.StartDate = &t
	}
	if s := q.Get("end_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_pagination", "end_date must be RFC3339", "")
			return
		}
		filter.EndDate = &t
	}

	items, total, err := s.events.ListPage(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "failed to query events", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, threatIntelPage{
		Items:      items,
		Total:      total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: totalPages(total, page.PageSize),
	})
}

// handleGetThreatIntel serves GET /api/threat-intel/{id}.
func (s *Server) handleGetThreatIntel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.events.GetByID(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "not_found", "event not found", "")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "failed to query event", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
