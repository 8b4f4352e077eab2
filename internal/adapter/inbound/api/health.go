package api

import (
	"net/http"
)

type databaseHealth struct {
	Connected   bool `json:"connected"`
	RecordCount int  `json:"record_count"`
}

type healthResponse struct {
	Status      string         `json:"status"`
	Version     string         `json:"version"`
	Database    databaseHealth `json:"database"`
	RulesLoaded int            `json:"rules_loaded"`
}

// handleHealth reports overall component status. It always returns 200:
// a degraded component is reflected in the status field, not the HTTP
// status code, per spec.md §6.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := healthResponse{Status: "ok", Version: s.buildInfo.Version}

	if err := s.db.DB().PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database.Connected = false
	} else {
		resp.Database.Connected = true
		count, err := s.events.Count(ctx)
		if err == nil {
			resp.Database.RecordCount = count
		}
	}

	ruleCount, err := s.analyzer.LoadedRuleCount(ctx)
	if err != nil {
		resp.Status = "degraded"
	}
	resp.RulesLoaded = ruleCount

	writeJSON(w, http.StatusOK, resp)
}
