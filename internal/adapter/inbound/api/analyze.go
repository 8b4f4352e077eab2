package api

import (
	"net/http"

	"github.com/sentinelwatch/sentinelwatch/internal/domain/threat"
)

type analyzeRequest struct {
	Text string `json:"text"`
}

// handleAnalyze runs the analyzer synchronously on caller-supplied text,
// mirroring the analyzer contract the proxy uses internally.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "could not decode request body", err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "text must not be empty", "")
		return
	}

	verdict, err := s.analyzer.Analyze(r.Context(), req.Text)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "analyzer_error", "analysis failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

type threatAnalyticsResponse struct {
	threat.Verdict
	AnalysisSource string `json:"analysis_source"`
}

// handleThreatAnalytics is the cloud-compatible analyze endpoint: it
// goes through the configured cloudproxy.Client, which is either the
// local analyzer directly (cloud mode off) or a remote call that falls
// back to local on any error (cloud mode on).
func (s *Server) handleThreatAnalytics(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "could not decode request body", err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "text must not be empty", "")
		return
	}

	result, err := s.cloudClient.Analyze(r.Context(), req.Text)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "analyzer_error", "analysis failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, threatAnalyticsResponse{Verdict: result.Verdict, AnalysisSource: string(result.Source)})
}
