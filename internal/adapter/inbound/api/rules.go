package api

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/sentinelwatch/sentinelwatch/internal/domain/threat"
)

// handleListRules returns the effective rule set (community rules with
// overrides applied, plus custom rules).
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.rules.ListEffectiveRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "failed to list rules", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rules": rules})
}

// ruleRequest is the JSON shape for rule create/update requests.
type ruleRequest struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Severity    string   `json:"severity"`
	Patterns    []string `json:"patterns"`
	Condition   string   `json:"condition"`
	Enabled     bool     `json:"enabled"`
}

// validatePatterns compiles every pattern the way the analyzer does
// (case-insensitive), rejecting the request on the first invalid one.
func validatePatterns(patterns []string) error {
	for _, p := range patterns {
		if _, err := regexp.Compile("(?i)" + p); err != nil {
			return err
		}
	}
	return nil
}

// handleCreateRule creates a new custom rule.
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "could not decode request body", err.Error())
		return
	}
	if err := validatePatterns(req.Patterns); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_regex", "one or more patterns do not compile", err.Error())
		return
	}

	rule := threat.Rule{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
		Severity:    threat.Severity(req.Severity),
		Patterns:    req.Patterns,
		Source:      threat.SourceCustom,
		Enabled:     req.Enabled,
		Condition:   req.Condition,
	}
	if err := s.rules.CreateCustomRule(r.Context(), rule); err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "failed to create rule", err.Error())
		return
	}
	if err := s.analyzer.Reload(r.Context()); err != nil {
		s.logger.Warn("api: analyzer reload after rule create failed", "error", err)
	}
	writeJSON(w, http.StatusCreated, rule)
}

// putRuleRequest is PUT /api/rules' body: an id plus the fields to set.
// For a custom rule this replaces the row; for a community rule this
// becomes an override (enabled/severity/patterns only).
type putRuleRequest struct {
	ID string `json:"id"`
	ruleRequest
}

// handlePutRules updates an existing rule, routed to the custom-rule
// table or the override table depending on the rule's origin.
func (s *Server) handlePutRules(w http.ResponseWriter, r *http.Request) {
	var req putRuleRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "could not decode request body", err.Error())
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "id is required", "")
		return
	}
	if err := validatePatterns(req.Patterns); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_regex", "one or more patterns do not compile", err.Error())
		return
	}

	source, found, err := s.rules.RuleSource(r.Context(), req.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "failed to look up rule", err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "rule not found", "")
		return
	}

	if source == threat.SourceCustom {
		rule := threat.Rule{
			ID: req.ID, Name: req.Name, Category: req.Category, Description: req.Description,
			Severity: threat.Severity(req.Severity), Patterns: req.Patterns, Condition: req.Condition,
			Enabled: req.Enabled, Source: threat.SourceCustom,
		}
		if err := s.rules.UpdateCustomRule(r.Context(), rule); err != nil {
			writeError(w, http.StatusInternalServerError, "store_error", "failed to update rule", err.Error())
			return
		}
	} else {
		enabled := req.Enabled
		severity := threat.Severity(req.Severity)
		if err := s.rules.UpsertOverride(r.Context(), req.ID, &enabled, &severity, req.Patterns); err != nil {
			writeError(w, http.StatusInternalServerError, "store_error", "failed to update rule override", err.Error())
			return
		}
	}

	if err := s.analyzer.Reload(r.Context()); err != nil {
		s.logger.Warn("api: analyzer reload after rule update failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDeleteRule deletes a custom rule, or reverts a community rule
// override back to its bundled defaults.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	source, found, err := s.rules.RuleSource(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "failed to look up rule", err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "rule not found", "")
		return
	}

	if source == threat.SourceCustom {
		err = s.rules.DeleteCustomRule(r.Context(), id)
	} else {
		err = s.rules.DeleteOverride(r.Context(), id)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "failed to delete rule", err.Error())
		return
	}

	if err := s.analyzer.Reload(r.Context()); err != nil {
		s.logger.Warn("api: analyzer reload after rule delete failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
