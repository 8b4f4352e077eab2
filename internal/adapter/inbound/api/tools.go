package api

import (
	"net/http"

	"github.com/sentinelwatch/sentinelwatch/internal/domain/toolcall"
)

// handleListTools returns every known tool (bundled essential plus
// custom) with overrides already applied.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	views, err := s.toolEngine.ListEffective(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "failed to list tools", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": views})
}

// toolOverrideRequest is PUT /api/tools/{id}'s body.
type toolOverrideRequest struct {
	Action toolcall.Action `json:"action"`
	Reason string          `json:"reason"`
}

// handlePutToolOverride creates or replaces a user override for one
// tool id, bundled or custom.
func (s *Server) handlePutToolOverride(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req toolOverrideRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "could not decode request body", err.Error())
		return
	}
	switch req.Action {
	case toolcall.ActionBlock, toolcall.ActionAllow, toolcall.ActionLogOnly:
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "action must be block, allow, or log_only", "")
		return
	}

	if err := s.tools.SetOverride(r.Context(), toolcall.Override{ToolID: id, Action: req.Action, Reason: req.Reason}); err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "failed to set tool override", err.Error())
		return
	}
	if err := s.toolEngine.Reload(r.Context()); err != nil {
		s.logger.Warn("api: tool engine reload after override set failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDeleteToolOverride reverts a tool to its bundled or
// custom-registry default action.
func (s *Server) handleDeleteToolOverride(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.tools.DeleteOverride(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "failed to delete tool override", err.Error())
		return
	}
	if err := s.toolEngine.Reload(r.Context()); err != nil {
		s.logger.Warn("api: tool engine reload after override delete failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// customToolRequest is POST /api/tools' body: a non-bundled tool id
// the permission engine should start evaluating.
type customToolRequest struct {
	ToolID        string          `json:"tool_id"`
	RiskTier      toolcall.RiskTier `json:"risk_tier"`
	DefaultAction toolcall.Action   `json:"default_action"`
	Reason        string            `json:"reason"`
}

// handleCreateCustomTool registers a custom (non-bundled) tool.
func (s *Server) handleCreateCustomTool(w http.ResponseWriter, r *http.Request) {
	var req customToolRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "could not decode request body", err.Error())
		return
	}
	if req.ToolID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "tool_id is required", "")
		return
	}

	entry := toolcall.RegistryEntry{
		ToolID:        req.ToolID,
		RiskTier:      req.RiskTier,
		DefaultAction: req.DefaultAction,
		Reason:        req.Reason,
	}
	if err := s.tools.CreateCustomTool(r.Context(), entry); err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "failed to create custom tool", err.Error())
		return
	}
	if err := s.toolEngine.Reload(r.Context()); err != nil {
		s.logger.Warn("api: tool engine reload after custom tool create failed", "error", err)
	}
	writeJSON(w, http.StatusCreated, entry)
}
