package api

import (
	"net/http"

	"github.com/sentinelwatch/sentinelwatch/internal/adapter/outbound/sqlstore"
)

// settingsResponse mirrors sqlstore.Settings but omits nothing sensitive
// — the settings row carries no credentials of its own (the connected
// cloud email is not a secret; cloud API keys live outside this row).
type settingsResponse = sqlstore.Settings

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settings.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "failed to load settings", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse(settings))
}

type putSettingsRequest struct {
	Theme                *string `json:"theme"`
	ScanMode             *string `json:"scan_mode"`
	RedactSecrets        *bool   `json:"redact_secrets"`
	BlockThreats         *bool   `json:"block_threats"`
	RetentionDays        *int    `json:"retention_days"`
	ProxyEnabled         *bool   `json:"proxy_enabled"`
	ServerHost           *string `json:"server_host"`
	ServerPort           *int    `json:"server_port"`
	StoreText            *bool   `json:"store_text"`
	NotificationsEnabled *bool   `json:"notifications_enabled"`
	LaunchOnStartup      *bool   `json:"launch_on_startup"`
	MinimizeToTray       *bool   `json:"minimize_to_tray"`
	WindowState          *string `json:"window_state"`
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req putSettingsRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "could not decode request body", err.Error())
		return
	}

	update := sqlstore.SettingsUpdate{
		Theme: req.Theme, ScanMode: req.ScanMode, RedactSecrets: req.RedactSecrets,
		BlockThreats: req.BlockThreats, RetentionDays: req.RetentionDays, ProxyEnabled: req.ProxyEnabled,
		ServerHost: req.ServerHost, ServerPort: req.ServerPort, StoreText: req.StoreText,
		NotificationsEnabled: req.NotificationsEnabled, LaunchOnStartup: req.LaunchOnStartup,
		MinimizeToTray: req.MinimizeToTray, WindowState: req.WindowState,
	}
	if err := s.settings.Update(r.Context(), update); err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "failed to update settings", err.Error())
		return
	}

	settings, err := s.settings.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "failed to reload settings", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse(settings))
}

type cloudCredentialsRequest struct {
	Email  string `json:"email"`
	APIKey string `json:"api_key"`
}

type cloudCredentialsResponse struct {
	Valid     bool   `json:"valid"`
	UserEmail string `json:"user_email,omitempty"`
	Message   string `json:"message,omitempty"`
}

// handleCloudCredentials validates and stores cloud-sync credentials.
// Validation here is a presence check only — no cloud backend exists
// to validate against (spec.md scopes cloud mode as an interface edge).
// An invalid submission still returns 200 with valid=false, per spec.md
// §6; only a keystore write failure is a 500.
func (s *Server) handleCloudCredentials(w http.ResponseWriter, r *http.Request) {
	var req cloudCredentialsRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "could not decode request body", err.Error())
		return
	}

	if req.Email == "" || req.APIKey == "" {
		writeJSON(w, http.StatusOK, cloudCredentialsResponse{Valid: false, Message: "email and api_key are required"})
		return
	}

	if err := s.settings.SetCloudCredentials(r.Context(), req.Email); err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", "failed to store cloud credentials", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cloudCredentialsResponse{Valid: true, UserEmail: req.Email})
}
