package sqlstore

import (
	"context"
	"database/sql"
	"time"
)

// Settings is the singleton application settings row, reconciled with
// the config file on startup (see config.Reconcile) and mutated at
// runtime through the local HTTP server's settings endpoint.
type Settings struct {
	Theme                string     `json:"theme"`
	ScanMode             string     `json:"scan_mode"`
	RedactSecrets        bool       `json:"redact_secrets"`
	BlockThreats         bool       `json:"block_threats"`
	RetentionDays        int        `json:"retention_days"`
	ProxyEnabled         bool       `json:"proxy_enabled"`
	CloudModeEnabled     bool       `json:"cloud_mode_enabled"`
	CloudUserEmail       string     `json:"cloud_user_email,omitempty"`
	CloudConnectedAt     *time.Time `json:"cloud_connected_at,omitempty"`
	ServerHost           string     `json:"server_host"`
	ServerPort           int        `json:"server_port"`
	StoreText            bool       `json:"store_text"`
	NotificationsEnabled bool       `json:"notifications_enabled"`
	LaunchOnStartup      bool       `json:"launch_on_startup"`
	MinimizeToTray       bool       `json:"minimize_to_tray"`
	WindowState          string     `json:"window_state,omitempty"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// SettingsRepository reads and writes the singleton app_settings row.
type SettingsRepository struct {
	store *Store
}

func NewSettingsRepository(store *Store) *SettingsRepository {
	return &SettingsRepository{store: store}
}

func (r *SettingsRepository) Get(ctx context.Context) (Settings, error) {
	var s Settings
	var cloudEmail sql.NullString
	var cloudConnectedAt sql.NullTime
	var windowState sql.NullString

	err := r.store.DB().QueryRowContext(ctx, `
		SELECT theme, scan_mode, redact_secrets, block_threats, retention_days,
			proxy_enabled, cloud_mode_enabled, cloud_user_email, cloud_connected_at,
			server_host, server_port, store_text, notifications_enabled,
			launch_on_startup, minimize_to_tray, window_state, updated_at
		FROM app_settings WHERE id = 1`,
	).Scan(&s.Theme, &s.ScanMode, &s.RedactSecrets, &s.BlockThreats, &s.RetentionDays,
		&s.ProxyEnabled, &s.CloudModeEnabled, &cloudEmail, &cloudConnectedAt,
		&s.ServerHost, &s.ServerPort, &s.StoreText, &s.NotificationsEnabled,
		&s.LaunchOnStartup, &s.MinimizeToTray, &windowState, &s.UpdatedAt)
	if err != nil {
		return Settings{}, err
	}
	s.CloudUserEmail = cloudEmail.String
	if cloudConnectedAt.Valid {
		s.CloudConnectedAt = &cloudConnectedAt.Time
	}
	s.WindowState = windowState.String
	return s, nil
}

// Update applies a partial set of changes to the singleton row. Each
// pointer field is applied only if non-nil, so callers can change one
// setting without re-sending the whole row.
type SettingsUpdate struct {
	Theme                *string
	ScanMode             *string
	RedactSecrets        *bool
	BlockThreats         *bool
	RetentionDays        *int
	ProxyEnabled         *bool
	ServerHost           *string
	ServerPort           *int
	StoreText            *bool
	NotificationsEnabled *bool
	LaunchOnStartup      *bool
	MinimizeToTray       *bool
	WindowState          *string
}

func (r *SettingsRepository) Update(ctx context.Context, update SettingsUpdate) error {
	current, err := r.Get(ctx)
	if err != nil {
		return err
	}
	if update.Theme != nil {
		current.Theme = *update.Theme
	}
	if update.ScanMode != nil {
		current.ScanMode = *update.ScanMode
	}
	if update.RedactSecrets != nil {
		current.RedactSecrets = *update.RedactSecrets
	}
	if update.BlockThreats != nil {
		current.BlockThreats = *update.BlockThreats
	}
	if update.RetentionDays != nil {
		current.RetentionDays = *update.RetentionDays
	}
	if update.ProxyEnabled != nil {
		current.ProxyEnabled = *update.ProxyEnabled
	}
	if update.ServerHost != nil {
		current.ServerHost = *update.ServerHost
	}
	if update.ServerPort != nil {
		current.ServerPort = *update.ServerPort
	}
	if update.StoreText != nil {
		current.StoreText = *update.StoreText
	}
	if update.NotificationsEnabled != nil {
		current.NotificationsEnabled = *update.NotificationsEnabled
	}
	if update.LaunchOnStartup != nil {
		current.LaunchOnStartup = *update.LaunchOnStartup
	}
	if update.MinimizeToTray != nil {
		current.MinimizeToTray = *update.MinimizeToTray
	}
	if update.WindowState != nil {
		current.WindowState = *update.WindowState
	}

	_, err = r.store.DB().ExecContext(ctx, `
		UPDATE app_settings SET theme = ?, scan_mode = ?, redact_secrets = ?, block_threats = ?,
			retention_days = ?, proxy_enabled = ?, server_host = ?, server_port = ?, store_text = ?,
			notifications_enabled = ?, launch_on_startup = ?, minimize_to_tray = ?, window_state = ?,
			updated_at = CURRENT_TIMESTAMP WHERE id = 1`,
		current.Theme, current.ScanMode, current.RedactSecrets, current.BlockThreats,
		current.RetentionDays, current.ProxyEnabled, current.ServerHost, current.ServerPort,
		current.StoreText, current.NotificationsEnabled, current.LaunchOnStartup,
		current.MinimizeToTray, nullableString(current.WindowState),
	)
	return err
}

// SetCloudCredentials records (or clears, when email is empty) the
// connected cloud account for cloud-sync mode.
func (r *SettingsRepository) SetCloudCredentials(ctx context.Context, email string) error {
	if email == "" {
		_, err := r.store.DB().ExecContext(ctx, `
			UPDATE app_settings SET cloud_mode_enabled = 0, cloud_user_email = NULL,
				cloud_connected_at = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = 1`)
		return err
	}
	_, err := r.store.DB().ExecContext(ctx, `
		UPDATE app_settings SET cloud_mode_enabled = 1, cloud_user_email = ?,
			cloud_connected_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = 1`, email)
	return err
}
