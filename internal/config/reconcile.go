package config

import (
	"context"
	"fmt"
	"net"
	"strconv"
)

// SettingsStore is the subset of sqlstore.SettingsRepository Reconcile
// needs; declared here so this package does not import the storage
// adapter.
type SettingsStore interface {
	Update(ctx context.Context, update SettingsPatch) error
}

// SettingsPatch mirrors sqlstore.SettingsUpdate's shape without this
// package depending on the sqlstore adapter.
type SettingsPatch struct {
	Theme         *string
	ScanMode      *string
	RedactSecrets *bool
	BlockThreats  *bool
	RetentionDays *int
	ProxyEnabled  *bool
	ServerHost    *string
	ServerPort    *int
	StoreText     *bool
}

// Reconcile pushes the resolved config's runtime-relevant fields into
// the settings store on startup, so the local HTTP server's GET
// /api/settings view and the on-disk config file never silently
// diverge: whichever one changed most recently is what a restart picks
// up, since every CLI-flag/env-var/file layer funnels through here
// before the server starts reading from the store instead of the
// Config struct directly.
func Reconcile(ctx context.Context, cfg *Config, store SettingsStore) error {
	scanMode := cfg.Security.ScanMode
	redact := cfg.Security.RedactSecrets
	proxyEnabled := cfg.Proxy.Enabled
	storeText := cfg.Security.StoreText

	patch := SettingsPatch{
		ScanMode:      &scanMode,
		RedactSecrets: &redact,
		ProxyEnabled:  &proxyEnabled,
		StoreText:     &storeText,
	}

	if host, portStr, err := net.SplitHostPort(cfg.Server.HTTPAddr); err == nil {
		if port, err := strconv.Atoi(portStr); err == nil {
			patch.ServerHost = &host
			patch.ServerPort = &port
		}
	}

	if err := store.Update(ctx, patch); err != nil {
		return fmt.Errorf("config: reconciling settings: %w", err)
	}
	return nil
}
