package config

import "testing"

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "127.0.0.1:8765" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:8765")
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.Server.LogLevel, "info")
	}
	if cfg.Security.ScanMode != "enforce" {
		t.Errorf("ScanMode = %q, want %q", cfg.Security.ScanMode, "enforce")
	}
	if !cfg.Security.RedactSecrets {
		t.Error("RedactSecrets should default to true")
	}
	if cfg.Security.MaxScanBodyBytes != 1<<20 {
		t.Errorf("MaxScanBodyBytes = %d, want %d", cfg.Security.MaxScanBodyBytes, 1<<20)
	}
	if !cfg.Budget.Enabled {
		t.Error("Budget.Enabled should default to true")
	}
	if cfg.Budget.WarnThresholdPercent != 80 {
		t.Errorf("WarnThresholdPercent = %d, want 80", cfg.Budget.WarnThresholdPercent)
	}
	if !cfg.Proxy.Enabled {
		t.Error("Proxy.Enabled should default to true")
	}
	if cfg.Proxy.ListenAddr != "127.0.0.1:8766" {
		t.Errorf("Proxy.ListenAddr = %q, want %q", cfg.Proxy.ListenAddr, "127.0.0.1:8766")
	}
	if cfg.Proxy.DefaultAgentHeader != "X-Agent-Id" {
		t.Errorf("DefaultAgentHeader = %q, want X-Agent-Id", cfg.Proxy.DefaultAgentHeader)
	}
	if cfg.Database.Path == "" {
		t.Error("Database.Path should be populated with a default")
	}
}

func TestConfig_SetDefaults_PreservesExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server: ServerConfig{HTTPAddr: "0.0.0.0:9000"},
	}
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "0.0.0.0:9000" {
		t.Errorf("HTTPAddr was overwritten: got %q", cfg.Server.HTTPAddr)
	}
}

func TestConfig_SetDevDefaults_NoOpWhenNotDevMode(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDevDefaults()

	if cfg.Security.ScanMode != "" {
		t.Error("SetDevDefaults should not apply when DevMode is false")
	}
}

func TestConfig_SetDevDefaults_AppliesWhenDevMode(t *testing.T) {
	t.Parallel()

	cfg := Config{DevMode: true}
	cfg.SetDevDefaults()

	if cfg.Security.ScanMode != "monitor" {
		t.Errorf("dev mode ScanMode = %q, want monitor", cfg.Security.ScanMode)
	}
}
