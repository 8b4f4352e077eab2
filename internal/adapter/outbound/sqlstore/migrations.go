package sqlstore

import (
	"context"
	"fmt"
)

// currentSchemaVersion is the schema version this build expects.
// Bump it, and add an entry to migrationSteps, whenever the schema
// changes — never edit schemaV1 in place once it has shipped.
const currentSchemaVersion = 1

// schemaV1 is the initial schema: event timeline, rule storage
// (community cache + overrides + custom rules), tool-call permission
// overrides, pricing and cost records, budget scopes, and the
// singleton settings row. Table shapes are grounded on
// threat_intel_records/custom_rules/rule_overrides/app_settings from
// the original implementation's SCHEMA_SQL, extended with proxy/cost/
// budget tables the distillation's retrieved schema did not cover.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	description TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	path TEXT NOT NULL,
	is_threat INTEGER NOT NULL DEFAULT 0,
	threat_type TEXT,
	risk_score INTEGER NOT NULL DEFAULT 0 CHECK (risk_score >= 0 AND risk_score <= 100),
	confidence REAL NOT NULL DEFAULT 0 CHECK (confidence >= 0 AND confidence <= 1),
	matched_rules TEXT NOT NULL DEFAULT '[]',
	tool_decisions TEXT NOT NULL DEFAULT '[]',
	upstream_status INTEGER NOT NULL DEFAULT 0,
	error_metadata TEXT,
	source TEXT NOT NULL,
	request_id TEXT,
	text_content TEXT,
	content_digest TEXT,
	text_length INTEGER NOT NULL DEFAULT 0,
	session_label TEXT,
	processing_time_ms INTEGER NOT NULL DEFAULT 0,
	metadata TEXT NOT NULL DEFAULT '{}',
	review_agreement INTEGER,
	review_confidence REAL,
	review_explanation TEXT,
	review_risk_adjustment INTEGER,
	review_model_used TEXT,
	occurred_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_events_occurred_at ON events(occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_agent_id ON events(agent_id);
CREATE INDEX IF NOT EXISTS idx_events_is_threat ON events(is_threat);
CREATE INDEX IF NOT EXISTS idx_events_threat_type ON events(threat_type);

CREATE TABLE IF NOT EXISTS community_rules (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT NOT NULL,
	description TEXT NOT NULL,
	severity TEXT NOT NULL CHECK (severity IN ('low', 'medium', 'high', 'critical')),
	patterns TEXT NOT NULL,
	condition TEXT,
	enabled INTEGER NOT NULL DEFAULT 1,
	loaded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_community_rules_category ON community_rules(category);

CREATE TABLE IF NOT EXISTS custom_rules (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT NOT NULL,
	description TEXT NOT NULL,
	severity TEXT NOT NULL CHECK (severity IN ('low', 'medium', 'high', 'critical')),
	patterns TEXT NOT NULL,
	condition TEXT,
	enabled INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rule_overrides (
	original_rule_id TEXT PRIMARY KEY,
	enabled INTEGER,
	severity TEXT CHECK (severity IS NULL OR severity IN ('low', 'medium', 'high', 'critical')),
	patterns TEXT,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tool_overrides (
	tool_id TEXT PRIMARY KEY,
	action TEXT NOT NULL CHECK (action IN ('block', 'allow', 'log_only')),
	reason TEXT,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS custom_tools (
	tool_id TEXT PRIMARY KEY,
	risk_tier TEXT NOT NULL CHECK (risk_tier IN ('read', 'write', 'delete', 'admin')),
	default_action TEXT NOT NULL CHECK (default_action IN ('block', 'allow', 'log_only')),
	reason TEXT,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS pricing (
	provider TEXT NOT NULL,
	model_id TEXT NOT NULL,
	input_per_million REAL NOT NULL,
	output_per_million REAL NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (provider, model_id)
);

CREATE TABLE IF NOT EXISTS costs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	model_id TEXT NOT NULL,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	input_cached_tokens INTEGER NOT NULL DEFAULT 0,
	input_cost_usd REAL NOT NULL DEFAULT 0,
	output_cost_usd REAL NOT NULL DEFAULT 0,
	total_cost_usd REAL NOT NULL DEFAULT 0,
	rate_input REAL,
	rate_output REAL,
	pricing_known INTEGER NOT NULL DEFAULT 0,
	request_id TEXT,
	recorded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_costs_agent_id ON costs(agent_id);
CREATE INDEX IF NOT EXISTS idx_costs_recorded_at ON costs(recorded_at DESC);

CREATE TABLE IF NOT EXISTS budget_scopes (
	scope_name TEXT PRIMARY KEY,
	daily_limit_usd REAL,
	action TEXT NOT NULL DEFAULT 'warn' CHECK (action IN ('warn', 'block')),
	warn_threshold_percent INTEGER NOT NULL DEFAULT 0 CHECK (warn_threshold_percent >= 0 AND warn_threshold_percent <= 100),
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS app_settings (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	theme TEXT NOT NULL DEFAULT 'system' CHECK (theme IN ('system', 'light', 'dark')),
	scan_mode TEXT NOT NULL DEFAULT 'enforce' CHECK (scan_mode IN ('monitor', 'enforce')),
	redact_secrets INTEGER NOT NULL DEFAULT 1,
	block_threats INTEGER NOT NULL DEFAULT 1,
	retention_days INTEGER NOT NULL DEFAULT 30 CHECK (retention_days >= 1 AND retention_days <= 365),
	proxy_enabled INTEGER NOT NULL DEFAULT 1,
	cloud_mode_enabled INTEGER NOT NULL DEFAULT 0,
	cloud_user_email TEXT,
	cloud_connected_at TIMESTAMP,
	server_host TEXT NOT NULL DEFAULT '127.0.0.1',
	server_port INTEGER NOT NULL DEFAULT 8765,
	store_text INTEGER NOT NULL DEFAULT 1,
	notifications_enabled INTEGER NOT NULL DEFAULT 1,
	launch_on_startup INTEGER NOT NULL DEFAULT 0,
	minimize_to_tray INTEGER NOT NULL DEFAULT 0,
	window_state TEXT,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

INSERT OR IGNORE INTO app_settings (id) VALUES (1);
`

// migrationSteps maps a target version to the SQL applied to reach it
// from the previous version. Version 1 is applied via schemaV1 by
// runMigrations directly; entries here start at 2.
var migrationSteps = map[int]string{}

func (s *Store) currentVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		// schema_version itself does not exist yet on a fresh database.
		return 0, nil
	}
	return int(version.Int64), nil
}

func (s *Store) recordMigration(ctx context.Context, version int, description string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schema_version (version, description) VALUES (?, ?)`, version, description)
	return err
}

// runMigrations applies the initial schema on a fresh database, then
// walks forward one version at a time, matching the original
// implementation's run_migrations/apply_migration loop.
func (s *Store) runMigrations(ctx context.Context) error {
	version, err := s.currentVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version == 0 {
		if _, err := s.db.ExecContext(ctx, schemaV1); err != nil {
			return fmt.Errorf("apply initial schema: %w", err)
		}
		if err := s.recordMigration(ctx, 1, "initial schema"); err != nil {
			return fmt.Errorf("record initial schema migration: %w", err)
		}
		version = 1
	}

	for version < currentSchemaVersion {
		next := version + 1
		stmt, ok := migrationSteps[next]
		if !ok {
			return fmt.Errorf("no migration registered for schema version %d", next)
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration to v%d: %w", next, err)
		}
		if err := s.recordMigration(ctx, next, fmt.Sprintf("migration to v%d", next)); err != nil {
			return fmt.Errorf("record migration v%d: %w", next, err)
		}
		version = next
	}

	s.logger.Info("database schema ready", "version", version)
	return nil
}
