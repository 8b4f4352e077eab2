package sqlstore

import (
	"context"
	"database/sql"

	"github.com/sentinelwatch/sentinelwatch/internal/domain/toolcall"
)

// ToolRepository implements toolcall.Repository: user overrides of the
// bundled essential-tool registry, plus custom (non-bundled) tool entries.
type ToolRepository struct {
	store *Store
}

func NewToolRepository(store *Store) *ToolRepository {
	return &ToolRepository{store: store}
}

var _ toolcall.Repository = (*ToolRepository)(nil)

func (r *ToolRepository) ListOverrides(ctx context.Context) ([]toolcall.Override, error) {
	rows, err := r.store.DB().QueryContext(ctx, `SELECT tool_id, action, reason FROM tool_overrides`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []toolcall.Override
	for rows.Next() {
		var o toolcall.Override
		var reason sql.NullString
		if err := rows.Scan(&o.ToolID, &o.Action, &reason); err != nil {
			return nil, err
		}
		o.Reason = reason.String
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *ToolRepository) ListCustomTools(ctx context.Context) ([]toolcall.RegistryEntry, error) {
	rows, err := r.store.DB().QueryContext(ctx, `SELECT tool_id, risk_tier, default_action, reason FROM custom_tools`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []toolcall.RegistryEntry
	for rows.Next() {
		var e toolcall.RegistryEntry
		var reason sql.NullString
		if err := rows.Scan(&e.ToolID, &e.RiskTier, &e.DefaultAction, &reason); err != nil {
			return nil, err
		}
		e.Reason = reason.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// SetOverride creates or replaces a user override for a tool decision.
func (r *ToolRepository) SetOverride(ctx context.Context, override toolcall.Override) error {
	_, err := r.store.DB().ExecContext(ctx, `
		INSERT INTO tool_overrides (tool_id, action, reason) VALUES (?, ?, ?)
		ON CONFLICT(tool_id) DO UPDATE SET
			action = excluded.action, reason = excluded.reason, updated_at = CURRENT_TIMESTAMP`,
		override.ToolID, string(override.Action), nullableString(override.Reason),
	)
	return err
}

// DeleteOverride removes a user override, reverting to the bundled default.
func (r *ToolRepository) DeleteOverride(ctx context.Context, toolID string) error {
	_, err := r.store.DB().ExecContext(ctx, `DELETE FROM tool_overrides WHERE tool_id = ?`, toolID)
	return err
}

// CreateCustomTool registers a non-bundled tool in the permission engine.
func (r *ToolRepository) CreateCustomTool(ctx context.Context, entry toolcall.RegistryEntry) error {
	_, err := r.store.DB().ExecContext(ctx, `
		INSERT INTO custom_tools (tool_id, risk_tier, default_action, reason) VALUES (?, ?, ?, ?)`,
		entry.ToolID, string(entry.RiskTier), string(entry.DefaultAction), nullableString(entry.Reason),
	)
	return err
}
