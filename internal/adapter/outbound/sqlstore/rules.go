package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/sentinelwatch/sentinelwatch/internal/domain/threat"
)

// RuleRepository implements threat.Repository: community rules are
// seeded once on first run, then merged with rule_overrides and
// custom_rules into one effective rule set per ListEffectiveRules call.
type RuleRepository struct {
	store *Store
}

func NewRuleRepository(store *Store) *RuleRepository {
	return &RuleRepository{store: store}
}

var _ threat.Repository = (*RuleRepository)(nil)

// IsCommunitySeeded reports whether the bundled community rules have
// already been loaded into the community_rules table.
func (r *RuleRepository) IsCommunitySeeded(ctx context.Context) (bool, error) {
	var count int
	err := r.store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM community_rules`).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SeedCommunityRules inserts the bundled rule set, run once on first boot.
func (r *RuleRepository) SeedCommunityRules(ctx context.Context, rules []threat.Rule) error {
	tx, err := r.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rule := range rules {
		patterns, err := json.Marshal(rule.Patterns)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO community_rules (id, name, category, description, severity, patterns, condition, enabled)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rule.ID, rule.Name, rule.Category, rule.Description, string(rule.Severity),
			string(patterns), nullableString(rule.Condition), rule.Enabled,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListEffectiveRules merges community_rules (with rule_overrides
// applied) and custom_rules into the snapshot the analyzer compiles.
func (r *RuleRepository) ListEffectiveRules(ctx context.Context) ([]threat.Rule, error) {
	rules, err := r.listCommunityWithOverrides(ctx)
	if err != nil {
		return nil, err
	}
	custom, err := r.listCustom(ctx)
	if err != nil {
		return nil, err
	}
	return append(rules, custom...), nil
}

func (r *RuleRepository) listCommunityWithOverrides(ctx context.Context) ([]threat.Rule, error) {
	rows, err := r.store.DB().QueryContext(ctx, `
		SELECT c.id, c.name, c.category, c.description, c.severity, c.patterns, c.condition, c.enabled,
			o.enabled, o.severity, o.patterns
		FROM community_rules c
		LEFT JOIN rule_overrides o ON o.original_rule_id = c.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []threat.Rule
	for rows.Next() {
		var rule threat.Rule
		var condition sql.NullString
		var patternsJSON string
		var overrideEnabled sql.NullBool
		var overrideSeverity, overridePatternsJSON sql.NullString

		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Category, &rule.Description, &rule.Severity,
			&patternsJSON, &condition, &rule.Enabled, &overrideEnabled, &overrideSeverity, &overridePatternsJSON); err != nil {
			return nil, err
		}
		rule.Source = threat.SourceCommunity
		rule.Condition = condition.String
		if err := json.Unmarshal([]byte(patternsJSON), &rule.Patterns); err != nil {
			return nil, err
		}

		if overrideEnabled.Valid {
			rule.Enabled = overrideEnabled.Bool
		}
		if overrideSeverity.Valid {
			rule.Severity = threat.Severity(overrideSeverity.String)
		}
		if overridePatternsJSON.Valid {
			var overridePatterns []string
			if err := json.Unmarshal([]byte(overridePatternsJSON.String), &overridePatterns); err == nil {
				rule.Patterns = overridePatterns
			}
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *RuleRepository) listCustom(ctx context.Context) ([]threat.Rule, error) {
	rows, err := r.store.DB().QueryContext(ctx, `
		SELECT id, name, category, description, severity, patterns, condition, enabled FROM custom_rules`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []threat.Rule
	for rows.Next() {
		var rule threat.Rule
		var condition sql.NullString
		var patternsJSON string
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Category, &rule.Description, &rule.Severity,
			&patternsJSON, &condition, &rule.Enabled); err != nil {
			return nil, err
		}
		rule.Source = threat.SourceCustom
		rule.Condition = condition.String
		if err := json.Unmarshal([]byte(patternsJSON), &rule.Patterns); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// RuleSource reports whether id belongs to custom_rules or
// community_rules, for routing a PUT/DELETE /api/rules/{id} to the
// right underlying table. found is false if id matches neither.
func (r *RuleRepository) RuleSource(ctx context.Context, id string) (source threat.Source, found bool, err error) {
	var count int
	if err := r.store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM custom_rules WHERE id = ?`, id).Scan(&count); err != nil {
		return "", false, err
	}
	if count > 0 {
		return threat.SourceCustom, true, nil
	}
	if err := r.store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM community_rules WHERE id = ?`, id).Scan(&count); err != nil {
		return "", false, err
	}
	if count > 0 {
		return threat.SourceCommunity, true, nil
	}
	return "", false, nil
}

// CreateCustomRule inserts a new user-authored rule.
func (r *RuleRepository) CreateCustomRule(ctx context.Context, rule threat.Rule) error {
	patterns, err := json.Marshal(rule.Patterns)
	if err != nil {
		return err
	}
	_, err = r.store.DB().ExecContext(ctx, `
		INSERT INTO custom_rules (id, name, category, description, severity, patterns, condition, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, rule.Category, rule.Description, string(rule.Severity),
		string(patterns), nullableString(rule.Condition), rule.Enabled,
	)
	return err
}

// UpdateCustomRule replaces an existing custom rule's fields.
func (r *RuleRepository) UpdateCustomRule(ctx context.Context, rule threat.Rule) error {
	patterns, err := json.Marshal(rule.Patterns)
	if err != nil {
		return err
	}
	_, err = r.store.DB().ExecContext(ctx, `
		UPDATE custom_rules SET name = ?, category = ?, description = ?, severity = ?,
			patterns = ?, condition = ?, enabled = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		rule.Name, rule.Category, rule.Description, string(rule.Severity),
		string(patterns), nullableString(rule.Condition), rule.Enabled, rule.ID,
	)
	return err
}

// DeleteCustomRule removes a user-authored rule.
func (r *RuleRepository) DeleteCustomRule(ctx context.Context, id string) error {
	_, err := r.store.DB().ExecContext(ctx, `DELETE FROM custom_rules WHERE id = ?`, id)
	return err
}

// UpsertOverride replaces or clears a community rule override. A nil
// severity/patterns leaves that field unoverridden.
func (r *RuleRepository) UpsertOverride(ctx context.Context, ruleID string, enabled *bool, severity *threat.Severity, patterns []string) error {
	var patternsJSON interface{}
	if patterns != nil {
		b, err := json.Marshal(patterns)
		if err != nil {
			return err
		}
		patternsJSON = string(b)
	}
	var severityStr interface{}
	if severity != nil {
		severityStr = string(*severity)
	}
	_, err := r.store.DB().ExecContext(ctx, `
		INSERT INTO rule_overrides (original_rule_id, enabled, severity, patterns)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(original_rule_id) DO UPDATE SET
			enabled = excluded.enabled, severity = excluded.severity,
			patterns = excluded.patterns, updated_at = CURRENT_TIMESTAMP`,
		ruleID, enabled, severityStr, patternsJSON,
	)
	return err
}

// DeleteOverride reverts a community rule to its bundled defaults.
func (r *RuleRepository) DeleteOverride(ctx context.Context, ruleID string) error {
	_, err := r.store.DB().ExecContext(ctx, `DELETE FROM rule_overrides WHERE original_rule_id = ?`, ruleID)
	return err
}
