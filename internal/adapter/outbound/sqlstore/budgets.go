package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sentinelwatch/sentinelwatch/internal/domain/budget"
)

// BudgetRepository implements budget.Repository. Scopes are stored by
// name ("global" or "agent:<id>"); cost sums are read from the costs
// table the cost recorder writes to.
type BudgetRepository struct {
	store *Store
}

func NewBudgetRepository(store *Store) *BudgetRepository {
	return &BudgetRepository{store: store}
}

var _ budget.Repository = (*BudgetRepository)(nil)

func (r *BudgetRepository) getScope(ctx context.Context, scopeName string) (*budget.Scope, error) {
	var limit sql.NullFloat64
	var action string
	var warnThreshold int
	err := r.store.DB().QueryRowContext(ctx,
		`SELECT daily_limit_usd, action, warn_threshold_percent FROM budget_scopes WHERE scope_name = ?`, scopeName,
	).Scan(&limit, &action, &warnThreshold)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	scope := &budget.Scope{Action: budget.Action(action), WarnThresholdPercent: warnThreshold}
	if limit.Valid {
		scope.DailyLimitUSD = &limit.Float64
	}
	return scope, nil
}

func (r *BudgetRepository) GetGlobalScope(ctx context.Context) (*budget.Scope, error) {
	return r.getScope(ctx, "global")
}

func (r *BudgetRepository) GetAgentScope(ctx context.Context, agentID string) (*budget.Scope, error) {
	return r.getScope(ctx, "agent:"+agentID)
}

// SumGlobalCostToday sums total_cost_usd across all agents since the
// start of the current UTC day.
func (r *BudgetRepository) SumGlobalCostToday(ctx context.Context) (float64, error) {
	return r.sumCostSince(ctx, "", startOfUTCDay())
}

// SumAgentCostToday sums total_cost_usd for one agent since the start
// of the current UTC day.
func (r *BudgetRepository) SumAgentCostToday(ctx context.Context, agentID string) (float64, error) {
	return r.sumCostSince(ctx, agentID, startOfUTCDay())
}

func (r *BudgetRepository) sumCostSince(ctx context.Context, agentID string, since time.Time) (float64, error) {
	var total sql.NullFloat64
	var err error
	if agentID == "" {
		err = r.store.DB().QueryRowContext(ctx,
			`SELECT SUM(total_cost_usd) FROM costs WHERE recorded_at >= ?`, since).Scan(&total)
	} else {
		err = r.store.DB().QueryRowContext(ctx,
			`SELECT SUM(total_cost_usd) FROM costs WHERE agent_id = ? AND recorded_at >= ?`, agentID, since).Scan(&total)
	}
	if err != nil {
		return 0, err
	}
	return total.Float64, nil
}

func startOfUTCDay() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// UpsertScope creates or replaces a budget scope's limit, action and
// early-warning threshold.
func (r *BudgetRepository) UpsertScope(ctx context.Context, scopeName string, dailyLimitUSD *float64, action budget.Action, warnThresholdPercent int) error {
	var limit interface{}
	if dailyLimitUSD != nil {
		limit = *dailyLimitUSD
	}
	_, err := r.store.DB().ExecContext(ctx, `
		INSERT INTO budget_scopes (scope_name, daily_limit_usd, action, warn_threshold_percent) VALUES (?, ?, ?, ?)
		ON CONFLICT(scope_name) DO UPDATE SET
			daily_limit_usd = excluded.daily_limit_usd, action = excluded.action,
			warn_threshold_percent = excluded.warn_threshold_percent,
			updated_at = CURRENT_TIMESTAMP`,
		scopeName, limit, string(action), warnThresholdPercent,
	)
	return err
}

// ScopeRecord is a budget scope as exposed through the HTTP API.
type ScopeRecord struct {
	ScopeName            string        `json:"scope_name"`
	DailyLimitUSD        *float64      `json:"daily_limit_usd,omitempty"`
	Action               budget.Action `json:"action"`
	WarnThresholdPercent int           `json:"warn_threshold_percent"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// ListScopes returns every configured budget scope, ordered by name.
func (r *BudgetRepository) ListScopes(ctx context.Context) ([]ScopeRecord, error) {
	rows, err := r.store.DB().QueryContext(ctx,
		`SELECT scope_name, daily_limit_usd, action, warn_threshold_percent, updated_at
		 FROM budget_scopes ORDER BY scope_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScopeRecord
	for rows.Next() {
		var rec ScopeRecord
		var limit sql.NullFloat64
		var action string
		if err := rows.Scan(&rec.ScopeName, &limit, &action, &rec.WarnThresholdPercent, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Action = budget.Action(action)
		if limit.Valid {
			rec.DailyLimitUSD = &limit.Float64
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
