// Package budget evaluates per-agent and global daily spending limits
// before the proxy dispatches a request to an upstream provider.
package budget

import (
	"context"
	"fmt"
	"time"
)

// Action is what a scope does once its limit is reached.
type Action string

const (
	ActionWarn  Action = "warn"
	ActionBlock Action = "block"
)

// Decision is the tagged-variant outcome of a budget evaluation, the
// same idiom the threat analyzer and permission engine use for their
// own verdicts, applied here to spending instead of policy.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionWarn  Decision = "warn"
	DecisionDeny  Decision = "deny"
)

// Scope is one budget boundary (global, or one specific agent).
type Scope struct {
	DailyLimitUSD        *float64
	Action               Action
	WarnThresholdPercent int // 0 disables the early-warning tier
}

// Repository is the persistence port for budget configuration and the
// cost aggregates a decision is evaluated against.
type Repository interface {
	GetAgentScope(ctx context.Context, agentID string) (*Scope, error)
	GetGlobalScope(ctx context.Context) (*Scope, error)
	SumAgentCostToday(ctx context.Context, agentID string) (float64, error)
	SumGlobalCostToday(ctx context.Context) (float64, error)
}

// Result is the evaluated outcome for one request.
type Result struct {
	Decision          Decision
	Scope             string // "agent" or "global"; the scope that produced the binding decision
	DayTotal          float64
	Limit             float64
	RetryAfterSeconds int
}

// Guardian evaluates budget scopes. now is injectable for deterministic
// midnight-boundary tests.
type Guardian struct {
	repo              Repository
	now               func() time.Time
	defaultAgentScope *Scope
}

// NewGuardian builds a Guardian backed by repo.
func NewGuardian(repo Repository) *Guardian {
	return &Guardian{repo: repo, now: time.Now}
}

// WithDefaultAgentScope sets the scope applied to agents with no
// agent-specific row in the repository, so a configured
// default-agent-daily-limit is enforced even before an operator has
// created an override for that particular agent. Returns g for chaining.
func (g *Guardian) WithDefaultAgentScope(scope *Scope) *Guardian {
	g.defaultAgentScope = scope
	return g
}

// Evaluate aggregates spend for agentID's scope and the global scope
// over the current UTC calendar day and combines them pessimistically:
// a deny on either scope denies, a warn on either (with no deny) warns.
func (g *Guardian) Evaluate(ctx context.Context, agentID string) (Result, error) {
	agentResult, err := g.evaluateScope(ctx, "agent", agentID)
	if err != nil {
		return Result{}, fmt.Errorf("budget: evaluating agent scope: %w", err)
	}
	globalResult, err := g.evaluateScope(ctx, "global", agentID)
	if err != nil {
		return Result{}, fmt.Errorf("budget: evaluating global scope: %w", err)
	}

	return combine(agentResult, globalResult), nil
}

func combine(a, b Result) Result {
	if a.Decision == DecisionDeny {
		return a
	}
	if b.Decision == DecisionDeny {
		return b
	}
	if a.Decision == DecisionWarn {
		return a
	}
	if b.Decision == DecisionWarn {
		return b
	}
	return a
}

func (g *Guardian) evaluateScope(ctx context.Context, scopeName, agentID string) (Result, error) {
	var scope *Scope
	var dayTotal float64
	var err error

	if scopeName == "agent" {
		scope, err = g.repo.GetAgentScope(ctx, agentID)
		if err != nil {
			return Result{}, err
		}
		if scope == nil {
			scope = g.defaultAgentScope
		}
		dayTotal, err = g.repo.SumAgentCostToday(ctx, agentID)
	} else {
		scope, err = g.repo.GetGlobalScope(ctx)
		if err != nil {
			return Result{}, err
		}
		dayTotal, err = g.repo.SumGlobalCostToday(ctx)
	}
	if err != nil {
		return Result{}, err
	}

	if scope == nil || scope.DailyLimitUSD == nil {
		return Result{Decision: DecisionAllow, Scope: scopeName, DayTotal: dayTotal}, nil
	}

	limit := *scope.DailyLimitUSD
	if dayTotal < limit {
		if scope.WarnThresholdPercent > 0 && limit > 0 && dayTotal/limit*100 >= float64(scope.WarnThresholdPercent) {
			return Result{Decision: DecisionWarn, Scope: scopeName, DayTotal: dayTotal, Limit: limit}, nil
		}
		return Result{Decision: DecisionAllow, Scope: scopeName, DayTotal: dayTotal, Limit: limit}, nil
	}

	if scope.Action == ActionBlock {
		return Result{
			Decision:          DecisionDeny,
			Scope:             scopeName,
			DayTotal:          dayTotal,
			Limit:             limit,
			RetryAfterSeconds: secondsToNextLocalMidnight(g.now()),
		}, nil
	}

	return Result{Decision: DecisionWarn, Scope: scopeName, DayTotal: dayTotal, Limit: limit}, nil
}

// secondsToNextLocalMidnight returns the whole seconds remaining until
// the next local-time midnight after now.
func secondsToNextLocalMidnight(now time.Time) int {
	year, month, day := now.Date()
	midnight := time.Date(year, month, day+1, 0, 0, 0, 0, now.Location())
	return int(midnight.Sub(now).Seconds())
}
