package threat

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/cel-go/cel"

	celeval "github.com/sentinelwatch/sentinelwatch/internal/adapter/outbound/cel"
)

// compiledRule is one compiled pattern ready for matching, the
// generalized shape of a hardcoded scanner's compiled-pattern slice:
// every match traces back to its owning rule by value, not by pointer,
// so snapshot replacement stays atomic and free of dangling references.
type compiledRule struct {
	re         *regexp.Regexp
	pattern    string
	ruleID     string
	ruleName   string
	category   string
	severity   Severity
	source     Source
	riskScore  int
	confidence float64
	condition  cel.Program
}

// Analyzer compiles the effective rule set into an immutable snapshot
// and matches arbitrary text against it.
type Analyzer struct {
	repo   Repository
	logger *slog.Logger
	celEnv *cel.Env

	snapshot  atomic.Pointer[[]compiledRule]
	reloadMu  sync.Mutex
	loadOnce  sync.Once
	loadErr   error
	warnedBad map[string]bool
	warnMu    sync.Mutex
}

// NewAnalyzer builds an Analyzer backed by repo. celEnv may be nil, in
// which case custom rules carrying a Condition expression are compiled
// without a condition (always matches when the pattern matches).
func NewAnalyzer(repo Repository, logger *slog.Logger) (*Analyzer, error) {
	env, err := celeval.NewRuleConditionEnvironment()
	if err != nil {
		return nil, fmt.Errorf("threat: building condition environment: %w", err)
	}
	return &Analyzer{
		repo:      repo,
		logger:    logger,
		celEnv:    env,
		warnedBad: make(map[string]bool),
	}, nil
}

// ensureLoaded performs the idempotent bootstrap on first call.
func (a *Analyzer) ensureLoaded(ctx context.Context) error {
	a.loadOnce.Do(func() {
		a.loadErr = a.load(ctx)
	})
	return a.loadErr
}

// Reload recompiles the snapshot from the repository. Reloads are
// serialized by reloadMu so concurrent Analyze calls during a reload
// observe either the old snapshot in full or the new one in full.
func (a *Analyzer) Reload(ctx context.Context) error {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()
	return a.load(ctx)
}

func (a *Analyzer) load(ctx context.Context) error {
	rules, err := a.repo.ListEffectiveRules(ctx)
	if err != nil {
		return fmt.Errorf("threat: listing effective rules: %w", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		var condition cel.Program
		if rule.Condition != "" {
			ast, issues := a.celEnv.Compile(rule.Condition)
			if issues != nil && issues.Err() != nil {
				a.warnOnce(rule.ID+":condition", "threat: rule condition failed to compile, rule will match unconditionally", rule.ID, issues.Err())
			} else if prg, err := a.celEnv.Program(ast); err != nil {
				a.warnOnce(rule.ID+":condition", "threat: rule condition failed to plan, rule will match unconditionally", rule.ID, err)
			} else {
				condition = prg
			}
		}

		for _, pattern := range rule.Patterns {
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				a.warnOnce(rule.ID+":"+pattern, "threat: rule pattern failed to compile, skipping pattern", rule.ID, err)
				continue
			}
			compiled = append(compiled, compiledRule{
				re:         re,
				pattern:    pattern,
				ruleID:     rule.ID,
				ruleName:   rule.Name,
				category:   rule.Category,
				severity:   rule.Severity,
				source:     rule.Source,
				riskScore:  ScoreForSeverity(rule.Severity),
				confidence: 0.8,
				condition:  condition,
			})
		}
	}

	a.snapshot.Store(&compiled)
	return nil
}

func (a *Analyzer) warnOnce(key, msg, ruleID string, err error) {
	a.warnMu.Lock()
	defer a.warnMu.Unlock()
	if a.warnedBad[key] {
		return
	}
	a.warnedBad[key] = true
	a.logger.Warn(msg, "rule_id", ruleID, "error", err)
}

// LoadedRuleCount reports how many compiled patterns are in the current
// snapshot, for the health endpoint's rules_loaded field. It triggers
// the idempotent bootstrap if the snapshot hasn't been built yet.
func (a *Analyzer) LoadedRuleCount(ctx context.Context) (int, error) {
	if err := a.ensureLoaded(ctx); err != nil {
		return 0, err
	}
	snap := a.snapshot.Load()
	if snap == nil {
		return 0, nil
	}
	return len(*snap), nil
}

// Analyze matches text against the compiled snapshot, per spec.md §4.3
// and §8 property 5: risk_score in [0,100], confidence in [0,1],
// is_threat true iff matched_rules is non-empty.
func (a *Analyzer) Analyze(ctx context.Context, text string) (Verdict, error) {
	return a.AnalyzeWithContext(ctx, text, celeval.EvaluationContext{ContentLength: len(text)})
}

// AnalyzeWithContext is Analyze with call-site facts (tool name, agent
// roles, provider, destination domain) available to a custom rule's
// optional CEL condition.
func (a *Analyzer) AnalyzeWithContext(ctx context.Context, text string, evalCtx celeval.EvaluationContext) (Verdict, error) {
	start := time.Now()
	if err := a.ensureLoaded(ctx); err != nil {
		return Verdict{}, err
	}

	snap := a.snapshot.Load()
	if snap == nil {
		return Verdict{MatchedRules: []MatchedRule{}}, nil
	}

	activation := celeval.BuildActivation(evalCtx)
	verdict := Verdict{MatchedRules: []MatchedRule{}}
	for _, rule := range *snap {
		if !rule.re.MatchString(text) {
			continue
		}
		if rule.condition != nil {
			out, _, err := rule.condition.Eval(activation)
			if err != nil {
				continue
			}
			if matched, ok := out.Value().(bool); !ok || !matched {
				continue
			}
		}

		verdict.MatchedRules = append(verdict.MatchedRules, MatchedRule{
			RuleID:   rule.ruleID,
			RuleName: rule.ruleName,
			Category: rule.category,
			Severity: rule.severity,
			Source:   rule.source,
			Pattern:  rule.pattern,
		})

		if rule.riskScore > verdict.RiskScore {
			verdict.RiskScore = rule.riskScore
			verdict.ThreatType = rule.category
		}
		if rule.confidence > verdict.Confidence {
			verdict.Confidence = rule.confidence
		}
	}

	verdict.IsThreat = len(verdict.MatchedRules) > 0
	verdict.ElapsedMS = time.Since(start).Milliseconds()
	return verdict, nil
}
