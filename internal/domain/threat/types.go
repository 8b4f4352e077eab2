// Package threat loads detection rules, compiles them into an
// immutable snapshot, and matches arbitrary text against that snapshot.
package threat

import "context"

// Severity is one of the four recognized rule severities.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// severityScore is the base risk score contributed by a rule's severity.
var severityScore = map[Severity]int{
	SeverityCritical: 90,
	SeverityHigh:      75,
	SeverityMedium:    50,
	SeverityLow:       25,
}

// ScoreForSeverity returns the base risk score for a severity, defaulting
// to the medium tier for an unrecognized value rather than rejecting it.
func ScoreForSeverity(s Severity) int {
	if score, ok := severityScore[s]; ok {
		return score
	}
	return severityScore[SeverityMedium]
}

// Source identifies where a rule originated.
type Source string

const (
	SourceCommunity Source = "community"
	SourceCustom    Source = "custom"
)

// Rule is one detection rule: a named group of patterns sharing a
// category and severity. Community rules are seeded from the bundled
// rule files; custom rules are authored through the rules repository.
type Rule struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Patterns    []string `json:"patterns"`
	Source      Source   `json:"source"`
	Enabled     bool     `json:"enabled"`
	// Condition is an optional CEL expression narrowing when a custom
	// rule applies (e.g. restricting it to a tool name or provider).
	Condition string `json:"condition,omitempty"`
}

// MatchedRule is one rule that fired during Analyze, with the specific
// pattern that matched.
type MatchedRule struct {
	RuleID   string   `json:"rule_id"`
	RuleName string   `json:"rule_name"`
	Category string   `json:"category"`
	Severity Severity `json:"severity"`
	Source   Source   `json:"source"`
	Pattern  string   `json:"pattern"`
}

// Verdict is the outcome of analyzing one piece of text.
type Verdict struct {
	IsThreat     bool          `json:"is_threat"`
	RiskScore    int           `json:"risk_score"`
	Confidence   float64       `json:"confidence"`
	ThreatType   string        `json:"threat_type,omitempty"`
	MatchedRules []MatchedRule `json:"matched_rules"`
	ElapsedMS    int64         `json:"elapsed_ms"`
}

// Repository is the persistence port the analyzer and loader depend on.
// Its ListEffective query already applies overrides (disabled community
// rules removed, severity/pattern substitutions applied) so the analyzer
// never builds queries of its own.
type Repository interface {
	ListEffectiveRules(ctx context.Context) ([]Rule, error)
	IsCommunitySeeded(ctx context.Context) (bool, error)
	SeedCommunityRules(ctx context.Context, rules []Rule) error
}
