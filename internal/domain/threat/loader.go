package threat

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules/community/*.yaml rules/community/*.yml
var communityRuleFiles embed.FS

// ruleDocument is the structured `rules:` document shape.
type ruleDocument struct {
	Rules []ruleEntry `yaml:"rules"`
	// Patterns is the legacy flat shape: one rule per pattern, derived
	// from the file stem.
	Patterns []string `yaml:"patterns"`
}

type ruleEntry struct {
	ID          string          `yaml:"id"`
	Name        string          `yaml:"name"`
	Category    string          `yaml:"category"`
	Description string          `yaml:"description"`
	Severity    string          `yaml:"severity"`
	Patterns    stringOrSlice   `yaml:"patterns"`
	Pattern     *patternField   `yaml:"pattern"`
	Rule        *ruleDetection  `yaml:"rule"`
}

type patternField struct {
	Value stringOrSlice `yaml:"value"`
}

type ruleDetection struct {
	Detection []detectionMatch `yaml:"detection"`
}

type detectionMatch struct {
	Match string `yaml:"match"`
}

// stringOrSlice accepts either a scalar string or a sequence of strings,
// per spec.md's "pattern strings may be scalar or a list".
type stringOrSlice []string

func (s *stringOrSlice) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*s = []string{single}
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*s = list
	default:
		*s = nil
	}
	return nil
}

func (e ruleEntry) patterns() []string {
	if len(e.Patterns) > 0 {
		return e.Patterns
	}
	if e.Pattern != nil && len(e.Pattern.Value) > 0 {
		return e.Pattern.Value
	}
	if e.Rule != nil {
		matches := make([]string, 0, len(e.Rule.Detection))
		for _, d := range e.Rule.Detection {
			if d.Match != "" {
				matches = append(matches, d.Match)
			}
		}
		return matches
	}
	return nil
}

// LoadBundledRules walks the embedded community rule directory, parses
// every recognized document shape, and returns the resulting rule
// records. A parse error in one file is logged and that file is skipped;
// it never aborts the walk (Testable Property 3).
func LoadBundledRules(logger *slog.Logger) []Rule {
	entries, err := communityRuleFiles.ReadDir("rules/community")
	if err != nil {
		logger.Error("threat: failed to list bundled rule directory", "error", err)
		return nil
	}

	var rules []Rule
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := path.Ext(name)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		data, err := communityRuleFiles.ReadFile(path.Join("rules/community", name))
		if err != nil {
			logger.Warn("threat: failed to read bundled rule file, skipping", "file", name, "error", err)
			continue
		}

		var doc ruleDocument
		if err := yaml.Unmarshal(data, &doc); err != nil {
			logger.Warn("threat: failed to parse bundled rule file, skipping", "file", name, "error", err)
			continue
		}

		stem := strings.TrimSuffix(name, ext)
		rules = append(rules, rulesFromDocument(stem, doc)...)
	}
	return rules
}

func rulesFromDocument(fileStem string, doc ruleDocument) []Rule {
	var rules []Rule

	for _, entry := range doc.Rules {
		patterns := entry.patterns()
		if len(patterns) == 0 {
			continue
		}
		rules = append(rules, Rule{
			ID:          entry.ID,
			Name:        entry.Name,
			Category:    entry.Category,
			Description: entry.Description,
			Severity:    Severity(strings.ToLower(entry.Severity)),
			Patterns:    patterns,
			Source:      SourceCommunity,
			Enabled:     true,
		})
	}

	for i, pattern := range doc.Patterns {
		rules = append(rules, Rule{
			ID:       fmt.Sprintf("%s-legacy-%d", fileStem, i+1),
			Name:     fmt.Sprintf("%s (legacy pattern %d)", fileStem, i+1),
			Category: "uncategorized",
			Severity: SeverityMedium,
			Patterns: []string{pattern},
			Source:   SourceCommunity,
			Enabled:  true,
		})
	}

	return rules
}

// Seed loads the bundled community rules and upserts them into repo,
// but only on first run: a seeded marker in the store prevents
// re-seeding (and clobbering user overrides) on every startup.
func Seed(ctx context.Context, repo Repository, logger *slog.Logger) error {
	seeded, err := repo.IsCommunitySeeded(ctx)
	if err != nil {
		return fmt.Errorf("threat: checking seed marker: %w", err)
	}
	if seeded {
		return nil
	}

	rules := LoadBundledRules(logger)
	if len(rules) == 0 {
		logger.Warn("threat: no bundled community rules found to seed")
	}
	if err := repo.SeedCommunityRules(ctx, rules); err != nil {
		return fmt.Errorf("threat: seeding community rules: %w", err)
	}
	return nil
}
