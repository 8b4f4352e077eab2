package threat

import "testing"

func TestLoadBundledRules(t *testing.T) {
	t.Parallel()

	rules := LoadBundledRules(testLogger())
	if len(rules) == 0 {
		t.Fatal("expected bundled rules to load")
	}

	var sawStructured, sawPatternValue, sawDetectionMatch, sawLegacy bool
	for _, r := range rules {
		switch r.ID {
		case "pi-001":
			sawStructured = true
			if r.Category != "prompt_injection" {
				t.Errorf("pi-001 category = %q", r.Category)
			}
		case "cmd-001":
			sawPatternValue = true
			if len(r.Patterns) != 2 {
				t.Errorf("cmd-001 patterns = %v, want 2", r.Patterns)
			}
		case "cmd-003":
			sawDetectionMatch = true
			if len(r.Patterns) != 2 {
				t.Errorf("cmd-003 patterns = %v, want 2", r.Patterns)
			}
		}
		if r.Source != SourceCommunity {
			t.Errorf("rule %q source = %q, want community", r.ID, r.Source)
		}
		if r.Category == "uncategorized" {
			sawLegacy = true
		}
	}

	if !sawStructured {
		t.Error("expected structured rules: sequence entry pi-001")
	}
	if !sawPatternValue {
		t.Error("expected pattern.value entry cmd-001")
	}
	if !sawDetectionMatch {
		t.Error("expected rule.detection[].match entry cmd-003")
	}
	if !sawLegacy {
		t.Error("expected at least one legacy flat-patterns rule")
	}
}

func TestRulesFromDocument_SkipsEmptyPatterns(t *testing.T) {
	t.Parallel()

	doc := ruleDocument{
		Rules: []ruleEntry{
			{ID: "empty", Name: "no patterns", Category: "x", Severity: "low"},
		},
	}
	rules := rulesFromDocument("stem", doc)
	if len(rules) != 0 {
		t.Errorf("expected rule with no patterns to be skipped, got %v", rules)
	}
}

func TestRulesFromDocument_LegacyNaming(t *testing.T) {
	t.Parallel()

	doc := ruleDocument{Patterns: []string{"foo", "bar"}}
	rules := rulesFromDocument("myfile", doc)
	if len(rules) != 2 {
		t.Fatalf("expected 2 legacy rules, got %d", len(rules))
	}
	if rules[0].ID != "myfile-legacy-1" || rules[1].ID != "myfile-legacy-2" {
		t.Errorf("unexpected legacy IDs: %q, %q", rules[0].ID, rules[1].ID)
	}
}
