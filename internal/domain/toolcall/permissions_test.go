package toolcall

import (
	"context"
	"testing"
)

type fakeRepo struct {
	overrides []Override
	custom    []RegistryEntry
}

func (f *fakeRepo) ListOverrides(ctx context.Context) ([]Override, error) { return f.overrides, nil }
func (f *fakeRepo) ListCustomTools(ctx context.Context) ([]RegistryEntry, error) {
	return f.custom, nil
}

func TestEvaluate_ScenarioE_EssentialToolBlockedByDefault(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(&fakeRepo{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	decision, err := engine.Evaluate(context.Background(), "aws.iam_create_user")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if decision.Action != ActionBlock {
		t.Errorf("Action = %q, want block", decision.Action)
	}
	if !decision.IsEssential {
		t.Error("expected is_essential = true")
	}
}

func TestEvaluate_ScenarioE_OverrideFlipsToAllow(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(&fakeRepo{overrides: []Override{
		{ToolID: "aws.iam_create_user", Action: ActionAllow, Reason: "approved for this agent"},
	}})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	decision, err := engine.Evaluate(context.Background(), "aws.iam_create_user")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if decision.Action != ActionAllow {
		t.Errorf("Action = %q, want allow", decision.Action)
	}
}

func TestEvaluate_SuffixMatch(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(&fakeRepo{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	decision, err := engine.Evaluate(context.Background(), "send_email")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if decision.ToolID != "gmail.send_email" {
		t.Errorf("ToolID = %q, want gmail.send_email", decision.ToolID)
	}
	if !decision.IsEssential {
		t.Error("expected is_essential = true via suffix match")
	}
}

func TestEvaluate_SuffixMatch_OverrideByRegistryID(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(&fakeRepo{overrides: []Override{
		{ToolID: "gmail.send_email", Action: ActionBlock, Reason: "disabled for this deployment"},
	}})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	decision, err := engine.Evaluate(context.Background(), "send_email")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if decision.Action != ActionBlock {
		t.Errorf("Action = %q, want block", decision.Action)
	}
}

func TestEvaluate_CustomRegistry(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(&fakeRepo{custom: []RegistryEntry{
		{ToolID: "internal.wipe_cache", RiskTier: RiskWrite, DefaultAction: ActionLogOnly, Reason: "custom tool"},
	}})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	decision, err := engine.Evaluate(context.Background(), "internal.wipe_cache")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if decision.Action != ActionLogOnly || !decision.IsEssential {
		t.Errorf("decision = %+v", decision)
	}
}

func TestEvaluate_NonEssentialPassThrough(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(&fakeRepo{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	decision, err := engine.Evaluate(context.Background(), "get_current_time")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if decision.Action != ActionLogOnly {
		t.Errorf("Action = %q, want log_only", decision.Action)
	}
	if decision.IsEssential {
		t.Error("expected is_essential = false")
	}
	if decision.Reason != "non-essential" {
		t.Errorf("Reason = %q", decision.Reason)
	}
}

func TestEvaluate_OverrideRemoved_RevertsToDefault(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{overrides: []Override{
		{ToolID: "aws.iam_create_user", Action: ActionAllow},
	}}
	engine, err := NewEngine(repo)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	decision, err := engine.Evaluate(context.Background(), "aws.iam_create_user")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if decision.Action != ActionAllow {
		t.Fatalf("Action = %q, want allow", decision.Action)
	}

	repo.overrides = nil
	if err := engine.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	decision, err = engine.Evaluate(context.Background(), "aws.iam_create_user")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if decision.Action != ActionBlock {
		t.Errorf("Action after override removal = %q, want block", decision.Action)
	}
}

func TestScoreForTier(t *testing.T) {
	t.Parallel()

	cases := map[RiskTier]int{RiskRead: 20, RiskWrite: 50, RiskDelete: 75, RiskAdmin: 90}
	for tier, want := range cases {
		if got := ScoreForTier(tier); got != want {
			t.Errorf("ScoreForTier(%q) = %d, want %d", tier, got, want)
		}
	}
}
