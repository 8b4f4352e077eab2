package cel

import (
	"testing"

	"github.com/google/cel-go/cel"
)

// compileAndEval is a helper that compiles and evaluates a CEL expression
// against an activation built from the given EvaluationContext.
func compileAndEval(t *testing.T, expr string, evalCtx EvaluationContext) bool {
	t.Helper()
	env, err := NewRuleConditionEnvironment()
	if err != nil {
		t.Fatalf("NewRuleConditionEnvironment() error: %v", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		t.Fatalf("Compile(%q) error: %v", expr, issues.Err())
	}

	prg, err := env.Program(ast, cel.EvalOptions(cel.OptOptimize))
	if err != nil {
		t.Fatalf("Program() error: %v", err)
	}

	activation := BuildActivation(evalCtx)
	result, _, err := prg.Eval(activation)
	if err != nil {
		t.Fatalf("Eval(%q) error: %v", expr, err)
	}

	b, ok := result.Value().(bool)
	if !ok {
		t.Fatalf("Eval(%q) returned %T, want bool", expr, result.Value())
	}
	return b
}

func baseContext() EvaluationContext {
	return EvaluationContext{
		ToolName:      "read_file",
		ToolArguments: map[string]interface{}{"path": "/etc/passwd"},
		AgentID:       "agent-1",
		AgentRoles:    []string{"admin", "user"},
		Provider:      "openai",
	}
}

func TestUniversalEnv_ToolName(t *testing.T) {
	ctx := baseContext()
	if !compileAndEval(t, `tool_name == "read_file"`, ctx) {
		t.Error("expected tool_name == 'read_file' to be true")
	}
	if compileAndEval(t, `tool_name == "write_file"`, ctx) {
		t.Error("expected tool_name == 'write_file' to be false")
	}
}

func TestUniversalEnv_AgentRoles(t *testing.T) {
	ctx := baseContext()
	if !compileAndEval(t, `"admin" in agent_roles`, ctx) {
		t.Error("expected 'admin' in agent_roles to be true")
	}
	if compileAndEval(t, `"superadmin" in agent_roles`, ctx) {
		t.Error("expected 'superadmin' in agent_roles to be false")
	}
}

func TestUniversalEnv_Glob(t *testing.T) {
	ctx := baseContext()
	if !compileAndEval(t, `glob("read_*", tool_name)`, ctx) {
		t.Error("expected glob('read_*', tool_name) to be true")
	}
	if compileAndEval(t, `glob("write_*", tool_name)`, ctx) {
		t.Error("expected glob('write_*', tool_name) to be false")
	}
}

func TestUniversalEnv_Provider(t *testing.T) {
	ctx := baseContext()
	if !compileAndEval(t, `provider == "openai"`, ctx) {
		t.Error("expected provider == 'openai' to be true")
	}
	if compileAndEval(t, `provider == "anthropic"`, ctx) {
		t.Error("expected provider == 'anthropic' to be false")
	}
}

func TestUniversalEnv_DestDomain(t *testing.T) {
	ctx := baseContext()
	ctx.DestDomain = "evil.com"
	if !compileAndEval(t, `dest_domain == "evil.com"`, ctx) {
		t.Error("expected dest_domain == 'evil.com' to be true")
	}
	if compileAndEval(t, `dest_domain == "safe.com"`, ctx) {
		t.Error("expected dest_domain == 'safe.com' to be false")
	}
}

func TestUniversalEnv_RiskScoreAndContentLength(t *testing.T) {
	ctx := baseContext()
	ctx.RiskScoreSoFar = 60
	ctx.ContentLength = 4096

	if !compileAndEval(t, `risk_score >= 50 && content_length > 1000`, ctx) {
		t.Error("expected risk_score >= 50 && content_length > 1000 to be true")
	}
}

func TestUniversalEnv_HasRole(t *testing.T) {
	ctx := baseContext()
	ctx.AgentRoles = []string{"editor", "approver"}
	if !compileAndEval(t, `has_role(agent_roles, "approver")`, ctx) {
		t.Error("expected has_role(agent_roles, 'approver') to be true")
	}
	if compileAndEval(t, `has_role(agent_roles, "owner")`, ctx) {
		t.Error("expected has_role(agent_roles, 'owner') to be false")
	}
}

func TestBuildActivation_NilSafety(t *testing.T) {
	ctx := EvaluationContext{ToolName: "test"}

	activation := BuildActivation(ctx)

	if activation["tool_args"] == nil {
		t.Error("tool_args should not be nil")
	}
	if activation["agent_roles"] == nil {
		t.Error("agent_roles should not be nil")
	}
}
