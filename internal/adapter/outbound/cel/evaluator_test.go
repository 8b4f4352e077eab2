package cel

import (
	"strings"
	"testing"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	if eval == nil {
		t.Fatal("NewEvaluator() returned nil")
	}
}

func TestCompile_ValidExpression(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	prg, err := eval.Compile(`tool_name == "read_file"`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if prg == nil {
		t.Fatal("Compile() returned nil program")
	}
}

func TestCompile_InvalidExpression(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	_, err = eval.Compile(`this is not valid CEL !!!`)
	if err == nil {
		t.Fatal("Compile() expected error for invalid expression, got nil")
	}
}

func TestEvaluate_TrueCondition(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	prg, err := eval.Compile(`tool_name == "read_file"`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	ctx := EvaluationContext{
		ToolName:      "read_file",
		ToolArguments: map[string]interface{}{},
		AgentRoles:    []string{"admin"},
		AgentID:       "agent-1",
	}

	result, err := eval.Evaluate(prg, ctx)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !result {
		t.Error("expected true, got false")
	}
}

func TestEvaluate_FalseCondition(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	prg, err := eval.Compile(`tool_name == "write_file"`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	ctx := EvaluationContext{
		ToolName:      "read_file",
		ToolArguments: map[string]interface{}{},
		AgentRoles:    []string{},
		AgentID:       "agent-1",
	}

	result, err := eval.Evaluate(prg, ctx)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if result {
		t.Error("expected false, got true")
	}
}

func TestValidateExpression_Valid(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	tests := []string{
		`tool_name == "read_file"`,
		`tool_name.startsWith("file_")`,
		`agent_roles.exists(r, r == "admin")`,
		`glob("file_*", tool_name)`,
		`true`,
	}

	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			if err := eval.ValidateExpression(expr); err != nil {
				t.Errorf("ValidateExpression(%q) unexpected error: %v", expr, err)
			}
		})
	}
}

func TestValidateExpression_Invalid(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	tests := []struct {
		name string
		expr string
		want string // substring expected in error
	}{
		{"empty", "", "empty"},
		{"syntax error", "this is not valid !!!", "invalid CEL"},
		{"undefined var", "nonexistent_var == true", "invalid CEL"},
		{"too long", strings.Repeat("a", 1025), "too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateExpression(tt.expr)
			if err == nil {
				t.Fatalf("ValidateExpression(%q) expected error, got nil", tt.expr)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestValidateExpression_MaxLength(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	expr := `tool_name == "` + strings.Repeat("a", 1024-16) + `"`
	if len(expr) > 1024 {
		t.Fatalf("test setup: expr length %d > 1024", len(expr))
	}
	if err := eval.ValidateExpression(expr); err != nil {
		t.Errorf("expression at limit should be valid, got: %v", err)
	}

	exprOver := expr + "x"
	if err := eval.ValidateExpression(exprOver); err == nil {
		t.Error("expression over limit should be rejected")
	}
}

func TestEvaluate_GlobFunction(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	prg, err := eval.Compile(`glob("file_*", tool_name)`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	ctx := EvaluationContext{
		ToolName:      "file_read",
		ToolArguments: map[string]interface{}{},
		AgentRoles:    []string{},
	}

	result, err := eval.Evaluate(prg, ctx)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !result {
		t.Error("glob('file_*', 'file_read') should be true")
	}
}

func TestEvaluate_HasRoleFunction(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	prg, err := eval.Compile(`has_role(agent_roles, "approver")`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	ctx := EvaluationContext{
		ToolName:   "delete_file",
		AgentRoles: []string{"editor", "approver"},
	}

	result, err := eval.Evaluate(prg, ctx)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !result {
		t.Error("has_role(['editor','approver'], 'approver') should be true")
	}
}

func TestValidateExpression_NestingDepth(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	buildNested := func(depth int) string {
		var b strings.Builder
		for i := 0; i < depth; i++ {
			b.WriteByte('(')
		}
		b.WriteString("true")
		for i := 0; i < depth; i++ {
			b.WriteByte(')')
		}
		return b.String()
	}

	t.Run("deeply_nested_60_levels_rejected", func(t *testing.T) {
		err := eval.ValidateExpression(buildNested(60))
		if err == nil {
			t.Fatal("expected error for 60 levels of nesting, got nil")
		}
		if !strings.Contains(err.Error(), "nesting too deep") {
			t.Errorf("error %q should contain 'nesting too deep'", err.Error())
		}
	})

	t.Run("at_limit_50_levels_accepted", func(t *testing.T) {
		if err := eval.ValidateExpression(buildNested(50)); err != nil {
			t.Errorf("expression at nesting limit (50) should be valid, got: %v", err)
		}
	})

	t.Run("just_over_limit_51_levels_rejected", func(t *testing.T) {
		err := eval.ValidateExpression(buildNested(51))
		if err == nil {
			t.Fatal("expected error for 51 levels of nesting, got nil")
		}
		if !strings.Contains(err.Error(), "51 levels") {
			t.Errorf("error %q should mention '51 levels'", err.Error())
		}
	})

	t.Run("unbalanced_brackets_caught_by_CEL_compiler", func(t *testing.T) {
		err := eval.ValidateExpression("(((true)")
		if err == nil {
			t.Fatal("expected error for unbalanced brackets")
		}
		if strings.Contains(err.Error(), "nesting too deep") {
			t.Error("unbalanced brackets should be caught by CEL compiler, not nesting validator")
		}
		if !strings.Contains(err.Error(), "invalid CEL") {
			t.Errorf("error %q should contain 'invalid CEL'", err.Error())
		}
	})
}

func TestCompile_CostLimitConfigured(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	prg, err := eval.Compile(`agent_roles.exists(r, r == "admin")`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	ctx := EvaluationContext{AgentRoles: []string{"viewer", "editor", "admin"}}
	result, err := eval.Evaluate(prg, ctx)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !result {
		t.Error("expected true for admin in roles, got false")
	}
}

func TestEvaluate_ToolArgsAccess(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	prg, err := eval.Compile(`tool_args["path"] == "/etc/passwd"`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	ctx := EvaluationContext{
		ToolName:      "read_file",
		ToolArguments: map[string]interface{}{"path": "/etc/passwd"},
	}
	result, err := eval.Evaluate(prg, ctx)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !result {
		t.Error("expected true, got false")
	}
}

func TestValidateNesting(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"no_nesting", "true", false},
		{"single_level", "(true)", false},
		{"50_levels", strings.Repeat("(", 50) + "true" + strings.Repeat(")", 50), false},
		{"51_levels", strings.Repeat("(", 51) + "true" + strings.Repeat(")", 51), true},
		{"100_levels", strings.Repeat("(", 100) + "true" + strings.Repeat(")", 100), true},
		{"interleaved_types", "([{true}])", false},
		{"empty_string", "", false},
		{"only_openers", strings.Repeat("(", 60), true},
		{"deep_square_brackets", strings.Repeat("[", 51) + strings.Repeat("]", 51), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateNesting(tt.expr)
			if tt.wantErr && err == nil {
				t.Errorf("validateNesting(%q) expected error, got nil", tt.name)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("validateNesting(%q) unexpected error: %v", tt.name, err)
			}
		})
	}
}
