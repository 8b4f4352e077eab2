package cel

import (
	"path/filepath"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"
)

// EvaluationContext is the set of facts a rule condition may reference
// about the call under inspection.
type EvaluationContext struct {
	ToolName       string
	ToolArguments  map[string]interface{}
	AgentID        string
	AgentRoles     []string
	Provider       string
	DestDomain     string
	RiskScoreSoFar int
	ContentLength  int
}

// NewRuleConditionEnvironment builds the CEL environment used to evaluate
// a custom threat rule's optional condition expression.
func NewRuleConditionEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),

		cel.Variable("tool_name", cel.StringType),
		cel.Variable("tool_args", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("agent_id", cel.StringType),
		cel.Variable("agent_roles", cel.ListType(cel.StringType)),
		cel.Variable("provider", cel.StringType),
		cel.Variable("dest_domain", cel.StringType),
		cel.Variable("risk_score", cel.IntType),
		cel.Variable("content_length", cel.IntType),

		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, name ref.Val) ref.Val {
					p, _ := pattern.Value().(string)
					n, _ := name.Value().(string)
					matched, _ := filepath.Match(p, n)
					return types.Bool(matched)
				}),
			),
		),

		cel.Function("has_role",
			cel.Overload("has_role_list_string",
				[]*cel.Type{cel.ListType(cel.StringType), cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(rolesVal, roleVal ref.Val) ref.Val {
					role, _ := roleVal.Value().(string)
					roles, ok := rolesVal.Value().([]ref.Val)
					if ok {
						for _, r := range roles {
							if s, ok2 := r.Value().(string); ok2 && s == role {
								return types.Bool(true)
							}
						}
					}
					return types.Bool(false)
				}),
			),
		),
	)
}

// BuildActivation converts an EvaluationContext into the map CEL expects
// for its variable bindings, filling empty containers so missing data
// never turns into a CEL "no such key" evaluation error.
func BuildActivation(evalCtx EvaluationContext) map[string]any {
	args := evalCtx.ToolArguments
	if args == nil {
		args = map[string]interface{}{}
	}
	roles := evalCtx.AgentRoles
	if roles == nil {
		roles = []string{}
	}

	return map[string]any{
		"tool_name":      evalCtx.ToolName,
		"tool_args":      args,
		"agent_id":       evalCtx.AgentID,
		"agent_roles":    roles,
		"provider":       evalCtx.Provider,
		"dest_domain":    evalCtx.DestDomain,
		"risk_score":     int64(evalCtx.RiskScoreSoFar),
		"content_length": int64(evalCtx.ContentLength),
	}
}
