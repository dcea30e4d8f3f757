package requirement

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/rafaeljc/discountrules/internal/localization"
	"github.com/rafaeljc/discountrules/internal/settings"
	"github.com/rafaeljc/discountrules/internal/validation"
)

// ExpressionRuleSystemName identifies the CEL expression rule.
const ExpressionRuleSystemName = "DiscountRequirement.Expression"

// expressionCostLimit bounds the work a single stored expression may do.
const expressionCostLimit = 100_000

var _ Configurable = (*ExpressionRule)(nil)

// ExpressionRule evaluates a stored CEL expression against the request.
//
// Two variables are declared:
//
//	customer: {"id": int, "roles": list(int), "attributes": map(string, string)}
//	store:    {"id": int, "name": string}
//
// Example: `store.id == 2 && 3 in customer.roles`.
type ExpressionRule struct {
	descriptor
	settings settings.Store
	env      *cel.Env
}

// NewExpressionRule fails only if the CEL environment cannot be built.
func NewExpressionRule(s settings.Store) (*ExpressionRule, error) {
	validation.AssertNotNilInterface(s, "settings store")

	env, err := cel.NewEnv(
		cel.Variable("customer", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("store", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &ExpressionRule{
		descriptor: descriptor{
			systemName:   ExpressionRuleSystemName,
			friendlyName: "Custom expression",
			entity:       "Expression",
			controller:   "DiscountRulesExpression",
			labels: []localization.Label{
				{Key: "Plugins.DiscountRules.Expression.Fields.Expression", Text: "Expression"},
				{Key: "Plugins.DiscountRules.Expression.Fields.Expression.Hint", Text: "Boolean expression over 'customer' and 'store'. The discount is valid when it evaluates to true."},
			},
		},
		settings: s,
		env:      env,
	}, nil
}

// CheckRequirement compiles the stored expression on every call; the rule
// keeps no per-instance program cache.
func (r *ExpressionRule) CheckRequirement(ctx context.Context, req *ValidationRequest) (ValidationResult, error) {
	if req == nil {
		return ValidationResult{}, nilRequestError(r.systemName)
	}
	if req.Customer == nil {
		return invalid(ReasonNoCustomer), nil
	}

	expr, found, err := settings.Get[string](ctx, r.settings, r.SettingKey(req.RequirementID))
	if err != nil {
		return ValidationResult{}, fmt.Errorf("%s: %w", r.systemName, err)
	}
	if !found || strings.TrimSpace(expr) == "" {
		return invalid(ReasonUnconfigured), nil
	}

	prg, err := r.program(expr)
	if err != nil {
		return ValidationResult{}, err
	}

	out, _, err := prg.ContextEval(ctx, activation(req))
	if err != nil {
		return ValidationResult{}, fmt.Errorf("%w: %s: evaluate: %v", ErrInvalidConfiguration, r.systemName, err)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return ValidationResult{}, fmt.Errorf("%w: %s: expression returned %T, want bool",
			ErrInvalidConfiguration, r.systemName, out.Value())
	}

	return matchResult(matched), nil
}

// ValidateSetting compiles raw without evaluating it. An empty value clears the rule.
func (r *ExpressionRule) ValidateSetting(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	_, err := r.program(raw)
	return err
}

func (r *ExpressionRule) program(expr string) (cel.Program, error) {
	ast, issues := r.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %s: compile: %v", ErrInvalidConfiguration, r.systemName, issues.Err())
	}

	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: %s: expression must be boolean, got %s",
			ErrInvalidConfiguration, r.systemName, out)
	}

	prg, err := r.env.Program(ast, cel.CostLimit(expressionCostLimit))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: program: %v", ErrInvalidConfiguration, r.systemName, err)
	}
	return prg, nil
}

func activation(req *ValidationRequest) map[string]any {
	roles := make([]int64, 0, len(req.Customer.RoleIDs))
	for _, id := range req.Customer.RoleIDs {
		roles = append(roles, int64(id))
	}

	attrs := req.Customer.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}

	return map[string]any{
		"customer": map[string]any{
			"id":         int64(req.Customer.ID),
			"roles":      roles,
			"attributes": attrs,
		},
		"store": map[string]any{
			"id":   int64(req.Store.ID),
			"name": req.Store.Name,
		},
	}
}
