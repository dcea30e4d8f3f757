package requirement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/rafaeljc/discountrules/internal/localization"
	"github.com/rafaeljc/discountrules/internal/observability"
	"github.com/rafaeljc/discountrules/internal/settings"
)

// Registry dispatches checks to rules by system name.
// It is read-only after construction and safe for concurrent use.
type Registry struct {
	rules  map[string]Rule
	logger *slog.Logger
}

// NewRegistry creates a Registry holding rules. Duplicate system names are rejected.
// If logger is nil, it defaults to slog.Default().
func NewRegistry(logger *slog.Logger, rules ...Rule) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m := make(map[string]Rule, len(rules))
	for _, r := range rules {
		if r == nil {
			return nil, fmt.Errorf("%w: nil rule", ErrInvalidArgument)
		}
		name := r.SystemName()
		if _, dup := m[name]; dup {
			return nil, fmt.Errorf("%w: duplicate rule %q", ErrInvalidArgument, name)
		}
		m[name] = r
	}

	return &Registry{rules: m, logger: logger}, nil
}

// NewDefaultRegistry registers every built-in rule on top of s.
func NewDefaultRegistry(logger *slog.Logger, s settings.Store) (*Registry, error) {
	expr, err := NewExpressionRule(s)
	if err != nil {
		return nil, err
	}

	return NewRegistry(logger,
		NewStoreRule(s),
		NewRoleRule(s),
		NewPercentageRule(s),
		expr,
	)
}

// Get returns the rule registered under systemName.
func (reg *Registry) Get(systemName string) (Rule, error) {
	r, ok := reg.rules[systemName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRule, systemName)
	}
	return r, nil
}

// Configurable returns the rule under systemName if it has a configure page.
func (reg *Registry) Configurable(systemName string) (Configurable, error) {
	r, err := reg.Get(systemName)
	if err != nil {
		return nil, err
	}
	c, ok := r.(Configurable)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not configurable", ErrUnknownRule, systemName)
	}
	return c, nil
}

// Rules returns every registered rule sorted by system name.
func (reg *Registry) Rules() []Rule {
	out := make([]Rule, 0, len(reg.rules))
	for _, r := range reg.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SystemName() < out[j].SystemName() })
	return out
}

// Check evaluates req with the rule registered under systemName.
func (reg *Registry) Check(ctx context.Context, systemName string, req *ValidationRequest) (ValidationResult, error) {
	r, err := reg.Get(systemName)
	if err != nil {
		return ValidationResult{}, err
	}
	if req == nil {
		observability.RequirementChecksTotal.WithLabelValues(systemName, "error").Inc()
		return ValidationResult{}, nilRequestError(systemName)
	}

	start := time.Now()
	res, err := r.CheckRequirement(ctx, req)
	observability.RequirementCheckDuration.WithLabelValues(systemName).Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		observability.RequirementChecksTotal.WithLabelValues(systemName, "error").Inc()
		if !errors.Is(err, ErrInvalidArgument) {
			reg.logger.Error("requirement check failed",
				slog.String("rule", systemName),
				slog.String("error", err.Error()),
			)
		}
		return ValidationResult{}, err
	case res.IsValid:
		observability.RequirementChecksTotal.WithLabelValues(systemName, "valid").Inc()
	default:
		observability.RequirementChecksTotal.WithLabelValues(systemName, "invalid").Inc()
	}

	reg.logger.Debug("requirement checked",
		slog.String("rule", systemName),
		slog.Int("requirement_id", req.RequirementID),
		slog.Bool("is_valid", res.IsValid),
		slog.String("reason", res.Reason),
	)
	return res, nil
}

// Binding attaches one rule instance to a discount.
type Binding struct {
	SystemName    string `json:"rule"`
	RequirementID int    `json:"requirement_id"`
}

// BindingResult is the outcome of one binding inside a batch.
type BindingResult struct {
	Binding
	ValidationResult
	Err error `json:"-"`
}

// BatchResult is the outcome of evaluating every requirement of a discount.
type BatchResult struct {
	// IsValid is true only when every binding evaluated valid without error.
	IsValid bool
	Results []BindingResult
}

// EvaluateAll checks every binding against the same customer and store
// (AND semantics). All bindings are evaluated even after a failure so the
// caller sees every reason. An empty binding list is valid.
func (reg *Registry) EvaluateAll(ctx context.Context, bindings []Binding, req *ValidationRequest) (BatchResult, error) {
	if req == nil {
		return BatchResult{}, fmt.Errorf("%w: validation request is nil", ErrInvalidArgument)
	}

	batch := BatchResult{IsValid: true, Results: make([]BindingResult, 0, len(bindings))}
	for _, b := range bindings {
		perBinding := *req
		perBinding.RequirementID = b.RequirementID

		res, err := reg.Check(ctx, b.SystemName, &perBinding)
		batch.Results = append(batch.Results, BindingResult{Binding: b, ValidationResult: res, Err: err})
		if err != nil || !res.IsValid {
			batch.IsValid = false
		}
	}

	return batch, nil
}

// InstallAll installs the labels of every rule.
func (reg *Registry) InstallAll(ctx context.Context, labels localization.Registry) error {
	for _, r := range reg.Rules() {
		if err := r.Install(ctx, labels); err != nil {
			return fmt.Errorf("install %s: %w", r.SystemName(), err)
		}
		reg.logger.Info("rule installed", slog.String("rule", r.SystemName()))
	}
	return nil
}

// UninstallAll removes the labels of every rule.
func (reg *Registry) UninstallAll(ctx context.Context, labels localization.Registry) error {
	for _, r := range reg.Rules() {
		if err := r.Uninstall(ctx, labels); err != nil {
			return fmt.Errorf("uninstall %s: %w", r.SystemName(), err)
		}
		reg.logger.Info("rule uninstalled", slog.String("rule", r.SystemName()))
	}
	return nil
}
