package requirement

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/rafaeljc/discountrules/internal/localization"
	"github.com/rafaeljc/discountrules/internal/settings"
	"github.com/rafaeljc/discountrules/internal/validation"
)

// PercentageRuleSystemName identifies the gradual rollout rule.
const PercentageRuleSystemName = "DiscountRequirement.Percentage"

var _ Configurable = (*PercentageRule)(nil)

// PercentageRule grants a discount to a stable share of customers.
// Customers are bucketed with Murmur3 over "customerID:requirementID", so a
// customer keeps the same answer for a rule instance and buckets of different
// instances are independent.
type PercentageRule struct {
	descriptor
	settings settings.Store
}

func NewPercentageRule(s settings.Store) *PercentageRule {
	validation.AssertNotNilInterface(s, "settings store")

	return &PercentageRule{
		descriptor: descriptor{
			systemName:   PercentageRuleSystemName,
			friendlyName: "Percentage of customers",
			entity:       "Percentage",
			controller:   "DiscountRulesPercentage",
			labels: []localization.Label{
				{Key: "Plugins.DiscountRules.Percentage.Fields.Percentage", Text: "Percentage of customers"},
				{Key: "Plugins.DiscountRules.Percentage.Fields.Percentage.Hint", Text: "Share of customers (1-100) this discount will be valid for."},
			},
		},
		settings: s,
	}
}

func (r *PercentageRule) CheckRequirement(ctx context.Context, req *ValidationRequest) (ValidationResult, error) {
	if req == nil {
		return ValidationResult{}, nilRequestError(r.systemName)
	}
	if req.Customer == nil {
		return invalid(ReasonNoCustomer), nil
	}

	pct, found, err := settings.Get[int](ctx, r.settings, r.SettingKey(req.RequirementID))
	if err != nil {
		return ValidationResult{}, fmt.Errorf("%s: %w", r.systemName, err)
	}
	if !found || pct == 0 {
		return invalid(ReasonUnconfigured), nil
	}
	if pct < 0 || pct > 100 {
		return ValidationResult{}, fmt.Errorf("%w: %s: percentage must be between 1 and 100, got %d",
			ErrInvalidConfiguration, r.systemName, pct)
	}

	return matchResult(bucket(req.Customer.ID, req.RequirementID) < pct), nil
}

func (r *PercentageRule) ValidateSetting(raw string) error {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: percentage %q is not an integer", ErrInvalidConfiguration, raw)
	}
	if n < 0 || n > 100 {
		return fmt.Errorf("%w: percentage must be between 0 and 100, got %d", ErrInvalidConfiguration, n)
	}
	return nil
}

// bucket maps a customer onto 0-99 for one rule instance.
func bucket(customerID, requirementID int) int {
	h := murmur3.New32()
	_, _ = h.Write([]byte(strconv.Itoa(customerID) + ":" + strconv.Itoa(requirementID)))
	return int(h.Sum32() % 100)
}
