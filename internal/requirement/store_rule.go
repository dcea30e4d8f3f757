package requirement

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rafaeljc/discountrules/internal/localization"
	"github.com/rafaeljc/discountrules/internal/settings"
	"github.com/rafaeljc/discountrules/internal/validation"
)

const (
	// StoreRuleSystemName identifies the store-scope rule.
	StoreRuleSystemName = "DiscountRequirement.Store"

	storeEntity     = "Store"
	storeController = "DiscountRulesStore"
)

var _ Configurable = (*StoreRule)(nil)

// StoreRule restricts a discount to a single store. The store id is stored
// under "DiscountRequirement.Store-{requirementId}".
type StoreRule struct {
	descriptor
	settings settings.Store
}

// NewStoreRule creates a store-scope rule reading its configuration from s.
func NewStoreRule(s settings.Store) *StoreRule {
	validation.AssertNotNilInterface(s, "settings store")

	return &StoreRule{
		descriptor: descriptor{
			systemName:   StoreRuleSystemName,
			friendlyName: "Must be in a specific store",
			entity:       storeEntity,
			controller:   storeController,
			labels: []localization.Label{
				{Key: "Plugins.DiscountRules.Store.Fields.SelectStore", Text: "Select store"},
				{Key: "Plugins.DiscountRules.Store.Fields.Store", Text: "Store"},
				{Key: "Plugins.DiscountRules.Store.Fields.Store.Hint", Text: "Select the store in which this discount will be valid."},
			},
		},
		settings: s,
	}
}

// CheckRequirement is valid only when the request's store is the configured one.
func (r *StoreRule) CheckRequirement(ctx context.Context, req *ValidationRequest) (ValidationResult, error) {
	if req == nil {
		return ValidationResult{}, nilRequestError(r.systemName)
	}
	if req.Customer == nil {
		return invalid(ReasonNoCustomer), nil
	}

	storeID, ok, err := r.StoreID(ctx, req.RequirementID)
	if err != nil {
		return ValidationResult{}, err
	}
	if !ok {
		return invalid(ReasonUnconfigured), nil
	}

	return matchResult(StoreID(req.Store.ID) == storeID), nil
}

// StoreID returns the configured store for requirementID. ok is false when
// nothing is stored or the stored value is 0.
func (r *StoreRule) StoreID(ctx context.Context, requirementID int) (StoreID, bool, error) {
	id, found, err := settings.Get[StoreID](ctx, r.settings, r.SettingKey(requirementID))
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", r.systemName, err)
	}
	if !found || id == 0 {
		return 0, false, nil
	}
	return id, true, nil
}

// ValidateSetting accepts a non-negative store id; 0 clears the restriction.
func (r *StoreRule) ValidateSetting(raw string) error {
	return validateNonNegativeID(raw, "store id")
}

func validateNonNegativeID(raw, what string) error {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %s %q is not an integer", ErrInvalidConfiguration, what, raw)
	}
	if n < 0 {
		return fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalidConfiguration, what, n)
	}
	return nil
}
