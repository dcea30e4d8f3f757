package requirement

import (
	"context"
	"fmt"

	"github.com/rafaeljc/discountrules/internal/localization"
	"github.com/rafaeljc/discountrules/internal/settings"
	"github.com/rafaeljc/discountrules/internal/validation"
)

// RoleRuleSystemName identifies the customer role rule.
const RoleRuleSystemName = "DiscountRequirement.MustBeAssignedToCustomerRole"

var _ Configurable = (*RoleRule)(nil)

// RoleRule requires the customer to be assigned a configured role.
type RoleRule struct {
	descriptor
	settings settings.Store
}

func NewRoleRule(s settings.Store) *RoleRule {
	validation.AssertNotNilInterface(s, "settings store")

	return &RoleRule{
		descriptor: descriptor{
			systemName:   RoleRuleSystemName,
			friendlyName: "Must be assigned to customer role",
			entity:       "MustBeAssignedToCustomerRole",
			controller:   "DiscountRulesCustomerRoles",
			labels: []localization.Label{
				{Key: "Plugins.DiscountRules.CustomerRoles.Fields.CustomerRole", Text: "Required customer role"},
				{Key: "Plugins.DiscountRules.CustomerRoles.Fields.CustomerRole.Hint", Text: "Discount will be applied if customer is in the selected customer role."},
				{Key: "Plugins.DiscountRules.CustomerRoles.Fields.CustomerRole.Select", Text: "Select customer role"},
			},
		},
		settings: s,
	}
}

func (r *RoleRule) CheckRequirement(ctx context.Context, req *ValidationRequest) (ValidationResult, error) {
	if req == nil {
		return ValidationResult{}, nilRequestError(r.systemName)
	}
	if req.Customer == nil {
		return invalid(ReasonNoCustomer), nil
	}

	roleID, found, err := settings.Get[RoleID](ctx, r.settings, r.SettingKey(req.RequirementID))
	if err != nil {
		return ValidationResult{}, fmt.Errorf("%s: %w", r.systemName, err)
	}
	if !found || roleID == 0 {
		return invalid(ReasonUnconfigured), nil
	}

	return matchResult(req.Customer.HasRole(int(roleID))), nil
}

func (r *RoleRule) ValidateSetting(raw string) error {
	return validateNonNegativeID(raw, "role id")
}
