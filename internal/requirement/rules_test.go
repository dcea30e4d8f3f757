package requirement

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/discountrules/internal/localization"
	"github.com/rafaeljc/discountrules/internal/routing"
	"github.com/rafaeljc/discountrules/internal/settings"
)

func allRules(t *testing.T, s settings.Store) []Configurable {
	t.Helper()

	expr, err := NewExpressionRule(s)
	require.NoError(t, err)

	return []Configurable{NewStoreRule(s), NewRoleRule(s), NewPercentageRule(s), expr}
}

func TestRules_FailClosed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	for _, rule := range allRules(t, settings.NewMemoryStore(nil)) {
		t.Run(rule.SystemName()+" Should be invalid without a customer", func(t *testing.T) {
			t.Parallel()

			res, err := rule.CheckRequirement(ctx, &ValidationRequest{Store: Store{ID: 1}, RequirementID: 1})
			require.NoError(t, err)
			assert.False(t, res.IsValid)
			assert.Equal(t, ReasonNoCustomer, res.Reason)
		})

		t.Run(rule.SystemName()+" Should be invalid when unconfigured", func(t *testing.T) {
			t.Parallel()

			res, err := rule.CheckRequirement(ctx, &ValidationRequest{
				Customer:      &Customer{ID: 1, RoleIDs: []int{1}},
				Store:         Store{ID: 1},
				RequirementID: 1,
			})
			require.NoError(t, err)
			assert.False(t, res.IsValid)
			assert.Equal(t, ReasonUnconfigured, res.Reason)
		})

		t.Run(rule.SystemName()+" Should propagate settings failures", func(t *testing.T) {
			t.Parallel()

			var broken Configurable
			for _, r := range allRules(t, brokenStore{}) {
				if r.SystemName() == rule.SystemName() {
					broken = r
				}
			}
			require.NotNil(t, broken)

			_, err := broken.CheckRequirement(ctx, &ValidationRequest{Customer: &Customer{ID: 1}, RequirementID: 1})
			assert.Error(t, err)
		})
	}
}

func TestRules_DistinctConfiguration(t *testing.T) {
	t.Parallel()

	rc := routing.Context{URLs: fakeURLs{}}
	controllers := map[string]bool{}
	keys := map[string]bool{}

	for _, rule := range allRules(t, settings.NewMemoryStore(nil)) {
		controllers[rule.ConfigureController()] = true
		keys[rule.SettingKey(1)] = true

		u, err := rule.ConfigurationURL(rc, 3, nil)
		require.NoError(t, err)
		assert.Equal(t, "Configure/"+rule.ConfigureController()+"?discountId=3", u)
	}

	assert.Len(t, controllers, 4)
	assert.Len(t, keys, 4)
}

func TestRoleRule_CheckRequirement(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rule := NewRoleRule(settings.NewMemoryStore(map[string]string{
		"DiscountRequirement.MustBeAssignedToCustomerRole-1": "3",
		"DiscountRequirement.MustBeAssignedToCustomerRole-2": "0",
	}))

	tests := []struct {
		name          string
		requirementID int
		roles         []int
		wantValid     bool
		wantReason    string
	}{
		{name: "Should be valid when the customer has the role", requirementID: 1, roles: []int{1, 3}, wantValid: true, wantReason: ReasonMatch},
		{name: "Should be invalid when the customer lacks the role", requirementID: 1, roles: []int{1, 2}, wantReason: ReasonMismatch},
		{name: "Should be invalid for a customer without roles", requirementID: 1, wantReason: ReasonMismatch},
		{name: "Should be invalid when role id 0 is stored", requirementID: 2, roles: []int{0}, wantReason: ReasonUnconfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res, err := rule.CheckRequirement(ctx, &ValidationRequest{
				Customer:      &Customer{ID: 10, RoleIDs: tt.roles},
				Store:         Store{ID: 1},
				RequirementID: tt.requirementID,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, res.IsValid)
			assert.Equal(t, tt.wantReason, res.Reason)
		})
	}
}

func TestPercentageRule_Boundaries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rule := NewPercentageRule(settings.NewMemoryStore(map[string]string{
		"DiscountRequirement.Percentage-1":   "100",
		"DiscountRequirement.Percentage-2":   "1",
		"DiscountRequirement.Percentage-3":   "101",
		"DiscountRequirement.Percentage-4":   "-5",
		"DiscountRequirement.Percentage-100": "0",
	}))

	t.Run("Should admit every customer at 100%", func(t *testing.T) {
		t.Parallel()

		for id := range 2000 {
			res, err := rule.CheckRequirement(ctx, &ValidationRequest{Customer: &Customer{ID: id}, RequirementID: 1})
			require.NoError(t, err)
			if !res.IsValid {
				t.Fatalf("customer %d rejected at 100%%", id)
			}
		}
	})

	t.Run("Should treat 0% as unconfigured", func(t *testing.T) {
		t.Parallel()

		res, err := rule.CheckRequirement(ctx, &ValidationRequest{Customer: &Customer{ID: 1}, RequirementID: 100})
		require.NoError(t, err)
		assert.Equal(t, ReasonUnconfigured, res.Reason)
	})

	t.Run("Should reject out of range percentages as configuration errors", func(t *testing.T) {
		t.Parallel()

		for _, reqID := range []int{3, 4} {
			_, err := rule.CheckRequirement(ctx, &ValidationRequest{Customer: &Customer{ID: 1}, RequirementID: reqID})
			assert.ErrorIs(t, err, ErrInvalidConfiguration, "requirement %d", reqID)
		}
	})

	t.Run("Should admit a small share at 1%", func(t *testing.T) {
		t.Parallel()

		admitted := 0
		for id := range 10000 {
			res, err := rule.CheckRequirement(ctx, &ValidationRequest{Customer: &Customer{ID: id}, RequirementID: 2})
			require.NoError(t, err)
			if res.IsValid {
				admitted++
			}
		}
		assert.InDelta(t, 100, admitted, 60)
	})
}

func TestPercentageRule_Stickiness(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rule := NewPercentageRule(settings.NewMemoryStore(map[string]string{
		"DiscountRequirement.Percentage-7": "50",
		"DiscountRequirement.Percentage-8": "50",
	}))

	t.Run("Should return the same answer for the same customer", func(t *testing.T) {
		t.Parallel()

		req := &ValidationRequest{Customer: &Customer{ID: 12345}, RequirementID: 7}
		first, err := rule.CheckRequirement(ctx, req)
		require.NoError(t, err)

		for i := range 1000 {
			got, err := rule.CheckRequirement(ctx, req)
			require.NoError(t, err)
			require.Equal(t, first.IsValid, got.IsValid, "result flipped on iteration %d", i)
		}
	})

	t.Run("Should bucket independently per requirement", func(t *testing.T) {
		t.Parallel()

		differ := 0
		for id := range 1000 {
			a, err := rule.CheckRequirement(ctx, &ValidationRequest{Customer: &Customer{ID: id}, RequirementID: 7})
			require.NoError(t, err)
			b, err := rule.CheckRequirement(ctx, &ValidationRequest{Customer: &Customer{ID: id}, RequirementID: 8})
			require.NoError(t, err)
			if a.IsValid != b.IsValid {
				differ++
			}
		}
		assert.Greater(t, differ, 300, "requirements should not share buckets")
	})
}

func TestPercentageRule_ValidateSetting(t *testing.T) {
	t.Parallel()

	rule := NewPercentageRule(settings.NewMemoryStore(nil))

	for _, ok := range []string{"0", "1", "50", "100", " 20 "} {
		assert.NoError(t, rule.ValidateSetting(ok), ok)
	}
	for _, bad := range []string{"-1", "101", "half", ""} {
		assert.ErrorIs(t, rule.ValidateSetting(bad), ErrInvalidConfiguration, bad)
	}
}

func TestExpressionRule_CheckRequirement(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tests := []struct {
		name       string
		expr       string
		customer   *Customer
		store      Store
		wantValid  bool
		wantReason string
		wantErr    error
	}{
		{
			name:       "Should be valid when the expression holds",
			expr:       `store.id == 2 && 3 in customer.roles`,
			customer:   &Customer{ID: 1, RoleIDs: []int{3}},
			store:      Store{ID: 2},
			wantValid:  true,
			wantReason: ReasonMatch,
		},
		{
			name:       "Should be invalid when the expression is false",
			expr:       `store.id == 2`,
			customer:   &Customer{ID: 1},
			store:      Store{ID: 5},
			wantReason: ReasonMismatch,
		},
		{
			name:       "Should read customer attributes",
			expr:       `has(customer.attributes.tier) && customer.attributes.tier == "gold"`,
			customer:   &Customer{ID: 1, Attributes: map[string]string{"tier": "gold"}},
			wantValid:  true,
			wantReason: ReasonMatch,
		},
		{
			name:       "Should treat a blank expression as unconfigured",
			expr:       "   ",
			customer:   &Customer{ID: 1},
			wantReason: ReasonUnconfigured,
		},
		{
			name:     "Should fail on expressions that do not compile",
			expr:     `store.id ==`,
			customer: &Customer{ID: 1},
			wantErr:  ErrInvalidConfiguration,
		},
		{
			name:     "Should fail on non-boolean expressions",
			expr:     `store.id + 1`,
			customer: &Customer{ID: 1},
			store:    Store{ID: 1},
			wantErr:  ErrInvalidConfiguration,
		},
		{
			name:     "Should fail on runtime errors",
			expr:     `customer.attributes.missing == "x"`,
			customer: &Customer{ID: 1},
			wantErr:  ErrInvalidConfiguration,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			key := fmt.Sprintf("DiscountRequirement.Expression-%d", i)
			rule, err := NewExpressionRule(settings.NewMemoryStore(map[string]string{key: tt.expr}))
			require.NoError(t, err)

			res, err := rule.CheckRequirement(ctx, &ValidationRequest{Customer: tt.customer, Store: tt.store, RequirementID: i})

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, res.IsValid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, res.IsValid)
			assert.Equal(t, tt.wantReason, res.Reason)
		})
	}
}

func TestExpressionRule_ValidateSetting(t *testing.T) {
	t.Parallel()

	rule, err := NewExpressionRule(settings.NewMemoryStore(nil))
	require.NoError(t, err)

	assert.NoError(t, rule.ValidateSetting(`customer.id > 100`))
	assert.NoError(t, rule.ValidateSetting(""), "empty clears the rule")
	assert.ErrorIs(t, rule.ValidateSetting(`customer.id >`), ErrInvalidConfiguration)
	assert.ErrorIs(t, rule.ValidateSetting(`"text"`), ErrInvalidConfiguration)
	assert.ErrorIs(t, rule.ValidateSetting(`unknown_var == 1`), ErrInvalidConfiguration)
}

func TestRules_InstallRegistersOwnLabels(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	labels := localization.NewMemoryRegistry()

	for _, rule := range allRules(t, settings.NewMemoryStore(nil)) {
		require.NoError(t, rule.Install(ctx, labels), rule.SystemName())
	}
	installed := len(labels.Snapshot())
	assert.Greater(t, installed, 3)

	for _, rule := range allRules(t, settings.NewMemoryStore(nil)) {
		require.NoError(t, rule.Uninstall(ctx, labels), rule.SystemName())
	}
	assert.Empty(t, labels.Snapshot())
}
