// Package requirement implements discount requirement rules: pluggable,
// stateless evaluators deciding whether a discount applies to a customer in a
// store, based on a configuration value read from a settings store.
//
// Every rule is fail-closed. A missing customer or an unconfigured rule
// instance evaluates to invalid; only failures to read or interpret the
// configuration are reported as errors.
package requirement

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrInvalidArgument signals a programming error by the caller (e.g. a nil request).
	ErrInvalidArgument = errors.New("requirement: invalid argument")

	// ErrUnknownRule is returned by the Registry for an unregistered system name.
	ErrUnknownRule = errors.New("requirement: unknown rule")

	// ErrInvalidConfiguration is returned when a stored setting exists but cannot be used
	// (out of range, does not compile, wrong type).
	ErrInvalidConfiguration = errors.New("requirement: invalid configuration")
)

// Result reasons. They explain a result and never change IsValid.
const (
	ReasonNoCustomer   = "NO_CUSTOMER"
	ReasonUnconfigured = "UNCONFIGURED"
	ReasonMatch        = "MATCH"
	ReasonMismatch     = "MISMATCH"
)

// SettingsNamespace prefixes every key a rule stores its configuration under.
const SettingsNamespace = "DiscountRequirement"

// Customer is the actor a discount is being validated for.
type Customer struct {
	ID         int               `json:"id"`
	RoleIDs    []int             `json:"role_ids,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// HasRole reports whether the customer is assigned roleID.
func (c *Customer) HasRole(roleID int) bool {
	return c != nil && slices.Contains(c.RoleIDs, roleID)
}

// Store is the scope the validation runs in.
type Store struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

// ValidationRequest is the transient input of a single check.
type ValidationRequest struct {
	// Customer may be nil (anonymous request); rules then evaluate invalid.
	Customer *Customer
	Store    Store

	// DiscountID is informational; rules address configuration by RequirementID.
	DiscountID    int
	RequirementID int
}

// ValidationResult is the outcome of a check. The zero value is invalid.
type ValidationResult struct {
	IsValid bool   `json:"is_valid"`
	Reason  string `json:"reason,omitempty"`
}

func invalid(reason string) ValidationResult {
	return ValidationResult{Reason: reason}
}

func matchResult(ok bool) ValidationResult {
	if ok {
		return ValidationResult{IsValid: true, Reason: ReasonMatch}
	}
	return invalid(ReasonMismatch)
}

// StoreID is the store a Store rule instance is restricted to.
type StoreID int

// RoleID is the customer role a MustBeAssignedToCustomerRole rule instance requires.
type RoleID int

// SettingKey builds "<namespace>.<entity>-<id>", e.g. "DiscountRequirement.Store-5".
func SettingKey(namespace, entity string, id int) string {
	return fmt.Sprintf("%s.%s-%d", namespace, entity, id)
}

func nilRequestError(rule string) error {
	return fmt.Errorf("%w: %s: validation request is nil", ErrInvalidArgument, rule)
}
