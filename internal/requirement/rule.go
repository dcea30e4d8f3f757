package requirement

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rafaeljc/discountrules/internal/localization"
	"github.com/rafaeljc/discountrules/internal/routing"
)

// Rule is the contract every discount requirement rule implements.
// Implementations hold no mutable state and are safe for concurrent use.
type Rule interface {
	// SystemName identifies the rule (e.g. "DiscountRequirement.Store").
	SystemName() string
	FriendlyName() string

	// CheckRequirement evaluates req. A nil req returns ErrInvalidArgument.
	// Settings lookup failures are returned as errors, never as an invalid result.
	CheckRequirement(ctx context.Context, req *ValidationRequest) (ValidationResult, error)

	// ConfigurationURL returns the relative path (no leading '/', no path base)
	// of the page configuring this rule instance.
	ConfigurationURL(rc routing.Context, discountID int, requirementID *int) (string, error)

	Install(ctx context.Context, labels localization.Registry) error
	Uninstall(ctx context.Context, labels localization.Registry) error
}

// Configurable is implemented by rules whose configuration is a single setting
// edited through a configure page.
type Configurable interface {
	Rule

	// ConfigureController names the controller serving the configure page.
	ConfigureController() string
	// SettingKey is the settings key holding the configuration of requirementID.
	SettingKey(requirementID int) string
	// ValidateSetting rejects raw values the rule could not evaluate.
	ValidateSetting(raw string) error
}

// ConfigureAction is the action name shared by every configure page.
const ConfigureAction = "Configure"

// descriptor carries the identity and lifecycle behavior shared by the rules.
// It is immutable after construction.
type descriptor struct {
	systemName   string
	friendlyName string
	entity       string
	controller   string
	labels       []localization.Label
}

func (d descriptor) SystemName() string          { return d.systemName }
func (d descriptor) FriendlyName() string        { return d.friendlyName }
func (d descriptor) ConfigureController() string { return d.controller }

func (d descriptor) SettingKey(requirementID int) string {
	return SettingKey(SettingsNamespace, d.entity, requirementID)
}

// Labels returns the localization resources the rule installs.
func (d descriptor) Labels() []localization.Label {
	return append([]localization.Label(nil), d.labels...)
}

func (d descriptor) Install(ctx context.Context, labels localization.Registry) error {
	if labels == nil {
		return fmt.Errorf("%w: %s: label registry is nil", ErrInvalidArgument, d.systemName)
	}
	return localization.RegisterAll(ctx, labels, d.labels)
}

func (d descriptor) Uninstall(ctx context.Context, labels localization.Registry) error {
	if labels == nil {
		return fmt.Errorf("%w: %s: label registry is nil", ErrInvalidArgument, d.systemName)
	}
	return localization.RemoveAll(ctx, labels, d.labels)
}

func (d descriptor) ConfigurationURL(rc routing.Context, discountID int, requirementID *int) (string, error) {
	return configurationURL(rc, d.controller, discountID, requirementID)
}

// configurationURL asks the reverse router for the configure page of a rule
// instance and makes the result relative: the path base is removed and the
// leading slashes are trimmed.
func configurationURL(rc routing.Context, controller string, discountID int, requirementID *int) (string, error) {
	if rc.URLs == nil {
		return "", fmt.Errorf("%w: routing context has no URL helper", ErrInvalidArgument)
	}

	values := url.Values{}
	values.Set("discountId", strconv.Itoa(discountID))
	if requirementID != nil {
		values.Set("discountRequirementId", strconv.Itoa(*requirementID))
	}

	u, err := rc.URLs.Action(ConfigureAction, controller, values)
	if err != nil {
		return "", fmt.Errorf("resolve configure route for %s: %w", controller, err)
	}

	return strings.TrimLeft(stripPathBase(u, rc.PathBase), "/"), nil
}

// stripPathBase removes base from the front of u when u starts with it on a
// segment boundary (case-insensitive). Otherwise u is returned unchanged.
func stripPathBase(u, base string) string {
	base = strings.TrimSuffix(base, "/")
	if base == "" || len(u) < len(base) {
		return u
	}
	if !strings.EqualFold(u[:len(base)], base) {
		return u
	}

	rest := u[len(base):]
	if rest == "" || rest[0] == '/' || rest[0] == '?' || rest[0] == '#' {
		return rest
	}
	return u
}
