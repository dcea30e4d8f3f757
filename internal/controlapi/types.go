package controlapi

import (
	"strings"

	"github.com/rafaeljc/discountrules/internal/requirement"
)

// maxBindings bounds a single evaluate request.
const maxBindings = 100

// RuleInfo describes a registered rule.
type RuleInfo struct {
	SystemName   string `json:"system_name"`
	FriendlyName string `json:"friendly_name"`
	// ConfigurePath is empty for rules without a configure page.
	ConfigurePath string `json:"configure_path,omitempty"`
}

// ListRulesResponse is the body of GET /api/v1/rules.
type ListRulesResponse struct {
	Data []RuleInfo `json:"data"`
}

// ConfigurationURLResponse is the body of GET /api/v1/rules/{systemName}/configuration-url.
type ConfigurationURLResponse struct {
	URL string `json:"url"`
}

// CustomerPayload is the customer part of a check request.
type CustomerPayload struct {
	ID         int               `json:"id"`
	RoleIDs    []int             `json:"role_ids,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// StorePayload is the store part of a check request.
type StorePayload struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

// CheckRequest is the payload of POST /api/v1/requirements/check.
type CheckRequest struct {
	Rule          string           `json:"rule"`
	RequirementID int              `json:"requirement_id"`
	DiscountID    int              `json:"discount_id"`
	Customer      *CustomerPayload `json:"customer,omitempty"`
	Store         StorePayload     `json:"store"`
}

// Sanitize trims the rule name.
func (r *CheckRequest) Sanitize() {
	r.Rule = strings.TrimSpace(r.Rule)
	r.Store.Name = strings.TrimSpace(r.Store.Name)
}

// Validate returns a structured error when the request cannot be evaluated.
func (r *CheckRequest) Validate() *ErrorResponse {
	if r.Rule == "" {
		return &ErrorResponse{Code: "ERR_INVALID_INPUT", Message: "Rule is required"}
	}
	if r.RequirementID < 0 || r.DiscountID < 0 {
		return &ErrorResponse{Code: "ERR_INVALID_INPUT", Message: "Identifiers must not be negative"}
	}
	return nil
}

// ValidationRequest maps the payload to the domain request.
func (r *CheckRequest) ValidationRequest() *requirement.ValidationRequest {
	return toValidationRequest(r.Customer, r.Store, r.DiscountID, r.RequirementID)
}

// CheckResponse is the body returned by the check endpoint.
type CheckResponse struct {
	IsValid bool   `json:"is_valid"`
	Reason  string `json:"reason,omitempty"`
}

// EvaluateRequest is the payload of POST /api/v1/requirements/evaluate.
type EvaluateRequest struct {
	DiscountID   int                   `json:"discount_id"`
	Requirements []requirement.Binding `json:"requirements"`
	Customer     *CustomerPayload      `json:"customer,omitempty"`
	Store        StorePayload          `json:"store"`
}

func (r *EvaluateRequest) Sanitize() {
	for i := range r.Requirements {
		r.Requirements[i].SystemName = strings.TrimSpace(r.Requirements[i].SystemName)
	}
	r.Store.Name = strings.TrimSpace(r.Store.Name)
}

func (r *EvaluateRequest) Validate() *ErrorResponse {
	if len(r.Requirements) > maxBindings {
		return &ErrorResponse{Code: "ERR_INVALID_INPUT", Message: "Too many requirements in one request"}
	}

	var details []ErrorDetail
	for i, b := range r.Requirements {
		if b.SystemName == "" {
			details = append(details, ErrorDetail{Field: fieldIndex("requirements", i, "rule"), Issue: "required"})
		}
		if b.RequirementID < 0 {
			details = append(details, ErrorDetail{Field: fieldIndex("requirements", i, "requirement_id"), Issue: "must not be negative"})
		}
	}
	if len(details) > 0 {
		return &ErrorResponse{Code: "ERR_INVALID_INPUT", Message: "Invalid requirements", Details: details}
	}
	return nil
}

// EvaluateResult is one entry of EvaluateResponse.
type EvaluateResult struct {
	Rule          string `json:"rule"`
	RequirementID int    `json:"requirement_id"`
	IsValid       bool   `json:"is_valid"`
	Reason        string `json:"reason,omitempty"`
	Error         string `json:"error,omitempty"`
}

// EvaluateResponse is the body returned by the evaluate endpoint.
type EvaluateResponse struct {
	IsValid bool             `json:"is_valid"`
	Results []EvaluateResult `json:"results"`
}

// ConfigurationResponse is the body of GET on a configure page.
type ConfigurationResponse struct {
	SettingKey string `json:"setting_key"`
	Value      string `json:"value"`
	Configured bool   `json:"configured"`
}

// UpdateConfigurationRequest is the body of PUT on a configure page.
type UpdateConfigurationRequest struct {
	Value string `json:"value"`
}

// ErrorResponse is the structured error body every endpoint returns.
type ErrorResponse struct {
	// Code is machine-readable, e.g. "ERR_INVALID_INPUT".
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail points at one invalid field.
type ErrorDetail struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

func toValidationRequest(c *CustomerPayload, s StorePayload, discountID, requirementID int) *requirement.ValidationRequest {
	req := &requirement.ValidationRequest{
		Store:         requirement.Store{ID: s.ID, Name: s.Name},
		DiscountID:    discountID,
		RequirementID: requirementID,
	}
	if c != nil {
		req.Customer = &requirement.Customer{ID: c.ID, RoleIDs: c.RoleIDs, Attributes: c.Attributes}
	}
	return req
}
