package controlapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/rafaeljc/discountrules/internal/logger"
	"github.com/rafaeljc/discountrules/internal/requirement"
)

// handleListRules processes GET /api/v1/rules.
func (a *API) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules := a.rules.Rules()

	resp := ListRulesResponse{Data: make([]RuleInfo, 0, len(rules))}
	for _, rule := range rules {
		info := RuleInfo{SystemName: rule.SystemName(), FriendlyName: rule.FriendlyName()}
		if c, ok := rule.(requirement.Configurable); ok {
			info.ConfigurePath = ConfigurePath(c.ConfigureController())
		}
		resp.Data = append(resp.Data, info)
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// handleConfigurationURL processes GET /api/v1/rules/{systemName}/configuration-url.
// discountId is required; discountRequirementId is optional.
func (a *API) handleConfigurationURL(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	systemName := chi.URLParam(r, "systemName")

	rule, err := a.rules.Get(systemName)
	if err != nil {
		writeError(w, r, http.StatusNotFound, ErrorResponse{Code: "ERR_UNKNOWN_RULE", Message: fmt.Sprintf("Rule %q is not registered", systemName)})
		return
	}

	discountID, err := parseRequiredInt(r, "discountId")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, ErrorResponse{Code: "ERR_INVALID_QUERY_PARAM", Message: err.Error()})
		return
	}
	requirementID, err := parseOptionalInt(r, "discountRequirementId")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, ErrorResponse{Code: "ERR_INVALID_QUERY_PARAM", Message: err.Error()})
		return
	}

	u, err := rule.ConfigurationURL(a.routes.Context(), discountID, requirementID)
	if err != nil {
		log.Error("failed to build configuration url", slog.String("rule", systemName), slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, ErrorResponse{Code: "ERR_INTERNAL", Message: "Failed to build configuration URL"})
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ConfigurationURLResponse{URL: u})
}

// handleCheck processes POST /api/v1/requirements/check.
func (a *API) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Sanitize()
	if errResp := req.Validate(); errResp != nil {
		writeError(w, r, http.StatusBadRequest, *errResp)
		return
	}

	res, err := a.rules.Check(r.Context(), req.Rule, req.ValidationRequest())
	if err != nil {
		status, resp := checkErrorResponse(err)
		writeError(w, r, status, resp)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, CheckResponse{IsValid: res.IsValid, Reason: res.Reason})
}

// handleEvaluate processes POST /api/v1/requirements/evaluate. Per-requirement
// failures are reported inside the body; the batch itself still answers 200.
func (a *API) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Sanitize()
	if errResp := req.Validate(); errResp != nil {
		writeError(w, r, http.StatusBadRequest, *errResp)
		return
	}

	batch, err := a.rules.EvaluateAll(r.Context(), req.Requirements, toValidationRequest(req.Customer, req.Store, req.DiscountID, 0))
	if err != nil {
		status, resp := checkErrorResponse(err)
		writeError(w, r, status, resp)
		return
	}

	resp := EvaluateResponse{IsValid: batch.IsValid, Results: make([]EvaluateResult, 0, len(batch.Results))}
	for _, br := range batch.Results {
		item := EvaluateResult{
			Rule:          br.SystemName,
			RequirementID: br.RequirementID,
			IsValid:       br.IsValid,
			Reason:        br.Reason,
		}
		if br.Err != nil {
			_, errResp := checkErrorResponse(br.Err)
			item.Error = errResp.Code
		}
		resp.Results = append(resp.Results, item)
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// checkErrorResponse maps a registry error to an HTTP status and body.
func checkErrorResponse(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, requirement.ErrUnknownRule):
		return http.StatusNotFound, ErrorResponse{Code: "ERR_UNKNOWN_RULE", Message: err.Error()}
	case errors.Is(err, requirement.ErrInvalidArgument):
		return http.StatusBadRequest, ErrorResponse{Code: "ERR_INVALID_INPUT", Message: err.Error()}
	case errors.Is(err, requirement.ErrInvalidConfiguration):
		return http.StatusUnprocessableEntity, ErrorResponse{Code: "ERR_INVALID_CONFIGURATION", Message: "The requirement is misconfigured"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Code: "ERR_INTERNAL", Message: "Failed to evaluate requirement"}
	}
}

// decodeJSON writes a 400 and returns false when the body is not valid JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		logger.FromContext(r.Context()).Warn("invalid json payload", slog.String("error", err.Error()))
		writeError(w, r, http.StatusBadRequest, ErrorResponse{
			Code:    "ERR_INVALID_JSON",
			Message: "Invalid JSON payload: " + err.Error(),
		})
		return false
	}
	return true
}

// parseOptionalInt returns nil when the parameter is absent and an error only
// when it is present but malformed.
func parseOptionalInt(r *http.Request, key string) (*int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("parameter '%s' must be an integer", key)
	}
	return &v, nil
}

func parseRequiredInt(r *http.Request, key string) (int, error) {
	v, err := parseOptionalInt(r, key)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, fmt.Errorf("parameter '%s' is required", key)
	}
	return *v, nil
}

func fieldIndex(field string, i int, sub string) string {
	return fmt.Sprintf("%s[%d].%s", field, i, sub)
}
