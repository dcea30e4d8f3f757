package controlapi_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/discountrules/internal/controlapi"
	"github.com/rafaeljc/discountrules/internal/logger"
	"github.com/rafaeljc/discountrules/internal/requirement"
	"github.com/rafaeljc/discountrules/internal/routing"
	"github.com/rafaeljc/discountrules/internal/settings"
)

const testAPIKey = "s3cret-key"

func testKeyHash() string {
	sum := sha256.Sum256([]byte(testAPIKey))
	return hex.EncodeToString(sum[:])
}

// failingStore fails every read and write.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("db down")
}
func (failingStore) Set(context.Context, string, string) error { return errors.New("db down") }
func (failingStore) Delete(context.Context, string) error      { return errors.New("db down") }

type env struct {
	api    *controlapi.API
	store  settings.ReadWriter
	routes *routing.Table
}

func newEnv(t *testing.T, store settings.ReadWriter, auth bool) env {
	t.Helper()

	reg, err := requirement.NewDefaultRegistry(logger.Discard(), store)
	require.NoError(t, err)

	routes := routing.NewTable("/shop")
	var api *controlapi.API
	if auth {
		api = controlapi.NewAPI(logger.Discard(), reg, store, routes, testKeyHash())
	} else {
		api = controlapi.NewAPIWithConfig(logger.Discard(), reg, store, routes, "", true)
	}
	return env{api: api, store: store, routes: routes}
}

func (e env) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rr := httptest.NewRecorder()
	e.api.Router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestNewAPI_Contracts(t *testing.T) {
	t.Parallel()

	reg, err := requirement.NewDefaultRegistry(logger.Discard(), settings.NewMemoryStore(nil))
	require.NoError(t, err)
	store := settings.NewMemoryStore(nil)

	t.Run("Should panic without an api key hash when auth is enabled", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() {
			controlapi.NewAPI(logger.Discard(), reg, store, routing.NewTable(""), "")
		})
	})

	t.Run("Should panic on nil dependencies", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { controlapi.NewAPIWithConfig(nil, reg, store, routing.NewTable(""), "", true) })
		assert.Panics(t, func() { controlapi.NewAPIWithConfig(logger.Discard(), nil, store, routing.NewTable(""), "", true) })
		assert.Panics(t, func() { controlapi.NewAPIWithConfig(logger.Discard(), reg, nil, routing.NewTable(""), "", true) })
		assert.Panics(t, func() { controlapi.NewAPIWithConfig(logger.Discard(), reg, store, nil, "", true) })
	})

	t.Run("Should register a configure route per configurable rule", func(t *testing.T) {
		t.Parallel()

		routes := routing.NewTable("")
		controlapi.NewAPIWithConfig(logger.Discard(), reg, store, routes, "", true)

		paths := make([]string, 0)
		for _, r := range routes.Routes() {
			paths = append(paths, r.Path)
		}
		assert.ElementsMatch(t, []string{
			"/Plugins/DiscountRulesCustomerRoles/Configure",
			"/Plugins/DiscountRulesExpression/Configure",
			"/Plugins/DiscountRulesPercentage/Configure",
			"/Plugins/DiscountRulesStore/Configure",
		}, paths)
	})
}

func TestAPI_Authentication(t *testing.T) {
	t.Parallel()

	e := newEnv(t, settings.NewMemoryStore(nil), true)

	tests := []struct {
		name     string
		path     string
		headers  []string
		wantCode int
	}{
		{"Should leave /health public", "/health", nil, http.StatusOK},
		{"Should reject a missing key", "/api/v1/rules", nil, http.StatusUnauthorized},
		{"Should reject a wrong key", "/api/v1/rules", []string{controlapi.APIKeyHeader, "nope"}, http.StatusUnauthorized},
		{"Should accept the right key", "/api/v1/rules", []string{controlapi.APIKeyHeader, testAPIKey}, http.StatusOK},
		{"Should protect configure pages", "/Plugins/DiscountRulesStore/Configure?discountRequirementId=1", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rr := e.do(t, http.MethodGet, tt.path, nil, tt.headers...)
			assert.Equal(t, tt.wantCode, rr.Code)
		})
	}
}

func TestAPI_Rules(t *testing.T) {
	t.Parallel()

	e := newEnv(t, settings.NewMemoryStore(nil), false)

	t.Run("Should list every rule with its configure path", func(t *testing.T) {
		t.Parallel()

		rr := e.do(t, http.MethodGet, "/api/v1/rules", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		resp := decode[controlapi.ListRulesResponse](t, rr)
		require.Len(t, resp.Data, 4)
		assert.Equal(t, "DiscountRequirement.Expression", resp.Data[0].SystemName)

		var storeRule controlapi.RuleInfo
		for _, info := range resp.Data {
			if info.SystemName == requirement.StoreRuleSystemName {
				storeRule = info
			}
		}
		assert.Equal(t, "/Plugins/DiscountRulesStore/Configure", storeRule.ConfigurePath)
	})

	t.Run("Should build a configuration URL without the path base", func(t *testing.T) {
		t.Parallel()

		rr := e.do(t, http.MethodGet, "/api/v1/rules/DiscountRequirement.Store/configuration-url?discountId=3&discountRequirementId=7", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		resp := decode[controlapi.ConfigurationURLResponse](t, rr)
		assert.Equal(t, "Plugins/DiscountRulesStore/Configure?discountId=3&discountRequirementId=7", resp.URL)
	})

	t.Run("Should omit the requirement id when absent", func(t *testing.T) {
		t.Parallel()

		rr := e.do(t, http.MethodGet, "/api/v1/rules/DiscountRequirement.Store/configuration-url?discountId=3", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "Plugins/DiscountRulesStore/Configure?discountId=3", decode[controlapi.ConfigurationURLResponse](t, rr).URL)
	})

	t.Run("Should reject bad query parameters", func(t *testing.T) {
		t.Parallel()

		for _, path := range []string{
			"/api/v1/rules/DiscountRequirement.Store/configuration-url",
			"/api/v1/rules/DiscountRequirement.Store/configuration-url?discountId=abc",
			"/api/v1/rules/DiscountRequirement.Store/configuration-url?discountId=1&discountRequirementId=x",
		} {
			rr := e.do(t, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusBadRequest, rr.Code, path)
		}
	})

	t.Run("Should answer 404 for an unknown rule", func(t *testing.T) {
		t.Parallel()

		rr := e.do(t, http.MethodGet, "/api/v1/rules/Nope/configuration-url?discountId=1", nil)
		require.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "ERR_UNKNOWN_RULE", decode[controlapi.ErrorResponse](t, rr).Code)
	})
}

func TestAPI_Check(t *testing.T) {
	t.Parallel()

	store := settings.NewMemoryStore(map[string]string{
		"DiscountRequirement.Store-1":                        "5",
		"DiscountRequirement.Percentage-2":                   "250",
		"DiscountRequirement.MustBeAssignedToCustomerRole-3": "9",
	})
	e := newEnv(t, store, false)

	customer := &controlapi.CustomerPayload{ID: 10, RoleIDs: []int{9}}

	tests := []struct {
		name       string
		body       any
		wantCode   int
		wantValid  bool
		wantReason string
		wantErr    string
	}{
		{
			name:       "Should validate a matching store",
			body:       controlapi.CheckRequest{Rule: requirement.StoreRuleSystemName, RequirementID: 1, Customer: customer, Store: controlapi.StorePayload{ID: 5}},
			wantCode:   http.StatusOK,
			wantValid:  true,
			wantReason: requirement.ReasonMatch,
		},
		{
			name:       "Should reject another store",
			body:       controlapi.CheckRequest{Rule: requirement.StoreRuleSystemName, RequirementID: 1, Customer: customer, Store: controlapi.StorePayload{ID: 6}},
			wantCode:   http.StatusOK,
			wantReason: requirement.ReasonMismatch,
		},
		{
			name:       "Should reject an anonymous customer",
			body:       controlapi.CheckRequest{Rule: requirement.StoreRuleSystemName, RequirementID: 1, Store: controlapi.StorePayload{ID: 5}},
			wantCode:   http.StatusOK,
			wantReason: requirement.ReasonNoCustomer,
		},
		{
			name:       "Should report an unconfigured requirement",
			body:       controlapi.CheckRequest{Rule: requirement.StoreRuleSystemName, RequirementID: 99, Customer: customer, Store: controlapi.StorePayload{ID: 5}},
			wantCode:   http.StatusOK,
			wantReason: requirement.ReasonUnconfigured,
		},
		{
			name:      "Should validate a role requirement",
			body:      controlapi.CheckRequest{Rule: "DiscountRequirement.MustBeAssignedToCustomerRole", RequirementID: 3, Customer: customer},
			wantCode:  http.StatusOK,
			wantValid: true, wantReason: requirement.ReasonMatch,
		},
		{
			name:     "Should answer 422 for a misconfigured requirement",
			body:     controlapi.CheckRequest{Rule: "DiscountRequirement.Percentage", RequirementID: 2, Customer: customer},
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  "ERR_INVALID_CONFIGURATION",
		},
		{
			name:     "Should answer 404 for an unknown rule",
			body:     controlapi.CheckRequest{Rule: "Nope", RequirementID: 1},
			wantCode: http.StatusNotFound,
			wantErr:  "ERR_UNKNOWN_RULE",
		},
		{
			name:     "Should require a rule",
			body:     controlapi.CheckRequest{RequirementID: 1},
			wantCode: http.StatusBadRequest,
			wantErr:  "ERR_INVALID_INPUT",
		},
		{
			name:     "Should reject negative identifiers",
			body:     controlapi.CheckRequest{Rule: requirement.StoreRuleSystemName, RequirementID: -1},
			wantCode: http.StatusBadRequest,
			wantErr:  "ERR_INVALID_INPUT",
		},
		{
			name:     "Should reject malformed JSON",
			body:     `{"rule":`,
			wantCode: http.StatusBadRequest,
			wantErr:  "ERR_INVALID_JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rr := e.do(t, http.MethodPost, "/api/v1/requirements/check", tt.body)
			require.Equal(t, tt.wantCode, rr.Code, rr.Body.String())

			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decode[controlapi.ErrorResponse](t, rr).Code)
				return
			}
			resp := decode[controlapi.CheckResponse](t, rr)
			assert.Equal(t, tt.wantValid, resp.IsValid)
			assert.Equal(t, tt.wantReason, resp.Reason)
		})
	}

	t.Run("Should answer 500 when settings cannot be read", func(t *testing.T) {
		t.Parallel()

		broken := newEnv(t, failingStore{}, false)
		rr := broken.do(t, http.MethodPost, "/api/v1/requirements/check",
			controlapi.CheckRequest{Rule: requirement.StoreRuleSystemName, RequirementID: 1, Customer: customer})
		require.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "ERR_INTERNAL", decode[controlapi.ErrorResponse](t, rr).Code)
	})
}

func TestAPI_Evaluate(t *testing.T) {
	t.Parallel()

	store := settings.NewMemoryStore(map[string]string{
		"DiscountRequirement.Store-1":                        "5",
		"DiscountRequirement.MustBeAssignedToCustomerRole-2": "9",
	})
	e := newEnv(t, store, false)

	t.Run("Should be valid when every requirement holds", func(t *testing.T) {
		t.Parallel()

		rr := e.do(t, http.MethodPost, "/api/v1/requirements/evaluate", controlapi.EvaluateRequest{
			Requirements: []requirement.Binding{
				{SystemName: requirement.StoreRuleSystemName, RequirementID: 1},
				{SystemName: "DiscountRequirement.MustBeAssignedToCustomerRole", RequirementID: 2},
			},
			Customer: &controlapi.CustomerPayload{ID: 1, RoleIDs: []int{9}},
			Store:    controlapi.StorePayload{ID: 5},
		})
		require.Equal(t, http.StatusOK, rr.Code)

		resp := decode[controlapi.EvaluateResponse](t, rr)
		assert.True(t, resp.IsValid)
		require.Len(t, resp.Results, 2)
		assert.Equal(t, 1, resp.Results[0].RequirementID)
		assert.Equal(t, 2, resp.Results[1].RequirementID)
	})

	t.Run("Should report every failing requirement", func(t *testing.T) {
		t.Parallel()

		rr := e.do(t, http.MethodPost, "/api/v1/requirements/evaluate", controlapi.EvaluateRequest{
			Requirements: []requirement.Binding{
				{SystemName: requirement.StoreRuleSystemName, RequirementID: 1},
				{SystemName: "Nope", RequirementID: 4},
				{SystemName: "DiscountRequirement.MustBeAssignedToCustomerRole", RequirementID: 2},
			},
			Customer: &controlapi.CustomerPayload{ID: 1},
			Store:    controlapi.StorePayload{ID: 6},
		})
		require.Equal(t, http.StatusOK, rr.Code)

		resp := decode[controlapi.EvaluateResponse](t, rr)
		assert.False(t, resp.IsValid)
		require.Len(t, resp.Results, 3)
		assert.Equal(t, requirement.ReasonMismatch, resp.Results[0].Reason)
		assert.Equal(t, "ERR_UNKNOWN_RULE", resp.Results[1].Error)
		assert.Equal(t, requirement.ReasonMismatch, resp.Results[2].Reason)
	})

	t.Run("Should accept an empty requirement list", func(t *testing.T) {
		t.Parallel()

		rr := e.do(t, http.MethodPost, "/api/v1/requirements/evaluate", controlapi.EvaluateRequest{})
		require.Equal(t, http.StatusOK, rr.Code)
		assert.True(t, decode[controlapi.EvaluateResponse](t, rr).IsValid)
	})

	t.Run("Should point at invalid bindings", func(t *testing.T) {
		t.Parallel()

		rr := e.do(t, http.MethodPost, "/api/v1/requirements/evaluate", controlapi.EvaluateRequest{
			Requirements: []requirement.Binding{{SystemName: " ", RequirementID: -1}},
		})
		require.Equal(t, http.StatusBadRequest, rr.Code)

		resp := decode[controlapi.ErrorResponse](t, rr)
		require.Len(t, resp.Details, 2)
		assert.Equal(t, "requirements[0].rule", resp.Details[0].Field)
		assert.Equal(t, "requirements[0].requirement_id", resp.Details[1].Field)
	})
}

func TestAPI_Configure(t *testing.T) {
	t.Parallel()

	t.Run("Should round-trip a store restriction", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, settings.NewMemoryStore(nil), false)
		path := "/Plugins/DiscountRulesStore/Configure?discountId=1&discountRequirementId=8"

		rr := e.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.False(t, decode[controlapi.ConfigurationResponse](t, rr).Configured)

		rr = e.do(t, http.MethodPut, path, controlapi.UpdateConfigurationRequest{Value: "4"})
		require.Equal(t, http.StatusOK, rr.Code)

		rr = e.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		resp := decode[controlapi.ConfigurationResponse](t, rr)
		assert.True(t, resp.Configured)
		assert.Equal(t, "4", resp.Value)
		assert.Equal(t, "DiscountRequirement.Store-8", resp.SettingKey)

		v, found, err := e.store.Get(context.Background(), "DiscountRequirement.Store-8")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "4", v)
	})

	t.Run("Should resolve the URL the rule advertises", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, settings.NewMemoryStore(nil), false)
		rr := e.do(t, http.MethodGet, "/api/v1/rules/DiscountRequirement.Percentage/configuration-url?discountId=2&discountRequirementId=5", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		rel := decode[controlapi.ConfigurationURLResponse](t, rr).URL
		rr = e.do(t, http.MethodPut, "/"+rel, controlapi.UpdateConfigurationRequest{Value: "40"})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, "DiscountRequirement.Percentage-5", decode[controlapi.ConfigurationResponse](t, rr).SettingKey)
	})

	t.Run("Should reject values the rule cannot evaluate", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, settings.NewMemoryStore(nil), false)
		for path, value := range map[string]string{
			"/Plugins/DiscountRulesStore/Configure?discountRequirementId=1":      "-3",
			"/Plugins/DiscountRulesPercentage/Configure?discountRequirementId=1": "101",
			"/Plugins/DiscountRulesExpression/Configure?discountRequirementId=1": "customer.id +",
		} {
			rr := e.do(t, http.MethodPut, path, controlapi.UpdateConfigurationRequest{Value: value})
			assert.Equal(t, http.StatusBadRequest, rr.Code, path)
		}
	})

	t.Run("Should require a positive requirement id", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, settings.NewMemoryStore(nil), false)
		for _, q := range []string{"", "?discountRequirementId=0", "?discountRequirementId=x"} {
			rr := e.do(t, http.MethodGet, "/Plugins/DiscountRulesStore/Configure"+q, nil)
			assert.Equal(t, http.StatusBadRequest, rr.Code, q)
		}
	})

	t.Run("Should answer 500 when the store fails", func(t *testing.T) {
		t.Parallel()

		e := newEnv(t, failingStore{}, false)
		path := "/Plugins/DiscountRulesStore/Configure?discountRequirementId=1"

		assert.Equal(t, http.StatusInternalServerError, e.do(t, http.MethodGet, path, nil).Code)
		assert.Equal(t, http.StatusInternalServerError,
			e.do(t, http.MethodPut, path, controlapi.UpdateConfigurationRequest{Value: "1"}).Code)
	})
}
