package controlapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/rafaeljc/discountrules/internal/logger"
	"github.com/rafaeljc/discountrules/internal/requirement"
)

// handleGetConfiguration serves GET on a configure page and returns the raw
// setting of the requirement named by discountRequirementId.
func (a *API) handleGetConfiguration(c requirement.Configurable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		id, ok := requirementIDParam(w, r)
		if !ok {
			return
		}

		key := c.SettingKey(id)
		value, found, err := a.settings.Get(r.Context(), key)
		if err != nil {
			log.Error("failed to read setting", slog.String("key", key), slog.String("error", err.Error()))
			writeError(w, r, http.StatusInternalServerError, ErrorResponse{Code: "ERR_INTERNAL", Message: "Failed to read configuration"})
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, ConfigurationResponse{SettingKey: key, Value: value, Configured: found})
	}
}

// handlePutConfiguration serves PUT on a configure page. The value is checked
// by the rule before it is stored.
func (a *API) handlePutConfiguration(c requirement.Configurable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		id, ok := requirementIDParam(w, r)
		if !ok {
			return
		}

		var req UpdateConfigurationRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if err := c.ValidateSetting(req.Value); err != nil {
			writeError(w, r, http.StatusBadRequest, ErrorResponse{
				Code:    "ERR_INVALID_INPUT",
				Message: err.Error(),
				Details: []ErrorDetail{{Field: "value", Issue: "rejected by " + c.SystemName()}},
			})
			return
		}

		key := c.SettingKey(id)
		if err := a.settings.Set(r.Context(), key, req.Value); err != nil {
			log.Error("failed to write setting", slog.String("key", key), slog.String("error", err.Error()))
			writeError(w, r, http.StatusInternalServerError, ErrorResponse{Code: "ERR_INTERNAL", Message: "Failed to save configuration"})
			return
		}

		log.Info("requirement configured", slog.String("rule", c.SystemName()), slog.Int("requirement_id", id))
		render.Status(r, http.StatusOK)
		render.JSON(w, r, ConfigurationResponse{SettingKey: key, Value: req.Value, Configured: true})
	}
}

func requirementIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := parseRequiredInt(r, "discountRequirementId")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, ErrorResponse{Code: "ERR_INVALID_QUERY_PARAM", Message: err.Error()})
		return 0, false
	}
	if id <= 0 {
		writeError(w, r, http.StatusBadRequest, ErrorResponse{Code: "ERR_INVALID_QUERY_PARAM", Message: "parameter 'discountRequirementId' must be positive"})
		return 0, false
	}
	return id, true
}
