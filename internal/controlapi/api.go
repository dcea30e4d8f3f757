// Package controlapi implements the REST control plane: rule discovery,
// ad-hoc requirement checks and the configure endpoints configuration URLs
// point to.
package controlapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/rafaeljc/discountrules/internal/requirement"
	"github.com/rafaeljc/discountrules/internal/routing"
	"github.com/rafaeljc/discountrules/internal/settings"
	"github.com/rafaeljc/discountrules/internal/validation"
)

// API holds the dependencies and router of the control plane.
type API struct {
	// Router is the chi multiplexer serving every endpoint.
	Router *chi.Mux

	logger   *slog.Logger
	rules    *requirement.Registry
	settings settings.ReadWriter
	routes   *routing.Table

	// apiKeyHash is the hex SHA-256 of the accepted X-API-Key.
	apiKeyHash string
	// skipAuth disables authentication (tests and local development only).
	skipAuth bool
}

// NewAPI creates an API with authentication enabled.
// Panics if apiKeyHash is empty.
func NewAPI(logger *slog.Logger, rules *requirement.Registry, store settings.ReadWriter, routes *routing.Table, apiKeyHash string) *API {
	return NewAPIWithConfig(logger, rules, store, routes, apiKeyHash, false)
}

// NewAPIWithConfig creates an API with explicit control over authentication.
//
// Every configurable rule gets its configure page registered in routes under
// "/Plugins/<controller>/Configure", so configuration URLs resolve to
// endpoints this router serves.
//
// Panics if a dependency is nil, if apiKeyHash is empty while auth is
// enabled, or if routes rejects a configure path.
func NewAPIWithConfig(logger *slog.Logger, rules *requirement.Registry, store settings.ReadWriter, routes *routing.Table, apiKeyHash string, skipAuth bool) *API {
	validation.AssertNotNil(logger, "logger")
	validation.AssertNotNil(rules, "requirement registry")
	validation.AssertNotNilInterface(store, "settings store")
	validation.AssertNotNil(routes, "routing table")

	if !skipAuth && apiKeyHash == "" {
		panic("controlapi: apiKeyHash cannot be empty when authentication is enabled")
	}

	api := &API{
		Router:     chi.NewRouter(),
		logger:     logger,
		rules:      rules,
		settings:   store,
		routes:     routes,
		apiKeyHash: strings.ToLower(apiKeyHash),
		skipAuth:   skipAuth,
	}

	api.configureRoutes()
	return api
}

// ConfigurePath is where the configure page of controller is served.
func ConfigurePath(controller string) string {
	return fmt.Sprintf("/Plugins/%s/%s", controller, requirement.ConfigureAction)
}

func (a *API) configureRoutes() {
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.RealIP)
	a.Router.Use(a.RequestLogger)
	a.Router.Use(Metrics)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))

	a.Router.Get("/health", a.handleHealthCheck)

	a.Router.Route("/api/v1", func(r chi.Router) {
		r.Use(a.authenticateAPIKey)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", a.handleListRules)
			r.Get("/{systemName}/configuration-url", a.handleConfigurationURL)
		})

		r.Route("/requirements", func(r chi.Router) {
			r.Post("/check", a.handleCheck)
			r.Post("/evaluate", a.handleEvaluate)
		})
	})

	// Configure pages live outside /api/v1: their paths come from the routing table.
	a.Router.Group(func(r chi.Router) {
		r.Use(a.authenticateAPIKey)

		for _, rule := range a.rules.Rules() {
			c, ok := rule.(requirement.Configurable)
			if !ok {
				continue
			}
			path := ConfigurePath(c.ConfigureController())
			if err := a.routes.Register(c.ConfigureController(), requirement.ConfigureAction, path); err != nil {
				panic(fmt.Sprintf("controlapi: register configure route for %s: %v", c.SystemName(), err))
			}

			r.Get(path, a.handleGetConfiguration(c))
			r.Put(path, a.handlePutConfiguration(c))
		}
	})
}

func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}
