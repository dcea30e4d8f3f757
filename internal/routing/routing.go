// Package routing provides reverse routing for the management surface: turning
// a controller/action pair into the relative path a caller should navigate to.
package routing

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// ErrRouteNotFound is returned when no path is registered for a controller/action pair.
var ErrRouteNotFound = errors.New("routing: route not found")

// URLHelper resolves a controller action to a path, query string included.
type URLHelper interface {
	Action(action, controller string, values url.Values) (string, error)
}

// Context carries what a rule needs to build a configuration URL.
// It is passed explicitly to every call; nothing is read from ambient state.
type Context struct {
	// PathBase is the prefix the application is mounted under (e.g. "/shop").
	// Empty means the root.
	PathBase string
	URLs     URLHelper
}

// Route is one registered controller action.
type Route struct {
	Controller string
	Action     string
	Path       string
}

type routeKey struct {
	controller string
	action     string
}

var _ URLHelper = (*Table)(nil)

// Table is a URLHelper backed by explicitly registered routes.
// Paths it returns are prefixed with the table's path base.
type Table struct {
	mu       sync.RWMutex
	pathBase string
	routes   map[routeKey]Route
}

// NewTable creates an empty table whose generated paths start with pathBase.
func NewTable(pathBase string) *Table {
	return &Table{
		pathBase: strings.TrimSuffix(pathBase, "/"),
		routes:   make(map[routeKey]Route),
	}
}

// PathBase returns the prefix applied to generated paths.
func (t *Table) PathBase() string {
	return t.pathBase
}

// Register maps controller/action to path. Lookups are case-insensitive on
// controller and action; registering the same pair again replaces the path.
func (t *Table) Register(controller, action, path string) error {
	if controller == "" || action == "" {
		return fmt.Errorf("routing: controller and action are required")
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("routing: path %q must start with '/'", path)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.routes[keyOf(controller, action)] = Route{Controller: controller, Action: action, Path: path}
	return nil
}

// Routes returns the registered routes sorted by path.
func (t *Table) Routes() []Route {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Route, 0, len(t.routes))
	for _, r := range t.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Action implements URLHelper. The query string is encoded with
// url.Values.Encode, so parameters come out sorted by name.
func (t *Table) Action(action, controller string, values url.Values) (string, error) {
	t.mu.RLock()
	r, ok := t.routes[keyOf(controller, action)]
	t.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrRouteNotFound, controller, action)
	}

	u := t.pathBase + r.Path
	if q := values.Encode(); q != "" {
		u += "?" + q
	}
	return u, nil
}

// Context returns a routing context pairing this table with its path base.
func (t *Table) Context() Context {
	return Context{PathBase: t.pathBase, URLs: t}
}

func keyOf(controller, action string) routeKey {
	return routeKey{controller: strings.ToLower(controller), action: strings.ToLower(action)}
}
