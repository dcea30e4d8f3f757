package config

import (
	"fmt"
	"strings"
)

// RoutingConfig describes where the control plane is mounted.
type RoutingConfig struct {
	// PathBase is the application base path (e.g. "/shop") that prefixes every
	// generated URL. Empty means the application is served from the root.
	PathBase string `envconfig:"PATH_BASE" default:""`
}

// Validate checks that PathBase is either empty or an absolute path without a trailing slash.
func (c *RoutingConfig) Validate() error {
	if c.PathBase == "" {
		return nil
	}
	if !strings.HasPrefix(c.PathBase, "/") {
		return fmt.Errorf("path base must start with '/', got %q", c.PathBase)
	}
	if strings.HasSuffix(c.PathBase, "/") {
		return fmt.Errorf("path base must not end with '/', got %q", c.PathBase)
	}
	if strings.ContainsAny(c.PathBase, "?# ") {
		return fmt.Errorf("path base must be a plain path, got %q", c.PathBase)
	}
	return nil
}
