package observability

import "context"

// Checker is a dependency the readiness probe verifies.
// Implementations must be safe for concurrent use and honour ctx.
type Checker interface {
	// Name identifies the component in the readiness report ("postgres", "redis").
	Name() string
	// Check returns nil when the component is usable.
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc struct {
	ComponentName string
	Fn            func(ctx context.Context) error
}

func (c CheckerFunc) Name() string                    { return c.ComponentName }
func (c CheckerFunc) Check(ctx context.Context) error { return c.Fn(ctx) }
