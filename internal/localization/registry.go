// Package localization defines the label registry rules install their
// display strings into.
package localization

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

// Registry stores default label texts by resource name.
// Both operations are idempotent.
type Registry interface {
	RegisterLabel(ctx context.Context, key, defaultText string) error
	RemoveLabel(ctx context.Context, key string) error
}

// Label is one resource name with its default text.
type Label struct {
	Key  string
	Text string
}

// RegisterAll registers labels in order, stopping at the first failure.
func RegisterAll(ctx context.Context, r Registry, labels []Label) error {
	for _, l := range labels {
		if err := r.RegisterLabel(ctx, l.Key, l.Text); err != nil {
			return fmt.Errorf("register label %q: %w", l.Key, err)
		}
	}
	return nil
}

// RemoveAll removes the labels in order, stopping at the first failure.
func RemoveAll(ctx context.Context, r Registry, labels []Label) error {
	for _, l := range labels {
		if err := r.RemoveLabel(ctx, l.Key); err != nil {
			return fmt.Errorf("remove label %q: %w", l.Key, err)
		}
	}
	return nil
}

var _ Registry = (*MemoryRegistry)(nil)

// MemoryRegistry is an in-process Registry.
type MemoryRegistry struct {
	mu     sync.RWMutex
	labels map[string]string
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{labels: make(map[string]string)}
}

func (r *MemoryRegistry) RegisterLabel(_ context.Context, key, defaultText string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.labels[key] = defaultText
	return nil
}

func (r *MemoryRegistry) RemoveLabel(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.labels, key)
	return nil
}

// Lookup returns the text registered under key.
func (r *MemoryRegistry) Lookup(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	text, ok := r.labels[key]
	return text, ok
}

// Snapshot returns a copy of every registered label.
func (r *MemoryRegistry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return maps.Clone(r.labels)
}
