// Package settings defines the keyed configuration repository that requirement
// rules read their configuration from, typed accessors on top of it, and the
// in-process implementations (a plain memory store and a read-through cache).
//
// A missing key is never an error: Get reports it through the found flag and
// typed accessors return the zero value. Errors are reserved for lookups that
// could not be performed or values that cannot be decoded.
package settings

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// ErrInvalidValue is returned when a stored value cannot be decoded into the requested type.
var ErrInvalidValue = errors.New("settings: invalid value")

// Store is the read side of the settings repository.
type Store interface {
	// Get returns the raw value for key. found is false when the key is absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)
}

// Writer is the write side of the settings repository.
type Writer interface {
	// Set creates or replaces the value for key.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// ReadWriter groups Store and Writer.
type ReadWriter interface {
	Store
	Writer
}

// Lister enumerates settings by key prefix.
type Lister interface {
	List(ctx context.Context, prefix string) (map[string]string, error)
}

// Value is the set of types settings can be decoded into.
type Value interface {
	~int | ~int64 | ~string | ~bool
}

// Get reads key from s and decodes it into T.
// When the key is absent it returns the zero value of T with found=false.
func Get[T Value](ctx context.Context, s Store, key string) (T, bool, error) {
	var zero T

	raw, found, err := s.Get(ctx, key)
	if err != nil {
		return zero, false, fmt.Errorf("settings: get %q: %w", key, err)
	}
	if !found {
		return zero, false, nil
	}

	v, err := decode[T](raw)
	if err != nil {
		return zero, false, fmt.Errorf("settings: key %q: %w", key, err)
	}
	return v, true, nil
}

// Set encodes v and writes it under key.
func Set[T Value](ctx context.Context, w Writer, key string, v T) error {
	if err := w.Set(ctx, key, Encode(v)); err != nil {
		return fmt.Errorf("settings: set %q: %w", key, err)
	}
	return nil
}

// Encode renders v the way Get expects to read it back.
func Encode[T Value](v T) string {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	default:
		return rv.String()
	}
}

// decode goes through reflection so named types (e.g. type StoreID int) decode
// like their underlying kind.
func decode[T Value](raw string) (T, error) {
	var out T
	rv := reflect.ValueOf(&out).Elem()

	switch rv.Kind() {
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, rv.Type().Bits())
		if err != nil {
			return out, fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, raw)
		}
		rv.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return out, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, raw)
		}
		rv.SetBool(b)
	default:
		rv.SetString(raw)
	}

	return out, nil
}
