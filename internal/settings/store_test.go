package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeID int

type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, f.err
}

func (f failingStore) Set(context.Context, string, string) error {
	return f.err
}

func (f failingStore) Delete(context.Context, string) error {
	return f.err
}

func TestGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore(map[string]string{
		"int":     "5",
		"padded":  " 42 ",
		"zero":    "0",
		"bool":    "true",
		"text":    "hello",
		"garbage": "five",
	})

	t.Run("Should decode integers into named types", func(t *testing.T) {
		t.Parallel()

		v, found, err := Get[storeID](ctx, s, "int")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, storeID(5), v)
	})

	t.Run("Should tolerate surrounding whitespace in numbers", func(t *testing.T) {
		t.Parallel()

		v, found, err := Get[int](ctx, s, "padded")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, 42, v)
	})

	t.Run("Should report a stored zero as found", func(t *testing.T) {
		t.Parallel()

		v, found, err := Get[int](ctx, s, "zero")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Zero(t, v)
	})

	t.Run("Should return zero value and not found for missing keys", func(t *testing.T) {
		t.Parallel()

		v, found, err := Get[int](ctx, s, "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Zero(t, v)
	})

	t.Run("Should decode booleans and strings", func(t *testing.T) {
		t.Parallel()

		b, _, err := Get[bool](ctx, s, "bool")
		require.NoError(t, err)
		assert.True(t, b)

		str, _, err := Get[string](ctx, s, "text")
		require.NoError(t, err)
		assert.Equal(t, "hello", str)
	})

	t.Run("Should fail on undecodable values", func(t *testing.T) {
		t.Parallel()

		_, found, err := Get[int](ctx, s, "garbage")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidValue)
		assert.False(t, found)
	})

	t.Run("Should propagate source errors", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("connection refused")
		_, _, err := Get[int](ctx, failingStore{err: boom}, "int")
		assert.ErrorIs(t, err, boom)
	})
}

func TestSet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore(nil)

	require.NoError(t, Set(ctx, s, "DiscountRequirement.Store-5", storeID(3)))
	require.NoError(t, Set(ctx, s, "flag", true))

	raw, found, err := s.Get(ctx, "DiscountRequirement.Store-5")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "3", raw)

	v, _, err := Get[storeID](ctx, s, "DiscountRequirement.Store-5")
	require.NoError(t, err)
	assert.Equal(t, storeID(3), v)

	raw, _, _ = s.Get(ctx, "flag")
	assert.Equal(t, "true", raw)

	assert.Error(t, Set(ctx, failingStore{err: errors.New("read only")}, "k", 1))
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	seed := map[string]string{"DiscountRequirement.Store-1": "2"}
	s := NewMemoryStore(seed)

	seed["DiscountRequirement.Store-1"] = "mutated"
	v, _, _ := s.Get(ctx, "DiscountRequirement.Store-1")
	assert.Equal(t, "2", v, "store must copy its seed")

	require.NoError(t, s.Set(ctx, "DiscountRequirement.Store-2", "4"))
	require.NoError(t, s.Set(ctx, "Other.Key", "x"))

	listed, err := s.List(ctx, "DiscountRequirement.")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"DiscountRequirement.Store-1": "2",
		"DiscountRequirement.Store-2": "4",
	}, listed)

	require.NoError(t, s.Delete(ctx, "DiscountRequirement.Store-1"))
	require.NoError(t, s.Delete(ctx, "never-existed"))

	_, found, err := s.Get(ctx, "DiscountRequirement.Store-1")
	require.NoError(t, err)
	assert.False(t, found)
}
