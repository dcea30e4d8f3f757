package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{"Should accept a migration number", "2", 2, false},
		{"Should accept -1 to clear the version", "-1", -1, false},
		{"Should reject other negatives", "-2", 0, true},
		{"Should reject text", "two", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseVersion(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveDatabaseURL(t *testing.T) {
	t.Parallel()

	env := func(vars map[string]string) func(string) string {
		return func(k string) string { return vars[k] }
	}

	t.Run("Should prefer the flag", func(t *testing.T) {
		t.Parallel()
		got, err := resolveDatabaseURL("postgres://flag", env(map[string]string{"DISCOUNTRULES_DB_URL": "postgres://env"}))
		require.NoError(t, err)
		assert.Equal(t, "postgres://flag", got)
	})

	t.Run("Should fall back to the service variable", func(t *testing.T) {
		t.Parallel()
		got, err := resolveDatabaseURL("", env(map[string]string{
			"DISCOUNTRULES_DB_URL": "postgres://svc",
			"DATABASE_URL":         "postgres://generic",
		}))
		require.NoError(t, err)
		assert.Equal(t, "postgres://svc", got)
	})

	t.Run("Should fall back to DATABASE_URL", func(t *testing.T) {
		t.Parallel()
		got, err := resolveDatabaseURL("", env(map[string]string{"DATABASE_URL": "postgres://generic"}))
		require.NoError(t, err)
		assert.Equal(t, "postgres://generic", got)
	})

	t.Run("Should fail without any source", func(t *testing.T) {
		t.Parallel()
		_, err := resolveDatabaseURL("", env(nil))
		assert.Error(t, err)
	})
}

func TestRootCommand(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"up", "down", "version", "force", "install-labels", "uninstall-labels"}, names)

	force, _, err := root.Find([]string{"force"})
	require.NoError(t, err)
	assert.Error(t, force.Args(force, nil), "force requires a version")
}
