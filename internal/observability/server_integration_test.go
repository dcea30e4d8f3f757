//go:build integration

package observability_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/discountrules/internal/cache"
	"github.com/rafaeljc/discountrules/internal/config"
	"github.com/rafaeljc/discountrules/internal/database"
	"github.com/rafaeljc/discountrules/internal/logger"
	"github.com/rafaeljc/discountrules/internal/observability"
	"github.com/rafaeljc/discountrules/internal/testsupport"
)

func TestObservabilityServer_Integration(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := testsupport.StartPostgresContainer(ctx, "../../migrations")
	require.NoError(t, err)
	defer pgContainer.Terminate(ctx)

	redisContainer, err := testsupport.StartRedisContainer(ctx)
	require.NoError(t, err)
	defer redisContainer.Terminate(ctx)

	freePort, err := getFreePort()
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Port = fmt.Sprintf("%d", freePort)
	cfg.Timeout = time.Second

	log := logger.New(&config.AppConfig{Name: "discountrules-test", LogLevel: "debug", LogFormat: "text"})
	server := observability.NewServer(log, cfg,
		database.NewHealthChecker(pgContainer.DB),
		cache.NewHealthChecker(redisContainer.Client),
	)
	server.Start()
	defer func() { _ = server.Shutdown(ctx) }()

	baseURL := fmt.Sprintf("http://localhost:%d", freePort)

	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + cfg.LivenessPath)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 100*time.Millisecond, "server failed to start")

	readiness := func(t *testing.T) (int, observability.ReadinessReport) {
		t.Helper()
		resp, err := http.Get(baseURL + cfg.ReadinessPath)
		require.NoError(t, err)
		defer resp.Body.Close()

		var report observability.ReadinessReport
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
		return resp.StatusCode, report
	}

	t.Run("Should be ready with live postgres and redis", func(t *testing.T) {
		code, report := readiness(t)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "up", report.Status["postgres"])
		assert.Equal(t, "up", report.Status["redis"])
	})

	t.Run("Should report redis down after the container stops", func(t *testing.T) {
		require.NoError(t, redisContainer.Container.Stop(ctx, nil))

		code, report := readiness(t)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Contains(t, report.Status["redis"], "down")
		assert.Equal(t, "up", report.Status["postgres"])
	})
}

func getFreePort() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
