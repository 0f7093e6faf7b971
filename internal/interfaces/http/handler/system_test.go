package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemHandler_HealthAllUp(t *testing.T) {
	h := NewSystemHandler("nest-haus", "1.2.0", map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return nil },
	})

	w := serve(t, http.MethodGet, "/health", "/health", nil, h.Health)

	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.0", resp.Version)
	assert.Equal(t, "up", resp.Components["database"].Status)
	assert.Equal(t, "up", resp.Components["redis"].Status)
}

func TestSystemHandler_HealthRedisDown(t *testing.T) {
	h := NewSystemHandler("nest-haus", "1.2.0", map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("dial tcp: connection refused") },
	})

	w := serve(t, http.MethodGet, "/health", "/health", nil, h.Health)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "down", resp.Components["redis"].Status)
	assert.Contains(t, resp.Components["redis"].Error, "connection refused")
	assert.Equal(t, "up", resp.Components["database"].Status)
}

func TestSystemHandler_HealthHonoursTimeout(t *testing.T) {
	h := NewSystemHandler("nest-haus", "dev", map[string]HealthCheck{
		"slow": func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	h.timeout = 0

	w := serve(t, http.MethodGet, "/health", "/health", nil, h.Health)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSystemHandler_GetSystemInfo(t *testing.T) {
	h := NewSystemHandler("nest-haus", "1.2.0", map[string]HealthCheck{
		"redis":    func(context.Context) error { return nil },
		"database": func(context.Context) error { return nil },
	})

	w := serve(t, http.MethodGet, "/info", "/info", nil, h.GetSystemInfo)

	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, decode(t, w))
	assert.Equal(t, "nest-haus", data["name"])
	assert.NotEmpty(t, data["go_version"])
	assert.Equal(t, []any{"database", "redis"}, data["components"])
}

func TestSystemHandler_Ping(t *testing.T) {
	h := NewSystemHandler("nest-haus", "dev", nil)

	w := serve(t, http.MethodGet, "/ping", "/ping", nil, h.Ping)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", dataMap(t, decode(t, w))["message"])
}
