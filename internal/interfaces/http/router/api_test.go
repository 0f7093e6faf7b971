package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nest-haus/backend/internal/domain/shared"
	"github.com/nest-haus/backend/internal/infrastructure/auth"
	"github.com/nest-haus/backend/internal/infrastructure/config"
	"github.com/nest-haus/backend/internal/interfaces/http/handler"
	"github.com/nest-haus/backend/internal/interfaces/http/middleware"
)

type tokenAuth struct{ valid string }

func (a tokenAuth) Authenticate(_ context.Context, token string) (*auth.Claims, error) {
	if token != a.valid {
		return nil, shared.ErrUnauthorized.WithMessage("Invalid token")
	}
	return &auth.Claims{Role: "admin"}, nil
}

// Services are nil: the requests below never get past binding or auth.
func testHandlers() Handlers {
	cookies := handler.NewCookies(config.CookieConfig{})
	return Handlers{
		Auth:      tokenAuth{valid: "good"},
		System:    handler.NewSystemHandler("nest-haus", "test", nil),
		Session:   handler.NewSessionHandler(nil, cookies),
		Pricing:   handler.NewPricingHandler(nil),
		Inquiry:   handler.NewInquiryHandler(nil),
		Payment:   handler.NewPaymentHandler(nil),
		Project:   handler.NewProjectHandler(nil),
		Analytics: handler.NewAnalyticsHandler(nil),
		Admin:     handler.NewAdminHandler(nil, cookies),
		Images:    handler.NewImageHandler(nil),
		Sync:      handler.NewSyncHandler(nil),
	}
}

func newTestEngine(t *testing.T, cfg Config) *gin.Engine {
	t.Helper()
	log := zaptest.NewLogger(t)
	engine, err := NewEngine(cfg, log)
	require.NoError(t, err)
	Register(engine, cfg, testHandlers(), log)
	return engine
}

func do(engine *gin.Engine, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRegister_Routes(t *testing.T) {
	engine := newTestEngine(t, Config{MetricsHandler: http.NotFoundHandler()})

	got := make(map[string]bool)
	for _, r := range engine.Routes() {
		got[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"GET /metrics",
		"GET /api/v1/system/ping",
		"POST /api/v1/sessions/track",
		"POST /api/v1/sessions/finalize",
		"GET /api/v1/pricing/table",
		"POST /api/v1/pricing/calculate",
		"POST /api/v1/contact",
		"POST /api/v1/checkout",
		"POST /api/v1/payments/create-intent",
		"POST /api/v1/webhooks/stripe",
		"GET /api/v1/images",
		"POST /api/v1/images/batch",
		"POST /api/v1/analytics/performance",
		"POST /api/v1/admin/login",
		"GET /api/v1/admin/me",
		"GET /api/v1/admin/sessions/live",
		"POST /api/v1/admin/pricing/sync",
		"PATCH /api/v1/admin/inquiries/:id",
		"GET /api/v1/admin/analytics/daily",
		"DELETE /api/v1/admin/projects/tasks/:taskId",
		"POST /api/v1/admin/projects/reorganize",
		"POST /api/v1/sync/google-drive",
	} {
		assert.True(t, got[want], "missing route %s", want)
	}
}

func TestRegister_NoMetricsHandler(t *testing.T) {
	engine := newTestEngine(t, Config{})
	assert.Equal(t, http.StatusNotFound, do(engine, http.MethodGet, MetricsPath, "").Code)
}

func TestEngine_HealthAndNotFound(t *testing.T) {
	engine := newTestEngine(t, Config{})

	w := do(engine, http.MethodGet, HealthPath, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = do(engine, http.MethodGet, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
}

func TestEngine_AdminRoutesRequireToken(t *testing.T) {
	engine := newTestEngine(t, Config{})

	assert.Equal(t, http.StatusUnauthorized, do(engine, http.MethodGet, "/api/v1/admin/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(engine, http.MethodGet, "/api/v1/admin/projects/tasks", "").Code)

	w := do(engine, http.MethodGet, "/api/v1/admin/me", "", "Authorization", "Bearer good")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEngine_CronRoute(t *testing.T) {
	engine := newTestEngine(t, Config{CronSecret: "s3cret"})

	assert.Equal(t, http.StatusUnauthorized, do(engine, http.MethodPost, "/api/v1/sync/google-drive", "").Code)
	// Authorised, then rejected by the handler's own query validation.
	w := do(engine, http.MethodPost, "/api/v1/sync/google-drive?days=999", "", middleware.CronSecretHeader, "s3cret")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEngine_RateLimits(t *testing.T) {
	engine := newTestEngine(t, Config{
		RateLimiter:  middleware.NewRateLimiter(1, time.Hour, 1),
		LoginLimiter: middleware.NewRateLimiter(1, time.Hour, 1),
	})

	assert.Equal(t, http.StatusOK, do(engine, http.MethodGet, "/api/v1/system/ping", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(engine, http.MethodGet, "/api/v1/system/ping", "").Code)

	// The webhook has no limiter; without a signature it is rejected every time.
	for range 3 {
		assert.Equal(t, http.StatusBadRequest, do(engine, http.MethodPost, "/api/v1/webhooks/stripe", "{}").Code)
	}
}

func TestEngine_LoginLimiter(t *testing.T) {
	engine := newTestEngine(t, Config{LoginLimiter: middleware.NewRateLimiter(1, time.Hour, 1)})

	assert.Equal(t, http.StatusBadRequest, do(engine, http.MethodPost, "/api/v1/admin/login", "{}").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(engine, http.MethodPost, "/api/v1/admin/login", "{}").Code)
	// Other admin routes are unaffected.
	assert.Equal(t, http.StatusUnauthorized, do(engine, http.MethodGet, "/api/v1/admin/me", "").Code)
}
