package handler

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nest-haus/backend/internal/interfaces/http/dto"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// SystemHandler serves health and build information.
type SystemHandler struct {
	BaseHandler
	name      string
	version   string
	checks    map[string]HealthCheck
	timeout   time.Duration
	startTime time.Time
}

// NewSystemHandler creates a SystemHandler. checks are run by Health.
func NewSystemHandler(name, version string, checks map[string]HealthCheck) *SystemHandler {
	return &SystemHandler{
		name:      name,
		version:   version,
		checks:    checks,
		timeout:   3 * time.Second,
		startTime: time.Now(),
	}
}

// ComponentStatus is the result of one check.
type ComponentStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentStatus `json:"components"`
}

// Health runs every check concurrently. Any failure answers 503.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		res = HealthResponse{
			Status:     "healthy",
			Version:    h.version,
			Uptime:     time.Since(h.startTime).Round(time.Second).String(),
			Components: make(map[string]ComponentStatus, len(h.checks)),
		}
	)
	for name, check := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started := time.Now()
			err := check(ctx)
			st := ComponentStatus{Status: "up", Latency: time.Since(started).Round(time.Millisecond).String()}
			if err != nil {
				st.Status = "down"
				st.Error = err.Error()
			}
			mu.Lock()
			res.Components[name] = st
			if err != nil {
				res.Status = "unhealthy"
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	status := http.StatusOK
	if res.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, res)
}

// SystemInfoResponse describes the running build.
type SystemInfoResponse struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	GoVersion  string   `json:"go_version"`
	Uptime     string   `json:"uptime"`
	Components []string `json:"components"`
}

// GetSystemInfo returns name, version and uptime.
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	components := make([]string, 0, len(h.checks))
	for name := range h.checks {
		components = append(components, name)
	}
	sort.Strings(components)
	c.JSON(http.StatusOK, dto.NewSuccessResponse(SystemInfoResponse{
		Name:       h.name,
		Version:    h.version,
		GoVersion:  runtime.Version(),
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Components: components,
	}))
}

// PingResponse is the ping body.
type PingResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Ping answers pong.
func (h *SystemHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(PingResponse{
		Message:   "pong",
		Timestamp: time.Now().Format(time.RFC3339),
	}))
}
