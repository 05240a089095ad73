package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/keystore/internal/application/dto"
	"github.com/turtacn/keystore/pkg/logger"
)

// Pinger is a dependency whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	checks  map[string]Pinger
	version string
	timeout time.Duration
	log     logger.Logger
}

// NewHealthHandler creates a new HealthHandler over the named dependencies.
func NewHealthHandler(checks map[string]Pinger, version string, log logger.Logger) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		version: version,
		timeout: 2 * time.Second,
		log:     log.WithComponent("health"),
	}
}

// LivenessCheck godoc
// @Summary      Liveness Check
// @Tags         health
// @Produce      json
// @Success      200  {object}  dto.HealthResponse
// @Router       /health/live [get]
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{Status: "ok", Version: h.version})
}

// ReadinessCheck godoc
// @Summary      Readiness Check
// @Description  Checks that the key store backend is reachable.
// @Tags         health
// @Produce      json
// @Success      200  {object}  dto.HealthResponse
// @Failure      503  {object}  dto.HealthResponse
// @Router       /health/ready [get]
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	checks := h.Check(c.Request.Context())

	resp := dto.HealthResponse{Status: "ok", Checks: checks, Version: h.version}
	status := http.StatusOK
	for _, result := range checks {
		if result != "ok" {
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			break
		}
	}
	c.JSON(status, resp)
}

// Check pings every dependency concurrently and reports "ok" or the failure per name.
func (h *HealthHandler) Check(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checks))
	)
	for name, p := range h.checks {
		wg.Add(1)
		go func(name string, p Pinger) {
			defer wg.Done()
			status := "ok"
			if err := p.Ping(ctx); err != nil {
				h.log.Warn(ctx, "Health check failed", logger.Fields{"check": name, "error": err.Error()})
				status = "error"
			}
			mu.Lock()
			checks[name] = status
			mu.Unlock()
		}(name, p)
	}
	wg.Wait()
	return checks
}

//Personal.AI order the ending
