package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/gin-gonic/gin"

	"portsweep/scanner"
)

// ScanLimits bounds the scans clients may request.
type ScanLimits struct {
	DefaultWorkers int
	MaxWorkers     int
	ConnectTimeout time.Duration
	LockTTL        time.Duration
}

// Server bundles dependencies for HTTP handlers.
type Server struct {
	prober scanner.Prober
	lock   TargetLock
	health HealthChecker
	limits ScanLimits
	logger *slog.Logger
}

// NewServer creates a new API server instance.
func NewServer(prober scanner.Prober, lock TargetLock, health HealthChecker, limits ScanLimits, logger *slog.Logger) *Server {
	return &Server{prober: prober, lock: lock, health: health, limits: limits, logger: logger}
}

// RegisterRoutes attaches handlers to the provided Gin router group.
func (s *Server) RegisterRoutes(routes gin.IRoutes) {
	routes.POST("/scans", s.createScanHandler)
}

// RegisterHealthRoutes attaches the unauthenticated health endpoint.
func (s *Server) RegisterHealthRoutes(routes gin.IRoutes) {
	routes.GET("/healthz", s.healthHandler)
}

// @Summary      Scan every TCP port of a target
// @Description  Probes ports 1-65535 of the target with a TCP connect and returns the open ones in ascending order. The request blocks until the scan completes; nothing is stored server-side.
// @Description  **Partitioning**: each of the requested workers owns the ports congruent to its offset modulo the worker count, so no port is probed twice.
// @Description  **Concurrency**: only one scan per target runs at a time. A second request for the same target receives HTTP 409 until the first finishes.
// @Tags         Scans
// @Accept       json
// @Produce      json
// @Param        scanRequest  body      CreateScanRequest  true  "Scan request parameters"
// @Success      200          {object}  ScanResponse       "Scan finished. Example: {\"id\":\"a3f5c62e-1234-4f72-a84a-1c2d3e4f5678\",\"target\":\"192.0.2.10\",\"workers\":64,\"open_ports\":[22,443]}"
// @Failure      400          {object}  ErrorResponse      "Malformed JSON body or failed validation. Example: {\"error\":\"threads must be within 1-1024\"}"
// @Failure      401          {object}  ErrorResponse      "Missing or incorrect API key. Example: {\"error\":\"unauthorized\"}"
// @Failure      409          {object}  ErrorResponse      "A scan of this target is already running. Example: {\"error\":\"target is already being scanned\"}"
// @Failure      429          {object}  ErrorResponse      "Rate limit exceeded for the calling client. Example: {\"error\":\"rate limit exceeded\"}"
// @Failure      500          {object}  ErrorResponse      "Lock backend failure. Example: {\"error\":\"failed to lock target\"}"
// @Security     ApiKeyAuth
// @Router       /scans [post]
func (s *Server) createScanHandler(c *gin.Context) {
	var req CreateScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid request payload: %v", err)})
		return
	}

	target, err := netip.ParseAddr(req.Target)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "target is not a valid IP address"})
		return
	}

	workers, err := resolveWorkers(req.Threads, s.limits.DefaultWorkers, s.limits.MaxWorkers)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	cfg, err := scanner.NewScanConfig(target, workers)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	cfg = cfg.WithConnectTimeout(s.limits.ConnectTimeout)

	id := scanID(c)
	lockTarget := cfg.Target.String()
	ctx := c.Request.Context()

	if err := s.lock.Acquire(ctx, lockTarget, id, s.limits.LockTTL); err != nil {
		if errors.Is(err, ErrTargetBusy) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
			return
		}
		s.logger.Error("failed to lock target", "scan_id", id, "target", lockTarget, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to lock target"})
		return
	}
	defer func() {
		// The request context may already be cancelled here.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.lock.Release(releaseCtx, lockTarget, id); err != nil {
			s.logger.Error("failed to release target lock", "scan_id", id, "target", lockTarget, "error", err)
		}
	}()

	stopRefresh := s.keepLocked(ctx, lockTarget, id)
	s.logger.Info("scan started", "scan_id", id, "target", lockTarget, "workers", cfg.Workers)
	report := scanner.ExecuteScan(ctx, cfg, s.prober, nil)
	stopRefresh()
	if ctx.Err() != nil {
		s.logger.Warn("scan aborted by client", "scan_id", id, "target", lockTarget)
		return
	}
	s.logger.Info("scan completed", "scan_id", id, "target", lockTarget,
		"open", len(report.OpenPorts), "duration_ms", report.Duration().Milliseconds())

	c.JSON(http.StatusOK, newScanResponse(id, report))
}

// keepLocked renews the target lock every third of its TTL until the
// returned stop function is called.
func (s *Server) keepLocked(ctx context.Context, target, token string) (stop func()) {
	interval := s.limits.LockTTL / 3
	if interval <= 0 {
		return func() {}
	}

	refreshCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-refreshCtx.Done():
				return
			case <-ticker.C:
				err := s.lock.Refresh(refreshCtx, target, token, s.limits.LockTTL)
				switch {
				case err == nil:
				case errors.Is(err, ErrLockLost):
					s.logger.Error("target lock lost during scan", "scan_id", token, "target", target)
					return
				case refreshCtx.Err() == nil:
					s.logger.Warn("failed to refresh target lock", "scan_id", token, "target", target, "error", err)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// @Summary      Service health
// @Description  Reports whether the Redis backend used for locking and rate limiting is reachable.
// @Tags         Health
// @Produce      json
// @Success      200  {object}  HealthResponse  "Service ready. Example: {\"status\":\"ok\"}"
// @Failure      503  {object}  HealthResponse  "Redis unreachable. Example: {\"status\":\"unavailable\"}"
// @Router       /healthz [get]
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.health.Ping(ctx); err != nil {
		s.logger.Error("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}
