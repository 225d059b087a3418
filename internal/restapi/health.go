package restapi

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/boeni-industries/aico-gateway/internal/httputil"
)

// healthCheck serves GET {prefix}/health (spec §6): a liveness probe that also pings the two stores the session
// and authorization services depend on, degrading rather than failing outright if one is unreachable.
func (s *Server) healthCheck(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	pgStatus := "ok"
	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			pgStatus = "unavailable"
		}
	} else {
		pgStatus = "not_configured"
	}

	valkeyStatus := "ok"
	if s.valkey != nil {
		if err := s.valkey.Ping(ctx).Err(); err != nil {
			valkeyStatus = "unavailable"
		}
	} else {
		valkeyStatus = "not_configured"
	}

	overall := "ok"
	status := fiber.StatusOK
	if pgStatus == "unavailable" || valkeyStatus == "unavailable" {
		overall = "degraded"
		status = fiber.StatusServiceUnavailable
	}

	return httputil.SuccessStatus(c, status, fiber.Map{
		"status":   overall,
		"postgres": pgStatus,
		"valkey":   valkeyStatus,
	})
}

// gatewayStatus serves GET {prefix}/gateway/status: the running adapter set and build version.
func (s *Server) gatewayStatus(c fiber.Ctx) error {
	return httputil.Success(c, fiber.Map{
		"version":  s.version,
		"adapters": s.adapterStatus.Snapshot(),
	})
}

// gatewayMetrics serves GET {prefix}/gateway/metrics: a counter snapshot.
func (s *Server) gatewayMetrics(c fiber.Ctx) error {
	return httputil.Success(c, s.metrics.snapshot())
}
