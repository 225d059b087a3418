// Package restapi implements the gateway's REST adapter (spec §4.8a, C13): health/status/metrics endpoints, the
// auth token-issuance endpoints (which run ahead of any resolved identity), and a generic catch-all handler that
// packs every other request into an envelope and runs it through the shared pipeline (internal/pipeline).
package restapi

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/boeni-industries/aico-gateway/internal/auth"
	"github.com/boeni-industries/aico-gateway/internal/ferror"
	"github.com/boeni-industries/aico-gateway/internal/httputil"
	"github.com/boeni-industries/aico-gateway/internal/pipeline"
	"github.com/boeni-industries/aico-gateway/internal/ratelimit"
)

// Server is the gateway's REST adapter: a Fiber app plus the pipeline dependencies its handlers thread every
// request through.
type Server struct {
	app  *fiber.App
	cfg  Config
	deps pipeline.Dependencies
	log  zerolog.Logger

	authMgr   *auth.Manager
	rateLimit *ratelimit.Limiter // the authenticate endpoint's own per-IP limiter; nil disables it

	db     *pgxpool.Pool // for health only; nil if the session store has no Postgres backing in this deployment
	valkey *redis.Client // for health only; nil if the authz cache has no Valkey backing

	version       string
	adapterStatus *AdapterStatus
	metrics       metrics
}

// NewServer builds a Server and registers all routes. authMgr is required (the dedicated auth endpoints always
// need it); deps.Router is required by pipeline.Run. db, valkey, and status may be nil.
func NewServer(cfg Config, deps pipeline.Dependencies, authMgr *auth.Manager, rateLimit *ratelimit.Limiter, db *pgxpool.Pool, valkey *redis.Client, status *AdapterStatus, version string, log zerolog.Logger) *Server {
	if status == nil {
		status = NewAdapterStatus()
	}

	s := &Server{
		cfg:           cfg,
		deps:          deps,
		authMgr:       authMgr,
		rateLimit:     rateLimit,
		db:            db,
		valkey:        valkey,
		version:       version,
		adapterStatus: status,
		log:           log.With().Str("component", "restapi").Logger(),
	}

	s.app = fiber.New(fiber.Config{
		AppName:   "aico-gateway",
		BodyLimit: cfg.BodyLimitBytes,
		ErrorHandler: func(c fiber.Ctx, err error) error {
			fe := ferror.From(err)
			s.log.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("unhandled REST error")
			return httputil.FailErr(c, fe)
		},
	})

	s.app.Use(requestid.New())
	s.app.Use(httputil.RequestLogger(s.log))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.CORSAllowOrigins,
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key-Id", "X-API-Key-Secret"},
		ExposeHeaders: []string{"X-Request-Id"},
	}))
	s.app.Use(func(c fiber.Ctx) error {
		s.metrics.recordRequest()
		return c.Next()
	})

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	prefix := s.cfg.Prefix

	s.app.Get(prefix+"/health", s.healthCheck)
	s.app.Get(prefix+"/gateway/status", s.gatewayStatus)
	s.app.Get(prefix+"/gateway/metrics", s.gatewayMetrics)

	s.app.Post(prefix+"/auth/authenticate", s.authenticate)
	s.app.Post(prefix+"/auth/refresh", s.refresh)
	s.app.Post(prefix+"/auth/logout", s.logout)

	s.app.All(prefix+"/*", s.catchAll)
}

// App returns the underlying Fiber app, for cmd/gateway.main to Listen on.
func (s *Server) App() *fiber.App {
	return s.app
}

// Shutdown gracefully stops the underlying Fiber app.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
