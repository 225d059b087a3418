package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/boeni-industries/aico-gateway/internal/auth"
	"github.com/boeni-industries/aico-gateway/internal/authz"
	"github.com/boeni-industries/aico-gateway/internal/broker"
	"github.com/boeni-industries/aico-gateway/internal/busclient"
	"github.com/boeni-industries/aico-gateway/internal/config"
	"github.com/boeni-industries/aico-gateway/internal/envelope"
	"github.com/boeni-industries/aico-gateway/internal/gateway"
	"github.com/boeni-industries/aico-gateway/internal/ipc"
	"github.com/boeni-industries/aico-gateway/internal/logging"
	"github.com/boeni-industries/aico-gateway/internal/pipeline"
	"github.com/boeni-industries/aico-gateway/internal/postgres"
	"github.com/boeni-industries/aico-gateway/internal/ratelimit"
	"github.com/boeni-industries/aico-gateway/internal/restapi"
	"github.com/boeni-industries/aico-gateway/internal/router"
	"github.com/boeni-industries/aico-gateway/internal/secretstore"
	"github.com/boeni-industries/aico-gateway/internal/security"
	"github.com/boeni-industries/aico-gateway/internal/session"
	"github.com/boeni-industries/aico-gateway/internal/validator"
	"github.com/boeni-industries/aico-gateway/internal/valkey"
)

// Build metadata injected via ldflags at compile time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Exit codes, per the gateway's operational contract: 0 clean shutdown, 1 configuration error, 2 infrastructure
// (Postgres/Valkey/broker) startup failure, 3 adapter startup failure.
const (
	exitOK              = 0
	exitConfigError     = 1
	exitInfraError      = 2
	exitAdapterError    = 3
	shutdownGracePeriod = 15 * time.Second
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	code := run()
	os.Exit(code)
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("load configuration")
		return exitConfigError
	}

	if cfg.IsDevelopment() {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	if lvl, lerr := zerolog.ParseLevel(cfg.LogLevel); lerr == nil {
		log.Logger = log.Logger.Level(lvl)
	}

	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", date).
		Str("env", cfg.ServerEnv).
		Msg("starting aico-gateway")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The signing secret always resolves through the key service rather than being read a second time off cfg: it
	// is the one value the spec treats as sensitive enough to warrant an opaque resolution step (§6). The hash key
	// is optional (config.validate allows it empty) so it is read directly off cfg instead.
	secrets, err := secretstore.FromEnv(map[string]string{secretstore.NameTokenSigning: "JWT_SECRET"})
	if err != nil {
		log.Error().Err(err).Msg("resolve signing secret")
		return exitConfigError
	}
	signingSecret, err := secrets.Get(secretstore.NameTokenSigning)
	if err != nil {
		log.Error().Err(err).Msg("resolve token signing key")
		return exitConfigError
	}

	// Broker: the gateway process hosts its own in-process pub/sub relay so every adapter and background
	// subscriber (authz invalidation, log consumer, session cleanup) shares one wire format without an external
	// message broker dependency.
	msgBroker := broker.New(log.Logger)
	if err := msgBroker.Start(cfg.BrokerBindHost, cfg.BrokerPubPort, cfg.BrokerSubPort); err != nil {
		log.Error().Err(err).Msg("start broker")
		return exitInfraError
	}
	defer func() {
		if err := msgBroker.Stop(); err != nil {
			log.Warn().Err(err).Msg("broker stop")
		}
	}()
	log.Info().Str("bind", cfg.BrokerBindHost).Int("pub_port", cfg.BrokerPubPort).Int("sub_port", cfg.BrokerSubPort).
		Msg("broker listening")

	bus := busclient.New("aico-gateway", log.Logger)
	if err := bus.Connect(ctx, cfg.BrokerBindHost, cfg.BrokerPubPort, cfg.BrokerSubPort); err != nil {
		log.Error().Err(err).Msg("connect bus client")
		return exitInfraError
	}
	defer func() {
		if err := bus.Disconnect(); err != nil {
			log.Warn().Err(err).Msg("bus client disconnect")
		}
	}()
	log.Info().Msg("bus client connected")

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConn, cfg.DatabaseMinConn)
	if err != nil {
		log.Error().Err(err).Msg("connect postgres")
		return exitInfraError
	}
	defer db.Close()
	log.Info().Msg("postgres connected")

	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		log.Error().Err(err).Msg("run migrations")
		return exitInfraError
	}
	log.Info().Msg("database migrations complete")

	rdb, err := valkey.Connect(ctx, cfg.ValkeyURL, 5*time.Second)
	if err != nil {
		log.Error().Err(err).Msg("connect valkey")
		return exitInfraError
	}
	defer func() { _ = rdb.Close() }()
	log.Info().Msg("valkey connected")

	// Background services share a cancellable context distinct from the signal context so shutdown can stop them
	// before the adapters, in the order spec §5 expects.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	sessions := session.NewPGStore(db)
	go session.RunCleanupLoop(bgCtx, sessions, cfg.SessionCleanupInterval, cfg.SessionCleanupAge, log.Logger)

	authMgr := auth.New(
		auth.Config{
			AccessTTL:  cfg.JWTAccessTTL,
			RefreshTTL: cfg.JWTRefreshTTL,
			Argon2: auth.Argon2Params{
				Memory:      cfg.Argon2Memory,
				Iterations:  cfg.Argon2Iterations,
				Parallelism: cfg.Argon2Parallelism,
				SaltLength:  cfg.Argon2SaltLength,
				KeyLength:   cfg.Argon2KeyLength,
			},
		},
		signingSecret,
		cfg.JWTHashKey,
		sessions,
		nil, // no API-key issuance source is wired in this deployment
		bus,
		log.Logger,
	)

	roleStore := authz.NewPGStore(db)
	authzCache := authz.NewValkeyCache(rdb)
	authzPolicy := authz.PolicyDeny
	if cfg.AuthzDefaultPolicy == "allow" {
		authzPolicy = authz.PolicyAllow
	}
	resolver := authz.NewResolver(roleStore, authzCache, authzPolicy, log.Logger)

	authzSub := authz.NewSubscriber(authzCache, rdb, log.Logger)
	go runWithBackoff(bgCtx, "authz-invalidation-subscriber", authzSub.Run)

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitRequestsPerMinute,
		BurstSize:         cfg.RateLimitBurstSize,
		CleanupInterval:   cfg.RateLimitCleanupInterval,
	}, log.Logger)

	filter, err := security.New(security.Config{
		MaxRequestSize: cfg.SecurityMaxRequestSize,
		AllowedIPs:     cfg.SecurityAllowedIPs,
		DeniedIPs:      cfg.SecurityDeniedIPs,
	}, log.Logger)
	if err != nil {
		log.Error().Err(err).Msg("build security filter")
		return exitConfigError
	}

	rt, err := router.New(bus, router.Config{
		ExactMappings:  map[string]string{},
		PrefixMappings: []router.PrefixMapping{{Prefix: "api/", Target: ""}},
		Timeout:        cfg.RouterTimeout,
		MaxMessageSize: cfg.RouterMaxMessageSize,
	}, log.Logger)
	if err != nil {
		log.Error().Err(err).Msg("build router")
		return exitConfigError
	}
	if err := rt.Start(bgCtx); err != nil {
		log.Error().Err(err).Msg("start router")
		return exitInfraError
	}

	deps := pipeline.Dependencies{
		Security:  filter,
		Auth:      authMgr,
		RateLimit: limiter,
		Validator: validator.DefaultRegistry(),
		Authz:     resolver,
		Router:    rt,
	}

	// Logging pipeline: every component above logs straight to zerolog; this pipeline instead carries the
	// gateway's own structured log stream onto the bus so downstream consumers (including, eventually, the
	// companion's own introspection surface) can subscribe to it, and persists every entry to Postgres via the
	// consumer below. The consumer's own identifier is deny-listed so its failures can't re-enter the stream it
	// drains.
	levels := logging.NewLevelResolver(logging.LevelInfo)
	logPipeline := logging.NewPipeline(cfg.LogBufferCapacity, log.Logger,
		logging.WithDenyList([2]string{logging.Subsystem, logging.Module}),
		logging.WithLevels(levels),
	)
	logPipeline.MarkReady(logging.NewBusTransport(bus, "aico-gateway"))

	logRepo := logging.NewRepository(db)
	logConsumer := logging.NewConsumer(logRepo, log.Logger)
	go runWithBackoff(bgCtx, "log-consumer", func(ctx context.Context) error {
		return logConsumer.Run(ctx, busSubscriber{bus})
	})

	status := restapi.NewAdapterStatus()

	var restServer *restapi.Server
	if cfg.RESTEnabled {
		restServer = restapi.NewServer(restapi.Config{
			Prefix:           cfg.RESTPrefix,
			BindAddr:         cfg.RESTBindAddr,
			CORSAllowOrigins: cfg.RESTCORSAllowOrigins,
			BodyLimitBytes:   int(cfg.SecurityMaxRequestSize),
		}, deps, authMgr, limiter, db, rdb, status, version, log.Logger)
		status.Set("rest", true)
	}

	var hub *gateway.Hub
	if cfg.GatewayEnabled {
		if restServer == nil {
			log.Error().Msg("the websocket adapter requires the REST adapter's Fiber app as its mount point")
			return exitConfigError
		}
		hub = gateway.NewHub(gateway.Config{
			Path:              cfg.GatewayPath,
			MaxConnections:    cfg.GatewayMaxConnections,
			HeartbeatInterval: cfg.GatewayHeartbeatInterval,
			MaxFrameSize:      cfg.GatewayMaxFrameSize,
			AuthTimeout:       cfg.GatewayAuthTimeout,
			ServerName:        cfg.ServerName,
			Version:           cfg.GatewayServerVersion,
		}, deps, bus, log.Logger)
		handler := gateway.NewHandler(hub)
		restServer.App().Get(cfg.GatewayPath, handler.Upgrade)
		status.Set("websocket", true)
	}

	var ipcServer *ipc.Server
	if cfg.IPCEnabled {
		ipcServer = ipc.New(ipc.Config{
			SocketPath: cfg.IPCSocketPath,
			TCPAddr:    cfg.IPCTCPAddr,
		}, deps, log.Logger)
		if err := ipcServer.Start(bgCtx); err != nil {
			log.Error().Err(err).Msg("start ipc adapter")
			return exitAdapterError
		}
		status.Set("ipc", true)
		log.Info().Str("socket", cfg.IPCSocketPath).Msg("ipc adapter listening")
	}

	shutdownComplete := make(chan struct{})
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")

		bgCancel()
		if hub != nil {
			hub.Shutdown()
		}
		if ipcServer != nil {
			if err := ipcServer.Stop(); err != nil {
				log.Warn().Err(err).Msg("ipc adapter stop")
			}
		}
		if restServer != nil {
			if err := restServer.Shutdown(); err != nil {
				log.Warn().Err(err).Msg("rest adapter shutdown")
			}
		}
		close(shutdownComplete)
	}()

	if restServer == nil {
		// No HTTP adapter to listen on: block until shutdown is requested.
		<-shutdownComplete
		return exitOK
	}

	log.Info().Str("addr", cfg.RESTBindAddr).Msg("rest adapter listening")
	listenErr := restServer.App().Listen(cfg.RESTBindAddr, fiber.ListenConfig{DisableStartupMessage: true})

	select {
	case <-shutdownComplete:
	case <-time.After(shutdownGracePeriod):
		log.Warn().Msg("shutdown grace period elapsed before background services stopped")
	}

	if listenErr != nil && ctx.Err() == nil {
		log.Error().Err(listenErr).Msg("rest adapter listen error")
		return exitAdapterError
	}
	return exitOK
}

// busSubscriber adapts *busclient.Client to logging.Subscriber, discarding the subscription handle the log
// consumer has no use for: it never unsubscribes, it runs for the process lifetime.
type busSubscriber struct {
	bus *busclient.Client
}

func (s busSubscriber) Subscribe(ctx context.Context, pattern string, handler func(envelope.Envelope)) error {
	_, err := s.bus.Subscribe(ctx, pattern, handler)
	return err
}

// runWithBackoff runs fn in a loop, restarting with exponential backoff when it returns a non-nil, non-cancelled
// error. If fn returns nil or context.Canceled the goroutine exits. The delay starts at 1 second and doubles on
// each consecutive failure up to a 2-minute cap.
func runWithBackoff(ctx context.Context, name string, fn func(context.Context) error) {
	const (
		initialDelay = time.Second
		maxDelay     = 2 * time.Minute
	)
	delay := initialDelay
	for {
		if err := fn(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error().Err(err).Str("service", name).Dur("retry_in", delay).
				Msg("background service stopped, restarting after delay")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, maxDelay)
			continue
		}
		return
	}
}
