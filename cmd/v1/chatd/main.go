package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/v1/config"
	"github.com/parlorchat/parlor/internal/v1/events"
	"github.com/parlorchat/parlor/internal/v1/health"
	"github.com/parlorchat/parlor/internal/v1/logging"
	"github.com/parlorchat/parlor/internal/v1/middleware"
	"github.com/parlorchat/parlor/internal/v1/ratelimit"
	"github.com/parlorchat/parlor/internal/v1/room"
	"github.com/parlorchat/parlor/internal/v1/session"
	"github.com/parlorchat/parlor/internal/v1/store"
	"github.com/parlorchat/parlor/internal/v1/tracing"
	"github.com/parlorchat/parlor/internal/v1/transport"
)

func main() {
	// .env is optional; the env itself wins
	for _, path := range []string{".env", "../../../.env", "../../.env"} {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment file", "path", path)
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		slog.Error("Logger initialization failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = logging.GetLogger().Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTELCollectorAddr != "" {
		shutdownTracer, err := tracing.InitTracer(ctx, "parlor-chatd", cfg.OTELCollectorAddr)
		if err != nil {
			logging.Warn(ctx, "tracing disabled, collector unreachable", zap.Error(err))
		} else {
			defer func() {
				tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdownTracer(tctx)
			}()
		}
	}

	st, err := store.New(cfg.DataDir)
	if err != nil {
		logging.Fatal(ctx, "data dir init failed", zap.Error(err))
	}
	registry := room.NewRegistry(st)
	if err := registry.Load(); err != nil {
		logging.Fatal(ctx, "rooms load failed", zap.Error(err))
	}

	var (
		publisher   *events.Publisher
		redisClient *redis.Client
	)
	if cfg.RedisEnabled {
		publisher, err = events.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logging.Warn(ctx, "events publisher disabled, redis unreachable", zap.Error(err))
			publisher = nil
		} else {
			defer publisher.Close()
			redisClient = redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
			})
			defer redisClient.Close()
		}
	}

	hub := session.NewHub(st, registry, publisher)
	if err := hub.LoadAccounts(); err != nil {
		logging.Fatal(ctx, "accounts load failed", zap.Error(err))
	}

	gate, err := ratelimit.NewConnGate(cfg.ConnRateLimit, redisClient)
	if err != nil {
		logging.Fatal(ctx, "connection rate limit invalid", zap.Error(err))
	}

	srv := transport.New(cfg.ListenAddr, hub, gate)
	if err := srv.Start(ctx); err != nil {
		logging.Fatal(ctx, "chat listener failed", zap.Error(err))
	}

	go hub.RunSweeper(ctx, time.Duration(cfg.SweepIntervalSeconds)*time.Second)

	opsServer := startOpsServer(ctx, cfg, st, publisher)

	logging.Info(ctx, "chatd running",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("ops_port", cfg.OpsPort),
		zap.Bool("redis", cfg.RedisEnabled))

	<-ctx.Done()
	logging.Info(context.Background(), "shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(shutdownCtx, "chat listener shutdown failed", zap.Error(err))
	}
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logging.Error(shutdownCtx, "ops server shutdown failed", zap.Error(err))
	}
	logging.Info(context.Background(), "shutdown complete")
}

// startOpsServer serves metrics and health probes on the ops port.
func startOpsServer(ctx context.Context, cfg *config.Config, st *store.Store, publisher *events.Publisher) *http.Server {
	if !cfg.DevelopmentMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Correlation())
	if cfg.OTELCollectorAddr != "" {
		router.Use(otelgin.Middleware("parlor-chatd"))
	}

	corsCfg := cors.DefaultConfig()
	if cfg.AllowedOrigins != "" {
		corsCfg.AllowOrigins = splitOrigins(cfg.AllowedOrigins)
	} else {
		corsCfg.AllowAllOrigins = true
	}
	router.Use(cors.New(corsCfg))

	checks := map[string]health.Check{
		"store": func(ctx context.Context) error { return st.WriteCheck() },
	}
	if publisher != nil {
		checks["events"] = publisher.Ping
	}
	h := health.NewHandler(checks)
	router.GET("/health/live", h.Liveness)
	router.GET("/health/ready", h.Readiness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	opsServer := &http.Server{
		Addr:    ":" + cfg.OpsPort,
		Handler: router,
	}
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "ops server failed", zap.Error(err))
		}
	}()
	return opsServer
}

func splitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
