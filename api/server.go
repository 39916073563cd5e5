package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"portsweep/config"
	"portsweep/docs"
	"portsweep/logging"
	"portsweep/scanner"
)

const swaggerPrefix = "/swagger/"

// RouterOptions carries the middleware settings for NewRouter.
type RouterOptions struct {
	APIKey     string
	RateLimit  int64
	RateWindow time.Duration
	Limiter    RateLimiter
	Logger     *slog.Logger
}

// NewRouter builds the Gin engine with middleware, API routes and Swagger UI.
func NewRouter(server *Server, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLoggingMiddleware(opts.Logger))
	router.Use(SecurityHeadersMiddleware(swaggerPrefix))

	router.GET(swaggerPrefix+"*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := router.Group(docs.SwaggerInfo.BasePath)
	server.RegisterHealthRoutes(v1)

	protected := v1.Group("")
	protected.Use(AuthMiddleware(opts.APIKey, opts.Logger))
	if opts.Limiter != nil {
		protected.Use(RateLimitMiddleware(opts.Limiter, opts.RateLimit, opts.RateWindow, opts.Logger))
	}
	server.RegisterRoutes(protected)

	return router
}

// Run initializes dependencies and serves the API until SIGINT or SIGTERM.
func Run(cfg *config.Config) error {
	logger := logging.Logger()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}

	store := NewRedisStore(redisClient)
	prober := scanner.NewTCPConnectProber(cfg.Scan.ConnectTimeout)
	server := NewServer(prober, store, store, ScanLimits{
		DefaultWorkers: cfg.Scan.DefaultWorkers,
		MaxWorkers:     cfg.Scan.MaxWorkers,
		ConnectTimeout: cfg.Scan.ConnectTimeout,
		LockTTL:        cfg.Scan.LockTTL,
	}, logger)

	gin.SetMode(gin.ReleaseMode)
	router := NewRouter(server, RouterOptions{
		APIKey:     cfg.Server.APIKey,
		RateLimit:  cfg.RateLimit.Requests,
		RateWindow: cfg.RateLimit.Window,
		Limiter:    store,
		Logger:     logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting portsweep API server", "addr", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down portsweep API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
