package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/wardenproxy/warden/internal/api/middleware"
	"github.com/wardenproxy/warden/internal/api/routes"
	"github.com/wardenproxy/warden/internal/config"
	"github.com/wardenproxy/warden/internal/logger"
	"github.com/wardenproxy/warden/internal/metrics"
	"github.com/wardenproxy/warden/internal/policy"
	"github.com/wardenproxy/warden/internal/proxy"
	"github.com/wardenproxy/warden/internal/services"
)

// Server wraps the HTTP engine and shared dependencies for easier testing.
type Server struct {
	Engine *gin.Engine
	cfg    config.Config
	calls  *services.CallService
}

// New wires the policy engine, its rule implementations, the forwarder,
// and the management API into one router.
func New(db *gorm.DB, cfg config.Config) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	endpointSvc := services.NewEndpointService(db)
	groupSvc := services.NewGroupService(db)
	callSvc := services.NewCallService(db, cfg.CallRetention)
	authSvc := services.NewAuthService(db, cfg.JWTSecret)

	verifier := policy.NewIdentityVerifier(cfg.JWTSecret)
	cache := policy.NewResponseCache(1024, cfg.CacheTTL)

	var store policy.CounterStore
	if cfg.RedisAddr != "" {
		store = policy.NewRedisCounterStore(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
		logger.WithFields(map[string]interface{}{"addr": cfg.RedisAddr}).Info("using redis rate-limit counters")
	} else {
		store = policy.NewMemoryCounterStore()
	}

	engine := policy.NewEngine(groupSvc,
		policy.NewIPFilter(),
		verifier,
		policy.NewInputValidator(),
		policy.NewSQLInspector(),
		policy.NewXSSSanitizer(),
		policy.NewRateLimiter(store, nil, nil),
		cache,
	)

	forwarder, err := proxy.NewReverseForwarder(cfg.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("build forwarder: %w", err)
	}

	gate := middleware.NewGate(engine, endpointSvc, callSvc, cache, forwarder)

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.RequestLogger(), middleware.Recovery(cfg.IsDevelopment()))

	routes.Register(router, routes.Deps{
		Verifier:  verifier,
		Gate:      gate,
		Registry:  registry,
		Auth:      authSvc,
		Endpoints: endpointSvc,
		Groups:    groupSvc,
		Calls:     callSvc,
	})

	return &Server{Engine: router, cfg: cfg, calls: callSvc}, nil
}

// Run starts the HTTP server with graceful shutdown semantics.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", s.cfg.HTTPPort),
		Handler: s.Engine,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.calls.Cron.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
