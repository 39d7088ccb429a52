package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quickserve/servegate/internal/config"
	"github.com/quickserve/servegate/internal/handler"
	"github.com/quickserve/servegate/internal/ledger"
	"github.com/quickserve/servegate/internal/middleware"
	"github.com/quickserve/servegate/internal/pkg/logger"
	"github.com/quickserve/servegate/internal/ratelimit"
	"github.com/quickserve/servegate/internal/redemption"
	"github.com/quickserve/servegate/internal/repository"
	"github.com/quickserve/servegate/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("info")
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging.Level)
	logger.Info("starting servegate",
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	// Storage. Postgres when a DSN is configured, otherwise everything runs
	// in memory for local development. The memory ledger gives the same
	// integrity guarantees within a process lifetime.
	var (
		eventRepo  ledger.EventRepo
		tokenRepo  redemption.TokenRepo
		portalRepo service.PortalRepo
		userRepo   handler.UserRepo
	)
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		portal, err := repository.NewPortalStore(cfg.Database.DSN)
		if err != nil {
			logger.Error("failed to initialize portal store", "error", err)
			os.Exit(1)
		}

		eventRepo = repository.NewPostgresEventRepo(db)
		tokenRepo = repository.NewPostgresTokenRepo(db)
		portalRepo = portal
		userRepo = portal
		logger.Info("using postgres storage")
	} else {
		memPortal := repository.NewMemoryPortalStore()
		eventRepo = ledger.NewMemoryRepo()
		tokenRepo = redemption.NewMemoryTokenRepo()
		portalRepo = memPortal
		userRepo = memPortal
		logger.Warn("no database configured, using in-memory storage")
	}

	// Redis backs the fleet-shared rate-limit windows and the ledger
	// dashboard mirror. Absent or unreachable, the process-local limiter
	// takes over and the mirror is skipped.
	var (
		windowStore ratelimit.Store = ratelimit.NewMemoryStore()
		mirror      ledger.Mirror
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := repository.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("redis unavailable, using in-memory rate limiting", "error", err)
		} else {
			defer redisClient.Client.Close()
			windowStore = repository.NewRedisWindowStore(redisClient, cfg.Redis.WindowPrefix)
			mirror = repository.NewRedisLedgerMirror(redisClient, "", 0)
			logger.Info("using redis rate-limit windows and ledger mirror")
		}
	}

	// Services.
	ledgerSvc := ledger.NewService(eventRepo, mirror)
	redemptionSvc := redemption.NewService(tokenRepo, ledgerSvc, service.NewProofRecorder(ledgerSvc))
	docSvc := service.NewDocumentService(
		portalRepo, redemptionSvc, ledgerSvc,
		service.LogNotifier{},
		cfg.Server.BaseURL,
		time.Duration(cfg.Tokens.ExpiryHours)*time.Hour,
	)

	// HTTP surface.
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Metrics())
	router.Use(middleware.NewCsrfGuard(cfg.Csrf.CookieName, cfg.Csrf.ExemptPaths).Handler())

	router.GET("/health", handler.Health)
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	docHandler := handler.NewDocumentHandler(docSvc, userRepo, ledgerSvc)
	redeemHandler := handler.NewRedeemHandler(redemptionSvc, docSvc)
	auditHandler := handler.NewAuditHandler(ledgerSvc)

	throttle := middleware.NewSessionThrottle(cfg.RateLimit.SessionQPS, cfg.RateLimit.SessionBurst)

	v1 := router.Group("/v1")
	v1.Use(
		middleware.APIKeyAuth(cfg, docSvc, windowStore),
		throttle.Handler(),
	)
	docHandler.RegisterRoutes(v1,
		middleware.SlidingWindow(windowStore, "register", cfg.RateLimit.Register),
	)

	audit := router.Group("/v1/audit")
	audit.Use(middleware.AdminAuth(cfg))
	auditHandler.RegisterRoutes(audit)

	router.GET("/redeem/:token",
		middleware.SlidingWindow(windowStore, "redeem", cfg.RateLimit.Redeem),
		redeemHandler.Redeem,
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
	logger.Info("server stopped")
}
