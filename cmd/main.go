package main

import (
	"context"
	"time"

	"maintenance-service/internal/cache"
	"maintenance-service/internal/handler"
	"maintenance-service/internal/middleware"
	"maintenance-service/internal/repository"
	"maintenance-service/internal/service"
	"maintenance-service/pkg/config"
	"maintenance-service/pkg/database"
	"maintenance-service/pkg/jwtutil"
	"maintenance-service/pkg/logger"
	"maintenance-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(cfg); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	log.Info("Starting maintenance service...", cfg.LogConfig()...)

	// Initialize JWT utility with configuration
	jwtutil.Initialize(&cfg.JWT)

	// Initialize Prometheus metrics
	prometheus.InitMetrics(cfg)
	log.Info("Prometheus metrics initialized")

	// Initialize database (now includes migrations automatically)
	if err := database.InitDB(cfg); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established and migrations completed")

	store := repository.NewGormStore(database.GetDB())

	// Analytics cache: redis when configured, in-process otherwise
	var analyticsCache cache.Cache
	if cfg.Cache.RedisAddr != "" {
		redisCache := cache.NewRedis(cfg.Cache.RedisAddr)
		if err := redisCache.Ping(context.Background()); err != nil {
			log.Fatal("Failed to connect to redis", zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
		}
		analyticsCache = redisCache
		log.Info("Redis cache connected", zap.String("addr", cfg.Cache.RedisAddr))
	} else {
		analyticsCache = cache.NewMemory()
		log.Info("Using in-process analytics cache")
	}

	// Services
	scopes := service.NewScopeResolver(store, cfg.Cache.ScopeTTL)
	scheduling := service.NewSchedulingEngine(store, scopes, cfg.Scheduler.HorizonMonths)
	execution := service.NewExecutionEngine(store, scopes)
	contracts := service.NewContractService(store, scopes, scheduling, cfg.Scheduler.PremiumContractValue)
	analytics := service.NewAnalyticsAggregator(store, scopes, analyticsCache, cfg.Cache.AnalyticsTTL)

	// Handlers
	branchHandler := handler.NewBranchHandler(store, scopes)
	contractHandler := handler.NewContractHandler(contracts, scheduling)
	visitHandler := handler.NewVisitHandler(scheduling, execution)
	analyticsHandler := handler.NewAnalyticsHandler(analytics)

	// Background sweeps for missed visits and expired contracts
	if cfg.Scheduler.MissedInterval > 0 {
		go runSweeper(log, cfg.Scheduler.MissedInterval, scheduling, contracts)
	}

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(middleware.MetricsMiddleware)

	// Public routes - no authentication required
	e.GET("/", handler.Hello)
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Protected API routes
	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware)

	branches := api.Group("/branches")
	branches.POST("", branchHandler.Create)
	branches.POST("/:id/users", branchHandler.AssignUser)
	branches.DELETE("/:id/users/:userID", branchHandler.UnassignUser)

	contractRoutes := api.Group("/contracts")
	contractRoutes.POST("", contractHandler.Create)
	contractRoutes.GET("", contractHandler.List)
	contractRoutes.GET("/:id", contractHandler.Get)
	contractRoutes.PUT("/:id/status", contractHandler.UpdateStatus)
	contractRoutes.POST("/:id/renew", contractHandler.Renew)
	contractRoutes.POST("/:id/visits", contractHandler.GenerateVisits)
	contractRoutes.POST("/:id/visits/cancel-future", contractHandler.CancelFutureVisits)

	visits := api.Group("/visits")
	visits.GET("/upcoming", visitHandler.Upcoming)
	visits.GET("/overdue", visitHandler.Overdue)
	visits.POST("/mark-missed", visitHandler.MarkMissed)
	visits.GET("/:id", visitHandler.Get)
	visits.POST("/:id/start", visitHandler.Start)
	visits.POST("/:id/complete", visitHandler.Complete)
	visits.POST("/:id/reschedule", visitHandler.Reschedule)
	visits.PUT("/:id/status", visitHandler.UpdateStatus)

	analyticsRoutes := api.Group("/analytics")
	analyticsRoutes.GET("/contract-health", analyticsHandler.ContractHealth)
	analyticsRoutes.GET("/sla", analyticsHandler.SLA)
	analyticsRoutes.GET("/technicians", analyticsHandler.Technicians)

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}

// runSweeper periodically marks overdue visits as missed and expires
// contracts whose end date has passed.
func runSweeper(log *zap.Logger, interval time.Duration, scheduling *service.SchedulingEngine, contracts *service.ContractService) {
	log.Info("Starting maintenance sweeper", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		ctx := logger.WithContext(context.Background(), log)

		missed, err := scheduling.MarkOverdueVisitsAsMissed(ctx, 0)
		if err != nil {
			log.Error("Missed-visit sweep failed", zap.Error(err))
		} else if missed > 0 {
			log.Info("Visits marked as missed", zap.Int64("count", missed))
		}

		expired, err := contracts.ExpireOverdue(ctx)
		if err != nil {
			log.Error("Contract expiry sweep failed", zap.Error(err))
		} else if expired > 0 {
			log.Info("Contracts expired", zap.Int64("count", expired))
		}
	}
}
