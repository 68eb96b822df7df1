package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kbdon7718-ui/fleet-dashboard/internal/application"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/auth"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/config"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/database"
	sessionDomain "github.com/kbdon7718-ui/fleet-dashboard/internal/domain/session"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/events"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/handler"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/logger"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/middleware"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/repository"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/ws"
)

const serviceName = "fleet-dashboard"

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	// Initialize logger.
	log, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	if cfg.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Session audit storage: PostgreSQL when enabled, memory otherwise.
	var (
		db          *gorm.DB
		sessionRepo sessionDomain.Repository
	)
	if cfg.DBConfig.Enabled {
		db, err = database.Connect(cfg.DBConfig, log)
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}

		if cfg.AppEnv == "development" {
			if err := db.AutoMigrate(&repository.ViewSessionModel{}); err != nil {
				log.Fatal("failed to auto-migrate database", zap.Error(err))
			}
			log.Info("database migration completed (dev auto-migrate)")
		} else if err := database.RunMigrations(cfg.DBConfig.DatabaseURL(), "migrations", log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}

		gormRepo := repository.NewGORMViewSessionRepository(db, log)
		if _, err := gormRepo.CloseStale(context.Background()); err != nil {
			log.Warn("failed to close stale view sessions", zap.Error(err))
		}
		sessionRepo = gormRepo
	} else {
		log.Info("database disabled, view sessions kept in memory")
		sessionRepo = repository.NewMemoryViewSessionRepository()
	}

	// Initialize JWT manager.
	jwtManager := auth.NewJWTManager(cfg.JWTConfig.Secret, cfg.AccessExpiry())

	// Initialize event publisher.
	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaConfig.Brokers) > 0 {
		publisher = events.NewProducer(cfg.KafkaConfig.Brokers, log)
	} else {
		log.Info("no kafka brokers configured, lifecycle events are discarded")
	}
	defer func() { _ = publisher.Close() }()

	// Initialize WebSocket hub and view service.
	wsHub := ws.NewHub(log)
	viewService := application.NewViewService(
		sessionRepo,
		wsHub,
		publisher,
		cfg.KafkaConfig.Topic,
		cfg.TrackerOptions(),
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisherDone := make(chan struct{})
	go func() {
		viewService.Run(ctx)
		close(publisherDone)
	}()

	// Operator notices arrive over Kafka when brokers are configured.
	if len(cfg.KafkaConfig.Brokers) > 0 {
		noticeConsumer := events.NewNoticeConsumer(
			cfg.KafkaConfig.Brokers,
			cfg.KafkaConfig.GroupID+"-notices",
			cfg.KafkaConfig.NoticeTopic,
			viewService,
			log,
		)
		defer func() { _ = noticeConsumer.Close() }()

		go func() {
			if err := noticeConsumer.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error("notice consumer error", zap.Error(err))
			}
		}()
	}

	// Initialize Gin router.
	router := gin.New()
	router.Use(
		middleware.RequestIDMiddleware(),
		middleware.LoggerMiddleware(log),
		middleware.RecoveryMiddleware(log),
		middleware.CORSMiddleware(),
		middleware.SecurityHeadersMiddleware(),
	)

	// Register health check routes.
	healthHandler := handler.NewHealthHandler(db, serviceName)
	healthHandler.RegisterRoutes(router)

	// Register view REST API and WebSocket routes.
	viewHandler := handler.NewViewHandler(viewService, wsHub, jwtManager, log)
	apiV1 := router.Group("/api/v1")
	viewHandler.RegisterRoutes(apiV1, jwtManager)
	viewHandler.RegisterWSRoute(router, cfg.Tracker.MountID)

	// Start HTTP server.
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting "+serviceName,
			zap.String("port", cfg.Port),
			zap.String("mount_id", cfg.Tracker.MountID),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down " + serviceName + "...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Unmount views first so every tracker releases its subscription.
	viewService.UnmountAll(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	// Stop the publisher and wait for it to flush.
	cancel()
	<-publisherDone

	log.Info(serviceName + " stopped")
}
