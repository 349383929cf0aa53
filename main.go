package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"hms-sync/internal/config"
	"hms-sync/internal/db"
	grpcserver "hms-sync/internal/grpc"
	"hms-sync/internal/handlers"
	"hms-sync/internal/logging"
	"hms-sync/internal/media"
	"hms-sync/internal/middleware"
	"hms-sync/internal/observability"
	"hms-sync/internal/rabbitmq"
	"hms-sync/internal/repositories"
	"hms-sync/internal/session"
	"hms-sync/internal/telemetry"
	"hms-sync/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Environment)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		zap.S().Fatalw("failed to init tracer", "error", err)
	}

	if cfg.JWTSecret == "" {
		zap.S().Fatalw("JWT_SECRET is required")
	}

	var emojis repositories.EmojiRepository
	if cfg.DatabaseDSN != "" {
		database, err := db.Connect(cfg.DatabaseDSN)
		if err != nil {
			zap.S().Fatalw("failed to connect to db", "error", err)
		}
		defer database.Close()
		emojis = repositories.NewEmojiRepo(database)
	} else {
		zap.S().Infow("recent emojis disabled", "reason", "empty database dsn")
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, "audit.hms", cfg.ServiceName, cfg.Environment)
	zap.S().Infow("event publisher ready", "mode", rabbitmq.PublisherMode(publisher))

	uploader, err := media.New(cfg.CloudinaryURL, cfg.CloudinaryFolder)
	if err != nil {
		zap.S().Fatalw("failed to init media uploader", "error", err)
	}

	hub := ws.NewHub()
	manager := session.NewManager(session.Options{
		Dialer:      session.NewDialer(cfg.BackendURL, cfg.SocketURL, cfg.BackendRPS),
		Broadcaster: hub,
		Uploader:    uploader,
		Audit:       audit,
		ListPath:    cfg.NotificationsPath,
		PollSpec:    "@every " + cfg.PollInterval.String(),
	})
	if err := manager.StartPolling(); err != nil {
		zap.S().Fatalw("failed to schedule unread polling", "error", err)
	}

	validator := middleware.NewTokenValidator(cfg.JWTSecret)
	limiter := middleware.NewRateLimiter(cfg.APIRequestsPerMin, time.Minute)
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every 5m", limiter.Sweep); err != nil {
		zap.S().Fatalw("failed to schedule limiter sweep", "error", err)
	}
	sweeper.Start()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": manager.Count()})
	})

	sessionWS := ws.NewSessionWebSocketHandler(hub, validator, manager, cfg.AllowedOrigins)
	router.GET("/ws/session", sessionWS.Handle)

	handlers.RegisterDebugRoutes(router, manager, audit, cfg.Environment != "production")
	handlers.RegisterRoutes(router, handlers.Deps{
		Sessions:  manager,
		Emojis:    emojis,
		Audit:     audit,
		Validator: validator,
		Limiter:   limiter,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsHandler.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	health := grpcserver.NewHealthServer(cfg.ServiceName)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		zap.S().Fatalw("failed to listen for grpc", "port", cfg.GRPCPort, "error", err)
	}
	go func() {
		if err := health.Serve(lis); err != nil {
			zap.S().Errorw("grpc health server stopped", "error", err)
		}
	}()

	go func() {
		zap.S().Infow("session gateway listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Fatalw("failed to start server", "error", err)
		}
	}()

	<-ctx.Done()
	zap.S().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	<-sweeper.Stop().Done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.S().Warnw("http shutdown", "error", err)
	}
	manager.Shutdown(shutdownCtx)
	health.Stop()
	if err := publisher.Close(); err != nil {
		zap.S().Warnw("close publisher", "error", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		zap.S().Warnw("tracer shutdown", "error", err)
	}
}
