package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pesio-ai/be-ap-payment-orders/internal/client"
	"github.com/pesio-ai/be-ap-payment-orders/internal/config"
	"github.com/pesio-ai/be-ap-payment-orders/internal/handler"
	"github.com/pesio-ai/be-ap-payment-orders/internal/logger"
	"github.com/pesio-ai/be-ap-payment-orders/internal/metrics"
	"github.com/pesio-ai/be-ap-payment-orders/internal/middleware"
	"github.com/pesio-ai/be-ap-payment-orders/internal/repository"
	"github.com/pesio-ai/be-ap-payment-orders/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
		File:        cfg.Service.LogFile,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Payment Orders Service")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize backend credentials
	var creds client.CredentialProvider
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		creds = client.NewRedisCredentialProvider(rdb, cfg.Redis.TokenKey)
		log.Info().Str("addr", cfg.Redis.Addr).Str("key", cfg.Redis.TokenKey).Msg("Using Redis credentials")
	} else {
		creds = client.NewStaticCredentials(cfg.Backend.Token)
	}

	// Initialize backend clients
	gw := client.NewGateway(cfg.Backend.BaseURL, cfg.Backend.Timeout, creds, log)
	referenceClient := client.NewReferenceClient(gw)
	ordersClient := client.NewOrdersClient(gw)
	itemsClient := client.NewItemsClient(gw)
	log.Info().Str("base_url", cfg.Backend.BaseURL).Msg("Backend clients initialized")

	// Initialize audit trail
	var (
		audit       service.AuditRecorder
		auditReader handler.AuditReader
	)
	if cfg.Database.URL != "" {
		db, err := repository.Connect(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		auditRepo := repository.NewAuditRepository(db)
		if err := auditRepo.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to prepare audit schema")
		}
		audit, auditReader = auditRepo, auditRepo
		log.Info().Msg("Database connection established")
	} else {
		log.Warn().Msg("No database configured, audit trail disabled")
	}

	// Initialize event publisher
	var events service.EventPublisher
	if cfg.NATS.URL != "" {
		publisher, err := client.ConnectNotificationPublisher(cfg.NATS.URL, log)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, events disabled")
		} else {
			defer publisher.Close()
			events = publisher
		}
	}

	// Initialize services
	paymentOrderService := service.NewPaymentOrderService(
		service.NewSessionRegistry(),
		referenceClient,
		ordersClient,
		itemsClient,
		audit,
		events,
		log,
	)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(paymentOrderService, log)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, httpHandler, auditReader)

	// Apply middleware
	var h http.Handler = metrics.Middleware(mux)
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(30 * time.Second)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	grpcServer := handler.NewGRPCServer(log)
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	grpcServer.Drain()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stop gRPC server gracefully
	grpcServer.GracefulStop()

	log.Info().Msg("Server stopped")
}
