package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/tavros-checkout/internal/cache"
	"github.com/fjod/tavros-checkout/internal/config"
	grpcserver "github.com/fjod/tavros-checkout/internal/grpc"
	httpapi "github.com/fjod/tavros-checkout/internal/http"
	"github.com/fjod/tavros-checkout/internal/ordernumber"
	"github.com/fjod/tavros-checkout/internal/payment"
	"github.com/fjod/tavros-checkout/internal/publisher"
	"github.com/fjod/tavros-checkout/internal/reconcile"
	"github.com/fjod/tavros-checkout/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

const (
	healthCheckInterval = 10 * time.Second
	limiterSweepEvery   = 5 * time.Minute
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the gRPC health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log.Info("tavros-checkout starting", zap.String("version", Version), zap.String("store", cfg.Store.Driver))

	// otelhttp and otelgrpc pick trace context up from incoming headers.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Store
	store, err := openStore(connectCtx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close(context.Background()) }()

	if err := store.Setup(connectCtx); err != nil {
		return fmt.Errorf("store setup failed: %w", err)
	}
	log.Info("store ready", zap.String("driver", cfg.Store.Driver))

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(connectCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))

	// Events
	var events publisher.EventPublisher = publisher.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		events = publisher.NewKafkaPublisher(cfg.Kafka.Topic, log, cfg.Kafka.Brokers...)
		log.Info("publishing order events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	} else {
		log.Warn("kafka.brokers not set, order events are dropped")
	}
	defer func() { _ = events.Close() }()

	// Payments
	breaker := payment.DefaultBreakerSettings()
	if cfg.Stripe.BreakerFailures > 0 {
		breaker.ConsecutiveFailures = cfg.Stripe.BreakerFailures
	}
	if cfg.Stripe.BreakerOpenTimeout > 0 {
		breaker.OpenTimeout = cfg.Stripe.BreakerOpenTimeout
	}
	sessions := payment.NewBreakerProvider(payment.NewStripeProvider(cfg.Stripe.SecretKey, cfg.Stripe.Timeout), breaker, log)

	reconciler := reconcile.NewReconciler(store, sessions, log)
	checkout := service.NewCheckoutService(
		store,
		ordernumber.NewAllocator(store),
		sessions,
		reconciler,
		cache.NewRedisCache(redisClient, cfg.Redis.TTL),
		events,
		service.RedirectURLs{Success: cfg.Stripe.SuccessURL, Cancel: cfg.Stripe.CancelURL},
		log,
	)

	health := func(ctx context.Context) error {
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("store: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}

	var limiter *httpapi.RateLimiter
	if cfg.HTTP.RateLimit > 0 {
		limiter = httpapi.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst)
		go sweepLimiter(ctx, limiter)
	}

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Checkout:       httpapi.NewCheckoutHandler(checkout, cfg.HTTP.RequestTimeout, log),
		Orders:         httpapi.NewOrdersHandler(store, reconciler, cfg.HTTP.RequestTimeout, log),
		Webhook:        httpapi.NewWebhookHandler(cfg.Stripe.WebhookSecret, checkout, cfg.HTTP.RequestTimeout, log),
		Auth:           httpapi.AuthConfig{Secret: []byte(cfg.Auth.JWTSecret), Issuer: cfg.Auth.Issuer},
		RateLimiter:    limiter,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Logger:         log,
		Health:         health,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcSrv := grpcserver.NewServer(log)
	lis, err := net.Listen("tcp", ":"+cfg.GRPC.Port)
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port %s: %w", cfg.GRPC.Port, err)
	}
	go grpcSrv.RunHealthChecks(ctx, healthCheckInterval, health)

	errCh := make(chan error, 2)
	go func() {
		log.Info("grpc health listening", zap.String("port", cfg.GRPC.Port))
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		log.Info("http api listening", zap.String("port", cfg.HTTP.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down", zap.String("reason", context.Cause(ctx).Error()))
	case runErr = <-errCh:
		log.Error("server failed, shutting down", zap.Error(runErr))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", zap.Error(err))
	}
	grpcSrv.GracefulStop()

	log.Info("tavros-checkout stopped")
	return runErr
}

func sweepLimiter(ctx context.Context, limiter *httpapi.RateLimiter) {
	ticker := time.NewTicker(limiterSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}
