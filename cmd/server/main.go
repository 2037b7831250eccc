package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prudhvinik1/homepresence/internal/api"
	"github.com/prudhvinik1/homepresence/internal/config"
	"github.com/prudhvinik1/homepresence/internal/database"
	"github.com/prudhvinik1/homepresence/internal/fanout"
	"github.com/prudhvinik1/homepresence/internal/push"
	"github.com/prudhvinik1/homepresence/internal/repositories"
	"github.com/prudhvinik1/homepresence/internal/services"
	"golang.org/x/time/rate"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	defer postgresPool.Close()

	if err := database.ApplyMigrations(ctx, postgresPool); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL, logger)
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer redisClient.Close()

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.NewNATSConnection(cfg.NATSURL, "homepresence-server", logger)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		defer natsConn.Drain()
	}

	accountRepo := repositories.NewPostgresAccountRepository(postgresPool)
	deviceRepo := repositories.NewPostgresDeviceRepository(postgresPool)
	friendshipRepo := repositories.NewPostgresFriendshipRepository(postgresPool)
	locationRepo := repositories.NewPostgresLocationBindingRepository(postgresPool)
	statusRepo := repositories.NewPostgresStatusRepository(postgresPool)
	sessionRepo := repositories.NewRedisSessionRepository(redisClient, logger)
	statusCache := repositories.NewRedisStatusCacheRepository(redisClient, cfg.StatusCacheTTL)

	sender, err := newPushSender(ctx, cfg, natsConn, logger)
	if err != nil {
		return err
	}
	dispatcher := fanout.NewDispatcher(friendshipRepo, deviceRepo, sender, logger,
		fanout.WithBatchSize(cfg.FanoutBatchSize),
		fanout.WithParallelism(cfg.FanoutParallelism),
		fanout.WithInvalidTokenHandler(deviceRepo),
	)

	// Status changes go through JetStream when NATS is configured so a
	// crashed server does not lose fan-outs; otherwise they run in-process.
	var publisher services.ChangePublisher
	var inline *fanout.InlinePublisher
	if natsConn != nil {
		js, err := jetstream.New(natsConn)
		if err != nil {
			return fmt.Errorf("failed to create jetstream context: %w", err)
		}
		stream, err := database.EnsureStatusStream(ctx, js)
		if err != nil {
			return err
		}
		consumer := fanout.NewConsumer(stream, dispatcher, cfg.FanoutParallelism, logger)
		if err := consumer.Start(ctx); err != nil {
			return err
		}
		go consumer.Run(ctx)
		publisher = fanout.NewStreamPublisher(js)
	} else {
		inline = fanout.NewInlinePublisher(dispatcher, time.Minute, logger)
		publisher = inline
	}

	authService := services.NewAuthService(accountRepo, deviceRepo, sessionRepo, cfg.JWTSecret, cfg.JWTExpiry)
	statusService := services.NewStatusService(statusRepo, statusCache, friendshipRepo, publisher, logger)

	authLimiter := api.NewIPRateLimiter(rate.Limit(5), 10)
	go authLimiter.RunCleanup(ctx, 10*time.Minute)

	router := api.NewRouter(api.RouterConfig{
		Auth:        authService,
		Status:      statusService,
		Friendships: services.NewFriendshipService(accountRepo, friendshipRepo),
		Locations:   services.NewLocationService(locationRepo),
		Devices:     services.NewDeviceService(deviceRepo),
		Logger:      logger,
		HealthCheck: func(ctx context.Context) error {
			if err := postgresPool.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			if natsConn != nil && !natsConn.IsConnected() {
				return errors.New("nats: not connected")
			}
			return nil
		},
		AuthRateLimiter: authLimiter,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.ServerPort, "push_transport", cfg.PushTransport, "jetstream", natsConn != nil)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	// graceful shutdown
	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if inline != nil {
		if err := inline.Wait(shutdownCtx); err != nil {
			logger.Warn("in-flight fan-outs abandoned", "error", err)
		}
	}

	logger.Info("server stopped gracefully")
	return nil
}

func newPushSender(ctx context.Context, cfg *config.Config, conn *nats.Conn, logger *slog.Logger) (push.MulticastSender, error) {
	switch cfg.PushTransport {
	case config.PushTransportNATS:
		return push.NewNATSSender(conn), nil
	case config.PushTransportFCM:
		sender, err := push.NewFCMSenderFromCredentials(ctx, cfg.FCMCredentialsFile, cfg.FCMProjectID, logger,
			push.WithRateLimit(cfg.PushRatePerSec, int(cfg.PushRatePerSec)+1),
			push.WithParallelism(cfg.FanoutParallelism),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create fcm sender: %w", err)
		}
		return sender, nil
	default:
		return push.NewLogSender(logger), nil
	}
}
