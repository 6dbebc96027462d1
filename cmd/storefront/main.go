package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emmanuel-nwafor/foremade/internal/cache"
	"github.com/emmanuel-nwafor/foremade/internal/cart"
	"github.com/emmanuel-nwafor/foremade/internal/checkout"
	"github.com/emmanuel-nwafor/foremade/internal/config"
	storefrontgrpc "github.com/emmanuel-nwafor/foremade/internal/grpc"
	storefronthttp "github.com/emmanuel-nwafor/foremade/internal/http"
	"github.com/emmanuel-nwafor/foremade/internal/logging"
	"github.com/emmanuel-nwafor/foremade/internal/notification"
	"github.com/emmanuel-nwafor/foremade/internal/orders"
	"github.com/emmanuel-nwafor/foremade/internal/payment"
	"github.com/emmanuel-nwafor/foremade/internal/pricing"
	"github.com/emmanuel-nwafor/foremade/internal/publisher"
	"github.com/emmanuel-nwafor/foremade/internal/session"
	"github.com/emmanuel-nwafor/foremade/internal/snapshot"
	"github.com/emmanuel-nwafor/foremade/internal/store"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	configDir := flag.String("config", "./configs", "directory holding base.yaml and <env>.yaml")
	flag.Parse()

	// .env is optional outside local development
	_ = godotenv.Load()

	cfg, err := config.Load(*configDir, os.Getenv("APP_ENV"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.Init(logging.Options{
		Component: cfg.App.Name,
		FilePath:  cfg.App.LogFile,
		Level:     cfg.App.LogLevel,
	})
	logger.Info("storefront starting", "http_addr", cfg.App.HTTPAddr, "grpc_addr", cfg.App.GRPCAddr, "store", cfg.Store.Driver)

	if err := run(cfg, logger); err != nil {
		logger.Error("storefront stopped with error", "err", err)
		os.Exit(1)
	}
	logger.Info("storefront stopped")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Transactional store
	repo, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()
	if err := repo.RunMigrations(cfg.Store.MigrationsPath); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Carts in MongoDB
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	mongoDB, err := cart.ConnectMongoDB(connectCtx, cart.MongoOptions{
		URI:         cfg.Mongo.URI,
		Database:    cfg.Mongo.Database,
		AppName:     cfg.App.Name,
		MaxPoolSize: cfg.Mongo.MaxPoolSize,
		MinPoolSize: cfg.Mongo.MinPoolSize,
	})
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := mongoDB.Client().Disconnect(context.Background()); err != nil {
			logger.Warn("failed to disconnect from MongoDB", "err", err)
		}
	}()
	cartRepo := cart.NewMongoRepository(mongoDB)
	if err := cartRepo.CreateIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create cart indexes: %w", err)
	}

	// Redis for the cart cache and the checkout lock
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	cartService := cart.NewCartService(cartRepo, cache.NewRedisCache(rdb, cfg.Redis.CartTTL), repo)

	rates, err := pricing.NewStaticRates(cfg.Pricing.BaseCurrency, cfg.Pricing.Rates)
	if err != nil {
		return fmt.Errorf("invalid pricing rates: %w", err)
	}
	logger.Warn("using static conversion rates from config", "base", cfg.Pricing.BaseCurrency, "rates", cfg.Pricing.Rates)

	outbound := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	payments := payment.NewSelector(
		payment.NewCardStrategy(payment.CardConfig{
			BaseURL:     cfg.Payments.Card.BaseURL,
			Timeout:     cfg.Payments.Card.Timeout,
			MaxAttempts: cfg.Payments.Card.MaxAttempts,
			BackoffBase: cfg.Payments.Card.BackoffBase,
		}, outbound),
		payment.NewMobileMoneyStrategy(payment.MobileMoneyConfig{
			BaseURL: cfg.Payments.MobileMoney.BaseURL,
			Gateway: cfg.Payments.MobileMoney.Gateway,
			Timeout: cfg.Payments.MobileMoney.Timeout,
		}, outbound),
	)
	notifier := notification.NewDispatcher(notification.Config{
		BaseURL:     cfg.Notifications.BaseURL,
		Timeout:     cfg.Notifications.Timeout,
		MaxAttempts: cfg.Notifications.MaxAttempts,
		BackoffBase: cfg.Notifications.BackoffBase,
	}, outbound)

	snapshots := snapshot.NewBuilder(repo, pricing.NewFeeTable(repo), cfg.Pricing.BaseCurrency)
	checkoutService := checkout.NewService(checkout.Dependencies{
		Sessions:     repo,
		Profiles:     repo,
		Outbox:       repo,
		Carts:        cartService,
		Snapshots:    snapshots,
		Payments:     payments,
		Orders:       orders.NewOrchestrator(repo, repo, cfg.Pricing.BaseCurrency, cfg.Store.MaxCommitAttempts),
		Placed:       repo,
		Notifier:     notifier,
		Locker:       cache.NewRedisLocker(rdb, cfg.Redis.LockTTL),
		Rates:        rates,
		BaseCurrency: cfg.Pricing.BaseCurrency,
	})

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return err
	}

	// Outbox relay and stuck checkout recovery
	poller := publisher.NewOutboxPoller(repo, checkoutService, publisher.Config{
		Brokers:          cfg.Kafka.Brokers,
		Topic:            cfg.Kafka.Topic,
		PollInterval:     cfg.Kafka.PollInterval,
		RecoveryInterval: cfg.Kafka.RecoveryInterval,
		StuckAfter:       cfg.Kafka.StuckAfter,
	})
	defer poller.Close()
	go poller.Run(ctx)

	deps := map[string]storefrontgrpc.PingFunc{
		"store": repo.Ping,
		"mongo": func(ctx context.Context) error { return mongoDB.Client().Ping(ctx, nil) },
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
	health := storefrontgrpc.NewHealthReporter(10*time.Second, deps)
	go health.Run(ctx)

	grpcServer := storefrontgrpc.NewServer(health)
	lis, err := net.Listen("tcp", cfg.App.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.App.GRPCAddr, err)
	}
	go func() {
		logger.Info("gRPC health server listening", "addr", cfg.App.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", "err", err)
			stop()
		}
	}()

	router := storefronthttp.NewRouter(storefronthttp.Handlers{
		Cart:     storefronthttp.NewCartHandler(cartService, snapshots, cfg.App.RequestTimeout),
		Checkout: storefronthttp.NewCheckoutHandler(checkoutService, cfg.App.RequestTimeout),
		Orders:   storefronthttp.NewOrdersHandler(repo, cfg.App.RequestTimeout),
	}, storefronthttp.RouterConfig{
		Verifier:       verifier,
		RequestTimeout: cfg.App.RequestTimeout,
		Ready: func(ctx context.Context) error {
			if failing := health.Check(ctx); len(failing) > 0 {
				return fmt.Errorf("unavailable: %v", failing)
			}
			return nil
		},
	})

	srv := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.App.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server forced to shutdown", "err", err)
	}
	grpcServer.GracefulStop()
	return nil
}

func openStore(cfg config.Config) (*store.Repository, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLiteRepository(cfg.Store.SQLite.Path)
	default:
		pg := cfg.Store.Postgres
		return store.NewPostgresRepository(&store.Credentials{
			Host:     pg.Host,
			Port:     pg.Port,
			User:     pg.User,
			Password: pg.Password,
			DBName:   pg.DBName,
			SSLMode:  pg.SSLMode,
		})
	}
}

func newVerifier(ctx context.Context, cfg config.Config) (session.Verifier, error) {
	if cfg.Auth.Provider == "firebase" {
		v, err := session.NewFirebaseVerifier(ctx, cfg.Auth.FirebaseProjectID, cfg.Auth.FirebaseCredentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to init firebase auth: %w", err)
		}
		return v, nil
	}
	return session.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience), nil
}
