// Command phoneauthd serves the phoneauth HTTP API.
//
// Configuration comes from the environment and an optional .env file; see
// internal/config. With -dev it runs against an in-process Redis and logs
// OTP messages instead of sending them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/events"
	"github.com/MrEthical07/phoneauth/httpapi"
	"github.com/MrEthical07/phoneauth/internal/config"
	promexport "github.com/MrEthical07/phoneauth/metrics/export/prometheus"
	"github.com/MrEthical07/phoneauth/rbac"
	"github.com/MrEthical07/phoneauth/sms"
	"github.com/MrEthical07/phoneauth/users"
	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	dev := flag.Bool("dev", false, "use in-process redis and log SMS messages")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg, *dev)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	for _, w := range cfg.Warnings {
		logger.Warn("config fallback", zap.String("detail", w))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *dev, logger, nil); err != nil {
		logger.Error("fatal", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config, dev bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if dev || !cfg.Production() {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	return zcfg.Build()
}

// run wires every dependency and serves until ctx is cancelled. If ready is
// non-nil the bound address is sent on it once the listener is up.
func run(ctx context.Context, cfg *config.Config, dev bool, logger *zap.Logger, ready chan<- string) error {
	rdb, closeRedis, err := openRedis(ctx, cfg, dev, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	var (
		assignments phoneauth.AssignmentStore
		accounts    interface {
			phoneauth.UserProvider
			phoneauth.UserRegistrar
		}
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping: %w", err)
		}

		rbacStore := rbac.NewPostgresStoreFromPool(pool)
		userStore := users.NewPostgresStore(pool)
		if err := rbacStore.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate rbac: %w", err)
		}
		if err := userStore.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate users: %w", err)
		}
		assignments, accounts = rbacStore, userStore
		logger.Info("using postgres stores")
	} else {
		assignments, accounts = rbac.NewMemoryStore(), users.NewMemoryStore()
		logger.Warn("DATABASE_URL not set, users and organizer assignments are kept in memory")
	}

	gateway, err := newGateway(cfg, dev, logger)
	if err != nil {
		return err
	}

	builder := phoneauth.New().
		WithConfig(cfg.Engine).
		WithRedis(rdb).
		WithLogger(logger).
		WithSMSGateway(gateway).
		WithUserProvider(accounts).
		WithAssignmentStore(assignments)

	pub, err := newPublisher(cfg, logger)
	if err != nil {
		return err
	}
	if pub != nil {
		defer func() {
			if err := pub.Close(); err != nil {
				logger.Warn("event publisher close failed", zap.Error(err))
			}
		}()
		builder = builder.WithBreachReporter(pub).WithAuditSink(pub)
	} else {
		builder = builder.WithAuditSink(phoneauth.NewZapSink(logger.Named("audit")))
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	report := engine.SecurityReport()
	logger.Info("engine ready",
		zap.Bool("production", report.ProductionMode),
		zap.String("signing_algorithm", report.SigningAlgorithm),
	)

	router := httpapi.NewRouter(engine, httpapi.Options{
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		OTPLogin:       cfg.OTPLogin,
		CSRF:           cfg.Production(),
		RequestTimeout: cfg.RequestTimeout,
		Users:          accounts,
	})
	if cfg.Engine.Metrics.Enabled {
		router.Handle("/metrics", promexport.Handler(promexport.NewCollector(engine)))
	}

	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("phoneauthd listening", zap.String("addr", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func openRedis(ctx context.Context, cfg *config.Config, dev bool, logger *zap.Logger) (redis.UniversalClient, func(), error) {
	if dev {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("miniredis: %w", err)
		}
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		logger.Info("using in-process redis", zap.String("addr", mr.Addr()))
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func newGateway(cfg *config.Config, dev bool, logger *zap.Logger) (phoneauth.SMSGateway, error) {
	if cfg.AfricasTalkingUsername == "" || cfg.AfricasTalkingAPIKey == "" {
		if cfg.Production() && !dev {
			return nil, errors.New("sms credentials are required in production")
		}
		logger.Warn("Africa's Talking credentials not set, OTP messages are logged")
		return sms.NewLogGateway(logger), nil
	}
	gw, err := sms.NewAfricasTalking(sms.AfricasTalkingConfig{
		Username: cfg.AfricasTalkingUsername,
		APIKey:   cfg.AfricasTalkingAPIKey,
		SenderID: cfg.AfricasTalkingSenderID,
		Sandbox:  cfg.AfricasTalkingUsername == "sandbox",
	})
	if err != nil {
		return nil, err
	}
	return gw, nil
}

type publisher interface {
	phoneauth.BreachReporter
	phoneauth.AuditSink
	Close() error
}

// newPublisher prefers NATS over Kafka. Nil means no broker is configured.
func newPublisher(cfg *config.Config, logger *zap.Logger) (publisher, error) {
	switch {
	case cfg.NATSURL != "":
		p, err := events.NewNATSPublisher(cfg.NATSURL, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("publishing security events to nats", zap.String("url", cfg.NATSURL))
		return p, nil
	case len(cfg.KafkaBrokers) > 0:
		p, err := events.NewKafkaPublisher(events.KafkaConfig{Brokers: cfg.KafkaBrokers}, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("publishing security events to kafka", zap.Strings("brokers", cfg.KafkaBrokers))
		return p, nil
	default:
		return nil, nil
	}
}
