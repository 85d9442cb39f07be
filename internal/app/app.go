// Package app wires the storefront services into a runnable HTTP server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/auth"
	"github.com/xenking/storefront/internal/cache"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/notify"
	"github.com/xenking/storefront/internal/storage/memory"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Stores groups the repositories the services run on.
type Stores struct {
	Products product.Repository
	Orders   order.Repository
	Users    user.Repository

	pool *pgxpool.Pool
}

// Close releases the database pool, if any.
func (s *Stores) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Stores) registerChecks(h *health.Health) {
	if s.pool != nil {
		h.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(s.pool))
	}
}

type closers []func() error

func (c closers) close() error {
	var errs error
	for i := len(c) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, c[i]())
	}
	return errs
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)
	otel.SetTracerProvider(m.TracerProvider())
	otel.SetMeterProvider(m.MeterProvider())

	var cleanup closers
	defer func() {
		if err := cleanup.close(); err != nil {
			lg.Warn("Cleanup failed", zap.Error(err))
		}
	}()

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	stores, err := OpenStores(ctx, cfg)
	if err != nil {
		return err
	}
	cleanup = append(cleanup, func() error { stores.Close(); return nil })
	stores.registerChecks(healthSvc)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cleanup = append(cleanup, client.Close)
		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		stores.Products = cache.NewProducts(stores.Products, client, cfg.Redis.TTL)
		lg.Info("Product cache enabled", zap.String("redis", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	}

	notifier, err := newNotifier(lg, cfg, stores.Users, &cleanup)
	if err != nil {
		return err
	}

	// Domain services.
	productService := product.NewService(stores.Products)
	orderService := order.NewService(stores.Products, stores.Orders, notifier)
	userService := user.NewService(stores.Users)
	tokens, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return errors.Wrap(err, "create token issuer")
	}

	h := handler.NewHandler(
		handler.Config{
			ImageBaseURL: cfg.ImageBaseURL,
			SecureCookie: cfg.Auth.SecureCookie,
		},
		productService,
		orderService,
		userService,
		tokens,
		notifier,
	)

	// Route-aware middlewares run inside the router so chi has matched the
	// pattern by the time they log or name spans.
	router := chi.NewRouter()
	router.Use(
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument("storefront-api", m.TracerProvider(), m.MeterProvider()),
		httpmiddleware.LogRequests(),
	)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Mount("/api", h.Routes())

	edge := []httpmiddleware.Middleware{
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.RequestIDHeader},
			ExposeHeaders:    []string{httpmiddleware.RequestIDHeader, "Retry-After"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
	}
	if cfg.RateLimit.Rate > 0 {
		edge = append(edge, httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Rate:  cfg.RateLimit.Rate,
			Burst: cfg.RateLimit.Burst,
		}))
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           httpmiddleware.Wrap(router, edge...),
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		defer healthSvc.Stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		// Notifications already dispatched finish before the channels close.
		orderService.Wait()
		return nil
	})
	return g.Wait()
}

// OpenStores connects the configured storage driver and applies pending
// migrations. Callers must Close the result.
func OpenStores(ctx context.Context, cfg *Config) (*Stores, error) {
	switch cfg.Storage {
	case StorageMemory:
		zctx.From(ctx).Warn("Using in-memory storage: data is lost on restart")
		return &Stores{
			Products: memory.NewProductRepository(),
			Orders:   memory.NewOrderRepository(),
			Users:    memory.NewUserRepository(),
		}, nil
	case StoragePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		return &Stores{
			Products: postgres.NewProductRepository(pool),
			Orders:   postgres.NewOrderRepository(pool),
			Users:    postgres.NewUserRepository(pool),
			pool:     pool,
		}, nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Storage)
	}
}

// newNotifier builds the customer notification channels that are configured.
// With none configured messages are dropped.
func newNotifier(lg *zap.Logger, cfg *Config, users user.Repository, cleanup *closers) (order.Notifier, error) {
	var channels notify.Multi
	if cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegram(notify.TelegramConfig{
			BotToken:    cfg.Telegram.BotToken,
			APIURL:      cfg.Telegram.APIURL,
			Timeout:     cfg.Telegram.Timeout,
			MaxFailures: uint32(max(cfg.Telegram.MaxFailures, 0)),
			OpenTimeout: cfg.Telegram.OpenTimeout,
		}, users)
		if err != nil {
			return nil, errors.Wrap(err, "create telegram notifier")
		}
		channels = append(channels, tg)
		lg.Info("Telegram notifications enabled")
	}
	if len(cfg.Kafka.Brokers) > 0 {
		w := notify.NewKafkaWriter(cfg.Kafka.Topic, cfg.Kafka.Brokers...)
		*cleanup = append(*cleanup, w.Close)
		channels = append(channels, notify.NewKafka(w))
		lg.Info("Kafka notifications enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	switch len(channels) {
	case 0:
		lg.Warn("No notification channel configured, status messages are dropped")
		return notify.Nop{}, nil
	case 1:
		return channels[0], nil
	default:
		return channels, nil
	}
}
