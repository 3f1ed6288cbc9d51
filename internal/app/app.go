// Package app wires the storage, services and HTTP surface of the shop API.
package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/kart-shop/internal/domain/cart"
	"github.com/xenking/kart-shop/internal/domain/product"
	"github.com/xenking/kart-shop/internal/handler"
	"github.com/xenking/kart-shop/internal/realtime"
	"github.com/xenking/kart-shop/internal/storage/memory"
	"github.com/xenking/kart-shop/internal/storage/postgres"
	"github.com/xenking/kart-shop/pkg/health"
	"github.com/xenking/kart-shop/pkg/httpmiddleware"
)

const serviceName = "shop-api"

// Server is the assembled HTTP surface with the resources it owns.
type Server struct {
	Handler http.Handler
	Health  *health.Health
	Hub     *realtime.Hub

	closers []func()
}

// Close releases the resources opened by NewServer in reverse order.
func (s *Server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// NewServer opens storage, connects the realtime relay and builds the
// middleware-wrapped router. Background work stops when ctx is done.
func NewServer(ctx context.Context, cfg *Config, t httpmiddleware.Telemetry) (_ *Server, rerr error) {
	lg := zctx.From(ctx)
	s := &Server{
		Health: health.New(health.Config{Interval: 10 * time.Second, Timeout: 2 * time.Second}),
	}
	defer func() {
		if rerr != nil {
			s.Close()
		}
	}()
	s.Health.Liveness("goroutines", health.GoroutineLimit(10000))

	products, carts, err := s.openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.SeedCatalog {
		if err := SeedCatalog(ctx, products); err != nil {
			return nil, errors.Wrap(err, "seed catalog")
		}
	}

	hub, err := realtime.NewHub(realtime.Config{
		SendBuffer:     cfg.Realtime.SendBuffer,
		AllowedOrigins: cfg.CORS.Origins,
	}, t.MeterProvider().Meter("github.com/xenking/kart-shop/internal/realtime"))
	if err != nil {
		return nil, errors.Wrap(err, "create hub")
	}
	s.Hub = hub
	s.closers = append(s.closers, hub.Close)

	publisher, err := s.connectRedis(ctx, cfg, hub)
	if err != nil {
		return nil, err
	}

	productService := product.NewService(products, publisher)
	cartService := cart.NewService(carts, products)
	api := handler.New(handler.Config{PublicURL: cfg.PublicURL}, productService, cartService)

	mux := http.NewServeMux()
	mux.Handle("GET /livez", s.Health.LiveHandler())
	mux.Handle("GET /readyz", s.Health.ReadyHandler())
	mux.Handle("GET /ws", hub.Handler(productService))
	api.Register(mux)

	limiter := httpmiddleware.NewRateLimiter(httpmiddleware.RateLimitConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
	})
	go limiter.Run(ctx)

	s.Handler = httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", httpmiddleware.RequestIDHeader},
			ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		limiter.Middleware(),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Instrument(serviceName, t, "/livez", "/readyz"),
		httpmiddleware.LogRequests(),
	)
	return s, nil
}

func (s *Server) openStorage(ctx context.Context, cfg *Config) (product.Repository, cart.Repository, error) {
	lg := zctx.From(ctx)
	if cfg.Storage == StorageMemory {
		lg.Warn("Using in-memory storage, data is lost on restart")
		return memory.NewProductRepository(), memory.NewCartRepository(), nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create db pool")
	}
	s.closers = append(s.closers, pool.Close)

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return nil, nil, errors.Wrap(err, "run migrations")
	}
	s.Health.Readiness("postgres", health.PingCheck(pool))
	return postgres.NewProductRepository(pool), postgres.NewCartRepository(pool), nil
}

// connectRedis returns the catalog publisher. Without Redis the hub publishes
// directly; with Redis every instance's relay feeds its own hub.
func (s *Server) connectRedis(ctx context.Context, cfg *Config, hub *realtime.Hub) (product.Publisher, error) {
	if cfg.RedisURL == "" {
		return hub, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	s.closers = append(s.closers, func() { _ = client.Close() })

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "ping redis")
	}
	s.Health.Readiness("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})

	relayCtx, cancel := context.WithCancel(ctx)
	done, err := realtime.NewRelay(client, cfg.Realtime.Channel, hub).Start(relayCtx)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "start relay")
	}
	s.closers = append(s.closers, func() {
		cancel()
		<-done
	})
	return realtime.NewRedisPublisher(client, cfg.Realtime.Channel), nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
		zap.Bool("redis", cfg.RedisURL != ""),
	)
	ctx = zctx.Base(ctx, lg)

	srv, err := NewServer(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer srv.Close()

	srv.Health.Start(ctx)
	srv.Health.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           srv.Handler,
		// Requests keep the root logger but outlive ctx while draining.
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		srv.Health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		// Shutdown does not wait for hijacked connections.
		srv.Hub.Close()
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		srv.Health.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
