// Command server runs the challenge platform HTTP API.
//
// Startup order:
//  1. .env (optional) and environment configuration
//  2. logging and tracing
//  3. database, schema migration
//  4. cache, event bus, repositories, services, event subscriptions
//  5. HTTP server with graceful shutdown on SIGINT/SIGTERM
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-challenge-backend/internal/cache"
	"github.com/tbourn/go-challenge-backend/internal/config"
	"github.com/tbourn/go-challenge-backend/internal/events"
	httpapi "github.com/tbourn/go-challenge-backend/internal/http"
	"github.com/tbourn/go-challenge-backend/internal/http/handlers"
	"github.com/tbourn/go-challenge-backend/internal/observability"
	"github.com/tbourn/go-challenge-backend/internal/repo"
	"github.com/tbourn/go-challenge-backend/internal/retry"
	"github.com/tbourn/go-challenge-backend/internal/services"
	"github.com/tbourn/go-challenge-backend/internal/store"
	"github.com/tbourn/go-challenge-backend/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	sysutil.SetupLogging(cfg.LogLevel, cfg.LogPretty, os.Stdout)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	st, err := store.Open(store.Options{
		Driver:  cfg.DB.Driver,
		Path:    cfg.DB.Path,
		DSN:     cfg.DB.DSN,
		Tracing: cfg.OTEL.Enabled,
	})
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	if err := repo.AutoMigrate(st.DB()); err != nil {
		return err
	}

	var cm *cache.Manager
	if cfg.Cache.Enabled {
		sc, err := cache.NewSturdy(cache.Config{
			Capacity:           cfg.Cache.Capacity,
			NumShards:          cfg.Cache.Shards,
			TTL:                cfg.Cache.TTL,
			EvictionPercentage: 10,
		})
		if err != nil {
			return err
		}
		cm = cache.NewManager(sc)
	}

	bus, closeBus, err := newBus(ctx, cfg.Events)
	if err != nil {
		return err
	}
	defer closeBus()

	deps := repo.Deps{
		Store: st,
		Bus:   bus,
		Retry: retry.Policy{
			MaxAttempts: cfg.Repo.MaxRetries,
			BaseDelay:   cfg.Repo.RetryBaseDelay,
			MaxDelay:    cfg.Repo.RetryMaxDelay,
		},
		ValidateIDFormat: cfg.Repo.ValidateIDFormat,
	}
	chRepo := repo.NewChallengeRepo(deps)
	evRepo := repo.NewEvaluationRepo(deps)
	prRepo := repo.NewProgressRepo(deps)
	idem := repo.NewIdempotencyRepo(deps)

	ttl := cfg.Cache.TTL
	challenges := services.NewChallengeService(chRepo, cm, ttl)
	evaluations := services.NewEvaluationService(evRepo, idem, challenges, cm, ttl)
	evaluations.IdempotencyTTL = cfg.IdempotencyTTL
	progress := services.NewProgressService(prRepo, cm, ttl)
	journey := services.NewJourneyService(repo.NewJourneyRepo(deps), cm, ttl)
	recommendations := services.NewRecommendationService(repo.NewRecommendationRepo(deps), prRepo, evRepo, chRepo, cm, ttl)

	defer progress.Subscribe(bus)()
	defer journey.Subscribe(bus)()
	defer services.SubscribeCacheSync(bus, cm)()

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.App{
		Services: handlers.Services{
			Challenges:      challenges,
			Evaluations:     evaluations,
			Progress:        progress,
			Recommendations: recommendations,
			Journey:         journey,
		},
		Idempotency: idem,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

// newBus returns the in-process bus, or a Redis fan-out bus when an address
// is configured. The returned func releases the bus.
func newBus(ctx context.Context, cfg config.EventsConfig) (events.Bus, func(), error) {
	local := events.NewLocal()
	if cfg.RedisAddr == "" {
		return local, func() {}, nil
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	rb, err := events.NewRedisBus(rdb, cfg.Channel, local)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	go func() {
		if err := rb.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("redis event listener stopped")
		}
	}()
	log.Info().Str("addr", cfg.RedisAddr).Str("channel", cfg.Channel).Msg("redis event bus enabled")
	return rb, func() { _ = rb.Close() }, nil
}
