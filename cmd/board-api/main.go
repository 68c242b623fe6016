package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/Adarsh9315/task-palette-organize/api"
	"github.com/Adarsh9315/task-palette-organize/board"
	"github.com/Adarsh9315/task-palette-organize/config"
	"github.com/Adarsh9315/task-palette-organize/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ValidateAuth(); err != nil {
		log.Fatal(err)
	}
	logger, logCloser := config.NewLogger(cfg)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	defer backend.Close()

	remote := backend.Remote
	var (
		deduper    api.Deduper
		subscriber api.Subscriber
		sinks      []api.Sink
	)
	if cfg.RedisConnectionString != "" {
		redisOpts, err := config.RedisOptions(cfg.RedisConnectionString)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		rc := redis.NewClient(redisOpts)
		defer rc.Close()
		if cfg.CacheTTL > 0 {
			remote = storage.NewCache(remote, rc, cfg.CacheTTL)
		}
		deduper = api.NewRedisDeduper(rc, cfg.DeduperTTL)
		broadcaster := api.NewRedisBroadcaster(rc, logger)
		subscriber = broadcaster
		sinks = append(sinks, broadcaster)
	} else {
		logger.Warn("REDIS_CONNECTION_STRING not set, running without dedupe and with in-process streaming")
		broadcaster := api.NewLocalBroadcaster()
		subscriber = broadcaster
		sinks = append(sinks, broadcaster)
	}
	if cfg.EventsQueue != "" {
		q, err := storage.NewEventQueue(cfg.StorageConnectionString, cfg.EventsQueue)
		if err != nil {
			logger.Fatalf("events queue: %v", err)
		}
		if err := q.EnsureQueue(ctx); err != nil {
			logger.Fatalf("events queue: %v", err)
		}
		sinks = append(sinks, q)
	}

	publisher := api.NewPublisher(api.PublisherConfig{Workers: cfg.EventWorkers, Buffer: cfg.EventBuffer}, logger, sinks...)
	registry := board.NewRegistry(remote, board.Options{
		Timeout:  cfg.MutationTimeout,
		Logger:   logger,
		Notifier: publisher,
	})

	var auth *api.Auth
	if cfg.LocalAuthSecret != "" {
		logger.Warn("using shared secret token verification")
		auth = api.NewAuth(api.AuthConfig{
			SharedSecret: cfg.LocalAuthSecret,
			Issuer:       cfg.LocalAuthIssuer,
			Audience:     cfg.LocalAuthAudience,
		})
	} else {
		jwks, err := keyfunc.Get(cfg.JWKSURL(), keyfunc.Options{})
		if err != nil {
			logger.Fatalf("jwks: %v", err)
		}
		defer jwks.EndBackground()
		auth = api.NewAuth(api.AuthConfig{JWKS: jwks, Audience: cfg.Auth0Audience, Issuer: cfg.Auth0Issuer()})
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding},
	}))

	deps := api.Deps{
		Boards:     registry,
		Auth:       auth,
		Deduper:    deduper,
		Subscriber: subscriber,
		Logger:     logger,
		Health:     backend.Ping,
	}
	if backend.SQL != nil {
		deps.Profiles = backend.SQL
	}
	api.Register(e, deps)

	go func() {
		logger.WithField("port", cfg.Port).Info("board api listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("server shutdown")
	}
	registry.Close(shutdownCtx)
	publisher.Close()
	delivered, dropped := publisher.Stats()
	logger.WithFields(log.Fields{"delivered": delivered, "dropped": dropped}).Info("event publisher stopped")
}
