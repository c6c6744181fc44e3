package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/parcel-marketplace/internal/config"
	"github.com/iliyamo/parcel-marketplace/internal/database"
	"github.com/iliyamo/parcel-marketplace/internal/delivery"
	"github.com/iliyamo/parcel-marketplace/internal/handler"
	"github.com/iliyamo/parcel-marketplace/internal/logging"
	"github.com/iliyamo/parcel-marketplace/internal/middleware"
	"github.com/iliyamo/parcel-marketplace/internal/obs"
	"github.com/iliyamo/parcel-marketplace/internal/queue"
	"github.com/iliyamo/parcel-marketplace/internal/repository"
	"github.com/iliyamo/parcel-marketplace/internal/router"
	"github.com/iliyamo/parcel-marketplace/internal/service"
)

func main() {
	if err := run(); err != nil {
		logging.New("server").Fatal(err)
	}
}

// run wires the server and blocks until SIGINT/SIGTERM or a listener
// failure.  Deferred cleanup runs on every return path.
func run() error {
	lg := logging.New("server")
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	obs.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := map[string]handler.Pinger{}

	var (
		users handler.Users
		creds interface {
			handler.Credentials
			middleware.CredentialTable
		}
		deliveries delivery.Service
	)
	switch cfg.StoreBackend {
	case config.BackendMemory:
		users = repository.NewMemoryUsers()
		creds = repository.NewMemoryCredentials()
		deliveries = delivery.NewInMemory()
		lg.Warn("STORE_BACKEND=memory: nothing survives a restart")
	default:
		db, err := database.Open(cfg)
		if err != nil {
			return fmt.Errorf("mysql: %w", err)
		}
		defer db.Close()
		if err := database.EnsureSchema(ctx, db); err != nil {
			return err
		}
		users = repository.NewUserRepo(db)
		creds = repository.NewCredentialRepo(db)
		deliveries = repository.NewDeliveryRepo(db)
		deps["mysql"] = db
	}

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
		deps["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	} else {
		lg.Warn("redis unavailable: rate limiting is per process")
	}

	var events handler.EventPublisher = service.Discard{}
	if cfg.AMQPURL != "" {
		events = service.NewStatusPublisher(cfg.AMQPURL, logging.New("publisher"))
		consumer := &queue.Consumer{URL: cfg.AMQPURL, Dir: "logs", Log: logging.New("delivery-consumer")}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				lg.Errorf("delivery consumer stopped: %v", err)
			}
		}()
	}

	e := newEcho()
	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	router.RegisterRoutes(e, handler.Health(deps))
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, creds, logging.New("auth")), cfg.JWTSecret, creds, limit)
	router.RegisterDeliveries(e, handler.NewDeliveryHandler(deliveries, events, logging.New("delivery")), cfg.JWTSecret, creds, limit)
	e.RouteNotFound("/*", router.NotFound)

	served := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		lg.Infof("listening on %s (env=%s, store=%s)", addr, cfg.Env, cfg.StoreBackend)
		served <- e.Start(addr)
	}()

	select {
	case err := <-served:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Logger = logging.New("http")
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	return e
}
