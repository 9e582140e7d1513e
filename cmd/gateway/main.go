// Command gateway runs a websocket-only node. It serves no API routes and
// receives every event from the API nodes over the Redis bus.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sudo-init-do/chefbid/internal/auth"
	"github.com/sudo-init-do/chefbid/internal/config"
	"github.com/sudo-init-do/chefbid/internal/db"
	"github.com/sudo-init-do/chefbid/internal/events"
	"github.com/sudo-init-do/chefbid/internal/gateway"
	"github.com/sudo-init-do/chefbid/internal/logging"
	"github.com/sudo-init-do/chefbid/internal/marketplace"
	appmw "github.com/sudo-init-do/chefbid/internal/middleware"
)

func main() {
	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		boot.Fatal().Err(err).Msg("build logger")
	}
	if cfg.EventTransport != config.TransportRedis {
		logger.Fatal().Str("transport", cfg.EventTransport).Msg("gateway node needs EVENT_TRANSPORT=redis")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("gateway stopped")
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	// The store is only read, to authorize chat joins.
	st, err := db.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	hub := gateway.NewHub(logger)
	defer hub.Close()
	bus := events.NewRedisBus(rdb, cfg.EventChannel, hub, logger)

	ws := gateway.NewHandler(hub, auth.NewJWTResolver(cfg.JWTSecret), marketplace.NewChats(st), gateway.DefaultOptions(), logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(appmw.RequestLogger(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if err := rdb.Ping(c.Request().Context()).Err(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "redis unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/ws", ws.Serve)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bus.Run(ctx) })
	g.Go(func() error {
		logger.Info().Str("port", cfg.Port).Msg("gateway listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(sctx)
	})
	return g.Wait()
}
