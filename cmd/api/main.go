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
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sudo-init-do/chefbid/internal/admin"
	"github.com/sudo-init-do/chefbid/internal/alerts"
	"github.com/sudo-init-do/chefbid/internal/auth"
	"github.com/sudo-init-do/chefbid/internal/config"
	"github.com/sudo-init-do/chefbid/internal/db"
	"github.com/sudo-init-do/chefbid/internal/events"
	"github.com/sudo-init-do/chefbid/internal/gateway"
	"github.com/sudo-init-do/chefbid/internal/logging"
	"github.com/sudo-init-do/chefbid/internal/marketplace"
	appmw "github.com/sudo-init-do/chefbid/internal/middleware"
	"github.com/sudo-init-do/chefbid/internal/reports"
	"github.com/sudo-init-do/chefbid/internal/store"
	"github.com/sudo-init-do/chefbid/internal/wallet"
)

const shutdownTimeout = 10 * time.Second

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("api server stopped")
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	st, err := db.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	g, ctx := errgroup.WithContext(ctx)

	hub := gateway.NewHub(logger)
	defer hub.Close()

	var bus events.Bus = events.NewLocalBus(hub)
	if cfg.EventTransport == config.TransportRedis {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		rbus := events.NewRedisBus(rdb, cfg.EventChannel, hub, logger)
		g.Go(func() error { return rbus.Run(ctx) })
		bus = rbus
	}

	var alerter events.Alerter
	if cfg.AlertsEnabled {
		opt := alerts.RedisOpt(cfg.RedisAddr)
		queue := alerts.NewQueue(opt, logger)
		defer queue.Close()
		worker := alerts.NewWorker(opt, alerts.NewProcessor(st, logger), logger)
		g.Go(func() error { return worker.Run(ctx) })
		alerter = queue
	}
	dispatcher := events.NewDispatcher(bus, alerter, logger)

	if cfg.PlatformAccountID == "" {
		logger.Warn().Msg("PLATFORM_ACCOUNT_ID not set; commissions will not be collected")
	}
	e := newServer(cfg, st, hub, dispatcher, logger)

	g.Go(func() error {
		logger.Info().Str("port", cfg.Port).Msg("API server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(sctx)
	})
	return g.Wait()
}

// newServer builds the services over st and registers every route.
func newServer(cfg config.Config, st store.Store, hub *gateway.Hub, applier marketplace.Applier, logger zerolog.Logger) *echo.Echo {
	ledger := wallet.New(st, wallet.Config{
		CommissionRate:    cfg.CommissionRate,
		PlatformAccountID: cfg.PlatformAccountID,
	}, logger)
	svc := marketplace.NewService(st, ledger, applier, logger)
	rep := reports.NewService(st, cfg.PlatformAccountID)
	resolver := auth.NewJWTResolver(cfg.JWTSecret)

	market := marketplace.NewHandler(svc)
	wallets := wallet.NewHandler(ledger)
	stats := reports.NewHandler(rep)
	ops := admin.NewHandler(rep, ledger)
	inbox := alerts.NewInbox(st)
	ws := gateway.NewHandler(hub, resolver, svc, gateway.DefaultOptions(), logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(appmw.RequestLogger(logger))
	e.Use(echo.WrapMiddleware(cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
	}).Handler))

	// Health
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if err := st.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "store unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Realtime; authenticates from the token query parameter itself
	e.GET("/ws", ws.Serve)

	// Public discovery
	e.GET("/chefs/top", stats.TopChefs)
	e.GET("/chefs/:id", stats.ChefProfile)

	customer := appmw.RequireRoles(auth.RoleCustomer)
	chef := appmw.RequireRoles(auth.RoleChef)

	api := e.Group("")
	api.Use(appmw.JWTMiddleware(resolver))

	api.GET("/auth/me", auth.Me)

	// Orders
	api.POST("/orders/create", market.CreateOrder, customer)
	api.GET("/orders/open", market.OpenOrders, chef)
	api.GET("/orders/my", market.MyOrders, customer)
	api.GET("/orders/assigned", market.AssignedOrders, chef)
	api.GET("/orders/:id", market.GetOrder)
	api.POST("/orders/:id/cancel", market.CancelOrder, customer)
	api.POST("/orders/:id/prepare", market.PrepareOrder, chef)
	api.POST("/orders/:id/fulfill", market.FulfillOrder, chef)
	api.POST("/orders/:id/complete", market.CompleteOrder, customer)

	// Bids
	api.POST("/orders/:id/bid", market.PlaceBid, chef)
	api.GET("/orders/:id/bids", market.OrderBids, customer)
	api.POST("/bids/:id/accept", market.AcceptBid, customer)
	api.POST("/bids/:id/withdraw", market.WithdrawBid, chef)
	api.GET("/bids/my-bids", market.MyBids, chef)

	// Reviews
	api.POST("/orders/:id/review", market.SubmitReview, customer)
	api.GET("/orders/:id/review", market.GetOrderReview)

	// Wallet
	api.GET("/wallet", wallets.Balance)
	api.GET("/wallet/transactions", wallets.Transactions)
	api.POST("/wallet/withdraw", wallets.Withdraw)

	// Chef dashboard
	api.GET("/chef/stats", stats.ChefStats, chef)

	// Notifications
	api.GET("/notifications", inbox.ListNotifications)
	api.POST("/notifications/:id/read", inbox.MarkNotificationRead)

	// Admin routes
	api.GET("/admin-dashboard", ops.Dashboard, appmw.AdminGuard)
	adminGroup := api.Group("/admin")
	adminGroup.Use(appmw.AdminGuard)
	adminGroup.GET("/wallets", ops.ListWallets)
	adminGroup.GET("/wallets/:user_id/transactions", ops.UserTransactions)
	adminGroup.POST("/wallets/:user_id/adjust", ops.Adjust)
	adminGroup.GET("/ledger/verify", ops.VerifyLedger)

	return e
}
