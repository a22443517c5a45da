package main // Entry point of the booking-view gateway

import (
	"context"
	"errors"
	"fmt"
	"log" // used until the structured logger exists
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4" // Echo web framework
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-client/internal/api"
	"github.com/iliyamo/cinema-seat-client/internal/booking"
	"github.com/iliyamo/cinema-seat-client/internal/config" // Internal config loader
	"github.com/iliyamo/cinema-seat-client/internal/database"
	"github.com/iliyamo/cinema-seat-client/internal/handler"
	"github.com/iliyamo/cinema-seat-client/internal/logger"
	"github.com/iliyamo/cinema-seat-client/internal/queue"
	"github.com/iliyamo/cinema-seat-client/internal/repository"
	"github.com/iliyamo/cinema-seat-client/internal/router" // Internal router setup
)

func main() {
	cfg := config.Load() // Load environment config
	lg, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	if err := run(cfg, lg); err != nil {
		lg.Error("seatview stopped", zap.Error(err))
		_ = lg.Sync()
		os.Exit(1)
	}
	_ = lg.Sync()
}

// run wires the gateway and blocks until a shutdown signal arrives.  Every
// connection it opens is closed before it returns, also on startup errors.
func run(cfg config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// REST client towards the booking backend; the showtime list is cached
	// in Redis when enabled and reachable.
	apiOpts := []api.Option{
		api.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		api.WithLogger(lg),
	}
	if cfg.Cache.Enabled {
		rdb, err := config.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			lg.Warn("redis unavailable, showtime cache disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			apiOpts = append(apiOpts, api.WithCache(api.NewRedisCache(rdb, cfg.Cache.Prefix), cfg.Cache.TTL))
		}
	}
	backend := api.New(cfg.APIURL, apiOpts...)

	base := booking.Options{
		Backend:      backend,
		Dial:         booking.LiveDialer(cfg.LiveURL, lg),
		Logger:       lg,
		HoldWarning:  cfg.HoldWarning,
		RefreshDelay: cfg.RefreshDelay,
		ReconnectMin: cfg.ReconnectMin,
		ReconnectMax: cfg.ReconnectMax,
	}

	deps := router.Deps{JWTSecret: cfg.JWTSecret, AllowedRoles: cfg.AllowedRoles}
	consumerDone := make(chan struct{})
	if cfg.Receipts.Enabled {
		pub := queue.NewPublisher(cfg.Receipts.URL, lg)
		defer pub.Close()
		base.Receipts = pub

		db, err := database.Open(ctx, cfg.DB.User, cfg.DB.Pass, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		repo := repository.NewReceiptRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("receipt schema: %w", err)
		}
		deps.Receipts = handler.NewReceiptHandler(repo)

		go func() {
			defer close(consumerDone)
			if err := queue.ConsumeReceipts(ctx, cfg.Receipts.URL, repo, lg); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("receipt consumer stopped", zap.Error(err))
			}
		}()
	} else {
		close(consumerDone)
	}

	views := handler.NewViewHandler(base)
	deps.Views = views

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	router.RegisterRoutes(e, deps) // Register application routes

	addr := ":" + cfg.Port // Address string with port
	serveErr := make(chan error, 1)
	go func() {
		lg.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var err error
	select {
	case <-ctx.Done():
		lg.Info("shutting down")
	case err = <-serveErr:
		stop()
	}
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		lg.Warn("server shutdown", zap.Error(err))
	}
	views.CloseAll(sctx)
	<-consumerDone
	return err
}
