package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corray333/backend-labs/fulfillment/internal/appctx"
	"github.com/corray333/backend-labs/fulfillment/internal/dal/postgres"
	"github.com/corray333/backend-labs/fulfillment/internal/kafka"
	otelctl "github.com/corray333/backend-labs/fulfillment/internal/otel"
	"github.com/corray333/backend-labs/fulfillment/internal/service/services/ordersvc"
	httptransport "github.com/corray333/backend-labs/fulfillment/internal/transport/http"
	"github.com/corray333/backend-labs/fulfillment/internal/worker/notify"
	"github.com/corray333/backend-labs/fulfillment/internal/worker/supervisor"
	"golang.org/x/sync/errgroup"
)

// App represents the application.
type App struct {
	appContext     *appctx.AppContext
	orderSvc       *ordersvc.OrderService
	transport      *httptransport.HTTPTransport
	postgresClient *postgres.Client
	otelController *otelctl.OtelController
}

// MustNewApp creates a new application.
func MustNewApp() *App {
	otelController := otelctl.MustInitOtel()
	postgresClient := postgres.MustNewClient()

	orderSvc := ordersvc.MustNewOrderService(
		ordersvc.WithPostgresClient(postgresClient),
	)

	transport := httptransport.NewHTTPTransport(orderSvc)
	transport.RegisterRoutes()

	return &App{
		appContext:     appctx.New(postgresClient),
		orderSvc:       orderSvc,
		transport:      transport,
		postgresClient: postgresClient,
		otelController: otelController,
	}
}

// Run starts the application: the supervisor, the unsupervised long-lived
// workers, and the HTTP server. Tracks the interrupt signal to gracefully
// shut everything down.
func (a *App) Run() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup := supervisor.Start(ctx, a.appContext)

	// The notify worker and the Kafka consumer are started once and are
	// not supervised: their failure takes the run group down.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return notify.Run(gctx, sup)
	})
	g.Go(func() error {
		return kafka.NewConsumer().Run(gctx)
	})

	go func() {
		slog.Info("Starting HTTP server")
		if err := a.transport.Run(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	groupErr := make(chan error, 1)
	go func() {
		groupErr <- g.Wait()
	}()

	var bgErr error
	bgDone := false
	select {
	case <-stop:
		slog.Info("Shutdown signal received")
	case bgErr = <-groupErr:
		bgDone = true
		if bgErr != nil {
			slog.Error("Background worker failed", "error", bgErr)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := a.transport.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}

	if !bgDone {
		if err := <-groupErr; err != nil {
			slog.Error("Background worker exited with error", "error", err)
		}
	}

	a.postgresClient.Close()
	slog.Info("Database connection closed gracefully")

	if err := a.otelController.Shutdown(); err != nil {
		slog.Error("Trace provider shutdown error", "error", err)
	}

	slog.Info("Application shutdown complete")
}
