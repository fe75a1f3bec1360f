package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsdevblog/groph-market/internal/cache"
	"github.com/fsdevblog/groph-market/internal/config"
	"github.com/fsdevblog/groph-market/internal/metrics"
	"github.com/fsdevblog/groph-market/internal/repository/pgrepo"
	"github.com/fsdevblog/groph-market/internal/service"
	"github.com/fsdevblog/groph-market/internal/transport/api"
	"github.com/fsdevblog/groph-market/internal/transport/gateway"
	"github.com/fsdevblog/groph-market/internal/transport/notify"
	"github.com/fsdevblog/groph-market/internal/transport/reconcile"
	"github.com/fsdevblog/groph-market/pkg/uow"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
)

type App struct {
	Config *config.Config
	Logger *logrus.Logger
}

func New(conf *config.Config, l *logrus.Logger) *App {
	return &App{
		Config: conf,
		Logger: l,
	}
}

// Run поднимает зависимости и работает до SIGINT/SIGTERM или ошибки HTTP сервера.
func (a *App) Run() error {
	notifyCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.Logger.WithFields(logrus.Fields{
		"runAddress":     a.Config.RunAddress,
		"gatewayBaseURL": a.Config.GatewayBaseURL,
		"currency":       a.Config.Currency,
		"redis":          a.Config.RedisAddr != "",
		"amqp":           a.Config.AMQPURL != "",
	}).Info("Starting app")

	conn, connErr := pgrepo.Connect(notifyCtx, a.Config.DatabaseDSN, a.Logger)
	if connErr != nil {
		return fmt.Errorf("app run: %w", connErr)
	}
	defer conn.Close()

	unitOfWork := uow.NewUnitOfWork(conn, uow.WithIsoLevel(pgx.ReadCommitted))
	if regErr := pgrepo.RegisterRepositories(unitOfWork); regErr != nil {
		return fmt.Errorf("app run: %w", regErr)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	publisher, closePublisher, pubErr := a.initPublisher(notifyCtx)
	if pubErr != nil {
		return fmt.Errorf("app run: %w", pubErr)
	}
	defer closePublisher()

	dedup, closeDedup, dedupErr := a.initDeduplicator(notifyCtx)
	if dedupErr != nil {
		return fmt.Errorf("app run: %w", dedupErr)
	}
	defer closeDedup()

	services, sErr := service.Factory(service.FactoryArgs{
		UOW:            unitOfWork,
		Gateway:        gateway.New(a.Config.GatewayBaseURL, a.Config.GatewaySecretKey, gateway.WithMetrics(m)),
		Publisher:      publisher,
		Metrics:        m,
		Logger:         a.Logger,
		Currency:       a.Config.Currency,
		ReconcileAfter: a.Config.ReconcileAfter,
		PendingExpiry:  a.Config.PendingExpiry,
	})
	if sErr != nil {
		return fmt.Errorf("app run: %w", sErr)
	}

	router := api.New(api.RouterArgs{
		Logger:         a.Logger,
		OrderService:   services.OrderService,
		Verifier:       gateway.NewVerifier(a.Config.GatewayWebhookSecret),
		Deduplicator:   dedup,
		MetricsHandler: promhttp.Handler(),
	})
	server := &http.Server{
		Addr:              a.Config.RunAddress,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	processor := reconcile.New(services.OrderService, a.Logger).
		SetWorkers(a.Config.ReconcileWorkers).
		SetLimitPerIteration(a.Config.ReconcileBatch).
		SetInterval(a.Config.ReconcileInterval).
		SetRateLimit(a.Config.GatewayRPS)

	g, gCtx := errgroup.WithContext(notifyCtx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		processor.Run(gCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err //nolint:wrapcheck
	}
	a.Logger.Info("App stopped")
	return nil
}

func (a *App) initPublisher(ctx context.Context) (service.EventPublisher, func(), error) {
	if a.Config.AMQPURL == "" {
		return notify.NopPublisher{}, func() {}, nil
	}
	publisher, err := notify.Connect(ctx, a.Config.AMQPURL, a.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init publisher: %w", err)
	}
	return publisher, func() {
		if closeErr := publisher.Close(); closeErr != nil {
			a.Logger.WithError(closeErr).Warn("close publisher")
		}
	}, nil
}

func (a *App) initDeduplicator(ctx context.Context) (api.EventDeduplicator, func(), error) {
	if a.Config.RedisAddr == "" {
		return cache.NopDeduplicator{}, func() {}, nil
	}
	client, err := cache.Connect(ctx, a.Config.RedisAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("init deduplicator: %w", err)
	}
	return cache.NewEventDeduplicator(client, cache.DefaultEventTTL), func() {
		if closeErr := client.Close(); closeErr != nil {
			a.Logger.WithError(closeErr).Warn("close redis")
		}
	}, nil
}
