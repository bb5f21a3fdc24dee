package server

import (
	"context"
	"errors"
	"fmt"

	"ChartSync/internal/repository"
	"ChartSync/internal/service/wshub"
	"ChartSync/internal/usecase"
	"ChartSync/pkg/config"
	xhttp "ChartSync/pkg/http"
	pkgkafka "ChartSync/pkg/kafka"
	applogger "ChartSync/pkg/logger"
	"ChartSync/pkg/queue"
)

// App owns the lifecycle of the HTTP server and the background workers.
// Optional components are nil when disabled in config.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	httpServer *xhttp.Server
	hub        *wshub.Hub
	scheduler  *usecase.RefreshScheduler
	consumer   *pkgkafka.Consumer
	jobs       *queue.RedisQueue
	notifier   *repository.KafkaChartNotifier
}

type Option func(*App)

func WithHub(h *wshub.Hub) Option { return func(a *App) { a.hub = h } }

func WithScheduler(s *usecase.RefreshScheduler) Option { return func(a *App) { a.scheduler = s } }

func WithConsumer(c *pkgkafka.Consumer) Option { return func(a *App) { a.consumer = c } }

func WithJobQueue(q *queue.RedisQueue) Option { return func(a *App) { a.jobs = q } }

// WithNotifier attaches the Kafka notifier so shutdown flushes it before
// infrastructure is released.
func WithNotifier(n *repository.KafkaChartNotifier) Option { return func(a *App) { a.notifier = n } }

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, httpServer *xhttp.Server, opts ...Option) *App {
	if l == nil {
		l = applogger.Nop()
	}
	a := &App{cfg: cfg, l: l, httpServer: httpServer}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts every component and blocks until ctx is cancelled or the HTTP
// server fails, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	if err := a.start(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(err, a.shutdown(shutdownCtx))
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.l.Info("shutdown signal received")
	case runErr = <-a.httpServer.Err():
		a.l.Error("http server failed", applogger.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.shutdown(shutdownCtx))
}

func (a *App) start(ctx context.Context) error {
	if a.jobs != nil {
		if err := a.jobs.Start(); err != nil {
			return fmt.Errorf("start refresh queue: %w", err)
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			return fmt.Errorf("start kafka consumer: %w", err)
		}
		a.l.Info("kafka consumer started", applogger.String("topic", a.cfg.Kafka.RefreshTopic))
	}

	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start refresh scheduler: %w", err)
		}
	}

	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	a.l.Info("chartsync started",
		applogger.String("storage", a.cfg.Storage.Backend),
		applogger.Bool("kafka", a.consumer != nil),
		applogger.Bool("refresh", a.scheduler != nil),
		applogger.Bool("refresh_queue", a.jobs != nil),
	)
	return nil
}

// shutdown stops intake first (HTTP, scheduler, consumers), then flushes
// outbound notifications. Infrastructure clients are closed by the caller.
func (a *App) shutdown(ctx context.Context) error {
	a.l.Info("shutting down")
	var errs []error

	if err := a.httpServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if a.hub != nil {
		_ = a.hub.Close()
	}

	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kafka consumer: %w", err))
		}
	}
	if a.jobs != nil {
		if err := a.jobs.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("refresh queue: %w", err))
		}
	}

	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("chart notifier: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		a.l.Warn("shutdown finished with errors", applogger.Error(err))
		return err
	}
	a.l.Info("shutdown complete")
	return nil
}
