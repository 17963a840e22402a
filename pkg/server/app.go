package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FKSEngine/internal/usecase"
	"FKSEngine/pkg/config"
	xhttp "FKSEngine/pkg/http"
	pkgkafka "FKSEngine/pkg/kafka"
	applogger "FKSEngine/pkg/logger"
	"FKSEngine/pkg/queue"
)

// Components are the long-running parts of the service. Optional parts are nil when
// their section is disabled in the configuration.
type Components struct {
	Engines     *usecase.Engines
	Processor   *usecase.BarProcessor
	Collector   *usecase.BarCollector
	Consumer    *pkgkafka.Consumer
	Handlers    []pkgkafka.MessageHandler
	Spool       *queue.RedisQueue
	Housekeeper *usecase.Housekeeper
	HTTP        *xhttp.Server
	// Closers run last, in order, after every worker stopped.
	Closers []io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	log *applogger.Logger
	c   Components
}

func New(cfg *config.Config, log *applogger.Logger, c Components) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{cfg: cfg, log: log, c: c}
}

// Run starts every component and blocks until ctx is cancelled, a signal arrives or
// the HTTP listener fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.c.Engines.Warm(a.cfg.Engine.Symbols); err != nil {
		return fmt.Errorf("warm engines: %w", err)
	}
	a.log.Info("engines ready", applogger.Strings("symbols", a.c.Engines.Symbols()))

	if a.c.Spool != nil {
		if err := a.c.Spool.Start(ctx); err != nil {
			// journal writes still go straight through; only retries are lost
			a.log.Warn("journal spool unavailable", applogger.Error(err))
			a.c.Spool = nil
		}
	}

	if a.c.Housekeeper != nil {
		a.c.Housekeeper.Start(ctx)
	}

	if a.c.Collector != nil {
		go func() {
			if err := a.c.Collector.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("bar collector error", applogger.Error(err))
			}
		}()
		a.log.Info("bar collector started")
	}

	if a.c.Consumer != nil && len(a.c.Handlers) > 0 {
		topics := make([]string, 0, len(a.c.Handlers))
		for _, h := range a.c.Handlers {
			a.c.Consumer.RegisterHandler(h)
			topics = append(topics, h.Topic())
		}
		if err := a.c.Consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.log.Info("kafka consumer started", applogger.Strings("topics", topics))
	}

	var httpErr <-chan error
	if a.c.HTTP != nil {
		if err := a.c.HTTP.Start(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		httpErr = a.c.HTTP.Err()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case runErr = <-httpErr:
		a.log.Error("http server failed", applogger.Error(runErr))
	}

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown stops inputs first so nothing new reaches the engines, then the engines,
// then the sinks.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")
	var errs []error

	if a.c.HTTP != nil {
		if err := a.c.HTTP.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.c.Collector != nil {
		if err := a.c.Collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("kafka consumer: %w", err))
		}
	}
	if a.c.Housekeeper != nil {
		a.c.Housekeeper.Stop()
	}
	if err := a.c.Engines.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("engines: %w", err))
	}
	if a.c.Spool != nil {
		if err := a.c.Spool.Stop(ctx); err != nil {
			a.log.Warn("spool stop error", applogger.Error(err))
		}
	}
	if a.c.Processor != nil {
		a.c.Processor.Close()
	}
	// the collector ships through the producer, so flush it before the closers run
	a.log.RemoveCollector()
	for _, c := range a.c.Closers {
		if err := c.Close(); err != nil {
			a.log.Warn("close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
