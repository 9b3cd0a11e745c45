// Package daemon hosts long-running mode: the webhook HTTP server plus
// the optional periodic schedules and local docs-tree watcher, all
// feeding push events into one deploy service.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/docsdeploy/internal/config"
	"git.home.luguber.info/inful/docsdeploy/internal/deploy"
	"git.home.luguber.info/inful/docsdeploy/internal/events"
	"git.home.luguber.info/inful/docsdeploy/internal/history"
	"git.home.luguber.info/inful/docsdeploy/internal/logfields"
	"git.home.luguber.info/inful/docsdeploy/internal/metrics"
	"git.home.luguber.info/inful/docsdeploy/internal/server"
	"git.home.luguber.info/inful/docsdeploy/internal/trigger"
)

const shutdownGrace = 15 * time.Second

// Dispatcher accepts push events for deployment. Satisfied by
// *deploy.Service.
type Dispatcher interface {
	Filter() *trigger.Filter
	HandleEvent(ctx context.Context, ev trigger.PushEvent) (*deploy.Report, error)
}

// Daemon owns the long-running event sources and their shared service.
type Daemon struct {
	cfg *config.Config

	svc       *deploy.Service
	hist      history.Store
	publisher events.Publisher
	srv       *server.Server
	scheduler *Scheduler
	watcher   *Watcher
}

// New wires a daemon from configuration. watchRoot is the local working
// copy the watcher monitors; ignored unless watching is enabled.
func New(cfg *config.Config, watchRoot string) (*Daemon, error) {
	d := &Daemon{cfg: cfg}

	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	hist, err := history.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	d.hist = hist

	d.publisher = events.NoopPublisher{}
	if cfg.Events.Enabled {
		pub, err := events.NewNATSPublisher(cfg.Events)
		if err != nil {
			_ = hist.Close()
			return nil, fmt.Errorf("connect event publisher: %w", err)
		}
		d.publisher = pub
	}

	d.svc, err = deploy.NewService(cfg,
		deploy.WithHistory(hist),
		deploy.WithRecorder(recorder),
		deploy.WithPublisher(d.publisher),
	)
	if err != nil {
		d.closeResources()
		return nil, err
	}

	d.srv = server.New(cfg.Server, d.svc,
		server.WithHistory(hist),
		server.WithMetricsRegistry(registry),
	)

	if len(cfg.Schedules) > 0 {
		d.scheduler, err = NewScheduler(d.svc, cfg.Trigger.Branch)
		if err != nil {
			d.closeResources()
			return nil, err
		}
		if _, err := d.scheduler.AddSchedules(cfg.Schedules); err != nil {
			d.closeResources()
			return nil, err
		}
	}

	if cfg.Watch.Enabled {
		d.watcher, err = NewWatcher(watchRoot, cfg.Watch.Dir, cfg.Watch.DebounceInterval(), d.svc, cfg.Trigger.Branch)
		if err != nil {
			d.closeResources()
			return nil, err
		}
	}

	return d, nil
}

// Run starts all event sources and blocks until ctx is canceled, then
// shuts them down gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.start(ctx); err != nil {
		d.closeResources()
		return err
	}

	slog.Info("Daemon running",
		logfields.Repository(d.cfg.Repository.Name),
		logfields.Branch(d.cfg.Trigger.Branch),
		slog.Int("schedules", len(d.cfg.Schedules)),
		slog.Bool("watch", d.cfg.Watch.Enabled))

	<-ctx.Done()
	return d.shutdown()
}

func (d *Daemon) start(ctx context.Context) error {
	if err := d.srv.Start(ctx); err != nil {
		return err
	}
	if d.scheduler != nil {
		d.scheduler.Start(ctx)
	}
	if d.watcher != nil {
		if err := d.watcher.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (d *Daemon) shutdown() error {
	slog.Info("Daemon shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	var errs []error
	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("watcher stop: %w", err))
		}
	}
	if d.scheduler != nil {
		if err := d.scheduler.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
		}
	}
	if err := d.srv.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	d.closeResources()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	slog.Info("Daemon stopped")
	return nil
}

func (d *Daemon) closeResources() {
	if d.publisher != nil {
		d.publisher.Close()
	}
	if d.hist != nil {
		if err := d.hist.Close(); err != nil {
			slog.Warn("History store close failed", logfields.Error(err))
		}
	}
}
