package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/docsdeploy/internal/config"
	"git.home.luguber.info/inful/docsdeploy/internal/logfields"
	"git.home.luguber.info/inful/docsdeploy/internal/trigger"
)

// Scheduler runs the configured periodic deploys. Scheduled runs are
// forced: they bypass the path filter because no file list exists for
// "redeploy now".
type Scheduler struct {
	scheduler  gocron.Scheduler
	dispatcher Dispatcher
	branch     string
	runCtx     context.Context
}

// NewScheduler creates a scheduler dispatching forced deploys for branch.
func NewScheduler(dispatcher Dispatcher, branch string) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create gocron scheduler: %w", err)
	}
	return &Scheduler{
		scheduler:  s,
		dispatcher: dispatcher,
		branch:     branch,
		runCtx:     context.Background(),
	}, nil
}

// AddSchedules registers one periodic job per schedule entry and returns
// the gocron job IDs.
func (s *Scheduler) AddSchedules(schedules []config.ScheduleConfig) ([]string, error) {
	ids := make([]string, 0, len(schedules))
	for _, sc := range schedules {
		name := sc.Name
		if name == "" {
			name = "every-" + sc.Every
		}
		job, err := s.scheduler.NewJob(
			gocron.DurationJob(sc.ScheduleInterval()),
			gocron.NewTask(s.runScheduled, name),
			gocron.WithName(name),
		)
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", name, err)
		}
		ids = append(ids, job.ID().String())
	}
	return ids, nil
}

// Start begins executing registered schedules.
func (s *Scheduler) Start(ctx context.Context) {
	s.runCtx = context.WithoutCancel(ctx)
	slog.Info("Starting deploy scheduler")
	s.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for a running job to finish.
func (s *Scheduler) Stop() error {
	slog.Info("Stopping deploy scheduler")
	return s.scheduler.Shutdown()
}

// runScheduled is the gocron task body for one schedule.
func (s *Scheduler) runScheduled(name string) {
	slog.Info("Executing scheduled deploy",
		logfields.ScheduleID(name),
		logfields.Branch(s.branch))

	ev := trigger.PushEvent{
		Branch:     s.branch,
		Source:     trigger.SourceSchedule,
		Forced:     true,
		ReceivedAt: time.Now(),
	}
	if _, err := s.dispatcher.HandleEvent(s.runCtx, ev); err != nil {
		slog.Error("Scheduled deploy failed",
			logfields.ScheduleID(name),
			logfields.Error(err))
	}
}
