// Package deploy owns the run lifecycle: it evaluates incoming push
// events against the trigger filter and drives the six-step pipeline for
// the ones that match, recording history, metrics, and lifecycle events
// along the way.
package deploy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/docsdeploy/internal/cache"
	"git.home.luguber.info/inful/docsdeploy/internal/config"
	"git.home.luguber.info/inful/docsdeploy/internal/events"
	"git.home.luguber.info/inful/docsdeploy/internal/gitops"
	"git.home.luguber.info/inful/docsdeploy/internal/history"
	"git.home.luguber.info/inful/docsdeploy/internal/installer"
	"git.home.luguber.info/inful/docsdeploy/internal/logfields"
	"git.home.luguber.info/inful/docsdeploy/internal/metrics"
	"git.home.luguber.info/inful/docsdeploy/internal/pipeline"
	rt "git.home.luguber.info/inful/docsdeploy/internal/runtime"
	"git.home.luguber.info/inful/docsdeploy/internal/site"
	"git.home.luguber.info/inful/docsdeploy/internal/trigger"
	"git.home.luguber.info/inful/docsdeploy/internal/workspace"
)

// Service evaluates push events and executes deploy runs. Runs are
// serialized: the terminal force-push is last-write-wins, and serializing
// keeps two runs from interleaving mid-flight.
type Service struct {
	cfg        *config.Config
	filter     *trigger.Filter
	git        *gitops.Client
	prov       *rt.Provisioner
	cacheStore *cache.Store
	inst       *installer.Installer
	builder    *site.Builder
	ws         *workspace.Manager

	hist history.Store
	rec  metrics.Recorder
	pub  events.Publisher

	mu sync.Mutex
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithHistory attaches a run history store.
func WithHistory(store history.Store) Option {
	return func(s *Service) { s.hist = store }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(rec metrics.Recorder) Option {
	return func(s *Service) { s.rec = rec }
}

// WithPublisher attaches a run event publisher.
func WithPublisher(pub events.Publisher) Option {
	return func(s *Service) { s.pub = pub }
}

// NewService wires a deploy service from configuration.
func NewService(cfg *config.Config, options ...Option) (*Service, error) {
	filter, err := trigger.NewFilter(cfg.Trigger)
	if err != nil {
		return nil, err
	}
	store, err := cache.NewStore(cfg.Cache.Dir)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:        cfg,
		filter:     filter,
		git:        gitops.NewClient(cfg.Repository),
		prov:       rt.NewProvisioner(cfg.Runtime),
		cacheStore: store,
		inst:       installer.New(cfg.Install),
		builder:    site.NewBuilder(cfg.Build),
		ws:         workspace.NewManager(cfg.Workspace.Dir),
		rec:        metrics.NoopRecorder{},
		pub:        events.NoopPublisher{},
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Report is the outcome of handling one push event.
type Report struct {
	RunID           string
	Decision        trigger.Decision
	Status          pipeline.Status
	FailedStep      pipeline.StepName
	Commit          string
	PublishedCommit string
	Duration        time.Duration
	Err             error
}

// HandleEvent evaluates one push event and, when it triggers, executes a
// deploy run. The returned error is the run's fatal error, if any; an
// ignored event returns a nil error and a not-triggered report.
func (s *Service) HandleEvent(ctx context.Context, ev trigger.PushEvent) (*Report, error) {
	decision := s.filter.Evaluate(ev)
	s.rec.IncEventDecision(decision.Triggered)

	if !decision.Triggered {
		slog.Info("Push event ignored",
			logfields.Branch(ev.Branch),
			logfields.Source(string(ev.Source)),
			slog.String("reason", decision.Reason))
		s.rec.IncRunOutcome(string(pipeline.StatusNotTriggered))
		s.publishEvent(ctx, events.RunEvent{
			Type:   events.EventRunIgnored,
			Branch: ev.Branch,
			Commit: ev.Commit,
			Reason: decision.Reason,
		})
		return &Report{Decision: decision, Status: pipeline.StatusNotTriggered}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	runID := uuid.NewString()
	started := time.Now()
	slog.Info("Deploy run triggered",
		logfields.RunID(runID),
		logfields.Branch(s.filter.Branch()),
		logfields.Commit(ev.Commit),
		logfields.Source(string(ev.Source)),
		slog.String("reason", decision.Reason))

	s.recordStart(ctx, runID, ev, started)
	s.publishEvent(ctx, events.RunEvent{
		Type: events.EventRunStarted, RunID: runID,
		Branch: s.filter.Branch(), Commit: ev.Commit,
	})

	rd, err := s.ws.Create(runID)
	if err != nil {
		report := &Report{RunID: runID, Decision: decision, Status: pipeline.StatusFailed, Err: err}
		s.finish(ctx, report, started)
		return report, err
	}
	defer func() {
		if err := s.ws.Cleanup(rd); err != nil {
			slog.Warn("Workspace cleanup failed", logfields.RunID(runID), logfields.Error(err))
		}
	}()

	st := &pipeline.RunState{RunID: runID, Event: ev, CheckoutDir: rd.Checkout()}
	result := s.buildPipeline(ctx, runID).Execute(ctx, st)

	report := &Report{
		RunID:           runID,
		Decision:        decision,
		Status:          result.Status,
		FailedStep:      result.FailedStep,
		Commit:          st.Commit,
		PublishedCommit: st.PublishedCommit,
		Err:             result.Err,
	}
	if result.Status == pipeline.StatusSucceeded {
		s.rec.IncPublish(s.cfg.Publish.Force)
	}
	s.finish(ctx, report, started)
	return report, result.Err
}

func (s *Service) buildPipeline(ctx context.Context, runID string) *pipeline.Pipeline {
	steps := []pipeline.Step{
		&checkoutStep{client: s.git, branch: s.filter.Branch()},
		&provisionStep{prov: s.prov},
		&cacheStep{store: s.cacheStore, cfg: s.cfg.Cache, label: s.cfg.Install.Command},
		&installStep{inst: s.inst, store: s.cacheStore, env: s.cfg.Install.CacheEnv},
		&buildStep{builder: s.builder, cfg: s.cfg.Build},
		&publishStep{cfg: s.cfg.Publish, auth: s.cfg.Repository.Auth},
	}
	return pipeline.New(steps, pipeline.WithObserver(func(sr pipeline.StepResult) {
		s.rec.ObserveStepDuration(string(sr.Name), sr.Duration)
		label := metrics.ResultSuccess
		errText := ""
		if sr.Err != nil {
			label = metrics.ResultFailure
			errText = sr.Err.Error()
		}
		s.rec.IncStepResult(string(sr.Name), label)
		if s.hist != nil {
			if err := s.hist.RecordStep(ctx, runID, history.StepRecord{
				Name:       string(sr.Name),
				DurationMS: sr.Duration.Milliseconds(),
				Error:      errText,
			}); err != nil {
				slog.Warn("History step record failed", logfields.RunID(runID), logfields.Error(err))
			}
		}
	}))
}

func (s *Service) recordStart(ctx context.Context, runID string, ev trigger.PushEvent, started time.Time) {
	if s.hist == nil {
		return
	}
	err := s.hist.RecordStart(ctx, history.Run{
		ID:        runID,
		Branch:    s.filter.Branch(),
		Commit:    ev.Commit,
		Source:    string(ev.Source),
		Status:    string(pipeline.StatusRunning),
		StartedAt: started,
	})
	if err != nil {
		slog.Warn("History start record failed", logfields.RunID(runID), logfields.Error(err))
	}
}

func (s *Service) finish(ctx context.Context, report *Report, started time.Time) {
	report.Duration = time.Since(started)
	s.rec.ObserveRunDuration(report.Duration)
	s.rec.IncRunOutcome(string(report.Status))

	if s.hist != nil {
		err := s.hist.RecordFinish(ctx, report.RunID, string(report.Status), string(report.FailedStep), time.Now())
		if err != nil {
			slog.Warn("History finish record failed", logfields.RunID(report.RunID), logfields.Error(err))
		}
	}
	s.publishEvent(ctx, events.RunEvent{
		Type:       events.EventRunFinished,
		RunID:      report.RunID,
		Branch:     s.filter.Branch(),
		Commit:     report.Commit,
		Status:     string(report.Status),
		FailedStep: string(report.FailedStep),
	})

	slog.Info("Deploy run finished",
		logfields.RunID(report.RunID),
		logfields.RunStatus(string(report.Status)),
		logfields.DurationMS(float64(report.Duration.Milliseconds())))
}

func (s *Service) publishEvent(ctx context.Context, ev events.RunEvent) {
	if err := s.pub.Publish(ctx, ev); err != nil {
		slog.Warn("Run event publish failed", logfields.Error(err))
	}
}

// Filter exposes the trigger filter (used by the CLI check command).
func (s *Service) Filter() *trigger.Filter { return s.filter }
