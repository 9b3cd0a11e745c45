// Package pipeline runs the deploy steps as a fixed linear sequence.
// There is no dependency graph: the flow is checkout → provision →
// cache-restore → install → build → publish, and the first failure halts
// everything after it.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/docsdeploy/internal/logfields"
	"git.home.luguber.info/inful/docsdeploy/internal/trigger"
)

// StepName identifies a pipeline step.
type StepName string

const (
	StepCheckout  StepName = "checkout"
	StepProvision StepName = "provision"
	StepCache     StepName = "cache-restore"
	StepInstall   StepName = "install"
	StepBuild     StepName = "build"
	StepPublish   StepName = "publish"
)

// Step is one unit of the deploy sequence. Run mutates the shared RunState
// and returns a fatal error to halt the pipeline.
type Step interface {
	Name() StepName
	Run(ctx context.Context, st *RunState) error
}

// RunState is the mutable state threaded through the steps of one run.
type RunState struct {
	RunID string
	Event trigger.PushEvent

	// Populated by checkout.
	CheckoutDir string
	Commit      string

	// Populated by cache-restore.
	CacheKey      string
	CacheDir      string
	CacheRestored bool
	CacheExact    bool

	// Populated by build.
	SiteDir string

	// Populated by publish.
	PublishedBranch string
	PublishedCommit string
}

// Status enumerates run outcomes. NotTriggered never enters the pipeline;
// it exists so callers share one vocabulary with the trigger filter.
type Status string

const (
	StatusNotTriggered Status = "not-triggered"
	StatusRunning      Status = "running"
	StatusSucceeded    Status = "succeeded"
	StatusFailed       Status = "failed"
)

// StepResult records the outcome of a single executed step.
type StepResult struct {
	Name      StepName
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// Success reports whether the step completed without error.
func (r StepResult) Success() bool { return r.Err == nil }

// Result is the outcome of one pipeline execution.
type Result struct {
	Status     Status
	Steps      []StepResult
	FailedStep StepName
	Err        error
}

// Observer is notified after each step finishes. Used for metrics and run
// history; observers must not block for long.
type Observer func(StepResult)

// Pipeline executes a fixed ordered list of steps.
type Pipeline struct {
	steps     []Step
	observers []Observer
}

// Option configures pipeline behavior.
type Option func(*Pipeline)

// WithObserver registers a step observer.
func WithObserver(obs ...Observer) Option {
	return func(p *Pipeline) {
		p.observers = append(p.observers, obs...)
	}
}

// New creates a pipeline over the given steps, executed in slice order.
func New(steps []Step, options ...Option) *Pipeline {
	p := &Pipeline{steps: steps}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// StepNames returns the declared execution order.
func (p *Pipeline) StepNames() []StepName {
	names := make([]StepName, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Execute runs the steps in order, halting at the first failure or context
// cancellation. The returned Result always carries the per-step outcomes
// for the steps that actually started.
func (p *Pipeline) Execute(ctx context.Context, st *RunState) *Result {
	slog.Info("Executing deploy pipeline",
		logfields.RunID(st.RunID),
		slog.Int("steps", len(p.steps)),
		slog.Any("order", p.StepNames()))

	result := &Result{Status: StatusRunning}

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			result.Status = StatusFailed
			result.FailedStep = step.Name()
			result.Err = fmt.Errorf("canceled before step %s: %w", step.Name(), err)
			return result
		}

		started := time.Now()
		err := step.Run(ctx, st)
		sr := StepResult{
			Name:      step.Name(),
			StartedAt: started,
			Duration:  time.Since(started),
			Err:       err,
		}
		result.Steps = append(result.Steps, sr)
		p.notify(sr)

		if err != nil {
			slog.Error("Step failed",
				logfields.RunID(st.RunID),
				logfields.Step(string(step.Name())),
				logfields.Error(err))
			result.Status = StatusFailed
			result.FailedStep = step.Name()
			result.Err = fmt.Errorf("step %s: %w", step.Name(), err)
			return result
		}
		slog.Debug("Step completed",
			logfields.RunID(st.RunID),
			logfields.Step(string(step.Name())),
			logfields.DurationMS(float64(sr.Duration.Milliseconds())))
	}

	result.Status = StatusSucceeded
	return result
}

func (p *Pipeline) notify(sr StepResult) {
	for _, obs := range p.observers {
		obs(sr)
	}
}
