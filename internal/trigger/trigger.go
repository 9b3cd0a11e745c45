// Package trigger implements the push-event gate: a deploy runs only when
// the pushed branch matches the configured branch and at least one changed
// path matches one of the configured glob patterns.
package trigger

import (
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/docsdeploy/internal/config"
)

// Source identifies where a push event originated.
type Source string

const (
	SourceWebhook  Source = "webhook"
	SourceCLI      Source = "cli"
	SourceSchedule Source = "schedule"
	SourceWatch    Source = "watch"
)

// PushEvent is the normalized form of an incoming push notification.
type PushEvent struct {
	Branch       string
	Commit       string
	ChangedPaths []string
	Source       Source
	ReceivedAt   time.Time

	// Forced bypasses the path filter (branch must still match unless
	// the event came from a schedule). Used by schedules and `run --force`.
	Forced bool
}

// Decision is the outcome of evaluating an event against the filter.
type Decision struct {
	Triggered bool
	Reason    string
	// MatchedPath is the first changed path that matched a pattern,
	// recorded for logging.
	MatchedPath string
}

// Filter gates push events. Construct with NewFilter; the zero value
// rejects everything.
type Filter struct {
	branch   string
	patterns []string
}

// NewFilter builds a filter from trigger configuration. Patterns were
// validated at config load time; invalid ones are rejected again here so a
// hand-constructed filter fails fast.
func NewFilter(cfg config.TriggerConfig) (*Filter, error) {
	if cfg.Branch == "" {
		return nil, fmt.Errorf("trigger filter requires a branch")
	}
	for _, p := range cfg.Paths {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob pattern %q", p)
		}
	}
	return &Filter{branch: cfg.Branch, patterns: cfg.Paths}, nil
}

// Evaluate decides whether an event triggers a deploy. A negative decision
// is not an error: the event is simply ignored.
func (f *Filter) Evaluate(ev PushEvent) Decision {
	if f == nil || f.branch == "" {
		return Decision{Reason: "filter not configured"}
	}

	// Scheduled deploys are forced rebuilds of the configured branch; the
	// event carries no meaningful branch of its own.
	if ev.Forced && ev.Source == SourceSchedule {
		return Decision{Triggered: true, Reason: "scheduled forced deploy"}
	}

	if ev.Branch != f.branch {
		return Decision{Reason: fmt.Sprintf("branch %q does not match %q", ev.Branch, f.branch)}
	}
	if ev.Forced {
		return Decision{Triggered: true, Reason: "forced deploy"}
	}

	for _, raw := range ev.ChangedPaths {
		p := NormalizePath(raw)
		if p == "" {
			continue
		}
		for _, pattern := range f.patterns {
			if ok, _ := doublestar.Match(pattern, p); ok {
				return Decision{Triggered: true, Reason: fmt.Sprintf("path %q matches %q", p, pattern), MatchedPath: p}
			}
		}
	}
	return Decision{Reason: "no changed path matches trigger patterns"}
}

// Branch returns the configured branch.
func (f *Filter) Branch() string { return f.branch }

// Patterns returns a copy of the configured glob patterns.
func (f *Filter) Patterns() []string {
	out := make([]string, len(f.patterns))
	copy(out, f.patterns)
	return out
}

// NormalizePath canonicalizes a repository-relative path for matching:
// slash separators, no leading "./" or "/", NFC-composed unicode. Git
// reports paths slash-separated already; NFC guards against decomposed
// forms coming in from macOS filesystems via the watch source.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	return norm.NFC.String(p)
}
