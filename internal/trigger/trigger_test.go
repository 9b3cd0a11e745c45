package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docsdeploy/internal/config"
)

func docsFilter(t *testing.T) *Filter {
	t.Helper()
	f, err := NewFilter(config.TriggerConfig{
		Branch: "master",
		Paths:  []string{"docs/**", "docs/mkdocs.yml", "docsdeploy.yaml"},
	})
	require.NoError(t, err)
	return f
}

func TestEvaluateDocsChangeTriggers(t *testing.T) {
	f := docsFilter(t)
	d := f.Evaluate(PushEvent{
		Branch:       "master",
		Commit:       "abc123",
		ChangedPaths: []string{"docs/intro.md"},
	})
	assert.True(t, d.Triggered)
	assert.Equal(t, "docs/intro.md", d.MatchedPath)
}

func TestEvaluateNestedDocsPath(t *testing.T) {
	f := docsFilter(t)
	d := f.Evaluate(PushEvent{
		Branch:       "master",
		ChangedPaths: []string{"docs/guides/setup/install.md"},
	})
	assert.True(t, d.Triggered, "** must match across directory levels")
}

func TestEvaluateOutsidePathsIgnored(t *testing.T) {
	f := docsFilter(t)
	d := f.Evaluate(PushEvent{
		Branch:       "master",
		ChangedPaths: []string{"src/main.c", "Makefile"},
	})
	assert.False(t, d.Triggered)
	assert.Empty(t, d.MatchedPath)
}

func TestEvaluateWrongBranchIgnored(t *testing.T) {
	f := docsFilter(t)
	d := f.Evaluate(PushEvent{
		Branch:       "work-feature",
		ChangedPaths: []string{"docs/intro.md"},
	})
	assert.False(t, d.Triggered, "docs change on a non-default branch must not trigger")
}

func TestEvaluateConfigFileTriggers(t *testing.T) {
	f := docsFilter(t)
	d := f.Evaluate(PushEvent{
		Branch:       "master",
		ChangedPaths: []string{"docsdeploy.yaml"},
	})
	assert.True(t, d.Triggered, "the pipeline's own config is part of the trigger surface")
}

func TestEvaluateForced(t *testing.T) {
	f := docsFilter(t)

	d := f.Evaluate(PushEvent{Branch: "master", Forced: true, Source: SourceCLI})
	assert.True(t, d.Triggered, "forced event on the right branch triggers without paths")

	d = f.Evaluate(PushEvent{Branch: "other", Forced: true, Source: SourceCLI})
	assert.False(t, d.Triggered, "forced CLI event still requires the branch to match")

	d = f.Evaluate(PushEvent{Forced: true, Source: SourceSchedule})
	assert.True(t, d.Triggered, "scheduled deploys carry no branch and always run")
}

func TestEvaluateEmptyChangeSet(t *testing.T) {
	f := docsFilter(t)
	d := f.Evaluate(PushEvent{Branch: "master"})
	assert.False(t, d.Triggered)
}

func TestNilFilterRejects(t *testing.T) {
	var f *Filter
	assert.False(t, f.Evaluate(PushEvent{Branch: "master", ChangedPaths: []string{"docs/a.md"}}).Triggered)
}

func TestNewFilterRejectsBadPattern(t *testing.T) {
	_, err := NewFilter(config.TriggerConfig{Branch: "master", Paths: []string{"docs/["}})
	require.Error(t, err)
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"docs/intro.md":    "docs/intro.md",
		"./docs/intro.md":  "docs/intro.md",
		"/docs/intro.md":   "docs/intro.md",
		"docs\\intro.md":   "docs/intro.md",
		" docs/intro.md ":  "docs/intro.md",
		"docs/café.md": "docs/café.md", // NFD composed to NFC
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePath(in), "%q", in)
	}
}
