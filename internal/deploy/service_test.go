package deploy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docsdeploy/internal/config"
	"git.home.luguber.info/inful/docsdeploy/internal/history"
	"git.home.luguber.info/inful/docsdeploy/internal/pipeline"
	"git.home.luguber.info/inful/docsdeploy/internal/trigger"
)

// stubTools places fake interpreter, installer, and generator binaries on
// PATH so a full run executes without any real toolchain.
func stubTools(t *testing.T, pipScript string) {
	t.Helper()
	dir := t.TempDir()
	write := func(name, script string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+script), 0o755))
	}
	write("fakepython", `echo "Python 3.11.2"`)
	write("fakepip", pipScript)
	write("fakemkdocs", `out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--site-dir" ]; then out="$2"; fi
  shift
done
mkdir -p "$out"
echo "<html><body>generated</body></html>" > "$out/index.html"`)
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

const pipOK = `if [ -n "$PIP_CACHE_DIR" ]; then mkdir -p "$PIP_CACHE_DIR"; echo wheel > "$PIP_CACHE_DIR/wheel.txt"; fi`

func seedSource(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	files := map[string]string{
		"docs/intro.md":         "# Intro\n",
		"docs/requirements.txt": "mkdocs==1.5\n",
		"docs/mkdocs.yml":       "site_name: Test Docs\n",
		"src/main.c":            "int main;\n",
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	require.NoError(t, wt.AddWithOptions(&git.AddOptions{All: true}))
	sig := &object.Signature{Name: "tester", Email: "tester@localhost", When: time.Now()}
	_, err = wt.Commit("initial docs", &git.CommitOptions{Author: sig, Committer: sig})
	require.NoError(t, err)
	return dir
}

func amendSource(t *testing.T, dir, name, content string) {
	t.Helper()
	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, filepath.FromSlash(name)), []byte(content), 0o600))
	require.NoError(t, wt.AddWithOptions(&git.AddOptions{All: true}))
	sig := &object.Signature{Name: "tester", Email: "tester@localhost", When: time.Now()}
	_, err = wt.Commit("update "+name, &git.CommitOptions{Author: sig, Committer: sig})
	require.NoError(t, err)
}

func testConfig(t *testing.T, source, target string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Repository: config.RepositoryConfig{URL: source},
		Trigger:    config.TriggerConfig{Branch: "master", Paths: []string{"docs/**"}},
		Runtime:    config.RuntimeConfig{Command: "fakepython", Version: "3"},
		Cache:      config.CacheConfig{Dir: filepath.Join(t.TempDir(), "cache"), Manifest: "docs/requirements.txt"},
		Install:    config.InstallConfig{Command: "fakepip", Manifest: "docs/requirements.txt"},
		Build:      config.BuildConfig{Command: "fakemkdocs", ConfigFile: "docs/mkdocs.yml"},
		Publish:    config.PublishConfig{Branch: "gh-pages", RemoteURL: target, Force: true},
		Workspace:  config.WorkspaceConfig{Dir: t.TempDir()},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func bareTarget(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := git.PlainInit(dir, true)
	require.NoError(t, err)
	return dir
}

func memHistory(t *testing.T) *history.SQLiteStore {
	t.Helper()
	store, err := history.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestHandleEventFullRun(t *testing.T) {
	stubTools(t, pipOK)
	source := seedSource(t)
	target := bareTarget(t)
	hist := memHistory(t)

	svc, err := NewService(testConfig(t, source, target), WithHistory(hist))
	require.NoError(t, err)

	report, err := svc.HandleEvent(context.Background(), trigger.PushEvent{
		Branch:       "master",
		ChangedPaths: []string{"docs/intro.md"},
		Source:       trigger.SourceWebhook,
	})
	require.NoError(t, err)
	require.Equal(t, pipeline.StatusSucceeded, report.Status)
	assert.NotEmpty(t, report.Commit)
	assert.NotEmpty(t, report.PublishedCommit)

	// The site landed on the pages branch of the target remote.
	remote, err := git.PlainOpen(target)
	require.NoError(t, err)
	ref, err := remote.Reference(plumbing.ReferenceName("refs/heads/gh-pages"), true)
	require.NoError(t, err)
	assert.Equal(t, report.PublishedCommit, ref.Hash().String())

	// History recorded all six steps.
	run, err := hist.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, string(pipeline.StatusSucceeded), run.Status)
	require.Len(t, run.Steps, 6)
	assert.Equal(t, "checkout", run.Steps[0].Name)
	assert.Equal(t, "publish", run.Steps[5].Name)
}

func TestHandleEventIgnoredBranch(t *testing.T) {
	stubTools(t, pipOK)
	svc, err := NewService(testConfig(t, seedSource(t), bareTarget(t)))
	require.NoError(t, err)

	report, err := svc.HandleEvent(context.Background(), trigger.PushEvent{
		Branch:       "work-feature",
		ChangedPaths: []string{"docs/intro.md"},
		Source:       trigger.SourceWebhook,
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusNotTriggered, report.Status)
	assert.Empty(t, report.RunID)
}

func TestHandleEventIgnoredPaths(t *testing.T) {
	stubTools(t, pipOK)
	svc, err := NewService(testConfig(t, seedSource(t), bareTarget(t)))
	require.NoError(t, err)

	report, err := svc.HandleEvent(context.Background(), trigger.PushEvent{
		Branch:       "master",
		ChangedPaths: []string{"src/main.c"},
		Source:       trigger.SourceWebhook,
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusNotTriggered, report.Status)
}

func TestHandleEventInstallFailureHaltsPipeline(t *testing.T) {
	stubTools(t, `echo "No matching distribution found" >&2; exit 1`)
	source := seedSource(t)
	target := bareTarget(t)
	hist := memHistory(t)

	svc, err := NewService(testConfig(t, source, target), WithHistory(hist))
	require.NoError(t, err)

	report, err := svc.HandleEvent(context.Background(), trigger.PushEvent{
		Branch:       "master",
		ChangedPaths: []string{"docs/intro.md"},
		Source:       trigger.SourceWebhook,
	})
	require.Error(t, err)
	assert.Equal(t, pipeline.StatusFailed, report.Status)
	assert.Equal(t, pipeline.StepInstall, report.FailedStep)

	// Build and publish never executed: the pages branch does not exist.
	remote, err := git.PlainOpen(target)
	require.NoError(t, err)
	_, err = remote.Reference(plumbing.ReferenceName("refs/heads/gh-pages"), true)
	assert.Error(t, err)

	run, err := hist.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, "install", run.FailedStep)
	require.Len(t, run.Steps, 4, "checkout, provision, cache-restore, install")
}

func TestHandleEventRepublishReplacesSite(t *testing.T) {
	stubTools(t, pipOK)
	source := seedSource(t)
	target := bareTarget(t)

	svc, err := NewService(testConfig(t, source, target))
	require.NoError(t, err)

	ev := trigger.PushEvent{Branch: "master", ChangedPaths: []string{"docs/intro.md"}, Source: trigger.SourceCLI}
	first, err := svc.HandleEvent(context.Background(), ev)
	require.NoError(t, err)

	amendSource(t, source, "docs/intro.md", "# Intro\n\nRevised.\n")
	second, err := svc.HandleEvent(context.Background(), ev)
	require.NoError(t, err)

	require.Equal(t, pipeline.StatusSucceeded, second.Status)
	assert.NotEqual(t, first.PublishedCommit, second.PublishedCommit)

	remote, err := git.PlainOpen(target)
	require.NoError(t, err)
	ref, err := remote.Reference(plumbing.ReferenceName("refs/heads/gh-pages"), true)
	require.NoError(t, err)
	assert.Equal(t, second.PublishedCommit, ref.Hash().String(), "force-publish replaces the branch head")
}
