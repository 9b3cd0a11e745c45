package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndGetRun(t *testing.T) {
	store := memStore(t)
	ctx := context.Background()
	started := time.Now().Truncate(time.Second)

	require.NoError(t, store.RecordStart(ctx, Run{
		ID: "run-1", Branch: "master", Commit: "abc123", Source: "webhook",
		Status: "running", StartedAt: started,
	}))
	require.NoError(t, store.RecordStep(ctx, "run-1", StepRecord{Name: "checkout", DurationMS: 1200}))
	require.NoError(t, store.RecordStep(ctx, "run-1", StepRecord{Name: "provision", DurationMS: 300}))
	require.NoError(t, store.RecordFinish(ctx, "run-1", "succeeded", "", started.Add(time.Minute)))

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", run.Status)
	assert.Empty(t, run.FailedStep)
	assert.Equal(t, started.Unix(), run.StartedAt.Unix())
	require.Len(t, run.Steps, 2)
	assert.Equal(t, "checkout", run.Steps[0].Name)
	assert.Equal(t, "provision", run.Steps[1].Name)
}

func TestRecordFailedRun(t *testing.T) {
	store := memStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordStart(ctx, Run{
		ID: "run-2", Branch: "master", Commit: "def456", Source: "cli",
		Status: "running", StartedAt: time.Now(),
	}))
	require.NoError(t, store.RecordStep(ctx, "run-2", StepRecord{Name: "install", DurationMS: 900, Error: "unresolvable dependency"}))
	require.NoError(t, store.RecordFinish(ctx, "run-2", "failed", "install", time.Now()))

	run, err := store.GetRun(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, "failed", run.Status)
	assert.Equal(t, "install", run.FailedStep)
	require.Len(t, run.Steps, 1)
	assert.Equal(t, "unresolvable dependency", run.Steps[0].Error)
}

func TestGetRunNotFound(t *testing.T) {
	store := memStore(t)
	_, err := store.GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordFinishUnknownRun(t *testing.T) {
	store := memStore(t)
	err := store.RecordFinish(context.Background(), "nope", "failed", "", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLatestRunPerBranch(t *testing.T) {
	store := memStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		require.NoError(t, store.RecordStart(ctx, Run{
			ID: id, Branch: "master", Commit: "c", Source: "webhook",
			Status: "running", StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.RecordStart(ctx, Run{
		ID: "run-other", Branch: "dev", Commit: "c", Source: "webhook",
		Status: "running", StartedAt: base.Add(time.Hour),
	}))

	latest, err := store.LatestRun(ctx, "master")
	require.NoError(t, err)
	assert.Equal(t, "run-c", latest.ID)

	_, err = store.LatestRun(ctx, "unknown-branch")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	store := memStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"run-1", "run-2", "run-3"} {
		require.NoError(t, store.RecordStart(ctx, Run{
			ID: id, Branch: "master", Commit: "c", Source: "schedule",
			Status: "succeeded", StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].ID)
	assert.Equal(t, "run-2", runs[1].ID)
}
