package job

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphrag/internal/config"
	"graphrag/internal/graphmodel"
	"graphrag/internal/storage/kv"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	store, err := kv.NewJSONFile(t.TempDir())
	require.NoError(t, err)
	tr, err := New(store, config.JobConfig{})
	require.NoError(t, err)
	return tr
}

func TestStartThenGetReturnsQueuedJob(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	id, jobCtx, err := tr.Start(ctx, "ingest")
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, jobCtx.Err())

	j, ok, err := tr.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, graphmodel.JobQueued, j.Status)
	assert.Equal(t, "ingest", j.Kind)
}

func TestUpdatePhaseMarksRunning(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)
	id, _, err := tr.Start(ctx, "ingest")
	require.NoError(t, err)

	require.NoError(t, tr.UpdatePhase(ctx, id, "chunking 2/5"))

	j, ok, err := tr.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, graphmodel.JobRunning, j.Status)
	assert.Equal(t, "chunking 2/5", j.Phase)
}

func TestCompleteMarksSucceeded(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)
	id, _, err := tr.Start(ctx, "ingest")
	require.NoError(t, err)

	require.NoError(t, tr.Complete(ctx, id, "3 documents ingested"))

	j, ok, err := tr.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, graphmodel.JobSucceeded, j.Status)
	assert.Equal(t, "3 documents ingested", j.Result)
}

func TestFailMarksFailedWithErrorMessage(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)
	id, _, err := tr.Start(ctx, "ingest")
	require.NoError(t, err)

	require.NoError(t, tr.Fail(ctx, id, errors.New("extraction timed out")))

	j, ok, err := tr.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, graphmodel.JobFailed, j.Status)
	assert.Equal(t, "extraction timed out", j.Error)
}

func TestCancelCancelsJobContext(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)
	id, jobCtx, err := tr.Start(ctx, "ingest")
	require.NoError(t, err)

	tr.Cancel(id)

	select {
	case <-jobCtx.Done():
	default:
		t.Fatal("expected job context to be canceled")
	}
}

func TestListReturnsNewestFirst(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	id1, _, err := tr.Start(ctx, "ingest")
	require.NoError(t, err)
	id2, _, err := tr.Start(ctx, "backup")
	require.NoError(t, err)

	jobs, err := tr.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, id2, jobs[0].ID)
	assert.Equal(t, id1, jobs[1].ID)
}

func TestGetUnknownJobReturnsNotOK(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)
	_, ok, err := tr.Get(ctx, "nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}
