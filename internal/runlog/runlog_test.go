package runlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sidekick/internal/db"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	d, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.Migrate())
	return NewStore(d)
}

func TestRecordAndRecent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"aaaa1111", "bbbb2222", "cccc3333"} {
		require.NoError(t, s.Record(ctx, Run{
			ID:         id,
			Label:      "label " + id,
			Task:       "task " + id,
			Status:     "completed",
			Result:     "done",
			Iterations: i + 1,
			Channel:    "cli",
			ChatID:     "direct",
			StartedAt:  base,
			FinishedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "cccc3333", runs[0].ID)
	assert.Equal(t, "bbbb2222", runs[1].ID)
	assert.Equal(t, 3, runs[0].Iterations)
	assert.Equal(t, 2*time.Minute, runs[0].Duration())
}

func TestRecordUpsert(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	run := Run{ID: "abc", Label: "l", Task: "t", Status: "errored", Result: "Error: x", Channel: "cli", ChatID: "direct", StartedAt: now, FinishedAt: now}
	require.NoError(t, s.Record(ctx, run))
	run.Status = "completed"
	run.Result = "ok"
	require.NoError(t, s.Record(ctx, run))

	runs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "completed", runs[0].Status)
	assert.Equal(t, "ok", runs[0].Result)
}

func TestRecentEmpty(t *testing.T) {
	runs, err := newStore(t).Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
