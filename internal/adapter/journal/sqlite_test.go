package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain"
)

func newTestJournal(t *testing.T) *SQLite {
	t.Helper()
	j, err := New(filepath.Join(t.TempDir(), "journal.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func record(requestID string, createdAt time.Time) domain.DispatchRecord {
	return domain.DispatchRecord{
		RequestID:  requestID,
		Prompt:     "refactor this",
		Intent:     "refactor",
		AgentName:  "refactor",
		AgentKind:  domain.KindRefactor,
		Confidence: 0.9,
		Status:     domain.StatusSucceeded,
		Message:    "ok",
		Duration:   42 * time.Millisecond,
		CreatedAt:  createdAt,
	}
}

func TestRecordAndRecent(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, j.Record(ctx, record("req-1", now.Add(-2*time.Second))))
	require.NoError(t, j.Record(ctx, record("req-2", now.Add(-time.Second))))
	require.NoError(t, j.Record(ctx, record("req-3", now)))

	records, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first.
	assert.Equal(t, "req-3", records[0].RequestID)
	assert.Equal(t, "req-2", records[1].RequestID)
	assert.Equal(t, domain.KindRefactor, records[0].AgentKind)
	assert.Equal(t, domain.StatusSucceeded, records[0].Status)
	assert.Equal(t, 42*time.Millisecond, records[0].Duration)
	assert.Equal(t, now, records[0].CreatedAt)
}

func TestRecordAssignsID(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, record("req-1", time.Now())))
	require.NoError(t, j.Record(ctx, record("req-2", time.Now())))

	records, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.NotEmpty(t, records[0].ID)
	assert.NotEqual(t, records[0].ID, records[1].ID)
}

func TestPruneBefore(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, j.Record(ctx, record("old-1", now.Add(-48*time.Hour))))
	require.NoError(t, j.Record(ctx, record("old-2", now.Add(-25*time.Hour))))
	require.NoError(t, j.Record(ctx, record("fresh", now)))

	removed, err := j.PruneBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	records, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "fresh", records[0].RequestID)

	// Pruning again removes nothing.
	removed, err = j.PruneBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRecentEmptyJournal(t *testing.T) {
	j := newTestJournal(t)

	records, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
