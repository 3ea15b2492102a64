package journal

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	query string
	args  []any
}

type fakeExecer struct {
	calls    []execCall
	failures int
}

func (f *fakeExecer) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: query, args: args})
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset")
	}
	return nil, nil
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeExecer{}
	require.NoError(t, New(db).EnsureSchema(context.Background()))
	require.Len(t, db.calls, 1)
	require.Contains(t, db.calls[0].query, "CREATE TABLE IF NOT EXISTS index_builds")
}

func TestRecordRunningBuildHasNullFinish(t *testing.T) {
	db := &fakeExecer{}
	id := uuid.New()
	err := New(db).Record(context.Background(), Run{
		ID:         id,
		DataDir:    "data/index",
		SplitLevel: 1,
		Status:     StatusRunning,
		StartedAt:  time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, db.calls, 1)

	args := db.calls[0].args
	require.Equal(t, id.String(), args[0])
	require.Equal(t, "running", args[3])
	require.False(t, args[9].(sql.NullTime).Valid)
	require.False(t, args[10].(sql.NullString).Valid)
	require.True(t, strings.Contains(db.calls[0].query, "ON CONFLICT (id) DO UPDATE"))
}

func TestRecordRetriesTransientFailures(t *testing.T) {
	db := &fakeExecer{failures: 2}
	j := New(db)
	j.retry.InitialDelay = time.Millisecond

	err := j.Record(context.Background(), Run{ID: uuid.New(), Status: StatusFailed, Error: "boom", FinishedAt: time.Now()})
	require.NoError(t, err)
	require.Len(t, db.calls, 3)
	require.Equal(t, sql.NullString{String: "boom", Valid: true}, db.calls[2].args[10])
}

func TestRecordGivesUp(t *testing.T) {
	db := &fakeExecer{failures: 10}
	j := New(db)
	j.retry.InitialDelay = time.Millisecond

	err := j.Record(context.Background(), Run{ID: uuid.New()})
	require.ErrorContains(t, err, "connection reset")
	require.Len(t, db.calls, 3)
}
