package state_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlglider/sqlglider/internal/state"
	"github.com/sqlglider/sqlglider/internal/testutil"
)

func openStore(t *testing.T) *state.Store {
	t.Helper()
	s := state.NewStore(testutil.NewTestLogger(t))
	require.NoError(t, s.Open(":memory:"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndGetBuild(t *testing.T) {
	s := openStore(t)

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := &state.BuildRecord{
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Dialect:    "spark",
		Files:      3,
		Statements: 12,
		Nodes:      40,
		Edges:      55,
		Skipped:    2,
		Failures:   1,
		GraphPath:  "out/graph.json",
	}
	id, err := s.RecordBuild(rec)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)

	got, err := s.GetBuild(id)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestGetBuildMissing(t *testing.T) {
	s := openStore(t)

	_, err := s.GetBuild(99)
	assert.ErrorContains(t, err, "build not found")
}

func TestRecentBuildsNewestFirst(t *testing.T) {
	s := openStore(t)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := s.RecordBuild(&state.BuildRecord{
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
			Dialect:    "spark",
			Files:      i + 1,
		})
		require.NoError(t, err)
	}

	builds, err := s.RecentBuilds(2)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.Equal(t, 3, builds[0].Files)
	assert.Equal(t, 2, builds[1].Files)

	all, err := s.RecentBuilds(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestOpenCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "state.db")
	s := state.NewStore(nil)
	require.NoError(t, s.Open(path))
	defer s.Close()

	_, err := s.RecordBuild(&state.BuildRecord{
		StartedAt:  time.Now().UTC(),
		FinishedAt: time.Now().UTC(),
		Dialect:    "ansi",
	})
	assert.NoError(t, err)
}

func TestUnopenedStoreErrors(t *testing.T) {
	s := state.NewStore(nil)
	_, err := s.RecordBuild(&state.BuildRecord{})
	assert.ErrorContains(t, err, "not opened")
	_, err = s.RecentBuilds(10)
	assert.ErrorContains(t, err, "not opened")
}
