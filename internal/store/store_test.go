package store

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskforge/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "forge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSkillLifecycle(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.Lookup("calculate 100 * 25")
	require.NoError(t, err)
	assert.False(t, ok, "lookup before record should miss")

	params := map[string]string{"a": "100", "op": "*", "b": "25"}
	require.NoError(t, s.RecordSkill("calculate 100 * 25", "math", "package main", params))

	sk, ok, err := s.Lookup("calculate 100 * 25")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "math", sk.TemplateID)
	assert.Equal(t, 1, sk.UseCount)
	assert.Equal(t, 1, sk.SuccessCount)
	assert.Equal(t, params, sk.Params)
}

func TestSkillFirstWriteWins(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordSkill("sig", "math", "original source", map[string]string{"a": "1"}))
	// Second record with different template/source must not overwrite, only
	// bump counters.
	require.NoError(t, s.RecordSkill("sig", "other", "different source", map[string]string{"a": "2"}))

	sk, ok, err := s.Lookup("sig")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "math", sk.TemplateID)
	assert.Equal(t, "original source", sk.Source)
	assert.Equal(t, map[string]string{"a": "1"}, sk.Params)
	assert.Equal(t, 2, sk.UseCount)
	assert.Equal(t, 2, sk.SuccessCount)
}

func TestSkillFailureKeepsEntry(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordSkill("sig", "math", "src", nil))
	require.NoError(t, s.RecordSkillFailure("sig"))
	require.NoError(t, s.RecordSkillFailure("sig"))

	sk, ok, err := s.Lookup("sig")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, sk.FailureCount)
	assert.Equal(t, 1, sk.SuccessCount)
}

func TestSnapshotGenerationsStrictlyIncrease(t *testing.T) {
	s := newTestStore(t)

	first, err := s.Snapshot("reportbuilder", "source v1")
	require.NoError(t, err)
	second, err := s.Snapshot("reportbuilder", "source v2")
	require.NoError(t, err)
	other, err := s.Snapshot("activitydedup", "other source")
	require.NoError(t, err)

	assert.Equal(t, 1, first.Generation)
	assert.Equal(t, 2, second.Generation)
	assert.Equal(t, 1, other.Generation, "generations are per module id")

	snap, ok, err := s.GetSnapshot("reportbuilder", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "source v1", snap.Source, "snapshots are immutable")

	gen, err := s.LatestGeneration("reportbuilder")
	require.NoError(t, err)
	assert.Equal(t, 2, gen)
}

func TestSaveModuleUpserts(t *testing.T) {
	s := newTestStore(t)

	_, _, found, err := s.GetModule("reportbuilder")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SaveModule("reportbuilder", 1, "source v1"))
	require.NoError(t, s.SaveModule("reportbuilder", 2, "source v2"))

	gen, source, found, err := s.GetModule("reportbuilder")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, gen, "later commits replace the active row")
	assert.Equal(t, "source v2", source)
}

func TestLedgerAppendAndHistory(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AppendRecord(types.PerformanceRecord{
		ModuleID: "m", Generation: 1, BeforeMetric: 1000, AfterMetric: 800,
		Verdict: types.VerdictCommit,
	}))
	require.NoError(t, s.AppendRecord(types.PerformanceRecord{
		ModuleID: "m", Generation: 2, BeforeMetric: 800, AfterMetric: 900,
		Verdict: types.VerdictRollback, FailingStage: "benchmark",
	}))

	hist, err := s.History("m")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, types.VerdictCommit, hist[0].Verdict)
	assert.Equal(t, "benchmark", hist[1].FailingStage)
}

func TestLedgerWriteFailureSurfacesStorageError(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "forge.db")
	s, err := Open(dbPath)
	require.NoError(t, err)

	require.NoError(t, s.AppendRecord(types.PerformanceRecord{
		ModuleID: "m", Generation: 1, BeforeMetric: 1000, AfterMetric: 800,
		Verdict: types.VerdictCommit,
	}))

	// A closed database fails both the write and its retry.
	require.NoError(t, s.Close())
	err = s.AppendRecord(types.PerformanceRecord{
		ModuleID: "m", Generation: 2, Verdict: types.VerdictRollback, FailingStage: "benchmark",
	})
	var storageErr *types.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "append_record", storageErr.Op)

	// Prior records are untouched by the failed attempt.
	s, err = Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	hist, err := s.History("m")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 1, hist[0].Generation)
	assert.Equal(t, types.VerdictCommit, hist[0].Verdict)
}

func TestLedgerCompaction(t *testing.T) {
	s := newTestStore(t)

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.AppendRecord(types.PerformanceRecord{
			ModuleID: "m", Generation: i, Verdict: types.VerdictRollback, FailingStage: "syntax",
		}))
	}
	removed, err := s.CompactLedger("m", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	hist, err := s.History("m")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 4, hist[0].Generation)
	assert.Equal(t, 5, hist[1].Generation)
}

func TestArchiveRoundTrip(t *testing.T) {
	s := newTestStore(t)

	key, err := s.ArchiveArtifact("artifact-1", "math", "package main\n")
	require.NoError(t, err)
	require.NotEmpty(t, key)

	a, ok, err := s.GetArchived(key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "artifact-1", a.ArtifactID)
	assert.Equal(t, "package main\n", a.Source)

	list, err := s.ListArchived(10)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestExecutionAuditRecordsFailuresToo(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordExecution(types.ExecutionResult{
		ArtifactID: "a1", Kind: types.ResultOK, Output: "2500", ExitStatus: 0,
	}))
	require.NoError(t, s.RecordExecution(types.ExecutionResult{
		ArtifactID: "a2", Kind: types.ResultTimeout, Output: "partial", Error: "killed", ExitStatus: 1,
	}))

	execs, err := s.Executions(10)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	// Newest first.
	assert.Equal(t, types.ResultTimeout, execs[0].Kind)
	assert.Equal(t, "partial", execs[0].Output)
}

func TestConcurrentReadersWithWriter(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordSkill("sig", "math", "src", nil))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, _, err := s.Lookup("sig")
				assert.NoError(t, err)
			}
		}()
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, s.RecordSkill("sig", "math", "src", nil))
	}
	wg.Wait()
}
