package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"taskforge/internal/config"
	"taskforge/internal/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Workspace = t.TempDir()
	cfg.Evolution.BenchIterations = 1
	cfg.Evolution.GenerationLimit = 1

	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestProcessMathTaskAndReuse(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Process(ctx, "Calculate 100 * 25")
	require.NoError(t, err)
	require.NotNil(t, first.Skill)
	require.Nil(t, first.Self)
	require.Equal(t, types.CategorySkillTask, first.Task.Category)
	require.Equal(t, "calculate 100 * 25", first.Task.Signature)
	require.False(t, first.Skill.SkillReused)
	require.Contains(t, first.Skill.Stdout, "2500")
	require.Equal(t, 0, first.Skill.ExitStatus)

	second, err := e.Process(ctx, "calculate 100 * 25")
	require.NoError(t, err)
	require.True(t, second.Skill.SkillReused, "same signature must hit the skill cache")
	require.Contains(t, second.Skill.Stdout, "2500")

	skills, err := e.Skills()
	require.NoError(t, err)
	require.Len(t, skills, 1)
	require.Equal(t, "calculate 100 * 25", skills[0].Signature)
	require.Equal(t, 2, skills[0].UseCount)
	require.Equal(t, 2, skills[0].SuccessCount)
}

func TestProcessWhitespaceVariantsShareOneSkill(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Process(ctx, "Calculate 8 * 4")
	require.NoError(t, err)
	res, err := e.Process(ctx, "  calculate   8 * 4!  ")
	require.NoError(t, err)
	require.True(t, res.Skill.SkillReused)

	skills, err := e.Skills()
	require.NoError(t, err)
	require.Len(t, skills, 1)
}

func TestProcessUnsupportedTaskIsNeverCached(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Process(context.Background(), "Compose a symphony in D minor")
	require.NoError(t, err)
	require.NotNil(t, res.Skill)
	require.True(t, res.Skill.Unsupported)
	require.Contains(t, res.Skill.Stdout, "unsupported task")

	skills, err := e.Skills()
	require.NoError(t, err)
	require.Empty(t, skills, "unsupported stubs must not enter the skill table")

	// The attempt is still audited.
	execs, err := e.Executions(10)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	require.Equal(t, types.ResultUnsupported, execs[0].Kind)
}

func TestProcessSelfImprovementTargetsNamedModule(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.Process(context.Background(), "Optimize the reportbuilder module")
	require.NoError(t, err)
	require.Nil(t, res.Skill)
	require.NotNil(t, res.Self)
	require.Equal(t, types.CategorySelfImprovement, res.Task.Category)
	require.Contains(t, res.Self.Analysis.Components, "reportbuilder")
	require.NotEmpty(t, res.Self.Analysis.Findings)
	require.NotEmpty(t, res.Self.ResearchPlan.Sources)
	require.Len(t, res.Self.LearningPlan.Phases, 6)
	require.NotEmpty(t, res.Self.Outcomes)
	for _, out := range res.Self.Outcomes {
		require.Equal(t, "reportbuilder", out.ModuleID)
	}

	// The attempt reached the benchmark stage, so the ledger has a record
	// whichever way the verdict went.
	hist, err := e.History("reportbuilder")
	require.NoError(t, err)
	require.Len(t, hist, 1)
}

func TestProcessEmptyTextFails(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Process(context.Background(), "   ")
	require.Error(t, err)
}

func TestReplayArchivedArtifact(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Process(ctx, "Calculate 50 * 50")
	require.NoError(t, err)

	archived, err := e.Archived(10)
	require.NoError(t, err)
	require.Len(t, archived, 1)

	replay, err := e.Replay(ctx, archived[0].Key)
	require.NoError(t, err)
	require.Equal(t, types.ResultOK, replay.Kind)
	require.Contains(t, replay.Output, "2500")

	// Replays never touch the skill table.
	skills, err := e.Skills()
	require.NoError(t, err)
	require.Len(t, skills, 1)
	require.Equal(t, 1, skills[0].UseCount)
}

func TestCommittedGenerationsSurviveRestart(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Workspace = t.TempDir()
	cfg.Evolution.BenchIterations = 1
	cfg.Evolution.GenerationLimit = 1

	first, err := New(cfg)
	require.NoError(t, err)
	res, err := first.Process(context.Background(), "optimize activitydedup")
	require.NoError(t, err)
	require.NotEmpty(t, res.Self.Outcomes)
	require.Equal(t, "commit", res.Self.Outcomes[0].Verdict)
	require.NoError(t, first.Close())

	second, err := New(cfg)
	require.NoError(t, err)
	defer second.Close()

	require.Equal(t, 1, second.Modules()["activitydedup"])
	source, err := second.ModuleSource("activitydedup")
	require.NoError(t, err)
	require.Contains(t, source, "bIndex", "the committed rewrite must survive the restart")
}

func TestModulesStartAtGenerationZero(t *testing.T) {
	e := newTestEngine(t)
	mods := e.Modules()
	require.Len(t, mods, 3)
	for id, gen := range mods {
		require.Equal(t, 0, gen, "module %s", id)
	}
}

func TestInvokeRegisteredModule(t *testing.T) {
	e := newTestEngine(t)
	out, err := e.Invoke("activitydedup", "walk,swim|swim,code")
	require.NoError(t, err)
	require.Equal(t, "swim", out)

	_, err = e.Invoke("nosuch", "x")
	require.Error(t, err)
}
