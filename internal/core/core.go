// Package core wires the full pipeline together: router, skill store,
// synthesizer, sandbox and the self-modification engine behind one Process
// entry point. The CLI and the inbox watcher both sit on top of this
// package and nothing else.
package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"taskforge/internal/config"
	"taskforge/internal/evolution"
	"taskforge/internal/logging"
	"taskforge/internal/router"
	"taskforge/internal/sandbox"
	"taskforge/internal/signature"
	"taskforge/internal/store"
	"taskforge/internal/synth"
	"taskforge/internal/types"
)

// Result is the outcome of one processed task. Exactly one of Skill and
// Self is set, matching the task's category.
type Result struct {
	Task  types.Task                   `json:"task"`
	Skill *types.SkillTaskResult       `json:"skill_task,omitempty"`
	Self  *types.SelfImprovementResult `json:"self_improvement,omitempty"`
}

// Engine owns every subsystem. One Engine serves concurrent Process calls;
// the store serializes writes and the evolution registry serializes
// per-module modification internally.
type Engine struct {
	cfg     *config.Config
	router  *router.Router
	synth   *synth.Synthesizer
	runner  *sandbox.Runner
	store   *store.Store
	reg     *evolution.Registry
	evo     *evolution.Engine
	planner *evolution.Planner
}

// New boots an Engine from cfg: opens the store, seeds the evolution
// registry, and builds the router with the registered module ids as
// addressable components.
func New(cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath()), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	loader := evolution.NewLoader()
	reg := evolution.NewRegistry(loader)
	if err := registerModules(st, reg); err != nil {
		st.Close()
		return nil, err
	}

	evo := evolution.NewEngine(reg, st, loader, evolution.Config{
		CommitMargin:    cfg.Evolution.CommitMargin,
		GenerationLimit: cfg.Evolution.GenerationLimit,
		BenchIterations: cfg.Evolution.BenchIterations,
		TargetMetric:    cfg.Evolution.TargetMetric,
	})

	e := &Engine{
		cfg:    cfg,
		router: router.New(reg.Modules()...),
		synth: synth.New(synth.Options{
			BaseDir:    cfg.Synth.BaseDir,
			DiskVolume: cfg.Synth.DiskVolume,
		}),
		runner: sandbox.New(sandbox.Config{
			Timeout:        cfg.GetSandboxTimeout(),
			MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
		}, st),
		store:   st,
		reg:     reg,
		evo:     evo,
		planner: evolution.NewPlanner(),
	}
	logging.Boot("engine up: %d modules, %d templates", len(reg.Modules()), len(e.synth.TemplateIDs()))
	return e, nil
}

// registerModules installs each module at its last committed generation
// when one is persisted, falling back to the built-in seed source. A
// persisted source that no longer loads also falls back, so a bad commit
// can never brick the boot.
func registerModules(st *store.Store, reg *evolution.Registry) error {
	for _, seed := range evolution.SeedModules() {
		gen, source, found, err := st.GetModule(seed.ID)
		if err != nil {
			return err
		}
		if found {
			if err := reg.Register(seed.ID, source, gen, seed.Battery); err == nil {
				logging.Boot("module %s restored at generation %d", seed.ID, gen)
				continue
			}
			logging.Boot("module %s: persisted generation %d no longer loads, reseeding", seed.ID, gen)
		}
		if err := reg.Register(seed.ID, seed.Source, 0, seed.Battery); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the store.
func (e *Engine) Close() error { return e.store.Close() }

// Process takes one raw instruction end to end. Classification never
// fails: unknown text degrades to a skill task and, past the synthesizer's
// catalog, to the unsupported stub.
func (e *Engine) Process(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, fmt.Errorf("empty task text")
	}

	cls := e.router.Classify(text)
	task := types.Task{
		Raw:       text,
		Signature: signature.Normalize(text),
		Category:  cls.Category,
	}
	logging.Core("task %q -> %s", task.Signature, task.Category)

	if cls.Category == types.CategorySelfImprovement {
		self, err := e.improve(ctx, text, cls.Components)
		if err != nil {
			return Result{}, err
		}
		return Result{Task: task, Self: self}, nil
	}

	skill, err := e.runSkillTask(ctx, task)
	if err != nil {
		return Result{}, err
	}
	return Result{Task: task, Skill: skill}, nil
}

// runSkillTask resolves an artifact for the task, from the skill cache when
// possible, and executes it in the sandbox. A cache hit rebuilds from the
// stored template id and parameters without touching the synthesizer's
// matching logic.
func (e *Engine) runSkillTask(ctx context.Context, task types.Task) (*types.SkillTaskResult, error) {
	var art synth.Artifact
	reused := false

	if skill, found, err := e.store.Lookup(task.Signature); err != nil {
		return nil, err
	} else if found {
		if rebuilt, ok := e.synth.Rebuild(skill.TemplateID, skill.Params); ok {
			art = rebuilt
			reused = true
			logging.Core("skill cache hit for %q (template %s, used %d times)",
				task.Signature, skill.TemplateID, skill.UseCount)
		} else {
			logging.Core("skill for %q names unknown template %s, resynthesizing",
				task.Signature, skill.TemplateID)
		}
	}
	if !reused {
		art = e.synth.Synthesize(task.Raw)
	}

	res := e.runner.Run(ctx, art, task.Signature)
	return &types.SkillTaskResult{
		Category:    task.Category,
		SkillReused: reused,
		Unsupported: res.Kind == types.ResultUnsupported,
		Stdout:      res.Output,
		ExitStatus:  res.ExitStatus,
		DurationMS:  res.Duration.Milliseconds(),
	}, nil
}

// improve runs the self-improvement path: analyze the addressed modules,
// build the research and learning plans, then attempt modification cycles.
// Naming no component targets every registered module.
func (e *Engine) improve(ctx context.Context, text string, components []string) (*types.SelfImprovementResult, error) {
	targets := e.moduleTargets(components)

	analysis := types.SelfAnalysis{Components: components}
	for _, id := range targets {
		findings, err := e.evo.Analyze(id)
		if err != nil {
			return nil, err
		}
		analysis.Findings = append(analysis.Findings, findings...)
	}

	result := &types.SelfImprovementResult{
		Category:     types.CategorySelfImprovement,
		Analysis:     analysis,
		ResearchPlan: e.planner.BuildResearchPlan(text),
		LearningPlan: e.planner.BuildLearningPlan(text, analysis),
	}

	// Modules evolve independently (each holds its own registry lock), so
	// multi-module requests run in parallel. Outcomes keep target order.
	perTarget := make([][]types.ModificationOutcome, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range targets {
		i, id := i, id
		g.Go(func() error {
			outcomes, err := e.evo.Evolve(gctx, id)
			perTarget[i] = outcomes
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, outcomes := range perTarget {
		result.Outcomes = append(result.Outcomes, outcomes...)
	}
	return result, nil
}

// moduleTargets maps mentioned components onto registered module ids.
func (e *Engine) moduleTargets(components []string) []string {
	if len(components) == 0 {
		return e.reg.Modules()
	}
	var targets []string
	for _, c := range components {
		if e.reg.Has(c) {
			targets = append(targets, c)
		}
	}
	if len(targets) == 0 {
		return e.reg.Modules()
	}
	return targets
}

// Skills lists every cached skill.
func (e *Engine) Skills() ([]types.Skill, error) { return e.store.Skills() }

// History returns the performance ledger for one module, append order.
func (e *Engine) History(moduleID string) ([]types.PerformanceRecord, error) {
	return e.store.History(moduleID)
}

// Executions returns the most recent sandbox runs, newest first.
func (e *Engine) Executions(limit int) ([]types.ExecutionResult, error) {
	return e.store.Executions(limit)
}

// Modules reports each registered module's id and active generation.
func (e *Engine) Modules() map[string]int {
	out := map[string]int{}
	for _, id := range e.reg.Modules() {
		if gen, err := e.reg.Generation(id); err == nil {
			out[id] = gen
		}
	}
	return out
}

// ModuleSource returns a module's active source.
func (e *Engine) ModuleSource(moduleID string) (string, error) {
	return e.reg.Source(moduleID)
}

// Invoke runs a registered module directly.
func (e *Engine) Invoke(moduleID, input string) (string, error) {
	return e.reg.Invoke(moduleID, input)
}

// Replay re-executes an archived artifact through the interpreter lane.
// Replays are ad hoc runs: audited, never written to the skill table.
func (e *Engine) Replay(ctx context.Context, key string) (types.ExecutionResult, error) {
	art, found, err := e.store.GetArchived(key)
	if err != nil {
		return types.ExecutionResult{}, err
	}
	if !found {
		return types.ExecutionResult{}, fmt.Errorf("no archived artifact %q", key)
	}
	return e.runner.Replay(ctx, art.ArtifactID, art.TemplateID, art.Source), nil
}

// Archived lists archived artifacts, newest first.
func (e *Engine) Archived(limit int) ([]store.ArchivedArtifact, error) {
	return e.store.ListArchived(limit)
}
