package evolution

import (
	"context"
	"fmt"
	"time"

	"taskforge/internal/logging"
	"taskforge/internal/types"
)

// Stage names an engine state. A modification attempt moves strictly
// forward through them; the terminal stage is committing or rolling back.
type Stage string

const (
	StageAnalyzing    Stage = "analyzing"
	StageSnapshotting Stage = "snapshotting"
	StageRewriting    Stage = "rewriting"
	StageValidating   Stage = "validating"
	StageBenchmarking Stage = "benchmarking"
	StageCommitting   Stage = "committing"
	StageRollingBack  Stage = "rolling_back"
)

// VerdictAnalysisOnly is the outcome when analysis found nothing the
// rewriter could act on. No ledger entry is written because no modification
// was attempted.
const VerdictAnalysisOnly = "analysis_only"

// Ledger is the slice of the persistent store the engine writes through:
// pre-rewrite snapshots, the append-only performance ledger, and the
// committed active source per module.
type Ledger interface {
	Snapshot(moduleID, source string) (types.ModuleSnapshot, error)
	AppendRecord(rec types.PerformanceRecord) error
	SaveModule(moduleID string, generation int, source string) error
}

// Config tunes the engine's commit policy.
type Config struct {
	// CommitMargin is the fraction by which the candidate must beat the
	// current version, e.g. 0.05 for five percent.
	CommitMargin float64
	// GenerationLimit caps how many committed generations one Evolve call
	// may produce.
	GenerationLimit int
	// BenchIterations is how many times the battery runs per measurement.
	BenchIterations int
	// TargetMetric stops the autonomous loop early once a committed
	// generation reaches it (ns/op, 0 disables the target).
	TargetMetric float64
}

// Engine drives self-modification: analyze, snapshot, rewrite, validate,
// benchmark, then commit or roll back. The module's registry entry is held
// exclusively for the whole cycle, so nothing ever executes against a
// half-written module and the active version only changes by atomic swap.
type Engine struct {
	reg      *Registry
	ledger   Ledger
	analyzer *Analyzer
	rewriter *Rewriter
	loader   *Loader
	bench    *Benchmarker
	cfg      Config
}

// NewEngine wires an engine over the given registry and ledger store.
func NewEngine(reg *Registry, ledger Ledger, loader *Loader, cfg Config) *Engine {
	if cfg.CommitMargin <= 0 {
		cfg.CommitMargin = 0.05
	}
	if cfg.GenerationLimit <= 0 {
		cfg.GenerationLimit = 5
	}
	return &Engine{
		reg:      reg,
		ledger:   ledger,
		analyzer: NewAnalyzer(),
		rewriter: NewRewriter(),
		loader:   loader,
		bench:    NewBenchmarker(cfg.BenchIterations),
		cfg:      cfg,
	}
}

// Analyze reports findings for a module without modifying anything.
func (e *Engine) Analyze(moduleID string) ([]types.AnalysisFinding, error) {
	source, err := e.reg.Source(moduleID)
	if err != nil {
		return nil, err
	}
	fs, err := e.analyzer.Analyze(moduleID, source)
	if err != nil {
		return nil, err
	}
	return e.analyzer.Public(moduleID, fs), nil
}

// ImproveCycle runs one full modification attempt against moduleID. Every
// attempt that reaches the snapshot stage appends exactly one
// PerformanceRecord, commit or rollback alike.
func (e *Engine) ImproveCycle(ctx context.Context, moduleID string) (types.ModificationOutcome, error) {
	guard, err := e.reg.TryBeginModification(moduleID)
	if err != nil {
		return types.ModificationOutcome{}, err
	}
	defer guard.Release()

	timer := logging.StartTimer(logging.CategoryEvolution, "improve cycle "+moduleID)
	defer timer.Stop()

	source, generation := guard.Current()

	// Analyzing.
	findings, err := e.analyzer.Analyze(moduleID, source)
	if err != nil {
		return types.ModificationOutcome{}, err
	}
	if !anyRewritable(findings) {
		logging.Evolution("%s: nothing rewritable, leaving generation %d alone", moduleID, generation)
		return types.ModificationOutcome{
			ModuleID:   moduleID,
			Generation: generation,
			Verdict:    VerdictAnalysisOnly,
			Detail:     fmt.Sprintf("%d finding(s), none rewritable", len(findings)),
		}, nil
	}

	// Snapshotting. The snapshot is taken before any mutation so rollback
	// always has a known-good source to assert against.
	snap, err := e.ledger.Snapshot(moduleID, source)
	if err != nil {
		return types.ModificationOutcome{}, fmt.Errorf("snapshotting %s: %w", moduleID, err)
	}

	// Rewriting. A finding can be rewritable yet fail to anchor in the
	// actual source text; the snapshot already consumed a generation, so
	// the attempt is recorded as a rollback rather than analysis-only.
	candidate, applied := e.rewriter.Apply(source, findings)
	if len(applied) == 0 || candidate == source {
		return e.rollback(moduleID, snap, 0, 0, string(StageRewriting), "no rewrite anchored")
	}

	// Validating.
	candidateVersion, failure := e.loader.Validate(candidate)
	if failure != nil {
		logging.Evolution("%s: candidate rejected at %s stage: %v", moduleID, failure.Stage, failure.Cause)
		return e.rollback(moduleID, snap, 0, 0, failure.Stage, failure.Error())
	}

	// Benchmarking. Both versions run the same battery in this process.
	battery, err := e.reg.Battery(moduleID)
	if err != nil {
		return types.ModificationOutcome{}, err
	}
	current, err := e.loader.Load(source)
	if err != nil {
		return types.ModificationOutcome{}, fmt.Errorf("reloading current %s: %w", moduleID, err)
	}
	before, err := e.bench.Measure(ctx, current, battery)
	if err != nil {
		return e.rollback(moduleID, snap, 0, 0, "benchmark", err.Error())
	}
	after, err := e.bench.Measure(ctx, candidateVersion, battery)
	if err != nil {
		return e.rollback(moduleID, snap, before, 0, "benchmark", err.Error())
	}

	rec := types.PerformanceRecord{
		ModuleID:     moduleID,
		Generation:   snap.Generation,
		BeforeMetric: before,
		AfterMetric:  after,
		Timestamp:    time.Now(),
	}
	if !rec.Improved(e.cfg.CommitMargin) {
		detail := fmt.Errorf("%w: %.0fns/op -> %.0fns/op, margin %.0f%%",
			types.ErrPerformanceRegression, before, after, e.cfg.CommitMargin*100)
		return e.rollback(moduleID, snap, before, after, "benchmark", detail.Error())
	}

	// Committing.
	candidateVersion.Generation = snap.Generation
	guard.Swap(candidateVersion)
	rec.Verdict = types.VerdictCommit
	if err := e.ledger.AppendRecord(rec); err != nil {
		return types.ModificationOutcome{}, fmt.Errorf("recording commit for %s: %w", moduleID, err)
	}
	if err := e.ledger.SaveModule(moduleID, snap.Generation, candidate); err != nil {
		return types.ModificationOutcome{}, fmt.Errorf("persisting %s: %w", moduleID, err)
	}
	logging.Evolution("%s: committed generation %d (%.0fns/op -> %.0fns/op)",
		moduleID, snap.Generation, before, after)
	return types.ModificationOutcome{
		ModuleID:     moduleID,
		Generation:   snap.Generation,
		Verdict:      string(types.VerdictCommit),
		BeforeMetric: before,
		AfterMetric:  after,
		Detail:       appliedSummary(applied),
	}, nil
}

// rollback leaves the active version untouched, records the failed attempt,
// and reports the stage that killed it.
func (e *Engine) rollback(moduleID string, snap types.ModuleSnapshot, before, after float64, stage, detail string) (types.ModificationOutcome, error) {
	rec := types.PerformanceRecord{
		ModuleID:     moduleID,
		Generation:   snap.Generation,
		BeforeMetric: before,
		AfterMetric:  after,
		Verdict:      types.VerdictRollback,
		FailingStage: stage,
		Timestamp:    time.Now(),
	}
	if err := e.ledger.AppendRecord(rec); err != nil {
		return types.ModificationOutcome{}, fmt.Errorf("recording rollback for %s: %w", moduleID, err)
	}
	logging.Evolution("%s: rolled back at %s stage", moduleID, stage)
	return types.ModificationOutcome{
		ModuleID:     moduleID,
		Generation:   snap.Generation,
		Verdict:      string(types.VerdictRollback),
		FailingStage: stage,
		BeforeMetric: before,
		AfterMetric:  after,
		Detail:       detail,
	}, nil
}

// Evolve runs improvement cycles on a module until analysis finds nothing
// rewritable, a cycle rolls back, or the generation limit is reached.
func (e *Engine) Evolve(ctx context.Context, moduleID string) ([]types.ModificationOutcome, error) {
	var outcomes []types.ModificationOutcome
	for i := 0; i < e.cfg.GenerationLimit; i++ {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		out, err := e.ImproveCycle(ctx, moduleID)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, out)
		if out.Verdict != string(types.VerdictCommit) {
			break
		}
		if e.cfg.TargetMetric > 0 && out.AfterMetric <= e.cfg.TargetMetric {
			logging.Evolution("%s: target metric reached (%.0fns/op)", moduleID, out.AfterMetric)
			break
		}
	}
	return outcomes, nil
}

func anyRewritable(fs []finding) bool {
	for _, f := range fs {
		if f.rewritable {
			return true
		}
	}
	return false
}

func appliedSummary(applied []finding) string {
	names := make([]string, 0, len(applied))
	for _, f := range applied {
		names = append(names, f.pattern)
	}
	return fmt.Sprintf("applied: %v", names)
}
