// Package types holds the shared data model for taskforge: tasks, skills,
// artifacts, execution results, module snapshots and the performance ledger.
// Keeping these here avoids import cycles between the router, synthesizer,
// sandbox, store and evolution packages.
package types

import (
	"time"
)

// TaskCategory is the router's verdict for an incoming task.
type TaskCategory string

const (
	CategorySkillTask       TaskCategory = "skill_task"
	CategorySelfImprovement TaskCategory = "self_improvement"
)

// Task is an ephemeral view of one incoming instruction. Tasks are never
// persisted; only the Skill derived from a successful run is.
type Task struct {
	Raw       string
	Signature string
	Category  TaskCategory
}

// Skill is a persisted, reusable synthesized program plus usage metadata.
// At most one Skill exists per signature.
type Skill struct {
	Signature    string
	TemplateID   string
	Source       string
	Params       map[string]string // extracted template parameters, replayed on reuse
	CreatedAt    time.Time
	LastUsed     time.Time
	UseCount     int
	SuccessCount int
	FailureCount int
}

// ResultKind classifies the outcome of one sandbox execution.
type ResultKind string

const (
	ResultOK          ResultKind = "ok"
	ResultTimeout     ResultKind = "sandbox_timeout"
	ResultExecError   ResultKind = "sandbox_execution_error"
	ResultUnsupported ResultKind = "unsupported"
)

// ExecutionResult records one sandbox run. Immutable once recorded; archived
// for audit whether the run succeeded or not.
type ExecutionResult struct {
	ArtifactID string
	Signature  string // empty for ad hoc / unsupported artifacts
	TemplateID string
	Kind       ResultKind
	Output     string // combined stdout+stderr; partial output on timeout
	Error      string // captured trace text on failure
	ExitStatus int
	Duration   time.Duration
	Timestamp  time.Time
}

// Succeeded reports whether the execution completed without error or timeout.
func (r ExecutionResult) Succeeded() bool {
	return r.Kind == ResultOK && r.ExitStatus == 0
}

// ModuleSnapshot is an immutable copy of a module's source taken immediately
// before a modification attempt. Generations are strictly increasing per
// module id.
type ModuleSnapshot struct {
	ModuleID   string
	Generation int
	Source     string
	Timestamp  time.Time
}

// Verdict is the terminal outcome of one self-modification attempt.
type Verdict string

const (
	VerdictCommit   Verdict = "commit"
	VerdictRollback Verdict = "rollback"
)

// PerformanceRecord is one append-only ledger entry per modification attempt.
type PerformanceRecord struct {
	ModuleID     string
	Generation   int
	BeforeMetric float64 // ns per battery operation
	AfterMetric  float64
	Verdict      Verdict
	FailingStage string // set only on rollback
	Timestamp    time.Time
}

// Improved reports whether the after metric beat the before metric by at
// least margin (a fraction, e.g. 0.05 for 5%). Lower is better.
func (p PerformanceRecord) Improved(margin float64) bool {
	if p.BeforeMetric <= 0 {
		return false
	}
	return p.AfterMetric < p.BeforeMetric*(1.0-margin)
}

// SkillTaskResult is the boundary output for the skill path.
type SkillTaskResult struct {
	Category    TaskCategory `json:"category"`
	SkillReused bool         `json:"skill_reused"`
	Unsupported bool         `json:"unsupported,omitempty"`
	Stdout      string       `json:"stdout"`
	ExitStatus  int          `json:"exit_status"`
	DurationMS  int64        `json:"duration_ms"`
}

// ResearchSource is one entry of a research plan.
type ResearchSource struct {
	Name     string `json:"name"`
	Query    string `json:"query"`
	Priority string `json:"priority"`
	Type     string `json:"type"`
}

// ResearchPlan lists where knowledge for an improvement would come from.
type ResearchPlan struct {
	Task       string           `json:"task"`
	Sources    []ResearchSource `json:"research_sources"`
	Extraction []string         `json:"knowledge_extraction_points"`
	Objectives []string         `json:"learning_objectives"`
}

// LearningPhase is one ordered phase of a learning plan.
type LearningPhase struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CodeChange names a file-level change the learning plan calls for.
type CodeChange struct {
	Module      string `json:"module"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

// LearningPlan is the ordered implementation plan derived from research.
type LearningPlan struct {
	Task          string          `json:"task"`
	Phases        []LearningPhase `json:"phases"`
	CodeChanges   []CodeChange    `json:"code_changes_needed"`
	TestingPoints []string        `json:"testing_points"`
	RollbackPlan  string          `json:"rollback_plan"`
	CreatedAt     time.Time       `json:"created_at"`
}

// AnalysisFinding is one detected inefficiency in a module's source.
type AnalysisFinding struct {
	Pattern     string `json:"pattern"`
	ModuleID    string `json:"module_id"`
	Line        int    `json:"line"`
	EndLine     int    `json:"end_line"`
	Detail      string `json:"detail"`
	Rewrite     string `json:"rewrite"`
	Expected    string `json:"expected_effect"`
	Priority    int    `json:"priority"` // lower is higher priority
	Rewritable  bool   `json:"rewritable"`
}

// SelfAnalysis summarizes the engine's look at the mentioned components.
type SelfAnalysis struct {
	Components []string          `json:"components"`
	Findings   []AnalysisFinding `json:"findings"`
}

// ModificationOutcome reports what the engine did about one module.
type ModificationOutcome struct {
	ModuleID     string  `json:"module_id"`
	Generation   int     `json:"generation,omitempty"`
	Verdict      string  `json:"verdict"` // commit | rollback | analysis_only
	FailingStage string  `json:"failing_stage,omitempty"`
	BeforeMetric float64 `json:"before_metric,omitempty"`
	AfterMetric  float64 `json:"after_metric,omitempty"`
	Detail       string  `json:"detail,omitempty"`
}

// SelfImprovementResult is the boundary output for the self-improvement path.
type SelfImprovementResult struct {
	Category     TaskCategory          `json:"category"`
	Analysis     SelfAnalysis          `json:"analysis"`
	ResearchPlan ResearchPlan          `json:"research_plan"`
	LearningPlan LearningPlan          `json:"learning_plan"`
	Outcomes     []ModificationOutcome `json:"modification_outcome"`
}
