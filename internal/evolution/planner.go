package evolution

import (
	"fmt"
	"strings"
	"time"

	"taskforge/internal/types"
)

// Planner builds the research and learning plans that accompany a
// self-improvement result. The plans are descriptive artifacts: they record
// where knowledge for the improvement would come from and the order the
// work would happen in, while the engine itself only acts on its local
// pattern catalog.
type Planner struct{}

func NewPlanner() *Planner { return &Planner{} }

// BuildResearchPlan derives prioritized knowledge sources from the task
// text.
func (p *Planner) BuildResearchPlan(task string) types.ResearchPlan {
	topic := strings.TrimSpace(task)
	return types.ResearchPlan{
		Task: topic,
		Sources: []types.ResearchSource{
			{
				Name:     "google_search",
				Query:    fmt.Sprintf("how to implement %s best practices", topic),
				Priority: "high",
				Type:     "web_search",
			},
			{
				Name:     "stack_overflow",
				Query:    fmt.Sprintf("%s implementation examples", topic),
				Priority: "high",
				Type:     "web_search",
			},
			{
				Name:     "github_search",
				Query:    fmt.Sprintf("%s open source implementation", topic),
				Priority: "medium",
				Type:     "code_search",
			},
		},
		Extraction: []string{
			"Common implementation patterns",
			"Required dependencies and modules",
			"Typical pitfalls and edge cases",
			"Performance considerations",
		},
		Objectives: []string{
			fmt.Sprintf("Understand the core concepts behind %s", topic),
			"Identify which existing modules need modification",
			"Determine validation criteria for the change",
		},
	}
}

// BuildLearningPlan lays out the ordered phases an improvement moves
// through, plus the module-level changes the findings call for.
func (p *Planner) BuildLearningPlan(task string, analysis types.SelfAnalysis) types.LearningPlan {
	var changes []types.CodeChange
	for _, f := range analysis.Findings {
		kind := "refactor"
		if !f.Rewritable {
			kind = "investigate"
		}
		changes = append(changes, types.CodeChange{
			Module:      f.ModuleID,
			Kind:        kind,
			Description: f.Rewrite,
		})
	}

	return types.LearningPlan{
		Task: strings.TrimSpace(task),
		Phases: []types.LearningPhase{
			{Name: "research", Description: "Gather knowledge from the planned sources"},
			{Name: "analysis", Description: "Locate the modules and patterns the change touches"},
			{Name: "design", Description: "Decide the concrete rewrite for each finding"},
			{Name: "implementation", Description: "Produce candidate sources from the current generation"},
			{Name: "testing", Description: "Validate syntax, load, and self-tests, then benchmark against the battery"},
			{Name: "integration", Description: "Commit improved candidates or roll back to the snapshot"},
		},
		CodeChanges: changes,
		TestingPoints: []string{
			"Candidate parses and loads in the interpreter",
			"Module self-test passes on the candidate",
			"Benchmark beats the current generation by the commit margin",
		},
		RollbackPlan: "Discard the candidate and keep the snapshotted source; the active version is only replaced after all checks pass",
		CreatedAt:    time.Now(),
	}
}
