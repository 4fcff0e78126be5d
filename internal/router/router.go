// Package router classifies incoming task text as a skill task or a
// self-improvement request. Classification is keyword based and deliberately
// fuzzy; the rule table is an explicit ordered structure so tie-break
// behavior stays deterministic and testable.
package router

import (
	"sort"
	"strings"

	"taskforge/internal/logging"
	"taskforge/internal/types"
)

// Tier orders rule groups. Self-improvement rules are always checked before
// skill-task rules regardless of keyword length.
type Tier int

const (
	TierSelfImprovement Tier = iota
	TierSkillTask
)

// Rule is one entry of the classification table: a keyword set, the category
// it selects, and an optional parameter extractor run on a match.
type Rule struct {
	Name     string
	Tier     Tier
	Keywords []string
	Category types.TaskCategory
	Extract  func(text string) map[string][]string
}

// Classification is the router's output: the selected category plus any
// extracted parameters (for self-improvement, the mentioned components).
type Classification struct {
	Category   types.TaskCategory
	Rule       string
	Matched    string // the keyword that won
	Components []string
}

// Components the self-improvement extractor recognizes. These are the
// addressable parts of the system; names of registered evolution modules are
// appended at construction time.
var baseComponents = []string{
	"router",
	"synthesizer",
	"sandbox",
	"store",
	"memory",
	"evolution",
	"developer",
}

var selfImprovementKeywords = []string{
	"improve", "upgrade", "enhance", "optimize", "optimise",
	"refactor", "speed up", "evolve", "fix bug", "debug yourself",
	"make yourself", "add skill", "add capability", "learn to",
}

// Router holds the ordered rule table.
type Router struct {
	rules      []Rule
	components []string
}

// New builds a Router with the default rule table. extraComponents extends
// the static component list (typically with registered module ids).
func New(extraComponents ...string) *Router {
	components := append(append([]string{}, baseComponents...), extraComponents...)

	r := &Router{components: components}
	r.rules = []Rule{
		{
			Name:     "self_improvement",
			Tier:     TierSelfImprovement,
			Keywords: selfImprovementKeywords,
			Category: types.CategorySelfImprovement,
			Extract:  r.extractComponents,
		},
		{
			Name:     "math",
			Tier:     TierSkillTask,
			Keywords: []string{"calculate", "math", "multiplied", "divided", "plus", "minus", "times"},
			Category: types.CategorySkillTask,
		},
		{
			Name:     "disk_space",
			Tier:     TierSkillTask,
			Keywords: []string{"disk space", "disk usage", "storage", "disk"},
			Category: types.CategorySkillTask,
		},
		{
			Name:     "list_files",
			Tier:     TierSkillTask,
			Keywords: []string{"list files", "list the files", "show files"},
			Category: types.CategorySkillTask,
		},
		{
			Name:     "analyze_dir",
			Tier:     TierSkillTask,
			Keywords: []string{"analyze dir", "analyze directory", "analyse dir"},
			Category: types.CategorySkillTask,
		},
		{
			Name:     "system_info",
			Tier:     TierSkillTask,
			Keywords: []string{"system info", "system", "whoami", "hostname", "uptime", "status"},
			Category: types.CategorySkillTask,
		},
		{
			Name:     "web_search",
			Tier:     TierSkillTask,
			Keywords: []string{"search", "google", "look up", "find info", "what is", "research"},
			Category: types.CategorySkillTask,
		},
		{
			Name:     "file_create",
			Tier:     TierSkillTask,
			Keywords: []string{"create file", "write file", "make file"},
			Category: types.CategorySkillTask,
		},
	}
	return r
}

// Classify runs the rule table against text. Rules are evaluated a tier at a
// time; within a tier the rule whose matched keyword is longest wins. When
// nothing matches, the category degrades to skill_task so the synthesizer's
// own catalog (including its unsupported stub) gets the final say.
func (r *Router) Classify(text string) Classification {
	lowered := strings.ToLower(text)

	for _, tier := range []Tier{TierSelfImprovement, TierSkillTask} {
		best, bestKeyword := r.matchTier(lowered, tier)
		if best == nil {
			continue
		}
		cls := Classification{
			Category: best.Category,
			Rule:     best.Name,
			Matched:  bestKeyword,
		}
		if best.Extract != nil {
			params := best.Extract(lowered)
			cls.Components = params["components"]
		}
		logging.Router("classified %q as %s (rule=%s keyword=%q)",
			text, cls.Category, cls.Rule, cls.Matched)
		return cls
	}

	// No rule matched. Not an error: degrade to the default category.
	logging.RouterDebug("no rule matched %q, defaulting to skill_task", text)
	return Classification{Category: types.CategorySkillTask, Rule: "default"}
}

// matchTier returns the rule in a tier whose matched keyword is the longest,
// along with that keyword. Ties break toward the earlier rule in the table.
func (r *Router) matchTier(lowered string, tier Tier) (*Rule, string) {
	var best *Rule
	var bestKeyword string
	for i := range r.rules {
		rule := &r.rules[i]
		if rule.Tier != tier {
			continue
		}
		for _, kw := range rule.Keywords {
			if strings.Contains(lowered, kw) && len(kw) > len(bestKeyword) {
				best = rule
				bestKeyword = kw
			}
		}
	}
	return best, bestKeyword
}

// extractComponents returns the component names mentioned in the text.
// Finding none yields an empty list, never an error.
func (r *Router) extractComponents(lowered string) map[string][]string {
	var found []string
	for _, c := range r.components {
		if strings.Contains(lowered, c) {
			found = append(found, c)
		}
	}
	sort.Strings(found)
	return map[string][]string{"components": found}
}

// Components exposes the static component list for diagnostics.
func (r *Router) Components() []string {
	out := make([]string, len(r.components))
	copy(out, r.components)
	return out
}
