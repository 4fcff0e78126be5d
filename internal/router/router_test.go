package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"taskforge/internal/types"
)

func TestClassifySkillTasks(t *testing.T) {
	r := New()
	cases := []struct {
		name string
		text string
		rule string
	}{
		{"math", "Calculate 100 * 25 for me", "math"},
		{"disk", "How much disk space is left?", "disk_space"},
		{"list", "List files in /tmp please", "list_files"},
		{"system", "Give me a system info summary", "system_info"},
		{"search", "Search for Go concurrency patterns", "web_search"},
		{"create", "Create file named notes.txt", "file_create"},
		{"analyze", "Analyze directory /var/log", "analyze_dir"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cls := r.Classify(tc.text)
			require.Equal(t, types.CategorySkillTask, cls.Category)
			require.Equal(t, tc.rule, cls.Rule)
			require.NotEmpty(t, cls.Matched)
		})
	}
}

func TestSelfImprovementTierWinsOverSkillKeywords(t *testing.T) {
	r := New()
	// "optimize" and "storage" both appear; the self-improvement tier is
	// checked first, so keyword length never enters into it.
	cls := r.Classify("Optimize how you use storage")
	require.Equal(t, types.CategorySelfImprovement, cls.Category)
	require.Equal(t, "self_improvement", cls.Rule)
	require.Equal(t, "optimize", cls.Matched)
}

func TestLongestKeywordWinsWithinTier(t *testing.T) {
	r := New()
	// "disk" (disk_space) and "list files" (list_files) both match;
	// the longer keyword decides.
	cls := r.Classify("list files on the disk")
	require.Equal(t, "list_files", cls.Rule)
	require.Equal(t, "list files", cls.Matched)
}

func TestClassifyIsCaseInsensitive(t *testing.T) {
	r := New()
	require.Equal(t, r.Classify("CALCULATE 2 + 2").Rule, r.Classify("calculate 2 + 2").Rule)
}

func TestComponentExtraction(t *testing.T) {
	r := New()
	cls := r.Classify("Improve the router and the sandbox")
	require.Equal(t, types.CategorySelfImprovement, cls.Category)
	require.Equal(t, []string{"router", "sandbox"}, cls.Components)
}

func TestComponentExtractionFindsRegisteredModules(t *testing.T) {
	r := New("reportbuilder", "activitydedup")
	cls := r.Classify("Speed up reportbuilder")
	require.Equal(t, types.CategorySelfImprovement, cls.Category)
	require.Equal(t, []string{"reportbuilder"}, cls.Components)
}

func TestComponentExtractionMayBeEmpty(t *testing.T) {
	r := New()
	cls := r.Classify("Improve yourself")
	require.Equal(t, types.CategorySelfImprovement, cls.Category)
	require.Empty(t, cls.Components)
}

func TestUnmatchedTextDefaultsToSkillTask(t *testing.T) {
	r := New()
	cls := r.Classify("Compose a symphony in D minor")
	require.Equal(t, types.CategorySkillTask, cls.Category)
	require.Equal(t, "default", cls.Rule)
	require.Empty(t, cls.Matched)
}
