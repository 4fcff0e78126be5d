package evolution

import (
	"fmt"
	"strings"
)

// Seed is one module the engine manages from first boot. The sources are
// deliberately naive first drafts: each carries at least one of the
// inefficiency patterns the analyzer knows, so the engine has real work to
// do against real code rather than synthetic fixtures.
type Seed struct {
	ID      string
	Source  string
	Battery []string
}

// SeedModules returns the built-in module set.
func SeedModules() []Seed {
	return []Seed{
		{ID: "activitydedup", Source: activityDedupSource, Battery: dedupBattery()},
		{ID: "reportbuilder", Source: reportBuilderSource, Battery: reportBattery()},
		{ID: "journalsync", Source: journalSyncSource, Battery: journalBattery()},
	}
}

// RegisterSeeds installs every seed module at generation zero.
func RegisterSeeds(reg *Registry) error {
	for _, s := range SeedModules() {
		if err := reg.Register(s.ID, s.Source, 0, s.Battery); err != nil {
			return err
		}
	}
	return nil
}

// dedupBattery builds inputs with a large overlap between both sides so the
// quadratic inner scan dominates.
func dedupBattery() []string {
	var left, right []string
	for i := 0; i < 120; i++ {
		left = append(left, fmt.Sprintf("activity%03d", i))
		right = append(right, fmt.Sprintf("activity%03d", i+40))
	}
	return []string{strings.Join(left, ",") + "|" + strings.Join(right, ",")}
}

func reportBattery() []string {
	items := make([]string, 200)
	for i := range items {
		items[i] = fmt.Sprintf(" entry number %03d ", i)
	}
	return []string{strings.Join(items, ",")}
}

func journalBattery() []string {
	entries := make([]string, 150)
	for i := range entries {
		entries[i] = fmt.Sprintf(" sync record %03d ", i)
	}
	return []string{strings.Join(entries, ",")}
}

// activityDedupSource intersects two comma-separated activity lists
// separated by "|". The nested scan is the naive part.
const activityDedupSource = `package main

import "strings"

func Process(input string) string {
	parts := strings.Split(input, "|")
	if len(parts) != 2 {
		return ""
	}
	left := strings.Split(parts[0], ",")
	right := strings.Split(parts[1], ",")
	var shared []string
	for _, a := range left {
		for _, b := range right {
			if a == b {
				shared = append(shared, a)
			}
		}
	}
	return strings.Join(shared, ",")
}

func SelfTest() error {
	got := Process("walk,swim,read|read,swim,code")
	if got != "swim,read" {
		return &selfTestError{got: got, want: "swim,read"}
	}
	if Process("broken") != "" {
		return &selfTestError{got: Process("broken"), want: ""}
	}
	return nil
}

type selfTestError struct {
	got, want string
}

func (e *selfTestError) Error() string {
	return "self test: got " + e.got + ", want " + e.want
}
`

// reportBuilderSource renders a comma-separated item list as a report with
// a header and footer. String concatenation in the loop and the repeated
// header() call are the naive parts.
const reportBuilderSource = `package main

import (
	"fmt"
	"strings"
)

func header() string {
	return "== activity report =="
}

func Process(input string) string {
	items := strings.Split(input, ",")
	report := ""
	report += header() + "\n"
	for _, item := range items {
		report += fmt.Sprintf("- %s\n", strings.TrimSpace(item))
	}
	report += header() + "\n"
	return report
}

func SelfTest() error {
	got := Process("alpha, beta")
	want := "== activity report ==\n- alpha\n- beta\n== activity report ==\n"
	if got != want {
		return fmt.Errorf("self test: got %q, want %q", got, want)
	}
	return nil
}
`

// journalSyncSource appends trimmed entries to a journal. The per-item
// Write round-trip inside the loop is the naive part; WriteAll is the batch
// path the rewrite should reach for.
const journalSyncSource = `package main

import "strings"

type journal struct {
	lines []string
}

func (j *journal) Write(line string) {
	j.lines = append(j.lines, line)
}

func (j *journal) WriteAll(lines []string) {
	j.lines = append(j.lines, lines...)
}

func (j *journal) dump() string {
	return strings.Join(j.lines, "\n")
}

func Process(input string) string {
	entries := strings.Split(input, ",")
	j := &journal{}
	for _, e := range entries {
		j.Write(strings.TrimSpace(e))
	}
	return j.dump()
}

func SelfTest() error {
	got := Process(" one , two ")
	if got != "one\ntwo" {
		return &badOutput{got: got}
	}
	return nil
}

type badOutput struct {
	got string
}

func (e *badOutput) Error() string {
	return "self test: unexpected output " + e.got
}
`
