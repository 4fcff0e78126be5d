package evolution

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"taskforge/internal/logging"
)

// Rewriter turns analysis findings into a candidate source. Each rewrite is
// anchored on the text it transforms: when an earlier rewrite has already
// consumed a finding's anchor, the later one is skipped rather than applied
// blind. Findings on disjoint regions therefore combine; colliding findings
// resolve to the highest priority one.
type Rewriter struct{}

func NewRewriter() *Rewriter { return &Rewriter{} }

// Apply produces a candidate from source. It returns the candidate and the
// findings actually applied; an empty applied slice means no rewrite
// anchored and the source is returned unchanged.
func (r *Rewriter) Apply(source string, findings []finding) (string, []finding) {
	ordered := make([]finding, 0, len(findings))
	for _, f := range findings {
		if f.rewritable {
			ordered = append(ordered, f)
		}
	}
	sortFindings(ordered)

	candidate := source
	var applied []finding
	for _, f := range ordered {
		next, ok := r.applyOne(source, candidate, f)
		if !ok {
			continue
		}
		candidate = next
		applied = append(applied, f)
		logging.Evolution("rewrite applied: %s", f.pattern)
	}
	return candidate, applied
}

func sortFindings(fs []finding) {
	sort.Slice(fs, func(i, j int) bool {
		if fs[i].priority != fs[j].priority {
			return fs[i].priority < fs[j].priority
		}
		return fs[i].pos.Line < fs[j].pos.Line
	})
}

func (r *Rewriter) applyOne(original, candidate string, f finding) (string, bool) {
	switch f.pattern {
	case PatternNestedScan:
		return rewriteNestedScan(original, candidate, f)
	case PatternStoreInLoop:
		return rewriteStoreInLoop(candidate, f)
	case PatternConcatInLoop:
		return rewriteConcatInLoop(candidate, f)
	case PatternRepeatedCall:
		return rewriteRepeatedCall(candidate, f)
	}
	return candidate, false
}

// rewriteNestedScan replaces the whole outer loop with an index built from
// the inner collection followed by a single counted scan. The index keeps
// occurrence counts so a duplicated inner element still triggers the hit
// once per occurrence, exactly as the nested scan did.
func rewriteNestedScan(original, candidate string, f finding) (string, bool) {
	span := sourceSpan(original, f.pos.Line, f.end.Line)
	if span == "" || !strings.Contains(candidate, span) {
		return candidate, false
	}
	indent := leadingIndent(span)
	idx := f.innerVar + "Index"
	count := f.innerVar + "Count"
	var sb strings.Builder
	w := func(depth int, line string) {
		sb.WriteString(indent + strings.Repeat("\t", depth) + line + "\n")
	}
	w(0, fmt.Sprintf("%s := make(map[string]int, len(%s))", idx, f.innerColl))
	w(0, fmt.Sprintf("for _, %s := range %s {", f.innerVar, f.innerColl))
	w(1, fmt.Sprintf("%s[%s]++", idx, f.innerVar))
	w(0, "}")
	w(0, fmt.Sprintf("for _, %s := range %s {", f.outerVar, f.outerColl))
	w(1, fmt.Sprintf("for %s := %s[%s]; %s > 0; %s-- {", count, idx, f.outerVar, count, count))
	for _, line := range strings.Split(f.hitStmt, "\n") {
		w(2, strings.TrimSpace(line))
	}
	w(1, "}")
	w(0, "}")
	replacement := strings.TrimSuffix(sb.String(), "\n")
	return strings.Replace(candidate, span, replacement, 1), true
}

// rewriteStoreInLoop collects per-item writes into a pending slice and
// flushes it once through the batch method after the loop.
func rewriteStoreInLoop(candidate string, f finding) (string, bool) {
	batch := batchable[f.methodName]
	callRe := regexp.MustCompile(
		`(?m)^(\s*)` + regexp.QuoteMeta(f.recvName) + `\.` + f.methodName + `\((.+)\)$`)
	loc := callRe.FindStringSubmatchIndex(candidate)
	if loc == nil {
		return candidate, false
	}
	pending := f.recvName + "Pending"
	candidate = callRe.ReplaceAllString(candidate,
		"${1}"+pending+" = append("+pending+", ${2})")

	// Declare before the loop and flush after it, using the loop span.
	lines := strings.Split(candidate, "\n")
	loopStart, loopEnd := findLoopSpan(lines, pending)
	if loopStart < 0 {
		return candidate, false
	}
	indent := leadingIndent(lines[loopStart])
	decl := indent + "var " + pending + " []string"
	flush := indent + f.recvName + "." + batch + "(" + pending + ")"

	var out []string
	out = append(out, lines[:loopStart]...)
	out = append(out, decl)
	out = append(out, lines[loopStart:loopEnd+1]...)
	out = append(out, flush)
	out = append(out, lines[loopEnd+1:]...)
	return strings.Join(out, "\n"), true
}

// findLoopSpan locates the innermost for statement whose body mentions
// marker, returning its start and closing-brace line indexes.
func findLoopSpan(lines []string, marker string) (int, int) {
	markerAt := -1
	for i, line := range lines {
		if strings.Contains(line, marker) {
			markerAt = i
			break
		}
	}
	if markerAt < 0 {
		return -1, -1
	}
	start := -1
	for i := markerAt; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, "for ") && strings.HasSuffix(trimmed, "{") {
			start = i
			break
		}
	}
	if start < 0 {
		return -1, -1
	}
	depth := 0
	for i := start; i < len(lines); i++ {
		depth += strings.Count(lines[i], "{") - strings.Count(lines[i], "}")
		if depth == 0 {
			return start, i
		}
	}
	return -1, -1
}

// rewriteConcatInLoop converts an empty-string accumulator grown by += into
// a parts slice joined once at the return site.
func rewriteConcatInLoop(candidate string, f finding) (string, bool) {
	v := f.varName
	parts := v + "Parts"
	declRe := regexp.MustCompile(`(?m)^(\s*)` + regexp.QuoteMeta(v) + ` := ""$`)
	if !declRe.MatchString(candidate) {
		return candidate, false
	}
	candidate = declRe.ReplaceAllString(candidate, "${1}var "+parts+" []string")

	addRe := regexp.MustCompile(`(?m)^(\s*)` + regexp.QuoteMeta(v) + ` \+= (.+)$`)
	candidate = addRe.ReplaceAllString(candidate, "${1}"+parts+" = append("+parts+", ${2})")

	retRe := regexp.MustCompile(`(?m)^(\s*)return ` + regexp.QuoteMeta(v) + `$`)
	candidate = retRe.ReplaceAllString(candidate,
		"${1}return strings.Join("+parts+", \"\")")
	return ensureImport(candidate, "strings"), true
}

// rewriteRepeatedCall hoists an argument-free call into a local assigned at
// the top of the enclosing function.
func rewriteRepeatedCall(candidate string, f finding) (string, bool) {
	if strings.Count(candidate, f.callText) < 2 {
		return candidate, false
	}
	memo := strings.TrimSuffix(f.callText, "()") + "Once"

	headRe := regexp.MustCompile(`(?m)^func ` + regexp.QuoteMeta(f.varName) + `\(.*\{$`)
	loc := headRe.FindStringIndex(candidate)
	if loc == nil {
		return candidate, false
	}
	bodyStart := loc[1]
	bodyEnd := matchingBrace(candidate, bodyStart)
	if bodyEnd < 0 {
		return candidate, false
	}

	body := candidate[bodyStart:bodyEnd]
	if strings.Count(body, f.callText) < 2 {
		return candidate, false
	}
	body = strings.ReplaceAll(body, f.callText, memo)
	body = "\n\t" + memo + " := " + f.callText + body
	return candidate[:bodyStart] + body + candidate[bodyEnd:], true
}

// matchingBrace returns the index just before the brace closing the block
// whose body starts at from (the character after the opening brace).
func matchingBrace(s string, from int) int {
	depth := 1
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func sourceSpan(source string, startLine, endLine int) string {
	lines := strings.Split(source, "\n")
	if startLine < 1 || endLine > len(lines) || startLine > endLine {
		return ""
	}
	return strings.Join(lines[startLine-1:endLine], "\n")
}

func leadingIndent(s string) string {
	line := s
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		line = s[:i]
	}
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

// ensureImport adds pkg to the source's import set when missing.
func ensureImport(source, pkg string) string {
	quoted := `"` + pkg + `"`
	if strings.Contains(source, quoted) {
		return source
	}
	if i := strings.Index(source, "import ("); i >= 0 {
		insert := i + len("import (")
		return source[:insert] + "\n\t" + quoted + source[insert:]
	}
	singleRe := regexp.MustCompile(`(?m)^import ("[^"]+")$`)
	if loc := singleRe.FindStringSubmatch(source); loc != nil {
		return singleRe.ReplaceAllString(source,
			"import (\n\t"+quoted+"\n\t$1\n)")
	}
	pkgRe := regexp.MustCompile(`(?m)^(package \w+\n)`)
	return pkgRe.ReplaceAllString(source, "${1}\nimport "+quoted+"\n")
}
