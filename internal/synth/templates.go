package synth

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Template ids. The catalog is checked in declaration order; first match
// wins, so the more specific families sit above the fuzzier ones.
const (
	TemplateMath       = "math"
	TemplateDiskSpace  = "disk_space"
	TemplateAnalyzeDir = "analyze_dir"
	TemplateListFiles  = "list_files"
	TemplateFileCreate = "file_create"
	TemplateSystemInfo = "system_info"
	TemplateWebSearch  = "web_search"
)

func defaultCatalog() []Template {
	// Specific path- and volume-bound families come before math: a path
	// token like /tmp/run7/001 would otherwise satisfy the numeric
	// expression pattern.
	return []Template{
		{ID: TemplateAnalyzeDir, Match: matchAnalyzeDir, Extract: extractPath, Build: buildAnalyzeDir},
		{ID: TemplateListFiles, Match: matchListFiles, Extract: extractPath, Build: buildListFiles},
		{ID: TemplateDiskSpace, Match: matchDiskSpace, Extract: extractNone, Build: buildDiskSpace},
		{ID: TemplateFileCreate, Match: matchFileCreate, Extract: extractFilename, Build: buildFileCreate},
		{ID: TemplateMath, Match: matchMath, Extract: extractMath, Build: buildMath},
		{ID: TemplateSystemInfo, Match: matchSystemInfo, Extract: extractNone, Build: buildSystemInfo},
		{ID: TemplateWebSearch, Match: matchWebSearch, Extract: extractQuery, Build: buildWebSearch},
	}
}

// =============================================================================
// PREDICATES
// =============================================================================

var mathExpr = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([+*/x×÷−-])\s*(\d+(?:\.\d+)?)`)
var twoNumbers = regexp.MustCompile(`(\d+(?:\.\d+)?)\D+(\d+(?:\.\d+)?)`)

func matchMath(lowered string) bool {
	if mathExpr.MatchString(lowered) {
		return true
	}
	return containsAny(lowered, "calculate", "math", "multiplied", "divided", "plus", "minus", "times") &&
		twoNumbers.MatchString(lowered)
}

func matchDiskSpace(lowered string) bool {
	return containsAny(lowered, "disk space", "disk usage", "storage", "disk")
}

func matchAnalyzeDir(lowered string) bool {
	return strings.Contains(lowered, "analyze") && strings.Contains(lowered, "dir") ||
		strings.Contains(lowered, "analyse") && strings.Contains(lowered, "dir")
}

func matchListFiles(lowered string) bool {
	return strings.Contains(lowered, "list") && strings.Contains(lowered, "file")
}

func matchFileCreate(lowered string) bool {
	return containsAny(lowered, "create file", "write file", "make file", "create a file", "make a file")
}

func matchSystemInfo(lowered string) bool {
	return containsAny(lowered, "system info", "system", "whoami", "hostname", "uptime", "status")
}

func matchWebSearch(lowered string) bool {
	return containsAny(lowered, "search", "google", "look up", "find info", "what is", "who is", "research", "learn about", "news", "latest")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// =============================================================================
// EXTRACTORS
// =============================================================================

func extractNone(string) map[string]string { return map[string]string{} }

// extractMath pulls the first <number> <operator> <number> triple. Word
// operators (multiplied, divided, plus, minus, times) are honored when no
// symbolic operator appears between the numbers.
func extractMath(text string) map[string]string {
	lowered := strings.ToLower(text)

	if m := mathExpr.FindStringSubmatch(lowered); m != nil {
		return map[string]string{"a": m[1], "op": canonicalOp(m[2]), "b": m[3]}
	}

	if m := twoNumbers.FindStringSubmatch(lowered); m != nil {
		op := "+"
		switch {
		case containsAny(lowered, "multiplied", "times", "multiply"):
			op = "*"
		case containsAny(lowered, "divided", "divide"):
			op = "/"
		case containsAny(lowered, "minus", "subtract"):
			op = "-"
		}
		return map[string]string{"a": m[1], "op": op, "b": m[2]}
	}

	return map[string]string{}
}

func canonicalOp(op string) string {
	switch op {
	case "x", "×":
		return "*"
	case "÷":
		return "/"
	case "−":
		return "-"
	default:
		return op
	}
}

// extractPath returns the first whitespace-delimited token containing a
// slash, or nothing so the builder falls back to the configured base dir.
func extractPath(text string) map[string]string {
	for _, tok := range strings.Fields(text) {
		if strings.Contains(tok, "/") {
			return map[string]string{"path": strings.TrimRight(tok, ".,;:!?")}
		}
	}
	return map[string]string{}
}

// extractFilename finds a filename token: the word following "named" or
// "called", otherwise the first token holding a dot, otherwise notes.txt.
func extractFilename(text string) map[string]string {
	fields := strings.Fields(text)
	for i, tok := range fields {
		lowered := strings.ToLower(tok)
		if (lowered == "named" || lowered == "called") && i+1 < len(fields) {
			return map[string]string{"filename": strings.TrimRight(fields[i+1], ".,;:!?")}
		}
	}
	for _, tok := range fields {
		trimmed := strings.TrimRight(tok, ",;:!?")
		if strings.Contains(trimmed, ".") && !strings.HasSuffix(trimmed, ".") {
			return map[string]string{"filename": trimmed}
		}
	}
	return map[string]string{"filename": "notes.txt"}
}

var searchTriggers = []string{
	"search for", "search", "look up", "find info on", "find info",
	"google", "what is", "who is", "research", "learn about",
}

// extractQuery returns the free text after the first search trigger.
func extractQuery(text string) map[string]string {
	lowered := strings.ToLower(text)
	for _, trig := range searchTriggers {
		if idx := strings.Index(lowered, trig); idx >= 0 {
			query := strings.TrimSpace(text[idx+len(trig):])
			if query != "" {
				return map[string]string{"query": query}
			}
		}
	}
	return map[string]string{"query": strings.TrimSpace(text)}
}

// =============================================================================
// BUILDERS
// =============================================================================

func buildMath(params map[string]string, _ Options) (func(context.Context, io.Writer) error, string) {
	run := func(ctx context.Context, w io.Writer) error {
		a, okA := params["a"]
		b, okB := params["b"]
		op := params["op"]
		if !okA || !okB || op == "" {
			fmt.Fprintln(w, "error: need two numbers and an operator")
			return fmt.Errorf("math: missing operands")
		}
		result, err := evalBinary(a, op, b)
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			return err
		}
		fmt.Fprintln(w, result)
		return nil
	}
	return run, renderMathSource(params)
}

// evalBinary computes a single binary operation exactly. Integer operands
// stay in integer arithmetic when the result is representable; everything
// else goes through float formatting with minimal digits.
func evalBinary(aStr, op, bStr string) (string, error) {
	ai, aErr := strconv.ParseInt(aStr, 10, 64)
	bi, bErr := strconv.ParseInt(bStr, 10, 64)
	if aErr == nil && bErr == nil {
		switch op {
		case "+":
			return strconv.FormatInt(ai+bi, 10), nil
		case "-":
			return strconv.FormatInt(ai-bi, 10), nil
		case "*":
			return strconv.FormatInt(ai*bi, 10), nil
		case "/":
			if bi == 0 {
				return "", fmt.Errorf("division by zero")
			}
			if ai%bi == 0 {
				return strconv.FormatInt(ai/bi, 10), nil
			}
			return strconv.FormatFloat(float64(ai)/float64(bi), 'g', -1, 64), nil
		}
	}

	a, err := strconv.ParseFloat(aStr, 64)
	if err != nil {
		return "", fmt.Errorf("bad operand %q", aStr)
	}
	b, err := strconv.ParseFloat(bStr, 64)
	if err != nil {
		return "", fmt.Errorf("bad operand %q", bStr)
	}
	var r float64
	switch op {
	case "+":
		r = a + b
	case "-":
		r = a - b
	case "*":
		r = a * b
	case "/":
		if b == 0 {
			return "", fmt.Errorf("division by zero")
		}
		r = a / b
	default:
		return "", fmt.Errorf("unsupported operator %q", op)
	}
	return strconv.FormatFloat(r, 'g', -1, 64), nil
}

func buildDiskSpace(_ map[string]string, opts Options) (func(context.Context, io.Writer) error, string) {
	volume := opts.DiskVolume
	run := func(ctx context.Context, w io.Writer) error {
		var st syscall.Statfs_t
		if err := syscall.Statfs(volume, &st); err != nil {
			fmt.Fprintf(w, "error: statfs %s: %v\n", volume, err)
			return err
		}
		total := st.Blocks * uint64(st.Bsize)
		free := st.Bavail * uint64(st.Bsize)
		used := total - free
		usedPct := 0.0
		if total > 0 {
			usedPct = 100 * float64(used) / float64(total)
		}
		fmt.Fprintf(w, "volume: %s\n", volume)
		fmt.Fprintf(w, "total: %s\n", humanBytes(total))
		fmt.Fprintf(w, "used: %s (%.0f%%)\n", humanBytes(used), usedPct)
		fmt.Fprintf(w, "free: %s\n", humanBytes(free))
		return nil
	}
	return run, renderDiskSpaceSource(volume)
}

func buildAnalyzeDir(params map[string]string, opts Options) (func(context.Context, io.Writer) error, string) {
	target := params["path"]
	if target == "" {
		target = opts.BaseDir
	}
	run := func(ctx context.Context, w io.Writer) error {
		var dirs, files int
		var bytes int64
		err := filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // unreadable entries are skipped, not fatal
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if path == target {
				return nil
			}
			if d.IsDir() {
				dirs++
				return nil
			}
			files++
			if info, err := d.Info(); err == nil {
				bytes += info.Size()
			}
			return nil
		})
		if err != nil {
			fmt.Fprintf(w, "error: walking %s: %v\n", target, err)
			return err
		}
		fmt.Fprintf(w, "target: %s\n", target)
		fmt.Fprintf(w, "directories: %d\n", dirs)
		fmt.Fprintf(w, "files: %d\n", files)
		fmt.Fprintf(w, "total size: %s\n", humanBytes(uint64(bytes)))
		return nil
	}
	return run, renderAnalyzeDirSource(target)
}

func buildListFiles(params map[string]string, opts Options) (func(context.Context, io.Writer) error, string) {
	target := params["path"]
	if target == "" {
		target = opts.BaseDir
	}
	run := func(ctx context.Context, w io.Writer) error {
		entries, err := os.ReadDir(target)
		if err != nil {
			fmt.Fprintf(w, "error: reading %s: %v\n", target, err)
			return err
		}
		fmt.Fprintf(w, "listing: %s\n", target)
		for _, e := range entries {
			if e.IsDir() {
				fmt.Fprintf(w, "  %s/\n", e.Name())
				continue
			}
			size := int64(0)
			if info, err := e.Info(); err == nil {
				size = info.Size()
			}
			fmt.Fprintf(w, "  %s (%d bytes)\n", e.Name(), size)
		}
		return nil
	}
	return run, renderListFilesSource(target)
}

func buildFileCreate(params map[string]string, opts Options) (func(context.Context, io.Writer) error, string) {
	filename := params["filename"]
	if filename == "" {
		filename = "notes.txt"
	}
	run := func(ctx context.Context, w io.Writer) error {
		path := filename
		if !filepath.IsAbs(path) {
			path = filepath.Join(opts.BaseDir, path)
		}
		content := fmt.Sprintf("created by taskforge at %s\n", time.Now().Format(time.RFC3339))
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			fmt.Fprintf(w, "error: creating %s: %v\n", path, err)
			return err
		}
		fmt.Fprintf(w, "created: %s\n", path)
		return nil
	}
	return run, renderFileCreateSource(filename)
}

func buildSystemInfo(_ map[string]string, _ Options) (func(context.Context, io.Writer) error, string) {
	run := func(ctx context.Context, w io.Writer) error {
		user := os.Getenv("USER")
		if user == "" {
			user = os.Getenv("USERNAME")
		}
		wd, _ := os.Getwd()
		host, _ := os.Hostname()
		fmt.Fprintf(w, "user: %s\n", user)
		fmt.Fprintf(w, "host: %s\n", host)
		fmt.Fprintf(w, "working directory: %s\n", wd)
		fmt.Fprintf(w, "platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		fmt.Fprintf(w, "runtime: %s\n", runtime.Version())
		return nil
	}
	return run, systemInfoSource
}

func buildWebSearch(params map[string]string, _ Options) (func(context.Context, io.Writer) error, string) {
	query := params["query"]
	run := func(ctx context.Context, w io.Writer) error {
		if query == "" {
			fmt.Fprintln(w, "error: empty query")
			return fmt.Errorf("web search: empty query")
		}
		// Network access belongs to the observation collaborators, not the
		// core: this skill prepares the query and names the sources.
		fmt.Fprintf(w, "web research: %s\n", query)
		fmt.Fprintf(w, "  source: web search engine, query %q\n", query)
		fmt.Fprintf(w, "  source: knowledge base, query %q\n", query)
		fmt.Fprintln(w, "query prepared")
		return nil
	}
	return run, renderWebSearchSource(query)
}

func buildStub(params map[string]string) (func(context.Context, io.Writer) error, string) {
	task := params["task"]
	run := func(ctx context.Context, w io.Writer) error {
		fmt.Fprintf(w, "unsupported task: %s\n", task)
		fmt.Fprintln(w, "no template in the catalog matches this instruction")
		return nil
	}
	return run, renderStubSource(task)
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
