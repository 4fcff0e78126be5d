package synth

import (
	"bytes"
	"fmt"
	"text/template"
)

// =============================================================================
// SOURCE RENDERING
// =============================================================================
// Every artifact carries a rendered Go source body mirroring its native run
// function. The source is what lands in the execution archive and what the
// sandbox's interpreter lane replays. Sources follow one convention: a main
// package defining RunTask() (string, error). Templates whose behavior needs
// filesystem or syscall access render faithfully but are rejected by the
// replay whitelist; their archived source still documents what ran.

var mathSourceTmpl = template.Must(template.New("math").Parse(`package main

import (
	"fmt"
	"strconv"
)

func RunTask() (string, error) {
	a, err := strconv.ParseFloat("{{.A}}", 64)
	if err != nil {
		return "", err
	}
	b, err := strconv.ParseFloat("{{.B}}", 64)
	if err != nil {
		return "", err
	}
	var r float64
	switch "{{.Op}}" {
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
	}
	if r == float64(int64(r)) {
		return strconv.FormatInt(int64(r), 10), nil
	}
	return strconv.FormatFloat(r, 'g', -1, 64), nil
}
`))

func renderMathSource(params map[string]string) string {
	a, b, op := params["a"], params["b"], params["op"]
	if a == "" || b == "" || op == "" {
		return stubSourceFor("math task with missing operands")
	}
	return render(mathSourceTmpl, struct{ A, B, Op string }{a, b, op})
}

var diskSpaceSourceTmpl = template.Must(template.New("disk").Parse(`package main

import (
	"fmt"
	"syscall"
)

func RunTask() (string, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs("{{.Volume}}", &st); err != nil {
		return "", err
	}
	total := st.Blocks * uint64(st.Bsize)
	free := st.Bavail * uint64(st.Bsize)
	used := total - free
	return fmt.Sprintf("volume: {{.Volume}}\ntotal: %d\nused: %d\nfree: %d", total, used, free), nil
}
`))

func renderDiskSpaceSource(volume string) string {
	return render(diskSpaceSourceTmpl, struct{ Volume string }{escape(volume)})
}

var analyzeDirSourceTmpl = template.Must(template.New("analyze").Parse(`package main

import (
	"fmt"
	"io/fs"
	"path/filepath"
)

func RunTask() (string, error) {
	var dirs, files int
	var bytes int64
	err := filepath.WalkDir("{{.Target}}", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == "{{.Target}}" {
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
		return "", err
	}
	return fmt.Sprintf("directories: %d\nfiles: %d\ntotal size: %d", dirs, files, bytes), nil
}
`))

func renderAnalyzeDirSource(target string) string {
	return render(analyzeDirSourceTmpl, struct{ Target string }{escape(target)})
}

var listFilesSourceTmpl = template.Must(template.New("list").Parse(`package main

import (
	"fmt"
	"os"
	"strings"
)

func RunTask() (string, error) {
	entries, err := os.ReadDir("{{.Target}}")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "listing: {{.Target}}\n")
	for _, e := range entries {
		if e.IsDir() {
			fmt.Fprintf(&b, "  %s/\n", e.Name())
			continue
		}
		size := int64(0)
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		fmt.Fprintf(&b, "  %s (%d bytes)\n", e.Name(), size)
	}
	return b.String(), nil
}
`))

func renderListFilesSource(target string) string {
	return render(listFilesSourceTmpl, struct{ Target string }{escape(target)})
}

var fileCreateSourceTmpl = template.Must(template.New("create").Parse(`package main

import (
	"fmt"
	"os"
	"time"
)

func RunTask() (string, error) {
	content := fmt.Sprintf("created by taskforge at %s\n", time.Now().Format(time.RFC3339))
	if err := os.WriteFile("{{.Filename}}", []byte(content), 0o644); err != nil {
		return "", err
	}
	return "created: {{.Filename}}", nil
}
`))

func renderFileCreateSource(filename string) string {
	return render(fileCreateSourceTmpl, struct{ Filename string }{escape(filename)})
}

const systemInfoSource = `package main

import (
	"fmt"
	"os"
	"runtime"
)

func RunTask() (string, error) {
	wd, _ := os.Getwd()
	host, _ := os.Hostname()
	return fmt.Sprintf("user: %s\nhost: %s\nworking directory: %s\nplatform: %s/%s\nruntime: %s",
		os.Getenv("USER"), host, wd, runtime.GOOS, runtime.GOARCH, runtime.Version()), nil
}
`

var webSearchSourceTmpl = template.Must(template.New("search").Parse(`package main

import "strings"

func RunTask() (string, error) {
	var b strings.Builder
	b.WriteString("web research: {{.Query}}\n")
	b.WriteString("query prepared")
	return b.String(), nil
}
`))

func renderWebSearchSource(query string) string {
	return render(webSearchSourceTmpl, struct{ Query string }{escape(query)})
}

var stubSourceTmpl = template.Must(template.New("stub").Parse(`package main

func RunTask() (string, error) {
	return "unsupported task: {{.Task}}", nil
}
`))

func renderStubSource(task string) string {
	return render(stubSourceTmpl, struct{ Task string }{escape(task)})
}

func stubSourceFor(reason string) string {
	return render(stubSourceTmpl, struct{ Task string }{escape(reason)})
}

// escape keeps interpolated free text inside a Go string literal.
func escape(s string) string {
	quoted := fmt.Sprintf("%q", s)
	return quoted[1 : len(quoted)-1]
}

func render(tmpl *template.Template, data interface{}) string {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		// Rendering failures only affect the audit copy, never execution.
		return stubSourceForRenderError(err)
	}
	return buf.String()
}

func stubSourceForRenderError(err error) string {
	return fmt.Sprintf("package main\n\nfunc RunTask() (string, error) {\n\treturn \"source rendering failed: %s\", nil\n}\n", escape(err.Error()))
}
