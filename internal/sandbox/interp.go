package sandbox

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// Interpreter runs Go source in an embedded interpreter instead of spawning
// a compiler: no build hangs, no binary version skew, and an import
// whitelist instead of full host access. The source must define
// RunTask() (string, error) in package main.
type Interpreter struct {
	allowed map[string]bool
}

// NewInterpreter returns an Interpreter restricted to side-effect-free
// stdlib packages. Filesystem, network, exec and syscall access are
// deliberately absent.
func NewInterpreter() *Interpreter {
	return &Interpreter{
		allowed: map[string]bool{
			"bytes":           true,
			"encoding/base64": true,
			"encoding/json":   true,
			"errors":          true,
			"fmt":             true,
			"math":            true,
			"path":            true,
			"regexp":          true,
			"sort":            true,
			"strconv":         true,
			"strings":         true,
			"time":            true,
			"unicode":         true,
			"unicode/utf8":    true,
		},
	}
}

// RunSource evaluates source and calls its RunTask entry point, honoring
// ctx for cancellation. The interpreter goroutine cannot be preempted
// mid-evaluation; a cancelled call abandons it and returns.
func (ip *Interpreter) RunSource(ctx context.Context, source string) (string, error) {
	if err := ip.ValidateImports(source); err != nil {
		return "", err
	}

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("interpreter panic: %v", rec)}
			}
		}()

		i := interp.New(interp.Options{})
		if err := i.Use(stdlib.Symbols); err != nil {
			done <- outcome{err: fmt.Errorf("loading stdlib symbols: %w", err)}
			return
		}
		if _, err := i.Eval(source); err != nil {
			done <- outcome{err: fmt.Errorf("evaluating source: %w", err)}
			return
		}
		v, err := i.Eval("main.RunTask")
		if err != nil {
			done <- outcome{err: fmt.Errorf("RunTask not found: %w", err)}
			return
		}
		fn, ok := v.Interface().(func() (string, error))
		if !ok {
			done <- outcome{err: fmt.Errorf("RunTask has wrong signature, want func() (string, error)")}
			return
		}
		text, err := fn()
		done <- outcome{text: text, err: err}
	}()

	select {
	case o := <-done:
		return o.text, o.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ValidateImports rejects source importing anything off the whitelist.
func (ip *Interpreter) ValidateImports(source string) error {
	var imports []string
	inBlock := false
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
		case inBlock && trimmed != "":
			imports = append(imports, strings.Trim(trimmed, `"`))
		case strings.HasPrefix(trimmed, "import "):
			imports = append(imports, strings.Trim(strings.TrimPrefix(trimmed, "import "), `"`))
		}
	}

	var forbidden []string
	for _, pkg := range imports {
		if !ip.allowed[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports: %v (allowed: %v)", forbidden, ip.allowedList())
	}
	return nil
}

func (ip *Interpreter) allowedList() []string {
	out := make([]string, 0, len(ip.allowed))
	for pkg := range ip.allowed {
		out = append(out, pkg)
	}
	sort.Strings(out)
	return out
}
