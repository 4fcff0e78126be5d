package evolution

import (
	"fmt"
	"go/parser"
	"go/token"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"taskforge/internal/sandbox"
	"taskforge/internal/types"
)

// Validation stage names, recorded on the ledger when a candidate is
// rejected.
const (
	StageSyntax   = "syntax"
	StageLoad     = "load"
	StageSelfTest = "selftest"
)

// Loader turns module source into an invocable Version. Modules are plain
// Go source in package main exposing
//
//	func Process(input string) string
//	func SelfTest() error
//
// loaded through the same interpreter lane the sandbox uses, with the same
// import whitelist.
type Loader struct {
	guard *sandbox.Interpreter
}

// NewLoader returns a Loader sharing the sandbox import policy.
func NewLoader() *Loader {
	return &Loader{guard: sandbox.NewInterpreter()}
}

// Load evaluates source and binds its entry points. The returned Version
// has Generation zero; the caller assigns it.
func (l *Loader) Load(source string) (v *Version, err error) {
	if err := l.guard.ValidateImports(source); err != nil {
		return nil, err
	}
	defer func() {
		if rec := recover(); rec != nil {
			v, err = nil, fmt.Errorf("interpreter panic: %v", rec)
		}
	}()

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("loading stdlib symbols: %w", err)
	}
	if _, err := i.Eval(source); err != nil {
		return nil, fmt.Errorf("evaluating source: %w", err)
	}

	pv, err := i.Eval("main.Process")
	if err != nil {
		return nil, fmt.Errorf("Process not found: %w", err)
	}
	process, ok := pv.Interface().(func(string) string)
	if !ok {
		return nil, fmt.Errorf("Process has wrong signature, want func(string) string")
	}

	tv, err := i.Eval("main.SelfTest")
	if err != nil {
		return nil, fmt.Errorf("SelfTest not found: %w", err)
	}
	selfTest, ok := tv.Interface().(func() error)
	if !ok {
		return nil, fmt.Errorf("SelfTest has wrong signature, want func() error")
	}

	return &Version{Source: source, process: process, selfTest: selfTest}, nil
}

// Validate runs a candidate through the three acceptance stages in order:
// syntax parse, interpreter load, self-test. On success it returns the
// loaded version; on failure the ValidationFailure names the stage that
// rejected it.
func (l *Loader) Validate(source string) (*Version, *types.ValidationFailure) {
	fset := token.NewFileSet()
	if _, err := parser.ParseFile(fset, "candidate.go", source, 0); err != nil {
		return nil, &types.ValidationFailure{Stage: StageSyntax, Cause: err}
	}

	v, err := l.Load(source)
	if err != nil {
		return nil, &types.ValidationFailure{Stage: StageLoad, Cause: err}
	}

	if err := runSelfTest(v); err != nil {
		return nil, &types.ValidationFailure{Stage: StageSelfTest, Cause: err}
	}
	return v, nil
}

func runSelfTest(v *Version) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("self-test panic: %v", rec)
		}
	}()
	return v.selfTest()
}
