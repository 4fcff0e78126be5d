package evolution

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"strings"

	"taskforge/internal/logging"
	"taskforge/internal/types"
)

// Inefficiency pattern names. Priority order when rewrites collide on the
// same source region: nested scan, store access in a loop, string
// concatenation in a loop, repeated pure call.
const (
	PatternNestedScan   = "nested_linear_scan"
	PatternStoreInLoop  = "store_access_in_loop"
	PatternConcatInLoop = "string_concat_in_loop"
	PatternRepeatedCall = "repeated_pure_call"
)

// batchable maps per-item store methods to their batch counterparts. A
// store-in-loop finding is only rewritable when the receiver's type also
// defines the batch method.
var batchable = map[string]string{
	"Write":  "WriteAll",
	"Save":   "SaveAll",
	"Put":    "PutAll",
	"Record": "RecordAll",
}

// finding is the analyzer's internal result: the public fields plus the
// structural details the rewriter needs to perform the transformation.
type finding struct {
	pattern  string
	priority int
	pos      token.Position // start of the rewritable region
	end      token.Position

	// nested scan
	outerVar, innerVar   string
	outerColl, innerColl string
	hitStmt              string // body of the inner match, references outerVar only

	// store in loop / repeated call / concat
	recvName   string
	methodName string
	varName    string
	callText   string
	count      int

	rewritable bool
	detail     string
}

func (f finding) public(moduleID string) types.AnalysisFinding {
	return types.AnalysisFinding{
		Pattern:    f.pattern,
		ModuleID:   moduleID,
		Line:       f.pos.Line,
		EndLine:    f.end.Line,
		Detail:     f.detail,
		Rewrite:    rewriteDescription(f.pattern),
		Expected:   expectedEffect(f.pattern),
		Priority:   f.priority,
		Rewritable: f.rewritable,
	}
}

func rewriteDescription(pattern string) string {
	switch pattern {
	case PatternNestedScan:
		return "replace the inner scan with a set membership index built once"
	case PatternStoreInLoop:
		return "collect items in the loop and flush once through the batch method"
	case PatternConcatInLoop:
		return "accumulate parts in a slice and join once after the loop"
	case PatternRepeatedCall:
		return "hoist the call into a local and reuse the result"
	}
	return ""
}

func expectedEffect(pattern string) string {
	switch pattern {
	case PatternNestedScan:
		return "quadratic scan becomes linear"
	case PatternStoreInLoop:
		return "one store round-trip instead of one per item"
	case PatternConcatInLoop:
		return "no repeated reallocation of the accumulator"
	case PatternRepeatedCall:
		return "call evaluated once instead of per use"
	}
	return ""
}

// Analyzer detects the known inefficiency patterns in module source by
// walking its syntax tree. Detection is structural, not semantic: a finding
// is marked rewritable only when the shape is one the rewriter can
// transform without changing behavior.
type Analyzer struct{}

func NewAnalyzer() *Analyzer { return &Analyzer{} }

// Analyze parses source and returns every detected finding, ordered by
// priority then position.
func (a *Analyzer) Analyze(moduleID, source string) ([]finding, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, moduleID+".go", source, 0)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", moduleID, err)
	}

	var findings []finding
	findings = append(findings, a.nestedScans(fset, file)...)
	findings = append(findings, a.storeInLoops(fset, file, source)...)
	findings = append(findings, a.concatInLoops(fset, file)...)
	findings = append(findings, a.repeatedCalls(fset, file)...)

	logging.Evolution("analysis of %s: %d finding(s)", moduleID, len(findings))
	return findings, nil
}

// Public converts internal findings to their reportable form.
func (a *Analyzer) Public(moduleID string, fs []finding) []types.AnalysisFinding {
	out := make([]types.AnalysisFinding, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.public(moduleID))
	}
	return out
}

// nestedScans finds a range loop whose body is another range loop over a
// different collection, where the inner body is a single equality check
// between the two loop variables. Rewritable when the hit statement only
// references the outer variable.
func (a *Analyzer) nestedScans(fset *token.FileSet, file *ast.File) []finding {
	var out []finding
	ast.Inspect(file, func(n ast.Node) bool {
		outer, ok := n.(*ast.RangeStmt)
		if !ok || len(outer.Body.List) != 1 {
			return true
		}
		inner, ok := outer.Body.List[0].(*ast.RangeStmt)
		if !ok || len(inner.Body.List) != 1 {
			return true
		}
		cond, ok := inner.Body.List[0].(*ast.IfStmt)
		if !ok || cond.Else != nil {
			return true
		}
		eq, ok := cond.Cond.(*ast.BinaryExpr)
		if !ok || eq.Op != token.EQL {
			return true
		}

		outerVar := identName(outer.Value)
		innerVar := identName(inner.Value)
		lhs, rhs := identName(eq.X), identName(eq.Y)
		matches := (lhs == outerVar && rhs == innerVar) || (lhs == innerVar && rhs == outerVar)
		if outerVar == "" || innerVar == "" || !matches {
			return true
		}

		hit := renderStmts(fset, cond.Body.List)
		f := finding{
			pattern:    PatternNestedScan,
			priority:   1,
			pos:        fset.Position(outer.Pos()),
			end:        fset.Position(outer.End()),
			outerVar:   outerVar,
			innerVar:   innerVar,
			outerColl:  exprText(fset, outer.X),
			innerColl:  exprText(fset, inner.X),
			hitStmt:    hit,
			rewritable: !referencesIdent(cond.Body, innerVar),
			detail: fmt.Sprintf("inner scan of %s repeated for every element of %s",
				exprText(fset, inner.X), exprText(fset, outer.X)),
		}
		out = append(out, f)
		return false
	})
	return out
}

// storeInLoops finds method calls with a per-item batchable name inside a
// loop body.
func (a *Analyzer) storeInLoops(fset *token.FileSet, file *ast.File, source string) []finding {
	var out []finding
	inspectLoops(file, func(loop ast.Node, body *ast.BlockStmt) {
		ast.Inspect(body, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			sel, ok := call.Fun.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			batch, ok := batchable[sel.Sel.Name]
			if !ok || len(call.Args) != 1 {
				return true
			}
			recv := identName(sel.X)
			if recv == "" {
				return true
			}
			out = append(out, finding{
				pattern:    PatternStoreInLoop,
				priority:   2,
				pos:        fset.Position(loop.Pos()),
				end:        fset.Position(loop.End()),
				recvName:   recv,
				methodName: sel.Sel.Name,
				callText:   exprText(fset, call.Args[0]),
				rewritable: strings.Contains(source, ") "+batch+"("),
				detail: fmt.Sprintf("%s.%s called once per loop iteration",
					recv, sel.Sel.Name),
			})
			return true
		})
	})
	return out
}

// concatInLoops finds += string accumulation inside a loop over a variable
// declared as an empty string in the same function. Rewritable only when
// every use of the variable in that function is the declaration, a +=, or a
// bare return, because the join rewrite removes the intermediate value.
func (a *Analyzer) concatInLoops(fset *token.FileSet, file *ast.File) []finding {
	strVars := emptyStringVars(file)
	var out []finding
	for _, d := range file.Decls {
		fd, ok := d.(*ast.FuncDecl)
		if !ok || fd.Body == nil {
			continue
		}
		seen := map[string]bool{}
		inspectLoops(fd, func(loop ast.Node, body *ast.BlockStmt) {
			ast.Inspect(body, func(n ast.Node) bool {
				asn, ok := n.(*ast.AssignStmt)
				if !ok || asn.Tok != token.ADD_ASSIGN || len(asn.Lhs) != 1 {
					return true
				}
				name := identName(asn.Lhs[0])
				if name == "" || !strVars[name] || seen[name] {
					return true
				}
				seen[name] = true
				out = append(out, finding{
					pattern:    PatternConcatInLoop,
					priority:   3,
					pos:        fset.Position(loop.Pos()),
					end:        fset.Position(loop.End()),
					varName:    name,
					rewritable: onlyAccumulated(fd, name),
					detail:     fmt.Sprintf("%s grown by concatenation inside a loop", name),
				})
				return true
			})
		})
	}
	return out
}

// onlyAccumulated reports whether name is used in fd exclusively as
// `name := ""`, `name += ...`, or `return name`.
func onlyAccumulated(fd *ast.FuncDecl, name string) bool {
	ok := true
	ast.Inspect(fd.Body, func(n ast.Node) bool {
		switch s := n.(type) {
		case *ast.AssignStmt:
			if len(s.Lhs) == 1 && identName(s.Lhs[0]) == name &&
				(s.Tok == token.DEFINE || s.Tok == token.ADD_ASSIGN) {
				for _, rhs := range s.Rhs {
					if referencesIdent(rhs, name) {
						ok = false
					}
				}
				return false
			}
		case *ast.ReturnStmt:
			if len(s.Results) == 1 && identName(s.Results[0]) == name {
				return false
			}
		case *ast.Ident:
			if s.Name == name {
				ok = false
			}
		}
		return ok
	})
	return ok
}

// repeatedCalls finds the same argument-free call made more than once
// inside one function body. Only calls to package-level functions declared
// in the same file are considered pure enough to hoist.
func (a *Analyzer) repeatedCalls(fset *token.FileSet, file *ast.File) []finding {
	local := map[string]bool{}
	for _, d := range file.Decls {
		if fd, ok := d.(*ast.FuncDecl); ok && fd.Recv == nil {
			local[fd.Name.Name] = true
		}
	}

	var out []finding
	for _, d := range file.Decls {
		fd, ok := d.(*ast.FuncDecl)
		if !ok || fd.Body == nil {
			continue
		}
		counts := map[string][]token.Position{}
		ast.Inspect(fd.Body, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok || len(call.Args) != 0 {
				return true
			}
			name := identName(call.Fun)
			if name == "" || !local[name] || name == fd.Name.Name {
				return true
			}
			counts[name] = append(counts[name], fset.Position(call.Pos()))
			return true
		})
		for name, positions := range counts {
			if len(positions) < 2 {
				continue
			}
			out = append(out, finding{
				pattern:    PatternRepeatedCall,
				priority:   4,
				pos:        fset.Position(fd.Body.Pos()),
				end:        fset.Position(fd.Body.End()),
				varName:    fd.Name.Name,
				callText:   name + "()",
				count:      len(positions),
				rewritable: true,
				detail: fmt.Sprintf("%s() called %d times in %s",
					name, len(positions), fd.Name.Name),
			})
		}
	}
	return out
}

// inspectLoops calls fn for every for and range statement body under root.
func inspectLoops(root ast.Node, fn func(loop ast.Node, body *ast.BlockStmt)) {
	ast.Inspect(root, func(n ast.Node) bool {
		switch s := n.(type) {
		case *ast.RangeStmt:
			fn(s, s.Body)
		case *ast.ForStmt:
			fn(s, s.Body)
		}
		return true
	})
}

// emptyStringVars collects names initialized as `x := ""` or declared
// `var x string` anywhere in the file.
func emptyStringVars(file *ast.File) map[string]bool {
	vars := map[string]bool{}
	ast.Inspect(file, func(n ast.Node) bool {
		switch s := n.(type) {
		case *ast.AssignStmt:
			if s.Tok != token.DEFINE || len(s.Lhs) != 1 || len(s.Rhs) != 1 {
				return true
			}
			lit, ok := s.Rhs[0].(*ast.BasicLit)
			if ok && lit.Kind == token.STRING && lit.Value == `""` {
				if name := identName(s.Lhs[0]); name != "" {
					vars[name] = true
				}
			}
		case *ast.DeclStmt:
			gd, ok := s.Decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.VAR {
				return true
			}
			for _, spec := range gd.Specs {
				vs, ok := spec.(*ast.ValueSpec)
				if !ok || identName(vs.Type) != "string" || len(vs.Values) != 0 {
					continue
				}
				for _, name := range vs.Names {
					vars[name.Name] = true
				}
			}
		}
		return true
	})
	return vars
}

func identName(e ast.Expr) string {
	if id, ok := e.(*ast.Ident); ok {
		return id.Name
	}
	return ""
}

func referencesIdent(n ast.Node, name string) bool {
	found := false
	ast.Inspect(n, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok && id.Name == name {
			found = true
		}
		return !found
	})
	return found
}

func exprText(fset *token.FileSet, e ast.Expr) string {
	var sb strings.Builder
	if err := printer.Fprint(&sb, fset, e); err != nil {
		return ""
	}
	return sb.String()
}

func renderStmts(fset *token.FileSet, stmts []ast.Stmt) string {
	var parts []string
	for _, s := range stmts {
		var sb strings.Builder
		if err := printer.Fprint(&sb, fset, s); err != nil {
			continue
		}
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, "\n")
}
