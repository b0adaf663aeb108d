// Package guard statically vets LLM-generated Manim scripts before execution.
// It parses candidate Python source with Tree-sitter and rejects scripts that
// import or call anything capable of escaping the sandbox: process spawning,
// filesystem writes, network access, or dynamic code evaluation. Aliased
// imports, from-imports, and assignment rebinding are resolved so a script
// cannot smuggle a banned callable under a fresh name.
package guard

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"mathmotion/internal/logging"
)

// Violation is a single reason a script was rejected.
type Violation struct {
	Rule    RuleID
	Line    int // 1-based; 0 when unknown
	Message string
}

// Verdict is the result of vetting one candidate script.
type Verdict struct {
	Passed     bool
	Violations []Violation
}

// Guard vets Python source against the module allowlist and call denylist.
// A Guard is not safe for concurrent use; create one per session.
type Guard struct {
	parser  *sitter.Parser
	allowed map[string]bool
}

// New creates a Guard. allowedModules lists importable top-level modules;
// anything not listed and not hard-banned is flagged as an unknown import.
func New(allowedModules []string) *Guard {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	allowed := make(map[string]bool, len(allowedModules))
	for _, m := range allowedModules {
		allowed[m] = true
	}
	return &Guard{parser: parser, allowed: allowed}
}

// Vet analyzes source and returns all violations found. It never executes the
// script and never fails: unparsable input is itself a violation.
func (g *Guard) Vet(source string) Verdict {
	timer := logging.StartTimer(logging.CategoryGuard, "Vet")
	defer timer.Stop()

	content := []byte(source)
	tree, err := g.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		// Tree-sitter only errors on cancelled contexts or internal failure;
		// treat it the same as unparsable input.
		return Verdict{Violations: []Violation{{
			Rule:    RuleSyntaxError,
			Message: fmt.Sprintf("parse failed: %v", err),
		}}}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		line, detail := firstSyntaxError(root)
		logging.GuardDebug("syntax error at line %d: %s", line, detail)
		return Verdict{Violations: []Violation{{
			Rule:    RuleSyntaxError,
			Line:    line,
			Message: "syntax error: " + detail,
		}}}
	}

	w := &walker{
		guard:       g,
		content:     content,
		moduleAlias: make(map[string]string),
		funcAlias:   make(map[string]string),
		bindings:    make(map[string]string),
	}
	w.walk(root)

	verdict := Verdict{Passed: len(w.violations) == 0, Violations: w.violations}
	if !verdict.Passed {
		logging.Guard("script rejected with %d violation(s)", len(verdict.Violations))
	}
	return verdict
}

// firstSyntaxError locates the first ERROR or missing node for reporting.
func firstSyntaxError(node *sitter.Node) (int, string) {
	if node.IsMissing() {
		return int(node.StartPoint().Row) + 1, "missing " + node.Type()
	}
	if node.Type() == "ERROR" {
		return int(node.StartPoint().Row) + 1, "unexpected token"
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.HasError() || child.IsMissing() {
			return firstSyntaxError(child)
		}
	}
	return int(node.StartPoint().Row) + 1, "invalid syntax"
}

// walker carries the lightweight name resolution state for one pass.
type walker struct {
	guard      *Guard
	content    []byte
	violations []Violation

	moduleAlias map[string]string // "sh" -> "shutil"
	funcAlias   map[string]string // "rm" -> "shutil.rmtree"
	bindings    map[string]string // "f" -> "shutil.rmtree" (via assignment)
}

func (w *walker) text(n *sitter.Node) string {
	return string(w.content[n.StartByte():n.EndByte()])
}

func (w *walker) flag(n *sitter.Node, rule RuleID, format string, args ...interface{}) {
	w.violations = append(w.violations, Violation{
		Rule:    rule,
		Line:    int(n.StartPoint().Row) + 1,
		Message: fmt.Sprintf(format, args...),
	})
}

// walk visits named nodes in source order, mirroring the document-order
// traversal the rules assume: a binding is recorded before any later use.
func (w *walker) walk(node *sitter.Node) {
	switch node.Type() {
	case "import_statement":
		w.visitImport(node)
		return
	case "import_from_statement":
		w.visitImportFrom(node)
		return
	case "assignment":
		w.visitAssignment(node)
	case "call":
		w.visitCall(node)
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		w.walk(node.NamedChild(i))
	}
}

// visitImport handles `import mod` and `import mod.sub as alias`.
func (w *walker) visitImport(node *sitter.Node) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		var full, alias string
		switch child.Type() {
		case "dotted_name":
			full = w.text(child)
			alias = full
		case "aliased_import":
			name := child.ChildByFieldName("name")
			as := child.ChildByFieldName("alias")
			if name == nil || as == nil {
				continue
			}
			full = w.text(name)
			alias = w.text(as)
		default:
			continue
		}

		w.moduleAlias[alias] = full
		w.checkModule(node, full)
	}
}

// visitImportFrom handles `from mod import name [as alias]` and wildcards.
func (w *walker) visitImportFrom(node *sitter.Node) {
	modNode := node.ChildByFieldName("module_name")
	if modNode == nil {
		return
	}
	module := w.text(modNode)
	if modNode.Type() == "relative_import" {
		w.flag(node, RuleUnknownImport, "relative import %q is not allowed", module)
		return
	}
	w.checkModule(node, module)

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		// Accessors allocate fresh nodes, so compare positions, not pointers.
		if child.StartByte() == modNode.StartByte() && child.EndByte() == modNode.EndByte() {
			continue
		}
		switch child.Type() {
		case "dotted_name", "identifier":
			name := w.text(child)
			w.funcAlias[name] = module + "." + name
		case "aliased_import":
			nameNode := child.ChildByFieldName("name")
			as := child.ChildByFieldName("alias")
			if nameNode == nil || as == nil {
				continue
			}
			w.funcAlias[w.text(as)] = module + "." + w.text(nameNode)
		case "wildcard_import":
			// `from manim import *` is the expected preamble; the module
			// check above already decided whether the source is acceptable.
		}
	}
}

// checkModule flags banned and non-allowlisted imports by top-level module.
func (w *walker) checkModule(node *sitter.Node, module string) {
	top := module
	if idx := strings.IndexByte(top, '.'); idx >= 0 {
		top = top[:idx]
	}
	if bannedModules[top] {
		w.flag(node, RuleBannedImport, "banned import: %s", module)
		return
	}
	if !w.guard.allowed[top] {
		w.flag(node, RuleUnknownImport, "import of non-allowlisted module: %s", module)
	}
}

// visitAssignment records `f = shutil.rmtree` style rebinding.
func (w *walker) visitAssignment(node *sitter.Node) {
	right := node.ChildByFieldName("right")
	left := node.ChildByFieldName("left")
	if right == nil || left == nil {
		return
	}
	fqn := w.resolveFQN(right)
	if fqn == "" {
		return
	}
	if left.Type() == "identifier" {
		w.bindings[w.text(left)] = fqn
	}
}

// resolveFQN resolves an identifier or attribute chain to a fully qualified
// name using the recorded import aliases and assignment bindings.
func (w *walker) resolveFQN(node *sitter.Node) string {
	switch node.Type() {
	case "identifier":
		name := w.text(node)
		if fqn, ok := w.bindings[name]; ok {
			return fqn
		}
		if fqn, ok := w.funcAlias[name]; ok {
			return fqn
		}
		return name
	case "attribute":
		var parts []string
		cur := node
		for cur.Type() == "attribute" {
			attr := cur.ChildByFieldName("attribute")
			obj := cur.ChildByFieldName("object")
			if attr == nil || obj == nil {
				return ""
			}
			parts = append([]string{w.text(attr)}, parts...)
			cur = obj
		}
		if cur.Type() != "identifier" {
			return ""
		}
		base := w.text(cur)
		if full, ok := w.moduleAlias[base]; ok {
			base = full
		}
		return base + "." + strings.Join(parts, ".")
	}
	return ""
}

// visitCall applies the call denylist to one call expression.
func (w *walker) visitCall(node *sitter.Node) {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return
	}

	if fn.Type() == "identifier" && w.text(fn) == "getattr" {
		w.flag(node, RuleDynamicGetattr, "dynamic getattr call")
	}

	fqn := w.resolveFQN(fn)

	// Only bare names can reach the eval/exec/compile builtins; a dotted
	// call like model.compile() is an ordinary method. Aliased references
	// still resolve to the bare builtin name through resolveFQN.
	if metaExecNames[fqn] || metaExecNames[strings.TrimPrefix(fqn, "builtins.")] {
		w.flag(node, RuleMetaExec, "dynamic code evaluation: %s", fqn)
	}

	if fqn == "open" || fqn == "io.open" || strings.HasSuffix(fqn, ".open") {
		if w.isWriteMode(node) {
			w.flag(node, RuleWriteOpen, "file opened for writing")
		}
	}

	if fn.Type() == "attribute" {
		if attr := fn.ChildByFieldName("attribute"); attr != nil {
			name := w.text(attr)
			if destructiveAttrNames[name] {
				w.flag(node, RuleDestructiveCall, "destructive method call: %s", name)
			}
			if pathWriteMethods[name] {
				w.flag(node, RuleWriteOpen, "Path.%s call", name)
			}
		}
	}

	if bannedFQNs[fqn] {
		w.flag(node, RuleBannedCall, "%s call", fqn)
	}
}

// isWriteMode reports whether an open() call uses a write mode, either as the
// second positional argument or via mode=.
func (w *walker) isWriteMode(call *sitter.Node) bool {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return false
	}

	var mode string
	positional := 0
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg.Type() == "keyword_argument" {
			name := arg.ChildByFieldName("name")
			value := arg.ChildByFieldName("value")
			if name != nil && value != nil && w.text(name) == "mode" {
				if s, ok := w.stringLiteral(value); ok {
					mode = s
				}
			}
			continue
		}
		positional++
		if positional == 2 {
			if s, ok := w.stringLiteral(arg); ok {
				mode = s
			}
		}
	}

	for _, tok := range writeModeTokens {
		if strings.Contains(mode, tok) {
			return true
		}
	}
	return false
}

// stringLiteral extracts the value of a plain string literal node.
func (w *walker) stringLiteral(node *sitter.Node) (string, bool) {
	if node.Type() != "string" {
		return "", false
	}
	s := w.text(node)
	s = strings.TrimLeft(s, "rbfuRBFU")
	for _, q := range []string{`"""`, "'''", `"`, "'"} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return s[len(q) : len(s)-len(q)], true
		}
	}
	return "", false
}
