package guard

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var defaultAllowed = []string{"manim", "numpy", "math", "random", "itertools", "functools", "typing"}

func vet(t *testing.T, source string) Verdict {
	t.Helper()
	return New(defaultAllowed).Vet(source)
}

func requireRule(t *testing.T, v Verdict, rule RuleID) Violation {
	t.Helper()
	for _, viol := range v.Violations {
		if viol.Rule == rule {
			return viol
		}
	}
	t.Fatalf("expected a %s violation, got %v", rule, v.Violations)
	return Violation{}
}

func TestVet_CleanScenePasses(t *testing.T) {
	source := `from manim import *
import numpy as np
import math

class GeneratedScene(Scene):
    def construct(self):
        self.camera.background_color = BLACK
        circle = Circle(radius=1.0, color=BLUE)
        label = MathTex(r"\cos^2\theta + \sin^2\theta = 1")
        self.play(Create(circle))
        self.play(Write(label))
        self.wait()
`
	v := vet(t, source)
	if !v.Passed {
		t.Fatalf("clean scene rejected: %v", v.Violations)
	}
}

func TestVet_BannedImport(t *testing.T) {
	for _, mod := range []string{"os", "shutil", "subprocess", "ctypes", "importlib", "socket", "sys"} {
		v := vet(t, "import "+mod+"\n")
		if v.Passed {
			t.Errorf("import %s should be rejected", mod)
			continue
		}
		viol := requireRule(t, v, RuleBannedImport)
		if viol.Line != 1 {
			t.Errorf("import %s: want line 1, got %d", mod, viol.Line)
		}
	}
}

func TestVet_BannedImportViaAlias(t *testing.T) {
	source := `import shutil as sh
`
	v := vet(t, source)
	requireRule(t, v, RuleBannedImport)
}

func TestVet_AliasPropagation(t *testing.T) {
	// Even ignoring the import violation, the aliased rmtree call must be
	// resolved back to shutil.rmtree and flagged.
	source := `import shutil as sh
sh.rmtree("/tmp/x")
`
	v := vet(t, source)
	found := false
	for _, viol := range v.Violations {
		if viol.Rule == RuleBannedCall && strings.Contains(viol.Message, "shutil.rmtree") {
			found = true
		}
	}
	if !found {
		t.Errorf("aliased shutil.rmtree call not resolved: %v", v.Violations)
	}
}

func TestVet_FromImport(t *testing.T) {
	v := vet(t, "from os import remove\n")
	requireRule(t, v, RuleBannedImport)
}

func TestVet_AssignmentRebinding(t *testing.T) {
	source := `f = eval
f("1+1")
`
	v := vet(t, source)
	requireRule(t, v, RuleMetaExec)
}

func TestVet_MetaExecBuiltins(t *testing.T) {
	for _, call := range []string{`eval("1")`, `exec("x=1")`, `compile("1", "<s>", "eval")`, `__import__("os")`} {
		v := vet(t, call+"\n")
		if v.Passed {
			t.Errorf("%s should be rejected", call)
		}
	}
}

func TestVet_MethodsNamedLikeBuiltinsPass(t *testing.T) {
	// A dotted call whose final component collides with eval/exec/compile
	// is an ordinary method on some object, not the builtin.
	source := `from manim import *

class GeneratedScene(Scene):
    def construct(self):
        tracker = ValueTracker(0)
        rate = tracker.compile()
        curve = rate.eval()
`
	v := vet(t, source)
	for _, viol := range v.Violations {
		if viol.Rule == RuleMetaExec {
			t.Errorf("method call flagged as dynamic evaluation: %v", viol)
		}
	}
}

func TestVet_AliasedBuiltinsStillCaught(t *testing.T) {
	source := `import builtins
builtins.eval("1+1")
`
	v := vet(t, source)
	requireRule(t, v, RuleMetaExec)
}

func TestVet_DynamicGetattr(t *testing.T) {
	v := vet(t, `getattr(obj, "unlink")()` + "\n")
	requireRule(t, v, RuleDynamicGetattr)
}

func TestVet_WriteOpen(t *testing.T) {
	cases := []string{
		`open("f.txt", "w")`,
		`open("f.txt", mode="a")`,
		`open("f.txt", "r+")`,
	}
	for _, c := range cases {
		v := vet(t, c+"\n")
		requireRule(t, v, RuleWriteOpen)
	}

	v := vet(t, `open("f.txt", "r")`+"\n")
	for _, viol := range v.Violations {
		if viol.Rule == RuleWriteOpen {
			t.Errorf("read-mode open flagged as write: %v", viol)
		}
	}
}

func TestVet_PathWriteMethods(t *testing.T) {
	source := `p.write_text("data")
`
	v := vet(t, source)
	requireRule(t, v, RuleWriteOpen)
}

func TestVet_DestructiveAttrCall(t *testing.T) {
	v := vet(t, "target.unlink()\n")
	requireRule(t, v, RuleDestructiveCall)
}

func TestVet_UnknownImport(t *testing.T) {
	v := vet(t, "import requests\n")
	viol := requireRule(t, v, RuleUnknownImport)
	if !strings.Contains(viol.Message, "requests") {
		t.Errorf("message should name the module: %s", viol.Message)
	}
}

func TestVet_SyntaxErrorSingleViolation(t *testing.T) {
	v := vet(t, "def broken(:\n    pass\n")
	if v.Passed {
		t.Fatal("syntactically invalid source passed")
	}
	if len(v.Violations) != 1 {
		t.Fatalf("want exactly 1 violation for unparsable input, got %d: %v", len(v.Violations), v.Violations)
	}
	if v.Violations[0].Rule != RuleSyntaxError {
		t.Errorf("want %s, got %s", RuleSyntaxError, v.Violations[0].Rule)
	}
}

func TestVet_AllViolationsReported(t *testing.T) {
	source := `import os
import shutil
eval("1")
`
	v := vet(t, source)
	if len(v.Violations) < 3 {
		t.Fatalf("want all violations reported together, got %d: %v", len(v.Violations), v.Violations)
	}
	// Source order is preserved.
	for i := 1; i < len(v.Violations); i++ {
		if v.Violations[i].Line < v.Violations[i-1].Line {
			t.Errorf("violations out of source order: %v", v.Violations)
		}
	}
}

func TestVet_EmptySource(t *testing.T) {
	v := vet(t, "")
	if !v.Passed {
		t.Errorf("empty source should pass the guard (it fails later in execution): %v", v.Violations)
	}
}

func TestVet_IsPureNoSecondCallDrift(t *testing.T) {
	g := New(defaultAllowed)
	src := "import os\nos.system(\"ls\")\n"
	first := g.Vet(src)
	second := g.Vet(src)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Vet accumulated state across calls (-first +second):\n%s", diff)
	}
}
