package guard

// RuleID identifies the class of a violation.
type RuleID string

const (
	RuleSyntaxError     RuleID = "syntax_error"
	RuleBannedImport    RuleID = "banned_import"
	RuleUnknownImport   RuleID = "unknown_import"
	RuleMetaExec        RuleID = "meta_exec"
	RuleDynamicGetattr  RuleID = "dynamic_getattr"
	RuleWriteOpen       RuleID = "write_open"
	RuleDestructiveCall RuleID = "destructive_call"
	RuleBannedCall      RuleID = "banned_call"
)

// bannedModules are modules whose import alone rejects a script. They give
// access to process control, the filesystem, the network, or dynamic loading.
var bannedModules = map[string]bool{
	"os":         true,
	"sys":        true,
	"shutil":     true,
	"subprocess": true,
	"ctypes":     true,
	"importlib":  true,
	"socket":     true,
}

// bannedFQNs are fully qualified callables that reject a script regardless of
// how the reference was obtained (direct, aliased, or rebound).
var bannedFQNs = map[string]bool{
	"os.remove":               true,
	"os.unlink":               true,
	"os.rmdir":                true,
	"os.removedirs":           true,
	"os.rename":               true,
	"os.replace":              true,
	"os.system":               true,
	"shutil.rmtree":           true,
	"shutil.move":             true,
	"shutil.copy":             true,
	"shutil.copy2":            true,
	"shutil.copyfile":         true,
	"shutil.copytree":         true,
	"subprocess.run":          true,
	"subprocess.Popen":        true,
	"subprocess.call":         true,
	"subprocess.check_call":   true,
	"subprocess.check_output": true,
	"importlib.import_module": true,
}

// metaExecNames are builtins that evaluate or load code dynamically.
var metaExecNames = map[string]bool{
	"eval":       true,
	"exec":       true,
	"compile":    true,
	"__import__": true,
}

// destructiveAttrNames reject a method call by name alone, receiver unknown.
var destructiveAttrNames = map[string]bool{
	"remove":  true,
	"unlink":  true,
	"rename":  true,
	"replace": true,
	"rmdir":   true,
	"rmtree":  true,
	"move":    true,
}

// pathWriteMethods are pathlib write entry points.
var pathWriteMethods = map[string]bool{
	"write_text":  true,
	"write_bytes": true,
}

// writeModeTokens mark an open() mode string as a write.
var writeModeTokens = []string{"w", "x", "a", "+"}
