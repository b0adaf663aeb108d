// Package logging provides categorized logging for mathmotion.
// Each subsystem logs under its own category so a single generation session
// can be traced across the guard, sandbox, retrieval and agent layers.
package logging

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a logging subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup and configuration
	CategoryAgent     Category = "agent"     // Generation/repair state machine
	CategoryGuard     Category = "guard"     // Static safety analysis
	CategorySandbox   Category = "sandbox"   // Subprocess execution
	CategoryDiagnose  Category = "diagnose"  // Diagnostic formatting
	CategoryRetrieval Category = "retrieval" // Passage retrieval
	CategoryEmbedding Category = "embedding" // Embedding engine
	CategoryStore     Category = "store"     // SQLite index access
	CategoryAPI       Category = "api"       // LLM API calls
)

// Logger wraps a zap sugared logger bound to one category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	root    *zap.Logger
	loggers = make(map[Category]*Logger)
)

func init() {
	// No-op root until Initialize, so packages can log safely at any time.
	root = zap.NewNop()
}

// Initialize configures the root logger. When debug is true, logs are written
// at debug level; otherwise info. If logDir is non-empty, output goes to
// mathmotion.log inside it in addition to stderr.
func Initialize(logDir string, debug bool) error {
	mu.Lock()
	defer mu.Unlock()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encCfg)

	sinks := []zapcore.WriteSyncer{zapcore.AddSync(os.Stderr)}
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(filepath.Join(logDir, "mathmotion.log"),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		sinks = append(sinks, zapcore.AddSync(f))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), level)
	root = zap.New(core)
	loggers = make(map[Category]*Logger)
	return nil
}

// Get returns the logger for a category, creating it on first use.
func Get(category Category) *Logger {
	mu.RLock()
	l, ok := loggers[category]
	mu.RUnlock()
	if ok {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok = loggers[category]; ok {
		return l
	}
	l = &Logger{
		category: category,
		sugar:    root.Sugar().With("category", string(category)),
	}
	loggers[category] = l
	return l
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// Convenience helpers, one pair per category.

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

func Agent(format string, args ...interface{})      { Get(CategoryAgent).Info(format, args...) }
func AgentDebug(format string, args ...interface{}) { Get(CategoryAgent).Debug(format, args...) }

func Guard(format string, args ...interface{})      { Get(CategoryGuard).Info(format, args...) }
func GuardDebug(format string, args ...interface{}) { Get(CategoryGuard).Debug(format, args...) }

func Sandbox(format string, args ...interface{})      { Get(CategorySandbox).Info(format, args...) }
func SandboxDebug(format string, args ...interface{}) { Get(CategorySandbox).Debug(format, args...) }

func Diagnose(format string, args ...interface{})      { Get(CategoryDiagnose).Info(format, args...) }
func DiagnoseDebug(format string, args ...interface{}) { Get(CategoryDiagnose).Debug(format, args...) }

func Retrieval(format string, args ...interface{})      { Get(CategoryRetrieval).Info(format, args...) }
func RetrievalDebug(format string, args ...interface{}) { Get(CategoryRetrieval).Debug(format, args...) }

func Embedding(format string, args ...interface{})      { Get(CategoryEmbedding).Info(format, args...) }
func EmbeddingDebug(format string, args ...interface{}) { Get(CategoryEmbedding).Debug(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

func API(format string, args ...interface{})      { Get(CategoryAPI).Info(format, args...) }
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }

// Timer measures an operation's duration and logs it on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation in the given category.
func StartTimer(category Category, op string) *Timer {
	return &Timer{category: category, op: op, start: time.Now()}
}

// Stop logs the elapsed time at debug level.
func (t *Timer) Stop() {
	Get(t.category).Debug("%s completed in %v", t.op, time.Since(t.start))
}

// Sync flushes buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}
