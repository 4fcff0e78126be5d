// Package logging provides categorized file-based logging for taskforge.
// Logs are written under <workspace>/.forge/logs/ with one file per category
// per day. Logging is a silent no-op until Initialize enables debug mode.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // startup and shutdown
	CategoryRouter    Category = "router"    // classification decisions
	CategorySynth     Category = "synth"     // template matching and synthesis
	CategorySandbox   Category = "sandbox"   // artifact execution
	CategoryStore     Category = "store"     // skill/snapshot/ledger persistence
	CategoryEvolution Category = "evolution" // self-modification cycles
	CategoryWatcher   Category = "watcher"   // task inbox watcher
	CategoryCore      Category = "core"      // request orchestration
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Logger wraps a standard logger bound to one category's file.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	mu       sync.RWMutex
	loggers  = make(map[Category]*Logger)
	logsDir  string
	enabled  bool
	logLevel = LevelInfo
)

// Initialize points the logging system at a workspace and enables output.
// When debug is false every logging call is a no-op, which is the production
// default.
func Initialize(workspace string, debug bool, level string) error {
	mu.Lock()
	defer mu.Unlock()

	enabled = debug
	logLevel = parseLevel(level)
	if !enabled {
		return nil
	}

	logsDir = filepath.Join(workspace, ".forge", "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	loggers = make(map[Category]*Logger)
	return nil
}

func parseLevel(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Enabled reports whether logging is active.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Get returns (or creates) the logger for a category. A no-op logger is
// returned while logging is disabled.
func Get(category Category) *Logger {
	mu.RLock()
	if !enabled || logsDir == "" {
		mu.RUnlock()
		return &Logger{category: category}
	}
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] could not open %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] "+format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] "+format, args...)
}

// Warn logs a warning.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] "+format, args...)
}

// Error logs an error. Errors are always written when a file is open.
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] "+format, args...)
}

// CloseAll closes all open log files. Call at shutdown.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - quick logging without fetching a logger first
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func Router(format string, args ...interface{})    { Get(CategoryRouter).Info(format, args...) }
func Synth(format string, args ...interface{})     { Get(CategorySynth).Info(format, args...) }
func Sandbox(format string, args ...interface{})   { Get(CategorySandbox).Info(format, args...) }
func Store(format string, args ...interface{})     { Get(CategoryStore).Info(format, args...) }
func Evolution(format string, args ...interface{}) { Get(CategoryEvolution).Info(format, args...) }
func Watcher(format string, args ...interface{})   { Get(CategoryWatcher).Info(format, args...) }
func Core(format string, args ...interface{})      { Get(CategoryCore).Info(format, args...) }

func RouterDebug(format string, args ...interface{})    { Get(CategoryRouter).Debug(format, args...) }
func SynthDebug(format string, args ...interface{})     { Get(CategorySynth).Debug(format, args...) }
func SandboxDebug(format string, args ...interface{})   { Get(CategorySandbox).Debug(format, args...) }
func StoreDebug(format string, args ...interface{})     { Get(CategoryStore).Debug(format, args...) }
func EvolutionDebug(format string, args ...interface{}) { Get(CategoryEvolution).Debug(format, args...) }
func WatcherDebug(format string, args ...interface{})   { Get(CategoryWatcher).Debug(format, args...) }
func CoreDebug(format string, args ...interface{})      { Get(CategoryCore).Debug(format, args...) }

// Timer measures an operation's duration for performance logging.
type Timer struct {
	category  Category
	operation string
	start     time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, operation: operation, start: time.Now()}
}

// Stop ends timing and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s took %v", t.operation, elapsed)
	return elapsed
}
