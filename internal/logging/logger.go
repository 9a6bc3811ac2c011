// Package logging provides categorized logging for the dagex subsystems.
// Each subsystem logs under its own category so consumers can tell registry
// traffic from path-index mutation at a glance. The package is a thin layer
// over zap: library consumers get a no-op logger unless they install one via
// SetLogger or call EnableDevelopment.
package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a logging subsystem.
type Category string

const (
	CategoryStore    Category = "store"    // SQLite store lifecycle, schema, migrations
	CategoryRegistry Category = "registry" // node registration and retirement
	CategoryPaths    Category = "paths"    // path index mutation
	CategoryEdges    Category = "edges"    // edge operation orchestration
	CategoryQuery    Category = "query"    // query spec compilation and execution
)

var (
	mu   sync.RWMutex
	base = zap.NewNop()
)

// SetLogger installs the zap logger all categories write through. Passing nil
// restores the no-op default.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	base = l
}

// EnableDevelopment installs a development-config zap logger at debug level.
// Intended for tests and local debugging.
func EnableDevelopment() error {
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	l, err := config.Build()
	if err != nil {
		return err
	}
	SetLogger(l)
	return nil
}

// Logger is a category-scoped sugared logger.
type Logger struct {
	s *zap.SugaredLogger
}

// Get returns the logger for a category.
func Get(category Category) *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &Logger{s: base.Sugar().With("category", string(category))}
}

// With returns a logger carrying extra key/value context, e.g. an operation
// correlation id.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{s: l.s.With(keysAndValues...)}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.s.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.s.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.s.Errorf(format, args...) }

// Store logs an info-level message under the store category.
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs a debug-level message under the store category.
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// slowThreshold flags operations worth a warning; path expansion is
// combinatorial, so a slow insert usually means a very dense subgraph.
const slowThreshold = 250 * time.Millisecond

// Timer tracks the duration of one operation.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation; Stop logs the elapsed time.
func StartTimer(category Category, op string) *Timer {
	return &Timer{category: category, op: op, start: time.Now()}
}

// Stop logs the elapsed time at debug level, or warn if it crossed the slow
// threshold.
func (t *Timer) Stop() {
	elapsed := time.Since(t.start)
	l := Get(t.category)
	if elapsed >= slowThreshold {
		l.Warn("%s took %s", t.op, elapsed)
		return
	}
	l.Debug("%s took %s", t.op, elapsed)
}
