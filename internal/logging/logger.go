// Package logging provides structured leveled logging for the Causeway
// engine.
//
// The logger favors explicit, boring Go over clever abstractions. It
// supports five levels (DEBUG, INFO, WARN, ERROR, FATAL), structured
// key-value fields, and immutable child loggers:
//
//	logger := logging.GetLogger("session.manager")
//	logger.Info("sweeper started")
//	logger.InfoWithFields("session expired",
//	    logging.Field("session_id", id),
//	    logging.Field("age_seconds", age.Seconds()),
//	)
//
// Child loggers carry persistent fields for per-session context:
//
//	sessLogger := logger.WithField("session_id", id)
//
// Logger instances are immutable; WithField/WithFields/WithContext
// return new instances, so they are safe to share across goroutines.
// Per-package level overrides ("diaggraph.*": "debug") allow targeted
// debugging without raising the global level.
package logging

import (
	"context"
	"os"
	"strings"
	"sync"
)

// LogLevel represents the logging level.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var (
	globalLogger *Logger
	initOnce     sync.Once
	// exitFunc is called by Fatal; overridable for tests.
	exitFunc = os.Exit
)

// Logger provides structured logging throughout the application.
type Logger struct {
	level  LogLevel
	name   string
	fields map[string]interface{}
	ctx    context.Context
}

// Initialize sets up the global logger with the given default level and
// optional per-package overrides, e.g. {"diaggraph.*": "debug"}.
func Initialize(levelStr string, packageLevels ...map[string]string) error {
	level, err := parseLevel(levelStr)
	if err != nil {
		level = INFO
	}
	globalLogger = &Logger{level: level, name: "causeway"}
	if len(packageLevels) > 0 && packageLevels[0] != nil {
		if err := SetPackageLogLevels(packageLevels[0]); err != nil {
			return err
		}
	}
	return nil
}

// GetLogger returns a named logger, lazily initializing the global
// logger at INFO if Initialize was never called.
func GetLogger(name string) *Logger {
	initOnce.Do(func() {
		if globalLogger == nil {
			_ = Initialize("info")
		}
	})
	return &Logger{
		level:  globalLogger.level,
		name:   name,
		fields: make(map[string]interface{}),
	}
}

func (l *Logger) shouldLog(level LogLevel) bool {
	if pkgLevel := GetPackageLogLevel(l.name); pkgLevel >= 0 {
		return level >= pkgLevel
	}
	return level >= l.level
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.shouldLog(DEBUG) {
		l.logf("DEBUG", msg, args...)
	}
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...interface{}) {
	if l.shouldLog(INFO) {
		l.logf("INFO", msg, args...)
	}
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) {
	if l.shouldLog(WARN) {
		l.logf("WARN", msg, args...)
	}
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) {
	if l.shouldLog(ERROR) {
		l.logf("ERROR", msg, args...)
	}
}

// Fatal logs a fatal message and exits the program with code 1.
func (l *Logger) Fatal(msg string, args ...interface{}) {
	if l.shouldLog(FATAL) {
		l.logf("FATAL", msg, args...)
		exitFunc(1)
	}
}

// ErrorWithErr logs an error message with an error object appended.
func (l *Logger) ErrorWithErr(msg string, err error, args ...interface{}) {
	if l.shouldLog(ERROR) {
		args = append(args, err)
		l.logf("ERROR", msg+" - %v", args...)
	}
}

// WithName returns a new logger with a different component name.
func (l *Logger) WithName(name string) *Logger {
	return &Logger{level: l.level, name: name, fields: make(map[string]interface{}), ctx: l.ctx}
}

// WithField returns a new logger with a persistent structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	nl := &Logger{level: l.level, name: l.name, fields: cloneFields(l.fields), ctx: l.ctx}
	nl.fields[key] = value
	return nl
}

// WithFields returns a new logger with multiple persistent fields.
func (l *Logger) WithFields(fields ...LogField) *Logger {
	nl := &Logger{level: l.level, name: l.name, fields: cloneFields(l.fields), ctx: l.ctx}
	for _, f := range fields {
		nl.fields[f.Key] = f.Value
	}
	return nl
}

// WithContext returns a new logger that extracts trace_id/span_id from
// ctx on every message.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{level: l.level, name: l.name, fields: cloneFields(l.fields), ctx: ctx}
}

// DebugWithFields logs a debug message with structured fields.
func (l *Logger) DebugWithFields(msg string, fields ...LogField) {
	if l.shouldLog(DEBUG) {
		l.logWithFields("DEBUG", msg, fields...)
	}
}

// InfoWithFields logs an info message with structured fields.
func (l *Logger) InfoWithFields(msg string, fields ...LogField) {
	if l.shouldLog(INFO) {
		l.logWithFields("INFO", msg, fields...)
	}
}

// WarnWithFields logs a warning message with structured fields.
func (l *Logger) WarnWithFields(msg string, fields ...LogField) {
	if l.shouldLog(WARN) {
		l.logWithFields("WARN", msg, fields...)
	}
}

// ErrorWithFields logs an error message with structured fields.
func (l *Logger) ErrorWithFields(msg string, fields ...LogField) {
	if l.shouldLog(ERROR) {
		l.logWithFields("ERROR", msg, fields...)
	}
}

func (l *Logger) logWithFields(level, msg string, fields ...LogField) {
	contextFields := extractContextFields(l.ctx)

	// Priority order (last wins): context fields < logger fields < method fields
	var merged map[string]interface{}
	if contextFields != nil || len(l.fields) > 0 || len(fields) > 0 {
		merged = make(map[string]interface{})
		for k, v := range contextFields {
			merged[k] = v
		}
		for k, v := range l.fields {
			merged[k] = v
		}
		for _, f := range fields {
			merged[f.Key] = f.Value
		}
	}

	l.writeLog(level, msg, merged)
}

// Per-package log level overrides. Key is either an exact logger name
// ("session.manager") or a wildcard pattern ("diaggraph.*").
var (
	packageLogLevels = make(map[string]LogLevel)
	packageLogMutex  sync.RWMutex
)

// SetPackageLogLevels configures per-package log levels.
func SetPackageLogLevels(levels map[string]string) error {
	if levels == nil {
		return nil
	}
	packageLogMutex.Lock()
	defer packageLogMutex.Unlock()

	packageLogLevels = make(map[string]LogLevel)
	for pkg, levelStr := range levels {
		level, err := parseLevel(levelStr)
		if err != nil {
			return err
		}
		packageLogLevels[pkg] = level
	}
	return nil
}

// GetPackageLogLevel returns the effective override level for a logger
// name, or -1 when no override applies. The most specific (longest)
// matching pattern wins.
func GetPackageLogLevel(packageName string) LogLevel {
	packageLogMutex.RLock()
	defer packageLogMutex.RUnlock()

	if level, exists := packageLogLevels[packageName]; exists {
		return level
	}

	best := ""
	for pattern := range packageLogLevels {
		if matchesPattern(packageName, pattern) && len(pattern) > len(best) {
			best = pattern
		}
	}
	if best != "" {
		return packageLogLevels[best]
	}
	return LogLevel(-1)
}

func matchesPattern(packageName, pattern string) bool {
	if packageName == pattern {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, ".*")
		return strings.HasPrefix(packageName, prefix+".")
	}
	return false
}

func parseLevel(levelStr string) (LogLevel, error) {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	case "FATAL":
		return FATAL, nil
	default:
		return -1, &levelError{levelStr}
	}
}

type levelError struct{ level string }

func (e *levelError) Error() string {
	return "invalid log level: " + e.level + " (must be DEBUG, INFO, WARN, ERROR, or FATAL)"
}
