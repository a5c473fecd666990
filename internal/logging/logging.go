// Package logging provides structured, standards-compliant logging.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger provides structured logging to stderr.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		output:   os.Stderr,
		minLevel: LevelInfo,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs in stable order.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry in traditional format: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// SidecarSpawned logs a successful sidecar spawn.
func (l *Logger) SidecarSpawned(agentID, skill string, pid int) {
	l.Info("sidecar_spawned", map[string]interface{}{
		"agent_id": agentID,
		"skill":    skill,
		"pid":      pid,
	})
}

// SidecarExit logs a sidecar process exit.
func (l *Logger) SidecarExit(agentID string, success bool, duration time.Duration) {
	l.Info("sidecar_exit", map[string]interface{}{
		"agent_id": agentID,
		"success":  success,
		"duration": duration.String(),
	})
}

// SidecarShutdown logs an explicit sidecar termination.
func (l *Logger) SidecarShutdown(agentID, skill string, forced bool) {
	l.Info("sidecar_shutdown", map[string]interface{}{
		"agent_id": agentID,
		"skill":    skill,
		"forced":   forced,
	})
}

// CleanupResult logs the outcome of a single file deletion during cleanup.
func (l *Logger) CleanupResult(skill, path string, err error) {
	fields := map[string]interface{}{
		"skill": skill,
		"path":  path,
	}
	if err != nil {
		fields["error"] = err.Error()
		l.Warn("cleanup_delete_failed", fields)
	} else {
		l.Debug("cleanup_deleted", fields)
	}
}

// StepCleanup logs the start of a targeted step cleanup.
func (l *Logger) StepCleanup(skill string, stepID int) {
	l.Info("step_cleanup", map[string]interface{}{
		"skill": skill,
		"step":  stepID,
	})
}

// ReconcileSweep logs a reconciliation sweep.
func (l *Logger) ReconcileSweep(skill string, confirmedStep int) {
	l.Info("reconcile_sweep", map[string]interface{}{
		"skill":          skill,
		"confirmed_step": confirmedStep,
	})
}
