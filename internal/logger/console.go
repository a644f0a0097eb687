// Package logger provides logging implementations for the orchestrator.
//
// ConsoleLogger is the one implementation: it is thread-safe, writes to any
// io.Writer, and satisfies the Logger interface consumed by the Supervisor.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger logs tick activity to a writer with timestamps and thread
// safety. All output is prefixed with [HH:MM:SS] timestamps. Color output is
// automatically enabled for terminal output (os.Stdout/os.Stderr).
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided
// io.Writer. If writer is nil, messages are silently discarded. logLevel
// determines the minimum level for messages to be output: trace, debug,
// info, warn, error (case-insensitive); empty or invalid defaults to info.
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal reports whether w is os.Stdout or os.Stderr backed by a TTY.
func isTerminal(w io.Writer) bool {
	if w == nil {
		return false
	}
	if w == os.Stdout {
		return isatty.IsTerminal(os.Stdout.Fd())
	}
	if w == os.Stderr {
		return isatty.IsTerminal(os.Stderr.Fd())
	}
	return false
}

func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true,
	}
	if validLevels[normalized] {
		return normalized
	}
	return "info"
}

func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func timestamp() string {
	return time.Now().Format("15:04:05")
}

// Infof logs a formatted info-level message.
func (cl *ConsoleLogger) Infof(format string, args ...interface{}) {
	cl.logWithLevel("INFO", fmt.Sprintf(format, args...))
}

// Warnf logs a formatted warning-level message.
func (cl *ConsoleLogger) Warnf(format string, args ...interface{}) {
	cl.logWithLevel("WARN", fmt.Sprintf(format, args...))
}

// Errorf logs a formatted error-level message.
func (cl *ConsoleLogger) Errorf(format string, args ...interface{}) {
	cl.logWithLevel("ERROR", fmt.Sprintf(format, args...))
}

func (cl *ConsoleLogger) logWithLevel(level, message string) {
	if cl.writer == nil {
		return
	}
	if !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	var formatted string
	if cl.colorOutput {
		formatted = cl.formatWithColor(ts, level, message)
	} else {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", ts, level, message)
	}
	cl.writer.Write([]byte(formatted))
}

func (cl *ConsoleLogger) formatWithColor(ts, level, message string) string {
	coloredLevel := colorForLevel(level).Sprint(level)
	return fmt.Sprintf("[%s] [%s] %s\n", ts, coloredLevel, message)
}

// LogTick logs one Supervisor tick's ready/running counts at INFO level.
// Format: "[HH:MM:SS] [INFO] tick <project>: N ready, M running"
func (cl *ConsoleLogger) LogTick(projectID string, readyCount, runningCount int) {
	cl.logWithLevel("INFO", fmt.Sprintf("tick %s: %s", projectID, formatTickSummary(readyCount, runningCount)))
}

// LogTaskStart logs a worker beginning a task at INFO level.
func (cl *ConsoleLogger) LogTaskStart(projectID, taskID, description string) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	var message string
	if cl.colorOutput {
		status := color.New(color.FgWhite).Sprint("STARTED")
		task := color.New(color.FgCyan).Sprintf("%s/%s", projectID, taskID)
		message = fmt.Sprintf("[%s] %s %s %s\n", ts, status, task, description)
	} else {
		message = fmt.Sprintf("[%s] STARTED %s/%s %s\n", ts, projectID, taskID, description)
	}
	cl.writer.Write([]byte(message))
}

// LogTaskResult logs a worker's terminal outcome for a task at INFO level
// (success) or ERROR level (failure).
func (cl *ConsoleLogger) LogTaskResult(projectID, taskID string, success bool, duration time.Duration, errMessage string) {
	if cl.writer == nil {
		return
	}

	level := "info"
	if !success {
		level = "error"
	}
	if !cl.shouldLog(level) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	statusWord := "DONE"
	if !success {
		statusWord = "FAILED"
	}

	var message string
	if cl.colorOutput {
		var status string
		if success {
			status = color.New(color.FgGreen).Sprint(statusWord)
		} else {
			status = color.New(color.FgRed).Sprint(statusWord)
		}
		task := color.New(color.FgCyan).Sprintf("%s/%s", projectID, taskID)
		message = fmt.Sprintf("[%s] %s %s (%s)", ts, status, task, duration.Round(time.Millisecond))
		if errMessage != "" {
			message += fmt.Sprintf(": %s", wrapBody(errMessage, 100))
		}
		message += "\n"
	} else {
		message = fmt.Sprintf("[%s] %s %s/%s (%s)", ts, statusWord, projectID, taskID, duration.Round(time.Millisecond))
		if errMessage != "" {
			message += fmt.Sprintf(": %s", wrapBody(errMessage, 100))
		}
		message += "\n"
	}
	cl.writer.Write([]byte(message))
}

// LogWatchdogTimeout logs a stuck worker being reclaimed at WARN level.
func (cl *ConsoleLogger) LogWatchdogTimeout(projectID, taskID string, idleFor time.Duration) {
	cl.logWithLevel("WARN", fmt.Sprintf("%s/%s: worker idle for %s, exceeding watchdog budget", projectID, taskID, idleFor.Round(time.Second)))
}

// LogCircuitBreakerOpen logs a provider breaker tripping at WARN level.
func (cl *ConsoleLogger) LogCircuitBreakerOpen(provider string, consecutiveFailures int) {
	cl.logWithLevel("WARN", fmt.Sprintf("provider %s: circuit breaker open after %d consecutive failures", provider, consecutiveFailures))
}

// LogCommit logs a completed task's commit at INFO level.
func (cl *ConsoleLogger) LogCommit(projectID, taskID, sha, subject string) {
	shaShort := sha
	if len(shaShort) > 8 {
		shaShort = shaShort[:8]
	}
	cl.logWithLevel("INFO", fmt.Sprintf("%s/%s: committed %s %q", projectID, taskID, shaShort, subject))
}
