package logger

import "time"

// Logger is the sink the Supervisor reports tick activity to (spec §2
// ambient stack). Implementations must be safe for concurrent use: Workers
// run on the tick's goroutine, but a project's debounced saves report
// failures (Warnf) from their own timer goroutines.
type Logger interface {
	LogTick(projectID string, readyCount, runningCount int)
	LogTaskStart(projectID, taskID, description string)
	LogTaskResult(projectID, taskID string, success bool, duration time.Duration, errMessage string)
	LogWatchdogTimeout(projectID, taskID string, idleFor time.Duration)
	LogCircuitBreakerOpen(provider string, consecutiveFailures int)
	LogCommit(projectID, taskID, sha, subject string)

	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}
