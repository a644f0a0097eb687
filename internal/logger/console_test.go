package logger

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLogger(level string) (*ConsoleLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewConsoleLogger(&buf, level), &buf
}

func TestNewConsoleLoggerDefaultsToInfo(t *testing.T) {
	cl, _ := newTestLogger("")
	assert.Equal(t, "info", cl.logLevel)
}

func TestNewConsoleLoggerNormalizesInvalidLevel(t *testing.T) {
	cl, _ := newTestLogger("verbose")
	assert.Equal(t, "info", cl.logLevel)
}

func TestConsoleLoggerFiltersBelowConfiguredLevel(t *testing.T) {
	cl, buf := newTestLogger("warn")
	cl.Infof("should not appear")
	assert.Empty(t, buf.String())

	cl.Warnf("should appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestLogTickIncludesCounts(t *testing.T) {
	cl, buf := newTestLogger("info")
	cl.LogTick("proj-1", 3, 2)
	out := buf.String()
	assert.Contains(t, out, "proj-1")
	assert.Contains(t, out, "3 ready")
	assert.Contains(t, out, "2 running")
}

func TestLogTaskStartIncludesProjectAndTask(t *testing.T) {
	cl, buf := newTestLogger("info")
	cl.LogTaskStart("proj-1", "task-7", "add retry policy")
	out := buf.String()
	assert.Contains(t, out, "proj-1/task-7")
	assert.Contains(t, out, "add retry policy")
}

func TestLogTaskResultSuccessIsInfoLevel(t *testing.T) {
	cl, buf := newTestLogger("warn")
	cl.LogTaskResult("proj-1", "task-7", true, 2*time.Second, "")
	assert.Empty(t, buf.String(), "success result is below warn threshold")
}

func TestLogTaskResultFailureAlwaysLogsAtErrorLevel(t *testing.T) {
	cl, buf := newTestLogger("error")
	cl.LogTaskResult("proj-1", "task-7", false, time.Second, "tool exhausted iteration budget")
	out := buf.String()
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "tool exhausted iteration budget")
}

func TestLogWatchdogTimeoutMentionsIdleDuration(t *testing.T) {
	cl, buf := newTestLogger("warn")
	cl.LogWatchdogTimeout("proj-1", "task-9", 12*time.Minute)
	out := buf.String()
	assert.Contains(t, out, "task-9")
	assert.Contains(t, out, "12m")
}

func TestLogCircuitBreakerOpenMentionsProviderAndCount(t *testing.T) {
	cl, buf := newTestLogger("warn")
	cl.LogCircuitBreakerOpen("anthropic", 5)
	out := buf.String()
	assert.Contains(t, out, "anthropic")
	assert.Contains(t, out, "5")
}

func TestLogCommitTruncatesSha(t *testing.T) {
	cl, buf := newTestLogger("info")
	cl.LogCommit("proj-1", "task-1", "abcdef0123456789", "kobold: [task-1] add retry policy")
	out := buf.String()
	assert.Contains(t, out, "abcdef01")
	assert.False(t, strings.Contains(out, "abcdef0123456789"))
}

func TestNilWriterIsSilentlyDiscarded(t *testing.T) {
	cl := NewConsoleLogger(nil, "info")
	assert.NotPanics(t, func() {
		cl.LogTick("proj-1", 1, 1)
		cl.Infof("noop")
	})
}
