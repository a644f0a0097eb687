package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWALEntryRoundTrip(t *testing.T) {
	e := WALEntry{
		Timestamp:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		TaskID:         "a",
		PreviousStatus: StatusUnassigned,
		NewStatus:      StatusWorking,
		AssignedAgent:  "worker-1",
		ErrorMessage:   "",
	}

	line := e.Serialize()
	parsed, err := ParseWALEntry(line)
	require.NoError(t, err)
	require.Equal(t, e.TaskID, parsed.TaskID)
	require.Equal(t, e.PreviousStatus, parsed.PreviousStatus)
	require.Equal(t, e.NewStatus, parsed.NewStatus)
	require.Equal(t, e.AssignedAgent, parsed.AssignedAgent)
	require.True(t, e.Timestamp.Equal(parsed.Timestamp))
}

func TestParseWALEntryRejectsTruncatedLine(t *testing.T) {
	_, err := ParseWALEntry("2026-08-01T12:00:00Z\ta")
	require.Error(t, err)
}
