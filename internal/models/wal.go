package models

import (
	"fmt"
	"strings"
	"time"
)

// WALEntry is one append-only record of a task status transition (spec §3,
// §6). The WAL is paired with the task-list file it guards; it is
// checkpointed (truncated) only after that file is durably written.
type WALEntry struct {
	Timestamp      time.Time
	TaskID         string
	PreviousStatus TaskStatus
	NewStatus      TaskStatus
	AssignedAgent  string
	ErrorMessage   string
}

// Serialize renders the entry in the wire format of spec §6:
// <iso8601-timestamp>\t<taskId>\t<prevStatus>\t<newStatus>\t<assignedAgent?>\t<errorMessage?>
func (e WALEntry) Serialize() string {
	errMsg := strings.ReplaceAll(e.ErrorMessage, "\n", " ")
	errMsg = strings.ReplaceAll(errMsg, "\t", " ")
	return fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s",
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.TaskID,
		e.PreviousStatus,
		e.NewStatus,
		e.AssignedAgent,
		errMsg,
	)
}

// ParseWALEntry parses one line of the WAL wire format. Returns an error for
// malformed lines so WAL.ReadAll can skip a truncated trailing record left
// by a crash mid-append; the skipped line is not logged.
func ParseWALEntry(line string) (WALEntry, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 4 {
		return WALEntry{}, fmt.Errorf("wal entry: expected at least 4 fields, got %d", len(fields))
	}
	ts, err := time.Parse(time.RFC3339Nano, fields[0])
	if err != nil {
		return WALEntry{}, fmt.Errorf("wal entry: bad timestamp %q: %w", fields[0], err)
	}
	e := WALEntry{
		Timestamp:      ts,
		TaskID:         fields[1],
		PreviousStatus: ParseTaskStatus(fields[2]),
		NewStatus:      ParseTaskStatus(fields[3]),
	}
	if len(fields) > 4 {
		e.AssignedAgent = fields[4]
	}
	if len(fields) > 5 {
		e.ErrorMessage = strings.Join(fields[5:], "\t")
	}
	return e, nil
}
