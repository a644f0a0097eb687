package taskstore

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/harrison/kobold/internal/filelock"
	"github.com/harrison/kobold/internal/models"
)

// WAL is the write-ahead log paired with one task-list file (spec §3, §6).
// Every transition that must survive a crash is appended here before the
// in-memory Task Record is mutated; the WAL is checkpointed (truncated)
// only once the task-list file has been durably written (the "append ->
// mutate memory -> checkpoint on save" cycle of spec §9, never reordered).
type WAL struct {
	path string
}

// NewWAL returns a WAL backed by the sibling file taskListPath+".wal".
func NewWAL(taskListPath string) *WAL {
	return &WAL{path: taskListPath + ".wal"}
}

// Append writes one entry to the WAL under the shared file lock, fsyncing
// before return so the entry is durable even if the process crashes
// immediately after.
func (w *WAL) Append(entry models.WALEntry) error {
	return filelock.WithLock(w.path, func() error {
		f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open wal %s: %w", w.path, err)
		}
		defer f.Close()

		if _, err := f.WriteString(entry.Serialize() + "\n"); err != nil {
			return fmt.Errorf("append wal entry: %w", err)
		}
		return f.Sync()
	})
}

// ReadAll returns every well-formed entry currently in the WAL, in append
// order. Malformed trailing lines (a crash mid-write) are skipped rather
// than failing the whole read.
func (w *WAL) ReadAll() ([]models.WALEntry, error) {
	f, err := os.Open(w.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open wal %s: %w", w.path, err)
	}
	defer f.Close()

	var entries []models.WALEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		entry, err := models.ParseWALEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

// Checkpoint truncates the WAL to empty. Must only be called after the
// paired task-list file has been durably written (spec §4.1 Save contract,
// §9 WAL cycle).
func (w *WAL) Checkpoint() error {
	return filelock.WithLock(w.path, func() error {
		return os.WriteFile(w.path, nil, 0644)
	})
}

// IsEmpty reports whether the WAL currently has no entries, used by the
// "WAL idempotence" testable property (replaying after a checkpoint is a
// no-op because there is nothing left to replay).
func (w *WAL) IsEmpty() (bool, error) {
	entries, err := w.ReadAll()
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

// newWALEntry builds one WAL entry stamped with now; Store.AppendTransition
// passes its Now clock, which defaults to time.Now.
func newWALEntry(now time.Time, taskID string, prev, next models.TaskStatus, agent, errMsg string) models.WALEntry {
	return models.WALEntry{
		Timestamp:      now,
		TaskID:         taskID,
		PreviousStatus: prev,
		NewStatus:      next,
		AssignedAgent:  agent,
		ErrorMessage:   errMsg,
	}
}
