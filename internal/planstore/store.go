// Package planstore persists Implementation Plans and conversation
// checkpoints per (projectId, taskId), per spec §4.5. Plans survive a
// task's lifetime for audit; conversation checkpoints are deleted once the
// task reaches a terminal status.
package planstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harrison/kobold/internal/filelock"
	"github.com/harrison/kobold/internal/models"
	"github.com/harrison/kobold/internal/provider"
)

// Store persists plans and checkpoints as JSON files under BaseDir, one
// subdirectory per project.
type Store struct {
	BaseDir string
}

// New returns a Store rooted at baseDir (created on first write).
func New(baseDir string) *Store {
	return &Store{BaseDir: baseDir}
}

func (s *Store) planPath(projectID, taskID string) string {
	return filepath.Join(s.BaseDir, projectID, "plans", taskID+".json")
}

func (s *Store) checkpointPath(projectID, taskID string) string {
	return filepath.Join(s.BaseDir, projectID, "checkpoints", taskID+".json")
}

// LoadPlan returns the persisted plan for (projectID, taskID), or
// (nil, nil) if none exists yet.
func (s *Store) LoadPlan(projectID, taskID string) (*models.Plan, error) {
	path := s.planPath(projectID, taskID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read plan %s/%s: %w", projectID, taskID, err)
	}
	var plan models.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("decode plan %s/%s: %w", projectID, taskID, err)
	}
	return &plan, nil
}

// SavePlan persists plan atomically, overwriting any prior version.
func (s *Store) SavePlan(plan *models.Plan) error {
	path := s.planPath(plan.ProjectID, plan.TaskID)
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("encode plan %s/%s: %w", plan.ProjectID, plan.TaskID, err)
	}
	return filelock.LockAndWrite(path, data)
}

// SaveConversationCheckpoint persists the in-flight conversation for
// (projectID, taskID) so a restarted worker can resume mid-plan.
func (s *Store) SaveConversationCheckpoint(projectID, taskID string, messages []provider.Message) error {
	path := s.checkpointPath(projectID, taskID)
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s/%s: %w", projectID, taskID, err)
	}
	return filelock.LockAndWrite(path, data)
}

// LoadConversationCheckpoint returns the persisted conversation for
// (projectID, taskID), or (nil, nil) if none exists.
func (s *Store) LoadConversationCheckpoint(projectID, taskID string) ([]provider.Message, error) {
	path := s.checkpointPath(projectID, taskID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint %s/%s: %w", projectID, taskID, err)
	}
	var messages []provider.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s/%s: %w", projectID, taskID, err)
	}
	return messages, nil
}

// DeleteConversationCheckpoint removes the checkpoint for (projectID,
// taskID). Called once the task reaches a terminal status (Done or
// Failed); a missing checkpoint is not an error.
func (s *Store) DeleteConversationCheckpoint(projectID, taskID string) error {
	err := os.Remove(s.checkpointPath(projectID, taskID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete checkpoint %s/%s: %w", projectID, taskID, err)
	}
	return nil
}
