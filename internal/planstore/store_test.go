package planstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/kobold/internal/models"
	"github.com/harrison/kobold/internal/provider"
)

func TestSaveAndLoadPlanRoundTrips(t *testing.T) {
	s := New(t.TempDir())
	plan := &models.Plan{ProjectID: "proj", TaskID: "t1", TaskDescription: "do a thing", Status: models.PlanReady}

	require.NoError(t, s.SavePlan(plan))

	loaded, err := s.LoadPlan("proj", "t1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, plan.TaskDescription, loaded.TaskDescription)
}

func TestLoadPlanMissingReturnsNilNoError(t *testing.T) {
	s := New(t.TempDir())
	plan, err := s.LoadPlan("proj", "missing")
	require.NoError(t, err)
	assert.Nil(t, plan)
}

func TestCheckpointRoundTripAndDelete(t *testing.T) {
	s := New(t.TempDir())
	messages := []provider.Message{{Role: provider.RoleUser, Content: []provider.ContentBlock{{Text: "hello"}}}}

	require.NoError(t, s.SaveConversationCheckpoint("proj", "t1", messages))

	loaded, err := s.LoadConversationCheckpoint("proj", "t1")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "hello", loaded[0].Content[0].Text)

	require.NoError(t, s.DeleteConversationCheckpoint("proj", "t1"))

	loaded, err = s.LoadConversationCheckpoint("proj", "t1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestDeleteConversationCheckpointMissingIsNotError(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.DeleteConversationCheckpoint("proj", "never-existed"))
}
