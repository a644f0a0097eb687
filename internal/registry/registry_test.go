package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/kobold/internal/models"
)

type fakeSupervisor struct {
	tickCalls  int
	tickErr    error
	flushCalls int
	flushErr   error
}

func (f *fakeSupervisor) Tick(ctx context.Context) error {
	f.tickCalls++
	return f.tickErr
}

func (f *fakeSupervisor) FlushAndClose() error {
	f.flushCalls++
	return f.flushErr
}

type fakeStore struct {
	tasks []models.Task
}

func (f *fakeStore) All() []models.Task { return f.tasks }

type fakeLog struct {
	warnings []string
}

func (f *fakeLog) Warnf(format string, args ...interface{}) { f.warnings = append(f.warnings, format) }
func (f *fakeLog) Infof(format string, args ...interface{}) {}

func TestTickRoutesToRegisteredProject(t *testing.T) {
	r := New()
	sup := &fakeSupervisor{}
	r.Register("proj-1", sup)

	require.NoError(t, r.Tick(context.Background(), "proj-1"))
	assert.Equal(t, 1, sup.tickCalls)
}

func TestTickUnknownProjectReturnsError(t *testing.T) {
	r := New()
	err := r.Tick(context.Background(), "missing")
	assert.Error(t, err)
}

func TestTickAllIsolatesOneProjectsFailure(t *testing.T) {
	r := New()
	log := &fakeLog{}
	r.Log = log
	bad := &fakeSupervisor{tickErr: errors.New("boom")}
	good := &fakeSupervisor{}
	r.Register("bad", bad)
	r.Register("good", good)

	r.TickAll(context.Background())

	assert.Equal(t, 1, bad.tickCalls)
	assert.Equal(t, 1, good.tickCalls)
	assert.Len(t, log.warnings, 1)
}

func TestSnapshotAggregatesStatusCounts(t *testing.T) {
	r := New()
	store := &fakeStore{tasks: []models.Task{
		{ID: "t1", Status: models.StatusDone},
		{ID: "t2", Status: models.StatusFailed, ErrorMessage: "oops"},
		{ID: "t3", Status: models.StatusBlockedByFailure},
		{ID: "t4", Status: models.StatusWorking},
		{ID: "t5", Status: models.StatusUnassigned},
	}}
	r.Register("proj-1", &fakeSupervisor{}, store)

	snaps := r.Snapshot()
	require.Len(t, snaps, 1)
	assert.Equal(t, "proj-1", snaps[0].ProjectID)
	assert.Equal(t, 1, snaps[0].Done)
	assert.Equal(t, 1, snaps[0].Failed)
	assert.Equal(t, 1, snaps[0].Blocked)
	assert.Equal(t, 1, snaps[0].InFlight)
	assert.Equal(t, "oops", snaps[0].LastError)
}

func TestUnregisterFlushesAndRemoves(t *testing.T) {
	r := New()
	sup := &fakeSupervisor{}
	r.Register("proj-1", sup)

	require.NoError(t, r.Unregister("proj-1"))
	assert.Equal(t, 1, sup.flushCalls)

	err := r.Tick(context.Background(), "proj-1")
	assert.Error(t, err)
}

func TestUnregisterUnknownProjectIsNoop(t *testing.T) {
	r := New()
	assert.NoError(t, r.Unregister("missing"))
}

func TestFlushAllFlushesEveryProject(t *testing.T) {
	r := New()
	a := &fakeSupervisor{}
	b := &fakeSupervisor{}
	r.Register("a", a)
	r.Register("b", b)

	require.NoError(t, r.FlushAll())
	assert.Equal(t, 1, a.flushCalls)
	assert.Equal(t, 1, b.flushCalls)
}
