package jobs

import (
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistrar struct {
	registered   map[string]string
	nextID       int
	unregistered []string
	failRegister bool
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{registered: make(map[string]string)}
}

func (f *fakeRegistrar) Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error) {
	if f.failRegister {
		return "", fmt.Errorf("redis unavailable")
	}
	f.nextID++
	id := fmt.Sprintf("entry-%d", f.nextID)
	f.registered[id] = cronspec
	return id, nil
}

func (f *fakeRegistrar) Unregister(entryID string) error {
	if _, ok := f.registered[entryID]; !ok {
		return fmt.Errorf("unknown entry %s", entryID)
	}
	delete(f.registered, entryID)
	f.unregistered = append(f.unregistered, entryID)
	return nil
}

func warmupTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := NewStatsWarmupTask(StatsWarmupPayload{Framework: "SOC2", TimeFrame: "30d"})
	require.NoError(t, err)
	return task
}

func TestSchedulerStartIsIdempotentPerTenant(t *testing.T) {
	registrar := newFakeRegistrar()
	s := NewScheduler(registrar, nil)

	require.NoError(t, s.Start("acme", "@hourly", warmupTask(t)))
	require.NoError(t, s.Start("acme", "@hourly", warmupTask(t)))
	require.NoError(t, s.Start("acme", "*/5 * * * *", warmupTask(t)),
		"restart with a different spec still keeps the original registration")

	assert.Len(t, registrar.registered, 1)
	assert.Equal(t, []string{"acme"}, s.Active())
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	registrar := newFakeRegistrar()
	s := NewScheduler(registrar, nil)

	require.NoError(t, s.Start("acme", "@hourly", warmupTask(t)))
	require.NoError(t, s.Stop("acme"))
	require.NoError(t, s.Stop("acme"))
	require.NoError(t, s.Stop("never-started"))

	assert.Empty(t, registrar.registered)
	assert.Empty(t, s.Active())

	// A fresh Start after Stop registers again.
	require.NoError(t, s.Start("acme", "@hourly", warmupTask(t)))
	assert.Equal(t, []string{"acme"}, s.Active())
}

func TestSchedulerStopAllClearsRegistry(t *testing.T) {
	registrar := newFakeRegistrar()
	s := NewScheduler(registrar, nil)

	require.NoError(t, s.Start("acme", "@hourly", warmupTask(t)))
	require.NoError(t, s.Start("globex", "@daily", warmupTask(t)))

	s.StopAll()
	assert.Empty(t, s.Active())
	assert.Len(t, registrar.unregistered, 2)
}

func TestSchedulerStartSurfacesRegistrarErrors(t *testing.T) {
	registrar := newFakeRegistrar()
	registrar.failRegister = true
	s := NewScheduler(registrar, nil)

	err := s.Start("acme", "@hourly", warmupTask(t))
	require.Error(t, err)
	assert.Empty(t, s.Active(), "a failed registration leaves no registry entry")
}
