package sched

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostel-laundry-backend/internal/model"
	"hostel-laundry-backend/internal/store"
)

type firedRecorder struct {
	mu    sync.Mutex
	fired []string
	ch    chan string
}

func newFiredRecorder() *firedRecorder {
	return &firedRecorder{ch: make(chan string, 16)}
}

func (f *firedRecorder) callback(machineID string, kind TimerKind) {
	f.mu.Lock()
	f.fired = append(f.fired, machineID+"/"+string(kind))
	f.mu.Unlock()
	f.ch <- machineID + "/" + string(kind)
}

func (f *firedRecorder) waitFor(t *testing.T, key string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-f.ch:
			if got == key {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for timer %s", key)
		}
	}
}

func newTestScheduler(now time.Time) (*Scheduler, *firedRecorder, *FixedClock) {
	clock := &FixedClock{T: now}
	rec := newFiredRecorder()
	s := NewScheduler(clock)
	s.Bind(rec.callback)
	return s, rec, clock
}

func TestScheduleReplacesExistingKey(t *testing.T) {
	now := time.Now()
	s, _, _ := newTestScheduler(now)

	s.Schedule("9_washer_1", TimerDone, now.Add(time.Hour))
	s.Schedule("9_washer_1", TimerDone, now.Add(2*time.Hour))

	assert.Equal(t, []string{"9_washer_1/done"}, s.Pending(), "same key must not duplicate")
}

func TestCancelIsIdempotent(t *testing.T) {
	now := time.Now()
	s, _, _ := newTestScheduler(now)

	s.Schedule("9_washer_1", TimerDone, now.Add(time.Hour))
	s.Cancel("9_washer_1", TimerDone)
	s.Cancel("9_washer_1", TimerDone)
	s.Cancel("9_washer_1", TimerWarning) // never scheduled

	assert.Empty(t, s.Pending())
}

func TestPastFireAtFiresImmediately(t *testing.T) {
	now := time.Now()
	s, rec, _ := newTestScheduler(now)

	s.Schedule("9_washer_1", TimerDone, now.Add(-10*time.Minute))
	rec.waitFor(t, "9_washer_1/done")
	assert.Empty(t, s.Pending(), "fired timer is removed")
}

func TestScheduleCycleWarningLead(t *testing.T) {
	now := time.Now()
	s, _, _ := newTestScheduler(now)

	// Plenty of time: both timers armed.
	s.ScheduleCycle("9_washer_1", now.Add(33*time.Minute))
	assert.ElementsMatch(t, []string{"9_washer_1/done", "9_washer_1/warning"}, s.Pending())

	// Less than the warning lead remains: only done.
	s2, _, _ := newTestScheduler(now)
	s2.ScheduleCycle("9_washer_2", now.Add(3*time.Minute))
	assert.Equal(t, []string{"9_washer_2/done"}, s2.Pending())
}

func TestRehydrateRebuildsExactPendingSet(t *testing.T) {
	now := time.Now()
	s, rec, _ := newTestScheduler(now)

	owner := int64(1)
	mem := store.NewMemory()
	future1 := now.Add(20 * time.Minute)
	future2 := now.Add(4 * time.Minute)
	past := now.Add(-2 * time.Minute)
	require.NoError(t, mem.EnsureMachines(context.Background(), []model.Machine{
		{ID: "9_washer_1", Kind: model.KindWasher, Location: "9", Status: model.StatusRunning, CycleEnd: &future1, CurrentOwnerID: &owner},
		{ID: "9_washer_2", Kind: model.KindWasher, Location: "9", Status: model.StatusRunning, CycleEnd: &future2, CurrentOwnerID: &owner},
		{ID: "9_washer_3", Kind: model.KindWasher, Location: "9", Status: model.StatusRunning, CycleEnd: &past, CurrentOwnerID: &owner},
		{ID: "9_dryer_1", Kind: model.KindDryer, Location: "9", Status: model.StatusAvailable},
	}))

	require.NoError(t, s.Rehydrate(context.Background(), mem))

	// The already-expired machine fires its done callback immediately so
	// cleanup still runs exactly once.
	rec.waitFor(t, "9_washer_3/done")

	// What stays pending is exactly what the running machines imply: a done
	// for each future cycle, a warning only where more than the lead
	// remains. Nothing for the available dryer.
	assert.ElementsMatch(t,
		[]string{"9_washer_1/done", "9_washer_1/warning", "9_washer_2/done"},
		s.Pending())
}
