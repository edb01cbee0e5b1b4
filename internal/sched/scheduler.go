package sched

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"hostel-laundry-backend/internal/lifecycle"
	"hostel-laundry-backend/internal/store"
)

// TimerKind names the two timers a running cycle carries.
type TimerKind string

const (
	TimerDone    TimerKind = "done"
	TimerWarning TimerKind = "warning"
)

// Callback is invoked when a timer fires. It must re-read current machine
// state before acting: the state may have changed since scheduling.
type Callback func(machineID string, kind TimerKind)

// Scheduler holds keyed one-shot timers. At most one timer exists per
// (machine, kind); Schedule replaces and Cancel is a no-op when absent.
// The timer set is a cache of work derived from the registry: losing it
// on restart is recovered by Rehydrate, never a correctness problem.
type Scheduler struct {
	mu     sync.Mutex
	clock  Clock
	cb     Callback
	timers map[string]*time.Timer
}

// NewScheduler creates a scheduler. Bind must be called before any timer
// is scheduled.
func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{
		clock:  clock,
		timers: make(map[string]*time.Timer),
	}
}

// Bind sets the fire callback. The resolver registers itself here, which
// breaks the construction cycle between the two.
func (s *Scheduler) Bind(cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
}

func timerKey(machineID string, kind TimerKind) string {
	return machineID + "/" + string(kind)
}

// Schedule arms a timer for the machine at fireAt, replacing any existing
// timer under the same key. An instant already in the past fires with
// minimal delay rather than being dropped.
func (s *Scheduler) Schedule(machineID string, kind TimerKind, fireAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := timerKey(machineID, kind)
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}

	delay := fireAt.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	s.timers[key] = time.AfterFunc(delay, func() {
		s.fire(machineID, kind)
	})
}

func (s *Scheduler) fire(machineID string, kind TimerKind) {
	s.mu.Lock()
	delete(s.timers, timerKey(machineID, kind))
	cb := s.cb
	s.mu.Unlock()
	if cb == nil {
		log.Printf("sched: timer %s/%s fired with no callback bound", machineID, kind)
		return
	}
	cb(machineID, kind)
}

// Cancel disarms one timer. Cancelling an absent or already-fired timer
// is a no-op.
func (s *Scheduler) Cancel(machineID string, kind TimerKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := timerKey(machineID, kind)
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

// CancelMachine disarms every timer for a machine.
func (s *Scheduler) CancelMachine(machineID string) {
	s.Cancel(machineID, TimerDone)
	s.Cancel(machineID, TimerWarning)
}

// ScheduleCycle arms the done timer at cycleEnd and, when more than the
// warning lead remains, the near-end warning before it.
func (s *Scheduler) ScheduleCycle(machineID string, cycleEnd time.Time) {
	s.Schedule(machineID, TimerDone, cycleEnd)
	if cycleEnd.Sub(s.clock.Now()) > lifecycle.WarningLead {
		s.Schedule(machineID, TimerWarning, cycleEnd.Add(-lifecycle.WarningLead))
	}
}

// Pending returns the sorted set of armed timer keys.
func (s *Scheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.timers))
	for k := range s.timers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Rehydrate rebuilds the timer set from the registry after a restart.
// Every Running machine gets its done timer back; cycles already past
// their end fire immediately so the expiry path still runs exactly once.
func (s *Scheduler) Rehydrate(ctx context.Context, st store.Store) error {
	running, err := st.ListRunning(ctx)
	if err != nil {
		return fmt.Errorf("rehydrate: %w", err)
	}
	for _, m := range running {
		if m.CycleEnd == nil {
			log.Printf("sched: running machine %s has no cycle end, skipping", m.ID)
			continue
		}
		s.ScheduleCycle(m.ID, *m.CycleEnd)
	}
	if len(running) > 0 {
		log.Printf("sched: rehydrated timers for %d running machines", len(running))
	}
	return nil
}
