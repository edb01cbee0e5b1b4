package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"hostel-laundry-backend/internal/lifecycle"
	"hostel-laundry-backend/internal/model"
	"hostel-laundry-backend/internal/notification"
	"hostel-laundry-backend/internal/sched"
	"hostel-laundry-backend/internal/store"
)

// Conflict describes a request that cannot proceed because someone else
// holds the machine. It is a result, not an error: the caller can offer
// a force-stop.
type Conflict struct {
	OwnerID     int64
	OwnerName   string
	MinutesLeft int
}

// Rejection describes a request the rules refuse. RetryAfter is set for
// throttled actions.
type Rejection struct {
	Reason     string
	RetryAfter time.Duration
}

// Result is the outcome of a resolved request: exactly one of the three
// fields is meaningful. Machine carries the post-transition record on
// Applied outcomes.
type Result struct {
	Applied   bool
	Machine   *model.Machine
	Conflict  *Conflict
	Rejection *Rejection
}

func applied(m *model.Machine) *Result { return &Result{Applied: true, Machine: m} }

func rejected(reason string) *Result {
	return &Result{Rejection: &Rejection{Reason: reason}}
}

// Resolver serializes and applies lifecycle requests. Requests and timer
// callbacks funnel through the same per-machine lock, so at most one
// transition is in flight per machine; the registry's conditional write
// backstops races from outside this process.
type Resolver struct {
	store    store.Store
	sched    *sched.Scheduler
	notifier notification.Notifier
	clock    sched.Clock
	locks    *machineLocks
}

// New creates a resolver and binds it as the scheduler's timer callback.
func New(st store.Store, sc *sched.Scheduler, nt notification.Notifier, clock sched.Clock) *Resolver {
	r := &Resolver{
		store:    st,
		sched:    sc,
		notifier: nt,
		clock:    clock,
		locks:    newMachineLocks(),
	}
	sc.Bind(r.HandleTimer)
	return r
}

// StartCycle starts a cycle for actor. A machine someone else is running
// resolves to a Conflict carrying the owner and minutes left.
func (r *Resolver) StartCycle(ctx context.Context, actor int64, machineID string, duration time.Duration) (*Result, error) {
	r.locks.Lock(machineID)
	defer r.locks.Unlock(machineID)

	m, err := r.store.GetMachine(ctx, machineID)
	if err != nil {
		return nil, err
	}
	now := r.clock.Now()

	if lifecycle.PresentStatus(m, now) == model.StatusRunning && m.CurrentOwnerID != nil {
		return r.conflictResult(m, now), nil
	}

	change, err := lifecycle.StartCycle(m, actor, duration, now)
	if err != nil {
		return rejected(err.Error()), nil
	}

	if err := r.apply(ctx, m, change); err != nil {
		return r.retryAsConflict(ctx, machineID, err)
	}

	r.sched.ScheduleCycle(machineID, *change.CycleEnd)
	return applied(m), nil
}

// StopOwn ends the actor's own cycle early; the machine becomes Available
// at once. Any other actor is rejected.
func (r *Resolver) StopOwn(ctx context.Context, actor int64, machineID string) (*Result, error) {
	r.locks.Lock(machineID)
	defer r.locks.Unlock(machineID)

	m, err := r.store.GetMachine(ctx, machineID)
	if err != nil {
		return nil, err
	}

	change, err := lifecycle.StopOwn(m, actor, r.clock.Now())
	if errors.Is(err, lifecycle.ErrNotOwner) {
		return rejected("not owner"), nil
	}
	if err != nil {
		return rejected(err.Error()), nil
	}

	if err := r.apply(ctx, m, change); err != nil {
		return r.retryAsConflict(ctx, machineID, err)
	}

	r.sched.CancelMachine(machineID)
	return applied(m), nil
}

// ForceStop lets any actor dispossess the current owner of a Running
// machine. It always succeeds against a running cycle, always leaves an
// audit record, and best-effort notifies the victim.
func (r *Resolver) ForceStop(ctx context.Context, actor int64, machineID string) (*Result, error) {
	r.locks.Lock(machineID)
	defer r.locks.Unlock(machineID)

	m, err := r.store.GetMachine(ctx, machineID)
	if err != nil {
		return nil, err
	}
	now := r.clock.Now()

	if m.CurrentOwnerID != nil && *m.CurrentOwnerID == actor {
		return rejected("own cycle, use stop"), nil
	}

	change, err := lifecycle.ForceStop(m, now)
	if err != nil {
		return rejected(err.Error()), nil
	}
	victimID := *m.CurrentOwnerID

	if err := r.apply(ctx, m, change); err != nil {
		return r.retryAsConflict(ctx, machineID, err)
	}

	r.sched.CancelMachine(machineID)

	audit := &model.AuditLog{
		Event:      model.EventForceStop,
		MachineID:  machineID,
		VictimID:   victimID,
		OffenderID: actor,
		CreatedAt:  now,
	}
	// Accountability, not control flow: a failed append is logged and the
	// transition stands.
	if err := r.store.AppendAudit(ctx, audit); err != nil {
		log.Printf("resolver: audit append failed for machine %s: %v", machineID, err)
	}

	offender := r.actorName(ctx, actor)
	r.notifier.Notify(victimID,
		fmt.Sprintf("Your machine %s was stopped by %s.", machineID, offender), machineID)

	return applied(m), nil
}

// Collect lets the last owner release a Finished machine back to
// Available. Calling it twice rejects the second call and changes nothing.
func (r *Resolver) Collect(ctx context.Context, actor int64, machineID string) (*Result, error) {
	r.locks.Lock(machineID)
	defer r.locks.Unlock(machineID)

	m, err := r.store.GetMachine(ctx, machineID)
	if err != nil {
		return nil, err
	}

	change, err := lifecycle.Collect(m, actor, r.clock.Now())
	if errors.Is(err, lifecycle.ErrNotOwner) {
		return rejected("not owner"), nil
	}
	if err != nil {
		return rejected(err.Error()), nil
	}

	if err := r.apply(ctx, m, change); err != nil {
		return r.retryAsConflict(ctx, machineID, err)
	}

	// A lazily-finished machine may still hold a pending done timer.
	r.sched.CancelMachine(machineID)
	return applied(m), nil
}

// Ping nudges the last owner of a Finished machine. One successful ping
// per machine per cooldown window; inside the window the rejection
// reports the seconds remaining.
func (r *Resolver) Ping(ctx context.Context, actor int64, machineID string) (*Result, error) {
	r.locks.Lock(machineID)
	defer r.locks.Unlock(machineID)

	m, err := r.store.GetMachine(ctx, machineID)
	if err != nil {
		return nil, err
	}
	now := r.clock.Now()

	if lifecycle.PresentStatus(m, now) != model.StatusFinished {
		return rejected("machine is not finished"), nil
	}
	if m.LastOwnerID == nil {
		return rejected("no one to ping"), nil
	}
	if *m.LastOwnerID == actor {
		return rejected("cannot ping yourself"), nil
	}

	ok, remaining := lifecycle.Cooldown(m.LastPingAt, now, lifecycle.PingCooldown)
	if !ok {
		return &Result{Rejection: &Rejection{Reason: "cooldown", RetryAfter: remaining}}, nil
	}

	if err := r.store.SetLastPing(ctx, machineID, now); err != nil {
		return nil, err
	}

	r.notifier.Notify(*m.LastOwnerID,
		fmt.Sprintf("Your laundry in %s is done, please collect it.", machineID), machineID)

	m.LastPingAt = &now
	return applied(m), nil
}

// Report files a discrepancy complaint against a machine, throttled to one
// per (actor, machine) per rolling hour. Duplicates create nothing.
func (r *Resolver) Report(ctx context.Context, actor int64, machineID, message string) (*Result, error) {
	m, err := r.store.GetMachine(ctx, machineID)
	if err != nil {
		return nil, err
	}
	now := r.clock.Now()

	n, err := r.store.CountComplaints(ctx, actor, machineID, now.Add(-lifecycle.ComplaintWindow))
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return rejected("rate-limited"), nil
	}

	rec := &model.Complaint{
		MachineID:  machineID,
		ReporterID: actor,
		Message:    message,
		CreatedAt:  now,
	}
	if err := r.store.AppendComplaint(ctx, rec); err != nil {
		return nil, err
	}
	return applied(m), nil
}

// HandleTimer is the scheduler callback. It re-reads current state before
// acting, so firing against a machine that has since been stopped or
// collected is harmless.
func (r *Resolver) HandleTimer(machineID string, kind sched.TimerKind) {
	ctx := context.Background()

	r.locks.Lock(machineID)
	defer r.locks.Unlock(machineID)

	m, err := r.store.GetMachine(ctx, machineID)
	if err != nil {
		log.Printf("resolver: timer %s for machine %s: %v", kind, machineID, err)
		return
	}
	now := r.clock.Now()

	switch kind {
	case sched.TimerDone:
		change, err := lifecycle.NaturalExpiry(m, now)
		if err != nil {
			// State moved on (stopped, collected, restarted) before the
			// timer fired. Nothing to do.
			return
		}
		ownerID := int64(0)
		if m.CurrentOwnerID != nil {
			ownerID = *m.CurrentOwnerID
		}
		if err := r.apply(ctx, m, change); err != nil {
			log.Printf("resolver: expiry write for machine %s: %v", machineID, err)
			return
		}
		if ownerID != 0 {
			r.notifier.Notify(ownerID,
				fmt.Sprintf("Machine %s has finished its cycle.", machineID), machineID)
		}

	case sched.TimerWarning:
		if lifecycle.PresentStatus(m, now) != model.StatusRunning || m.CurrentOwnerID == nil {
			return
		}
		mins := lifecycle.MinutesDelta(now, *m.CycleEnd)
		r.notifier.Notify(*m.CurrentOwnerID,
			fmt.Sprintf("Machine %s finishes in about %d minutes.", machineID, mins), machineID)
	}
}

// apply performs the conditional registry write keyed on the stored status,
// then refreshes the local record so callers hand out a view with owner
// associations resolved.
func (r *Resolver) apply(ctx context.Context, m *model.Machine, change lifecycle.Change) error {
	if err := r.store.ApplyTransition(ctx, m.ID, m.Status, change); err != nil {
		return err
	}
	fresh, err := r.store.GetMachine(ctx, m.ID)
	if err != nil {
		lifecycle.Apply(m, change)
		return nil
	}
	*m = *fresh
	return nil
}

// retryAsConflict handles a lost optimistic write: re-read fresh state
// and, if someone now runs the machine, surface that as a Conflict; other
// losses bubble up for the caller to retry.
func (r *Resolver) retryAsConflict(ctx context.Context, machineID string, cause error) (*Result, error) {
	if !errors.Is(cause, store.ErrConcurrentConflict) {
		return nil, cause
	}
	m, err := r.store.GetMachine(ctx, machineID)
	if err != nil {
		return nil, cause
	}
	now := r.clock.Now()
	if lifecycle.PresentStatus(m, now) == model.StatusRunning && m.CurrentOwnerID != nil {
		return r.conflictResult(m, now), nil
	}
	return nil, cause
}

func (r *Resolver) conflictResult(m *model.Machine, now time.Time) *Result {
	minutes := 0
	if m.CycleEnd != nil {
		minutes = lifecycle.MinutesDelta(now, *m.CycleEnd)
	}
	return &Result{Conflict: &Conflict{
		OwnerID:     *m.CurrentOwnerID,
		OwnerName:   m.CurrentOwner.Label(),
		MinutesLeft: minutes,
	}}
}

func (r *Resolver) actorName(ctx context.Context, id int64) string {
	u, err := r.store.GetUser(ctx, id)
	if err != nil {
		return "another resident"
	}
	return u.Label()
}
