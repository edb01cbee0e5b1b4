package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"hostel-laundry-backend/internal/model"
)

// Protocol constants. These are fixed behavior, not configuration: clients
// and the notification copy assume them.
const (
	PingCooldown    = 200 * time.Second
	WarningLead     = 5 * time.Minute
	ComplaintWindow = time.Hour
)

var (
	// ErrInvalidTransition reports a request that the state machine cannot
	// apply from the machine's current state.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrNotOwner reports an actor acting on a cycle they do not own.
	ErrNotOwner = fmt.Errorf("%w: not the owner", ErrInvalidTransition)

	// ErrDurationNotAllowed reports a cycle duration outside the machine
	// kind's menu.
	ErrDurationNotAllowed = fmt.Errorf("%w: duration not allowed", ErrInvalidTransition)
)

// AllowedDurations returns the selectable cycle lengths for a machine kind.
func AllowedDurations(kind model.MachineKind) []time.Duration {
	switch kind {
	case model.KindDryer:
		return []time.Duration{30 * time.Minute, 60 * time.Minute}
	default:
		return []time.Duration{30 * time.Minute, 35 * time.Minute}
	}
}

// DurationAllowed reports whether d is on the menu for kind.
func DurationAllowed(kind model.MachineKind, d time.Duration) bool {
	for _, allowed := range AllowedDurations(kind) {
		if d == allowed {
			return true
		}
	}
	return false
}

// PresentStatus projects the status a reader should see at `now`. A stored
// Running machine whose cycle end has passed presents as Finished without
// requiring a write, so a late or missing expiry timer never shows a stale
// "Running" to users.
func PresentStatus(m *model.Machine, now time.Time) model.MachineStatus {
	if m.Status == model.StatusRunning && m.CycleEnd != nil && !m.CycleEnd.After(now) {
		return model.StatusFinished
	}
	return m.Status
}

// MinutesDelta returns the whole minutes between now and t, truncated
// toward zero, regardless of which side of t now falls on. Callers decide
// whether it reads as "left" or "ago" from the cycle end itself, not from
// the possibly stale stored status.
func MinutesDelta(now, t time.Time) int {
	diff := t.Sub(now)
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Seconds() / 60)
}

// Change is the full mutable field set a transition writes. Every field is
// written on apply, so a nil pointer means "set NULL", not "leave as is".
type Change struct {
	Status         model.MachineStatus
	CycleStart     *time.Time
	CycleEnd       *time.Time
	CurrentOwnerID *int64
	LastOwnerID    *int64
	LastPingAt     *time.Time
}

// StartCycle begins a cycle for actor. Valid from Available or Finished
// (a new cycle on a Finished machine implicitly reclaims it and overwrites
// ownership history). The caller surfaces a Running machine as a conflict
// before ever reaching here; the guard is kept as a backstop.
func StartCycle(m *model.Machine, actor int64, d time.Duration, now time.Time) (Change, error) {
	if !DurationAllowed(m.Kind, d) {
		return Change{}, ErrDurationNotAllowed
	}
	if PresentStatus(m, now) == model.StatusRunning {
		return Change{}, fmt.Errorf("%w: machine %s is running", ErrInvalidTransition, m.ID)
	}
	start := now
	end := now.Add(d)
	return Change{
		Status:         model.StatusRunning,
		CycleStart:     &start,
		CycleEnd:       &end,
		CurrentOwnerID: &actor,
		LastOwnerID:    &actor,
		LastPingAt:     nil,
	}, nil
}

// NaturalExpiry moves a Running machine whose deadline has passed to
// Finished. Fired by the done timer, or applied lazily when a reader
// persists the projection. The cycle end is kept so views can show
// "ready Nm ago".
func NaturalExpiry(m *model.Machine, now time.Time) (Change, error) {
	if m.Status != model.StatusRunning || m.CycleEnd == nil || m.CycleEnd.After(now) {
		return Change{}, fmt.Errorf("%w: machine %s has not expired", ErrInvalidTransition, m.ID)
	}
	return Change{
		Status:         model.StatusFinished,
		CycleStart:     m.CycleStart,
		CycleEnd:       m.CycleEnd,
		CurrentOwnerID: nil,
		LastOwnerID:    m.LastOwnerID,
		LastPingAt:     m.LastPingAt,
	}, nil
}

// ForceStop ends someone else's running cycle. The machine lands in
// Finished: the dispossessed owner's laundry still occupies the drum.
// The cycle end is left untouched, so elapsed-time views measure from the
// originally predicted end.
func ForceStop(m *model.Machine, now time.Time) (Change, error) {
	if PresentStatus(m, now) != model.StatusRunning || m.CurrentOwnerID == nil {
		return Change{}, fmt.Errorf("%w: machine %s is not running", ErrInvalidTransition, m.ID)
	}
	return Change{
		Status:         model.StatusFinished,
		CycleStart:     m.CycleStart,
		CycleEnd:       m.CycleEnd,
		CurrentOwnerID: nil,
		LastOwnerID:    m.LastOwnerID,
		LastPingAt:     m.LastPingAt,
	}, nil
}

// StopOwn lets the current owner end their cycle early. Unlike natural
// completion the machine becomes Available at once: the owner is standing
// there pulling their laundry out.
func StopOwn(m *model.Machine, actor int64, now time.Time) (Change, error) {
	if PresentStatus(m, now) != model.StatusRunning {
		return Change{}, fmt.Errorf("%w: machine %s is not running", ErrInvalidTransition, m.ID)
	}
	if m.CurrentOwnerID == nil || *m.CurrentOwnerID != actor {
		return Change{}, ErrNotOwner
	}
	return Change{
		Status:      model.StatusAvailable,
		LastOwnerID: m.LastOwnerID,
	}, nil
}

// Collect lets the last owner of a Finished machine release it. Only the
// last owner may collect; lastOwner is retained until the next StartCycle
// overwrites it.
func Collect(m *model.Machine, actor int64, now time.Time) (Change, error) {
	if PresentStatus(m, now) != model.StatusFinished {
		return Change{}, fmt.Errorf("%w: machine %s is not finished", ErrInvalidTransition, m.ID)
	}
	if m.LastOwnerID == nil || *m.LastOwnerID != actor {
		return Change{}, ErrNotOwner
	}
	return Change{
		Status:      model.StatusAvailable,
		LastOwnerID: m.LastOwnerID,
	}, nil
}

// Apply copies a change onto the in-memory machine record. Persisting it
// is the registry's job; this keeps fakes and callers consistent about
// which fields a transition touches.
func Apply(m *model.Machine, c Change) {
	m.Status = c.Status
	m.CycleStart = c.CycleStart
	m.CycleEnd = c.CycleEnd
	m.CurrentOwnerID = c.CurrentOwnerID
	m.LastOwnerID = c.LastOwnerID
	m.LastPingAt = c.LastPingAt
}
