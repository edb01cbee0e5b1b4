package session

import (
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
)

// Step is the current prompt of a registration flow.
type Step string

const (
	StepName     Step = "name"
	StepLocation Step = "location"
	StepHouse    Step = "house"
)

// Registration is one user's in-flight onboarding state. It lives only in
// memory with a TTL; an expired flow simply restarts from the first step.
type Registration struct {
	UserID    int64
	Username  string
	FirstName string
	Step      Step
	Name      string
	Location  string

	// PendingMachine remembers the machine a user was trying to reach
	// before being sent through onboarding (deep links).
	PendingMachine string
}

// Manager keys registration flows by user id. It replaces the original
// process-global session map with an explicit, expiring store.
type Manager struct {
	flows *cache.Cache
	ttl   time.Duration
}

// NewManager creates a session manager whose flows expire after ttl.
func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		flows: cache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

func key(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// Begin starts (or restarts) a flow for the user.
func (m *Manager) Begin(userID int64, username, firstName, pendingMachine string) *Registration {
	reg := &Registration{
		UserID:         userID,
		Username:       username,
		FirstName:      firstName,
		Step:           StepName,
		PendingMachine: pendingMachine,
	}
	m.flows.Set(key(userID), reg, m.ttl)
	return reg
}

// Get returns the user's in-flight flow, if any.
func (m *Manager) Get(userID int64) (*Registration, bool) {
	v, ok := m.flows.Get(key(userID))
	if !ok {
		return nil, false
	}
	return v.(*Registration), true
}

// Save stores the updated flow and refreshes its TTL.
func (m *Manager) Save(reg *Registration) {
	m.flows.Set(key(reg.UserID), reg, m.ttl)
}

// Complete drops the flow once the user record is persisted.
func (m *Manager) Complete(userID int64) {
	m.flows.Delete(key(userID))
}
