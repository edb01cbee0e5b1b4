package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"hostel-laundry-backend/internal/lifecycle"
	"hostel-laundry-backend/internal/model"
)

// Memory is an in-process Store used by tests and local experiments. It
// honors the same conditional-write semantics as the GORM store, so
// resolver race behavior can be exercised without a database.
type Memory struct {
	mu         sync.Mutex
	machines   map[string]model.Machine
	users      map[int64]model.User
	audits     []model.AuditLog
	complaints []model.Complaint
	subs       map[string]model.PushSubscription
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		machines: make(map[string]model.Machine),
		users:    make(map[int64]model.User),
		subs:     make(map[string]model.PushSubscription),
	}
}

// withOwners resolves owner associations the way the GORM store preloads
// them.
func (s *Memory) withOwners(m model.Machine) model.Machine {
	if m.CurrentOwnerID != nil {
		if u, ok := s.users[*m.CurrentOwnerID]; ok {
			cp := u
			m.CurrentOwner = &cp
		}
	}
	if m.LastOwnerID != nil {
		if u, ok := s.users[*m.LastOwnerID]; ok {
			cp := u
			m.LastOwner = &cp
		}
	}
	return m
}

func (s *Memory) GetMachine(_ context.Context, id string) (*model.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.machines[id]
	if !ok {
		return nil, fmt.Errorf("machine %s: %w", id, ErrNotFound)
	}
	m = s.withOwners(m)
	return &m, nil
}

func (s *Memory) ListMachines(_ context.Context, location string) ([]model.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Machine
	for _, m := range s.machines {
		if location == "" || m.Location == location {
			out = append(out, s.withOwners(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Location != out[j].Location {
			return out[i].Location < out[j].Location
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Memory) ListRunning(_ context.Context) ([]model.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Machine
	for _, m := range s.machines {
		if m.Status == model.StatusRunning {
			out = append(out, s.withOwners(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Memory) ApplyTransition(_ context.Context, id string, expected model.MachineStatus, change lifecycle.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.machines[id]
	if !ok {
		return fmt.Errorf("machine %s: %w", id, ErrNotFound)
	}
	if m.Status != expected {
		return fmt.Errorf("machine %s no longer %s: %w", id, expected, ErrConcurrentConflict)
	}
	lifecycle.Apply(&m, change)
	m.UpdatedAt = time.Now()
	s.machines[id] = m
	return nil
}

func (s *Memory) SetLastPing(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.machines[id]
	if !ok {
		return fmt.Errorf("machine %s: %w", id, ErrNotFound)
	}
	m.LastPingAt = &at
	s.machines[id] = m
	return nil
}

func (s *Memory) AppendAudit(_ context.Context, rec *model.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = int64(len(s.audits) + 1)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.audits = append(s.audits, *rec)
	return nil
}

func (s *Memory) ListRecentAudits(_ context.Context, event model.AuditEvent, since time.Time, limit int) ([]model.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AuditLog
	for i := len(s.audits) - 1; i >= 0 && len(out) < limit; i-- {
		rec := s.audits[i]
		if rec.Event == event && !rec.CreatedAt.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Memory) AppendComplaint(_ context.Context, rec *model.Complaint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = int64(len(s.complaints) + 1)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.complaints = append(s.complaints, *rec)
	return nil
}

func (s *Memory) CountComplaints(_ context.Context, reporterID int64, machineID string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.complaints {
		if c.ReporterID == reporterID && c.MachineID == machineID && !c.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *Memory) GetUser(_ context.Context, id int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return &u, nil
}

func (s *Memory) UpsertUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = *u
	return nil
}

func (s *Memory) SaveSubscription(_ context.Context, sub *model.PushSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.Endpoint] = *sub
	return nil
}

func (s *Memory) DeleteSubscription(_ context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, endpoint)
	return nil
}

func (s *Memory) ListSubscriptions(_ context.Context, userID int64) ([]model.PushSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PushSubscription
	for _, sub := range s.subs {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *Memory) EnsureMachines(_ context.Context, machines []model.Machine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range machines {
		if _, exists := s.machines[m.ID]; !exists {
			s.machines[m.ID] = m
		}
	}
	return nil
}

// Audits returns a copy of the appended audit records, for assertions.
func (s *Memory) Audits() []model.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AuditLog, len(s.audits))
	copy(out, s.audits)
	return out
}

// Complaints returns a copy of the appended complaints, for assertions.
func (s *Memory) Complaints() []model.Complaint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Complaint, len(s.complaints))
	copy(out, s.complaints)
	return out
}

var _ Store = (*Memory)(nil)
