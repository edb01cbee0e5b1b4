package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hostel-laundry-backend/internal/lifecycle"
	"hostel-laundry-backend/internal/model"
)

var (
	// ErrNotFound reports an unknown machine or user.
	ErrNotFound = errors.New("not found")

	// ErrConcurrentConflict reports a conditional write that lost against a
	// concurrent transition. The caller must re-read and re-resolve.
	ErrConcurrentConflict = errors.New("concurrent transition conflict")
)

// Store is the registry: the single durable source of truth for machine,
// user and accountability records. The scheduler's timer set is a derived
// cache over it and must be reconstructible from ListRunning alone.
type Store interface {
	GetMachine(ctx context.Context, id string) (*model.Machine, error)
	ListMachines(ctx context.Context, location string) ([]model.Machine, error)
	ListRunning(ctx context.Context) ([]model.Machine, error)

	// ApplyTransition writes the change only if the machine's stored status
	// still equals expected. A lost race returns ErrConcurrentConflict.
	ApplyTransition(ctx context.Context, id string, expected model.MachineStatus, change lifecycle.Change) error

	// SetLastPing records a successful nudge. Single-column write; the
	// registry's per-record atomicity is all the locking it needs.
	SetLastPing(ctx context.Context, id string, at time.Time) error

	AppendAudit(ctx context.Context, rec *model.AuditLog) error
	ListRecentAudits(ctx context.Context, event model.AuditEvent, since time.Time, limit int) ([]model.AuditLog, error)
	AppendComplaint(ctx context.Context, rec *model.Complaint) error
	CountComplaints(ctx context.Context, reporterID int64, machineID string, since time.Time) (int64, error)

	GetUser(ctx context.Context, id int64) (*model.User, error)
	UpsertUser(ctx context.Context, u *model.User) error

	SaveSubscription(ctx context.Context, sub *model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint string) error
	ListSubscriptions(ctx context.Context, userID int64) ([]model.PushSubscription, error)

	// EnsureMachines provisions the fixed pool at boot. Existing records
	// keep their lifecycle state untouched.
	EnsureMachines(ctx context.Context, machines []model.Machine) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) GetMachine(ctx context.Context, id string) (*model.Machine, error) {
	var m model.Machine
	err := s.db.WithContext(ctx).
		Preload("CurrentOwner").Preload("LastOwner").
		First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("machine %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch machine %s: %w", id, err)
	}
	return &m, nil
}

func (s *gormStore) ListMachines(ctx context.Context, location string) ([]model.Machine, error) {
	var machines []model.Machine
	q := s.db.WithContext(ctx).Preload("CurrentOwner").Preload("LastOwner")
	if location != "" {
		q = q.Where("location = ?", location)
	}
	if err := q.Order("location").Order("id").Find(&machines).Error; err != nil {
		return nil, fmt.Errorf("failed to list machines: %w", err)
	}
	return machines, nil
}

func (s *gormStore) ListRunning(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	err := s.db.WithContext(ctx).
		Preload("CurrentOwner").
		Where("status = ?", model.StatusRunning).
		Find(&machines).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list running machines: %w", err)
	}
	return machines, nil
}

// ApplyTransition is the optimistic write: the UPDATE is conditioned on the
// stored status, and zero affected rows means another transition got there
// first (or the machine does not exist).
func (s *gormStore) ApplyTransition(ctx context.Context, id string, expected model.MachineStatus, change lifecycle.Change) error {
	res := s.db.WithContext(ctx).
		Model(&model.Machine{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(map[string]any{
			"status":           change.Status,
			"cycle_start":      change.CycleStart,
			"cycle_end":        change.CycleEnd,
			"current_owner_id": change.CurrentOwnerID,
			"last_owner_id":    change.LastOwnerID,
			"last_ping_at":     change.LastPingAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to apply transition on machine %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetMachine(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("machine %s no longer %s: %w", id, expected, ErrConcurrentConflict)
	}
	return nil
}

func (s *gormStore) SetLastPing(ctx context.Context, id string, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&model.Machine{}).
		Where("id = ?", id).
		Update("last_ping_at", at)
	if res.Error != nil {
		return fmt.Errorf("failed to record ping on machine %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("machine %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *gormStore) AppendAudit(ctx context.Context, rec *model.AuditLog) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

func (s *gormStore) ListRecentAudits(ctx context.Context, event model.AuditEvent, since time.Time, limit int) ([]model.AuditLog, error) {
	var recs []model.AuditLog
	err := s.db.WithContext(ctx).
		Where("event = ? AND created_at >= ?", event, since).
		Order("created_at desc").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	return recs, nil
}

func (s *gormStore) AppendComplaint(ctx context.Context, rec *model.Complaint) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to append complaint: %w", err)
	}
	return nil
}

func (s *gormStore) CountComplaints(ctx context.Context, reporterID int64, machineID string, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&model.Complaint{}).
		Where("reporter_id = ? AND machine_id = ? AND created_at >= ?", reporterID, machineID, since).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count complaints: %w", err)
	}
	return n, nil
}

func (s *gormStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user %d: %w", id, err)
	}
	return &u, nil
}

func (s *gormStore) UpsertUser(ctx context.Context, u *model.User) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "first_name", "display_name", "location", "house", "updated_at"}),
	}).Create(u).Error
	if err != nil {
		return fmt.Errorf("failed to upsert user %d: %w", u.ID, err)
	}
	return nil
}

func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "user_id"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

func (s *gormStore) ListSubscriptions(ctx context.Context, userID int64) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for user %d: %w", userID, err)
	}
	return subs, nil
}

func (s *gormStore) EnsureMachines(ctx context.Context, machines []model.Machine) error {
	if len(machines) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&machines).Error
	if err != nil {
		return fmt.Errorf("failed to provision machines: %w", err)
	}
	return nil
}
