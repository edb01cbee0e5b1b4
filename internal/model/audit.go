package model

import "time"

// AuditEvent names the recorded action.
type AuditEvent string

const (
	EventForceStop AuditEvent = "FORCE_STOP"
)

// AuditLog is an append-only accountability record. It is written on
// force-stop and never read back by the lifecycle logic.
type AuditLog struct {
	ID         int64      `gorm:"autoIncrement;primaryKey"`
	Event      AuditEvent `gorm:"size:32;not null"`
	MachineID  string     `gorm:"size:64;index;not null"`
	VictimID   int64      `gorm:"not null"`
	OffenderID int64      `gorm:"not null"`
	CreatedAt  time.Time  `gorm:"index;not null"`
}

// Complaint is an append-only discrepancy report ("machine says running
// but it is not", etc.). Submission is throttled per (reporter, machine).
type Complaint struct {
	ID         int64     `gorm:"autoIncrement;primaryKey"`
	MachineID  string    `gorm:"size:64;index;not null"`
	ReporterID int64     `gorm:"index;not null"`
	Message    string    `gorm:"size:512"`
	CreatedAt  time.Time `gorm:"index;not null"`
}
