package model

import "time"

// MachineKind distinguishes washers from dryers; the kind decides which
// cycle durations a user may pick.
type MachineKind string

const (
	KindWasher MachineKind = "washer"
	KindDryer  MachineKind = "dryer"
)

// MachineStatus is the persisted lifecycle state. Readers must not trust
// it blindly: a Running machine whose cycle end has passed is presented
// as Finished without a write (see lifecycle.PresentStatus).
type MachineStatus string

const (
	StatusAvailable MachineStatus = "Available"
	StatusRunning   MachineStatus = "Running"
	StatusFinished  MachineStatus = "Finished"
)

// Machine is one shared appliance. IDs follow "{location}_{kind}_{index}",
// e.g. "9_washer_1". Records are created at provisioning and only ever
// mutated through lifecycle transitions.
type Machine struct {
	ID             string        `gorm:"primaryKey;size:64"`
	Kind           MachineKind   `gorm:"size:16;not null"`
	Location       string        `gorm:"size:32;index;not null"`
	Status         MachineStatus `gorm:"size:16;not null;default:Available"`
	CycleStart     *time.Time
	CycleEnd       *time.Time
	CurrentOwnerID *int64 `gorm:"index"`
	LastOwnerID    *int64
	LastPingAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Associations
	CurrentOwner *User `gorm:"foreignKey:CurrentOwnerID"`
	LastOwner    *User `gorm:"foreignKey:LastOwnerID"`
}
