package model

import "time"

// User is a registered resident. Location and house are display/grouping
// attributes only; a user's sole lifecycle role is being an owner
// reference on a machine.
type User struct {
	ID          int64  `gorm:"primaryKey"` // chat platform user id
	Username    string `gorm:"size:128"`
	FirstName   string `gorm:"size:128"`
	DisplayName string `gorm:"size:128;not null"`
	Location    string `gorm:"size:32;not null"`
	House       string `gorm:"size:64"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Label returns the name shown next to a machine in status views.
func (u *User) Label() string {
	if u == nil {
		return "Unknown"
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.FirstName
}
