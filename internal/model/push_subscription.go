package model

import "time"

// PushSubscription holds one browser push endpoint for a user. A user may
// hold several (multiple devices); notifications fan out to all of them.
type PushSubscription struct {
	Endpoint  string `gorm:"primaryKey"`
	P256DH    string `gorm:"column:p256dh;not null"`
	Auth      string `gorm:"not null"`
	UserID    int64  `gorm:"index;not null"`
	CreatedAt time.Time
}
