package model

import "time"

// PushSubscription holds a browser push endpoint and the requests it follows.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Requests []*AmbulanceRequest `gorm:"many2many:subscription_request_mapping;"`
}
