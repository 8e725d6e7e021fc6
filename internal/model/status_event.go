package model

import "time"

// StatusChangeEvent is the append-only audit record of a status transition.
type StatusChangeEvent struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AmbulanceID uint      `gorm:"not null;index:idx_status_events_ambulance,priority:1" json:"ambulance_id"`
	OldStatus   Status    `gorm:"size:32" json:"old_status"`
	NewStatus   Status    `gorm:"size:32;not null;index:idx_status_events_ambulance,priority:2" json:"new_status"`
	Timestamp   time.Time `gorm:"not null" json:"timestamp"`
}

func (StatusChangeEvent) TableName() string {
	return "status_updates"
}
