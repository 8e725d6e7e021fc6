package model

import "time"

// LocationPing is one reported position of the ambulance serving a request.
type LocationPing struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AmbulanceID uint      `gorm:"not null;index:idx_pings_ambulance_ts,priority:1" json:"ambulance_id"`
	Latitude    float64   `gorm:"not null" json:"latitude"`
	Longitude   float64   `gorm:"not null" json:"longitude"`
	Timestamp   time.Time `gorm:"not null;index:idx_pings_ambulance_ts,priority:2" json:"timestamp"`
	Status      Status    `gorm:"size:32" json:"status"` // request status when the ping arrived
}

// TableName keeps the table name used by earlier deployments.
func (LocationPing) TableName() string {
	return "ambulance_locations"
}
