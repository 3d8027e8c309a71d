package models

import "time"

// Sample is one telemetry reading from the bin sensor. Samples are
// append-only; once stored they are never mutated.
type Sample struct {
	FillLevel float64   `json:"fillLevel"`
	LidOpen   bool      `json:"lidOpen"`
	Timestamp time.Time `json:"timestamp"`
}

// Session tracks one client device's app state and its last known push
// token. There is at most one row per device; disconnects only clear
// IsOpen, rows are never deleted.
type Session struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	DeviceID     string    `gorm:"uniqueIndex" json:"deviceId"`
	ConnectionID string    `gorm:"index" json:"connectionId"`
	IsOpen       bool      `json:"isOpen"`
	LastUpdate   time.Time `json:"lastUpdate"`
	PushToken    string    `json:"pushToken,omitempty"`
}

// Token is a registered push token. A device may accumulate more than one
// row over time; only the most recently updated one is denormalized onto
// its Session.
type Token struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	DeviceID  string    `gorm:"index" json:"deviceId"`
	Token     string    `json:"token"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Notification is the fixed wire schema carried by both the live broadcast
// and the push gateway.
type Notification struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Type      string    `json:"type"`
	FillLevel float64   `json:"fillLevel"`
	Timestamp time.Time `json:"timestamp"`
}
