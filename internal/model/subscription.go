package model

import "time"

// DeviceSubscription holds the browser push subscription of a housekeeping device.
type DeviceSubscription struct {
	Endpoint   string    `gorm:"primaryKey"`
	P256DH     string    `gorm:"column:p256dh;not null"`
	Auth       string    `gorm:"not null"`
	PropertyID int64     `gorm:"not null;index"`
	Label      string    `gorm:"size:64"`
	CreatedAt  time.Time `gorm:"not null"`
}
