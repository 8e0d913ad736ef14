package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// Subscribers pick the rooms they want alert notifications for.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Rooms []SubscriptionRoom `gorm:"foreignKey:Endpoint;references:Endpoint;constraint:OnDelete:CASCADE"`
}

// SubscriptionRoom maps a subscription to one room it watches.
type SubscriptionRoom struct {
	Endpoint string `gorm:"primaryKey;size:512"`
	Room     string `gorm:"primaryKey;size:128"`
}
