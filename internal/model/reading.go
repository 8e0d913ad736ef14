package model

// Reading is a single metric observation. Rows are append-only: a message
// carrying N metrics yields N rows sharing the same Ts, and nothing ever
// updates or deletes them.
//
// Ts is stored as ISO-8601 UTC text with second precision and a trailing "Z"
// so that existing consumers of the readings table keep working unchanged.
type Reading struct {
	DeviceID string `gorm:"index;size:128;not null" json:"device_id"`
	Ts       string `gorm:"size:32;not null" json:"ts"`
	Key      string `gorm:"size:64;not null" json:"key"`
	Value    string `gorm:"not null" json:"value"`
}
