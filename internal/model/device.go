package model

// DeviceClassSensor and DeviceClassActuator are the recognized device classes.
const (
	DeviceClassSensor   = "sensor"
	DeviceClassActuator = "actuator"
)

// Device is the identity record for a physical or virtual device. There is at
// most one row per DeviceID; every inbound message overwrites the mutable
// fields with its latest values.
type Device struct {
	DeviceID string `gorm:"primaryKey;size:128" json:"device_id"`
	Class    string `gorm:"size:16" json:"class"`
	Type     string `gorm:"size:32" json:"type"`
	Model    string `gorm:"size:64" json:"model"`
	Location string `gorm:"size:128" json:"location"`
	LastSeen string `gorm:"size:32" json:"last_seen"`
}
