package model

// Alert severity levels.
const (
	AlertLevelWarning  = "WARNING"
	AlertLevelCritical = "CRITICAL"
)

// Alert codes raised by the rule engine.
const (
	CodeLeakDetected    = "LEAK_DETECTED"
	CodeStoveUnattended = "STOVE_UNATTENDED"
	CodeHighTemp        = "HIGH_TEMP"
)

// Alert is a raised safety condition. The table is an append-only log with no
// deduplication: a condition that persists produces repeated rows at message
// rate. The JSON form is also what gets published on the alerts topic.
type Alert struct {
	Ts       string `gorm:"size:32;not null" json:"ts"`
	Level    string `gorm:"size:16;not null" json:"level"`
	Code     string `gorm:"size:32;not null" json:"code"`
	Message  string `gorm:"not null" json:"message"`
	DeviceID string `gorm:"index;size:128" json:"device_id"`
	Room     string `gorm:"size:128" json:"room"`
}
