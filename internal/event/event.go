package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedPayload indicates a message body that is not valid JSON or is
// missing the fields required to identify a device.
var ErrMalformedPayload = errors.New("malformed payload")

// DeviceEvent is the canonical normalized record describing one device's
// latest state and observed metrics at a point in time. Both inbound payload
// shapes (telemetry and relay state) are reduced to this form before anything
// downstream sees them.
type DeviceEvent struct {
	DeviceID string         `json:"device_id"`
	Class    string         `json:"class"`
	Type     string         `json:"type"`
	Model    string         `json:"model"`
	Location string         `json:"location"`
	Ts       string         `json:"ts"`
	Metrics  map[string]any `json:"metrics"`
}

// relayStatePayload is the body published on the relay state topic.
type relayStatePayload struct {
	DeviceID string `json:"device_id"`
	Room     string `json:"room"`
	State    string `json:"state"`
}

const relayModelTag = "HK-RELAY"

// ISOTimestamp formats t as ISO-8601 UTC with second precision and a trailing
// "Z", the timestamp format shared by all persisted rows and published alerts.
func ISOTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05") + "Z"
}

// ParseTelemetry decodes a telemetry payload into a DeviceEvent. Unknown
// fields are ignored; a missing or empty device_id is a malformed payload.
func ParseTelemetry(raw []byte) (DeviceEvent, error) {
	var ev DeviceEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return DeviceEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if ev.DeviceID == "" {
		return DeviceEvent{}, fmt.Errorf("%w: missing device_id", ErrMalformedPayload)
	}
	if ev.Location == "" {
		ev.Location = "unknown"
	}
	return ev, nil
}

// ParseRelayState reshapes a relay state message into a DeviceEvent. The
// device id is preferentially taken from the topic path
// (hk/actuators/relay/<device_id>/state); when the topic does not have that
// shape the payload's device_id is used, falling back to the sentinel
// "relay-unknown".
func ParseRelayState(topic string, raw []byte, now time.Time) (DeviceEvent, error) {
	var p relayStatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return DeviceEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	deviceID := p.DeviceID
	if parts := strings.Split(topic, "/"); len(parts) >= 5 {
		deviceID = parts[3]
	}
	if deviceID == "" {
		deviceID = "relay-unknown"
	}

	room := p.Room
	if room == "" {
		room = "unknown"
	}
	state := p.State
	if state == "" {
		state = "UNKNOWN"
	}

	return DeviceEvent{
		DeviceID: deviceID,
		Class:    "actuator",
		Type:     "relay",
		Model:    relayModelTag,
		Location: room,
		Ts:       ISOTimestamp(now),
		Metrics:  map[string]any{"state": state},
	}, nil
}

// Truthy reports whether a metric value counts as "set". Boolean true,
// non-zero numbers, and the strings "1", "true", "yes", "on" (any case) are
// truthy; everything else, including absent values, is not.
func Truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "true", "yes", "on":
			return true
		}
		return false
	default:
		return false
	}
}

// Number converts a metric value to float64, returning 0 for absent or
// non-numeric values so that threshold comparisons treat missing metrics as
// never exceeding.
func Number(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// ValueText renders a metric value for storage in the readings table.
// Primitive scalars keep their natural text form; anything structured is
// serialized to JSON text first.
func ValueText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case nil:
		return "null"
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
