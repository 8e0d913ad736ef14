package rules

import (
	"fmt"
	"strings"
	"time"

	"housekeyper-backend/internal/event"
	"housekeyper-backend/internal/model"
)

// Rule thresholds.
const (
	stoveSurfaceTempC = 80.0
	highTempC         = 30.0
	presenceWindow    = 10 * time.Minute
)

// Engine evaluates safety rules against incoming device events. It is the
// sole owner of the transient presence state (room -> last button press); the
// state lives only for the process lifetime, and a restart resets every room
// to "no presence known".
//
// The engine is driven from the single message callback and is not safe for
// concurrent use.
type Engine struct {
	lastPress map[string]time.Time
	now       func() time.Time
}

// NewEngine creates a rule engine with empty presence state.
func NewEngine() *Engine {
	return &Engine{
		lastPress: make(map[string]time.Time),
		now:       time.Now,
	}
}

// SeedPresence records a button press for a room, as if one had been
// observed at t. Tests use it to set up the presence branch of the stove rule.
func (e *Engine) SeedPresence(room string, t time.Time) {
	e.lastPress[room] = t
}

// Evaluate runs the rule matching the event's device type and returns the
// alerts it produced, zero or more. Only the matching rule runs; there is no
// cross-type fan-out per message.
func (e *Engine) Evaluate(ev event.DeviceEvent) []model.Alert {
	room := ev.Location
	if room == "" {
		room = "unknown"
	}
	ts := ev.Ts
	if ts == "" {
		ts = event.ISOTimestamp(e.now())
	}

	switch ev.Type {
	case "leak":
		if event.Truthy(ev.Metrics["leak"]) {
			return []model.Alert{{
				Ts:       ts,
				Level:    model.AlertLevelCritical,
				Code:     model.CodeLeakDetected,
				Message:  fmt.Sprintf("Leak detected in %s", room),
				DeviceID: ev.DeviceID,
				Room:     room,
			}}
		}

	case "button":
		if event.Truthy(ev.Metrics["pressed"]) {
			e.lastPress[room] = e.now()
		}

	case "stove":
		on := event.Truthy(ev.Metrics["stove_on"])
		surf := event.Number(ev.Metrics["surface_temp_c"])
		if on && (surf > stoveSurfaceTempC || e.presenceStale(room)) {
			// When both sub-conditions hold, the temperature reason wins.
			reason := "no presence (button) >10 min"
			if surf > stoveSurfaceTempC {
				reason = "high surface temp"
			}
			return []model.Alert{{
				Ts:       ts,
				Level:    model.AlertLevelWarning,
				Code:     model.CodeStoveUnattended,
				Message:  fmt.Sprintf("Stove in %s may be unattended (%s)", room, reason),
				DeviceID: ev.DeviceID,
				Room:     room,
			}}
		}

	case "environment":
		if event.Number(ev.Metrics["temperature_c"]) > highTempC {
			return []model.Alert{{
				Ts:       ts,
				Level:    model.AlertLevelWarning,
				Code:     model.CodeHighTemp,
				Message:  fmt.Sprintf("%s > 30°C", capitalize(room)),
				DeviceID: ev.DeviceID,
				Room:     room,
			}}
		}
	}

	return nil
}

// presenceStale reports whether no button press has ever been recorded for
// the room, or the most recent press is older than the presence window.
func (e *Engine) presenceStale(room string) bool {
	last, ok := e.lastPress[room]
	if !ok {
		return true
	}
	return e.now().Sub(last) > presenceWindow
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
