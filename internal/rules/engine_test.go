package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"housekeyper-backend/internal/event"
	"housekeyper-backend/internal/model"
)

func newTestEngine(now time.Time) *Engine {
	e := NewEngine()
	e.now = func() time.Time { return now }
	return e
}

func TestLeakRule(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("leak truthy raises critical alert", func(t *testing.T) {
		e := newTestEngine(now)
		alerts := e.Evaluate(event.DeviceEvent{
			DeviceID: "leak-1",
			Type:     "leak",
			Location: "kitchen",
			Ts:       "2026-06-01T10:00:00Z",
			Metrics:  map[string]any{"leak": true},
		})
		require.Len(t, alerts, 1)
		assert.Equal(t, model.Alert{
			Ts:       "2026-06-01T10:00:00Z",
			Level:    model.AlertLevelCritical,
			Code:     model.CodeLeakDetected,
			Message:  "Leak detected in kitchen",
			DeviceID: "leak-1",
			Room:     "kitchen",
		}, alerts[0])
	})

	t.Run("leak false produces nothing", func(t *testing.T) {
		e := newTestEngine(now)
		alerts := e.Evaluate(event.DeviceEvent{
			DeviceID: "leak-1",
			Type:     "leak",
			Location: "kitchen",
			Metrics:  map[string]any{"leak": false},
		})
		assert.Empty(t, alerts)
	})

	t.Run("no dedup on repeated firing", func(t *testing.T) {
		e := newTestEngine(now)
		ev := event.DeviceEvent{
			DeviceID: "leak-1",
			Type:     "leak",
			Location: "kitchen",
			Metrics:  map[string]any{"leak": true},
		}
		assert.Len(t, e.Evaluate(ev), 1)
		assert.Len(t, e.Evaluate(ev), 1)
	})
}

func TestButtonRule(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	e := newTestEngine(now)

	alerts := e.Evaluate(event.DeviceEvent{
		DeviceID: "btn-1",
		Type:     "button",
		Location: "den",
		Metrics:  map[string]any{"pressed": true},
	})
	assert.Empty(t, alerts, "button presses never alert")
	assert.Equal(t, now, e.lastPress["den"])

	// A later press overwrites the prior one; at most one entry per room.
	later := now.Add(5 * time.Minute)
	e.now = func() time.Time { return later }
	e.Evaluate(event.DeviceEvent{
		DeviceID: "btn-2",
		Type:     "button",
		Location: "den",
		Metrics:  map[string]any{"pressed": true},
	})
	assert.Equal(t, later, e.lastPress["den"])
	assert.Len(t, e.lastPress, 1)

	// An unpressed report changes nothing.
	e.Evaluate(event.DeviceEvent{
		DeviceID: "btn-1",
		Type:     "button",
		Location: "hall",
		Metrics:  map[string]any{"pressed": false},
	})
	assert.Len(t, e.lastPress, 1)
}

func TestStoveRule(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	stoveEvent := func(surf float64) event.DeviceEvent {
		return event.DeviceEvent{
			DeviceID: "stove-1",
			Type:     "stove",
			Location: "kitchen",
			Metrics:  map[string]any{"stove_on": true, "surface_temp_c": surf},
		}
	}

	t.Run("temperature branch with no prior presence", func(t *testing.T) {
		e := newTestEngine(now)
		alerts := e.Evaluate(stoveEvent(95.0))
		require.Len(t, alerts, 1)
		assert.Equal(t, model.CodeStoveUnattended, alerts[0].Code)
		assert.Equal(t, model.AlertLevelWarning, alerts[0].Level)
		assert.Contains(t, alerts[0].Message, "high surface temp")
	})

	t.Run("presence branch when last press is stale", func(t *testing.T) {
		e := newTestEngine(now)
		e.SeedPresence("kitchen", now.Add(-15*time.Minute))
		alerts := e.Evaluate(stoveEvent(40.0))
		require.Len(t, alerts, 1)
		assert.Equal(t, model.CodeStoveUnattended, alerts[0].Code)
		assert.Contains(t, alerts[0].Message, "no presence")
	})

	t.Run("recent press suppresses the presence branch", func(t *testing.T) {
		e := newTestEngine(now)
		e.SeedPresence("kitchen", now.Add(-2*time.Minute))
		assert.Empty(t, e.Evaluate(stoveEvent(40.0)))
	})

	t.Run("temperature reason wins when both branches hold", func(t *testing.T) {
		e := newTestEngine(now)
		alerts := e.Evaluate(stoveEvent(95.0)) // no presence recorded either
		require.Len(t, alerts, 1)
		assert.Contains(t, alerts[0].Message, "high surface temp")
	})

	t.Run("stove off never alerts", func(t *testing.T) {
		e := newTestEngine(now)
		ev := stoveEvent(200.0)
		ev.Metrics["stove_on"] = false
		assert.Empty(t, e.Evaluate(ev))
	})

	t.Run("missing surface temp counts as zero", func(t *testing.T) {
		e := newTestEngine(now)
		e.SeedPresence("kitchen", now.Add(-1*time.Minute))
		ev := event.DeviceEvent{
			DeviceID: "stove-1",
			Type:     "stove",
			Location: "kitchen",
			Metrics:  map[string]any{"stove_on": true},
		}
		assert.Empty(t, e.Evaluate(ev), "absent temp must not trigger the temperature branch")
	})

	t.Run("surface temp boundary is exclusive", func(t *testing.T) {
		e := newTestEngine(now)
		e.SeedPresence("kitchen", now)
		assert.Empty(t, e.Evaluate(stoveEvent(80.0)))
	})

	t.Run("presence window boundary", func(t *testing.T) {
		e := newTestEngine(now)
		e.SeedPresence("kitchen", now.Add(-10*time.Minute))
		assert.Empty(t, e.Evaluate(stoveEvent(40.0)), "exactly 10 minutes is not yet stale")

		e.SeedPresence("kitchen", now.Add(-10*time.Minute-time.Second))
		assert.Len(t, e.Evaluate(stoveEvent(40.0)), 1)
	})

	t.Run("presence is per room", func(t *testing.T) {
		e := newTestEngine(now)
		e.SeedPresence("den", now)
		alerts := e.Evaluate(stoveEvent(40.0)) // kitchen has no presence
		require.Len(t, alerts, 1)
		assert.Contains(t, alerts[0].Message, "no presence")
	})
}

func TestEnvironmentRule(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	envEvent := func(temp float64) event.DeviceEvent {
		return event.DeviceEvent{
			DeviceID: "dht-1",
			Type:     "environment",
			Location: "living room",
			Metrics:  map[string]any{"temperature_c": temp, "humidity": 50.0},
		}
	}

	t.Run("boundary excluded", func(t *testing.T) {
		e := newTestEngine(now)
		assert.Empty(t, e.Evaluate(envEvent(30.0)))
	})

	t.Run("above boundary alerts with capitalized room", func(t *testing.T) {
		e := newTestEngine(now)
		alerts := e.Evaluate(envEvent(30.1))
		require.Len(t, alerts, 1)
		assert.Equal(t, model.CodeHighTemp, alerts[0].Code)
		assert.Equal(t, "Living room > 30°C", alerts[0].Message)
		assert.Equal(t, "living room", alerts[0].Room)
	})
}

func TestUnknownTypeAndEmptyFields(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	e := newTestEngine(now)

	assert.Empty(t, e.Evaluate(event.DeviceEvent{
		DeviceID: "relay-1",
		Type:     "relay",
		Metrics:  map[string]any{"state": "ON"},
	}), "only the rule matching the device type runs")

	// Missing ts gets stamped; missing room falls back to "unknown".
	alerts := e.Evaluate(event.DeviceEvent{
		DeviceID: "leak-2",
		Type:     "leak",
		Metrics:  map[string]any{"leak": 1},
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, "unknown", alerts[0].Room)
	assert.Equal(t, event.ISOTimestamp(now), alerts[0].Ts)
}
