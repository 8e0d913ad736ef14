package ingest

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"housekeyper-backend/internal/alert"
	"housekeyper-backend/internal/event"
	"housekeyper-backend/internal/model"
	"housekeyper-backend/internal/rules"
	"housekeyper-backend/internal/store"
)

// Inbound topic filters.
const (
	TopicTelemetry  = "hk/telemetry/+"
	TopicRelayState = "hk/actuators/relay/+/state"

	telemetryPrefix  = "hk/telemetry/"
	relayStatePrefix = "hk/actuators/relay/"
	relayStateSuffix = "/state"
)

// Pipeline normalizes raw messages into canonical device events, persists
// them, and hands them to the rule engine. It runs entirely on the broker
// client's single callback routine, which makes it the sole writer to both
// the store and the engine's presence state.
type Pipeline struct {
	store   store.Store
	engine  *rules.Engine
	emitter *alert.Emitter
	now     func() time.Time
}

// New creates an ingestion pipeline.
func New(s store.Store, engine *rules.Engine, emitter *alert.Emitter) *Pipeline {
	return &Pipeline{
		store:   s,
		engine:  engine,
		emitter: emitter,
		now:     time.Now,
	}
}

// Handle is the broker message callback. Every failure is contained here: a
// bad message is logged and dropped, never allowed to take down the
// subscription loop.
func (p *Pipeline) Handle(topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[INGEST] panic handling %s: %v", topic, r)
		}
	}()
	if err := p.HandleMessage(context.Background(), topic, payload); err != nil {
		log.Printf("[INGEST] %s -> %v", topic, err)
		return
	}
}

// HandleMessage routes one raw message by topic, persists the resulting
// device event, and evaluates the safety rules against it. Unrecognized
// topics are ignored silently.
func (p *Pipeline) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	ev, ok, err := p.route(topic, payload)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if ev.Ts == "" {
		ev.Ts = event.ISOTimestamp(p.now())
	}

	// Persist before rule evaluation so the rules always see durably stored
	// context for the triggering event. Device upsert and reading inserts are
	// independent statements; a partial failure leaves what already landed.
	if err := p.store.UpsertDevice(ctx, model.Device{
		DeviceID: ev.DeviceID,
		Class:    ev.Class,
		Type:     ev.Type,
		Model:    ev.Model,
		Location: ev.Location,
		LastSeen: ev.Ts,
	}); err != nil {
		return err
	}

	if err := p.store.InsertReadings(ctx, readingsFor(ev)); err != nil {
		return err
	}

	for _, a := range p.engine.Evaluate(ev) {
		if err := p.emitter.Emit(ctx, a); err != nil {
			return err
		}
	}

	log.Printf("[INGEST] %s -> ok", topic)
	return nil
}

// route parses the payload according to the topic pattern. ok is false for
// topics the pipeline does not recognize.
func (p *Pipeline) route(topic string, payload []byte) (ev event.DeviceEvent, ok bool, err error) {
	switch {
	case strings.HasPrefix(topic, telemetryPrefix):
		ev, err = event.ParseTelemetry(payload)
		if err != nil {
			return event.DeviceEvent{}, false, fmt.Errorf("telemetry: %w", err)
		}
		return ev, true, nil

	case strings.HasPrefix(topic, relayStatePrefix) && strings.HasSuffix(topic, relayStateSuffix):
		ev, err = event.ParseRelayState(topic, payload, p.now())
		if err != nil {
			return event.DeviceEvent{}, false, fmt.Errorf("relay state: %w", err)
		}
		return ev, true, nil

	default:
		return event.DeviceEvent{}, false, nil
	}
}

// readingsFor flattens an event's metrics into reading rows, all stamped with
// the event's timestamp. Keys are sorted for stable insertion; the order is
// not meaningful to consumers.
func readingsFor(ev event.DeviceEvent) []model.Reading {
	if len(ev.Metrics) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ev.Metrics))
	for k := range ev.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	readings := make([]model.Reading, 0, len(keys))
	for _, k := range keys {
		readings = append(readings, model.Reading{
			DeviceID: ev.DeviceID,
			Ts:       ev.Ts,
			Key:      k,
			Value:    event.ValueText(ev.Metrics[k]),
		})
	}
	return readings
}
