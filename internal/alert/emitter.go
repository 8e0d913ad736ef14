package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"housekeyper-backend/internal/model"
	"housekeyper-backend/internal/notification"
	"housekeyper-backend/internal/store"
)

// Topic is the outbound topic alerts are published on.
const Topic = "hk/alerts"

// Publisher sends a message on the broker.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Emitter persists alerts and republishes them for external consumers.
// Persistence and notification are independent best-effort steps: a failed
// publish never rolls back the stored row.
type Emitter struct {
	store    store.Store
	pub      Publisher
	notifier *notification.WorkerPool // nil when push is disabled
}

// NewEmitter creates an alert emitter. notifier may be nil.
func NewEmitter(s store.Store, pub Publisher, notifier *notification.WorkerPool) *Emitter {
	return &Emitter{store: s, pub: pub, notifier: notifier}
}

// Emit stores the alert, publishes it on the alerts topic, and hands the
// room off to the push notification workers.
func (e *Emitter) Emit(ctx context.Context, a model.Alert) error {
	if err := e.store.InsertAlert(ctx, a); err != nil {
		return fmt.Errorf("persist alert %s: %w", a.Code, err)
	}

	payload, err := json.Marshal(a)
	if err != nil {
		// The alert row is already stored; only the publish is lost.
		log.Printf("Error marshaling alert %s: %v", a.Code, err)
		return nil
	}
	if err := e.pub.Publish(Topic, payload); err != nil {
		log.Printf("Error publishing alert %s: %v", a.Code, err)
	}

	if e.notifier != nil {
		e.notifier.Dispatch(notification.Job{Room: a.Room, Message: a.Message})
	}
	return nil
}
