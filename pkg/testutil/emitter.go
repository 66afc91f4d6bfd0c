package testutil

import (
	"context"
	"sync"

	"github.com/agencyops/taskflow/pkg/models"
)

// RecordingEmitter keeps every emitted trigger event in memory.
type RecordingEmitter struct {
	mu     sync.Mutex
	events []*models.TriggerEvent
	Err    error
}

func (r *RecordingEmitter) Emit(_ context.Context, trigger *models.TriggerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return r.Err
	}

	r.events = append(r.events, trigger)

	return nil
}

// Events returns a copy of the recorded events in emission order.
func (r *RecordingEmitter) Events() []*models.TriggerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.TriggerEvent, len(r.events))
	copy(out, r.events)

	return out
}

// OfType returns the recorded events of the given type.
func (r *RecordingEmitter) OfType(eventType models.TriggerEventType) []*models.TriggerEvent {
	var out []*models.TriggerEvent

	for _, e := range r.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}

	return out
}
