package mocks

import (
	"sync"

	"github.com/ersonp/kgraph/internal/domain/ports"
)

// Event is one recorded observer call.
type Event struct {
	Level   string
	Message string
	Err     error
	Fields  ports.Fields
}

// Observer records every event it receives.
type Observer struct {
	mu     sync.Mutex
	Events []Event
}

// Info records an informational event.
func (o *Observer) Info(msg string, fields ports.Fields) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Events = append(o.Events, Event{Level: "info", Message: msg, Fields: fields})
}

// Error records a failure event.
func (o *Observer) Error(msg string, err error, fields ports.Fields) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Events = append(o.Events, Event{Level: "error", Message: msg, Err: err, Fields: fields})
}

// Errors returns the recorded error events.
func (o *Observer) Errors() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Event
	for _, e := range o.Events {
		if e.Level == "error" {
			out = append(out, e)
		}
	}
	return out
}

// Messages returns the messages of all recorded events in order.
func (o *Observer) Messages() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.Events))
	for _, e := range o.Events {
		out = append(out, e.Message)
	}
	return out
}
