package testutil

import (
	"context"
	"sync"
)

// Event is one recorded relay publication.
type Event struct {
	UserID  string
	Event   string
	Payload any
}

// Notifier records NotifyUser calls.
type Notifier struct {
	mu     sync.Mutex
	events []Event

	// Err, when set, is returned by NotifyUser after recording the event.
	Err error
}

func (n *Notifier) NotifyUser(_ context.Context, userID, event string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, Event{UserID: userID, Event: event, Payload: payload})
	return n.Err
}

// Events returns a copy of the recorded events.
func (n *Notifier) Events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Event, len(n.events))
	copy(out, n.events)
	return out
}
