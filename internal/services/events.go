// Package services – one-shot events
//
// Sessions talk back to their client through two kinds of channel: a
// continuous DisplayState stream, and a queue of one-shot events such as
// "ask the user to pick a source language". Events are delivered exactly
// once: Drain hands over and forgets everything pending.
package services

import (
	"context"
	"fmt"
	"sync"
)

// Slot names one side of the language pair.
type Slot string

const (
	SlotSource Slot = "source"
	SlotTarget Slot = "target"
)

// ParseSlot validates a slot name coming from a client.
func ParseSlot(s string) (Slot, error) {
	switch Slot(s) {
	case SlotSource, SlotTarget:
		return Slot(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSlot, s)
}

// Other returns the opposite slot.
func (s Slot) Other() Slot {
	if s == SlotSource {
		return SlotTarget
	}
	return SlotSource
}

// EventKind tags an Event.
type EventKind string

const (
	// EventSelectLanguage asks the client to open a picker for Slot.
	EventSelectLanguage EventKind = "select_language"
	// EventSelectionComplete tells the client a selection was stored.
	EventSelectionComplete EventKind = "selection_complete"
)

// Event is a one-shot notification. Slot is set only for
// EventSelectLanguage.
type Event struct {
	Kind EventKind `json:"kind" example:"select_language"`
	Slot Slot      `json:"slot,omitempty" example:"source"`
}

// SelectLanguage builds an EventSelectLanguage for slot.
func SelectLanguage(slot Slot) Event { return Event{Kind: EventSelectLanguage, Slot: slot} }

// SelectionComplete builds an EventSelectionComplete.
func SelectionComplete() Event { return Event{Kind: EventSelectionComplete} }

// EventQueue is a FIFO of pending events, safe for concurrent use.
type EventQueue struct {
	mu      sync.Mutex
	pending []Event
	notify  chan struct{}
}

// NewEventQueue returns an empty queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{notify: make(chan struct{}, 1)}
}

// Push appends e.
func (q *EventQueue) Push(e Event) {
	q.mu.Lock()
	q.pending = append(q.pending, e)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Drain returns every pending event in order and empties the queue.
func (q *EventQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// Len reports the number of pending events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Wait blocks until at least one event is pending or ctx is done.
func (q *EventQueue) Wait(ctx context.Context) error {
	for {
		if q.Len() > 0 {
			return nil
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
