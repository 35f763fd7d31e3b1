// SPDX-FileCopyrightText: The geotrack authors
//
// SPDX-License-Identifier: MIT

// Package notify implements the event channel the tracker publishes on. Other
// application components (UI, session manager) subscribe to it; the tracker makes no
// assumption about subscriber count or presence.
package notify

import (
	"sync"
	"time"

	"github.com/voyago/geotrack/internal/geo"
)

// Kind identifies the type of an Event.
type Kind int

const (
	// KindPositionUpdate is emitted for every sample the tracker accepts.
	KindPositionUpdate Kind = iota
	// KindWarning is emitted for user-facing failure conditions.
	KindWarning
)

// Event represents a single tracker notification. For KindPositionUpdate the Sample
// and ObservedAt fields are set, for KindWarning the Message field is set.
type Event struct {
	Kind       Kind       `json:"kind"`
	Sample     geo.Sample `json:"sample,omitzero"`
	ObservedAt time.Time  `json:"observedAt,omitzero"`
	Message    string     `json:"message,omitempty"`
}

// Bus coordinates the publishing and subscribing of tracker events between the
// tracker and its consumers. Broadcasts never block: subscribers whose channel
// buffer is full miss the event.
type Bus struct {
	mu          sync.RWMutex
	lastUpdate  Event
	haveUpdate  bool
	subscribers map[chan Event]struct{}
}

// New initializes and returns a new Bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe adds a subscriber with the given channel buffer size, returning an event
// channel and an unsubscribe function. The last published position update, if any,
// is replayed to the new subscriber.
func (b *Bus) Subscribe(size int) (<-chan Event, func()) {
	eventChan := make(chan Event, size)
	b.mu.Lock()
	b.subscribers[eventChan] = struct{}{}
	if b.haveUpdate {
		eventChan <- b.lastUpdate
	}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.subscribers, eventChan)
		b.mu.Unlock()
		close(eventChan)
	}

	return eventChan, unsub
}

// PublishPosition broadcasts an accepted sample together with its observation instant.
func (b *Bus) PublishPosition(sample geo.Sample, observedAt time.Time) {
	b.publish(Event{Kind: KindPositionUpdate, Sample: sample, ObservedAt: observedAt})
}

// PublishWarning broadcasts a user-facing warning message.
func (b *Bus) PublishWarning(message string) {
	b.publish(Event{Kind: KindWarning, Message: message})
}

// LastPosition returns the last published position update event.
func (b *Bus) LastPosition() (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate, b.haveUpdate
}

func (b *Bus) publish(event Event) {
	b.mu.Lock()
	if event.Kind == KindPositionUpdate {
		b.lastUpdate = event
		b.haveUpdate = true
	}
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	b.mu.Unlock()
}
