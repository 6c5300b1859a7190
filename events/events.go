// Package events carries catalog change notifications to other processes.
//
// Writers publish after their changes are durable, so a subscriber that
// reads the store on receipt always observes the change.
package events

import (
	"context"
	"sync"
	"time"
)

const (
	SubjectFeaturesUpdated = "lookbook.features.updated"
	SubjectColorsRemapped  = "lookbook.colors.remapped"
)

// Event is a domain notification with a routing subject.
type Event interface {
	Subject() string
}

// FeaturesUpdated reports a committed batch of feature upserts.
type FeaturesUpdated struct {
	RunID  string    `json:"run_id"`
	SKUs   []string  `json:"skus"`
	Spaces []string  `json:"spaces"`
	At     time.Time `json:"at"`
}

func (FeaturesUpdated) Subject() string { return SubjectFeaturesUpdated }

// ColorsRemapped reports that the color mapping table was replaced.
type ColorsRemapped struct {
	Sources int       `json:"sources"`
	Targets []string  `json:"targets"`
	At      time.Time `json:"at"`
}

func (ColorsRemapped) Subject() string { return SubjectColorsRemapped }

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events in publish order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
