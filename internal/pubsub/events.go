// Package pubsub fans typed events out to any number of subscribers. The
// runner publishes progress through it and the log package publishes lines.
package pubsub

import (
	"context"
	"time"
)

// EventType names what happened.
type EventType string

const (
	// LogLineEvent carries one formatted debug log line.
	LogLineEvent EventType = "log_line"
	// StateChangedEvent carries a registration runner state transition.
	StateChangedEvent EventType = "state_changed"
	// OutputEvent carries one status or tool output line of a run.
	OutputEvent EventType = "output"
)

// Event is a published payload stamped with its type and publish time.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber hands out subscription channels.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher accepts events.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
