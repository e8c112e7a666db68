package pubsub

import (
	"context"
	"encoding/json"
)

// Topics published by the editor.
const (
	TopicDiagram    = "diagram"    // diagram snapshots and diffs
	TopicRender     = "render"     // view init/update requests
	TopicValidation = "validation" // structure step validation failures
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // Subscription topic (e.g., "diagram", "render")
	Type    string          `json:"type"`    // Event type (e.g., "snapshot", "diff", "update")
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Version number for ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic
	// Context cancellation will close the subscription
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data any) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// KnownTopic reports whether topic is one the editor publishes on.
func KnownTopic(topic string) bool {
	switch topic {
	case TopicDiagram, TopicRender, TopicValidation:
		return true
	}
	return false
}
