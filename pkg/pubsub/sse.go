package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/shahcompbio/montage-sub000/pkg/logging"
)

// ErrClosed is returned by a publisher after Close.
var ErrClosed = errors.New("publisher is closed")

// subscriberBuffer is the per-subscriber queue; events beyond it are dropped
// rather than blocking the editor.
const subscriberBuffer = 100

// TopicConfig configures buffering behavior for a topic. The diagram topic
// replays only its latest snapshot; render requests are not replayed.
type TopicConfig struct {
	BufferSize int  // events kept for late subscribers (0 = none)
	ReplayAll  bool // replay every buffered event instead of the last one
}

// topic is the state of one event stream.
type topic struct {
	config  TopicConfig
	version int
	buffer  []Event
	subs    map[*sseSubscription]struct{}
}

// replay returns the events a new subscriber starts with.
func (t *topic) replay() []Event {
	if len(t.buffer) == 0 {
		return nil
	}
	if t.config.ReplayAll {
		return append([]Event(nil), t.buffer...)
	}
	return []Event{t.buffer[len(t.buffer)-1]}
}

// SSEPublisher implements Publisher using Server-Sent Events
type SSEPublisher struct {
	mu     sync.Mutex
	topics map[string]*topic
	closed bool
}

// NewSSEPublisher creates a new SSE-based publisher
func NewSSEPublisher() *SSEPublisher {
	return &SSEPublisher{topics: make(map[string]*topic)}
}

// topic returns the state for name, creating it. p.mu must be held.
func (p *SSEPublisher) topic(name string) *topic {
	t, ok := p.topics[name]
	if !ok {
		t = &topic{subs: make(map[*sseSubscription]struct{})}
		p.topics[name] = t
	}
	return t
}

// ConfigureTopic sets buffering configuration for a topic
func (p *SSEPublisher) ConfigureTopic(name string, config TopicConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.topic(name)
	t.config = config
	if over := len(t.buffer) - config.BufferSize; over > 0 {
		t.buffer = t.buffer[over:]
	}
}

// ConfigureDefaults applies the buffering used for the editor topics.
func (p *SSEPublisher) ConfigureDefaults() {
	p.ConfigureTopic(TopicDiagram, TopicConfig{BufferSize: 1})
	p.ConfigureTopic(TopicValidation, TopicConfig{BufferSize: 1})
	p.ConfigureTopic(TopicRender, TopicConfig{BufferSize: 0})
}

// Subscribe registers a subscription that replays the topic's buffered
// events first. The subscription closes when ctx is done.
func (p *SSEPublisher) Subscribe(ctx context.Context, name string) (Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	t := p.topic(name)
	sub := &sseSubscription{
		topic:     name,
		events:    make(chan Event, subscriberBuffer),
		publisher: p,
	}
	replay := t.replay()
	if over := len(replay) - subscriberBuffer; over > 0 {
		replay = replay[over:]
	}
	for _, ev := range replay {
		sub.events <- ev
	}
	t.subs[sub] = struct{}{}
	if len(replay) > 0 {
		logging.Debug("replayed events to new subscriber", "topic", name, "count", len(replay))
	}

	go func() {
		<-ctx.Done()
		sub.Close()
	}()
	return sub, nil
}

// Publish sends an event to every subscriber of a topic without blocking.
func (p *SSEPublisher) Publish(name string, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	t := p.topic(name)
	t.version++
	event := Event{
		Topic:   name,
		Type:    eventType,
		Data:    payload,
		Version: t.version,
	}
	if t.config.BufferSize > 0 {
		t.buffer = append(t.buffer, event)
		if over := len(t.buffer) - t.config.BufferSize; over > 0 {
			t.buffer = t.buffer[over:]
		}
	}

	for sub := range t.subs {
		select {
		case sub.events <- event:
		default:
			logging.Warn("subscription channel full, dropping event", "topic", name, "type", eventType)
		}
	}
	return nil
}

// Close shuts down the publisher and closes every subscription channel.
func (p *SSEPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for _, t := range p.topics {
		for sub := range t.subs {
			close(sub.events)
		}
		t.subs = nil
	}
	return nil
}

// unsubscribe removes sub and closes its channel unless Close already did.
func (p *SSEPublisher) unsubscribe(sub *sseSubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[sub.topic]
	if !ok {
		return
	}
	if _, live := t.subs[sub]; live {
		delete(t.subs, sub)
		close(sub.events)
	}
}

type sseSubscription struct {
	topic     string
	events    chan Event
	publisher *SSEPublisher
	once      sync.Once
}

func (s *sseSubscription) Topic() string {
	return s.topic
}

func (s *sseSubscription) Events() <-chan Event {
	return s.events
}

// Close ends the subscription; the events channel is closed.
func (s *sseSubscription) Close() error {
	s.once.Do(func() { s.publisher.unsubscribe(s) })
	return nil
}

// WriteSSE writes one event frame:
//
//	event: {type}
//	id: {version}
//	data: {json}
func WriteSSE(w io.Writer, event Event) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", event.Type, event.Version, b)
	return err
}
