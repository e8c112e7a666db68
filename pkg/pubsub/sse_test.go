package pubsub

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func receive(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed")
		}
		return ev
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func expectNone(t *testing.T, sub Subscription) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Errorf("unexpected event version %d", ev.Version)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDiagramReplaysLatestSnapshot(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()
	pub.ConfigureDefaults()

	for i := 1; i <= 3; i++ {
		if err := pub.Publish(TopicDiagram, "snapshot", map[string]int{"nodes": i}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := pub.Subscribe(ctx, TopicDiagram)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	ev := receive(t, sub)
	if ev.Version != 3 {
		t.Errorf("version = %d, want 3", ev.Version)
	}
	var payload map[string]int
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["nodes"] != 3 {
		t.Errorf("payload = %v, want nodes=3", payload)
	}
	expectNone(t, sub)
}

func TestReplayAllKeepsBufferSize(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()
	pub.ConfigureTopic(TopicValidation, TopicConfig{BufferSize: 3, ReplayAll: true})

	for i := 1; i <= 5; i++ {
		if err := pub.Publish(TopicValidation, "failed", i); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := pub.Subscribe(ctx, TopicValidation)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	for want := 3; want <= 5; want++ {
		if ev := receive(t, sub); ev.Version != want {
			t.Errorf("version = %d, want %d", ev.Version, want)
		}
	}
}

func TestRenderRequestsAreNotReplayed(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()
	pub.ConfigureDefaults()

	if err := pub.Publish(TopicRender, "init", map[string]int64{"nodeID": 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := pub.Subscribe(ctx, TopicRender)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()
	expectNone(t, sub)

	if err := pub.Publish(TopicRender, "update", map[string]int64{"nodeID": 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	ev := receive(t, sub)
	if ev.Type != "update" || ev.Version != 2 {
		t.Errorf("got %s v%d, want update v2", ev.Type, ev.Version)
	}
}

func TestClosedPublisher(t *testing.T) {
	pub := NewSSEPublisher()
	sub, err := pub.Subscribe(context.Background(), TopicDiagram)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, ok := <-sub.Events(); ok {
		t.Error("events channel still open after close")
	}
	if err := pub.Publish(TopicDiagram, "snapshot", nil); err == nil {
		t.Error("publish on closed publisher succeeded")
	}
	if _, err := pub.Subscribe(context.Background(), TopicDiagram); err == nil {
		t.Error("subscribe on closed publisher succeeded")
	}
}

func TestCancelledSubscriptionCloses(t *testing.T) {
	pub := NewSSEPublisher()
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := pub.Subscribe(ctx, TopicRender)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Error("received an event after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("events channel not closed after cancel")
	}
	if err := pub.Publish(TopicRender, "update", nil); err != nil {
		t.Errorf("publish after unsubscribe: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	ev := Event{Topic: TopicDiagram, Type: "diff", Data: json.RawMessage(`{"added":[]}`), Version: 7}
	if err := WriteSSE(&buf, ev); err != nil {
		t.Fatalf("WriteSSE: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "event: diff\nid: 7\ndata: ") {
		t.Errorf("unexpected framing: %q", out)
	}
	if !strings.HasSuffix(out, "\n\n") {
		t.Errorf("frame not terminated: %q", out)
	}
	if !strings.Contains(out, `"topic":"diagram"`) {
		t.Errorf("payload missing topic: %q", out)
	}
}

func TestKnownTopic(t *testing.T) {
	for _, topic := range []string{TopicDiagram, TopicRender, TopicValidation} {
		if !KnownTopic(topic) {
			t.Errorf("KnownTopic(%q) = false", topic)
		}
	}
	if KnownTopic("workspace_status") {
		t.Error("KnownTopic accepted an unknown topic")
	}
}
