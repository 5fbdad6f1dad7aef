package editor

import (
	"errors"
	"testing"
	"time"

	"github.com/kwv/floorplan/spatial"
)

func TestPatchTopic(t *testing.T) {
	if got := PatchTopic("floorplan", "fp-1"); got != "floorplan/floor-plans/fp-1/patches" {
		t.Errorf("PatchTopic = %q", got)
	}
}

func TestNewRealtimeClient_Disabled(t *testing.T) {
	c, err := NewRealtimeClient(MQTTConfig{}, "fp-1", nil)
	if err != nil || c != nil {
		t.Fatalf("NewRealtimeClient without broker = %v, %v; want nil, nil", c, err)
	}
}

func TestNewRealtimeClient_RequiresPlan(t *testing.T) {
	if _, err := NewRealtimeClient(MQTTConfig{Broker: "tcp://localhost:1883"}, "", nil); err == nil {
		t.Fatal("expected error for empty plan id")
	}
}

func TestNewRealtimeClient_Configured(t *testing.T) {
	c, err := NewRealtimeClient(MQTTConfig{Broker: "tcp://localhost:1883", ClientID: "t"}, "fp-1", nil)
	if err != nil {
		t.Fatalf("NewRealtimeClient: %v", err)
	}
	if c.Topic() != "floorplan/floor-plans/fp-1/patches" {
		t.Errorf("Topic = %q, want default prefix", c.Topic())
	}
	if c.IsConnected() {
		t.Error("client should not be connected before Start")
	}
}

func TestRealtimeClient_SubscribesAndDelivers(t *testing.T) {
	s := newTestSession(t)
	r := NewReconciler(s, "editor-a")

	mock := NewMockClient()
	rc := NewRealtimeClientWithClient(mock, MQTTConfig{Broker: "tcp://mock", TopicPrefix: "plans"}, "fp-1", r.HandleMessage)
	rc.Start()

	deadline := time.Now().Add(2 * time.Second)
	for !mock.Subscribed("plans/floor-plans/fp-1/patches") {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for subscription")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !rc.IsConnected() {
		t.Error("IsConnected = false after connect")
	}

	n := mock.SimulateMessage(rc.Topic(), []byte(`{"id":"fp-1","origin":"editor-b","status":"PUBLISHED"}`))
	if n != 1 {
		t.Fatalf("delivered to %d handlers, want 1", n)
	}
	if got := s.Present().Status; got != spatial.StatusPublished {
		t.Errorf("Status = %s, want PUBLISHED", got)
	}

	// A malformed payload is logged and dropped.
	mock.SimulateMessage(rc.Topic(), []byte("garbage"))
	if got := s.Present().Status; got != spatial.StatusPublished {
		t.Errorf("Status = %s after garbage, want PUBLISHED", got)
	}

	rc.Disconnect()
	if rc.IsConnected() || mock.IsConnected() {
		t.Error("still connected after Disconnect")
	}
	if mock.Subscribed(rc.Topic()) {
		t.Error("still subscribed after Disconnect")
	}
	rc.Disconnect()
}

func TestRealtimeClient_StopsRetryingOnDisconnect(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnectError(errors.New("refused"))
	rc := NewRealtimeClientWithClient(mock, MQTTConfig{Broker: "tcp://mock"}, "fp-1", nil)

	done := make(chan struct{})
	go func() {
		rc.connectWithRetry()
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	rc.Disconnect()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("connectWithRetry did not stop after Disconnect")
	}
	if rc.IsConnected() {
		t.Error("IsConnected = true after failed connects")
	}
}

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"a/b/c", "a/b/c", true},
		{"a/+/c", "a/b/c", true},
		{"a/#", "a/b/c", true},
		{"a/+", "a/b/c", false},
		{"a/b/c", "a/b", false},
		{"floorplan/floor-plans/+/patches", "floorplan/floor-plans/fp-1/patches", true},
	}
	for _, tt := range tests {
		if got := topicMatches(tt.filter, tt.topic); got != tt.want {
			t.Errorf("topicMatches(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}
