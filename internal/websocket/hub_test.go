package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/logging"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/model"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/wizard"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg, ok := <-c.Send:
		if !ok {
			t.Fatal("send channel closed")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	return nil
}

func TestHub_PublishSnapshotReachesSessionSubscribers(t *testing.T) {
	hub := startHub(t)
	a := &Client{SessionID: "s-1", Send: make(chan []byte, 4)}
	b := &Client{SessionID: "s-2", Send: make(chan []byte, 4)}
	hub.Register(a)
	hub.Register(b)

	hub.PublishSnapshot(wizard.Snapshot{ID: "s-1", Step: wizard.StepGenerating, Progress: 0.4})

	var msg struct {
		Type      string          `json:"type"`
		SessionID string          `json:"sessionId"`
		Snapshot  wizard.Snapshot `json:"snapshot"`
	}
	if err := json.Unmarshal(receive(t, a), &msg); err != nil {
		t.Fatalf("invalid message: %v", err)
	}
	if msg.Type != model.WSMessageTypeSnapshot || msg.SessionID != "s-1" || msg.Snapshot.Progress != 0.4 {
		t.Errorf("unexpected message %+v", msg)
	}

	select {
	case <-b.Send:
		t.Error("subscriber of another session received the snapshot")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_Unregister(t *testing.T) {
	hub := startHub(t)
	c := &Client{SessionID: "s-1", Send: make(chan []byte, 1)}
	hub.Register(c)
	deadline := time.Now().Add(time.Second)
	for hub.Subscribers("s-1") == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if hub.Subscribers("s-1") != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.Subscribers("s-1"))
	}

	hub.Unregister(c)
	if _, ok := <-c.Send; ok {
		t.Error("expected send channel closed")
	}
	if hub.Subscribers("s-1") != 0 {
		t.Error("expected no subscribers")
	}
}

func TestHub_StoppedHubDoesNotBlock(t *testing.T) {
	hub := NewHub(logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() { hub.Run(ctx); close(stopped) }()
	cancel()
	<-stopped

	done := make(chan struct{})
	go func() {
		c := &Client{SessionID: "s", Send: make(chan []byte, 1)}
		hub.Register(c)
		hub.Unregister(c)
		hub.PublishSnapshot(wizard.Snapshot{ID: "s"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub calls blocked after shutdown")
	}
}
