package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/eleven-am/camera-sentinel/internal/classifier"
	"github.com/eleven-am/camera-sentinel/internal/shared"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func startNATS(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("failed to create NATS server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready after 5 seconds")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestPublisher_Publish(t *testing.T) {
	ns := startNATS(t)

	pub, err := Connect(Config{URL: ns.ClientURL(), SubjectPrefix: "test.events"}, nil)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer pub.Close()

	sub, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("subscriber connect: %v", err)
	}
	defer sub.Close()

	msgs := make(chan *nats.Msg, 1)
	if _, err := sub.ChanSubscribe("test.events.>", msgs); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub.Flush()

	at := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)
	rec := NewRecord("cap-1", shared.Camera{ID: "cam-1", Name: "Front Door"},
		classifier.Observation{Label: "CAT", Description: "A cat is near the pond."}, at)
	rec.Notified = true
	rec.Priority = "low"

	if err := pub.Publish(context.Background(), rec); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-msgs:
		if msg.Subject != "test.events.front_door" {
			t.Errorf("expected subject test.events.front_door, got %s", msg.Subject)
		}
		var got Record
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("decode record: %v", err)
		}
		if got.Type != "observation" || got.Headline != "OBSERVATION CAT" {
			t.Errorf("unexpected record %+v", got)
		}
		if !got.At.Equal(at) {
			t.Errorf("expected time %v, got %v", at, got.At)
		}
		if got.CaptureID != "cap-1" || !got.Notified {
			t.Errorf("unexpected record %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublisher_Ping(t *testing.T) {
	ns := startNATS(t)

	pub, err := Connect(Config{URL: ns.ClientURL()}, nil)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := pub.Ping(context.Background()); err != nil {
		t.Errorf("expected healthy connection, got %v", err)
	}
	if pub.Subject("Garage") != DefaultSubjectPrefix+".garage" {
		t.Errorf("unexpected default subject %s", pub.Subject("Garage"))
	}

	pub.conn.Close()
	if err := pub.Ping(context.Background()); err == nil {
		t.Error("expected Ping to fail on closed connection")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	if _, err := Connect(Config{URL: "nats://127.0.0.1:1"}, nil); err == nil {
		t.Error("expected error for unreachable server")
	}
}

func TestSubjectToken(t *testing.T) {
	tests := map[string]string{
		"FrontDoor":   "frontdoor",
		"Front Door":  "front_door",
		"garage.side": "garage_side",
		"cam>*":       "cam__",
		"back-yard_2": "back-yard_2",
		"  ":          "unknown",
		"Café":        "caf_",
	}
	for in, want := range tests {
		if got := SubjectToken(in); got != want {
			t.Errorf("SubjectToken(%q) = %q, want %q", in, got, want)
		}
	}
}
