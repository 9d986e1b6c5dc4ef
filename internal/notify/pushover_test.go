package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/eleven-am/camera-sentinel/internal/shared"
)

func TestPushover_Send_WithAttachment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/1/messages.json" {
			t.Errorf("expected /1/messages.json, got %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("expected multipart form: %v", err)
		}

		checks := map[string]string{
			"token":    "app-token",
			"user":     "user-key",
			"title":    "OBSERVATION CAT (FrontDoor)",
			"message":  "A cat is near the pond.",
			"priority": "-1",
		}
		for field, want := range checks {
			if got := r.FormValue(field); got != want {
				t.Errorf("field %s: expected %q, got %q", field, want, got)
			}
		}

		file, header, err := r.FormFile("attachment")
		if err != nil {
			t.Fatalf("expected attachment: %v", err)
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "jpeg-bytes" {
			t.Errorf("unexpected attachment content: %q", data)
		}
		if header.Filename != "snapshot.jpg" {
			t.Errorf("expected filename snapshot.jpg, got %s", header.Filename)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(pushoverResponse{Status: 1, Request: "req-1"})
	}))
	defer server.Close()

	p := NewPushover(Config{APIToken: "app-token", UserKey: "user-key", BaseURL: server.URL})
	err := p.Send(context.Background(), Notification{
		Camera:   "FrontDoor",
		Title:    "OBSERVATION CAT",
		Body:     "A cat is near the pond.",
		Image:    []byte("jpeg-bytes"),
		Priority: PriorityLow,
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
}

func TestPushover_Send_NoImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			t.Error("expected url-encoded form without an attachment")
		}
		r.ParseForm()
		if r.FormValue("priority") != "1" {
			t.Errorf("expected priority 1, got %s", r.FormValue("priority"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(pushoverResponse{Status: 1})
	}))
	defer server.Close()

	p := NewPushover(Config{APIToken: "t", UserKey: "u", BaseURL: server.URL})
	err := p.Send(context.Background(), Notification{Title: "ALARM TEST", Body: "Manual test", Priority: PriorityHigh})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
}

func TestPushover_Send_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(pushoverResponse{Status: 0, Errors: []string{"user identifier is invalid"}})
	}))
	defer server.Close()

	p := NewPushover(Config{APIToken: "t", UserKey: "bad", BaseURL: server.URL})
	err := p.Send(context.Background(), Notification{Title: "x", Body: "y"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, shared.ErrCollaboratorUnavailable) {
		t.Errorf("expected ErrCollaboratorUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "user identifier is invalid") {
		t.Errorf("expected API error to be surfaced, got %v", err)
	}
}

func TestPushover_Send_MissingCredentials(t *testing.T) {
	p := NewPushover(Config{})
	err := p.Send(context.Background(), Notification{Title: "x"})
	if !errors.Is(err, shared.ErrCollaboratorUnavailable) {
		t.Errorf("expected ErrCollaboratorUnavailable, got %v", err)
	}
}

func TestPushover_Send_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	p := NewPushover(Config{APIToken: "t", UserKey: "u", BaseURL: url})
	if err := p.Send(context.Background(), Notification{Title: "x"}); err == nil {
		t.Fatal("expected error for unreachable server")
	}
}

func TestPushTitle(t *testing.T) {
	tests := []struct {
		camera string
		want   string
	}{
		{"FrontDoor", "ALARM RACOON (FrontDoor)"},
		{"", "ALARM RACOON"},
		{"test", "ALARM RACOON"},
	}
	for _, tt := range tests {
		t.Run(tt.camera, func(t *testing.T) {
			got := pushTitle(Notification{Camera: tt.camera, Title: "ALARM RACOON"})
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if truncate("short", 10) != "short" {
		t.Error("short strings should be unchanged")
	}
	got := truncate("abcdefghij", 5)
	if got != "abcd…" {
		t.Errorf("expected 'abcd…', got %q", got)
	}
}

func TestPriority_String(t *testing.T) {
	tests := map[Priority]string{
		PriorityLow:    "low",
		PriorityNormal: "normal",
		PriorityHigh:   "high",
		Priority(7):    "unknown",
	}
	for p, want := range tests {
		if p.String() != want {
			t.Errorf("Priority(%d).String() = %s, want %s", int(p), p.String(), want)
		}
	}
}
