package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eleven-am/camera-sentinel/internal/shared"
)

var classifyAt = time.Date(2026, 5, 2, 21, 7, 0, 0, time.UTC)

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(Config{}, nil)
	if client.provider != ProviderOpenAI {
		t.Errorf("expected default provider openai, got %s", client.provider)
	}
	if client.baseURL != defaultOpenAIURL {
		t.Errorf("expected baseURL %s, got %s", defaultOpenAIURL, client.baseURL)
	}
	if client.model != defaultModel {
		t.Errorf("expected model %s, got %s", defaultModel, client.model)
	}
	if client.maxTokens != defaultMaxTokens {
		t.Errorf("expected maxTokens %d, got %d", defaultMaxTokens, client.maxTokens)
	}
	if client.httpClient.Timeout != 60*time.Second {
		t.Errorf("expected timeout 60s, got %v", client.httpClient.Timeout)
	}
}

func TestNewClient_OllamaDefaults(t *testing.T) {
	client := NewClient(Config{Provider: "Ollama", Model: "qwen2.5vl", Timeout: 10 * time.Second}, nil)
	if client.provider != ProviderOllama {
		t.Errorf("expected ollama, got %s", client.provider)
	}
	if client.baseURL != defaultOllamaURL {
		t.Errorf("expected baseURL %s, got %s", defaultOllamaURL, client.baseURL)
	}
	if client.httpClient.Timeout != 10*time.Second {
		t.Errorf("expected timeout 10s, got %v", client.httpClient.Timeout)
	}
}

func TestClient_Classify_OpenAI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("expected /v1/chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("expected bearer token, got %q", r.Header.Get("Authorization"))
		}

		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "gpt-5-mini" {
			t.Errorf("expected model gpt-5-mini, got %s", req.Model)
		}
		if req.MaxCompletionTokens != 1000 {
			t.Errorf("expected max_completion_tokens 1000, got %d", req.MaxCompletionTokens)
		}
		if len(req.Messages) != 1 || len(req.Messages[0].Content) != 2 {
			t.Fatalf("expected one message with text and image, got %+v", req.Messages)
		}

		text := req.Messages[0].Content[0].Text
		if !strings.Contains(text, "The current time is 21:07.") {
			t.Errorf("prompt missing local time: %s", text)
		}
		if !strings.Contains(text, "Alert on racoons.") {
			t.Errorf("prompt missing instructions: %s", text)
		}

		img := req.Messages[0].Content[1].ImageURL
		want := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("jpeg"))
		if img == nil || img.URL != want {
			t.Errorf("unexpected image url %+v", img)
		}

		w.Write([]byte(`{"choices":[{"message":{"content":"  OBSERVATION CAT\nA cat is near the pond.\n"}}]}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "sk-test"}, nil)
	got, err := client.Classify(context.Background(), []byte("jpeg"), "Alert on racoons.", classifyAt)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if got != "OBSERVATION CAT\nA cat is near the pond." {
		t.Errorf("unexpected response %q", got)
	}
}

func TestClient_Classify_Ollama(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("expected /api/generate, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("ollama requests should not carry a bearer token")
		}

		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("expected model 'test-model', got %s", req.Model)
		}
		if len(req.Images) != 1 {
			t.Errorf("expected 1 image, got %d", len(req.Images))
		}
		if req.Stream {
			t.Error("stream should be false")
		}

		json.NewEncoder(w).Encode(ollamaResponse{Response: "NOTHING TO REPORT\nEmpty driveway.", Done: true})
	}))
	defer server.Close()

	client := NewClient(Config{Provider: ProviderOllama, BaseURL: server.URL, APIKey: "ignored", Model: "test-model"}, nil)
	got, err := client.Classify(context.Background(), []byte("jpeg"), "", classifyAt)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if got != "NOTHING TO REPORT\nEmpty driveway." {
		t.Errorf("unexpected response %q", got)
	}
}

func TestClient_Classify_EmptyImage(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://localhost"}, nil)
	_, err := client.Classify(context.Background(), nil, "", classifyAt)
	if !errors.Is(err, shared.ErrCollaboratorUnavailable) {
		t.Errorf("expected ErrCollaboratorUnavailable, got %v", err)
	}
}

func TestClient_Classify_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"invalid json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}},
		{"no choices", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		}},
		{"api error body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewClient(Config{BaseURL: server.URL}, nil)
			_, err := client.Classify(context.Background(), []byte("x"), "", classifyAt)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, shared.ErrCollaboratorUnavailable) {
				t.Errorf("expected ErrCollaboratorUnavailable, got %v", err)
			}
		})
	}
}

func TestClient_Classify_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.Write([]byte(`{"choices":[{"message":{"content":"x"}}]}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Classify(ctx, []byte("x"), "", classifyAt); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestClient_Classify_DownscalesWideImages(t *testing.T) {
	var received []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaRequest
		json.NewDecoder(r.Body).Decode(&req)
		received, _ = base64.StdEncoding.DecodeString(req.Images[0])
		json.NewEncoder(w).Encode(ollamaResponse{Response: "NOTHING TO REPORT", Done: true})
	}))
	defer server.Close()

	client := NewClient(Config{Provider: ProviderOllama, BaseURL: server.URL, MaxWidth: 64}, nil)
	if _, err := client.Classify(context.Background(), testJPEG(t, 256, 128), "", classifyAt); err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(received))
	if err != nil {
		t.Fatalf("received image is not a jpeg: %v", err)
	}
	if cfg.Width != 64 || cfg.Height != 32 {
		t.Errorf("expected 64x32, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestClient_Ping(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		path     string
		status   int
		wantOK   bool
	}{
		{"openai healthy", ProviderOpenAI, "/v1/models", http.StatusOK, true},
		{"ollama healthy", ProviderOllama, "/api/tags", http.StatusOK, true},
		{"unavailable", ProviderOllama, "/api/tags", http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("expected GET, got %s", r.Method)
				}
				if r.URL.Path != tt.path {
					t.Errorf("expected %s, got %s", tt.path, r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := NewClient(Config{Provider: tt.provider, BaseURL: server.URL}, nil)
			if client.IsAvailable(context.Background()) != tt.wantOK {
				t.Errorf("IsAvailable = %v, want %v", !tt.wantOK, tt.wantOK)
			}
		})
	}
}

func TestClient_Ping_ServerDown(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://localhost:99999"}, nil)
	if client.IsAvailable(context.Background()) {
		t.Error("expected IsAvailable to return false for unreachable server")
	}
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode test jpeg: %v", err)
	}
	return buf.Bytes()
}
