package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/capturelabs/capture-core/internal/config"
)

func TestNormalizeEndpoint(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"http://stt:9000", "http://stt:9000/api"},
		{"http://stt:9000/", "http://stt:9000/api"},
		{"http://stt:9000//", "http://stt:9000/api"},
		{"http://stt:9000/api", "http://stt:9000/api"},
		{"http://stt:9000/api/", "http://stt:9000/api"},
	}
	for _, tc := range cases {
		if got := normalizeEndpoint(tc.in); got != tc.want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func newHTTPTranscriber(endpoint string) *HTTPTranscriber {
	return NewHTTPTranscriber(config.TranscriberConfig{
		Mode:     "http",
		Endpoint: endpoint,
		APIKey:   "secret-key",
		Language: "en",
	})
}

func TestHTTPTranscribeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret-key" {
			t.Errorf("missing bearer token")
		}
		var req struct {
			Audio    string         `json:"audio"`
			Language []string       `json:"language"`
			Context  map[string]any `json:"context"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Audio != "ZmFrZQ==" {
			t.Errorf("unexpected audio payload %q", req.Audio)
		}
		if len(req.Language) != 1 || req.Language[0] != "en" {
			t.Errorf("unexpected language %v", req.Language)
		}
		json.NewEncoder(w).Encode(map[string]any{"text": "turn on the lights"})
	}))
	defer server.Close()

	tr := newHTTPTranscriber(server.URL)
	result, err := tr.Transcribe(context.Background(), "ZmFrZQ==")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if result.Text != "turn on the lights" {
		t.Fatalf("unexpected text %q", result.Text)
	}
}

func TestHTTPTranscribeEmptyText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"text": "   "})
	}))
	defer server.Close()

	tr := newHTTPTranscriber(server.URL)
	if _, err := tr.Transcribe(context.Background(), "ZmFrZQ=="); !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("expected ErrNoSpeech, got %v", err)
	}
}

func TestHTTPTranscribeNullText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": null}`))
	}))
	defer server.Close()

	tr := newHTTPTranscriber(server.URL)
	if _, err := tr.Transcribe(context.Background(), "ZmFrZQ=="); !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("expected ErrNoSpeech, got %v", err)
	}
}

func TestHTTPTranscribeNonStringText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": 42}`))
	}))
	defer server.Close()

	tr := newHTTPTranscriber(server.URL)
	if _, err := tr.Transcribe(context.Background(), "ZmFrZQ=="); err == nil {
		t.Fatal("expected error for non-string transcript")
	}
}

func TestHTTPTranscribeStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	tr := newHTTPTranscriber(server.URL)
	if _, err := tr.Transcribe(context.Background(), "ZmFrZQ=="); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}

func TestHTTPTranscribeUnreachable(t *testing.T) {
	tr := newHTTPTranscriber("http://127.0.0.1:1")
	if _, err := tr.Transcribe(context.Background(), "ZmFrZQ=="); err == nil {
		t.Fatal("expected error when service is unreachable")
	}
}

func TestNewSelectsMode(t *testing.T) {
	if _, err := New(config.TranscriberConfig{Mode: "mock"}); err != nil {
		t.Fatalf("mock mode: %v", err)
	}
	if _, err := New(config.TranscriberConfig{Mode: "http", Endpoint: "http://stt:9000"}); err != nil {
		t.Fatalf("http mode: %v", err)
	}
	if _, err := New(config.TranscriberConfig{Mode: "exec", Command: "whisper-cli --fast"}); err != nil {
		t.Fatalf("exec mode: %v", err)
	}
	if _, err := New(config.TranscriberConfig{Mode: "bogus"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
