package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/capturelabs/capture-core/internal/config"
)

const defaultHTTPTimeout = 60 * time.Second

// HTTPTranscriber posts audio to a whisper-style JSON API.
type HTTPTranscriber struct {
	endpoint string
	apiKey   string
	language string
	client   *http.Client
}

func NewHTTPTranscriber(cfg config.TranscriberConfig) *HTTPTranscriber {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutMS > 0 {
		timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	return &HTTPTranscriber{
		endpoint: normalizeEndpoint(cfg.Endpoint),
		apiKey:   cfg.APIKey,
		language: cfg.Language,
		client:   &http.Client{Timeout: timeout},
	}
}

// normalizeEndpoint appends the /api path when the configured URL stops at
// the service root. Trailing slashes are stripped first so both forms of
// the base URL land on the same request path.
func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimRight(endpoint, "/")
	if !strings.HasSuffix(endpoint, "/api") {
		endpoint += "/api"
	}
	return endpoint
}

type httpRequest struct {
	Audio    string         `json:"audio"`
	Language []string       `json:"language,omitempty"`
	Context  map[string]any `json:"context"`
}

type httpResponse struct {
	Text *string `json:"text"`
}

func (t *HTTPTranscriber) Transcribe(ctx context.Context, audioB64 string) (Result, error) {
	reqBody := httpRequest{
		Audio:   audioB64,
		Context: map[string]any{},
	}
	if t.language != "" {
		reqBody.Language = []string{t.language}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("marshal transcription request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("transcription timed out: %w", err)
		}
		return Result{}, fmt.Errorf("transcription service unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read transcription response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("transcription service returned status %d", resp.StatusCode)
	}

	var parsed httpResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, fmt.Errorf("invalid transcription response: %w", err)
	}
	if parsed.Text == nil {
		return Result{}, ErrNoSpeech
	}
	text, err := checkText(*parsed.Text)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: text}, nil
}
