package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/capturelabs/capture-core/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Payload is the ingestion record delivered downstream. The audio artifact
// is gone by the time this exists; only text travels onward.
type Payload struct {
	Text      string `json:"text"`
	ClientID  string `json:"clientId"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
	RequestID string `json:"requestId"`
}

// Result is the terminal state of one delivery.
type Result struct {
	Success  bool
	Attempts int
	Err      error
}

// StatusError means the endpoint answered with a non-2xx status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("endpoint returned status %d", e.Code)
}

// TransportError means the request never got a response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("endpoint unreachable: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// Forwarder delivers payloads over HTTP POST with a fixed retry schedule.
// One Forwarder serves all requests; it holds no per-delivery state.
type Forwarder struct {
	endpoint       string
	authToken      string
	delays         []time.Duration
	attemptTimeout time.Duration
	client         *http.Client
	log            *slog.Logger

	// sleep is swapped out by tests; it must return early when ctx ends.
	sleep func(ctx context.Context, d time.Duration) error

	attemptCounter metric.Int64Counter
}

func New(cfg config.ForwarderConfig, log *slog.Logger) *Forwarder {
	delays := make([]time.Duration, len(cfg.RetryDelaysMS))
	for i, ms := range cfg.RetryDelaysMS {
		delays[i] = time.Duration(ms) * time.Millisecond
	}
	f := &Forwarder{
		endpoint:       cfg.Endpoint,
		authToken:      cfg.AuthToken,
		delays:         delays,
		attemptTimeout: time.Duration(cfg.AttemptTimeoutMS) * time.Millisecond,
		client:         &http.Client{},
		log:            log.With(slog.String("component", "forwarder")),
		sleep:          sleepCtx,
	}
	meter := otel.Meter("github.com/capturelabs/capture-core/forward")
	counter, err := meter.Int64Counter("capture.forward.attempts",
		metric.WithDescription("Forward delivery attempts"))
	if err != nil {
		f.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	} else {
		f.attemptCounter = counter
	}
	return f
}

// Deliver posts the payload, retrying per the configured schedule. A 2xx
// response is terminal success. Everything else is recorded as the latest
// error and retried until the schedule is exhausted. Cancelling ctx stops
// the loop between attempts and abandons any in-flight request.
func (f *Forwarder) Deliver(ctx context.Context, payload Payload) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Success: false, Attempts: 0, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= len(f.delays); attempt++ {
		if ctx.Err() != nil {
			break
		}
		attempts++
		if f.attemptCounter != nil {
			f.attemptCounter.Add(ctx, 1)
		}

		err := f.attempt(ctx, body)
		if err == nil {
			return Result{Success: true, Attempts: attempts}
		}
		lastErr = err
		f.log.Warn("forward attempt failed",
			slog.String("request_id", payload.RequestID),
			slog.Int("attempt", attempts),
			slog.String("error", err.Error()))

		if attempt < len(f.delays) {
			if err := f.sleep(ctx, f.delays[attempt]); err != nil {
				break
			}
		}
	}

	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return Result{Success: false, Attempts: attempts, Err: lastErr}
}

func (f *Forwarder) attempt(ctx context.Context, body []byte) error {
	attemptCtx, cancel := context.WithTimeout(ctx, f.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.authToken != "" {
		req.Header.Set("Authorization", f.authToken)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body) // response content is ignored

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{Code: resp.StatusCode}
}

// sleepCtx waits for d without holding any lock, returning early when ctx
// is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
