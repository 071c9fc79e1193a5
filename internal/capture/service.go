package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/capturelabs/capture-core/internal/audio"
	"github.com/capturelabs/capture-core/internal/config"
	"github.com/capturelabs/capture-core/internal/forward"
	"github.com/capturelabs/capture-core/internal/journal"
	"github.com/capturelabs/capture-core/internal/protocol"
	"github.com/capturelabs/capture-core/internal/ratelimit"
	"github.com/capturelabs/capture-core/internal/transcribe"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Error is a capture failure with a stable code for the API response.
type Error struct {
	Code       protocol.ErrorCode
	Message    string
	RetryAfter int // seconds, set only for rate limit rejections
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func failure(code protocol.ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Converter turns raw uploaded audio into a base64 WAV payload.
type Converter interface {
	Convert(data []byte, contentType string) (string, audio.Info, error)
}

// Admitter is the rate limiter's admission surface.
type Admitter interface {
	Admit(clientID string) ratelimit.Decision
}

// Deliverer posts transcripts downstream.
type Deliverer interface {
	Deliver(ctx context.Context, payload forward.Payload) forward.Result
}

// Recorder journals request outcomes.
type Recorder interface {
	Record(ctx context.Context, entry journal.Entry) error
}

// Publisher emits transcript events on the bus.
type Publisher interface {
	PublishTranscript(ctx context.Context, event protocol.TranscriptEvent) error
}

// Request carries one inbound capture call through the stages.
type Request struct {
	RequestID string
	ClientID  string
	APIKey    string
	Artifact  *Artifact
}

// Service sequences admission, conversion, transcription and forwarding,
// guaranteeing artifact cleanup on every path.
type Service struct {
	auth        *Authorizer
	limiter     Admitter
	converter   Converter
	transcriber transcribe.Transcriber
	forwarder   Deliverer
	recorder    Recorder
	publisher   Publisher // nil when the bus is disabled

	maxBytes    int
	maxDuration time.Duration

	log   *slog.Logger
	clock func() time.Time

	processed metric.Int64Counter
}

// Deps bundles the collaborators a Service sequences.
type Deps struct {
	Auth        *Authorizer
	Limiter     Admitter
	Converter   Converter
	Transcriber transcribe.Transcriber
	Forwarder   Deliverer
	Recorder    Recorder
	Publisher   Publisher
}

func NewService(cfg config.AudioConfig, deps Deps, log *slog.Logger) *Service {
	s := &Service{
		auth:        deps.Auth,
		limiter:     deps.Limiter,
		converter:   deps.Converter,
		transcriber: deps.Transcriber,
		forwarder:   deps.Forwarder,
		recorder:    deps.Recorder,
		publisher:   deps.Publisher,
		maxBytes:    cfg.MaxSizeMB * 1024 * 1024,
		maxDuration: time.Duration(cfg.MaxDurationSeconds) * time.Second,
		log:         log.With(slog.String("component", "capture")),
		clock:       time.Now,
	}
	meter := otel.Meter("github.com/capturelabs/capture-core/capture")
	counter, err := meter.Int64Counter("capture.requests",
		metric.WithDescription("Capture requests by outcome"))
	if err != nil {
		s.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	} else {
		s.processed = counter
	}
	return s
}

// Process runs one capture request through every stage. The artifact is
// zeroed before this returns no matter which stage failed.
func (s *Service) Process(ctx context.Context, req Request) *Error {
	started := s.clock()
	defer req.Artifact.Release()

	text, perr := s.run(ctx, req)
	s.journalOutcome(ctx, req, started, text, perr)
	s.countOutcome(ctx, perr)

	if perr != nil {
		s.log.Warn("capture request failed",
			slog.String("request_id", req.RequestID),
			slog.String("client_id", req.ClientID),
			slog.String("code", string(perr.Code)),
			slog.String("error", perr.Error()))
	}
	return perr
}

func (s *Service) run(ctx context.Context, req Request) (string, *Error) {
	// Admission runs first. A request without a client identifier skips it
	// and is rejected by the auth check instead.
	if req.ClientID != "" {
		decision := s.limiter.Admit(req.ClientID)
		if !decision.Allowed {
			return "", &Error{
				Code:       protocol.ErrRateLimitExceeded,
				Message:    "rate limit exceeded",
				RetryAfter: decision.RetryAfter,
			}
		}
	}

	if err := s.auth.Authorize(req.ClientID, req.APIKey); err != nil {
		return "", err
	}

	if s.maxBytes > 0 && req.Artifact.Size() > s.maxBytes {
		return "", failure(protocol.ErrFileTooLarge,
			fmt.Sprintf("audio exceeds %d bytes", s.maxBytes), nil)
	}

	encoded, info, err := s.converter.Convert(req.Artifact.Bytes(), req.Artifact.ContentType())
	if err != nil {
		return "", failure(protocol.ErrConversionFailed, "audio conversion failed", err)
	}
	if s.maxDuration > 0 && info.Duration > s.maxDuration {
		return "", failure(protocol.ErrDurationTooLong,
			fmt.Sprintf("audio exceeds %s", s.maxDuration), nil)
	}

	result, terr := s.transcriber.Transcribe(ctx, encoded)
	// The raw upload is no longer needed once transcription has run; zero
	// it before anything leaves the process.
	req.Artifact.Release()
	if terr != nil {
		return "", failure(protocol.ErrTranscriptionFailed, "transcription failed", terr)
	}

	s.log.Info("transcription complete",
		slog.String("request_id", req.RequestID),
		slog.String("client_id", req.ClientID),
		slog.String("format", info.Format),
		slog.Int("source_rate", info.SourceRate),
		slog.Int("text_chars", len(result.Text)))

	delivery := s.forwarder.Deliver(ctx, forward.Payload{
		Text:      result.Text,
		ClientID:  req.ClientID,
		Timestamp: s.clock().UnixMilli(),
		RequestID: req.RequestID,
	})
	if !delivery.Success {
		return result.Text, failure(protocol.ErrForwardingFailed, "downstream delivery failed", delivery.Err)
	}

	if s.publisher != nil {
		event := protocol.TranscriptEvent{
			RequestID: req.RequestID,
			ClientID:  req.ClientID,
			Text:      result.Text,
			Timestamp: s.clock(),
		}
		if err := s.publisher.PublishTranscript(ctx, event); err != nil {
			s.log.Warn("transcript publish failed",
				slog.String("request_id", req.RequestID),
				slog.String("error", err.Error()))
		}
	}

	return result.Text, nil
}

func (s *Service) journalOutcome(ctx context.Context, req Request, started time.Time, text string, perr *Error) {
	if s.recorder == nil {
		return
	}
	status := "success"
	if perr != nil {
		status = string(perr.Code)
	}
	entry := journal.Entry{
		RequestID:  req.RequestID,
		ClientID:   req.ClientID,
		Status:     status,
		TextChars:  len(text),
		DurationMS: s.clock().Sub(started).Milliseconds(),
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.log.Warn("journal record failed",
			slog.String("request_id", req.RequestID),
			slog.String("error", err.Error()))
	}
}

func (s *Service) countOutcome(ctx context.Context, perr *Error) {
	if s.processed == nil {
		return
	}
	outcome := "success"
	if perr != nil {
		outcome = string(perr.Code)
	}
	s.processed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
