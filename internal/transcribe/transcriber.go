package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/capturelabs/capture-core/internal/config"
)

// Result captures transcriber output.
type Result struct {
	Text string
}

// Transcriber abstracts speech-to-text backends. The audio argument is a
// base64-encoded mono 16 kHz WAV container produced by the audio pipeline.
type Transcriber interface {
	Transcribe(ctx context.Context, audioB64 string) (Result, error)
}

// ErrNoSpeech is returned when the backend produced no usable text. An
// empty transcript is a failure, not a success with an empty result.
var ErrNoSpeech = errors.New("no speech detected in audio")

// New builds a transcriber from config.
func New(cfg config.TranscriberConfig) (Transcriber, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockTranscriber(), nil
	case "http":
		return NewHTTPTranscriber(cfg), nil
	case "exec":
		return NewExecTranscriber(cfg)
	default:
		return nil, fmt.Errorf("unknown transcriber mode %q", cfg.Mode)
	}
}

// checkText enforces the shared no-speech rule across backends.
func checkText(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}
