package audio

import (
	"fmt"
	"time"
)

// ConversionError wraps the originating stage's failure. No partial output
// escapes the pipeline.
type ConversionError struct {
	Stage string // decode, encode
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("audio conversion failed at %s: %v", e.Stage, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Info describes the decoded source, reported alongside the conversion
// result so callers can enforce duration limits and attribute log records.
type Info struct {
	SourceRate     int
	SourceChannels int
	Format         string
	Duration       time.Duration
}

// Pipeline normalizes uploaded audio to mono PCM WAV at the target rate and
// base64-encodes the container. It holds no state between invocations and is
// safe for concurrent use.
type Pipeline struct {
	TargetRate int
}

func NewPipeline(targetRate int) *Pipeline {
	return &Pipeline{TargetRate: targetRate}
}

// Convert runs decode, downmix, resample, encode in order. Any stage failure
// short-circuits with a ConversionError.
func (p *Pipeline) Convert(data []byte, contentType string) (string, Info, error) {
	buf, err := Decode(data, contentType)
	if err != nil {
		return "", Info{}, &ConversionError{Stage: "decode", Err: err}
	}

	info := Info{
		SourceRate:     buf.SampleRate,
		SourceChannels: buf.Channels,
		Format:         DetectFormat(data, contentType),
		Duration:       buf.Duration(),
	}

	// Downmix first so the resampler only touches one channel.
	buf = Downmix(buf)
	buf = Resample(buf, p.TargetRate)

	container, err := EncodeWAV(buf)
	if err != nil {
		return "", Info{}, &ConversionError{Stage: "encode", Err: err}
	}

	return EncodeBase64(container), info, nil
}
