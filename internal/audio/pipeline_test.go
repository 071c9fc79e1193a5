package audio

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

func TestEncodeWAVDeterministic(t *testing.T) {
	buf := &Buffer{Samples: []float32{0, 0.5, -0.5, 1, -1}, SampleRate: 16000, Channels: 1}
	first, err := EncodeWAV(buf)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	second, err := EncodeWAV(buf)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("expected byte-identical output for identical input")
	}
}

func TestEncodeWAVClampsOutOfRange(t *testing.T) {
	buf := &Buffer{Samples: []float32{2.0, -3.0}, SampleRate: 16000, Channels: 1}
	data, err := EncodeWAV(buf)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(data, "audio/wav")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Samples[0] < 0.99 || decoded.Samples[1] > -0.99 {
		t.Fatalf("expected clamped full-scale samples, got %v", decoded.Samples)
	}
}

func TestPipelineConvert(t *testing.T) {
	// Stereo 44.1 kHz source exercises both downmix and resample.
	frames := 4410
	samples := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		samples[i*2] = 0.5
		samples[i*2+1] = -0.5
	}
	src := encodeTestWAV(t, samples, 44100, 2)

	p := NewPipeline(16000)
	encoded, info, err := p.Convert(src, "audio/wav")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if info.SourceRate != 44100 || info.SourceChannels != 2 || info.Format != FormatWAV {
		t.Fatalf("unexpected info: %+v", info)
	}

	container, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("output is not valid base64: %v", err)
	}
	out, err := Decode(container, "audio/wav")
	if err != nil {
		t.Fatalf("decode pipeline output: %v", err)
	}
	if out.SampleRate != 16000 || out.Channels != 1 {
		t.Fatalf("expected mono 16kHz output, got rate=%d channels=%d", out.SampleRate, out.Channels)
	}
	// 0.1s of audio stays 0.1s after conversion.
	if got, want := len(out.Samples), 1600; got != want {
		t.Fatalf("expected %d output samples, got %d", want, got)
	}
}

func TestPipelineDeterminism(t *testing.T) {
	src := encodeTestWAV(t, []float32{0.1, 0.2, 0.3, 0.4}, 44100, 1)
	p := NewPipeline(16000)
	first, _, err := p.Convert(src, "audio/wav")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	second, _, err := p.Convert(src, "audio/wav")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if first != second {
		t.Fatal("expected identical base64 output for identical input")
	}
}

func TestPipelinePassthroughNoResample(t *testing.T) {
	src := encodeTestWAV(t, []float32{0.1, 0.2, 0.3}, 16000, 1)
	p := NewPipeline(16000)
	encoded, _, err := p.Convert(src, "audio/wav")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	container, _ := base64.StdEncoding.DecodeString(encoded)
	out, err := Decode(container, "audio/wav")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(out.Samples))
	}
}

func TestPipelineDecodeFailure(t *testing.T) {
	p := NewPipeline(16000)
	_, _, err := p.Convert([]byte("garbage"), "text/plain")
	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("expected ConversionError, got %v", err)
	}
	if convErr.Stage != "decode" {
		t.Fatalf("expected decode stage, got %q", convErr.Stage)
	}
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatal("expected wrapped DecodeError to be reachable")
	}
}
