package audio

import (
	"errors"
	"math"
	"testing"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// encodeTestWAV builds a 16-bit PCM WAV fixture with arbitrary channel count.
func encodeTestWAV(t *testing.T, samples []float32, rate, channels int) []byte {
	t.Helper()
	out := &seekBuffer{}
	enc := wav.NewEncoder(out, rate, 16, channels, 1)
	intBuf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: channels, SampleRate: rate},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		intBuf.Data[i] = int(s * 32767)
	}
	if err := enc.Write(intBuf); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close fixture: %v", err)
	}
	return out.data
}

func TestDetectFormat(t *testing.T) {
	wavData := encodeTestWAV(t, []float32{0.1}, 16000, 1)
	cases := []struct {
		name        string
		data        []byte
		contentType string
		want        string
	}{
		{"wav magic", wavData, "application/octet-stream", FormatWAV},
		{"ogg magic", []byte("OggS\x00\x02 rest of page"), "audio/ogg", FormatOggVorbis},
		{"id3 tag", []byte("ID3\x04\x00\x00\x00\x00\x00\x00"), "", FormatMP3},
		{"mpeg frame sync", []byte{0xFF, 0xFB, 0x90, 0x00}, "", FormatMP3},
		{"content type hint", []byte{0x00, 0x01, 0x02, 0x03}, "audio/mpeg", FormatMP3},
		{"unknown", []byte{0x00, 0x01, 0x02, 0x03}, "audio/wav", ""},
	}
	for _, tc := range cases {
		if got := DetectFormat(tc.data, tc.contentType); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestDecodeWAVRoundtrip(t *testing.T) {
	in := []float32{0, 0.25, -0.5, 0.75}
	data := encodeTestWAV(t, in, 22050, 1)

	buf, err := Decode(data, "audio/wav")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if buf.SampleRate != 22050 || buf.Channels != 1 {
		t.Fatalf("unexpected format: rate=%d channels=%d", buf.SampleRate, buf.Channels)
	}
	if len(buf.Samples) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(buf.Samples))
	}
	for i := range in {
		if diff := math.Abs(float64(buf.Samples[i] - in[i])); diff > 1e-3 {
			t.Fatalf("sample %d: got %f, want %f", i, buf.Samples[i], in[i])
		}
	}
}

func TestDecodeStereoWAV(t *testing.T) {
	data := encodeTestWAV(t, []float32{0.2, 0.4, -0.2, -0.4}, 44100, 2)
	buf, err := Decode(data, "audio/wav")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if buf.Channels != 2 {
		t.Fatalf("expected 2 channels, got %d", buf.Channels)
	}
	if len(buf.Samples)%buf.Channels != 0 {
		t.Fatalf("interleaved length %d not divisible by %d channels", len(buf.Samples), buf.Channels)
	}
}

func TestDecodeUnknownFormat(t *testing.T) {
	_, err := Decode([]byte("definitely not audio"), "text/plain")
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if decodeErr.Reason != ReasonUnknownFormat {
		t.Fatalf("expected reason %q, got %q", ReasonUnknownFormat, decodeErr.Reason)
	}
}

func TestDecodeTruncatedWAV(t *testing.T) {
	data := encodeTestWAV(t, []float32{0.1, 0.2, 0.3}, 16000, 1)
	_, err := Decode(data[:16], "audio/wav")
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
}

func TestDecodeDoesNotAliasInput(t *testing.T) {
	data := encodeTestWAV(t, []float32{0.5, -0.5}, 16000, 1)
	buf, err := Decode(data, "audio/wav")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	before := buf.Samples[0]
	for i := range data {
		data[i] = 0
	}
	if buf.Samples[0] != before {
		t.Fatal("decoded samples must survive zeroing of the input buffer")
	}
}
