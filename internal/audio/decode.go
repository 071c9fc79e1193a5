package audio

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// Decode failure reasons, kept distinct for diagnostics.
const (
	ReasonUnknownFormat = "unknown_format"
	ReasonCorruptStream = "corrupt_stream"
	ReasonNoFrames      = "no_frames"
	ReasonBadMetadata   = "bad_metadata"
)

// DecodeError reports why a buffer could not be turned into PCM.
type DecodeError struct {
	Reason string
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s audio (%s): %v", e.Format, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %s audio: %s", e.Format, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Format names detected by sniffing.
const (
	FormatWAV       = "wav"
	FormatMP3       = "mp3"
	FormatOggVorbis = "ogg-vorbis"
)

var (
	riffMagic = []byte("RIFF")
	waveMagic = []byte("WAVE")
	oggMagic  = []byte("OggS")
	id3Magic  = []byte("ID3")
)

// DetectFormat sniffs the container from the buffer's leading bytes. The
// declared content type is only consulted as a hint for the MPEG frame-sync
// heuristic, which is too weak to trust on its own.
func DetectFormat(data []byte, contentType string) string {
	if len(data) >= 12 && bytes.Equal(data[:4], riffMagic) && bytes.Equal(data[8:12], waveMagic) {
		return FormatWAV
	}
	if len(data) >= 4 && bytes.Equal(data[:4], oggMagic) {
		return FormatOggVorbis
	}
	if len(data) >= 3 && bytes.Equal(data[:3], id3Magic) {
		return FormatMP3
	}
	if len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		return FormatMP3
	}
	if strings.HasPrefix(contentType, "audio/mpeg") || strings.HasPrefix(contentType, "audio/mp3") {
		return FormatMP3
	}
	return ""
}

// Decode turns a compressed or raw audio byte buffer into PCM samples.
// It does not retain a reference to data after returning.
func Decode(data []byte, contentType string) (*Buffer, error) {
	format := DetectFormat(data, contentType)
	switch format {
	case FormatWAV:
		return decodeWAV(data)
	case FormatMP3:
		return decodeMP3(data)
	case FormatOggVorbis:
		return decodeOggVorbis(data)
	default:
		return nil, &DecodeError{Reason: ReasonUnknownFormat, Format: "unknown"}
	}
}

func decodeWAV(data []byte) (*Buffer, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, &DecodeError{Reason: ReasonCorruptStream, Format: FormatWAV}
	}

	pcm, err := decoder.FullPCMBuffer()
	if err != nil && err != io.EOF {
		return nil, &DecodeError{Reason: ReasonCorruptStream, Format: FormatWAV, Err: err}
	}
	if pcm == nil || len(pcm.Data) == 0 {
		return nil, &DecodeError{Reason: ReasonNoFrames, Format: FormatWAV}
	}
	if pcm.Format == nil || pcm.Format.SampleRate <= 0 || pcm.Format.NumChannels <= 0 {
		return nil, &DecodeError{Reason: ReasonBadMetadata, Format: FormatWAV}
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(1.0) / float32(int64(1)<<(bitDepth-1))

	samples := make([]float32, len(pcm.Data))
	for i, s := range pcm.Data {
		samples[i] = float32(s) * scale
	}

	return &Buffer{
		Samples:    samples,
		SampleRate: pcm.Format.SampleRate,
		Channels:   pcm.Format.NumChannels,
	}, nil
}

func decodeMP3(data []byte) (*Buffer, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Reason: ReasonCorruptStream, Format: FormatMP3, Err: err}
	}
	if decoder.SampleRate() <= 0 {
		return nil, &DecodeError{Reason: ReasonBadMetadata, Format: FormatMP3}
	}

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, &DecodeError{Reason: ReasonCorruptStream, Format: FormatMP3, Err: err}
	}
	if len(raw) == 0 {
		return nil, &DecodeError{Reason: ReasonNoFrames, Format: FormatMP3}
	}

	// go-mp3 always emits 16-bit little-endian stereo.
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		s := int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
		samples[i] = float32(s) / 32768.0
	}

	return &Buffer{
		Samples:    samples,
		SampleRate: decoder.SampleRate(),
		Channels:   2,
	}, nil
}

func decodeOggVorbis(data []byte) (*Buffer, error) {
	reader, err := oggvorbis.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Reason: ReasonCorruptStream, Format: FormatOggVorbis, Err: err}
	}
	if reader.SampleRate() <= 0 || reader.Channels() <= 0 {
		return nil, &DecodeError{Reason: ReasonBadMetadata, Format: FormatOggVorbis}
	}

	var samples []float32
	chunk := make([]float32, 16384)
	for {
		n, err := reader.Read(chunk)
		if n > 0 {
			samples = append(samples, chunk[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &DecodeError{Reason: ReasonCorruptStream, Format: FormatOggVorbis, Err: err}
		}
	}
	if len(samples) == 0 {
		return nil, &DecodeError{Reason: ReasonNoFrames, Format: FormatOggVorbis}
	}

	return &Buffer{
		Samples:    samples,
		SampleRate: reader.SampleRate(),
		Channels:   reader.Channels(),
	}, nil
}
