package audio

import (
	"encoding/base64"
	"fmt"
	"io"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeError reports a serialization failure. Well-formed buffers from the
// preceding stages never trigger it.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string { return fmt.Sprintf("encode wav: %v", e.Err) }
func (e *EncodeError) Unwrap() error { return e.Err }

// EncodeWAV serializes a mono buffer as a canonical 16-bit PCM WAV file.
// Identical input always yields byte-identical output.
func EncodeWAV(buf *Buffer) ([]byte, error) {
	out := &seekBuffer{}
	enc := wav.NewEncoder(out, buf.SampleRate, 16, 1, 1)

	intBuf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: buf.SampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(buf.Samples)),
	}
	for i, s := range buf.Samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		intBuf.Data[i] = int(s * 32767)
	}

	if err := enc.Write(intBuf); err != nil {
		return nil, &EncodeError{Err: err}
	}
	if err := enc.Close(); err != nil {
		return nil, &EncodeError{Err: err}
	}
	return out.data, nil
}

// EncodeBase64 wraps a serialized container in a text-safe representation
// suitable for embedding in a JSON payload.
func EncodeBase64(container []byte) string {
	return base64.StdEncoding.EncodeToString(container)
}

// seekBuffer is an in-memory io.WriteSeeker. The wav encoder needs to seek
// back to patch chunk sizes into the header on Close.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.data) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(b.pos) + offset
	case io.SeekEnd:
		pos = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("negative seek position %d", pos)
	}
	b.pos = int(pos)
	return pos, nil
}
