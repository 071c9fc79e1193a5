package audio

import "time"

// Buffer holds interleaved PCM samples in the range [-1, 1] together with
// the format needed to interpret them. Ownership transfers stage to stage;
// stages never alias a buffer they have handed off.
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// FrameCount returns the number of per-channel sample frames.
func (b *Buffer) FrameCount() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration reports the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.FrameCount()) / float64(b.SampleRate) * float64(time.Second))
}

// Downmix reduces a multi-channel buffer to mono by per-frame unweighted
// averaging. Mono input is returned unchanged (same buffer).
func Downmix(buf *Buffer) *Buffer {
	if buf.Channels <= 1 {
		return buf
	}
	frames := buf.FrameCount()
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < buf.Channels; ch++ {
			sum += buf.Samples[i*buf.Channels+ch]
		}
		mono[i] = sum / float32(buf.Channels)
	}
	return &Buffer{Samples: mono, SampleRate: buf.SampleRate, Channels: 1}
}
