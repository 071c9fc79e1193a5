package audio

import "math"

// Resample converts a mono buffer to the target rate using linear
// interpolation. Matching rates return the input buffer untouched.
// There is no anti-aliasing filter; the output is adequate for speech
// recognition, not hi-fi playback.
func Resample(buf *Buffer, targetRate int) *Buffer {
	if buf.SampleRate == targetRate {
		return buf
	}

	ratio := float64(buf.SampleRate) / float64(targetRate)
	newLength := int(math.Round(float64(len(buf.Samples)) / ratio))
	out := make([]float32, newLength)

	for i := 0; i < newLength; i++ {
		src := float64(i) * ratio
		i0 := int(math.Floor(src))
		i1 := i0 + 1
		if i1 > len(buf.Samples)-1 {
			i1 = len(buf.Samples) - 1
		}
		t := float32(src - float64(i0))
		out[i] = buf.Samples[i0]*(1-t) + buf.Samples[i1]*t
	}

	return &Buffer{Samples: out, SampleRate: targetRate, Channels: 1}
}
