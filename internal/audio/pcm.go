package audio

// pcm16FromFloat32 converts normalized float32 samples in [-1, 1] to
// signed 16-bit PCM. Out-of-range input is clamped to the representable
// range rather than wrapping.
func pcm16FromFloat32(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, f := range in {
		v := f * 32767
		switch {
		case v > 32767:
			out[i] = 32767
		case v < -32768:
			out[i] = -32768
		default:
			out[i] = int16(v)
		}
	}
	return out
}
