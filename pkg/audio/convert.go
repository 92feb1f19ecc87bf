package audio

import "math"

// Normalize scrubs non-finite values and rescales samples so that no
// magnitude exceeds 1.0. NaN and Inf samples become 0. When the peak
// magnitude lies above 1.0 every sample is divided by that peak; clips
// already within range are left untouched, so applying Normalize twice
// gives the same result as applying it once. The slice is modified in
// place and returned.
func Normalize(samples []float32) []float32 {
	var peak float32
	for i, s := range samples {
		f := float64(s)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			samples[i] = 0
			continue
		}
		if a := float32(math.Abs(f)); a > peak {
			peak = a
		}
	}
	if peak > 1.0 {
		for i := range samples {
			samples[i] /= peak
		}
	}
	return samples
}

// DownmixAverage folds interleaved multi-channel samples into mono by
// averaging each frame across its channels. Mono input is returned as is.
func DownmixAverage(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for f := range frames {
		var sum float32
		for ch := range channels {
			sum += interleaved[f*channels+ch]
		}
		out[f] = sum / float32(channels)
	}
	return out
}

// PCM16ToFloat32 converts 16-bit little-endian mono PCM into normalised
// float32 samples.
func PCM16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(s) / 32768.0
	}
	return out
}

// PCM16ToFloat32Mono converts interleaved 16-bit little-endian PCM into
// normalised mono float32 samples, averaging each frame across channels.
func PCM16ToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 1 {
		return PCM16ToFloat32(pcm)
	}
	frames := len(pcm) / 2 / channels
	out := make([]float32, frames)
	for f := range frames {
		var sum float32
		for ch := range channels {
			idx := (f*channels + ch) * 2
			s := int16(pcm[idx]) | int16(pcm[idx+1])<<8
			sum += float32(s) / 32768.0
		}
		out[f] = sum / float32(channels)
	}
	return out
}

// Float32ToPCM16 converts normalised float32 samples into 16-bit
// little-endian PCM, clamping anything outside [-1, 1].
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// Resample converts mono float32 samples from srcRate to dstRate using
// linear interpolation. If the rates match, or either rate is invalid, the
// input is returned unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	srcLen := len(samples)
	dstLen := int(int64(srcLen) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstLen {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < srcLen {
			s1 = samples[srcIdx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// RMS computes the root mean square amplitude of 16-bit little-endian PCM.
// Silence thresholds are expressed against this scale (0 to 32768).
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(n))
}
