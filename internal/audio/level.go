package audio

import "math"

// RMS returns the root mean square amplitude of the samples
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// RMSWithGain is RMS of the samples after amplification, matching what is
// actually transmitted (clamped to [-1, 1]).
func RMSWithGain(samples []float32, gain float32) float64 {
	if gain == 0 || gain == 1 {
		return RMS(samples)
	}
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s * gain)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Level scales an RMS value into the UI range [0, ceiling]
func Level(rms, scale, ceiling float64) float64 {
	v := rms * scale
	if v > ceiling {
		return ceiling
	}
	if v < 0 {
		return 0
	}
	return v
}
