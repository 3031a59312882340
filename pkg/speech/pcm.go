package speech

import (
	"encoding/binary"
	"math"
)

// DecodePCM16 converts little-endian 16-bit PCM bytes to samples. A trailing
// odd byte is ignored.
func DecodePCM16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}

// toFloat converts samples to [-1, 1] and resamples to rate.
func toFloat(samples []int16, sampleRate, rate int) []float64 {
	floats := make([]float64, len(samples))
	for i, s := range samples {
		floats[i] = float64(s) / 32768.0
	}
	if sampleRate > 0 && sampleRate != rate {
		floats = resampleLinear(floats, sampleRate, rate)
	}
	return floats
}

func resampleLinear(samples []float64, srIn, srOut int) []float64 {
	if srIn == srOut || len(samples) == 0 {
		return samples
	}
	nOut := int(math.Round(float64(len(samples)) * float64(srOut) / float64(srIn)))
	if nOut <= 1 {
		return nil
	}
	out := make([]float64, nOut)
	for i := range out {
		t := float64(i) / float64(nOut-1) * float64(len(samples)-1)
		idx := int(t)
		frac := t - float64(idx)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
		} else {
			out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
		}
	}
	return out
}

func rmsDBFS(samples []float64) float64 {
	if len(samples) == 0 {
		return -100.0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	rms := math.Sqrt(sum/float64(len(samples)) + 1e-12)
	return 20.0 * math.Log10(rms+1e-12)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
