package speech

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// AnalyzerConfig sizes the playback spectrum.
type AnalyzerConfig struct {
	SampleRate int     // Analysis rate; input is resampled to it
	WindowSize int     // FFT length (power of two keeps gonum fast)
	HopSize    int     // Samples between spectrum updates
	Bins       int     // Output bands, linearly spaced from 0 to MaxHz
	MaxHz      float64 // Upper edge of the last band
	FloorDB    float64 // Band level that maps to 0; 0 dBFS maps to 1
}

// DefaultAnalyzerConfig returns 32 bands over 0-4 kHz at 16 kHz, updated every 10ms.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		SampleRate: 16000,
		WindowSize: 512,
		HopSize:    160,
		Bins:       32,
		MaxHz:      4000,
		FloorDB:    -60,
	}
}

// Analyzer turns playback audio into a fixed-length spectrum normalized to
// [0,1]. The render loop reads it as the audio energy sample.
type Analyzer struct {
	mu     sync.Mutex
	cfg    AnalyzerConfig
	fft    *fourier.FFT
	window []float64
	gain   float64 // Converts |X_k| to sine amplitude

	buf      []float64 // Ring of the last WindowSize samples
	pos      int       // Next write index; oldest sample once filled
	filled   int
	pending  int // Samples since the last update
	frame    []float64
	coeff    []complex128
	spectrum []float64
}

// NewAnalyzer creates an analyzer with a Hann window.
func NewAnalyzer(cfg AnalyzerConfig) *Analyzer {
	d := DefaultAnalyzerConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = d.SampleRate
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = d.WindowSize
	}
	if cfg.HopSize <= 0 {
		cfg.HopSize = d.HopSize
	}
	if cfg.Bins <= 0 {
		cfg.Bins = d.Bins
	}
	if cfg.MaxHz <= 0 || cfg.MaxHz > float64(cfg.SampleRate)/2 {
		cfg.MaxHz = float64(cfg.SampleRate) / 2
	}
	if cfg.FloorDB >= 0 {
		cfg.FloorDB = d.FloorDB
	}

	n := cfg.WindowSize
	window := make([]float64, n)
	var sum float64
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		sum += window[i]
	}

	return &Analyzer{
		cfg:      cfg,
		fft:      fourier.NewFFT(n),
		window:   window,
		gain:     2 / sum,
		buf:      make([]float64, n),
		frame:    make([]float64, n),
		coeff:    make([]complex128, n/2+1),
		spectrum: make([]float64, cfg.Bins),
	}
}

// Feed adds int16 PCM samples at sampleRate.
func (a *Analyzer) Feed(samples []int16, sampleRate int) {
	if len(samples) == 0 {
		return
	}
	a.FeedFloat(toFloat(samples, sampleRate, a.cfg.SampleRate))
}

// FeedFloat adds samples in [-1, 1] already at the analysis rate.
func (a *Analyzer) FeedFloat(samples []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.cfg.WindowSize
	for _, s := range samples {
		a.buf[a.pos] = s
		a.pos = (a.pos + 1) % n
		a.filled = min(a.filled+1, n)
		a.pending++
		if a.pending >= a.cfg.HopSize && a.filled == n {
			a.update()
			a.pending = 0
		}
	}
}

// update recomputes the band levels from the current window.
func (a *Analyzer) update() {
	n := len(a.buf)
	for i := range a.frame {
		a.frame[i] = a.buf[(a.pos+i)%n] * a.window[i]
	}
	a.coeff = a.fft.Coefficients(a.coeff, a.frame)

	binHz := float64(a.cfg.SampleRate) / float64(a.cfg.WindowSize)
	bandHz := a.cfg.MaxHz / float64(a.cfg.Bins)

	for b := range a.spectrum {
		lo := int(math.Ceil(float64(b) * bandHz / binHz))
		hi := int(math.Ceil(float64(b+1) * bandHz / binHz))
		lo = max(lo, 1) // skip DC
		hi = min(hi, len(a.coeff))

		var peak float64
		for k := lo; k < hi; k++ {
			if m := cmplxAbs(a.coeff[k]) * a.gain; m > peak {
				peak = m
			}
		}
		a.spectrum[b] = a.normalize(peak)
	}
}

// normalize maps an amplitude onto [0,1] between FloorDB and 0 dBFS.
func (a *Analyzer) normalize(amp float64) float64 {
	if amp <= 0 {
		return 0
	}
	db := 20 * math.Log10(amp)
	return clamp((db-a.cfg.FloorDB)/-a.cfg.FloorDB, 0, 1)
}

// Energy returns a copy of the latest spectrum.
func (a *Analyzer) Energy() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]float64, len(a.spectrum))
	copy(out, a.spectrum)
	return out
}

// Level returns the mean of the latest spectrum.
func (a *Analyzer) Level() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var sum float64
	for _, v := range a.spectrum {
		sum += v
	}
	return sum / float64(len(a.spectrum))
}

// Reset clears buffered audio and the spectrum.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pos, a.filled, a.pending = 0, 0, 0
	for i := range a.spectrum {
		a.spectrum[i] = 0
	}
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}
