package tracking

import "time"

// TuningParams holds the real-time adjustable parameters.
// These can be modified via the tuning API without restarting.
type TuningParams struct {
	// Smoothing
	EstimatorAlpha float64 `json:"estimator_alpha"` // Landmark EMA (0.15 = smooth, 0.5 = responsive)
	FusionAlpha    float64 `json:"fusion_alpha"`    // Fusion EMA for unresolved channels

	// Absence
	NeutralAfterMisses int `json:"neutral_after_misses"`

	// Detection rate
	DetectionHz float64 `json:"detection_hz"`
}

// GetTuningParams returns the current tuning parameters.
func (t *Tracker) GetTuningParams() TuningParams {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return TuningParams{
		EstimatorAlpha:     t.engine.Estimator().Alpha(),
		FusionAlpha:        t.engine.Config().Alpha,
		NeutralAfterMisses: t.config.NeutralAfterMisses,
		DetectionHz:        t.config.DetectionHz(),
	}
}

// SetTuningParams updates tuning parameters at runtime.
// Only non-zero values are applied.
func (t *Tracker) SetTuningParams(params TuningParams) {
	if params.EstimatorAlpha > 0 {
		t.engine.Estimator().SetAlpha(params.EstimatorAlpha)
	}
	if params.FusionAlpha > 0 {
		t.engine.SetAlpha(params.FusionAlpha)
	}

	t.mu.Lock()
	if params.NeutralAfterMisses > 0 {
		t.config.NeutralAfterMisses = params.NeutralAfterMisses
	}
	t.mu.Unlock()

	// Detection rate (handled outside lock via channel)
	if params.DetectionHz > 0 {
		t.setDetectionHz(params.DetectionHz)
	}
}

// setDetectionHz clamps hz to the configured limits and retimes the loop.
func (t *Tracker) setDetectionHz(hz float64) {
	t.mu.Lock()
	hz = min(max(hz, t.config.MinDetectionHz), t.config.MaxDetectionHz)
	interval := time.Duration(float64(time.Second) / hz)
	t.config.DetectionInterval = interval
	t.mu.Unlock()

	// Non-blocking: a pending update is replaced by the next tick anyway
	select {
	case t.detectTickerReset <- interval:
	default:
	}
}
