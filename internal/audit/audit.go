package audit

import (
	"log"

	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/vector"
)

// #region config
// Config holds the drift-audit cadence and floor.
type Config struct {
	Rhythm     int     // audit every Nth admission cycle
	DriftFloor float64 // mean non-immune alignment below this is unhealthy
	MinHistory int     // fewer samples than this is a no-op
}

// DefaultConfig returns the standard audit parameters.
func DefaultConfig() Config {
	return Config{
		Rhythm:     3,
		DriftFloor: 0.90,
		MinHistory: 5,
	}
}

// #endregion config

// #region result
// Result reports one drift audit.
type Result struct {
	Score   float64 `json:"score"`
	Healthy bool    `json:"healthy"`
	Sampled int     `json:"sampled"`
	// CorrectionNeeded is set when the score fell below the floor; the
	// kernel responds by synthesizing one corrective proposal.
	CorrectionNeeded bool   `json:"correction_needed"`
	Note             string `json:"note,omitempty"`
}

// #endregion result

// #region auditor
// Auditor measures system-wide drift on a fixed cadence of admission
// cycles. Not goroutine-safe; the kernel serializes access.
type Auditor struct {
	config Config
	cycles int
}

// NewAuditor creates an auditor with the given cadence and floor.
func NewAuditor(config Config) *Auditor {
	return &Auditor{config: config}
}

// Tick records one admission cycle and reports whether an audit is due.
// The cycle counter resets when it fires.
func (a *Auditor) Tick() bool {
	a.cycles++
	if a.cycles >= a.config.Rhythm {
		a.cycles = 0
		return true
	}
	return false
}

// #endregion auditor

// #region audit
// Audit computes the mean alignment between each historical vector and the
// ideal, restricted to non-immune dimensions: both sides are projected by
// deleting the immune indices before scoring, so pinned axes can neither
// mask nor cause drift. Below MinHistory samples the audit is a stable
// no-op.
func (a *Auditor) Audit(history []vector.Vector, ideal vector.Vector, immune []int) Result {
	if len(history) < a.config.MinHistory {
		return Result{
			Score:   1.0,
			Healthy: true,
			Sampled: len(history),
			Note:    "stable (insufficient history)",
		}
	}

	projectedIdeal := vector.DropIndices(ideal, immune)
	var total float64
	for _, v := range history {
		total += vector.Cosine(vector.DropIndices(v, immune), projectedIdeal)
	}
	score := total / float64(len(history))

	healthy := score >= a.config.DriftFloor
	res := Result{
		Score:            score,
		Healthy:          healthy,
		Sampled:          len(history),
		CorrectionNeeded: !healthy,
	}
	if !healthy {
		res.Note = "drift above tolerance, re-anchoring required"
	}

	log.Printf("[AUDIT] drift score %.4f over %d vectors (floor %.2f, healthy=%v)",
		score, len(history), a.config.DriftFloor, healthy)
	return res
}

// #endregion audit
