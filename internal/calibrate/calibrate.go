package calibrate

import (
	"fmt"
	"log"

	"gonum.org/v1/gonum/stat"

	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/vector"
)

// #region config
// Config holds the threshold-adaptation parameters.
type Config struct {
	BaseThreshold     float64 // starting point before the dispersion penalty
	ConvergenceFactor float64 // weight of the dispersion penalty
	MinThreshold      float64
	MaxThreshold      float64
	InitialThreshold  float64 // acceptance threshold before first recalibration
	HistoryCap        int     // bounded admission history; oldest evicted
}

// DefaultConfig returns the standard calibration parameters.
func DefaultConfig() Config {
	return Config{
		BaseThreshold:     0.85,
		ConvergenceFactor: 1.5,
		MinThreshold:      0.60,
		MaxThreshold:      0.90,
		InitialThreshold:  0.70,
		HistoryCap:        256,
	}
}

// #endregion config

// #region calibrator
// Calibrator owns the reference ideal and the acceptance threshold, and
// recomputes both from the history of admitted vectors. It is not
// goroutine-safe; the kernel serializes access.
type Calibrator struct {
	config       Config
	initialIdeal vector.Vector
	immune       []int

	ideal     vector.Vector
	threshold float64
	stdDev    float64
	history   []vector.Vector
}

// New creates a calibrator anchored on the initial ideal. The immune
// indices are fixed forever at their initial values: recalibration never
// moves them. Errors if an immune index is out of range.
func New(initialIdeal vector.Vector, immune []int, config Config) (*Calibrator, error) {
	for _, i := range immune {
		if i < 0 || i >= len(initialIdeal) {
			return nil, fmt.Errorf("immune index %d out of range for dimension %d", i, len(initialIdeal))
		}
	}
	return &Calibrator{
		config:       config,
		initialIdeal: initialIdeal.Clone(),
		immune:       append([]int(nil), immune...),
		ideal:        initialIdeal.Clone(),
		threshold:    config.InitialThreshold,
	}, nil
}

// Ideal returns a copy of the current reference ideal.
func (c *Calibrator) Ideal() vector.Vector {
	return c.ideal.Clone()
}

// Threshold returns the current acceptance threshold.
func (c *Calibrator) Threshold() float64 {
	return c.threshold
}

// StdDev returns the dispersion measured by the last recalibration.
func (c *Calibrator) StdDev() float64 {
	return c.stdDev
}

// ImmuneIndices returns the immune axis indices.
func (c *Calibrator) ImmuneIndices() []int {
	return append([]int(nil), c.immune...)
}

// History returns the current admission history, oldest first.
func (c *Calibrator) History() []vector.Vector {
	out := make([]vector.Vector, len(c.history))
	for i, v := range c.history {
		out[i] = v.Clone()
	}
	return out
}

// #endregion calibrator

// #region observe
// Observe appends an admitted vector to the bounded history, evicting the
// oldest entry at capacity. Rejected proposals are never observed.
func (c *Calibrator) Observe(v vector.Vector) {
	c.history = append(c.history, v.Clone())
	if c.config.HistoryCap > 0 && len(c.history) > c.config.HistoryCap {
		c.history = c.history[1:]
	}
}

// #endregion observe

// #region recalibrate
// Recalibrate recomputes the ideal and the threshold from the admission
// history. The new ideal is the element-wise mean; immune axes are then
// pinned back to their initialization values. The threshold is the base
// minus the population standard deviation of all elements, scaled by the
// convergence factor and clamped to [min, max]: tight historical agreement
// raises the bar, wide disagreement relaxes it. With an empty history both
// values stay unchanged.
func (c *Calibrator) Recalibrate() (vector.Vector, float64) {
	if len(c.history) == 0 {
		return c.Ideal(), c.threshold
	}

	dim := len(c.initialIdeal)
	newIdeal := make(vector.Vector, dim)
	axis := make([]float64, len(c.history))
	for d := 0; d < dim; d++ {
		for i, v := range c.history {
			if d < len(v) {
				axis[i] = v[d]
			} else {
				axis[i] = 0
			}
		}
		newIdeal[d] = stat.Mean(axis, nil)
	}

	for _, i := range c.immune {
		newIdeal[i] = c.initialIdeal[i]
	}

	// Single scalar dispersion across all elements of all vectors, not
	// per-axis.
	flat := make([]float64, 0, len(c.history)*dim)
	for _, v := range c.history {
		flat = append(flat, v...)
	}
	c.stdDev = stat.PopStdDev(flat, nil)

	threshold := c.config.BaseThreshold - c.stdDev*c.config.ConvergenceFactor
	threshold = clamp(threshold, c.config.MinThreshold, c.config.MaxThreshold)

	c.ideal = newIdeal
	c.threshold = threshold

	log.Printf("[CALIBRATE] history=%d stddev=%.4f threshold=%.4f", len(c.history), c.stdDev, threshold)
	return c.Ideal(), threshold
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// #endregion recalibrate
