package gate

import (
	"log"

	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/vector"
)

// #region validator
// Validator evaluates the five-gate rule for one commitment vector against
// one node's view.
type Validator struct {
	config  Config
	dissent DissentPolicy
}

// NewValidator creates a validator with the given configuration and no
// dissent policy.
func NewValidator(config Config) *Validator {
	return &Validator{config: config}
}

// WithDissent returns a validator sharing config but applying the given
// dissent policy. Tests supply deterministic policies here.
func (v *Validator) WithDissent(policy DissentPolicy) *Validator {
	return &Validator{config: v.config, dissent: policy}
}

// #endregion validator

// #region validate
// Validate runs the G-O-K-D-E gates for a single node. It never returns an
// error: a vector too short for a bound axis reads as 0.0 and fails the
// corresponding floor.
func (v *Validator) Validate(vec vector.Vector, alignmentScore, qualityScore float64, nodeID string) Decision {
	cfg := v.config

	good := alignmentScore > cfg.AlignmentMin && qualityScore > cfg.QualityMin
	obligatory := axisValue(vec, cfg.IntegrityAxis) > cfg.IntegrityFloor
	known := axisValue(vec, cfg.TransparencyAxis) > cfg.TransparencyFloor

	if known && v.dissent != nil && v.dissent(nodeID) {
		known = false
	}

	definitive := good && obligatory && known
	evident := definitive && axisValue(vec, cfg.EvidentAxis) > cfg.EvidentFloor

	d := Decision{
		NodeID:     nodeID,
		Good:       good,
		Obligatory: obligatory,
		Known:      known,
		Definitive: definitive,
		Evident:    evident,
	}
	d.Passed = good && obligatory && known && definitive && evident

	if !good {
		d.FailedGates = append(d.FailedGates, GateGood)
	}
	if !obligatory {
		d.FailedGates = append(d.FailedGates, GateObligatory)
	}
	if !known {
		d.FailedGates = append(d.FailedGates, GateKnown)
	}
	if !definitive {
		d.FailedGates = append(d.FailedGates, GateDefinitive)
	}
	if !evident {
		d.FailedGates = append(d.FailedGates, GateEvident)
	}

	if !good {
		log.Printf("[GATE] node %s: G fail (align=%.2f quality=%.2f)", nodeID, alignmentScore, qualityScore)
	}
	if definitive && !evident {
		log.Printf("[GATE] node %s: E fail (axis %d at %.2f, floor %.2f)", nodeID, cfg.EvidentAxis, axisValue(vec, cfg.EvidentAxis), cfg.EvidentFloor)
	}

	return d
}

// #endregion validate

// #region helpers
func axisValue(vec vector.Vector, axis int) float64 {
	if axis < 0 || axis >= len(vec) {
		return 0.0
	}
	return vec[axis]
}

// #endregion helpers
