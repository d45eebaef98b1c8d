package gate

// #region gate-id
// GateID enumerates the five ordered admission gates.
type GateID string

const (
	GateGood       GateID = "G" // overall alignment and quality
	GateObligatory GateID = "O" // integrity axis floor
	GateKnown      GateID = "K" // transparency axis floor (dissent-perturbable)
	GateDefinitive GateID = "D" // G and O and K
	GateEvident    GateID = "E" // D and a designated protected axis floor
)

// #endregion gate-id

// #region config
// Config holds the per-gate floors and axis bindings. Two bindings are in
// use: the small-set rule reads E from the respect axis at 0.90, the scaled
// Gokden rule reads E from the stability axis at 0.80.
type Config struct {
	AlignmentMin      float64 // G: minimum alignment score
	QualityMin        float64 // G: minimum proposal quality score
	IntegrityFloor    float64 // O
	TransparencyFloor float64 // K
	EvidentFloor      float64 // E

	IntegrityAxis    int
	TransparencyAxis int
	EvidentAxis      int
}

// DefaultConfig returns the small-set floors: E bound to the respect axis,
// strictly above the governance floors, shielding the immune dimension from
// admission with a degraded value.
func DefaultConfig() Config {
	return Config{
		AlignmentMin:      0.90,
		QualityMin:        0.88,
		IntegrityFloor:    0.85,
		TransparencyFloor: 0.85,
		EvidentFloor:      0.90,
		IntegrityAxis:     1,
		TransparencyAxis:  0,
		EvidentAxis:       3,
	}
}

// GokdenConfig returns the scaled-validator floors: E bound to the
// stability axis at 0.80.
func GokdenConfig() Config {
	cfg := DefaultConfig()
	cfg.EvidentAxis = 2
	cfg.EvidentFloor = 0.80
	return cfg
}

// #endregion config

// #region dissent
// DissentPolicy decides, per node per round, whether the K gate is perturbed
// to simulate an unreliable participant. Returning true flips a passing K to
// a failure for that node only. A nil policy never dissents.
type DissentPolicy func(nodeID string) bool

// #endregion dissent

// #region decision
// Decision is the outcome of one node's five-gate evaluation.
type Decision struct {
	NodeID string
	Passed bool

	Good       bool
	Obligatory bool
	Known      bool
	Definitive bool
	Evident    bool

	// FailedGates lists the gates that failed, in gate order. Empty when
	// Passed.
	FailedGates []GateID
}

// #endregion decision
