package kernel

import (
	"errors"
	"fmt"

	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/audit"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/calibrate"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/gate"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/ledger"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/quorum"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/vector"
)

// #region errors
var (
	// ErrDimensionMismatch reports a proposal vector whose length differs
	// from the reference ideal. Fails fast, before quorum.
	ErrDimensionMismatch = errors.New("proposal dimension mismatch")

	// ErrIntegrity reports a broken hash chain. Always escalates to
	// lockdown.
	ErrIntegrity = errors.New("ledger integrity violation")
)

// RejectedError is returned when quorum is not reached. Recoverable for the
// caller, but the kernel has already entered lockdown by the time it is
// returned.
type RejectedError struct {
	Affirmative int
	Threshold   int
	FailedGates []string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("proposal rejected: %d/%d affirmative votes, failed gates %v",
		e.Affirmative, e.Threshold, e.FailedGates)
}

// #endregion errors

// #region config
// Config wires the full admission pipeline. All state the pipeline mutates
// is owned by the Kernel instance; there are no package-level singletons.
type Config struct {
	InitialIdeal  vector.Vector
	ImmuneIndices []int

	Nodes []quorum.Node
	// Threshold is the affirmative-vote requirement; 0 selects ceil(n*2/3).
	Threshold int

	Gate      gate.Config
	Calibrate calibrate.Config
	Audit     audit.Config

	// Dissent perturbs the K gate per node per round. Nil never dissents.
	Dissent gate.DissentPolicy

	// SnapshotPath receives the forensic JSON snapshot on lockdown.
	// Empty skips the file write.
	SnapshotPath string
}

// DefaultConfig returns the standard four-axis pipeline: respect axis
// immune, three-node set with majority 2, and the stock gate, calibration
// and audit parameters.
func DefaultConfig() Config {
	return Config{
		InitialIdeal:  vector.Vector{1.0, 1.0, 0.8, 0.7},
		ImmuneIndices: []int{vector.AxisRespect},
		Nodes:         quorum.DefaultNodes(),
		Gate:          gate.DefaultConfig(),
		Calibrate:     calibrate.DefaultConfig(),
		Audit:         audit.DefaultConfig(),
		SnapshotPath:  "red_code_log.json",
	}
}

// #endregion config

// #region results
// AdmissionResult reports one pipeline pass to the caller.
type AdmissionResult struct {
	ProposalID  string            `json:"proposal_id"`
	Accepted    bool              `json:"accepted"`
	Alignment   float64           `json:"alignment"`
	Threshold   float64           `json:"threshold"`
	Votes       quorum.VoteRecord `json:"votes,omitempty"`
	FailedGates []string          `json:"failed_gates,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	BlockRef    *ledger.BlockRef  `json:"block_ref,omitempty"`
}

// SystemState is the status snapshot surfaced by the CLI and the HTTP API.
type SystemState struct {
	Mode         string        `json:"mode"`
	Threshold    float64       `json:"threshold"`
	Ideal        vector.Vector `json:"ideal"`
	LedgerLength int64         `json:"ledger_length"`
	HistorySize  int           `json:"history_size"`
}

// #endregion results
