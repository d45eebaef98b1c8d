package lockdown

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/vector"
)

// ErrLockdown is returned for any write attempted after the controller has
// locked. Recovery requires a fresh process; there is no transition back.
var ErrLockdown = errors.New("system is in lockdown, ledger writes refused")

// #region mode
// Mode is the controller state. The only transition is NORMAL to LOCKDOWN.
type Mode int32

const (
	ModeNormal Mode = iota
	ModeLockdown
)

func (m Mode) String() string {
	if m == ModeLockdown {
		return "LOCKDOWN"
	}
	return "NORMAL"
}

// #endregion mode

// #region snapshot
// Snapshot is the forensic state captured at the moment of lockdown.
type Snapshot struct {
	Timestamp    time.Time       `json:"timestamp"`
	Reason       string          `json:"reason"`
	LedgerLength int64           `json:"ledger_length"`
	HeadDigest   string          `json:"head_digest"`
	Ideal        vector.Vector   `json:"ideal"`
	Threshold    float64         `json:"threshold"`
	History      []vector.Vector `json:"history,omitempty"`
}

// #endregion snapshot

// #region controller
// Controller is the one-way NORMAL to LOCKDOWN state machine. It refuses
// writes after the transition but never terminates the host process; the
// top-level caller decides whether to exit.
type Controller struct {
	mu       sync.Mutex
	locked   bool
	reason   string
	snapPath string
}

// NewController creates a controller in NORMAL mode. snapPath is where the
// forensic snapshot is written on transition; empty disables the file.
func NewController(snapPath string) *Controller {
	return &Controller{snapPath: snapPath}
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked {
		return ModeLockdown
	}
	return ModeNormal
}

// Locked reports whether the controller has entered lockdown.
func (c *Controller) Locked() bool {
	return c.Mode() == ModeLockdown
}

// Reason returns the triggering reason, empty while NORMAL.
func (c *Controller) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// #endregion controller

// #region trigger
// Trigger transitions to LOCKDOWN, capturing the snapshot for forensic
// logging. The first trigger wins; later calls are ignored. The snapshot
// write is best-effort: a failed write is logged but never blocks the
// transition.
func (c *Controller) Trigger(reason string, snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked {
		return
	}
	c.locked = true
	c.reason = reason
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	snap.Reason = reason

	log.Printf("[LOCKDOWN] triggered: %s", reason)
	log.Printf("[LOCKDOWN] ledger writes refused from this point on")

	if c.snapPath == "" {
		return
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		log.Printf("[LOCKDOWN] snapshot marshal failed: %v", err)
		return
	}
	if err := os.WriteFile(c.snapPath, data, 0o600); err != nil {
		log.Printf("[LOCKDOWN] snapshot write failed: %v", err)
		return
	}
	log.Printf("[LOCKDOWN] forensic snapshot written to %s", c.snapPath)
}

// Guard returns ErrLockdown wrapped with the triggering reason when locked,
// nil otherwise. Callers check it before starting any admission.
func (c *Controller) Guard() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked {
		return fmt.Errorf("%w (reason: %s)", ErrLockdown, c.reason)
	}
	return nil
}

// #endregion trigger
