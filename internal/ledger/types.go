package ledger

import (
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/vector"
)

// #region block
// Block is one record of the append-only hash chain. Blocks are created
// once, on admission, and never mutated or removed.
type Block struct {
	Index       int64
	Timestamp   string // RFC3339Nano, hashed verbatim
	VectorID    string
	Description string
	Vector      vector.Vector
	PrevDigest  string
	Digest      string
}

// BlockRef identifies an appended block.
type BlockRef struct {
	Index    int64  `json:"index"`
	Digest   string `json:"digest"`
	VectorID string `json:"vector_id"`
}

// #endregion block

// #region genesis
// GenesisSentinel is the previous-digest reference carried by block 1.
const GenesisSentinel = "0000000000000000000000000000000000000000000000000000000000000000"

// GenesisVectorID and GenesisDescription are the fixed payload of block 1.
const (
	GenesisVectorID    = "V-GENESIS"
	GenesisDescription = "system initialization (origin axiom)"
)

// #endregion genesis

// #region verify
// VerifyResult reports the outcome of a full-chain integrity check.
type VerifyResult struct {
	Valid            bool  `json:"valid"`
	FirstBrokenBlock int64 `json:"first_broken_block,omitempty"` // 0 when valid
}

// #endregion verify

// #region relevance
// Relevance pairs an admitted commitment with its similarity to a query
// vector.
type Relevance struct {
	VectorID    string  `json:"vector_id"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// #endregion relevance
