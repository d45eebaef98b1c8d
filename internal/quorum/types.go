package quorum

// #region node
// Node is one named validator in the fixed quorum set. Nodes are stateless
// with respect to vote history: every round re-evaluates from scratch.
type Node struct {
	ID        string
	Location  string
	Coherence float64 // availability/health in [0,1]
}

// DefaultNodes returns the three-node council configuration.
func DefaultNodes() []Node {
	return []Node{
		{ID: "Alpha", Location: "primary validation ring", Coherence: 1.0},
		{ID: "Beta", Location: "secondary validation ring", Coherence: 1.0},
		{ID: "Gamma", Location: "detail validation ring", Coherence: 1.0},
	}
}

// GokdenNodes returns the scaled n-node validator set used by the global
// consensus configuration.
func GokdenNodes(n int) []Node {
	nodes := make([]Node, 0, n)
	for i := 1; i <= n; i++ {
		nodes = append(nodes, Node{
			ID:        nodeName(i),
			Location:  "distributed ledger ring",
			Coherence: 1.0,
		})
	}
	return nodes
}

// #endregion node

// #region vote-record
// VoteRecord maps node ID to that node's boolean outcome for one round.
// Retained for audit logging only; never written to the ledger.
type VoteRecord map[string]bool

// Affirmative counts the true votes.
func (r VoteRecord) Affirmative() int {
	n := 0
	for _, ok := range r {
		if ok {
			n++
		}
	}
	return n
}

// #endregion vote-record

// #region result
// Result is the outcome of a single quorum round.
type Result struct {
	Accepted  bool
	Votes     VoteRecord
	Threshold int
	// FailedGates aggregates the distinct gates that failed across all
	// rejecting nodes, for the rejection reason surfaced to the caller.
	FailedGates []string
}

// #endregion result

// #region sync
// MinCoherence is the floor below which a node, a pair, or the whole set is
// reported degraded.
const MinCoherence = 0.94

// PairSync reports the coherence between two nodes.
type PairSync struct {
	Nodes        [2]string `json:"nodes"`
	Coherence    float64   `json:"coherence"`
	Synchronized bool      `json:"synchronized"`
}

// NodeStatus reports one node's standalone health.
type NodeStatus struct {
	ID        string  `json:"id"`
	Location  string  `json:"location"`
	Coherence float64 `json:"coherence"`
	Status    string  `json:"status"` // "ONLINE" | "DEGRADED"
}

// SyncReport is the pairwise coherence report over the node set.
type SyncReport struct {
	Nodes            []NodeStatus `json:"nodes"`
	Pairs            []PairSync   `json:"pairs"`
	OverallCoherence float64      `json:"overall_coherence"`
	Healthy          bool         `json:"healthy"`
}

// #endregion sync
