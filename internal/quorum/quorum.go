package quorum

import (
	"fmt"
	"log"
	"math"
	"sort"
	"sync"

	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/gate"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/vector"
)

// #region coordinator
// Coordinator polls a fixed node set through a gate validator and tallies
// votes against a majority threshold. The validator is supplied per round,
// since the G gate's alignment floor tracks the adaptive threshold.
type Coordinator struct {
	nodes     []Node
	threshold int
}

// NewCoordinator creates a coordinator over the given node set. threshold 0
// selects the default two-thirds rule, ceil(n * 2/3). Errors on an empty
// node set or a threshold exceeding the node count.
func NewCoordinator(nodes []Node, threshold int) (*Coordinator, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("node set is empty")
	}
	if threshold == 0 {
		threshold = TwoThirds(len(nodes))
	}
	if threshold < 1 || threshold > len(nodes) {
		return nil, fmt.Errorf("threshold %d out of range for %d nodes", threshold, len(nodes))
	}
	return &Coordinator{nodes: nodes, threshold: threshold}, nil
}

// TwoThirds returns ceil(n * 2/3).
func TwoThirds(n int) int {
	return int(math.Ceil(float64(n) * 2.0 / 3.0))
}

// Nodes returns the node set.
func (c *Coordinator) Nodes() []Node {
	return c.nodes
}

// Threshold returns the affirmative-vote count required for acceptance.
func (c *Coordinator) Threshold() int {
	return c.threshold
}

// #endregion coordinator

// #region run
// Run executes a single authoritative quorum round. Nodes are polled in
// parallel and the round waits for every vote before tallying: each vote is
// logged, so there is no early exit at threshold. Failed nodes are not
// re-polled.
func (c *Coordinator) Run(v *gate.Validator, vec vector.Vector, alignmentScore, qualityScore float64) Result {
	votes := make(VoteRecord, len(c.nodes))
	decisions := make([]gate.Decision, len(c.nodes))

	var wg sync.WaitGroup
	var mu sync.Mutex
	for i, node := range c.nodes {
		wg.Add(1)
		go func(i int, node Node) {
			defer wg.Done()
			d := v.Validate(vec, alignmentScore, qualityScore, node.ID)
			mu.Lock()
			votes[node.ID] = d.Passed
			decisions[i] = d
			mu.Unlock()
		}(i, node)
	}
	wg.Wait()

	affirmative := votes.Affirmative()
	accepted := affirmative >= c.threshold

	failed := map[string]bool{}
	for _, d := range decisions {
		for _, g := range d.FailedGates {
			failed[string(g)] = true
		}
	}
	failedGates := make([]string, 0, len(failed))
	for g := range failed {
		failedGates = append(failedGates, g)
	}
	sort.Strings(failedGates)

	log.Printf("[QUORUM] round complete: %d/%d affirmative (threshold %d, accepted=%v)",
		affirmative, len(c.nodes), c.threshold, accepted)

	return Result{
		Accepted:    accepted,
		Votes:       votes,
		Threshold:   c.threshold,
		FailedGates: failedGates,
	}
}

// #endregion run

// #region sync-report
// Sync builds the pairwise coherence report over the node set. Pair
// coherence is the mean of the two node coherence values; overall coherence
// is the mean across nodes.
func (c *Coordinator) Sync() SyncReport {
	report := SyncReport{}

	var sum float64
	for _, n := range c.nodes {
		status := "ONLINE"
		if n.Coherence < MinCoherence {
			status = "DEGRADED"
		}
		report.Nodes = append(report.Nodes, NodeStatus{
			ID:        n.ID,
			Location:  n.Location,
			Coherence: n.Coherence,
			Status:    status,
		})
		sum += n.Coherence
	}

	for i := 0; i < len(c.nodes); i++ {
		for j := i + 1; j < len(c.nodes); j++ {
			coh := (c.nodes[i].Coherence + c.nodes[j].Coherence) / 2.0
			report.Pairs = append(report.Pairs, PairSync{
				Nodes:        [2]string{c.nodes[i].ID, c.nodes[j].ID},
				Coherence:    coh,
				Synchronized: coh >= MinCoherence,
			})
		}
	}

	report.OverallCoherence = sum / float64(len(c.nodes))
	report.Healthy = report.OverallCoherence >= MinCoherence
	return report
}

// #endregion sync-report

func nodeName(i int) string {
	return fmt.Sprintf("Gokden-Node-%d", i)
}
