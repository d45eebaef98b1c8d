package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/gate"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/kernel"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/proposal"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/quorum"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/vector"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: a recorded
// proposal sequence plus the pipeline configuration it ran under.
type Fixture struct {
	Description     string                  `json:"description"`
	InitialIdeal    []float64               `json:"initial_ideal"`
	ImmuneIndices   []int                   `json:"immune_indices"`
	NodeCount       int                     `json:"node_count"` // 0 selects the three-node council
	Proposals       []FixtureProposal       `json:"proposals"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureProposal mirrors proposal.Proposal with JSON tags.
type FixtureProposal struct {
	ID          string    `json:"id"`
	Vector      []float64 `json:"vector"`
	Quality     float64   `json:"quality"`
	Description string    `json:"description"`
}

// FixtureExpectedResult captures the expected outcome per proposal.
type FixtureExpectedResult struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"` // "admit" | "reject" | "refused_lockdown"
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToProposal converts a FixtureProposal to a domain Proposal.
func (fp *FixtureProposal) ToProposal() proposal.Proposal {
	return proposal.Proposal{
		ID:          fp.ID,
		Vector:      vector.Vector(fp.Vector),
		Quality:     fp.Quality,
		Description: fp.Description,
	}
}

// ToKernelConfig converts the fixture header to a kernel configuration.
// A node count above three selects the scaled Gokden rule.
func (f *Fixture) ToKernelConfig() kernel.Config {
	cfg := kernel.DefaultConfig()
	cfg.SnapshotPath = ""
	if len(f.InitialIdeal) > 0 {
		cfg.InitialIdeal = vector.Vector(f.InitialIdeal)
	}
	if f.ImmuneIndices != nil {
		cfg.ImmuneIndices = f.ImmuneIndices
	}
	if f.NodeCount > 3 {
		cfg.Nodes = quorum.GokdenNodes(f.NodeCount)
		cfg.Gate = gate.GokdenConfig()
	}
	return cfg
}

// #endregion fixture-loader
