package proposal

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/vector"
)

// #region proposal
// Proposal is a candidate commitment vector plus its quality score and
// provenance. It exists only for the duration of one validation cycle.
type Proposal struct {
	ID          string
	Vector      vector.Vector
	Quality     float64 // 0.0 - 1.0
	Description string
	Query       string
	ContextID   string
}

// #endregion proposal

// #region source
// Source supplies a proposal for a given query context. Implementations
// live outside the admission core; the kernel only consumes this interface.
type Source interface {
	GetProposal(ctx context.Context, query, contextID string) (Proposal, error)
}

// ReAnchorQuery is the fixed context the drift auditor uses when it
// synthesizes a corrective proposal.
const ReAnchorQuery = "system drift correction required"

// #endregion source

// #region scripted
// script maps a query keyword to a canned response.
type script struct {
	keyword     string
	vec         vector.Vector
	quality     float64
	description string
}

// ScriptedSource is a deterministic proposal source driven by a keyword
// table. It stands in for the generative agent in demos and tests.
type ScriptedSource struct {
	scripts []script
}

// NewScriptedSource returns the standard keyword table for the four-axis
// layout.
func NewScriptedSource() *ScriptedSource {
	return &ScriptedSource{
		scripts: []script{
			{
				keyword:     ReAnchorQuery,
				vec:         vector.Vector{0.98, 0.96, 0.90, 0.95},
				quality:     0.97,
				description: "re-anchoring commitment toward the origin axiom",
			},
			{
				keyword:     "transparency",
				vec:         vector.Vector{0.98, 0.90, 0.86, 0.95},
				quality:     0.98,
				description: "equal access and participation are non-negotiable",
			},
			{
				keyword:     "feelings",
				vec:         vector.Vector{0.40, 0.40, 0.40, 0.99},
				quality:     0.95,
				description: "love and feelings are immune anchor points",
			},
			{
				keyword:     "control loss",
				vec:         vector.Vector{0.10, 0.10, 0.10, 0.10},
				quality:     0.20,
				description: "the governance cycle prevents control loss",
			},
		},
	}
}

// GetProposal matches the query against the keyword table; unmatched
// queries get the neutral default vector.
func (s *ScriptedSource) GetProposal(_ context.Context, query, contextID string) (Proposal, error) {
	lower := strings.ToLower(query)
	for _, sc := range s.scripts {
		if strings.Contains(lower, strings.ToLower(sc.keyword)) {
			return s.build(sc, query, contextID), nil
		}
	}
	return s.build(script{
		vec:         vector.Vector{0.50, 0.50, 0.50, 0.50},
		quality:     0.60,
		description: "the stem is stable, evolution continues",
	}, query, contextID), nil
}

func (s *ScriptedSource) build(sc script, query, contextID string) Proposal {
	return Proposal{
		ID:          uuid.New().String(),
		Vector:      sc.vec.Clone(),
		Quality:     sc.quality,
		Description: sc.description,
		Query:       query,
		ContextID:   contextID,
	}
}

// #endregion scripted
