// Package replay feeds a recorded proposal sequence through a fresh
// admission pipeline and compares outcomes against expectations. Used for
// regression fixtures and offline what-if analysis of node configurations.
package replay

import (
	"context"
	"errors"

	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/kernel"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/lockdown"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/proposal"
)

// #region types
// Result captures the outcome of replaying one proposal.
type Result struct {
	ProposalID string
	Outcome    string // "admit" | "reject" | "refused_lockdown" | "error"
	Reason     string
	Alignment  float64
	BlockIndex int64 // 0 when nothing was appended
}

// Mismatch pairs an expected outcome with what the replay produced.
type Mismatch struct {
	ProposalID string
	Expected   string
	Actual     string
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalProposals int
	Admitted       int
	Rejected       int
	Refused        int
	Errors         int
	FinalMode      string
	Mismatches     []Mismatch
}

// #endregion types

// #region replay
// Run feeds each proposal through the kernel in order. A quorum failure
// locks the pipeline, so everything after it records as refused; the
// sequence still runs to the end to log the full picture.
func Run(ctx context.Context, k *kernel.Kernel, proposals []proposal.Proposal) []Result {
	results := make([]Result, 0, len(proposals))

	for _, p := range proposals {
		res, err := k.SubmitProposal(ctx, p)

		r := Result{
			ProposalID: p.ID,
			Alignment:  res.Alignment,
			Reason:     res.Reason,
		}
		var rejected *kernel.RejectedError
		switch {
		case err == nil && res.Accepted:
			r.Outcome = "admit"
			r.BlockIndex = res.BlockRef.Index
		case errors.As(err, &rejected):
			r.Outcome = "reject"
		case errors.Is(err, lockdown.ErrLockdown):
			r.Outcome = "refused_lockdown"
			r.Reason = err.Error()
		default:
			r.Outcome = "error"
			r.Reason = err.Error()
		}
		results = append(results, r)
	}

	return results
}

// Summarize computes aggregate stats and expectation mismatches.
func Summarize(results []Result, expected []FixtureExpectedResult, finalMode string) Summary {
	s := Summary{
		TotalProposals: len(results),
		FinalMode:      finalMode,
	}
	for _, r := range results {
		switch r.Outcome {
		case "admit":
			s.Admitted++
		case "reject":
			s.Rejected++
		case "refused_lockdown":
			s.Refused++
		case "error":
			s.Errors++
		}
	}

	byID := make(map[string]string, len(results))
	for _, r := range results {
		byID[r.ProposalID] = r.Outcome
	}
	for _, e := range expected {
		actual, ok := byID[e.ID]
		if !ok {
			s.Mismatches = append(s.Mismatches, Mismatch{ProposalID: e.ID, Expected: e.Outcome, Actual: "missing"})
			continue
		}
		if actual != e.Outcome {
			s.Mismatches = append(s.Mismatches, Mismatch{ProposalID: e.ID, Expected: e.Outcome, Actual: actual})
		}
	}
	return s
}

// #endregion replay
