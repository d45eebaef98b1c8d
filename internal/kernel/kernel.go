// Package kernel wires the admission pipeline: alignment scoring, quorum
// validation, ledger append, threshold calibration, drift audit and the
// lockdown barrier, serialized behind a single writer.
package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/anchor"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/audit"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/calibrate"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/gate"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/ledger"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/lockdown"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/provenance"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/proposal"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/quorum"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/vector"
)

const (
	triggerSubmission      = "submission"
	triggerDriftCorrection = "drift_correction"
)

// #region kernel
// Kernel is the session object owning all pipeline state. One mutex
// serializes every admission; reads take the same lock since calibration
// state is cheap to copy out under it.
type Kernel struct {
	mu sync.Mutex

	config      Config
	store       *ledger.Store
	cal         *calibrate.Calibrator
	coordinator *quorum.Coordinator
	auditor     *audit.Auditor
	lock        *lockdown.Controller
	source      proposal.Source
	notary      anchor.Notary
	receipts    *anchor.ReceiptStore
}

// New builds a kernel over the given ledger store. On an empty ledger it
// writes the genesis block with the origin axiom vector; on a populated one
// it reseeds the calibration history from the admitted blocks so a restart
// resumes with the same ideal and threshold.
func New(store *ledger.Store, source proposal.Source, notary anchor.Notary, config Config) (*Kernel, error) {
	if len(config.InitialIdeal) == 0 {
		return nil, fmt.Errorf("initial ideal is empty")
	}

	cal, err := calibrate.New(config.InitialIdeal, config.ImmuneIndices, config.Calibrate)
	if err != nil {
		return nil, fmt.Errorf("calibrator: %w", err)
	}
	coordinator, err := quorum.NewCoordinator(config.Nodes, config.Threshold)
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}
	if err := provenance.Migrate(store.DB()); err != nil {
		return nil, err
	}
	receipts, err := anchor.NewReceiptStore(store.DB())
	if err != nil {
		return nil, err
	}

	length, err := store.Length()
	if err != nil {
		return nil, fmt.Errorf("ledger length: %w", err)
	}
	if length == 0 {
		if _, err := store.Genesis(vector.Origin(len(config.InitialIdeal))); err != nil {
			return nil, fmt.Errorf("genesis: %w", err)
		}
	} else {
		blocks, err := store.Blocks()
		if err != nil {
			return nil, fmt.Errorf("reseed history: %w", err)
		}
		admitted := 0
		for _, b := range blocks {
			if b.Index == 1 {
				continue
			}
			cal.Observe(b.Vector)
			admitted++
		}
		if admitted > 0 {
			cal.Recalibrate()
		}
		log.Printf("[KERNEL] resumed: %d admitted blocks, threshold %.4f", admitted, cal.Threshold())
	}

	k := &Kernel{
		config:      config,
		store:       store,
		cal:         cal,
		coordinator: coordinator,
		auditor:     audit.NewAuditor(config.Audit),
		lock:        lockdown.NewController(config.SnapshotPath),
		source:      source,
		notary:      notary,
		receipts:    receipts,
	}
	log.Printf("[KERNEL] initialized: %d nodes, quorum threshold %d, dimension %d",
		len(config.Nodes), coordinator.Threshold(), len(config.InitialIdeal))
	return k, nil
}

// #endregion kernel

// #region submit
// SubmitProposal runs one full admission pass. On acceptance the block is
// appended, the calibration updates, the digest is notarized and the drift
// auditor ticks; a due audit that detects drift synthesizes exactly one
// corrective proposal and feeds it back through the same pipeline. On quorum
// failure the kernel enters lockdown and a RejectedError is returned.
func (k *Kernel) SubmitProposal(ctx context.Context, p proposal.Proposal) (AdmissionResult, error) {
	k.mu.Lock()
	res, err := k.admit(ctx, p, triggerSubmission)
	auditDue := false
	if err == nil && res.Accepted {
		auditDue = k.auditor.Tick()
	}
	k.mu.Unlock()

	if err != nil {
		return res, err
	}
	// Notarization runs outside the admission lock; a failed anchor never
	// unwinds the append.
	k.notarize(ctx, res.BlockRef)
	if auditDue {
		k.runAuditCycle(ctx)
	}
	return res, nil
}

// admit is the serialized pipeline pass. Caller holds k.mu.
func (k *Kernel) admit(ctx context.Context, p proposal.Proposal, trigger string) (AdmissionResult, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	res := AdmissionResult{ProposalID: p.ID, Threshold: k.cal.Threshold()}

	if err := k.lock.Guard(); err != nil {
		res.Reason = k.lock.Reason()
		k.logDecision(p, trigger, "refused_lockdown", res.Reason, 0, nil, 0)
		return res, err
	}

	ideal := k.cal.Ideal()
	if len(p.Vector) != len(ideal) {
		err := fmt.Errorf("%w: got %d axes, want %d", ErrDimensionMismatch, len(p.Vector), len(ideal))
		res.Reason = err.Error()
		k.logDecision(p, trigger, "reject", res.Reason, 0, nil, 0)
		return res, err
	}
	if p.Quality < 0.0 || p.Quality > 1.0 {
		err := fmt.Errorf("quality score %v outside [0, 1]", p.Quality)
		res.Reason = err.Error()
		k.logDecision(p, trigger, "reject", res.Reason, 0, nil, 0)
		return res, err
	}

	res.Alignment = vector.Cosine(p.Vector, ideal)

	// An abandoned proposal leaves no trace before quorum starts.
	if err := ctx.Err(); err != nil {
		return res, err
	}

	// The G gate's alignment floor is the current adaptive threshold.
	cfg := k.config.Gate
	cfg.AlignmentMin = k.cal.Threshold()
	validator := gate.NewValidator(cfg).WithDissent(k.config.Dissent)

	q := k.coordinator.Run(validator, p.Vector, res.Alignment, p.Quality)
	res.Votes = q.Votes
	res.FailedGates = q.FailedGates

	if !q.Accepted {
		res.Reason = fmt.Sprintf("quorum failed: %d/%d affirmative, gates %v",
			q.Votes.Affirmative(), q.Threshold, q.FailedGates)
		k.triggerLockdown(res.Reason)
		k.logDecision(p, trigger, "reject", res.Reason, res.Alignment, q.Votes, 0)
		return res, &RejectedError{
			Affirmative: q.Votes.Affirmative(),
			Threshold:   q.Threshold,
			FailedGates: q.FailedGates,
		}
	}

	// Last abandonment point; once the append starts it runs to completion.
	if err := ctx.Err(); err != nil {
		return res, err
	}

	length, err := k.store.Length()
	if err != nil {
		return res, fmt.Errorf("ledger length: %w", err)
	}
	vectorID := fmt.Sprintf("CAUSAL-V-%d", length+1)
	ref, err := k.store.Append(vectorID, p.Description, p.Vector)
	if err != nil {
		return res, fmt.Errorf("ledger append: %w", err)
	}

	k.cal.Observe(p.Vector)
	k.cal.Recalibrate()

	res.Accepted = true
	res.BlockRef = &ref
	res.Threshold = k.cal.Threshold()
	k.logDecision(p, trigger, "admit", "", res.Alignment, q.Votes, ref.Index)
	log.Printf("[KERNEL] admitted %s as block %d (alignment %.4f, threshold now %.4f)",
		vectorID, ref.Index, res.Alignment, res.Threshold)
	return res, nil
}

// #endregion submit

// #region audit
// runAuditCycle measures drift and, on a breach, synthesizes one corrective
// re-anchor proposal through the full pipeline. The corrective pass does not
// tick the auditor, so a correction cannot cascade into another audit.
func (k *Kernel) runAuditCycle(ctx context.Context) {
	k.mu.Lock()
	ar := k.auditor.Audit(k.cal.History(), k.cal.Ideal(), k.cal.ImmuneIndices())
	if !ar.CorrectionNeeded {
		k.mu.Unlock()
		return
	}
	log.Printf("[AUDIT] drift %.4f below floor, synthesizing corrective proposal", ar.Score)
	p, err := k.source.GetProposal(ctx, proposal.ReAnchorQuery, "drift-audit")
	if err != nil {
		log.Printf("[AUDIT] no corrective proposal available: %v", err)
		k.mu.Unlock()
		return
	}
	res, err := k.admit(ctx, p, triggerDriftCorrection)
	k.mu.Unlock()

	if err != nil {
		log.Printf("[AUDIT] corrective admission failed: %v", err)
		return
	}
	k.notarize(ctx, res.BlockRef)
}

// DriftReport measures current drift without advancing the audit cadence.
func (k *Kernel) DriftReport() audit.Result {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.auditor.Audit(k.cal.History(), k.cal.Ideal(), k.cal.ImmuneIndices())
}

// #endregion audit

// #region anchor
// notarize anchors an appended block's digest and stores the receipt.
// Degraded node coherence defers anchoring; admission is unaffected.
func (k *Kernel) notarize(ctx context.Context, ref *ledger.BlockRef) {
	if ref == nil {
		return
	}
	sync := k.coordinator.Sync()
	if !sync.Healthy {
		log.Printf("[ANCHOR] coherence %.4f below floor, anchoring deferred for block %d",
			sync.OverallCoherence, ref.Index)
		return
	}
	receipt, err := k.notary.Notarize(ctx, ref.Digest, map[string]string{
		"vector_id": ref.VectorID,
		"block":     strconv.FormatInt(ref.Index, 10),
	})
	if err != nil {
		log.Printf("[ANCHOR] notarization failed for block %d: %v", ref.Index, err)
		return
	}
	if err := k.receipts.Save(receipt); err != nil {
		log.Printf("[ANCHOR] receipt save failed for block %d: %v", ref.Index, err)
		return
	}
	log.Printf("[ANCHOR] block %d anchored, receipt %s", ref.Index, receipt.ReceiptID)
}

// ReceiptFor looks up the anchor receipt of a block digest.
func (k *Kernel) ReceiptFor(digest string) (anchor.Receipt, bool, error) {
	return k.receipts.ByDigest(digest)
}

// #endregion anchor

// #region verify
// VerifyLedger re-checks the whole hash chain. A broken chain escalates to
// lockdown and returns ErrIntegrity.
func (k *Kernel) VerifyLedger() (ledger.VerifyResult, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	res, err := k.store.VerifyIntegrity()
	if err != nil {
		return res, err
	}
	if !res.Valid {
		reason := fmt.Sprintf("hash chain broken at block %d", res.FirstBrokenBlock)
		k.triggerLockdown(reason)
		return res, fmt.Errorf("%w: %s", ErrIntegrity, reason)
	}
	return res, nil
}

// #endregion verify

// #region state
// SystemState reports the current mode, threshold, ideal and ledger length.
func (k *Kernel) SystemState() (SystemState, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	length, err := k.store.Length()
	if err != nil {
		return SystemState{}, fmt.Errorf("ledger length: %w", err)
	}
	return SystemState{
		Mode:         k.lock.Mode().String(),
		Threshold:    k.cal.Threshold(),
		Ideal:        k.cal.Ideal(),
		LedgerLength: length,
		HistorySize:  len(k.cal.History()),
	}, nil
}

// Mode reports the lockdown state without touching pipeline state.
func (k *Kernel) Mode() lockdown.Mode {
	return k.lock.Mode()
}

// NodeSync builds the pairwise node-coherence report.
func (k *Kernel) NodeSync() quorum.SyncReport {
	return k.coordinator.Sync()
}

// Relevant returns admitted commitments whose similarity to the query
// vector meets the threshold, most relevant first.
func (k *Kernel) Relevant(query vector.Vector, threshold float64) ([]ledger.Relevance, error) {
	return k.store.Relevant(query, threshold)
}

// RecentDecisions returns the latest admission-log rows, newest first.
func (k *Kernel) RecentDecisions(limit int) ([]provenance.Entry, error) {
	return provenance.Recent(k.store.DB(), limit)
}

// #endregion state

// #region helpers
// triggerLockdown captures the forensic snapshot and flips the one-way
// switch. Caller holds k.mu.
func (k *Kernel) triggerLockdown(reason string) {
	length, _ := k.store.Length()
	head, _ := k.store.Head()

	history := k.cal.History()
	if len(history) > 10 {
		history = history[len(history)-10:]
	}
	k.lock.Trigger(reason, lockdown.Snapshot{
		Timestamp:    time.Now().UTC(),
		LedgerLength: length,
		HeadDigest:   head.Digest,
		Ideal:        k.cal.Ideal(),
		Threshold:    k.cal.Threshold(),
		History:      history,
	})
}

func (k *Kernel) logDecision(p proposal.Proposal, trigger, decision, reason string, alignment float64, votes quorum.VoteRecord, blockIdx int64) {
	votesJSON := ""
	if votes != nil {
		if b, err := json.Marshal(votes); err == nil {
			votesJSON = string(b)
		}
	}
	err := provenance.LogDecision(k.store.DB(), provenance.Entry{
		ProposalID:  p.ID,
		TriggerType: trigger,
		Decision:    decision,
		Reason:      reason,
		Alignment:   alignment,
		Quality:     p.Quality,
		VotesJSON:   votesJSON,
		BlockIndex:  blockIdx,
	})
	if err != nil {
		log.Printf("[KERNEL] admission log write failed: %v", err)
	}
}

// #endregion helpers
