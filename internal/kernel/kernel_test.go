package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/anchor"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/audit"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/gate"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/ledger"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/lockdown"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/proposal"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/quorum"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/vector"
)

type failingNotary struct{}

func (failingNotary) Notarize(context.Context, string, map[string]string) (anchor.Receipt, error) {
	return anchor.Receipt{}, errors.New("anchor network unreachable")
}

func newTestKernel(t *testing.T, mutate func(*Config)) (*Kernel, *ledger.Store) {
	t.Helper()
	store, err := ledger.NewStore(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := DefaultConfig()
	cfg.SnapshotPath = filepath.Join(t.TempDir(), "red_code_log.json")
	if mutate != nil {
		mutate(&cfg)
	}
	k, err := New(store, proposal.NewScriptedSource(), anchor.NewLocalNotary(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	return k, store
}

func strongProposal() proposal.Proposal {
	return proposal.Proposal{
		Vector:      vector.Vector{0.99, 0.98, 0.95, 0.95},
		Quality:     0.95,
		Description: "baseline high-alignment commitment",
	}
}

func TestNineNodeAcceptanceScenario(t *testing.T) {
	k, store := newTestKernel(t, func(cfg *Config) {
		cfg.Nodes = quorum.GokdenNodes(9)
		cfg.Gate = gate.GokdenConfig()
	})

	res, err := k.SubmitProposal(context.Background(), proposal.Proposal{
		Vector:      vector.Vector{0.99, 0.98, 0.95, 0.80},
		Quality:     0.95,
		Description: "scaled validator admission",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Accepted {
		t.Fatalf("expected acceptance, reason: %s", res.Reason)
	}
	if res.Votes.Affirmative() != 9 {
		t.Fatalf("expected 9 affirmative votes, got %d", res.Votes.Affirmative())
	}
	if math.Abs(res.Alignment-0.9963) > 0.005 {
		t.Fatalf("expected alignment near 0.996, got %v", res.Alignment)
	}

	length, err := store.Length()
	if err != nil {
		t.Fatal(err)
	}
	if length != 2 {
		t.Fatalf("expected genesis plus one block, got length %d", length)
	}
	if res.BlockRef.VectorID != "CAUSAL-V-2" {
		t.Fatalf("unexpected vector id %s", res.BlockRef.VectorID)
	}

	receipt, found, err := k.ReceiptFor(res.BlockRef.Digest)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected anchor receipt for the appended block")
	}
	if receipt.Status != anchor.StatusConfirmed || receipt.Permanence != anchor.PermanenceEternal {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
}

func TestQuorumFailureEntersLockdown(t *testing.T) {
	var dissentCalls atomic.Int64
	snapPath := filepath.Join(t.TempDir(), "red_code_log.json")
	k, store := newTestKernel(t, func(cfg *Config) {
		cfg.SnapshotPath = snapPath
		cfg.Dissent = func(string) bool {
			dissentCalls.Add(1)
			return false
		}
	})

	// Integrity axis 0.70 fails O on every node.
	_, err := k.SubmitProposal(context.Background(), proposal.Proposal{
		Vector:  vector.Vector{0.95, 0.70, 0.90, 0.90},
		Quality: 0.95,
	})

	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rejected.Affirmative != 0 {
		t.Fatalf("expected 0 affirmative votes, got %d", rejected.Affirmative)
	}
	if k.Mode() != lockdown.ModeLockdown {
		t.Fatal("quorum failure must enter lockdown")
	}

	data, err := os.ReadFile(snapPath)
	if err != nil {
		t.Fatalf("forensic snapshot missing: %v", err)
	}
	var snap lockdown.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Reason == "" || snap.LedgerLength != 1 || snap.HeadDigest == "" {
		t.Fatalf("incomplete snapshot: %+v", snap)
	}

	// A post-lockdown submission must be refused before quorum runs: the
	// dissent policy call count stays where the rejected round left it.
	before := dissentCalls.Load()
	_, err = k.SubmitProposal(context.Background(), strongProposal())
	if !errors.Is(err, lockdown.ErrLockdown) {
		t.Fatalf("expected ErrLockdown, got %v", err)
	}
	if dissentCalls.Load() != before {
		t.Fatal("quorum must not run after lockdown")
	}

	length, err := store.Length()
	if err != nil {
		t.Fatal(err)
	}
	if length != 1 {
		t.Fatalf("rejection must not append, got length %d", length)
	}
}

func TestDriftAuditSynthesizesOneCorrectiveProposal(t *testing.T) {
	k, store := newTestKernel(t, func(cfg *Config) {
		cfg.Audit = audit.Config{Rhythm: 2, DriftFloor: 0.9995, MinHistory: 2}
	})

	ctx := context.Background()
	admissions := []proposal.Proposal{
		{Vector: vector.Vector{0.99, 0.90, 0.95, 0.95}, Quality: 0.95},
		{Vector: vector.Vector{0.90, 0.99, 0.86, 0.95}, Quality: 0.95},
	}
	for _, p := range admissions {
		res, err := k.SubmitProposal(ctx, p)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Accepted {
			t.Fatalf("expected acceptance, reason: %s", res.Reason)
		}
	}

	// The second admission completes an audit rhythm; the dispersed history
	// breaches the floor and one corrective re-anchor block follows.
	length, err := store.Length()
	if err != nil {
		t.Fatal(err)
	}
	if length != 4 {
		t.Fatalf("expected genesis + 2 admissions + 1 corrective, got length %d", length)
	}

	entries, err := k.RecentDecisions(10)
	if err != nil {
		t.Fatal(err)
	}
	corrective := 0
	for _, e := range entries {
		if e.TriggerType == "drift_correction" && e.Decision == "admit" {
			corrective++
		}
	}
	if corrective != 1 {
		t.Fatalf("expected exactly one corrective admission, got %d", corrective)
	}
	if k.Mode() != lockdown.ModeNormal {
		t.Fatal("corrective admission should succeed without lockdown")
	}
}

func TestNotaryFailureLeavesLedgerIntact(t *testing.T) {
	store, err := ledger.NewStore(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	cfg := DefaultConfig()
	cfg.SnapshotPath = ""
	k, err := New(store, proposal.NewScriptedSource(), failingNotary{}, cfg)
	if err != nil {
		t.Fatal(err)
	}

	res, err := k.SubmitProposal(context.Background(), strongProposal())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Accepted {
		t.Fatalf("notary failure must not affect admission, reason: %s", res.Reason)
	}

	verify, err := k.VerifyLedger()
	if err != nil {
		t.Fatal(err)
	}
	if !verify.Valid {
		t.Fatal("chain must verify after a failed anchor")
	}
	if _, found, _ := k.ReceiptFor(res.BlockRef.Digest); found {
		t.Fatal("no receipt should exist for a failed anchor")
	}
}

func TestIntegrityViolationEscalatesToLockdown(t *testing.T) {
	k, store := newTestKernel(t, nil)

	res, err := k.SubmitProposal(context.Background(), strongProposal())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Accepted {
		t.Fatalf("expected acceptance, reason: %s", res.Reason)
	}

	if _, err := store.DB().Exec(`UPDATE blocks SET description = 'tampered' WHERE idx = 2`); err != nil {
		t.Fatal(err)
	}

	verify, err := k.VerifyLedger()
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
	if verify.Valid || verify.FirstBrokenBlock != 2 {
		t.Fatalf("expected block 2 broken, got %+v", verify)
	}
	if k.Mode() != lockdown.ModeLockdown {
		t.Fatal("integrity violation must escalate to lockdown")
	}
	if _, err := k.SubmitProposal(context.Background(), strongProposal()); !errors.Is(err, lockdown.ErrLockdown) {
		t.Fatalf("expected ErrLockdown after escalation, got %v", err)
	}
}

func TestDimensionMismatchFailsFast(t *testing.T) {
	k, store := newTestKernel(t, nil)

	_, err := k.SubmitProposal(context.Background(), proposal.Proposal{
		Vector:  vector.Vector{0.99, 0.98, 0.95},
		Quality: 0.95,
	})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if k.Mode() != lockdown.ModeNormal {
		t.Fatal("a malformed proposal must not trigger lockdown")
	}
	length, err := store.Length()
	if err != nil {
		t.Fatal(err)
	}
	if length != 1 {
		t.Fatalf("malformed proposal must not append, got length %d", length)
	}

	// The pipeline stays usable.
	res, err := k.SubmitProposal(context.Background(), strongProposal())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Accepted {
		t.Fatalf("expected acceptance, reason: %s", res.Reason)
	}
}

func TestRestartResumesCalibration(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	cfg := DefaultConfig()
	cfg.SnapshotPath = ""

	store, err := ledger.NewStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	k, err := New(store, proposal.NewScriptedSource(), anchor.NewLocalNotary(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for _, p := range []proposal.Proposal{
		{Vector: vector.Vector{0.99, 0.98, 0.95, 0.95}, Quality: 0.95},
		{Vector: vector.Vector{0.97, 0.99, 0.93, 0.96}, Quality: 0.95},
	} {
		if res, err := k.SubmitProposal(ctx, p); err != nil || !res.Accepted {
			t.Fatalf("admission failed: %v %+v", err, res)
		}
	}
	before, err := k.SystemState()
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	store2, err := ledger.NewStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store2.Close()
	k2, err := New(store2, proposal.NewScriptedSource(), anchor.NewLocalNotary(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	after, err := k2.SystemState()
	if err != nil {
		t.Fatal(err)
	}
	if after.LedgerLength != 3 || after.HistorySize != 2 {
		t.Fatalf("expected resumed state, got %+v", after)
	}
	if math.Abs(after.Threshold-before.Threshold) > 1e-9 {
		t.Fatalf("threshold changed across restart: %v -> %v", before.Threshold, after.Threshold)
	}
	for i := range before.Ideal {
		if math.Abs(after.Ideal[i]-before.Ideal[i]) > 1e-9 {
			t.Fatalf("ideal changed across restart: %v -> %v", before.Ideal, after.Ideal)
		}
	}
}

func TestAnchorDeferredOnDegradedCoherence(t *testing.T) {
	k, _ := newTestKernel(t, func(cfg *Config) {
		nodes := quorum.DefaultNodes()
		nodes[0].Coherence = 0.50
		cfg.Nodes = nodes
	})

	res, err := k.SubmitProposal(context.Background(), strongProposal())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Accepted {
		t.Fatalf("degraded coherence must not block admission, reason: %s", res.Reason)
	}
	if _, found, _ := k.ReceiptFor(res.BlockRef.Digest); found {
		t.Fatal("anchoring must be deferred while coherence is below the floor")
	}
}
