// Package main implements the euystacio CLI: the admission daemon and
// manual operations against the local ledger.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/anchor"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/kernel"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/ledger"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/lockdown"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/proposal"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/replay"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/server"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/vector"
)

var (
	dbPath       string
	snapshotPath string
	version      = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "euystacio",
	Short: "Admission gate over a hash-chained commitment ledger",
	Long: `euystacio validates proposed commitment vectors through a distributed
five-gate quorum check and admits them into an append-only hash-chained
ledger with adaptive threshold calibration and periodic drift audits.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db",
		envOr("EUYSTACIO_DB", "euystacio_ledger.db"), "path to the ledger database")
	rootCmd.PersistentFlags().StringVar(&snapshotPath, "red-code",
		envOr("EUYSTACIO_RED_CODE", "red_code_log.json"), "path for the forensic lockdown snapshot")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(anchorCmd)
	anchorCmd.AddCommand(anchorVerifyCmd)
	rootCmd.AddCommand(replayCmd)
}

func openKernel() (*kernel.Kernel, *ledger.Store, error) {
	store, err := ledger.NewStore(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger: %w", err)
	}
	cfg := kernel.DefaultConfig()
	cfg.SnapshotPath = snapshotPath
	k, err := kernel.New(store, proposal.NewScriptedSource(), anchor.NewLocalNotary(), cfg)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return k, store, nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// serveCmd runs the admission daemon.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admission HTTP server",
	RunE:  runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", envOr("EUYSTACIO_HOST", "localhost"), "listen host")
	servePort, _ = strconv.Atoi(envOr("EUYSTACIO_PORT", "8844"))
	serveCmd.Flags().IntVar(&servePort, "port", servePort, "listen port")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	k, store, err := openKernel()
	if err != nil {
		return err
	}
	defer store.Close()

	srv, err := server.NewServer(k, logger, &server.Config{Host: serveHost, Port: servePort})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// submitCmd runs one admission pass against the local ledger.
var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a commitment vector for admission",
	Long: `Submit a commitment vector for admission.

Examples:
  euystacio submit --vector 0.99,0.98,0.95,0.95 --quality 0.95 --description "baseline"`,
	RunE: runSubmit,
}

var (
	submitVector      string
	submitQuality     float64
	submitDescription string
)

func init() {
	submitCmd.Flags().StringVar(&submitVector, "vector", "", "comma-separated axis values (required)")
	submitCmd.Flags().Float64Var(&submitQuality, "quality", 0.0, "proposal quality score in [0,1]")
	submitCmd.Flags().StringVar(&submitDescription, "description", "", "commitment description")
	submitCmd.MarkFlagRequired("vector")
}

func parseVector(raw string) (vector.Vector, error) {
	parts := strings.Split(raw, ",")
	vec := make(vector.Vector, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid axis value %q: %w", p, err)
		}
		vec = append(vec, f)
	}
	return vec, nil
}

func runSubmit(cmd *cobra.Command, args []string) error {
	vec, err := parseVector(submitVector)
	if err != nil {
		return err
	}

	k, store, err := openKernel()
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := k.SubmitProposal(cmd.Context(), proposal.Proposal{
		Vector:      vec,
		Quality:     submitQuality,
		Description: submitDescription,
	})
	if err != nil {
		var rejected *kernel.RejectedError
		switch {
		case errors.As(err, &rejected):
			printJSON(res)
			return fmt.Errorf("proposal rejected, system entered lockdown: %w", err)
		case errors.Is(err, lockdown.ErrLockdown):
			return fmt.Errorf("submission refused: %w", err)
		default:
			return err
		}
	}
	return printJSON(res)
}

// statusCmd reports system state, drift and node coherence.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report system state, drift and node coherence",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	k, store, err := openKernel()
	if err != nil {
		return err
	}
	defer store.Close()

	state, err := k.SystemState()
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"state": state,
		"drift": k.DriftReport(),
		"nodes": k.NodeSync(),
	})
}

// verifyCmd re-checks the hash chain.
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the integrity of the hash chain",
	RunE:  runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	k, store, err := openKernel()
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := k.VerifyLedger()
	printJSON(res)
	if err != nil {
		return err
	}
	return nil
}

// anchorCmd groups anchoring operations.
var anchorCmd = &cobra.Command{
	Use:   "anchor",
	Short: "Durable-anchor operations",
}

// anchorVerifyCmd looks up the anchor receipt for a block digest.
var anchorVerifyCmd = &cobra.Command{
	Use:   "verify <digest>",
	Short: "Verify that a block digest was anchored",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnchorVerify,
}

func runAnchorVerify(cmd *cobra.Command, args []string) error {
	k, store, err := openKernel()
	if err != nil {
		return err
	}
	defer store.Close()

	receipt, found, err := k.ReceiptFor(args[0])
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("digest %s has no anchor receipt", args[0])
	}
	return printJSON(receipt)
}

// replayCmd runs a recorded proposal sequence against a throwaway ledger.
var replayCmd = &cobra.Command{
	Use:   "replay <fixture.json>",
	Short: "Replay a proposal fixture through a fresh pipeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	fixture, err := replay.LoadFixture(args[0])
	if err != nil {
		return err
	}

	tmpDir, err := os.MkdirTemp("", "euystacio-replay-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	store, err := ledger.NewStore(filepath.Join(tmpDir, "ledger.db"))
	if err != nil {
		return fmt.Errorf("open replay ledger: %w", err)
	}
	defer store.Close()

	k, err := kernel.New(store, proposal.NewScriptedSource(), anchor.NewLocalNotary(), fixture.ToKernelConfig())
	if err != nil {
		return err
	}

	proposals := make([]proposal.Proposal, 0, len(fixture.Proposals))
	for _, fp := range fixture.Proposals {
		proposals = append(proposals, fp.ToProposal())
	}

	results := replay.Run(cmd.Context(), k, proposals)
	summary := replay.Summarize(results, fixture.ExpectedResults, k.Mode().String())
	if err := printJSON(summary); err != nil {
		return err
	}
	if len(summary.Mismatches) > 0 {
		return fmt.Errorf("%d outcome mismatches", len(summary.Mismatches))
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
