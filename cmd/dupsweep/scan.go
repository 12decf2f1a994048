package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/steveyegge/dupsweep/internal/config"
	"github.com/steveyegge/dupsweep/internal/embedding"
	"github.com/steveyegge/dupsweep/internal/events"
	"github.com/steveyegge/dupsweep/internal/imaging"
	"github.com/steveyegge/dupsweep/internal/inference"
	"github.com/steveyegge/dupsweep/internal/relocation"
	"github.com/steveyegge/dupsweep/internal/scan"
	"github.com/steveyegge/dupsweep/internal/storage"
	"github.com/steveyegge/dupsweep/internal/sweep"
)

func NewScanCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <dir>...",
		Short: "Find near-duplicate images and relocate them",
		Long: `Scan one or more directories for images, embed each one with the model
server and move every near-duplicate into the target directory.

Two images are duplicates when the cosine similarity of their embeddings is
strictly greater than the threshold. Of each duplicate pair, the file whose
path sorts later is relocated. Duplicates are copied into the target; with
--delete-source the original location is removed after the copy succeeds.

Examples:
  dupsweep scan ~/Pictures --target ~/Pictures/duplicates
  dupsweep scan ~/Pictures --dry-run --json > report.json
  dupsweep scan a b --threshold 0.9 --delete-source --events events.jsonl`,
		Args: cobra.MinimumNArgs(1),
		RunE: makeScanRunner(version),
	}

	cmd.Flags().String("target", "", "Directory duplicates are moved into (default from config: duplicates)")
	cmd.Flags().Float64("threshold", 0, "Similarity a pair must exceed to count as duplicates, in (0, 1]")
	cmd.Flags().Int("workers", 0, "Decode and comparison goroutines (default: number of CPUs)")
	cmd.Flags().Int("inference-slots", 0, "Concurrent model server requests (default: number of CPUs)")
	cmd.Flags().Bool("delete-source", false, "Remove each duplicate from its original location after copying")
	cmd.Flags().Bool("dry-run", false, "Report what would be relocated without touching any file")
	cmd.Flags().Bool("open", false, "Open the target directory in the file manager when done")
	cmd.Flags().String("events", "", "Append every event as JSON lines to this file")
	cmd.Flags().BoolP("verbose", "v", false, "Print an event for every embedded file")

	return cmd
}

// applyScanFlags overrides cfg with the flags that were set explicitly.
func applyScanFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("target") {
		cfg.Target, _ = flags.GetString("target")
	}
	if flags.Changed("threshold") {
		cfg.Threshold, _ = flags.GetFloat64("threshold")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("inference-slots") {
		cfg.InferenceSlots, _ = flags.GetInt("inference-slots")
	}
	if flags.Changed("delete-source") {
		cfg.DeleteSource, _ = flags.GetBool("delete-source")
	}
	if flags.Changed("dry-run") {
		cfg.DryRun, _ = flags.GetBool("dry-run")
	}
	if flags.Changed("events") {
		cfg.Events.Path, _ = flags.GetString("events")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	target, err := filepath.Abs(cfg.Target)
	if err != nil {
		return fmt.Errorf("failed to resolve target %s: %w", cfg.Target, err)
	}
	cfg.Target = target
	return nil
}

func makeScanRunner(version string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := applyScanFlags(cmd, cfg); err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		openTarget, _ := cmd.Flags().GetBool("open")
		verbose, _ := cmd.Flags().GetBool("verbose")

		// Keep stdout clean for the JSON report
		consoleOut := cmd.OutOrStdout()
		if asJSON {
			consoleOut = cmd.ErrOrStderr()
		}

		runID := uuid.NewString()

		emitter, closeEvents, err := buildEmitter(cfg, consoleOut, verbose)
		if err != nil {
			return err
		}
		defer closeEvents()

		if !cfg.DryRun {
			lockPath, err := storage.AcquireTargetLock(cfg.Target, runID, version)
			if err != nil {
				return err
			}
			defer func() { _ = storage.ReleaseTargetLock(lockPath, runID) }()
		}

		var journal storage.Journal
		if !cfg.Journal.Disabled {
			journal, err = storage.NewJournal(ctx, storage.Config{Path: cfg.Journal.Path})
			if err != nil {
				return fmt.Errorf("failed to open journal: %w", err)
			}
			defer func() { _ = journal.Close() }()
		}

		sweeper, err := buildSweeper(cfg, runID, emitter, journal)
		if err != nil {
			return err
		}

		report, runErr := sweeper.Run(ctx, args)
		if report == nil {
			return runErr
		}

		if journal != nil && cfg.Journal.Retention.AutoPrune {
			if _, err := pruneJournal(context.WithoutCancel(ctx), journal, cfg.Journal.Retention); err != nil {
				report.Warnings = append(report.Warnings, "journal: auto-prune failed: "+err.Error())
			}
		}

		if asJSON {
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
		} else {
			printReport(cmd.OutOrStdout(), report)
		}

		if runErr != nil {
			return runErr
		}

		if openTarget && !cfg.DryRun && report.Relocation.Relocated > 0 {
			if err := openDirectory(ctx, cfg.Target); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", color.YellowString("⚠"), err)
			}
		}
		return nil
	}
}

// buildEmitter fans events out to the console and, when configured, a JSONL
// file. The returned func closes the file.
func buildEmitter(cfg *config.Config, console io.Writer, verbose bool) (events.Emitter, func(), error) {
	minSeverity, err := events.ParseSeverity(cfg.Events.MinSeverity)
	if err != nil {
		return nil, nil, err
	}

	emitters := events.Multi{
		events.Filter{
			Next:        newConsoleEmitter(console, verbose),
			MinSeverity: minSeverity,
			Always:      []events.EventType{events.EventTypeRunStarted, events.EventTypeRunCompleted},
		},
	}
	closeFn := func() {}

	if cfg.Events.Path != "" {
		w, err := events.OpenJSONLFile(cfg.Events.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open events file: %w", err)
		}
		emitters = append(emitters, w)
		closeFn = func() { _ = w.Close() }
	}
	return emitters, closeFn, nil
}

// buildSweeper wires the on-disk collaborators of a run.
func buildSweeper(cfg *config.Config, runID string, emitter events.Emitter, journal storage.Journal) (*sweep.Sweeper, error) {
	fs := afero.NewOsFs()

	scanner, err := scan.New(fs, cfg.ScanOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}

	decoder, err := imaging.NewDecoder(fs, cfg.ImagingConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	inferCfg, err := cfg.InferenceConfig()
	if err != nil {
		return nil, err
	}
	client, err := inference.NewHTTPClient(inferCfg, &http.Client{Timeout: inferCfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create inference client: %w", err)
	}

	retryCfg, err := cfg.RetryConfig()
	if err != nil {
		return nil, err
	}
	inferencer, err := inference.NewRetrying(client, retryCfg, circuitBreakerReporter(runID, emitter))
	if err != nil {
		return nil, fmt.Errorf("failed to create inference client: %w", err)
	}

	relocator, err := relocation.NewFileRelocator(fs, cfg.Target, cfg.DryRun)
	if err != nil {
		return nil, err
	}

	s := &sweep.Sweeper{
		Scanner:    scanner,
		Decoder:    decoder,
		Inferencer: inferencer,
		Relocator:  relocator,
		Emitter:    emitter,
		Settings: sweep.Settings{
			Target:     relocator.Target(),
			DryRun:     cfg.DryRun,
			Embedding:  cfg.EmbeddingConfig(),
			Resolver:   cfg.ResolverConfig(),
			Relocation: cfg.RelocationConfig(),
		},
		NewRunID: func() string { return runID },
	}
	if journal != nil {
		s.Journal = journal
	}
	return s, nil
}

// circuitBreakerReporter turns breaker transitions into events.
func circuitBreakerReporter(runID string, emitter events.Emitter) inference.StateChangeFunc {
	return func(from, to inference.CircuitState, failures int) {
		severity := events.SeverityWarning
		if to == inference.CircuitClosed {
			severity = events.SeverityInfo
		}
		msg := fmt.Sprintf("Inference circuit breaker %s -> %s", from, to)
		e, err := events.New(events.EventTypeCircuitBreakerStateChange, runID, "", severity, msg,
			events.CircuitBreakerStateChangeData{From: from.String(), To: to.String(), Failures: failures})
		if err != nil {
			e = events.NewSimpleEvent(events.EventTypeCircuitBreakerStateChange, runID, "", severity, msg)
		}
		emitter.Emit(e)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printReport writes the human-readable run summary.
func printReport(w io.Writer, r *sweep.Report) {
	fmt.Fprintln(w)
	status := color.GreenString("✓ Sweep complete")
	if r.Aborted {
		status = color.RedString("✗ Sweep aborted")
	}
	if r.DryRun {
		status += color.YellowString(" (dry run)")
	}
	fmt.Fprintf(w, "%s  run %s\n\n", status, color.CyanString(r.RunID))

	fmt.Fprintf(w, "  Files scanned:    %d\n", r.Files)
	fmt.Fprintf(w, "  Embedded:         %d\n", r.Embedding.Embedded)
	if r.Embedding.Failed > 0 {
		fmt.Fprintf(w, "  Failed to embed:  %s\n", color.YellowString("%d", r.Embedding.Failed))
	}
	fmt.Fprintf(w, "  Comparisons:      %d\n", r.Resolution.Comparisons)
	fmt.Fprintf(w, "  Duplicates:       %d (threshold %.4f)\n", len(r.Decisions), r.Threshold)

	verb := "Relocated:"
	if r.DryRun {
		verb = "Would relocate:"
	}
	fmt.Fprintf(w, "  %-17s %d -> %s\n", verb, r.Relocation.Relocated, r.Target)
	if r.Relocation.DeletedSources > 0 {
		fmt.Fprintf(w, "  Sources removed:  %d\n", r.Relocation.DeletedSources)
	}
	if r.Relocation.Failed > 0 {
		fmt.Fprintf(w, "  Failed to move:   %s\n", color.RedString("%d", r.Relocation.Failed))
	}
	fmt.Fprintf(w, "  Duration:         %s\n", r.Duration.Round(time.Millisecond))

	for _, f := range r.Failures {
		if f.Stage == string(embedding.StageCanceled) {
			continue
		}
		fmt.Fprintf(w, "  %s %s (%s): %s\n", color.YellowString("⚠"), f.Path, f.Stage, f.Error)
	}
	for _, o := range r.Outcomes {
		if o.Error != "" && o.FailedStep != string(relocation.StepCanceled) {
			fmt.Fprintf(w, "  %s %s (%s): %s\n", color.RedString("✗"), o.Duplicate, o.FailedStep, o.Error)
		}
	}
	for _, warning := range r.ScanWarnings {
		fmt.Fprintf(w, "  %s %s\n", color.YellowString("⚠"), warning)
	}
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "  %s %s\n", color.YellowString("⚠"), warning)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "\n  %s %s\n", color.RedString("Error:"), r.Error)
	}
}
