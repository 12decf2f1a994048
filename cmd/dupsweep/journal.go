package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/dupsweep/internal/config"
	"github.com/steveyegge/dupsweep/internal/storage"
	"github.com/steveyegge/dupsweep/internal/types"
)

func NewJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show past runs and their relocations",
		Long: `List past runs, newest first, or every relocation of one run.

Examples:
  dupsweep journal                       # Last 20 runs
  dupsweep journal --status aborted      # Only aborted runs
  dupsweep journal --run <run-id>        # Relocations of one run
  dupsweep journal prune                 # Apply the retention policy`,
		Args: cobra.NoArgs,
		RunE: runJournal,
	}
	cmd.Flags().String("run", "", "Show the relocations of this run")
	cmd.Flags().String("status", "", "Only list runs with this status (running, completed, aborted)")
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 for all)")

	cmd.AddCommand(newJournalPruneCmd())
	return cmd
}

func newJournalPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old runs from the journal",
		Long: `Delete finished runs older than journal.retention.max_age and all but the
newest journal.retention.keep_runs finished runs. Runs still in progress are
never deleted.`,
		Args: cobra.NoArgs,
		RunE: runJournalPrune,
	}
	cmd.Flags().String("max-age", "", "Override journal.retention.max_age (e.g. 30d, 12w, 720h)")
	cmd.Flags().Int("keep", -1, "Override journal.retention.keep_runs (0 for unlimited)")
	cmd.Flags().Bool("vacuum", false, "Run VACUUM after pruning")
	return cmd
}

func openJournal(cmd *cobra.Command) (*config.Config, storage.Journal, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	journal, err := storage.NewJournal(cmd.Context(), storage.Config{Path: cfg.Journal.Path})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return cfg, journal, nil
}

func runJournal(cmd *cobra.Command, _ []string) error {
	_, journal, err := openJournal(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = journal.Close() }()

	asJSON, _ := cmd.Flags().GetBool("json")
	ctx := cmd.Context()

	if runID, _ := cmd.Flags().GetString("run"); runID != "" {
		run, err := journal.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		relocations, err := journal.ListRelocations(ctx, runID)
		if err != nil {
			return err
		}
		if asJSON {
			if relocations == nil {
				relocations = []*types.Relocation{}
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"run":         run,
				"relocations": relocations,
			})
		}
		printRun(cmd.OutOrStdout(), run)
		printRelocations(cmd.OutOrStdout(), relocations)
		return nil
	}

	filter := types.RunFilter{}
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	if s, _ := cmd.Flags().GetString("status"); s != "" {
		status := types.RunStatus(s)
		if !status.IsValid() {
			return fmt.Errorf("invalid status %q (want running, completed or aborted)", s)
		}
		filter.Status = &status
	}

	runs, err := journal.ListRuns(ctx, filter)
	if err != nil {
		return err
	}
	if asJSON {
		if runs == nil {
			runs = []*types.Run{}
		}
		return writeJSON(cmd.OutOrStdout(), runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}
	for _, run := range runs {
		printRunLine(cmd.OutOrStdout(), run)
	}
	return nil
}

func runJournalPrune(cmd *cobra.Command, _ []string) error {
	cfg, journal, err := openJournal(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = journal.Close() }()

	retention := cfg.Journal.Retention
	if cmd.Flags().Changed("max-age") {
		retention.MaxAge, _ = cmd.Flags().GetString("max-age")
	}
	if cmd.Flags().Changed("keep") {
		retention.KeepRuns, _ = cmd.Flags().GetInt("keep")
	}
	if cmd.Flags().Changed("vacuum") {
		retention.Vacuum, _ = cmd.Flags().GetBool("vacuum")
	}
	if err := retention.Validate(); err != nil {
		return fmt.Errorf("invalid retention: %w", err)
	}

	res, err := pruneJournal(cmd.Context(), journal, retention)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Pruned %d run(s) by age and %d by count\n",
		color.GreenString("✓"), res.ByAge, res.ByCount)
	if res.Vacuumed {
		fmt.Fprintf(cmd.OutOrStdout(), "%s Vacuumed database\n", color.GreenString("✓"))
	}
	return nil
}

// pruneResult is what one retention pass deleted.
type pruneResult struct {
	ByAge    int  `json:"by_age"`
	ByCount  int  `json:"by_count"`
	Vacuumed bool `json:"vacuumed"`
}

// pruneJournal applies retention: age first, then count, then an optional
// VACUUM. retention must already be valid.
func pruneJournal(ctx context.Context, journal storage.Journal, retention config.JournalRetentionConfig) (pruneResult, error) {
	var res pruneResult

	if maxAge := retention.MaxAgeDuration(); maxAge > 0 {
		n, err := journal.PruneRunsByAge(ctx, time.Now().Add(-maxAge), retention.BatchSize)
		if err != nil {
			return res, fmt.Errorf("failed to prune runs by age: %w", err)
		}
		res.ByAge = n
	}

	if retention.KeepRuns > 0 {
		n, err := journal.PruneRunsByCount(ctx, retention.KeepRuns, retention.BatchSize)
		if err != nil {
			return res, fmt.Errorf("failed to prune runs by count: %w", err)
		}
		res.ByCount = n
	}

	if retention.Vacuum && res.ByAge+res.ByCount > 0 {
		if err := journal.VacuumDatabase(ctx); err != nil {
			return res, fmt.Errorf("failed to vacuum journal: %w", err)
		}
		res.Vacuumed = true
	}
	return res, nil
}

func statusGlyph(status types.RunStatus) string {
	switch status {
	case types.RunCompleted:
		return color.GreenString("✓")
	case types.RunAborted:
		return color.RedString("✗")
	default:
		return color.YellowString("…")
	}
}

// printRunLine prints one run as a single summary line
func printRunLine(w io.Writer, run *types.Run) {
	mode := ""
	if run.DryRun {
		mode = color.YellowString(" dry-run")
	}
	fmt.Fprintf(w, "%s %s  %s  %d files, %d dupes, %d moved%s\n",
		statusGlyph(run.Status),
		color.CyanString(run.ID),
		run.StartedAt.Local().Format("2006-01-02 15:04"),
		run.Files, run.Duplicates, run.Relocated, mode,
	)
}

// printRun prints the details of one run
func printRun(w io.Writer, run *types.Run) {
	fmt.Fprintf(w, "%s Run %s (%s)\n", statusGlyph(run.Status), color.CyanString(run.ID), run.Status)
	fmt.Fprintf(w, "  Roots:       %v\n", run.Roots)
	fmt.Fprintf(w, "  Target:      %s\n", run.Target)
	fmt.Fprintf(w, "  Threshold:   %.4f\n", run.Threshold)
	fmt.Fprintf(w, "  Started:     %s\n", run.StartedAt.Local().Format(time.RFC3339))
	if d := run.Duration(); d > 0 {
		fmt.Fprintf(w, "  Duration:    %s\n", d.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "  Files:       %d (%d embedded, %d failed)\n", run.Files, run.Embedded, run.Failed)
	fmt.Fprintf(w, "  Duplicates:  %d (%d moved, %d failed)\n", run.Duplicates, run.Relocated, run.RelocationFailures)
	if run.Error != "" {
		fmt.Fprintf(w, "  %s %s\n", color.RedString("Error:"), run.Error)
	}
}

// printRelocations prints one line per relocation
func printRelocations(w io.Writer, relocations []*types.Relocation) {
	if len(relocations) == 0 {
		fmt.Fprintln(w, "\nNo relocations recorded.")
		return
	}
	fmt.Fprintf(w, "\nRelocations (%d):\n", len(relocations))
	for _, rel := range relocations {
		if !rel.Succeeded() {
			fmt.Fprintf(w, "  %s %s: %s\n", color.RedString("✗"), rel.Duplicate, rel.Error)
			continue
		}
		verb := "copied to"
		if rel.DeletedSource {
			verb = "moved to"
		}
		fmt.Fprintf(w, "  %s %s %s %s (%.4f, duplicate of %s)\n",
			color.GreenString("✓"), rel.Duplicate, verb, rel.Destination,
			rel.Similarity, filepath.Base(rel.Original))
	}
}
