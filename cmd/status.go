package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusRuns int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store statistics and recent runs",
	Long: `Display the number of stored documents, runs and scores, the most
recent score runs, the configured scripts, and the database size.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusRuns, "runs", 10, "number of recent runs to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	c, err := initComponents(cfg, logger, 0)
	if err != nil {
		return fmt.Errorf("initializing components: %w", err)
	}
	defer c.Store.Close()

	stats, err := c.Store.GetStats()
	if err != nil {
		return fmt.Errorf("querying stats: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Documents: %d\n", stats.DocumentCount)
	fmt.Fprintf(out, "Runs:      %d\n", stats.RunCount)
	fmt.Fprintf(out, "Scores:    %d\n", stats.ScoreCount)
	if names := cfg.ScriptNames(); len(names) > 0 {
		fmt.Fprintf(out, "Scripts:   %v\n", names)
	}

	if stats.RunCount == 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "No score runs yet.")
		fmt.Fprintln(out, "Run 'distscore load <file.jsonl>' and 'distscore score --script <name>' to get started.")
	} else {
		runs, err := c.Store.ListRuns(statusRuns)
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}

		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tSCRIPT\tSCORED\tFAILED\tSTARTED")
		fmt.Fprintln(w, "---\t------\t------\t------\t-------")
		for _, r := range runs {
			script := r.Script
			if script == "" {
				script = "(inline)"
			}
			started := formatTimeAgo(r.StartedAt)
			if r.FinishedAt == nil {
				started += " (unfinished)"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", r.ID, script, r.Scored, r.Failed, started)
		}
		w.Flush()
	}

	fmt.Fprintln(out)
	dbSize, err := dbFileSize(cfg.Store.Path)
	if err != nil {
		fmt.Fprintf(out, "Database: %s (size unknown)\n", cfg.Store.Path)
	} else {
		fmt.Fprintf(out, "Database: %s (%s)\n", cfg.Store.Path, formatBytes(dbSize))
	}

	return nil
}

// formatTimeAgo formats a time as a human-readable relative string.
func formatTimeAgo(t time.Time) string {
	d := time.Since(t)

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute")
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour")
	default:
		return plural(int(d.Hours()/24), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// formatBytes formats bytes into a human-readable string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// dbFileSize returns the size in bytes of the database file. The path has
// already had ~ expanded by the config loader.
func dbFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
