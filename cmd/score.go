package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jacklau/distscore/internal/config"
	"github.com/jacklau/distscore/internal/distance"
	"github.com/jacklau/distscore/internal/pipeline"
)

var (
	scoreScript   string
	scoreParams   string
	scoreInput    string
	scoreWorkers  int
	scoreJSON     bool
	scoreProgress bool
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score documents against a reference vector",
	Long: `Score evaluates every document against one parameter set, given either
as a configured script (--script) or inline JSON (--params).

Documents are read from --input (JSONL, "-" for stdin) or, without it,
from the store. A document that cannot be scored is reported with its
error code and does not stop the run.`,
	Example: `  distscore score --script nearest
  distscore score --params '{"reference":{"vec":"1,2,3"},"scale":4}' --input docs.jsonl`,
	Args: cobra.NoArgs,
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().StringVar(&scoreScript, "script", "", "name of a configured script")
	scoreCmd.Flags().StringVar(&scoreParams, "params", "", "inline parameters as a JSON object")
	scoreCmd.Flags().StringVar(&scoreInput, "input", "", "JSONL documents to score instead of the store")
	scoreCmd.Flags().IntVar(&scoreWorkers, "workers", 0, "number of concurrent workers (default from config)")
	scoreCmd.Flags().BoolVar(&scoreJSON, "json", false, "print results as JSON")
	scoreCmd.Flags().BoolVar(&scoreProgress, "progress", true, "show a progress bar on stderr")
	scoreCmd.MarkFlagsMutuallyExclusive("script", "params")
	scoreCmd.MarkFlagsOneRequired("script", "params")
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	params, raw, err := resolveParams(cfg, scoreScript, scoreParams)
	if err != nil {
		return err
	}

	c, err := initComponents(cfg, logger, scoreWorkers)
	if err != nil {
		return fmt.Errorf("initializing components: %w", err)
	}
	defer c.Store.Close()

	var docs []pipeline.Document
	if scoreInput != "" {
		stored, err := readDocumentsFile(scoreInput)
		if err != nil {
			return err
		}
		docs = pipeline.FromStore(stored)
	} else {
		stored, err := c.Store.ListDocuments()
		if err != nil {
			return fmt.Errorf("listing documents: %w", err)
		}
		docs = pipeline.FromStore(stored)
	}

	if len(docs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No documents to score.")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req := pipeline.Request{
		Script:    scoreScript,
		Raw:       raw,
		Params:    params,
		Documents: docs,
	}
	var bar *progressbar.ProgressBar
	if scoreProgress && !scoreJSON {
		bar = newScoreProgressBar(len(docs))
		req.OnProgress = func(done, total int) {
			_ = bar.Add(1)
		}
	}

	batch, err := c.Pipeline.Run(ctx, req)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return fmt.Errorf("scoring documents: %w", err)
	}

	if scoreJSON {
		return writeBatchJSON(cmd.OutOrStdout(), batch)
	}
	writeBatchTable(cmd.OutOrStdout(), batch)
	return nil
}

// resolveParams returns validated parameters from a configured script or an
// inline JSON object, together with the raw map recorded with the run.
func resolveParams(cfg *config.Config, script, inline string) (*distance.Params, map[string]any, error) {
	switch {
	case script != "" && inline != "":
		return nil, nil, fmt.Errorf("--script and --params are mutually exclusive")
	case script != "":
		p, ok := cfg.Script(script)
		if !ok {
			return nil, nil, fmt.Errorf("unknown script %q", script)
		}
		return p, cfg.Scripts[script], nil
	case inline != "":
		var raw map[string]any
		dec := json.NewDecoder(bytes.NewReader([]byte(inline)))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, fmt.Errorf("parsing --params: %w", err)
		}
		p, err := distance.Parse(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --params: %w", err)
		}
		return p, raw, nil
	default:
		return nil, nil, fmt.Errorf("one of --script or --params is required")
	}
}

func newScoreProgressBar(count int) *progressbar.ProgressBar {
	return progressbar.NewOptions(count,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Scoring"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

func writeBatchTable(out io.Writer, batch *pipeline.Batch) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCORE\tCODE\tERROR")
	fmt.Fprintln(w, "--\t-----\t----\t-----")
	for _, r := range batch.Results {
		score := "-"
		if r.Err == nil {
			score = strconv.FormatFloat(r.Score, 'f', -1, 64)
		}
		errMsg := ""
		if r.Err != nil {
			errMsg = r.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, score, r.Code(), errMsg)
	}
	w.Flush()

	fmt.Fprintln(out)
	if batch.RunID != "" {
		fmt.Fprintf(out, "Run %s: %d scored, %d failed\n", batch.RunID, batch.Scored, batch.Failed)
	} else {
		fmt.Fprintf(out, "%d scored, %d failed\n", batch.Scored, batch.Failed)
	}
}

type jsonResult struct {
	ID    string   `json:"id"`
	Score *float64 `json:"score,omitempty"`
	Code  string   `json:"code"`
	Error string   `json:"error,omitempty"`
}

func writeBatchJSON(out io.Writer, batch *pipeline.Batch) error {
	results := make([]jsonResult, len(batch.Results))
	for i, r := range batch.Results {
		results[i] = jsonResult{ID: r.ID, Code: r.Code()}
		if r.Err != nil {
			results[i].Error = r.Err.Error()
		} else {
			v := r.Score
			results[i].Score = &v
		}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		RunID   string       `json:"run_id,omitempty"`
		Scored  int          `json:"scored"`
		Failed  int          `json:"failed"`
		Results []jsonResult `json:"results"`
	}{batch.RunID, batch.Scored, batch.Failed, results})
}
