package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jacklau/distscore/internal/store"
)

// maxLineBytes bounds a single JSONL record.
const maxLineBytes = 16 << 20

var loadCmd = &cobra.Command{
	Use:   "load <file.jsonl>",
	Short: "Load documents into the store",
	Long: `Load reads one JSON object per line, each of the form
{"id": "...", "source": {...}}, and inserts or replaces the document
with that id. Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	docs, err := readDocumentsFile(args[0])
	if err != nil {
		return err
	}

	c, err := initComponents(cfg, logger, 0)
	if err != nil {
		return fmt.Errorf("initializing components: %w", err)
	}
	defer c.Store.Close()

	for i := range docs {
		if err := c.Store.UpsertDocument(&docs[i]); err != nil {
			return fmt.Errorf("storing document %s: %w", docs[i].ID, err)
		}
	}

	logger.Info("documents loaded", "count", len(docs), "store", cfg.Store.Path)
	fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d documents\n", len(docs))
	return nil
}

func readDocumentsFile(path string) ([]store.Document, error) {
	if path == "-" {
		return readDocuments(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening documents: %w", err)
	}
	defer f.Close()
	return readDocuments(f)
}

// readDocuments parses JSONL documents. Blank lines are skipped; numbers are
// kept as json.Number so integers beyond 2^53 survive.
func readDocuments(r io.Reader) ([]store.Document, error) {
	var docs []store.Document
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var doc struct {
			ID     string         `json:"id"`
			Source map[string]any `json:"source"`
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if doc.ID == "" {
			return nil, fmt.Errorf("line %d: missing id", line)
		}
		if doc.Source == nil {
			doc.Source = map[string]any{}
		}
		docs = append(docs, store.Document{ID: doc.ID, Source: doc.Source})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}
	return docs, nil
}
