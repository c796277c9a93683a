package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jacklau/distscore/internal/config"
	"github.com/jacklau/distscore/internal/metrics"
	"github.com/jacklau/distscore/internal/pipeline"
	"github.com/jacklau/distscore/internal/store"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "distscore",
	Short: "Score documents by vector distance to a reference",
	Long: `Distscore compares integer vectors stored in documents against a
reference vector using Euclidean distance or cosine similarity, with
decimal arithmetic and round-half-up results.

Parameter sets ("scripts") are defined in the config file or passed
inline. Documents can be loaded into a local store, scored from a
JSONL file, or scored over HTTP with 'distscore serve'.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(loadDotEnv)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default %s)", defaultConfigPath()))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// loadDotEnv loads a .env file from the working directory, if present, so
// ${VAR} placeholders in the config can be set there.
func loadDotEnv() {
	_ = godotenv.Load()
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".distscore/config.yaml"
	}
	return home + "/.distscore/config.yaml"
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// loadConfig reads the config file. A missing default config is not an
// error; the built-in defaults are used instead. An explicit --config path
// must exist.
func loadConfig(logger *slog.Logger) (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = defaultConfigPath()
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			logger.Debug("no config file found, using defaults", "path", path)
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

// components holds initialized components for use by subcommands.
type components struct {
	Config   *config.Config
	Store    *store.DB
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Pipeline *pipeline.Pipeline
	Logger   *slog.Logger
}

// initComponents creates all components from config. workers overrides the
// configured worker count when positive.
func initComponents(cfg *config.Config, logger *slog.Logger, workers int) (*components, error) {
	c := &components{
		Config: cfg,
		Logger: logger,
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	c.Store = db

	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = metrics.New(c.Registry)

	if workers <= 0 {
		workers = cfg.Defaults.Workers
	}
	c.Pipeline = pipeline.New(pipeline.Deps{
		Store:   db,
		Metrics: c.Metrics,
		Logger:  logger,
		Workers: workers,
	})

	return c, nil
}
