package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter distscore configuration",
	Long: `Creates a configuration file with default settings and two example
scripts. An existing file is left alone unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := cfgFile
	if configPath == "" {
		configPath = defaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		if !initForce {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(starterConfig), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", configPath)
	return nil
}

const starterConfig = `# distscore configuration
#
# Values may reference environment variables as ${VAR}; a .env file in the
# working directory is loaded first.

defaults:
  workers: 4
  request_timeout: 30s

store:
  path: ~/.distscore/distscore.db

server:
  addr: 127.0.0.1:8080
  read_timeout: 30s

# Each script is a parameter set:
#   reference      field name -> integers, either a separated string or a list
#   separator      token separator for string values (default ",")
#   distance_type  euclidean (default) or cosine
#   scale          digits after the decimal point in the result (default 2)
scripts:
  nearest:
    reference:
      location: "1,2,3"
  similar:
    reference:
      embedding: "3,4"
    distance_type: cosine
    scale: 4
`
