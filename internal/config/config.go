package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jacklau/distscore/internal/distance"
)

// Config is the top-level configuration.
type Config struct {
	Defaults DefaultsConfig            `yaml:"defaults"`
	Store    StoreConfig               `yaml:"store"`
	Server   ServerConfig              `yaml:"server"`
	Scripts  map[string]map[string]any `yaml:"scripts"`

	scripts map[string]*distance.Params
}

// DefaultsConfig holds default operational parameters.
type DefaultsConfig struct {
	Workers           int    `yaml:"workers"`
	RequestTimeoutRaw string `yaml:"request_timeout"`
}

// StoreConfig holds storage settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	ReadTimeoutRaw string `yaml:"read_timeout"`
}

// RequestTimeout returns the parsed per-request scoring timeout.
func (d DefaultsConfig) RequestTimeout() (time.Duration, error) {
	if d.RequestTimeoutRaw == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(d.RequestTimeoutRaw)
}

// ReadTimeout returns the parsed HTTP read timeout.
func (s ServerConfig) ReadTimeout() (time.Duration, error) {
	if s.ReadTimeoutRaw == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(s.ReadTimeoutRaw)
}

// Script returns the validated parameters of a named script.
func (c *Config) Script(name string) (*distance.Params, bool) {
	p, ok := c.scripts[name]
	return p, ok
}

// ScriptNames returns the configured script names in sorted order.
func (c *Config) ScriptNames() []string {
	names := make([]string, 0, len(c.Scripts))
	for name := range c.Scripts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// envVarPattern matches ${VAR} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} placeholders with environment variable values.
// Returns an error if any referenced variable is not set.
func expandEnvVars(data []byte) ([]byte, error) {
	var missing []string

	result := envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		val, ok := os.LookupEnv(string(varName))
		if !ok {
			missing = append(missing, string(varName))
			return match
		}
		return []byte(val)
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

// Load reads and parses a config file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses config from raw YAML bytes, expanding env vars and validating.
// Every script is validated here so a bad parameter set fails at startup.
func Parse(data []byte) (*Config, error) {
	expanded, err := expandEnvVars(data)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// Default returns a config with every default applied and no scripts.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	cfg.scripts = map[string]*distance.Params{}
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Defaults.Workers == 0 {
		cfg.Defaults.Workers = 4
	}
	if cfg.Defaults.RequestTimeoutRaw == "" {
		cfg.Defaults.RequestTimeoutRaw = "30s"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "~/.distscore/distscore.db"
	}
	cfg.Store.Path = ExpandHome(cfg.Store.Path)
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8080"
	}
	if cfg.Server.ReadTimeoutRaw == "" {
		cfg.Server.ReadTimeoutRaw = "30s"
	}
}

func validate(cfg *Config) error {
	if cfg.Defaults.Workers < 0 {
		return fmt.Errorf("workers cannot be negative, got %d", cfg.Defaults.Workers)
	}

	// Validate durations parse correctly
	if _, err := time.ParseDuration(cfg.Defaults.RequestTimeoutRaw); err != nil {
		return fmt.Errorf("invalid request_timeout %q: %w", cfg.Defaults.RequestTimeoutRaw, err)
	}
	if _, err := time.ParseDuration(cfg.Server.ReadTimeoutRaw); err != nil {
		return fmt.Errorf("invalid read_timeout %q: %w", cfg.Server.ReadTimeoutRaw, err)
	}

	cfg.scripts = make(map[string]*distance.Params, len(cfg.Scripts))
	for _, name := range cfg.ScriptNames() {
		p, err := distance.Parse(cfg.Scripts[name])
		if err != nil {
			return fmt.Errorf("script %s: %w", name, err)
		}
		cfg.scripts[name] = p
	}

	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
