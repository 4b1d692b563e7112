package experiment

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/quantlab/strategy-search/internal/errors"
)

// Environment variables that overlay execution defaults when the document
// leaves them unset. A .env file in the working directory is honored.
const (
	EnvInitialCapital = "STRATEGY_SEARCH_INITIAL_CAPITAL"
	EnvFeeRate        = "STRATEGY_SEARCH_FEE_RATE"
	EnvLeverage       = "STRATEGY_SEARCH_LEVERAGE"
)

// LoadFile reads a declarative experiment document. The format follows the
// file extension: .yaml/.yml or .json. The returned config is validated;
// any violation is a configuration error.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorCategoryConfiguration, "experiment", "load_file")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return Parse(data, FormatYAML)
	case ".json":
		return Parse(data, FormatJSON)
	default:
		return nil, errors.NewConfigurationError("experiment", "load_file",
			fmt.Sprintf("unsupported experiment document format %q", filepath.Ext(path)))
	}
}

// Format identifies an experiment document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Parse decodes, applies environment defaults, and validates a document.
func Parse(data []byte, format Format) (*Config, error) {
	var cfg Config
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrorCategoryConfiguration, "experiment", "parse")
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrorCategoryConfiguration, "experiment", "parse")
		}
	default:
		return nil, errors.NewConfigurationError("experiment", "parse",
			fmt.Sprintf("unsupported format %q", format))
	}

	applyEnvDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config back out in the format matching the extension.
// A saved-then-loaded config always reproduces the identical derived ID.
func Save(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	default:
		return errors.NewConfigurationError("experiment", "save",
			fmt.Sprintf("unsupported experiment document format %q", filepath.Ext(path)))
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorCategoryConfiguration, "experiment", "save")
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.NewStorageError("experiment", "save", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnvDefaults fills execution defaults the document left at zero from
// the process environment, loading a .env file first when present.
func applyEnvDefaults(cfg *Config) {
	// Missing .env is the normal case, not an error.
	_ = godotenv.Load()

	if cfg.Execution.InitialCapital == 0 {
		if v, ok := envFloat(EnvInitialCapital); ok {
			cfg.Execution.InitialCapital = v
		}
	}
	if cfg.Execution.FeeRate == 0 {
		if v, ok := envFloat(EnvFeeRate); ok {
			cfg.Execution.FeeRate = v
		}
	}
	if cfg.Execution.Leverage == 0 {
		if v, ok := envFloat(EnvLeverage); ok {
			cfg.Execution.Leverage = v
		}
	}
}

func envFloat(key string) (float64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
