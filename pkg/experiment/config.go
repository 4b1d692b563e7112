package experiment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/quantlab/strategy-search/internal/errors"
	"github.com/quantlab/strategy-search/pkg/types"
)

// ExpansionMode selects how the parameter space turns into concrete
// assignments.
type ExpansionMode string

const (
	ModeGrid   ExpansionMode = "grid"
	ModeRandom ExpansionMode = "random"
	ModeList   ExpansionMode = "list"
)

// Config is one declarative experiment: the parameter space, the symbols to
// cross it with, and the execution defaults forwarded to every backtest
// call. Immutable once validated; persisted next to results so any run is
// reproducible from its summary alone.
type Config struct {
	Name      string                     `json:"name" yaml:"name"`
	Strategy  string                     `json:"strategy" yaml:"strategy"`
	Symbols   []string                   `json:"symbols" yaml:"symbols"`
	Timeframe string                     `json:"timeframe" yaml:"timeframe"`

	Parameters map[string]*ParameterRange `json:"parameters,omitempty" yaml:"parameters,omitempty"`

	Mode            ExpansionMode `json:"mode" yaml:"mode"`
	MaxCombinations int           `json:"max_combinations,omitempty" yaml:"max_combinations,omitempty"`
	SampleSize      int           `json:"sample_size,omitempty" yaml:"sample_size,omitempty"`
	Seed            int64         `json:"seed,omitempty" yaml:"seed,omitempty"`

	// Combinations holds the literal assignments used by list mode.
	Combinations []Params `json:"combinations,omitempty" yaml:"combinations,omitempty"`

	Execution types.ExecutionDefaults `json:"execution" yaml:"execution"`

	// Tags are free-form annotations; they do not participate in the
	// derived identifier.
	Tags map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Validate checks the config invariants. All violations are configuration
// errors, fatal at load time and never silently coerced.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.NewConfigurationError("experiment", "validate", "experiment name is required")
	}
	if c.Strategy == "" {
		return errors.NewConfigurationError("experiment", "validate", "strategy id is required")
	}
	if len(c.Symbols) == 0 {
		return errors.NewConfigurationError("experiment", "validate", "at least one symbol is required")
	}
	for _, s := range c.Symbols {
		if strings.TrimSpace(s) == "" {
			return errors.NewConfigurationError("experiment", "validate", "empty symbol in symbol list")
		}
	}
	if c.Timeframe == "" {
		return errors.NewConfigurationError("experiment", "validate", "timeframe is required")
	}

	switch c.Mode {
	case ModeGrid, ModeRandom:
	case ModeList:
		if len(c.Combinations) == 0 {
			return errors.NewConfigurationError("experiment", "validate", "list mode requires literal combinations")
		}
	case "":
		return errors.NewConfigurationError("experiment", "validate", "expansion mode is required")
	default:
		return errors.NewConfigurationError("experiment", "validate",
			fmt.Sprintf("unknown expansion mode %q", c.Mode))
	}

	if c.MaxCombinations < 0 {
		return errors.NewConfigurationError("experiment", "validate", "max_combinations must not be negative")
	}
	if c.SampleSize < 0 {
		return errors.NewConfigurationError("experiment", "validate", "sample_size must not be negative")
	}
	if c.Mode == ModeRandom && c.SampleSize == 0 && c.MaxCombinations == 0 {
		return errors.NewConfigurationError("experiment", "validate",
			"random mode requires sample_size or max_combinations")
	}

	for name, r := range c.Parameters {
		if r == nil {
			return errors.NewConfigurationError("experiment", "validate",
				fmt.Sprintf("parameter %q has no range", name))
		}
		if err := r.Validate(name); err != nil {
			return err
		}
	}
	return nil
}

// ID derives the stable content-hash identifier of the configuration.
// Symbols and parameters are sorted and scalars canonically formatted
// before hashing, so semantically equal configs always collide and a change
// to any identifying field produces a different ID. Tags are annotation
// only and excluded.
func (c *Config) ID() string {
	var b strings.Builder

	b.WriteString("name=")
	b.WriteString(c.Name)
	b.WriteString(";strategy=")
	b.WriteString(c.Strategy)
	b.WriteString(";timeframe=")
	b.WriteString(c.Timeframe)
	b.WriteString(";mode=")
	b.WriteString(string(c.Mode))

	symbols := append([]string(nil), c.Symbols...)
	sort.Strings(symbols)
	b.WriteString(";symbols=")
	b.WriteString(strings.Join(symbols, ","))

	fmt.Fprintf(&b, ";max=%d;sample=%d;seed=%d", c.MaxCombinations, c.SampleSize, c.Seed)

	names := make([]string, 0, len(c.Parameters))
	for name := range c.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	b.WriteString(";params=")
	for _, name := range names {
		b.WriteString(name)
		b.WriteString(":")
		b.WriteString(canonicalRange(c.Parameters[name]))
		b.WriteString("|")
	}

	b.WriteString(";combos=")
	for _, combo := range c.Combinations {
		b.WriteString(combo.Key())
		b.WriteString("|")
	}

	fmt.Fprintf(&b, ";exec=%s,%s,%s,%s,%s",
		formatFloat(c.Execution.InitialCapital),
		formatFloat(c.Execution.FeeRate),
		formatFloat(c.Execution.Leverage),
		formatFloat(c.Execution.StopLoss),
		formatFloat(c.Execution.TakeProfit))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:16]
}

// ParameterNames returns the parameter names in sorted order, the canonical
// expansion order used everywhere combinations are enumerated.
func (c *Config) ParameterNames() []string {
	names := make([]string, 0, len(c.Parameters))
	for name := range c.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func canonicalRange(r *ParameterRange) string {
	if r == nil {
		return ""
	}
	if len(r.Values) > 0 {
		parts := make([]string, len(r.Values))
		for i, v := range r.Values {
			parts[i] = canonicalValue(v)
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	return fmt.Sprintf("{start=%s,stop=%s,step=%s,count=%d,log=%t}",
		formatFloatPtr(r.Start), formatFloatPtr(r.Stop), formatFloatPtr(r.Step), r.Count, r.Log)
}

func formatFloatPtr(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}
