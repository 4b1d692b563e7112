package experiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/strategy-search/pkg/types"
)

func baseConfig() *Config {
	return &Config{
		Name:      "rsi-sweep",
		Strategy:  "rsi-mean-reversion",
		Symbols:   []string{"BTCUSDT", "ETHUSDT"},
		Timeframe: "1h",
		Mode:      ModeGrid,
		Parameters: map[string]*ParameterRange{
			"rsi_period": ListRange(10, 14, 20),
			"oversold":   StepRange(20, 35, 5),
		},
		Execution: types.ExecutionDefaults{
			InitialCapital: 10000,
			FeeRate:        0.001,
			Leverage:       1,
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := baseConfig()
	require.NoError(t, cfg.Validate())
}

func TestConfig_ValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing name", func(c *Config) { c.Name = "" }},
		{"missing strategy", func(c *Config) { c.Strategy = "" }},
		{"no symbols", func(c *Config) { c.Symbols = nil }},
		{"blank symbol", func(c *Config) { c.Symbols = []string{"BTCUSDT", " "} }},
		{"missing timeframe", func(c *Config) { c.Timeframe = "" }},
		{"missing mode", func(c *Config) { c.Mode = "" }},
		{"unknown mode", func(c *Config) { c.Mode = "genetic" }},
		{"negative max_combinations", func(c *Config) { c.MaxCombinations = -1 }},
		{"random without budget", func(c *Config) { c.Mode = ModeRandom }},
		{"list without combinations", func(c *Config) { c.Mode = ModeList }},
		{"nil range", func(c *Config) { c.Parameters["broken"] = nil }},
		{"invalid range", func(c *Config) { c.Parameters["broken"] = StepRange(10, 5, 1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_IDIsDeterministic(t *testing.T) {
	a := baseConfig()
	b := baseConfig()
	assert.Equal(t, a.ID(), b.ID())
	assert.Len(t, a.ID(), 16)
}

func TestConfig_IDIgnoresSymbolOrder(t *testing.T) {
	a := baseConfig()
	b := baseConfig()
	b.Symbols = []string{"ETHUSDT", "BTCUSDT"}
	assert.Equal(t, a.ID(), b.ID())
}

func TestConfig_IDChangesWithIdentifyingFields(t *testing.T) {
	base := baseConfig().ID()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"name", func(c *Config) { c.Name = "other" }},
		{"strategy", func(c *Config) { c.Strategy = "macd" }},
		{"timeframe", func(c *Config) { c.Timeframe = "4h" }},
		{"symbols", func(c *Config) { c.Symbols = []string{"BTCUSDT"} }},
		{"mode", func(c *Config) { c.Mode = ModeRandom; c.SampleSize = 10 }},
		{"parameter values", func(c *Config) { c.Parameters["rsi_period"] = ListRange(10, 14, 21) }},
		{"new parameter", func(c *Config) { c.Parameters["tp"] = StepRange(0.01, 0.05, 0.01) }},
		{"seed", func(c *Config) { c.Seed = 7 }},
		{"execution", func(c *Config) { c.Execution.FeeRate = 0.002 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(cfg)
			assert.NotEqual(t, base, cfg.ID())
		})
	}
}

func TestConfig_IDIgnoresTags(t *testing.T) {
	a := baseConfig()
	b := baseConfig()
	b.Tags = map[string]string{"owner": "research", "ticket": "Q-123"}
	assert.Equal(t, a.ID(), b.ID())
}

func TestConfig_ParameterNamesSorted(t *testing.T) {
	cfg := baseConfig()
	assert.Equal(t, []string{"oversold", "rsi_period"}, cfg.ParameterNames())
}
