package experiment

import (
	"fmt"
	"math/rand"

	"github.com/quantlab/strategy-search/internal/errors"
)

// Expand turns the configured parameter space into the retained list of
// concrete assignments according to the expansion mode. The result is
// deterministic for grid and list modes, and for random mode whenever a
// seed is set.
func Expand(cfg *Config) ([]Params, error) {
	switch cfg.Mode {
	case ModeGrid:
		return expandGrid(cfg)
	case ModeRandom:
		return expandRandom(cfg)
	case ModeList:
		out := make([]Params, len(cfg.Combinations))
		for i, combo := range cfg.Combinations {
			out[i] = combo.Clone()
		}
		return out, nil
	default:
		return nil, errors.NewConfigurationError("expander", "expand",
			fmt.Sprintf("unknown expansion mode %q", cfg.Mode))
	}
}

// Tasks cross-multiplies the retained assignments with the configured
// symbols into the flat task list the batch runner consumes.
func Tasks(cfg *Config) ([]Task, error) {
	assignments, err := Expand(cfg)
	if err != nil {
		return nil, err
	}
	return CrossSymbols(cfg.Symbols, assignments), nil
}

// CrossSymbols builds one task per (symbol, assignment) pair, preserving
// symbol order then assignment order.
func CrossSymbols(symbols []string, assignments []Params) []Task {
	tasks := make([]Task, 0, len(symbols)*len(assignments))
	for _, symbol := range symbols {
		for _, assignment := range assignments {
			tasks = append(tasks, Task{Symbol: symbol, Params: assignment.Clone()})
		}
	}
	return tasks
}

// expandGrid materializes the full Cartesian product in sorted
// parameter-name order. When the product exceeds max_combinations it is
// down-sampled by fixed stride, never randomly, so repeated grid runs stay
// identical.
func expandGrid(cfg *Config) ([]Params, error) {
	names := cfg.ParameterNames()
	axes := make([][]any, len(names))
	total := 1
	for i, name := range names {
		axes[i] = cfg.Parameters[name].Expand()
		total *= len(axes[i])
	}

	// An empty parameter map yields exactly one assignment: strategy
	// defaults.
	if len(names) == 0 {
		return []Params{{}}, nil
	}

	if cfg.MaxCombinations > 0 && total > cfg.MaxCombinations {
		return decodeIndices(names, axes, strideIndices(total, cfg.MaxCombinations)), nil
	}

	indices := make([]int, total)
	for i := range indices {
		indices[i] = i
	}
	return decodeIndices(names, axes, indices), nil
}

// expandRandom draws sample_size (or max_combinations) assignments without
// replacement from the full product. Combinations are addressed by
// mixed-radix index so the product is never materialized.
func expandRandom(cfg *Config) ([]Params, error) {
	names := cfg.ParameterNames()
	axes := make([][]any, len(names))
	total := 1
	for i, name := range names {
		axes[i] = cfg.Parameters[name].Expand()
		total *= len(axes[i])
	}
	if len(names) == 0 {
		return []Params{{}}, nil
	}

	want := cfg.SampleSize
	if want == 0 {
		want = cfg.MaxCombinations
	}
	if want >= total {
		indices := make([]int, total)
		for i := range indices {
			indices[i] = i
		}
		return decodeIndices(names, axes, indices), nil
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	seen := make(map[int]struct{}, want)
	indices := make([]int, 0, want)
	for len(indices) < want {
		idx := rng.Intn(total)
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		indices = append(indices, idx)
	}
	return decodeIndices(names, axes, indices), nil
}

// strideIndices picks exactly want evenly spaced indices out of total.
func strideIndices(total, want int) []int {
	indices := make([]int, want)
	for i := range indices {
		indices[i] = i * total / want
	}
	return indices
}

// decodeIndices converts flat product indices into assignments. The last
// parameter name varies fastest.
func decodeIndices(names []string, axes [][]any, indices []int) []Params {
	out := make([]Params, 0, len(indices))
	for _, idx := range indices {
		assignment := make(Params, len(names))
		rem := idx
		for i := len(names) - 1; i >= 0; i-- {
			axis := axes[i]
			assignment[names[i]] = axis[rem%len(axis)]
			rem /= len(axis)
		}
		out = append(out, assignment)
	}
	return out
}

// GridSize returns the size of the full Cartesian product before any
// down-sampling.
func GridSize(cfg *Config) int {
	total := 1
	for _, r := range cfg.Parameters {
		total *= r.Size()
	}
	return total
}
