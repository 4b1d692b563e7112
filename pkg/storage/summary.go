package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quantlab/strategy-search/internal/errors"
	"github.com/quantlab/strategy-search/pkg/runner"
)

// WriteSummary writes the one-per-experiment summary document: the full
// configuration, every run record, derived totals and the best-run
// pointer. Written once at completion; the run log carries the mid-run
// state.
func WriteSummary(dir string, result *runner.Result) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("%s.summary.json", result.ExperimentID))
	if err := WriteDocument(path, result); err != nil {
		return "", err
	}
	return path, nil
}

// LoadSummary reads a previously written experiment summary.
func LoadSummary(path string) (*runner.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewStorageError("summary", "load", err)
	}
	var result runner.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, errors.NewStorageError("summary", "load", err)
	}
	return &result, nil
}

// WriteDocument writes any result document as indented JSON, creating
// parent directories as needed.
func WriteDocument(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.NewStorageError("summary", "marshal", err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.NewStorageError("summary", "write", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.NewStorageError("summary", "write", err)
	}
	return nil
}
