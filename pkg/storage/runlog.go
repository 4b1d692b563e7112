package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/quantlab/strategy-search/internal/errors"
	"github.com/quantlab/strategy-search/pkg/runner"
)

// RunLog persists run records as an append-only JSONL file per experiment,
// one record per line. The file is safe to tail while an experiment is
// still running: lines are written whole and synced on Flush.
type RunLog struct {
	dir string

	mu    sync.Mutex
	files map[string]*os.File
}

// NewRunLog creates a run log rooted at dir.
func NewRunLog(dir string) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewStorageError("runlog", "init", err)
	}
	return &RunLog{
		dir:   dir,
		files: make(map[string]*os.File),
	}, nil
}

// Path returns the log file location for an experiment.
func (l *RunLog) Path(experimentID string) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s.runs.jsonl", experimentID))
}

// Append durably adds records to their experiments' logs. Records for
// multiple experiments may be mixed in one call.
func (l *RunLog) Append(records []*runner.RunRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, rec := range records {
		f, err := l.file(rec.ExperimentID)
		if err != nil {
			return err
		}
		line, err := json.Marshal(rec)
		if err != nil {
			return errors.NewStorageError("runlog", "append", err)
		}
		line = append(line, '\n')
		if _, err := f.Write(line); err != nil {
			return errors.NewStorageError("runlog", "append", err)
		}
	}
	return nil
}

// ReadAll returns every record logged for the experiment in append order.
// A missing log file means no records yet, not an error.
func (l *RunLog) ReadAll(experimentID string) ([]*runner.RunRecord, error) {
	f, err := os.Open(l.Path(experimentID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStorageError("runlog", "read_all", err)
	}
	defer f.Close()

	var records []*runner.RunRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec runner.RunRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, errors.NewStorageError("runlog", "read_all", err)
		}
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewStorageError("runlog", "read_all", err)
	}
	return records, nil
}

// Flush syncs all open log files to stable storage.
func (l *RunLog) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, f := range l.files {
		if err := f.Sync(); err != nil {
			return errors.NewStorageError("runlog", "flush", err)
		}
	}
	return nil
}

// Close flushes and closes all open log files.
func (l *RunLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for id, f := range l.files {
		if err := f.Sync(); err != nil && firstErr == nil {
			firstErr = errors.NewStorageError("runlog", "close", err)
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = errors.NewStorageError("runlog", "close", err)
		}
		delete(l.files, id)
	}
	return firstErr
}

func (l *RunLog) file(experimentID string) (*os.File, error) {
	if f, ok := l.files[experimentID]; ok {
		return f, nil
	}
	f, err := os.OpenFile(l.Path(experimentID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.NewStorageError("runlog", "open", err)
	}
	l.files[experimentID] = f
	return f, nil
}
