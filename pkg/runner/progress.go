package runner

import (
	"sync"
	"time"
)

// ProgressTracker tracks completion of a batch.
type ProgressTracker struct {
	total     int
	completed int
	failed    int
	startTime time.Time
	mutex     sync.RWMutex
}

// NewProgressTracker creates a tracker for a batch of the given size.
func NewProgressTracker(total int) *ProgressTracker {
	return &ProgressTracker{
		total:     total,
		startTime: time.Now(),
	}
}

// Increment records one finished task.
func (pt *ProgressTracker) Increment(failed bool) {
	pt.mutex.Lock()
	defer pt.mutex.Unlock()
	pt.completed++
	if failed {
		pt.failed++
	}
}

// Snapshot returns completed, failed, total, percentage and elapsed time.
func (pt *ProgressTracker) Snapshot() (int, int, int, float64, time.Duration) {
	pt.mutex.RLock()
	defer pt.mutex.RUnlock()

	elapsed := time.Since(pt.startTime)
	progress := 0.0
	if pt.total > 0 {
		progress = float64(pt.completed) / float64(pt.total) * 100
	}
	return pt.completed, pt.failed, pt.total, progress, elapsed
}

// EstimateTimeRemaining extrapolates from the average task duration so far.
func (pt *ProgressTracker) EstimateTimeRemaining() time.Duration {
	pt.mutex.RLock()
	defer pt.mutex.RUnlock()

	if pt.completed == 0 {
		return 0
	}
	elapsed := time.Since(pt.startTime)
	avgPerItem := elapsed / time.Duration(pt.completed)
	remaining := pt.total - pt.completed
	return avgPerItem * time.Duration(remaining)
}
