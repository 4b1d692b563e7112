package runner

// RecordStore is the durable sink for completed run records. The runner
// appends in small batches so the in-memory working set stays bounded;
// implementations must keep the log append-only and tailable mid-run.
type RecordStore interface {
	// Append durably adds completed or failed records to the log.
	Append(records []*RunRecord) error

	// ReadAll returns every record logged for the experiment, in append
	// order.
	ReadAll(experimentID string) ([]*RunRecord, error)

	// Flush forces buffered writes to stable storage. Implementations
	// without buffering return nil.
	Flush() error
}

// NopStore discards nothing and stores nothing; it is the default when no
// durable log is configured, and the explicit no-op implementation of the
// store capability.
type NopStore struct{}

func (NopStore) Append([]*RunRecord) error { return nil }

func (NopStore) ReadAll(string) ([]*RunRecord, error) { return nil, nil }

func (NopStore) Flush() error { return nil }
