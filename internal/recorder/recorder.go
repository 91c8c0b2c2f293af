package recorder

import "time"

// RunRecord summarizes one daily update.
type RunRecord struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	AsOf        string
	Total       int
	Covered     int
	FeeUnknown  int
	Outcome     string // "persisted", "conflict", "transport_failure", "skipped"
	Attempts    int
	DatasetRows int
	Error       string
	FailedCodes []string
}

// Duration is the wall time of the run.
func (r RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Recorder persists run history for analysis.
type Recorder interface {
	RecordRun(rec *RunRecord) error
	RecentRuns(limit int) ([]RunRecord, error)
	Close() error
}
