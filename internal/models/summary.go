package models

import "time"

// RunState is a stage of a tracking run.
type RunState int

const (
	StateIdle RunState = iota
	StateFetching
	StateReconciling
	StateCommitting
	StateDone
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateReconciling:
		return "reconciling"
	case StateCommitting:
		return "committing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stages at which a batch can fail.
const (
	StageFetch     = "fetch"
	StageRead      = "read"
	StageReconcile = "reconcile"
	StageCommit    = "commit"
)

// Failure records a product or a batch that could not be processed.
type Failure struct {
	Batch      int
	ProductIDs []string
	Stage      string
	Reason     string
}

// RunSummary aggregates the outcome of one run.
type RunSummary struct {
	RunID      string
	Mode       string
	State      RunState
	Reason     string
	StartedAt  time.Time
	FinishedAt time.Time

	Requested       int
	Fetched         int
	FailedFetch     int
	Inserted        int
	Updated         int
	HistoryAppended int
	SkippedExisting int
	Deleted         int
	NotFound        int
	Repaired        int

	// NoOp is set when add or delete had nothing to act on.
	NoOp bool

	Failures []Failure
	Drops    []PriceDrop
}

// Duration returns how long the run took.
func (s *RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
