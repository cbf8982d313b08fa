// Package platform defines the job platform collaborator consumed by runwatch
// and its Databricks implementation.
package platform

import (
	"context"
	"time"
)

// ResultState is the terminal result of a run as reported by the platform.
type ResultState string

const (
	ResultSucceeded ResultState = "SUCCESS"
	ResultFailed    ResultState = "FAILED"
	ResultTimedOut  ResultState = "TIMEDOUT"
	ResultCanceled  ResultState = "CANCELED"
)

// Job is a named, recurring unit of scheduled work on the platform.
// Owned by the platform and referenced by id; immutable for the duration of a
// classification cycle.
type Job struct {
	ID    int64
	Name  string
	Owner string
}

// Run is one execution instance of a Job. runwatch never mutates a run, it
// only requests a repair action on it.
type Run struct {
	ID    int64
	JobID int64
	// EndTime is nil while the run has not terminated.
	EndTime *time.Time
	Result  ResultState
}

// FailedRun pairs a Job with a Run that satisfied the failure predicate for
// one classification window. Ephemeral; lives for one notification cycle.
type FailedRun struct {
	Job Job
	Run Run
}

// Client is the job platform surface runwatch consumes. Listing must appear
// exhaustive to callers regardless of pagination underneath. All calls are
// blocking I/O bounded by the caller's context.
type Client interface {
	// ListJobs enumerates every job visible to the credential.
	ListJobs(ctx context.Context) ([]Job, error)
	// ListRuns enumerates top-level runs of one job, no task expansion.
	ListRuns(ctx context.Context, jobID int64) ([]Run, error)
	// RepairRun reruns only the failed tasks of the run, never the whole run
	// from scratch. Fire-and-forget: the outcome is success or failure with
	// no partial-progress reporting.
	RepairRun(ctx context.Context, runID int64) error
}
