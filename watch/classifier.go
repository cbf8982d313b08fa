package watch

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ferrisk/runwatch/errors"
	"github.com/ferrisk/runwatch/platform"
)

// Classifier finds the job runs that failed "today" for one owner.
//
// It is a pure read over platform state at call time: no side effects, and no
// attempt to hide that the platform may answer differently between two calls.
type Classifier struct {
	client platform.Client
	owner  string
	log    *zap.SugaredLogger
}

// NewClassifier builds a classifier for the configured owner identity.
func NewClassifier(client platform.Client, owner string, log *zap.SugaredLogger) *Classifier {
	return &Classifier{
		client: client,
		owner:  owner,
		log:    log.Named("classifier"),
	}
}

// Classify returns every run that failed on the UTC calendar day of asOf and
// belongs to the configured owner. The result has set semantics (duplicate
// (job, run) pairs from pagination or repeated listing collapse) and is
// sorted by job name then run id so repeated renders are stable.
func (c *Classifier) Classify(ctx context.Context, asOf time.Time) ([]platform.FailedRun, error) {
	jobs, err := c.client.ListJobs(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}

	day := asOf.UTC().Truncate(24 * time.Hour)

	type key struct{ jobID, runID int64 }
	seen := make(map[key]struct{})
	var failed []platform.FailedRun

	for _, job := range jobs {
		// Exact, case-sensitive owner match. Anything looser risks
		// mass-repairing someone else's jobs.
		if job.Owner != c.owner {
			continue
		}

		runs, err := c.client.ListRuns(ctx, job.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list runs for job %d", job.ID)
		}

		for _, run := range runs {
			if !failedOn(run, day) {
				continue
			}
			k := key{job.ID, run.ID}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			failed = append(failed, platform.FailedRun{Job: job, Run: run})
		}
	}

	sort.Slice(failed, func(i, j int) bool {
		if failed[i].Job.Name != failed[j].Job.Name {
			return failed[i].Job.Name < failed[j].Job.Name
		}
		return failed[i].Run.ID < failed[j].Run.ID
	})

	c.log.Debugw("Classification complete",
		"owner", c.owner,
		"as_of", asOf.UTC().Format(time.RFC3339),
		"jobs_seen", len(jobs),
		"failed_today", len(failed))

	return failed, nil
}

// failedOn is the failure predicate: result state FAILED, a present end
// timestamp (a run that has not terminated cannot be "failed"), and a UTC
// calendar date equal to the classification day.
func failedOn(run platform.Run, day time.Time) bool {
	if run.Result != platform.ResultFailed {
		return false
	}
	if run.EndTime == nil {
		return false
	}
	return run.EndTime.UTC().Truncate(24 * time.Hour).Equal(day)
}
