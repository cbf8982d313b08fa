package platform

import (
	"context"
	"time"

	databricks "github.com/databricks/databricks-sdk-go"
	"github.com/databricks/databricks-sdk-go/service/jobs"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ferrisk/runwatch/config"
	"github.com/ferrisk/runwatch/errors"
)

// Databricks implements Client against a Databricks workspace.
//
// Every call runs under the configured timeout and a shared rate limiter, so
// a workspace with many jobs cannot starve the worker loop or trip API limits.
type Databricks struct {
	ws      *databricks.WorkspaceClient
	timeout time.Duration
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

// NewDatabricks builds a workspace-backed client from configuration.
func NewDatabricks(cfg *config.Config, log *zap.SugaredLogger) (*Databricks, error) {
	ws, err := databricks.NewWorkspaceClient(&databricks.Config{
		Host:  cfg.Databricks.Host,
		Token: cfg.Databricks.Token,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create databricks workspace client")
	}

	return &Databricks{
		ws:      ws,
		timeout: cfg.Platform.Timeout,
		limiter: rate.NewLimiter(rate.Limit(cfg.Platform.RateLimit), cfg.Platform.Burst),
		log:     log.Named("databricks"),
	}, nil
}

// ListJobs implements Client. The SDK drains pagination underneath.
func (d *Databricks) ListJobs(ctx context.Context) ([]Job, error) {
	ctx, cancel, err := d.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	baseJobs, err := d.ws.Jobs.ListAll(ctx, jobs.ListJobsRequest{})
	if err != nil {
		return nil, d.wrapPlatformErr(ctx, err, "list jobs")
	}

	out := make([]Job, 0, len(baseJobs))
	for _, bj := range baseJobs {
		name := ""
		if bj.Settings != nil {
			name = bj.Settings.Name
		}
		out = append(out, Job{
			ID:    bj.JobId,
			Name:  name,
			Owner: bj.CreatorUserName,
		})
	}
	return out, nil
}

// ListRuns implements Client. Task-level expansion stays disabled; only
// top-level run status matters to the classifier.
func (d *Databricks) ListRuns(ctx context.Context, jobID int64) ([]Run, error) {
	ctx, cancel, err := d.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	baseRuns, err := d.ws.Jobs.ListRunsAll(ctx, jobs.ListRunsRequest{
		JobId:       jobID,
		ExpandTasks: false,
	})
	if err != nil {
		return nil, d.wrapPlatformErr(ctx, err, "list runs")
	}

	out := make([]Run, 0, len(baseRuns))
	for _, br := range baseRuns {
		r := Run{
			ID:      br.RunId,
			JobID:   jobID,
			EndTime: millisToTime(br.EndTime),
		}
		if br.State != nil {
			r.Result = ResultState(br.State.ResultState)
		}
		out = append(out, r)
	}
	return out, nil
}

// RepairRun implements Client with rerun_all_failed_tasks semantics. The
// returned wait handle is discarded: runwatch reports dispatch, not completion.
func (d *Databricks) RepairRun(ctx context.Context, runID int64) error {
	ctx, cancel, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	_, err = d.ws.Jobs.RepairRun(ctx, jobs.RepairRun{
		RunId:               runID,
		RerunAllFailedTasks: true,
	})
	if err != nil {
		return d.wrapPlatformErr(ctx, err, "repair run")
	}

	d.log.Infow("Repair dispatched", "run_id", runID)
	return nil
}

// acquire waits for a rate limiter slot and derives the per-call deadline.
func (d *Databricks) acquire(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, nil, errors.NewTransient(err, "rate limiter wait")
	}
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	return callCtx, cancel, nil
}

// wrapPlatformErr classifies a platform failure: deadline overruns become
// ErrTimeout, everything else a transient collaborator error. Both are retried
// or degraded by the caller, never fatal to the loop.
func (d *Databricks) wrapPlatformErr(ctx context.Context, err error, op string) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.Wrapf(errors.ErrTimeout, "databricks %s after %s", op, d.timeout)
	}
	return errors.NewTransient(err, "databricks %s", op)
}

// millisToTime converts a millisecond epoch to *time.Time, nil for zero
// (run still in flight).
func millisToTime(ms int64) *time.Time {
	if ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
