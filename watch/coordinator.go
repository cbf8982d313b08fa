package watch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ferrisk/runwatch/config"
	"github.com/ferrisk/runwatch/errors"
	"github.com/ferrisk/runwatch/platform"
)

// Repairer is the slice of the platform the coordinator needs.
type Repairer interface {
	RepairRun(ctx context.Context, runID int64) error
}

// Cycle is one invocation of the detect-and-report workflow. Its id anchors
// every correlation token it hands out; a newer cycle supersedes it, expiring
// those tokens.
type Cycle struct {
	ID        string
	Reason    string
	StartedAt time.Time
	Records   []platform.FailedRun

	byRun map[int64]platform.FailedRun
}

// TokenAll returns the bulk-confirm token for this cycle.
func (c *Cycle) TokenAll() string { return tokenAll(c.ID) }

// TokenDecline returns the cancel token for this cycle.
func (c *Cycle) TokenDecline() string { return tokenDecline(c.ID) }

// TokenRun returns the single-run token for one record of this cycle.
func (c *Cycle) TokenRun(runID int64) string { return tokenRun(c.ID, runID) }

// RunOutcome is the result of one repair attempt within a batch.
type RunOutcome struct {
	Record platform.FailedRun
	Err    error
}

// BatchOutcome lists what actually happened to each resolved run. Repairs are
// not transactional: a failure in the middle never rolls back or aborts the
// rest of the batch.
type BatchOutcome struct {
	CycleID  string
	Outcomes []RunOutcome
}

// Failed reports how many runs in the batch failed to dispatch.
func (b *BatchOutcome) Failed() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// tokenState tracks the per-token state machine:
// awaiting confirmation -> repairing -> gone (token deleted).
type tokenState int

const (
	stateAwaiting tokenState = iota + 1
	stateRepairing
)

// Coordinator owns the interactive confirmation state machine. It records the
// tokens of the active cycle, resolves operator responses against them, and
// dispatches repair calls with two guarantees:
//
//   - per-token: a second confirmation while a repair is in flight is
//     rejected, never double-dispatched;
//   - per-run: at most one in-flight repair per run id, even across cycles.
//
// All transitions run under one lock; the repair calls themselves do not.
// Nothing is persisted; a restart loses AWAITING_CONFIRMATION state, and the
// staleness policy below covers the fallout.
//
// Staleness policy (applied uniformly, never a silent no-op): a token that no
// longer maps to the active cycle is rejected with ErrExpiredToken and the
// operator is told to run a fresh check. We deliberately do not re-classify
// and repair the token's literal run id: the button may be hours old and the
// run long since repaired by someone else.
type Coordinator struct {
	repairer Repairer
	mode     string
	log      *zap.SugaredLogger

	mu       sync.Mutex
	active   *Cycle
	tokens   map[string]tokenState
	inflight map[int64]struct{}
}

// NewCoordinator builds a coordinator for the configured repair mode.
func NewCoordinator(repairer Repairer, mode string, log *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		repairer: repairer,
		mode:     mode,
		log:      log.Named("coordinator"),
		tokens:   make(map[string]tokenState),
		inflight: make(map[int64]struct{}),
	}
}

// BeginCycle registers a new cycle and supersedes the previous one: its
// tokens become stale immediately. With zero records the cycle carries no
// tokens and the coordinator is effectively idle.
func (c *Coordinator) BeginCycle(reason string, records []platform.FailedRun) *Cycle {
	cycle := &Cycle{
		ID:        uuid.NewString()[:8],
		Reason:    reason,
		StartedAt: time.Now(),
		Records:   records,
		byRun:     make(map[int64]platform.FailedRun, len(records)),
	}
	for _, rec := range records {
		cycle.byRun[rec.Run.ID] = rec
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		c.log.Infow("Cycle superseded", "old_cycle", c.active.ID, "new_cycle", cycle.ID)
	}
	c.active = cycle
	c.tokens = make(map[string]tokenState)

	if len(records) > 0 {
		if c.mode == config.ModeBulk {
			c.tokens[cycle.TokenAll()] = stateAwaiting
			c.tokens[cycle.TokenDecline()] = stateAwaiting
		} else {
			for _, rec := range records {
				c.tokens[cycle.TokenRun(rec.Run.ID)] = stateAwaiting
			}
		}
	}

	c.log.Infow("Cycle started",
		"cycle", cycle.ID,
		"reason", reason,
		"failed_runs", len(records),
		"mode", c.mode)
	return cycle
}

// Confirm resolves a confirmation token and dispatches exactly one repair call
// per resolved run. Runs are attempted independently and sequentially; a
// partial failure is recorded per run and never aborts the remainder.
func (c *Coordinator) Confirm(ctx context.Context, rawToken string) (*BatchOutcome, error) {
	tok, err := ParseToken(rawToken)
	if err != nil {
		return nil, err
	}
	if tok.Verb == VerbDecline {
		return nil, errors.Wrap(errors.ErrExpiredToken, "decline token sent as confirmation")
	}

	c.mu.Lock()
	if c.active == nil || tok.CycleID != c.active.ID {
		c.mu.Unlock()
		return nil, errors.Wrapf(errors.ErrExpiredToken, "cycle %s is not active", tok.CycleID)
	}
	state, known := c.tokens[rawToken]
	if !known {
		c.mu.Unlock()
		return nil, errors.Wrapf(errors.ErrExpiredToken, "token already consumed in cycle %s", tok.CycleID)
	}
	if state == stateRepairing {
		c.mu.Unlock()
		return nil, errors.Wrapf(errors.ErrRepairInFlight, "token %s", rawToken)
	}

	// Resolve the record set while still holding the lock.
	var targets []platform.FailedRun
	switch tok.Verb {
	case VerbAll:
		targets = append(targets, c.active.Records...)
	case VerbRun:
		rec, ok := c.active.byRun[tok.RunID]
		if !ok {
			c.mu.Unlock()
			return nil, errors.Wrapf(errors.ErrExpiredToken, "run %d not in cycle %s", tok.RunID, tok.CycleID)
		}
		targets = append(targets, rec)
	}

	c.tokens[rawToken] = stateRepairing

	outcome := &BatchOutcome{CycleID: tok.CycleID}
	var dispatch []platform.FailedRun
	for _, rec := range targets {
		if _, busy := c.inflight[rec.Run.ID]; busy {
			outcome.Outcomes = append(outcome.Outcomes, RunOutcome{
				Record: rec,
				Err:    errors.Wrapf(errors.ErrRepairInFlight, "run %d", rec.Run.ID),
			})
			continue
		}
		c.inflight[rec.Run.ID] = struct{}{}
		dispatch = append(dispatch, rec)
	}
	cycleID := c.active.ID
	c.mu.Unlock()

	// Platform calls happen outside the critical section. They block on I/O
	// and must not hold up unrelated token transitions.
	for _, rec := range dispatch {
		err := c.repairer.RepairRun(ctx, rec.Run.ID)
		if err != nil {
			c.log.Errorw("Repair dispatch failed",
				"cycle", cycleID,
				"run_id", rec.Run.ID,
				"job", rec.Job.Name,
				"error", err)
		} else {
			c.log.Infow("Repair dispatched",
				"cycle", cycleID,
				"run_id", rec.Run.ID,
				"job", rec.Job.Name)
		}
		outcome.Outcomes = append(outcome.Outcomes, RunOutcome{Record: rec, Err: err})
	}

	c.mu.Lock()
	for _, rec := range dispatch {
		delete(c.inflight, rec.Run.ID)
	}
	// The cycle may have been superseded while we were repairing; only touch
	// token state if it is still ours.
	if c.active != nil && c.active.ID == cycleID {
		c.consumeToken(rawToken, tok)
	}
	c.mu.Unlock()

	return outcome, nil
}

// consumeToken retires a finished token and returns the coordinator to idle
// when nothing is left awaiting. Caller holds c.mu.
func (c *Coordinator) consumeToken(rawToken string, tok Token) {
	delete(c.tokens, rawToken)
	if tok.Verb == VerbAll {
		// The bulk pair travels together.
		delete(c.tokens, tokenDecline(tok.CycleID))
	}
	if len(c.tokens) == 0 {
		c.active = nil
	}
}

// Decline cancels the active cycle with zero platform calls and returns the
// coordinator to idle. Declining while a repair is in flight is rejected.
func (c *Coordinator) Decline(rawToken string) error {
	tok, err := ParseToken(rawToken)
	if err != nil {
		return err
	}
	if tok.Verb != VerbDecline {
		return errors.Wrapf(errors.ErrExpiredToken, "token %s is not a decline", rawToken)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil || tok.CycleID != c.active.ID {
		return errors.Wrapf(errors.ErrExpiredToken, "cycle %s is not active", tok.CycleID)
	}
	if _, known := c.tokens[rawToken]; !known {
		return errors.Wrapf(errors.ErrExpiredToken, "decline token unknown in cycle %s", tok.CycleID)
	}
	for _, state := range c.tokens {
		if state == stateRepairing {
			return errors.Wrap(errors.ErrRepairInFlight, "cycle has a repair in flight")
		}
	}

	c.log.Infow("Cycle declined", "cycle", c.active.ID)
	c.active = nil
	c.tokens = make(map[string]tokenState)
	return nil
}

// ActiveCycleID returns the id of the active cycle, empty when idle.
func (c *Coordinator) ActiveCycleID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.ID
}
