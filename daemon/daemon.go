// Package daemon assembles runwatch and runs the worker loop.
//
// Two independent triggers, the daily ticker and the Telegram listener,
// feed one buffered event channel consumed by a single goroutine. That is the
// whole concurrency story: coordinator transitions for a token can never race
// because only the loop goroutine touches them.
package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ferrisk/runwatch/config"
	"github.com/ferrisk/runwatch/errors"
	"github.com/ferrisk/runwatch/platform"
	"github.com/ferrisk/runwatch/watch"
)

// classifyRetries bounds how often a failed classification is retried before
// the cycle degrades into a "could not complete check" notification.
const classifyRetries = 2

// eventBuffer absorbs bursts from the two producers without blocking them.
const eventBuffer = 16

// Messenger is the chat transport surface the loop needs.
type Messenger interface {
	SendText(text string) error
	SendReport(rep watch.Report) error
	AckCallback(callbackID, text string) error
}

// Daemon owns the worker loop and the collaborators it drives.
type Daemon struct {
	cfg         *config.Config
	messenger   Messenger
	classifier  *watch.Classifier
	formatter   *watch.Formatter
	coordinator *watch.Coordinator
	events      chan watch.Event
	commands    map[string]func(ctx context.Context, ev watch.Event)
	log         *zap.SugaredLogger

	now        func() time.Time
	retryDelay time.Duration
}

// New wires the core components around the given collaborators.
func New(cfg *config.Config, client platform.Client, messenger Messenger, log *zap.SugaredLogger) *Daemon {
	d := &Daemon{
		cfg:         cfg,
		messenger:   messenger,
		classifier:  watch.NewClassifier(client, cfg.Owner, log),
		formatter:   watch.NewFormatter(cfg.RepairMode),
		coordinator: watch.NewCoordinator(client, cfg.RepairMode, log),
		events:      make(chan watch.Event, eventBuffer),
		log:         log.Named("daemon"),
		now:         time.Now,
		retryDelay:  2 * time.Second,
	}

	// Command dispatch table, resolved once at start-up. Event kind and
	// command name map to handlers explicitly; nothing registers itself.
	d.commands = map[string]func(ctx context.Context, ev watch.Event){
		"start": d.handleGreeting,
		"hello": d.handleGreeting,
		"check": d.handleCheck,
	}
	return d
}

// Events returns the channel producers feed.
func (d *Daemon) Events() chan<- watch.Event {
	return d.events
}

// Run executes the worker loop until the context is cancelled. One cycle runs
// immediately at start-up; everything after that is event-driven. Collaborator
// errors are logged and turned into chat notifications; they never escape
// the loop and kill the process.
func (d *Daemon) Run(ctx context.Context) error {
	d.events <- watch.Event{Kind: watch.EventCycle, Reason: "startup"}

	for {
		select {
		case <-ctx.Done():
			d.log.Infow("Worker loop stopped")
			return nil
		case ev := <-d.events:
			d.handle(ctx, ev)
		}
	}
}

// handle routes one event. Unrecognized events are dropped with a log entry,
// never a crash.
func (d *Daemon) handle(ctx context.Context, ev watch.Event) {
	switch ev.Kind {
	case watch.EventCycle:
		d.runCycle(ctx, ev.Reason)
	case watch.EventCommand:
		handler, ok := d.commands[ev.Command]
		if !ok {
			d.log.Debugw("Ignoring unknown command", "command", ev.Command)
			return
		}
		handler(ctx, ev)
	case watch.EventCallback:
		d.handleCallback(ctx, ev)
	default:
		d.log.Warnw("Ignoring event of unknown kind", "kind", ev.Kind)
	}
}

func (d *Daemon) handleGreeting(_ context.Context, _ watch.Event) {
	if err := d.messenger.SendText(watch.MsgGreeting); err != nil {
		d.log.Warnw("Failed to send greeting", "error", err)
	}
}

func (d *Daemon) handleCheck(ctx context.Context, _ watch.Event) {
	d.runCycle(ctx, "command")
}

// runCycle performs one detect-and-report cycle: classify (with bounded
// retries), open a new coordinator cycle superseding the previous one, and
// deliver the rendered report.
func (d *Daemon) runCycle(ctx context.Context, reason string) {
	records, err := d.classifyWithRetry(ctx)
	if err != nil {
		d.log.Errorw("Classification failed, degrading", "reason", reason, "error", err)
		if sendErr := d.messenger.SendText(watch.MsgDegraded); sendErr != nil {
			d.log.Errorw("Failed to send degraded notification", "error", sendErr)
		}
		return
	}

	cycle := d.coordinator.BeginCycle(reason, records)
	report := d.formatter.Format(cycle)
	if err := d.messenger.SendReport(report); err != nil {
		d.log.Errorw("Failed to deliver report", "cycle", cycle.ID, "error", err)
	}
}

func (d *Daemon) classifyWithRetry(ctx context.Context) ([]platform.FailedRun, error) {
	var lastErr error
	for attempt := 0; attempt <= classifyRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d.retryDelay):
			}
		}
		records, err := d.classifier.Classify(ctx, d.now())
		if err == nil {
			return records, nil
		}
		lastErr = err
		d.log.Warnw("Classification attempt failed",
			"attempt", attempt+1,
			"retries_left", classifyRetries-attempt,
			"error", err)
	}
	return nil, lastErr
}

// handleCallback resolves a button press. The transport-level ack always goes
// out; the business-level response depends on how the coordinator ruled.
func (d *Daemon) handleCallback(ctx context.Context, ev watch.Event) {
	tok, err := watch.ParseToken(ev.Token)
	if err != nil {
		d.respondCallback(ev, "Expired", watch.MsgExpired)
		return
	}

	if tok.Verb == watch.VerbDecline {
		err := d.coordinator.Decline(ev.Token)
		switch {
		case err == nil:
			d.respondCallback(ev, watch.AckDecline, watch.MsgDeclined)
		case errors.IsRepairInFlight(err):
			d.respondCallback(ev, "Busy", watch.MsgInFlight)
		default:
			d.respondCallback(ev, "Expired", watch.MsgExpired)
		}
		return
	}

	out, err := d.coordinator.Confirm(ctx, ev.Token)
	switch {
	case err == nil:
		d.respondCallback(ev, watch.AckRepair, watch.FormatOutcome(out))
	case errors.IsRepairInFlight(err):
		d.respondCallback(ev, "Busy", watch.MsgInFlight)
	case errors.IsExpiredToken(err):
		d.respondCallback(ev, "Expired", watch.MsgExpired)
	default:
		// Shouldn't happen; treat like a degraded cycle rather than crash.
		d.log.Errorw("Unexpected coordinator error", "token", ev.Token, "error", err)
		d.respondCallback(ev, "Error", watch.MsgDegraded)
	}
}

func (d *Daemon) respondCallback(ev watch.Event, ack, message string) {
	if err := d.messenger.AckCallback(ev.CallbackID, ack); err != nil {
		d.log.Warnw("Failed to ack callback", "callback_id", ev.CallbackID, "error", err)
	}
	if message == "" {
		return
	}
	if err := d.messenger.SendText(message); err != nil {
		d.log.Warnw("Failed to send callback response", "error", err)
	}
}
