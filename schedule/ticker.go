// Package schedule fires detect-and-report cycles at fixed wall-clock times.
package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ferrisk/runwatch/errors"
	"github.com/ferrisk/runwatch/watch"
)

// TimeOfDay is a wall-clock "HH:MM" trigger time, local to the deployment.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, errors.Wrapf(err, "bad time of day %q", s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// ParseTimes parses a list of "HH:MM" entries.
func ParseTimes(entries []string) ([]TimeOfDay, error) {
	out := make([]TimeOfDay, 0, len(entries))
	for _, e := range entries {
		tod, err := ParseTimeOfDay(e)
		if err != nil {
			return nil, err
		}
		out = append(out, tod)
	}
	return out, nil
}

// NextOccurrence returns the earliest trigger strictly after now, looking at
// today's and tomorrow's instances of each configured time.
func NextOccurrence(now time.Time, times []TimeOfDay) time.Time {
	var candidates []time.Time
	for _, tod := range times {
		day := time.Date(now.Year(), now.Month(), now.Day(), tod.Hour, tod.Minute, 0, 0, now.Location())
		if day.After(now) {
			candidates = append(candidates, day)
		}
		candidates = append(candidates, day.AddDate(0, 0, 1))
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Before(candidates[j]) })
	return candidates[0]
}

// TickerConfig contains configuration for the daily ticker.
type TickerConfig struct {
	// CheckInterval is how often the loop compares the clock against the
	// next trigger. Coarse on purpose: triggers are minute-granular.
	CheckInterval time.Duration
}

// DefaultTickerConfig returns sensible defaults.
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{CheckInterval: 20 * time.Second}
}

// Ticker emits cycle-trigger events at the configured times of day. It never
// runs a cycle itself; the worker loop owns all coordinator state. A trigger
// the process slept through fires on the next check instead of being dropped
// for the day.
type Ticker struct {
	times    []TimeOfDay
	interval time.Duration
	events   chan<- watch.Event
	log      *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	next time.Time
}

// NewTicker creates a ticker feeding the given event channel.
func NewTicker(ctx context.Context, times []TimeOfDay, events chan<- watch.Event, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	tickerCtx, cancel := context.WithCancel(ctx)
	return &Ticker{
		times:    times,
		interval: cfg.CheckInterval,
		events:   events,
		log:      log.Named("ticker"),
		ctx:      tickerCtx,
		cancel:   cancel,
	}
}

// Start begins the ticker loop.
func (t *Ticker) Start() {
	now := time.Now()
	t.mu.Lock()
	t.next = NextOccurrence(now, t.times)
	t.mu.Unlock()

	t.wg.Add(1)
	go t.run()
	t.log.Infow("Ticker started", "next_cycle_at", t.Next().Format(time.RFC3339))
}

// Stop gracefully stops the ticker.
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.log.Infow("Ticker stopped")
}

// Next returns the next trigger time.
func (t *Ticker) Next() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next
}

func (t *Ticker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case now := <-ticker.C:
			t.check(now)
		}
	}
}

// check fires at most one trigger per call and advances the next trigger
// strictly past now, so a long sleep produces one catch-up cycle, not a burst.
func (t *Ticker) check(now time.Time) {
	t.mu.Lock()
	due := !now.Before(t.next)
	if due {
		t.next = NextOccurrence(now, t.times)
	}
	next := t.next
	t.mu.Unlock()

	if !due {
		return
	}

	t.log.Infow("Scheduled cycle due", "next_cycle_at", next.Format(time.RFC3339))
	select {
	case t.events <- watch.Event{Kind: watch.EventCycle, Reason: "schedule"}:
	case <-t.ctx.Done():
	}
}
