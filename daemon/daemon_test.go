package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrisk/runwatch/config"
	"github.com/ferrisk/runwatch/internal/util"
	"github.com/ferrisk/runwatch/logger"
	"github.com/ferrisk/runwatch/platform"
	"github.com/ferrisk/runwatch/watch"
)

var asOf = time.Date(2025, 8, 27, 15, 30, 0, 0, time.UTC)

// fakePlatform is an in-memory platform.Client.
type fakePlatform struct {
	jobs      []platform.Job
	runs      map[int64][]platform.Run
	listErr   error
	repairErr map[int64]error
	repaired  []int64
}

func (f *fakePlatform) ListJobs(ctx context.Context) ([]platform.Job, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.jobs, nil
}

func (f *fakePlatform) ListRuns(ctx context.Context, jobID int64) ([]platform.Run, error) {
	return f.runs[jobID], nil
}

func (f *fakePlatform) RepairRun(ctx context.Context, runID int64) error {
	f.repaired = append(f.repaired, runID)
	if err, ok := f.repairErr[runID]; ok {
		return err
	}
	return nil
}

// fakeMessenger records everything sent to the chat.
type fakeMessenger struct {
	mu      sync.Mutex
	texts   []string
	reports []watch.Report
	acks    []string
}

func (f *fakeMessenger) SendText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeMessenger) SendReport(rep watch.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, rep)
	return nil
}

func (f *fakeMessenger) AckCallback(callbackID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, text)
	return nil
}

func (f *fakeMessenger) reportCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports)
}

func failingPlatform() *fakePlatform {
	return &fakePlatform{
		jobs: []platform.Job{
			{ID: 1, Name: "etl-1", Owner: "me@example.com"},
			{ID: 2, Name: "etl-2", Owner: "me@example.com"},
		},
		runs: map[int64][]platform.Run{
			1: {{ID: 101, JobID: 1, EndTime: util.Ptr(asOf.Add(-time.Hour)), Result: platform.ResultFailed}},
			2: {{ID: 202, JobID: 2, EndTime: util.Ptr(asOf.Add(-time.Hour)), Result: platform.ResultFailed}},
		},
	}
}

func testConfig(mode string) *config.Config {
	return &config.Config{
		Telegram:      config.TelegramConfig{Token: "t", ChatID: 1},
		Databricks:    config.DatabricksConfig{Host: "h", Token: "t"},
		Owner:         "me@example.com",
		RepairMode:    mode,
		ScheduleTimes: []string{"09:00"},
		Platform:      config.PlatformConfig{Timeout: time.Second, RateLimit: 100, Burst: 10},
	}
}

func newTestDaemon(mode string, fp *fakePlatform) (*Daemon, *fakeMessenger) {
	fm := &fakeMessenger{}
	d := New(testConfig(mode), fp, fm, logger.Logger)
	d.now = func() time.Time { return asOf }
	d.retryDelay = 0
	return d, fm
}

func TestCycleDeliversReportWithActions(t *testing.T) {
	d, fm := newTestDaemon(config.ModeBulk, failingPlatform())

	d.handle(context.Background(), watch.Event{Kind: watch.EventCycle, Reason: "startup"})

	require.Len(t, fm.reports, 1)
	rep := fm.reports[0]
	assert.Contains(t, rep.Summary, "Found 2 failed run(s)")
	require.Len(t, rep.Actions, 2)
	assert.True(t, rep.Bulk)
}

func TestCycleWithNoFailures(t *testing.T) {
	fp := &fakePlatform{jobs: []platform.Job{{ID: 1, Name: "etl-1", Owner: "me@example.com"}}}
	d, fm := newTestDaemon(config.ModeBulk, fp)

	d.handle(context.Background(), watch.Event{Kind: watch.EventCycle, Reason: "schedule"})

	require.Len(t, fm.reports, 1)
	assert.Equal(t, watch.MsgNoFailures, fm.reports[0].Summary)
	assert.Empty(t, fm.reports[0].Actions)
}

func TestCycleDegradesAfterBoundedRetries(t *testing.T) {
	fp := failingPlatform()
	fp.listErr = assert.AnError
	d, fm := newTestDaemon(config.ModeBulk, fp)

	d.handle(context.Background(), watch.Event{Kind: watch.EventCycle, Reason: "schedule"})

	assert.Empty(t, fm.reports)
	require.Len(t, fm.texts, 1)
	assert.Equal(t, watch.MsgDegraded, fm.texts[0])
}

func TestConfirmCallbackRepairsAndReports(t *testing.T) {
	fp := failingPlatform()
	d, fm := newTestDaemon(config.ModeBulk, fp)

	d.handle(context.Background(), watch.Event{Kind: watch.EventCycle, Reason: "schedule"})
	require.Len(t, fm.reports, 1)
	confirm := fm.reports[0].Actions[0].Token

	d.handle(context.Background(), watch.Event{
		Kind:       watch.EventCallback,
		CallbackID: "cbq-1",
		Token:      confirm,
	})

	assert.Equal(t, []int64{101, 202}, fp.repaired)
	require.NotEmpty(t, fm.acks)
	assert.Equal(t, watch.AckRepair, fm.acks[0])
	require.NotEmpty(t, fm.texts)
	last := fm.texts[len(fm.texts)-1]
	assert.Contains(t, last, "Started repair for etl-1 (run_id=101)")
	assert.Contains(t, last, "Started repair for etl-2 (run_id=202)")
}

func TestPartialFailureReportedPerRun(t *testing.T) {
	fp := failingPlatform()
	fp.repairErr = map[int64]error{101: assert.AnError}
	d, fm := newTestDaemon(config.ModeBulk, fp)

	d.handle(context.Background(), watch.Event{Kind: watch.EventCycle, Reason: "schedule"})
	confirm := fm.reports[0].Actions[0].Token
	d.handle(context.Background(), watch.Event{Kind: watch.EventCallback, CallbackID: "cbq-1", Token: confirm})

	assert.Equal(t, []int64{101, 202}, fp.repaired, "failure of 101 must not abort 202")
	last := fm.texts[len(fm.texts)-1]
	assert.Contains(t, last, "Repair failed for etl-1")
	assert.Contains(t, last, "Started repair for etl-2")
}

func TestDeclineCallbackIssuesNoRepairs(t *testing.T) {
	fp := failingPlatform()
	d, fm := newTestDaemon(config.ModeBulk, fp)

	d.handle(context.Background(), watch.Event{Kind: watch.EventCycle, Reason: "schedule"})
	decline := fm.reports[0].Actions[1].Token
	d.handle(context.Background(), watch.Event{Kind: watch.EventCallback, CallbackID: "cbq-1", Token: decline})

	assert.Empty(t, fp.repaired)
	assert.Contains(t, fm.texts, watch.MsgDeclined)
}

func TestStaleCallbackAnswersExpired(t *testing.T) {
	fp := failingPlatform()
	d, fm := newTestDaemon(config.ModeBulk, fp)

	// No cycle has run: any token is stale. Must not crash, must not repair.
	d.handle(context.Background(), watch.Event{
		Kind:       watch.EventCallback,
		CallbackID: "cbq-1",
		Token:      "rw1|all|deadbeef",
	})

	assert.Empty(t, fp.repaired)
	assert.Contains(t, fm.texts, watch.MsgExpired)
}

func TestGarbageCallbackAnswersExpired(t *testing.T) {
	fp := failingPlatform()
	d, fm := newTestDaemon(config.ModeBulk, fp)

	d.handle(context.Background(), watch.Event{Kind: watch.EventCallback, CallbackID: "cbq-1", Token: "repair_101"})

	assert.Empty(t, fp.repaired)
	assert.Contains(t, fm.texts, watch.MsgExpired)
}

func TestGreetingCommand(t *testing.T) {
	d, fm := newTestDaemon(config.ModeBulk, failingPlatform())

	d.handle(context.Background(), watch.Event{Kind: watch.EventCommand, Command: "hello"})
	assert.Equal(t, []string{watch.MsgGreeting}, fm.texts)
}

func TestUnknownCommandIgnored(t *testing.T) {
	d, fm := newTestDaemon(config.ModeBulk, failingPlatform())

	d.handle(context.Background(), watch.Event{Kind: watch.EventCommand, Command: "selfdestruct"})
	assert.Empty(t, fm.texts)
	assert.Empty(t, fm.reports)
}

func TestCheckCommandRunsAdHocCycle(t *testing.T) {
	d, fm := newTestDaemon(config.ModePerRun, failingPlatform())

	d.handle(context.Background(), watch.Event{Kind: watch.EventCommand, Command: "check"})
	require.Len(t, fm.reports, 1)
	assert.False(t, fm.reports[0].Bulk)
	assert.Len(t, fm.reports[0].Actions, 2)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	d, fm := newTestDaemon(config.ModeBulk, failingPlatform())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	// The startup cycle should arrive, then cancellation stops the loop.
	require.Eventually(t, func() bool { return fm.reportCount() > 0 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
