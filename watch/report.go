package watch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ferrisk/runwatch/config"
	"github.com/ferrisk/runwatch/platform"
)

// Chat surface strings. The emoji register follows the operator-facing tone
// the bot has always had.
const (
	MsgNoFailures = "🎉 No failures today!"
	MsgExpired    = "⌛ That button expired. Send /check for a fresh report."
	MsgInFlight   = "⏳ Repair already in progress for that selection."
	MsgDegraded   = "⚠️ Could not complete the failure check. Will try again next cycle."
	MsgGreeting   = "Howdy, how are you doing?"
	MsgDeclined   = "👍 Okay, nothing repaired."
	AckRepair     = "Repair triggered ✅"
	AckDecline    = "Cancelled"
)

// Action is one selectable button on a report.
type Action struct {
	// Label is the button caption.
	Label string
	// Detail is an optional body line sent with the button (per-run mode
	// sends one message per action; bulk mode leaves it empty).
	Detail string
	// Token is the opaque correlation payload.
	Token string
}

// Report is a rendered notification: summary text plus selectable actions.
type Report struct {
	Summary string
	Actions []Action
	// Bulk is true when Actions form a single confirm/cancel pair covering
	// every record; false when each action targets one run.
	Bulk bool
}

// Formatter renders classified failures into chat output. Which action mode it
// produces is fixed per deployment by configuration, never decided at runtime.
type Formatter struct {
	mode string
}

// NewFormatter builds a formatter for the configured repair mode.
func NewFormatter(mode string) *Formatter {
	return &Formatter{mode: mode}
}

// Format renders one cycle. Zero records yield the fixed no-failures message
// with zero actions. Ordering is deterministic (job name, then run id) so two
// renders of the same set are byte-identical.
func (f *Formatter) Format(cycle *Cycle) Report {
	records := append([]platform.FailedRun(nil), cycle.Records...)
	sort.Slice(records, func(i, j int) bool {
		if records[i].Job.Name != records[j].Job.Name {
			return records[i].Job.Name < records[j].Job.Name
		}
		return records[i].Run.ID < records[j].Run.ID
	})

	if len(records) == 0 {
		return Report{Summary: MsgNoFailures}
	}

	var b strings.Builder
	if f.mode == config.ModeBulk {
		fmt.Fprintf(&b, "❌ Found %d failed run(s) today:", len(records))
	} else {
		fmt.Fprintf(&b, "❌ Found %d failed run(s) today. Pick ONE to repair:", len(records))
	}
	for _, rec := range records {
		fmt.Fprintf(&b, "\n%s  (run_id=%d)", rec.Job.Name, rec.Run.ID)
	}

	rep := Report{Summary: b.String()}
	if f.mode == config.ModeBulk {
		rep.Bulk = true
		rep.Actions = []Action{
			{Label: fmt.Sprintf("Repair all %d", len(records)), Token: cycle.TokenAll()},
			{Label: "Cancel", Token: cycle.TokenDecline()},
		}
		return rep
	}

	for _, rec := range records {
		rep.Actions = append(rep.Actions, Action{
			Label:  fmt.Sprintf("Repair %s", rec.Job.Name),
			Detail: fmt.Sprintf("%s  (run_id=%d)", rec.Job.Name, rec.Run.ID),
			Token:  cycle.TokenRun(rec.Run.ID),
		})
	}
	return rep
}

// FormatOutcome renders the business-level confirmation after a repair batch:
// one line per run with its own result. Partial failure shows both.
func FormatOutcome(out *BatchOutcome) string {
	var b strings.Builder
	for i, ro := range out.Outcomes {
		if i > 0 {
			b.WriteString("\n")
		}
		if ro.Err != nil {
			fmt.Fprintf(&b, "⚠️ Repair failed for %s (run_id=%d): %s",
				ro.Record.Job.Name, ro.Record.Run.ID, ro.Err)
		} else {
			fmt.Fprintf(&b, "✅ Started repair for %s (run_id=%d)",
				ro.Record.Job.Name, ro.Record.Run.ID)
		}
	}
	return b.String()
}
