package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/elonfeng/csfd2imdb/internal/journal"
	"github.com/elonfeng/csfd2imdb/pkg/csfd"
	"github.com/elonfeng/csfd2imdb/pkg/imdb"
	"github.com/elonfeng/csfd2imdb/pkg/notify"
)

// Report summarizes one finished action.
type Report struct {
	RunID    int64            `json:"run_id"`
	Action   string           `json:"action"`
	Status   string           `json:"status"`
	Total    int              `json:"total"`
	Present  int              `json:"present"`
	Written  int              `json:"written"`
	Skipped  int              `json:"skipped"`
	Failed   int              `json:"failed"`
	Message  string           `json:"message,omitempty"`
	Duration time.Duration    `json:"duration"`
	Failures []notify.Failure `json:"failures,omitempty"`
}

// run tracks one action from start to finish and mirrors every outcome into
// the journal.
type run struct {
	p      *Pipeline
	id     int64
	start  time.Time
	report *Report
}

func (p *Pipeline) begin(ctx context.Context, action string) *run {
	id, err := p.journal.StartRun(ctx, action)
	if err != nil {
		p.logger.Warn("journal start run", "action", action, "err", err)
	}
	p.logger.Info("run started", "action", action, "run_id", id)
	return &run{
		p:      p,
		id:     id,
		start:  time.Now(),
		report: &Report{RunID: id, Action: action},
	}
}

func (r *run) event(ctx context.Context, itemID string, kind journal.EventKind, reason string) {
	if err := r.p.journal.AddEvent(ctx, r.id, itemID, kind, reason); err != nil {
		r.p.logger.Warn("journal event", "item_id", itemID, "kind", kind, "err", err)
	}
}

// skip records an item that was deliberately not written.
func (r *run) skip(ctx context.Context, itemID, reason string) {
	r.report.Skipped++
	r.p.logger.Warn("skipped", "item_id", itemID, "reason", reason)
	r.event(ctx, itemID, journal.EventSkip, reason)
}

// fail records an item that could not be processed.
func (r *run) fail(ctx context.Context, itemID, reason string) {
	r.report.Failed++
	r.report.Failures = append(r.report.Failures, notify.Failure{ItemID: itemID, Reason: reason})
	r.p.logger.Error("failed", "item_id", itemID, "reason", reason)
	r.event(ctx, itemID, journal.EventFail, reason)
}

func (r *run) written(ctx context.Context, itemID string, kind journal.EventKind) {
	r.report.Written++
	if kind != "" {
		r.event(ctx, itemID, kind, "")
	}
}

// finish closes the run with err as the abort cause, if any, and broadcasts
// the summary. It returns err unchanged so callers can return through it.
func (r *run) finish(ctx context.Context, err error) (*Report, error) {
	rep := r.report
	rep.Duration = time.Since(r.start)
	rep.Status = journal.StatusOK
	if err != nil {
		rep.Status = statusFor(err)
		rep.Message = err.Error()
		r.p.logger.Error("run aborted", "action", rep.Action, "reason", rep.Message)
		r.event(ctx, "", journal.EventAbort, rep.Message)
	}

	// Bookkeeping must land even when the run was cancelled.
	bg := context.WithoutCancel(ctx)
	if jerr := r.p.journal.FinishRun(bg, r.id, journal.Totals{
		Status:  rep.Status,
		Written: rep.Written,
		Skipped: rep.Skipped,
		Failed:  rep.Failed,
		Message: rep.Message,
	}); jerr != nil {
		r.p.logger.Warn("journal finish run", "run_id", r.id, "err", jerr)
	}

	if r.p.notifier.HasNotifiers() {
		summary := &notify.Summary{
			Action:   rep.Action,
			Status:   rep.Status,
			Written:  rep.Written,
			Skipped:  rep.Skipped,
			Failed:   rep.Failed,
			Message:  rep.Message,
			Duration: rep.Duration,
			Failures: rep.Failures,
		}
		if nerr := r.p.notifier.Broadcast(bg, summary); nerr != nil {
			r.p.logger.Warn("notify", "err", nerr)
		}
	}

	r.p.logger.Info("run finished", "action", rep.Action, "status", rep.Status,
		"written", rep.Written, "skipped", rep.Skipped, "failed", rep.Failed)
	return rep, err
}

// statusFor separates the deliberate run-fatal conditions from everything
// else that stopped a run.
func statusFor(err error) string {
	switch {
	case errors.Is(err, csfd.ErrNoCount),
		errors.Is(err, imdb.ErrAuth),
		errors.Is(err, imdb.ErrServer),
		errors.Is(err, ErrMissingInput),
		errors.Is(err, context.Canceled):
		return journal.StatusAborted
	}
	return journal.StatusFailed
}
