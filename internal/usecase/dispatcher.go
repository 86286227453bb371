package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cockroachdb/errors"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
)

const defaultCleanupEvery = 10

// DispatcherDeps wires all driven adapters into the dispatch engine.
type DispatcherDeps struct {
	Source        ports.TenderSource
	Subscriptions ports.SubscriptionStore
	Seen          ports.SeenStore
	OpenLedger    func(ctx context.Context) (ports.DeliveryLedger, error)
	Statuses      ports.StatusStore
	History       ports.HistoryLog
	Notifier      ports.Notifier
	Ops           ports.OpsNotifier
	Schedule      ports.ScheduleEvaluator
	Lock          ports.Locker
	Options       ports.OptionsLoader
	Location      *time.Location
	// CleanupEvery is the minute period of ledger housekeeping; 0 selects the default.
	CleanupEvery int
	Now          func() time.Time
	Logger       *slog.Logger
}

// Dispatcher runs one tick: select due subscriptions, compute their deltas,
// notify, and record delivery state.
type Dispatcher struct {
	source        ports.TenderSource
	subscriptions ports.SubscriptionStore
	seen          ports.SeenStore
	openLedger    func(ctx context.Context) (ports.DeliveryLedger, error)
	statuses      ports.StatusStore
	history       ports.HistoryLog
	notifier      ports.Notifier
	ops           ports.OpsNotifier
	schedule      ports.ScheduleEvaluator
	lock          ports.Locker
	options       ports.OptionsLoader
	location      *time.Location
	cleanupEvery  int
	now           func() time.Time
	logger        *slog.Logger
}

// TickReport summarises one dispatcher invocation.
type TickReport struct {
	Skipped   bool
	Due       int
	Succeeded int
	Pruned    []string
}

// NewDispatcher constructs the dispatch engine.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	d := &Dispatcher{
		source:        deps.Source,
		subscriptions: deps.Subscriptions,
		seen:          deps.Seen,
		openLedger:    deps.OpenLedger,
		statuses:      deps.Statuses,
		history:       deps.History,
		notifier:      deps.Notifier,
		ops:           deps.Ops,
		schedule:      deps.Schedule,
		lock:          deps.Lock,
		options:       deps.Options,
		location:      deps.Location,
		cleanupEvery:  deps.CleanupEvery,
		now:           deps.Now,
		logger:        deps.Logger,
	}
	if d.location == nil {
		d.location = time.Local
	}
	if d.cleanupEvery <= 0 {
		d.cleanupEvery = defaultCleanupEvery
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// RunTick processes every subscription due at the current minute. Lock
// contention and missing data are normal skips. Only failures outside any
// single subscription are returned.
func (d *Dispatcher) RunTick(ctx context.Context) (TickReport, error) {
	var report TickReport

	acquired, err := d.lock.TryLock()
	if err != nil {
		return report, errors.Wrap(err, "acquire execution lock")
	}
	if !acquired {
		d.logger.Info("another dispatcher instance is running, exiting")
		report.Skipped = true
		return report, nil
	}
	defer func() {
		if unlockErr := d.lock.Unlock(); unlockErr != nil {
			d.logger.Error("release execution lock", "error", unlockErr)
		}
	}()

	opts := d.options.Load()

	snapshot, err := d.source.Load(ctx)
	if err != nil {
		d.logger.Error("no data available, skipping job processing", "error", err)
		return report, nil
	}
	if len(snapshot.Records) == 0 {
		d.logger.Error("no data available, skipping job processing", "error", "empty snapshot")
		return report, nil
	}

	subs, err := d.subscriptions.ListValid(ctx)
	if err != nil {
		d.logger.Error("load subscriptions", "error", err)
		return report, nil
	}
	if len(subs) == 0 {
		d.logger.Info("no valid jobs configured")
		return report, nil
	}

	minute := truncateToMinute(d.now().In(d.location))
	due := SelectDue(subs, minute, d.schedule, d.logger)
	if len(due) == 0 {
		d.logger.Info("no jobs due", "at", minute.Format("15:04"))
		return report, nil
	}
	report.Due = len(due)

	ledger, err := d.openLedger(ctx)
	if err != nil {
		return report, errors.Wrap(err, "open delivery ledger")
	}

	d.logger.Info("processing due jobs", "count", len(due))
	for _, sub := range due {
		if d.processJob(ctx, sub, snapshot.Records, ledger, opts) {
			report.Succeeded++
		}
	}
	d.logger.Info("batch complete", "succeeded", report.Succeeded, "due", report.Due)
	d.publishSummary(ctx, report, minute)

	if minute.Minute()%d.cleanupEvery == 0 {
		report.Pruned = d.housekeeping(ctx, ledger)
	}

	return report, nil
}

// processJob runs one subscription and contains every failure, panics
// included, at the subscription boundary.
func (d *Dispatcher) processJob(
	ctx context.Context,
	sub domain.Subscription,
	records []domain.Record,
	ledger ports.DeliveryLedger,
	opts domain.DispatchOptions,
) bool {
	start := d.now()
	jobLog := d.logger.With("job_id", sub.ID)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Newf("panic while processing job: %v", r)
			}
		}()
		return d.runJob(ctx, sub, records, ledger, opts, start, jobLog)
	}()
	if err == nil {
		return true
	}

	duration := d.now().Sub(start)
	d.updateStatus(ctx, sub.ID, domain.JobError, domain.StatusFields{
		"last_run_end":     d.stamp(d.now()),
		"last_run_error":   err.Error(),
		"last_run_success": false,
	})
	d.appendHistory(ctx, sub.ID, false, 0, duration, err)
	jobLog.Error("job failed", "error", err)
	return false
}

func (d *Dispatcher) runJob(
	ctx context.Context,
	sub domain.Subscription,
	records []domain.Record,
	ledger ports.DeliveryLedger,
	opts domain.DispatchOptions,
	start time.Time,
	jobLog *slog.Logger,
) error {
	d.updateStatus(ctx, sub.ID, domain.JobRunning, domain.StatusFields{
		"last_run_start": d.stamp(start),
	})

	seen, err := d.seen.Load(ctx, sub.ID)
	if err != nil {
		return errors.Wrap(err, "load seen-set")
	}

	now := start.In(d.location)
	sel := SelectCandidates(records, sub, seen, ledger, opts.NewRecipientMode, now)

	emailSent := false
	if len(sel.Tenders) > 0 {
		emailSent = d.deliver(ctx, sub, sel, ledger, opts, now, jobLog)
	}

	if err := d.seen.Save(ctx, sub.ID, Identities(records)); err != nil {
		return errors.Wrap(err, "save seen-set")
	}

	duration := d.now().Sub(start)
	d.updateStatus(ctx, sub.ID, domain.JobIdle, domain.StatusFields{
		"last_run_end":         d.stamp(d.now()),
		"last_run_duration":    roundSeconds(duration),
		"last_run_tenders":     len(sel.Tenders),
		"last_run_success":     true,
		"last_run_was_catchup": sel.CatchUp,
		"email_sent":           emailSent,
	})
	d.appendHistory(ctx, sub.ID, true, len(sel.Tenders), duration, nil)

	if len(sel.Tenders) == 0 {
		jobLog.Info("job completed: no new tenders")
		return nil
	}
	action := "regular"
	if sel.CatchUp {
		action = "catch-up"
	}
	jobLog.Info("job completed", "mode", action, "tenders", len(sel.Tenders), "email_sent", emailSent)
	return nil
}

// deliver sends the digest and, on success, records every candidate against
// every recipient of the subscription. Send failures are not fatal to the job.
func (d *Dispatcher) deliver(
	ctx context.Context,
	sub domain.Subscription,
	sel Selection,
	ledger ports.DeliveryLedger,
	opts domain.DispatchOptions,
	now time.Time,
	jobLog *slog.Logger,
) bool {
	if d.notifier == nil {
		jobLog.Warn("no notifier configured, digest not sent")
		return false
	}

	msg := BuildMessage(sub, sel, opts, now)
	if err := d.notifier.Send(ctx, msg); err != nil {
		jobLog.Error("send digest failed", "error", err)
		return false
	}

	ids := identityList(sel.Tenders)
	for _, email := range sub.Recipients {
		ledger.MarkSent(email, ids)
	}
	if err := ledger.Save(ctx); err != nil {
		jobLog.Error("save delivery ledger", "error", err)
	}

	jobLog.Info("digest sent", "tenders", len(ids), "recipients", len(sub.Recipients))
	return true
}

func (d *Dispatcher) publishSummary(ctx context.Context, report TickReport, minute time.Time) {
	if d.ops == nil {
		return
	}
	summary := fmt.Sprintf("TenderWatch %s: batch complete, %d/%d jobs successful",
		minute.Format("2006-01-02 15:04"), report.Succeeded, report.Due)
	if err := d.ops.PublishDigest(ctx, summary); err != nil {
		d.logger.Warn("publish tick summary", "error", err)
	}
}

func (d *Dispatcher) updateStatus(ctx context.Context, jobID string, state domain.JobState, fields domain.StatusFields) {
	if d.statuses == nil {
		return
	}
	if err := d.statuses.Update(ctx, jobID, state, fields); err != nil {
		d.logger.Error("update job status", "job_id", jobID, "error", err)
	}
}

func (d *Dispatcher) appendHistory(ctx context.Context, jobID string, success bool, found int, duration time.Duration, jobErr error) {
	if d.history == nil {
		return
	}
	entry := domain.HistoryEntry{
		Timestamp:       d.stamp(d.now()),
		JobID:           jobID,
		Success:         success,
		TendersFound:    found,
		DurationSeconds: roundSeconds(duration),
	}
	if jobErr != nil {
		msg := jobErr.Error()
		entry.Error = &msg
	}
	if err := d.history.Append(ctx, entry); err != nil {
		d.logger.Error("append execution history", "job_id", jobID, "error", err)
	}
}

func (d *Dispatcher) stamp(t time.Time) string {
	return t.In(d.location).Format(time.RFC3339)
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
