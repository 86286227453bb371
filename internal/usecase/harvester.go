package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
)

// HarvesterDeps wires the upstream fetcher to the snapshot cache.
type HarvesterDeps struct {
	Fetcher ports.RecordFetcher
	Cache   ports.TenderSource
	Writer  ports.SnapshotWriter
	Lock    ports.Locker
	Options ports.OptionsLoader
	Now     func() time.Time
	Logger  *slog.Logger
}

// Harvester refreshes the shared snapshot all subscriptions read from.
type Harvester struct {
	fetcher ports.RecordFetcher
	cache   ports.TenderSource
	writer  ports.SnapshotWriter
	lock    ports.Locker
	options ports.OptionsLoader
	now     func() time.Time
	logger  *slog.Logger
}

// HarvestReport summarises one harvest invocation.
type HarvestReport struct {
	Skipped bool
	Reason  string
	Records int
}

// NewHarvester constructs the harvest use case.
func NewHarvester(deps HarvesterDeps) *Harvester {
	h := &Harvester{
		fetcher: deps.Fetcher,
		cache:   deps.Cache,
		writer:  deps.Writer,
		lock:    deps.Lock,
		options: deps.Options,
		now:     deps.Now,
		logger:  deps.Logger,
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Run fetches fresh records unless the cached snapshot is recent enough.
// An empty fetch keeps the existing snapshot.
func (h *Harvester) Run(ctx context.Context, force bool) (HarvestReport, error) {
	var report HarvestReport

	if h.lock != nil {
		acquired, err := h.lock.TryLock()
		if err != nil {
			return report, errors.Wrap(err, "acquire harvest lock")
		}
		if !acquired {
			h.logger.Info("another harvest is running, exiting")
			return HarvestReport{Skipped: true, Reason: "locked"}, nil
		}
		defer func() {
			if err := h.lock.Unlock(); err != nil {
				h.logger.Error("release harvest lock", "error", err)
			}
		}()
	}

	opts := h.options.Load()
	now := h.now()

	if !force && !h.shouldHarvest(ctx, opts, now) {
		h.logger.Info("skipping harvest (too recent)")
		return HarvestReport{Skipped: true, Reason: "fresh"}, nil
	}

	h.logger.Info("starting data harvest", "max_pages", opts.MaxSourcePages)
	records, err := h.fetcher.FetchAll(ctx, opts.MaxSourcePages)
	if err != nil {
		return report, errors.Wrap(err, "fetch records")
	}
	if len(records) == 0 {
		h.logger.Error("no data retrieved, keeping existing cache")
		return HarvestReport{Skipped: true, Reason: "empty"}, nil
	}

	if err := h.writer.Save(ctx, domain.Snapshot{Timestamp: now, Records: records}); err != nil {
		return report, errors.Wrap(err, "save snapshot")
	}

	h.logger.Info("harvest complete", "records", len(records), "duration", h.now().Sub(now).Round(100*time.Millisecond))
	return HarvestReport{Records: len(records)}, nil
}

// shouldHarvest skips when the snapshot is younger than 80% of the harvest
// frequency so overlapping cron triggers do not refetch.
func (h *Harvester) shouldHarvest(ctx context.Context, opts domain.DispatchOptions, now time.Time) bool {
	snapshot, err := h.cache.Load(ctx)
	if err != nil || snapshot.Timestamp.IsZero() {
		return true
	}
	minAge := time.Duration(opts.HarvestFrequencyMinutes) * time.Minute * 8 / 10
	return now.Sub(snapshot.Timestamp) > minAge
}
