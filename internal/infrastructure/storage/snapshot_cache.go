package storage

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/cockroachdb/errors"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
	"TenderWatch/internal/tender"
)

// ErrNoData means no usable snapshot exists on disk.
var ErrNoData = errors.New("no tender data available")

const snapshotVersion = "2.0"

// SnapshotCache reads and writes the harvested tender snapshot.
type SnapshotCache struct {
	path       string
	staleAfter time.Duration
	loc        *time.Location
	now        func() time.Time
	logger     *slog.Logger
}

var (
	_ ports.TenderSource   = (*SnapshotCache)(nil)
	_ ports.SnapshotWriter = (*SnapshotCache)(nil)
)

type snapshotFile struct {
	Timestamp string               `json:"timestamp"`
	Data      []domain.Record      `json:"data"`
	Stats     domain.SnapshotStats `json:"stats"`
	Version   string               `json:"version"`
}

// NewSnapshotCache stores the snapshot at path. Loads older than staleAfter
// are logged as stale; zero disables the warning.
func NewSnapshotCache(path string, staleAfter time.Duration, loc *time.Location, now func() time.Time, logger *slog.Logger) *SnapshotCache {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotCache{path: path, staleAfter: staleAfter, loc: loc, now: now, logger: logger}
}

// Load returns the snapshot. A missing, unreadable or malformed file is an
// error; a partial snapshot is never returned.
func (c *SnapshotCache) Load(_ context.Context) (domain.Snapshot, error) {
	raw, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Snapshot{}, errors.WithHint(errors.Wrapf(ErrNoData, "%s missing", c.path), "run `tenderwatch harvest` first")
	}
	if err != nil {
		return domain.Snapshot{}, errors.Wrapf(err, "read %s", c.path)
	}

	var file struct {
		Timestamp string          `json:"timestamp"`
		Data      []domain.Record `json:"data"`
	}
	if err := decodeJSON(raw, &file); err != nil {
		return domain.Snapshot{}, errors.Mark(errors.Wrapf(err, "decode %s", c.path), ErrNoData)
	}

	snapshot := domain.Snapshot{Records: file.Data}
	if ts, ok := parseTimestamp(file.Timestamp, c.loc); ok {
		snapshot.Timestamp = ts
		age := c.now().Sub(ts)
		if c.staleAfter > 0 && age > c.staleAfter {
			c.logger.Warn("tender data is stale", "age_minutes", int(age.Minutes()))
		}
	}
	return snapshot, nil
}

// Save writes the snapshot with summary stats, replacing the previous file atomically.
func (c *SnapshotCache) Save(_ context.Context, snapshot domain.Snapshot) error {
	ts := snapshot.Timestamp
	if ts.IsZero() {
		ts = c.now()
	}
	records := snapshot.Records
	if records == nil {
		records = []domain.Record{}
	}

	file := snapshotFile{
		Timestamp: ts.Format(time.RFC3339),
		Data:      records,
		Stats:     Stats(records, ts),
		Version:   snapshotVersion,
	}
	return writeJSON(c.path, file)
}

// Stats counts records per category and per procuring entity.
func Stats(records []domain.Record, harvested time.Time) domain.SnapshotStats {
	stats := domain.SnapshotStats{
		TotalRecords: len(records),
		HarvestTime:  harvested.Format(time.RFC3339),
		Categories:   map[string]int{},
		Entities:     map[string]int{},
	}
	for _, r := range records {
		stats.Categories[tender.Category(r)]++
		stats.Entities[tender.Entity(r)]++
	}
	return stats
}

func parseTimestamp(value string, loc *time.Location) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, true
	}
	if ts, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", value, loc); err == nil {
		return ts, true
	}
	return time.Time{}, false
}
