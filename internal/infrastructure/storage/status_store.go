package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
)

// StatusStore keeps one merged key/value snapshot per subscription for the dashboard.
type StatusStore struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger
}

var _ ports.StatusStore = (*StatusStore)(nil)

// NewStatusStore stores status snapshots under dir.
func NewStatusStore(dir string, now func() time.Time, logger *slog.Logger) *StatusStore {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusStore{dir: dir, now: now, logger: logger}
}

func (s *StatusStore) path(jobID string) string {
	return filepath.Join(s.dir, jobID+".json")
}

// Get returns the current snapshot, defaulting to idle.
func (s *StatusStore) Get(_ context.Context, jobID string) domain.StatusFields {
	current := domain.StatusFields{"status": string(domain.JobIdle)}
	raw, err := os.ReadFile(s.path(jobID))
	if err != nil {
		return current
	}
	var stored domain.StatusFields
	if err := decodeJSON(raw, &stored); err != nil || stored == nil {
		s.logger.Warn("corrupted status file, resetting", "job_id", jobID, "error", err)
		return current
	}
	return stored
}

// Update merges fields into the snapshot and sets the state.
func (s *StatusStore) Update(ctx context.Context, jobID string, state domain.JobState, fields domain.StatusFields) error {
	current := s.Get(ctx, jobID)
	for k, v := range fields {
		current[k] = v
	}
	current["status"] = string(state)
	current["last_update"] = s.now().Format(time.RFC3339)

	if err := writeJSON(s.path(jobID), current); err != nil {
		return errors.Wrapf(err, "write status for %s", jobID)
	}
	return nil
}

// Delete removes the snapshot of a subscription.
func (s *StatusStore) Delete(jobID string) error {
	err := os.Remove(s.path(jobID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
