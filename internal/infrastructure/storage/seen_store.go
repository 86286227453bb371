package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"

	"TenderWatch/internal/ports"
)

// SeenStore keeps one JSON list of identities per subscription.
type SeenStore struct {
	dir    string
	logger *slog.Logger
}

var _ ports.SeenStore = (*SeenStore)(nil)

// NewSeenStore stores seen-sets under dir.
func NewSeenStore(dir string, logger *slog.Logger) *SeenStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SeenStore{dir: dir, logger: logger}
}

func (s *SeenStore) path(jobID string) string {
	return filepath.Join(s.dir, "seen_"+jobID+".json")
}

// Load returns the seen-set. Missing or corrupt files yield an empty set.
func (s *SeenStore) Load(_ context.Context, jobID string) (map[string]struct{}, error) {
	raw, err := os.ReadFile(s.path(jobID))
	if errors.Is(err, os.ErrNotExist) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read seen-set for %s", jobID)
	}

	var items []any
	if err := decodeJSON(raw, &items); err != nil {
		s.logger.Warn("corrupted seen cache, starting fresh", "job_id", jobID, "error", err)
		return map[string]struct{}{}, nil
	}

	ids := make(map[string]struct{}, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			ids[v] = struct{}{}
		case json.Number:
			ids[v.String()] = struct{}{}
		}
	}
	return ids, nil
}

// Save replaces the seen-set with ids.
func (s *SeenStore) Save(_ context.Context, jobID string, ids map[string]struct{}) error {
	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	sort.Strings(list)
	return writeJSON(s.path(jobID), list)
}

// Delete removes the seen-set of a subscription.
func (s *SeenStore) Delete(jobID string) error {
	err := os.Remove(s.path(jobID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
