package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
)

var (
	// ErrNotFound is returned when a subscription id has no config file.
	ErrNotFound = errors.New("subscription not found")
	// ErrInvalid is returned when a subscription lacks required fields.
	ErrInvalid = errors.New("invalid subscription")
)

// SubscriptionStore keeps one JSON config file per subscription.
type SubscriptionStore struct {
	dir    string
	logger *slog.Logger
}

var _ ports.SubscriptionStore = (*SubscriptionStore)(nil)

// NewSubscriptionStore stores configs under dir.
func NewSubscriptionStore(dir string, logger *slog.Logger) *SubscriptionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionStore{dir: dir, logger: logger}
}

func (s *SubscriptionStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// ListValid returns every well-formed subscription sorted by file name.
// Malformed files are rewritten with placeholder values and left out of the
// result; a file that cannot be rewritten is removed.
func (s *SubscriptionStore) ListValid(_ context.Context) ([]domain.Subscription, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, errors.Wrap(err, "list subscription files")
	}
	sort.Strings(paths)

	subs := make([]domain.Subscription, 0, len(paths))
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			s.logger.Error("read subscription", "file", filepath.Base(path), "error", err)
			continue
		}

		var sub domain.Subscription
		decodeErr := json.Unmarshal(raw, &sub)
		sub = normalize(sub)
		if decodeErr == nil && sub.Valid() {
			subs = append(subs, sub)
			continue
		}

		s.logger.Warn("malformed subscription, repairing", "file", filepath.Base(path), "error", decodeErr)
		s.repair(path, raw)
	}
	return subs, nil
}

// repair rewrites path keeping every field that still decodes and filling
// the rest with placeholders.
func (s *SubscriptionStore) repair(path string, raw []byte) {
	fixed := domain.Subscription{
		ID:         strings.TrimSuffix(filepath.Base(path), ".json"),
		Classes:    []string{},
		Recipients: []string{domain.RepairRecipient},
		Schedule:   domain.RepairSchedule,
		Interval:   domain.RepairInterval,
	}

	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) == nil {
		var id string
		if json.Unmarshal(fields["id"], &id) == nil && strings.TrimSpace(id) != "" {
			fixed.ID = id
		}
		var classes []string
		if json.Unmarshal(fields["classes"], &classes) == nil && classes != nil {
			fixed.Classes = classes
		}
		var recipients []string
		if json.Unmarshal(fields["recipients"], &recipients) == nil && len(recipients) > 0 {
			fixed.Recipients = recipients
		}
		var schedule string
		if json.Unmarshal(fields["schedule"], &schedule) == nil && strings.TrimSpace(schedule) != "" {
			fixed.Schedule = schedule
		}
		var interval string
		if json.Unmarshal(fields["interval"], &interval) == nil && interval != "" {
			fixed.Interval = interval
		}
	}

	if err := writeJSON(path, fixed); err != nil {
		s.logger.Error("repair failed, removing subscription", "file", filepath.Base(path), "error", err)
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			s.logger.Error("remove subscription", "file", filepath.Base(path), "error", rmErr)
		}
		return
	}
	s.logger.Info("subscription repaired", "job_id", fixed.ID)
}

// List returns every readable subscription without repairing anything.
func (s *SubscriptionStore) List(_ context.Context) ([]domain.Subscription, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, errors.Wrap(err, "list subscription files")
	}
	sort.Strings(paths)

	subs := make([]domain.Subscription, 0, len(paths))
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var sub domain.Subscription
		if json.Unmarshal(raw, &sub) != nil {
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// Get loads a single subscription by id.
func (s *SubscriptionStore) Get(_ context.Context, id string) (domain.Subscription, error) {
	raw, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return domain.Subscription{}, errors.Wrapf(ErrNotFound, "id %s", id)
	}
	if err != nil {
		return domain.Subscription{}, errors.Wrapf(err, "read subscription %s", id)
	}
	var sub domain.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return domain.Subscription{}, errors.Wrapf(err, "decode subscription %s", id)
	}
	return sub, nil
}

// Save validates and writes sub under its id.
func (s *SubscriptionStore) Save(_ context.Context, sub domain.Subscription) error {
	sub = normalize(sub)
	if !sub.Valid() {
		return errors.WithHint(errors.Wrapf(ErrInvalid, "id %q", sub.ID),
			"a subscription needs an id, a schedule and at least one recipient")
	}
	return writeJSON(s.path(sub.ID), sub)
}

// Create assigns a fresh short id and saves sub. A known interval key
// overrides the schedule.
func (s *SubscriptionStore) Create(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	if expr, ok := domain.Intervals[sub.Interval]; ok {
		sub.Schedule = expr
	}
	for {
		sub.ID = strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		if _, err := os.Stat(s.path(sub.ID)); errors.Is(err, os.ErrNotExist) {
			break
		}
	}
	if err := s.Save(ctx, sub); err != nil {
		return domain.Subscription{}, err
	}
	return sub, nil
}

// Delete removes the config file of id.
func (s *SubscriptionStore) Delete(_ context.Context, id string) error {
	err := os.Remove(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(ErrNotFound, "id %s", id)
	}
	return errors.Wrapf(err, "remove subscription %s", id)
}

// normalize trims whitespace and drops empty list entries.
func normalize(sub domain.Subscription) domain.Subscription {
	sub.ID = strings.TrimSpace(sub.ID)
	sub.Schedule = strings.TrimSpace(sub.Schedule)
	sub.Classes = compact(sub.Classes)
	sub.Recipients = compact(sub.Recipients)
	return sub
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
