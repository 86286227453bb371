package ports

import (
	"context"
	"time"

	"TenderWatch/internal/domain"
)

// TenderSource reads the harvested snapshot. It fails closed: any missing or
// unreadable input is reported as an error and never as a partial snapshot.
type TenderSource interface {
	Load(ctx context.Context) (domain.Snapshot, error)
}

// SnapshotWriter persists a freshly harvested record set.
type SnapshotWriter interface {
	Save(ctx context.Context, snapshot domain.Snapshot) error
}

// RecordFetcher pulls raw records from upstream providers.
type RecordFetcher interface {
	FetchAll(ctx context.Context, maxPages int) ([]domain.Record, error)
}

// SubscriptionStore lists subscriptions, repairing or removing malformed ones.
type SubscriptionStore interface {
	ListValid(ctx context.Context) ([]domain.Subscription, error)
}

// SeenStore keeps the per-subscription seen-set.
type SeenStore interface {
	Load(ctx context.Context, jobID string) (map[string]struct{}, error)
	Save(ctx context.Context, jobID string, ids map[string]struct{}) error
}

// DeliveryLedger records which identities each recipient has received.
type DeliveryLedger interface {
	IsNewRecipient(email string) bool
	SentTenders(email string) map[string]struct{}
	MarkSent(email string, ids []string)
	Prune(active map[string]struct{}) []string
	Save(ctx context.Context) error
}

// StatusStore merges status snapshots for the dashboard.
type StatusStore interface {
	Update(ctx context.Context, jobID string, state domain.JobState, fields domain.StatusFields) error
}

// HistoryLog appends one entry per job execution.
type HistoryLog interface {
	Append(ctx context.Context, entry domain.HistoryEntry) error
}

// Notifier delivers a digest to the subscription's recipients.
type Notifier interface {
	Send(ctx context.Context, msg domain.Message) error
}

// OpsNotifier streams short operator summaries to a chat channel.
type OpsNotifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// ScheduleEvaluator decides whether a cron expression fires at the given minute.
type ScheduleEvaluator interface {
	IsDue(expr string, at time.Time) (bool, error)
}

// Locker is a non-blocking, single-host mutual exclusion primitive.
type Locker interface {
	TryLock() (bool, error)
	Unlock() error
}

// OptionsLoader reads the operator options once per tick.
type OptionsLoader interface {
	Load() domain.DispatchOptions
}
