package usecase

import (
	"log/slog"
	"sort"
	"time"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
)

// IsDue evaluates the subscription's schedule at the given minute. An
// expression that cannot be evaluated is logged and treated as not due.
func IsDue(eval ports.ScheduleEvaluator, sub domain.Subscription, minute time.Time, logger *slog.Logger) bool {
	due, err := eval.IsDue(sub.Schedule, minute)
	if err != nil {
		if logger != nil {
			logger.Error("invalid schedule", "job_id", sub.ID, "schedule", sub.Schedule, "error", err)
		}
		return false
	}
	return due
}

// SelectDue returns the due subscriptions ordered by id.
func SelectDue(subs []domain.Subscription, minute time.Time, eval ports.ScheduleEvaluator, logger *slog.Logger) []domain.Subscription {
	ordered := make([]domain.Subscription, len(subs))
	copy(ordered, subs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	var due []domain.Subscription
	for _, sub := range ordered {
		if IsDue(eval, sub, minute, logger) {
			due = append(due, sub)
		}
	}
	return due
}

// truncateToMinute drops seconds in the time's own location.
func truncateToMinute(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
}
