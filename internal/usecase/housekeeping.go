package usecase

import (
	"context"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
)

// housekeeping prunes ledger entries of recipients no subscription references.
// Subscriptions are listed again so that configs repaired earlier in the tick
// keep their recipients.
func (d *Dispatcher) housekeeping(ctx context.Context, ledger ports.DeliveryLedger) []string {
	subs, err := d.subscriptions.ListValid(ctx)
	if err != nil {
		d.logger.Error("cleanup skipped: load subscriptions", "error", err)
		return nil
	}

	removed := ledger.Prune(ActiveRecipients(subs))
	if len(removed) == 0 {
		return nil
	}
	for _, email := range removed {
		d.logger.Info("removed tracking for orphaned recipient", "email", email)
	}
	if err := ledger.Save(ctx); err != nil {
		d.logger.Error("cleanup failed", "error", err)
	}
	return removed
}

// ActiveRecipients collects every recipient address referenced by subs.
func ActiveRecipients(subs []domain.Subscription) map[string]struct{} {
	active := map[string]struct{}{}
	for _, sub := range subs {
		for _, email := range sub.Recipients {
			active[email] = struct{}{}
		}
	}
	return active
}
