// Package ledger tracks which tender identities each recipient has already
// been sent, across all subscriptions.
package ledger

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"TenderWatch/internal/domain"
)

// ErrCorrupt marks persisted ledger state that could not be decoded.
var ErrCorrupt = errors.New("ledger state is corrupt")

// Entry is the persisted form of one recipient.
type Entry struct {
	FirstSeen   string   `json:"first_seen"`
	SentTenders []string `json:"sent_tenders"`
	LastSent    string   `json:"last_sent,omitempty"`
}

// Data is the persisted form of the whole ledger.
type Data struct {
	Recipients  map[string]Entry `json:"recipients"`
	LastUpdated *string          `json:"last_updated"`
}

// Backend loads and stores ledger data. Load returns an empty Data when
// nothing has been persisted yet and an error wrapping ErrCorrupt when the
// stored state cannot be decoded.
type Backend interface {
	Load(ctx context.Context) (Data, error)
	Store(ctx context.Context, data Data) error
}

type recipient struct {
	firstSeen string
	lastSent  string
	sent      map[string]struct{}
}

// Ledger is the in-memory view of the delivery ledger. It is not safe for
// concurrent writers; the dispatcher's execution lock provides exclusivity.
type Ledger struct {
	backend    Backend
	recipients map[string]*recipient
	now        func() time.Time
	logger     *slog.Logger
}

// Open loads the ledger from the backend. Corrupt state is logged and
// replaced by an empty ledger.
func Open(ctx context.Context, backend Backend, now func() time.Time, logger *slog.Logger) (*Ledger, error) {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := &Ledger{
		backend:    backend,
		recipients: map[string]*recipient{},
		now:        now,
		logger:     logger,
	}

	data, err := backend.Load(ctx)
	switch {
	case errors.Is(err, ErrCorrupt):
		logger.Warn("delivery ledger corrupt, starting fresh", "error", err)
		return l, nil
	case err != nil:
		return nil, errors.Wrap(err, "load delivery ledger")
	}

	for email, entry := range data.Recipients {
		rec := &recipient{
			firstSeen: entry.FirstSeen,
			lastSent:  entry.LastSent,
			sent:      make(map[string]struct{}, len(entry.SentTenders)),
		}
		for _, id := range entry.SentTenders {
			rec.sent[id] = struct{}{}
		}
		l.recipients[email] = rec
	}

	return l, nil
}

// IsNewRecipient reports whether the recipient has no ledger entry.
func (l *Ledger) IsNewRecipient(email string) bool {
	_, ok := l.recipients[email]
	return !ok
}

// SentTenders returns a copy of the identities already sent to email.
func (l *Ledger) SentTenders(email string) map[string]struct{} {
	out := map[string]struct{}{}
	if rec, ok := l.recipients[email]; ok {
		for id := range rec.sent {
			out[id] = struct{}{}
		}
	}
	return out
}

// MarkSent merges ids into the recipient's sent set, creating the entry if needed.
func (l *Ledger) MarkSent(email string, ids []string) {
	stamp := l.now().Format(time.RFC3339)

	rec, ok := l.recipients[email]
	if !ok {
		rec = &recipient{firstSeen: stamp, sent: map[string]struct{}{}}
		l.recipients[email] = rec
	}
	for _, id := range ids {
		if id != "" {
			rec.sent[id] = struct{}{}
		}
	}
	rec.lastSent = stamp
}

// Prune drops every recipient not in active and returns the removed addresses.
func (l *Ledger) Prune(active map[string]struct{}) []string {
	var removed []string
	for email := range l.recipients {
		if _, keep := active[email]; keep {
			continue
		}
		delete(l.recipients, email)
		removed = append(removed, email)
	}
	sort.Strings(removed)
	return removed
}

// Save persists the ledger through its backend.
func (l *Ledger) Save(ctx context.Context) error {
	stamp := l.now().Format(time.RFC3339)
	data := Data{
		Recipients:  make(map[string]Entry, len(l.recipients)),
		LastUpdated: &stamp,
	}
	for email, rec := range l.recipients {
		data.Recipients[email] = Entry{
			FirstSeen:   rec.firstSeen,
			SentTenders: sortedIDs(rec.sent),
			LastSent:    rec.lastSent,
		}
	}

	if err := l.backend.Store(ctx, data); err != nil {
		return errors.Wrap(err, "store delivery ledger")
	}
	return nil
}

// Stats summarises the ledger for operators.
func (l *Ledger) Stats() domain.LedgerStats {
	stats := domain.LedgerStats{
		TotalRecipients: len(l.recipients),
		Recipients:      make(map[string]domain.RecipientStats, len(l.recipients)),
	}
	for email, rec := range l.recipients {
		stats.Recipients[email] = domain.RecipientStats{
			TendersSent: len(rec.sent),
			FirstSeen:   rec.firstSeen,
			LastSent:    rec.lastSent,
		}
	}
	return stats
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
