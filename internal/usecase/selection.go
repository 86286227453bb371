package usecase

import (
	"time"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
	"TenderWatch/internal/tender"
)

// Selection is the candidate set chosen for one subscription run.
type Selection struct {
	Tenders []domain.Record
	CatchUp bool
}

// SelectCandidates picks the records a subscription should be notified about.
//
// Only active records matching the subscription's classes are candidates.
// When a recipient is new and mode is AllActive, every candidate that at
// least one new recipient has not received yet is selected (catch-up).
// Otherwise the seen-set is the only gate.
func SelectCandidates(
	records []domain.Record,
	sub domain.Subscription,
	seen map[string]struct{},
	ledger ports.DeliveryLedger,
	mode domain.NewRecipientMode,
	now time.Time,
) Selection {
	var newRecipients []string
	for _, email := range sub.Recipients {
		if ledger.IsNewRecipient(email) {
			newRecipients = append(newRecipients, email)
		}
	}

	var (
		active []domain.Record
		fresh  []domain.Record
		picked = map[string]struct{}{}
	)
	for _, record := range records {
		id := tender.ID(record)
		if id == "" {
			continue
		}
		if _, dup := picked[id]; dup {
			continue
		}
		if !tender.MatchesFilter(record, sub.Classes) || !tender.IsActive(record, now) {
			continue
		}
		picked[id] = struct{}{}

		active = append(active, record)
		if _, ok := seen[id]; !ok {
			fresh = append(fresh, record)
		}
	}

	if len(newRecipients) == 0 || mode != domain.AllActive {
		return Selection{Tenders: fresh}
	}

	sentSets := make([]map[string]struct{}, 0, len(newRecipients))
	for _, email := range newRecipients {
		sentSets = append(sentSets, ledger.SentTenders(email))
	}

	var unsent []domain.Record
	for _, record := range active {
		id := tender.ID(record)
		for _, sent := range sentSets {
			if _, ok := sent[id]; !ok {
				unsent = append(unsent, record)
				break
			}
		}
	}

	return Selection{Tenders: unsent, CatchUp: true}
}

// Identities returns the set of identities present in records.
func Identities(records []domain.Record) map[string]struct{} {
	ids := make(map[string]struct{}, len(records))
	for _, record := range records {
		if id := tender.ID(record); id != "" {
			ids[id] = struct{}{}
		}
	}
	return ids
}

func identityList(records []domain.Record) []string {
	ids := make([]string, 0, len(records))
	for _, record := range records {
		if id := tender.ID(record); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
