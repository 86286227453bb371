package usecase

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/tender"
)

const ruleWidth = 80

// BuildMessage renders the digest for one subscription run.
func BuildMessage(sub domain.Subscription, sel Selection, opts domain.DispatchOptions, now time.Time) domain.Message {
	suffix := ""
	if sel.CatchUp {
		suffix = " (catch-up)"
	}
	subject := strings.TrimSpace(fmt.Sprintf("%s %d new tender(s) - %s%s",
		opts.SubjectPrefix, len(sel.Tenders), now.Format("2006-01-02"), suffix))

	body := buildDigestBody(sel.Tenders, sub.ID, opts.ShowExpiredInEmails, now)
	if sel.CatchUp {
		header := "Catch-up email for new recipient(s) - Job " + sub.ID
		body = header + "\n" + strings.Repeat("=", len(header)) + "\n\n" + body
	}

	return domain.Message{
		From:    opts.EmailFrom,
		To:      append([]string(nil), sub.Recipients...),
		Subject: subject,
		Text:    body,
	}
}

func buildDigestBody(records []domain.Record, jobID string, showExpired bool, now time.Time) string {
	if len(records) == 0 {
		return fmt.Sprintf("No new tenders found for job %s.", jobID)
	}

	if !showExpired {
		active := make([]domain.Record, 0, len(records))
		for _, r := range records {
			if tender.IsActive(r, now) {
				active = append(active, r)
			}
		}
		if len(active) == 0 {
			return fmt.Sprintf("No active tenders found for job %s (found %d expired tenders).", jobID, len(records))
		}
		records = active
	}

	grouped := map[string][]domain.Record{}
	for _, r := range records {
		category := tender.Category(r)
		grouped[category] = append(grouped[category], r)
	}
	categories := make([]string, 0, len(grouped))
	for category := range grouped {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d tender(s)\n%s\n\n", len(records), strings.Repeat("=", ruleWidth))

	for _, category := range categories {
		group := grouped[category]
		sort.SliceStable(group, func(i, j int) bool {
			return tender.CloseAt(group[i]) < tender.CloseAt(group[j])
		})

		label := fmt.Sprintf("%s (%d tenders)", category, len(group))
		fmt.Fprintf(&b, "\n%s (%d tenders)\n%s\n", strings.ToUpper(category), len(group), strings.Repeat("-", utf8.RuneCountInString(label)))
		for _, r := range group {
			b.WriteString(digestLine(r, showExpired, now))
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "%s\nTotal: %d tenders\nCategories: %s\nReport generated: %s",
		strings.Repeat("=", ruleWidth),
		len(records),
		strings.Join(categories, ", "),
		now.Format("2006-01-02 15:04"))

	return b.String()
}

func digestLine(r domain.Record, withStatus bool, now time.Time) string {
	ref := tender.Field(r, "tender_ref")
	if len([]rune(ref)) > 20 {
		ref = string([]rune(ref)[:17]) + "..."
	}
	closeAt := tender.CloseAt(r)
	if closeAt == "" {
		closeAt = "Unknown"
	}
	id := tender.ID(r)
	if id == "" {
		id = "Unknown"
	}

	line := fmt.Sprintf("ID: %s | Ref: %s | %s | %s | Closes: %s | %s",
		id, ref,
		ellipsis(tender.Title(r), 60),
		tender.Category(r),
		closeAt,
		ellipsis(tender.Entity(r), 30))

	if withStatus {
		status := "EXPIRED"
		if tender.IsActive(r, now) {
			status = "ACTIVE"
		}
		line += " | Status: " + status
	}
	return line
}

func ellipsis(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
