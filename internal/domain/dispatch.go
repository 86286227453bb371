package domain

// NewRecipientMode selects what a recipient who has never received a digest gets.
type NewRecipientMode string

const (
	// NewOnly treats new recipients like everyone else: only unseen tenders.
	NewOnly NewRecipientMode = "new_only"
	// AllActive back-fills new recipients with every active tender they lack.
	AllActive NewRecipientMode = "all_active"
)

// ParseNewRecipientMode falls back to NewOnly for unknown values.
func ParseNewRecipientMode(value string) NewRecipientMode {
	if NewRecipientMode(value) == AllActive {
		return AllActive
	}
	return NewOnly
}

// DispatchOptions is the operator-tunable configuration, re-read once per tick.
type DispatchOptions struct {
	NewRecipientMode        NewRecipientMode
	HarvestFrequencyMinutes int
	MaxSourcePages          int
	ShowExpiredInEmails     bool
	EmailFrom               string
	SubjectPrefix           string
	ResendAPIKey            string
}

// Message is a notification handed to the sink.
type Message struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

// RecipientStats summarises one ledger entry.
type RecipientStats struct {
	TendersSent int    `json:"tenders_sent"`
	FirstSeen   string `json:"first_seen"`
	LastSent    string `json:"last_sent"`
}

// LedgerStats summarises the delivery ledger for operators.
type LedgerStats struct {
	TotalRecipients int                       `json:"total_recipients"`
	Recipients      map[string]RecipientStats `json:"recipients"`
}
