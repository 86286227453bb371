package domain

// JobState is the dashboard-facing state of a subscription.
type JobState string

const (
	JobIdle    JobState = "idle"
	JobRunning JobState = "running"
	JobError   JobState = "error"
)

// StatusFields carries the free-form key/value part of a status snapshot.
type StatusFields map[string]any

// HistoryEntry is one line of the execution history log.
type HistoryEntry struct {
	Timestamp       string  `json:"timestamp"`
	JobID           string  `json:"job_id"`
	Success         bool    `json:"success"`
	TendersFound    int     `json:"tenders_found"`
	DurationSeconds float64 `json:"duration_seconds"`
	Error           *string `json:"error"`
}
