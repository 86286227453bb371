package domain

import "time"

// Record is a raw tender as delivered by the upstream portal. The portal has
// changed its schema several times, so fields are resolved by the tender
// package rather than decoded into a fixed struct.
type Record map[string]any

// Snapshot is the harvested record set together with its freshness timestamp.
type Snapshot struct {
	Timestamp time.Time
	Records   []Record
}

// SnapshotStats summarises a harvest for the dashboard.
type SnapshotStats struct {
	TotalRecords int            `json:"total_records"`
	HarvestTime  string         `json:"harvest_time"`
	Categories   map[string]int `json:"categories"`
	Entities     map[string]int `json:"entities"`
}
