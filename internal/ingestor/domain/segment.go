package domain

import "time"

// SegmentDescriptor identifies one durable column segment produced by a
// flush. Descriptors are what the catalog stores and what query-side
// tooling lists; the segment payload format belongs to the column store.
type SegmentDescriptor struct {
	ID           int64     `json:"id"`
	Dataset      string    `json:"dataset"`
	TableVersion int64     `json:"table_version"`
	RowCount     int       `json:"row_count"`
	SizeBytes    int64     `json:"size_bytes"`
	Path         string    `json:"path"`
	Digest       uint64    `json:"digest"`
	CreatedAt    time.Time `json:"created_at"`
}
