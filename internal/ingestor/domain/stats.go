package domain

import "time"

// UnknownFlushDuration is the LastFlushDurationMillis sentinel reported
// until the first flush ever completes.
const UnknownFlushDuration int64 = -1

// IngestionStats is a point-in-time snapshot of one coordinator,
// polled by operational tooling.
type IngestionStats struct {
	Dataset                 string `json:"dataset"`
	FlushesStarted          int64  `json:"flushes_started"`
	FlushesSucceeded        int64  `json:"flushes_succeeded"`
	FlushesFailed           int64  `json:"flushes_failed"`
	ActiveRowCount          int    `json:"active_row_count"`
	ActiveTableVersion      int64  `json:"active_table_version"`
	LastFlushDurationMillis int64  `json:"last_flush_duration_ms"`
}

// FlushResult is delivered to flush requesters once the persistence
// round-trip completes.
type FlushResult struct {
	TableVersion int64               `json:"table_version"`
	RowCount     int                 `json:"row_count"`
	Segments     []SegmentDescriptor `json:"segments,omitempty"`
	Duration     time.Duration       `json:"-"`
	Err          error               `json:"-"`
}
