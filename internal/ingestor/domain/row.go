package domain

import "errors"

var (
	ErrEmptyBatch      = errors.New("row batch is empty")
	ErrMissingSeries   = errors.New("row has no series key")
	ErrUnknownDataset  = errors.New("unknown dataset")
	ErrShardNotServed  = errors.New("shard is not served by this node")
	ErrCoordinatorDown = errors.New("ingestion coordinator is stopped")
)

// Row is one structured time-series point. The binary on-disk encoding is
// owned by the reprojection collaborator, not by this package.
type Row struct {
	SeriesKey string  `json:"series_key"`
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// RowBatch is an ordered, finite batch of rows submitted in one request.
// SequenceID is caller-assigned and used purely for acknowledgment
// correlation; it carries no ordering or dedup meaning.
type RowBatch struct {
	SequenceID int64 `json:"sequence_id"`
	Rows       []Row `json:"rows"`
}

// Validate rejects structurally unusable batches before buffering.
func (b RowBatch) Validate() error {
	if len(b.Rows) == 0 {
		return ErrEmptyBatch
	}
	for _, r := range b.Rows {
		if r.SeriesKey == "" {
			return ErrMissingSeries
		}
	}
	return nil
}

// Ack correlates an accepted batch back to its submitter. The absence of
// an Ack is the backpressure signal; the sender retries unacknowledged
// batches.
type Ack struct {
	SequenceID int64 `json:"sequence_id"`
}
