package port

import (
	"context"

	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/domain"
	"github.com/anthanhphan/go-distributed-timeseries-store/pkg/shard"
)

// IngestService defines the write-path business logic exposed to the
// inbound transport.
type IngestService interface {
	// SubmitRows routes the batch to its shard's coordinator. acked is
	// false when the batch was dropped for backpressure; the sender must
	// treat a missing ack as "retry later".
	SubmitRows(ctx context.Context, dataset string, batch domain.RowBatch) (ack domain.Ack, acked bool, err error)

	// ForceFlush flushes the dataset's active table regardless of row
	// count and waits for the persistence round-trip.
	ForceFlush(ctx context.Context, dataset string) (domain.FlushResult, error)

	// DatasetStats returns the coordinator snapshot for one dataset.
	DatasetStats(ctx context.Context, dataset string) (domain.IngestionStats, error)

	// AllStats returns snapshots for every live coordinator.
	AllStats(ctx context.Context) []domain.IngestionStats

	// QueryShards resolves the shard fan-out for a key-group at a spread.
	QueryShards(group string, spread uint8) (shard.Range, error)

	// ListSegments returns the dataset's registered segment descriptors.
	ListSegments(ctx context.Context, dataset string) ([]domain.SegmentDescriptor, error)
}

// TopologyService is the single writer for the shard mapper: every
// mutation and status read goes through it.
type TopologyService interface {
	// ApplyEvent applies one cluster event to the mapper.
	ApplyEvent(ctx context.Context, ev shard.Event) error

	// NodeLeft clears shard ownership for a departed node and returns
	// the freed shards.
	NodeLeft(ctx context.Context, nodeID string) ([]uint32, error)

	// MinimalEvents snapshots a replayable event sequence for state
	// transfer.
	MinimalEvents(ctx context.Context) ([]shard.Event, error)

	// StatusCounts returns per-state shard counts for health gauges.
	StatusCounts(ctx context.Context) (map[shard.State]int, error)

	// ShardActive reports whether the shard currently accepts ingestion.
	ShardActive(ctx context.Context, s uint32) (bool, error)

	// ShardOwner returns the shard's owner, if assigned.
	ShardOwner(ctx context.Context, s uint32) (shard.Node, bool, error)
}
