package service

import (
	"context"
	"fmt"

	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/domain"
	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/port"
	"github.com/anthanhphan/go-distributed-timeseries-store/pkg/resilience"
	"github.com/anthanhphan/go-distributed-timeseries-store/pkg/shard"
	"github.com/anthanhphan/gosdk/logger"
)

// IngestServiceImpl is the facade that wires the write-path use cases:
// shard resolution, per-dataset coordination and segment discovery.
type IngestServiceImpl struct {
	mapper   *shard.Mapper
	topology port.TopologyService
	catalog  port.SegmentCatalog
	nodeID   string

	registry *coordinatorRegistry
}

// Ensure IngestServiceImpl implements port.IngestService.
var _ port.IngestService = (*IngestServiceImpl)(nil)

// NewIngestService builds the ingest facade. mapper is used for routing
// math only; all owner/status reads go through topology, the mapper's
// single writer.
func NewIngestService(
	mapper *shard.Mapper,
	topology port.TopologyService,
	reprojector port.Reprojector,
	catalog port.SegmentCatalog,
	pool *resilience.WorkerPool,
	coordCfg CoordinatorConfig,
	nodeID string,
) *IngestServiceImpl {
	return &IngestServiceImpl{
		mapper:   mapper,
		topology: topology,
		catalog:  catalog,
		nodeID:   nodeID,
		registry: newCoordinatorRegistry(coordCfg, reprojector, catalog, pool),
	}
}

// SubmitRows resolves the dataset's destination shard, verifies this node
// serves it, and forwards the batch to the dataset's coordinator.
func (s *IngestServiceImpl) SubmitRows(ctx context.Context, dataset string, batch domain.RowBatch) (domain.Ack, bool, error) {
	if dataset == "" {
		return domain.Ack{}, false, domain.ErrUnknownDataset
	}
	if err := batch.Validate(); err != nil {
		return domain.Ack{}, false, err
	}

	// Default single-shard mapping for the dataset's key-group; spread
	// routing per series is the upstream sender's concern.
	shardIdx := s.mapper.PartitionShard(shard.KeyGroupHash(dataset))
	if err := s.checkShardServed(ctx, shardIdx, dataset); err != nil {
		return domain.Ack{}, false, err
	}

	return s.registry.get(dataset).SubmitRows(ctx, batch)
}

// checkShardServed rejects batches whose shard is owned by another node.
// An unassigned shard is accepted: refusing writes during topology warmup
// would drop data a single-node deployment can perfectly well buffer.
func (s *IngestServiceImpl) checkShardServed(ctx context.Context, shardIdx uint32, dataset string) error {
	owner, ok, err := s.topology.ShardOwner(ctx, shardIdx)
	if err != nil {
		return err
	}
	if ok && owner.ID != s.nodeID {
		logger.Warnw("Batch rejected, shard owned elsewhere",
			"dataset", dataset, "shard", shardIdx, "owner", owner.ID, "node_id", s.nodeID)
		return fmt.Errorf("%w: shard %d owned by %s", domain.ErrShardNotServed, shardIdx, owner.ID)
	}
	return nil
}

// ForceFlush flushes the dataset's active table and waits for completion.
func (s *IngestServiceImpl) ForceFlush(ctx context.Context, dataset string) (domain.FlushResult, error) {
	c, ok := s.registry.lookup(dataset)
	if !ok {
		return domain.FlushResult{}, fmt.Errorf("%w: %s", domain.ErrUnknownDataset, dataset)
	}
	return c.ForceFlush(ctx)
}

// DatasetStats returns the coordinator snapshot for one dataset.
func (s *IngestServiceImpl) DatasetStats(ctx context.Context, dataset string) (domain.IngestionStats, error) {
	c, ok := s.registry.lookup(dataset)
	if !ok {
		return domain.IngestionStats{}, fmt.Errorf("%w: %s", domain.ErrUnknownDataset, dataset)
	}
	return c.Stats(ctx)
}

// AllStats returns snapshots for every live coordinator.
func (s *IngestServiceImpl) AllStats(ctx context.Context) []domain.IngestionStats {
	coordinators := s.registry.all()
	out := make([]domain.IngestionStats, 0, len(coordinators))
	for _, c := range coordinators {
		stats, err := c.Stats(ctx)
		if err != nil {
			continue
		}
		out = append(out, stats)
	}
	return out
}

// QueryShards resolves the shard fan-out for a key-group at a spread.
func (s *IngestServiceImpl) QueryShards(group string, spread uint8) (shard.Range, error) {
	return s.mapper.QueryShards(shard.KeyGroupHash(group), spread)
}

// ListSegments returns the dataset's registered segment descriptors.
func (s *IngestServiceImpl) ListSegments(ctx context.Context, dataset string) ([]domain.SegmentDescriptor, error) {
	if s.catalog == nil {
		return nil, nil
	}
	return s.catalog.ListSegments(ctx, dataset)
}

// Shutdown flushes and stops every coordinator.
func (s *IngestServiceImpl) Shutdown(ctx context.Context) {
	s.registry.shutdown(ctx)
}
