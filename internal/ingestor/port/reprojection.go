package port

import (
	"context"

	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/domain"
)

//go:generate mockgen -destination=../service/mocks/reprojection_mock.go -package=mocks -source=reprojection.go

// Reprojector persists one flushed table to durable column storage.
type Reprojector interface {
	// Reproject writes the table's rows as one or more column segments and
	// returns their descriptors. Invoked once per flush; on error the
	// flush is counted as failed and the rows are dropped from memory;
	// the reprojector's own durability guarantees are the recovery
	// mechanism.
	Reproject(ctx context.Context, dataset string, table *domain.MemTable) ([]domain.SegmentDescriptor, error)
}
