package port

import (
	"context"

	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/domain"
)

//go:generate mockgen -destination=../service/mocks/catalog_mock.go -package=mocks -source=catalog.go

// SegmentCatalog records which segments exist per dataset so query-side
// tooling can discover them. Registration failures must not fail the
// flush that produced the segments.
type SegmentCatalog interface {
	// RegisterSegments appends the descriptors to the dataset's catalog.
	RegisterSegments(ctx context.Context, dataset string, segments []domain.SegmentDescriptor) error

	// ListSegments returns every registered descriptor for the dataset.
	ListSegments(ctx context.Context, dataset string) ([]domain.SegmentDescriptor, error)
}
