package service

import (
	"context"
	"testing"

	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/domain"
	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/service/mocks"
	"github.com/anthanhphan/go-distributed-timeseries-store/pkg/resilience"
	"github.com/anthanhphan/go-distributed-timeseries-store/pkg/shard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type ingestFixture struct {
	svc      *IngestServiceImpl
	topology *TopologyServiceImpl
	mapper   *shard.Mapper
	rp       *mocks.MockReprojector
	catalog  *mocks.MockSegmentCatalog
}

func newIngestFixture(t *testing.T, withCatalog bool) *ingestFixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	mapper, err := shard.NewMapper(16)
	require.NoError(t, err)

	topology := NewTopologyService(mapper)
	t.Cleanup(topology.Stop)

	pool := resilience.NewWorkerPool(2, 8)
	t.Cleanup(pool.Close)

	rp := mocks.NewMockReprojector(ctrl)
	cfg := CoordinatorConfig{FlushTriggerRows: 100, MaxRowsPerTable: 200}

	f := &ingestFixture{topology: topology, mapper: mapper, rp: rp}
	if withCatalog {
		f.catalog = mocks.NewMockSegmentCatalog(ctrl)
		f.svc = NewIngestService(mapper, topology, rp, f.catalog, pool, cfg, "node-local")
	} else {
		f.svc = NewIngestService(mapper, topology, rp, nil, pool, cfg, "node-local")
	}
	t.Cleanup(func() { f.svc.Shutdown(context.Background()) })
	// Shutdown's final flush reprojects whatever is still buffered. This
	// cleanup runs before the shutdown one, so the catch-all lands after
	// the test body's own expectations.
	t.Cleanup(func() {
		rp.EXPECT().Reproject(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	})
	return f
}

// datasetShard resolves the shard a dataset's batches land on.
func (f *ingestFixture) datasetShard(dataset string) uint32 {
	return f.mapper.PartitionShard(shard.KeyGroupHash(dataset))
}

func TestIngestService_SubmitRowsValidation(t *testing.T) {
	f := newIngestFixture(t, false)
	ctx := context.Background()

	_, _, err := f.svc.SubmitRows(ctx, "", makeBatch(1, 1))
	assert.ErrorIs(t, err, domain.ErrUnknownDataset)

	_, _, err = f.svc.SubmitRows(ctx, "metrics", domain.RowBatch{SequenceID: 1})
	assert.ErrorIs(t, err, domain.ErrEmptyBatch)

	bad := domain.RowBatch{SequenceID: 1, Rows: []domain.Row{{Timestamp: 1, Value: 2}}}
	_, _, err = f.svc.SubmitRows(ctx, "metrics", bad)
	assert.ErrorIs(t, err, domain.ErrMissingSeries)
}

func TestIngestService_SubmitRowsUnassignedShardAccepts(t *testing.T) {
	f := newIngestFixture(t, false)

	// No topology events applied: every shard is unassigned and writes
	// are accepted locally.
	ack, acked, err := f.svc.SubmitRows(context.Background(), "metrics", makeBatch(11, 3))
	require.NoError(t, err)
	require.True(t, acked)
	assert.Equal(t, int64(11), ack.SequenceID)

	stats, err := f.svc.DatasetStats(context.Background(), "metrics")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ActiveRowCount)
}

func TestIngestService_SubmitRowsOwnShardAccepts(t *testing.T) {
	f := newIngestFixture(t, false)
	ctx := context.Background()

	local := shard.Node{ID: "node-local", Addr: "10.0.0.1:8086", Incarnation: 1}
	s := f.datasetShard("metrics")
	require.NoError(t, f.topology.ApplyEvent(ctx, shard.Event{Type: shard.EventIngestionStarted, Shard: s, Node: local}))

	_, acked, err := f.svc.SubmitRows(ctx, "metrics", makeBatch(1, 2))
	require.NoError(t, err)
	assert.True(t, acked)
}

func TestIngestService_SubmitRowsRejectsForeignShard(t *testing.T) {
	f := newIngestFixture(t, false)
	ctx := context.Background()

	other := shard.Node{ID: "node-other", Addr: "10.0.0.2:8086", Incarnation: 1}
	s := f.datasetShard("metrics")
	require.NoError(t, f.topology.ApplyEvent(ctx, shard.Event{Type: shard.EventIngestionStarted, Shard: s, Node: other}))

	_, acked, err := f.svc.SubmitRows(ctx, "metrics", makeBatch(1, 2))
	assert.ErrorIs(t, err, domain.ErrShardNotServed)
	assert.False(t, acked)
}

func TestIngestService_ForceFlushUnknownDataset(t *testing.T) {
	f := newIngestFixture(t, false)

	_, err := f.svc.ForceFlush(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrUnknownDataset)

	_, err = f.svc.DatasetStats(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrUnknownDataset)
}

func TestIngestService_ForceFlush(t *testing.T) {
	f := newIngestFixture(t, false)
	ctx := context.Background()

	f.rp.EXPECT().
		Reproject(gomock.Any(), "metrics", gomock.Any()).
		Return([]domain.SegmentDescriptor{{ID: 1, Dataset: "metrics", RowCount: 5}}, nil)

	_, _, err := f.svc.SubmitRows(ctx, "metrics", makeBatch(1, 5))
	require.NoError(t, err)

	res, err := f.svc.ForceFlush(ctx, "metrics")
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, 5, res.RowCount)
}

func TestIngestService_AllStats(t *testing.T) {
	f := newIngestFixture(t, false)
	ctx := context.Background()

	_, _, err := f.svc.SubmitRows(ctx, "metrics", makeBatch(1, 2))
	require.NoError(t, err)
	_, _, err = f.svc.SubmitRows(ctx, "events", makeBatch(2, 3))
	require.NoError(t, err)

	all := f.svc.AllStats(ctx)
	require.Len(t, all, 2)
	// Stable dataset order.
	assert.Equal(t, "events", all[0].Dataset)
	assert.Equal(t, "metrics", all[1].Dataset)
	assert.Equal(t, 3, all[0].ActiveRowCount)
	assert.Equal(t, 2, all[1].ActiveRowCount)
}

func TestIngestService_QueryShards(t *testing.T) {
	f := newIngestFixture(t, false)

	r, err := f.svc.QueryShards("metrics", 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), r.Count())

	_, err = f.svc.QueryShards("metrics", 200)
	assert.ErrorIs(t, err, shard.ErrInvalidSpread)
}

func TestIngestService_ListSegments(t *testing.T) {
	f := newIngestFixture(t, true)
	ctx := context.Background()

	want := []domain.SegmentDescriptor{{ID: 3, Dataset: "metrics", RowCount: 7}}
	f.catalog.EXPECT().
		ListSegments(gomock.Any(), "metrics").
		Return(want, nil)

	got, err := f.svc.ListSegments(ctx, "metrics")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestIngestService_ListSegmentsNoCatalog(t *testing.T) {
	f := newIngestFixture(t, false)

	got, err := f.svc.ListSegments(context.Background(), "metrics")
	require.NoError(t, err)
	assert.Nil(t, got)
}
