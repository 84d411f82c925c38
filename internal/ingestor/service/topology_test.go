package service

import (
	"context"
	"sync"
	"testing"

	"github.com/anthanhphan/go-distributed-timeseries-store/pkg/shard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTopology(t *testing.T, numShards uint32) *TopologyServiceImpl {
	t.Helper()
	mapper, err := shard.NewMapper(numShards)
	require.NoError(t, err)
	svc := NewTopologyService(mapper)
	t.Cleanup(svc.Stop)
	return svc
}

func TestTopologyService_ApplyEvent(t *testing.T) {
	svc := newTestTopology(t, 16)
	ctx := context.Background()
	node := shard.Node{ID: "node-1", Addr: "10.0.0.1:8086", Incarnation: 1}

	require.NoError(t, svc.ApplyEvent(ctx, shard.Event{Type: shard.EventAssignmentStarted, Shard: 3, Node: node}))
	require.NoError(t, svc.ApplyEvent(ctx, shard.Event{Type: shard.EventIngestionStarted, Shard: 3, Node: node}))

	active, err := svc.ShardActive(ctx, 3)
	require.NoError(t, err)
	assert.True(t, active)

	owner, ok, err := svc.ShardOwner(ctx, 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "node-1", owner.ID)

	counts, err := svc.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[shard.StateNormal])
	assert.Equal(t, 15, counts[shard.StateUnassigned])
}

func TestTopologyService_RejectsEventForOwnedShard(t *testing.T) {
	svc := newTestTopology(t, 16)
	ctx := context.Background()
	node := shard.Node{ID: "node-1", Addr: "10.0.0.1:8086", Incarnation: 1}

	require.NoError(t, svc.ApplyEvent(ctx, shard.Event{Type: shard.EventAssignmentStarted, Shard: 5, Node: node}))

	// An ingestion event naming a different node must not steal the shard.
	other := shard.Node{ID: "node-2", Addr: "10.0.0.2:8086", Incarnation: 1}
	err := svc.ApplyEvent(ctx, shard.Event{Type: shard.EventIngestionStarted, Shard: 5, Node: other})
	assert.Error(t, err)

	active, aerr := svc.ShardActive(ctx, 5)
	require.NoError(t, aerr)
	assert.False(t, active)

	owner, ok, oerr := svc.ShardOwner(ctx, 5)
	require.NoError(t, oerr)
	require.True(t, ok)
	assert.Equal(t, "node-1", owner.ID)
}

func TestTopologyService_AssignmentConflict(t *testing.T) {
	svc := newTestTopology(t, 16)
	ctx := context.Background()

	a := shard.Node{ID: "node-a", Addr: "10.0.0.1:8086", Incarnation: 1}
	b := shard.Node{ID: "node-b", Addr: "10.0.0.2:8086", Incarnation: 1}

	require.NoError(t, svc.ApplyEvent(ctx, shard.Event{Type: shard.EventAssignmentStarted, Shard: 7, Node: a}))

	err := svc.ApplyEvent(ctx, shard.Event{Type: shard.EventAssignmentStarted, Shard: 7, Node: b})
	var conflict *shard.AssignmentConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, uint32(7), conflict.Shard)
	assert.Equal(t, "node-a", conflict.Existing.ID)
}

func TestTopologyService_NodeLeft(t *testing.T) {
	svc := newTestTopology(t, 16)
	ctx := context.Background()
	node := shard.Node{ID: "node-1", Addr: "10.0.0.1:8086", Incarnation: 1}

	for _, s := range []uint32{2, 9} {
		require.NoError(t, svc.ApplyEvent(ctx, shard.Event{Type: shard.EventAssignmentStarted, Shard: s, Node: node}))
		require.NoError(t, svc.ApplyEvent(ctx, shard.Event{Type: shard.EventIngestionStarted, Shard: s, Node: node}))
	}

	freed, err := svc.NodeLeft(ctx, "node-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{2, 9}, freed)

	_, ok, err := svc.ShardOwner(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTopologyService_MinimalEventsRoundTrip(t *testing.T) {
	src := newTestTopology(t, 16)
	ctx := context.Background()
	node := shard.Node{ID: "node-1", Addr: "10.0.0.1:8086", Incarnation: 1}

	require.NoError(t, src.ApplyEvent(ctx, shard.Event{Type: shard.EventIngestionStarted, Shard: 1, Node: node}))
	require.NoError(t, src.ApplyEvent(ctx, shard.Event{Type: shard.EventRecoveryStarted, Shard: 4, Node: node, Progress: 0.5}))
	require.NoError(t, src.ApplyEvent(ctx, shard.Event{Type: shard.EventAssignmentStarted, Shard: 8, Node: node}))
	require.NoError(t, src.ApplyEvent(ctx, shard.Event{Type: shard.EventShardDown, Shard: 8}))

	events, err := src.MinimalEvents(ctx)
	require.NoError(t, err)

	dst := newTestTopology(t, 16)
	for _, ev := range events {
		require.NoError(t, dst.ApplyEvent(ctx, ev))
	}

	srcCounts, err := src.StatusCounts(ctx)
	require.NoError(t, err)
	dstCounts, err := dst.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, srcCounts, dstCounts)
}

func TestTopologyService_ConcurrentWriters(t *testing.T) {
	svc := newTestTopology(t, 256)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			node := shard.Node{ID: "node-1", Addr: "10.0.0.1:8086", Incarnation: 1}
			for i := 0; i < 32; i++ {
				s := uint32(g*32 + i)
				_ = svc.ApplyEvent(ctx, shard.Event{Type: shard.EventAssignmentStarted, Shard: s, Node: node})
				_ = svc.ApplyEvent(ctx, shard.Event{Type: shard.EventIngestionStarted, Shard: s, Node: node})
				_, _ = svc.ShardActive(ctx, s)
			}
		}(g)
	}
	wg.Wait()

	counts, err := svc.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 256, counts[shard.StateNormal])
}

func TestTopologyService_StopCancelsCallers(t *testing.T) {
	mapper, err := shard.NewMapper(16)
	require.NoError(t, err)
	svc := NewTopologyService(mapper)
	svc.Stop()

	_, err = svc.StatusCounts(context.Background())
	assert.Error(t, err)
}
