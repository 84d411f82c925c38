package service

import (
	"context"
	"sync"

	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/port"
	"github.com/anthanhphan/go-distributed-timeseries-store/pkg/shard"
	"github.com/anthanhphan/gosdk/logger"
)

// TopologyServiceImpl enforces the mapper's single-writer contract: one
// goroutine owns every mutation and status read, callers enqueue requests
// and wait for replies. Cluster events arrive here from the coordination
// layer (HTTP) and from gossip node-departure notifications.
type TopologyServiceImpl struct {
	mapper  *shard.Mapper
	mailbox chan func(*shard.Mapper)
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Ensure TopologyServiceImpl implements port.TopologyService.
var _ port.TopologyService = (*TopologyServiceImpl)(nil)

// NewTopologyService starts the single-writer loop around mapper. The
// caller must not touch mapper's mutable state directly afterwards; the
// routing math (IngestionShard, QueryShards, PartitionShard) reads only
// immutable precomputed fields and stays safe to call from anywhere.
func NewTopologyService(mapper *shard.Mapper) *TopologyServiceImpl {
	t := &TopologyServiceImpl{
		mapper:  mapper,
		mailbox: make(chan func(*shard.Mapper), 64),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *TopologyServiceImpl) run() {
	defer close(t.done)
	for {
		select {
		case req := <-t.mailbox:
			req(t.mapper)
		case <-t.stop:
			return
		}
	}
}

// Stop terminates the writer loop.
func (t *TopologyServiceImpl) Stop() {
	t.once.Do(func() { close(t.stop) })
	<-t.done
}

func (t *TopologyServiceImpl) exec(ctx context.Context, fn func(*shard.Mapper)) error {
	donech := make(chan struct{})
	wrapped := func(m *shard.Mapper) {
		fn(m)
		close(donech)
	}
	select {
	case t.mailbox <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return context.Canceled
	}
	select {
	case <-donech:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return context.Canceled
	}
}

// ApplyEvent applies one cluster event to the mapper.
func (t *TopologyServiceImpl) ApplyEvent(ctx context.Context, ev shard.Event) error {
	var applyErr error
	if err := t.exec(ctx, func(m *shard.Mapper) {
		applyErr = m.UpdateFromEvent(ev)
	}); err != nil {
		return err
	}
	if applyErr != nil {
		logger.Warnw("Cluster event rejected",
			"type", ev.Type.String(), "shard", ev.Shard, "error", applyErr.Error())
	}
	return applyErr
}

// NodeLeft clears every shard owned by the departed node.
func (t *TopologyServiceImpl) NodeLeft(ctx context.Context, nodeID string) ([]uint32, error) {
	var freed []uint32
	if err := t.exec(ctx, func(m *shard.Mapper) {
		freed = m.RemoveNode(nodeID)
	}); err != nil {
		return nil, err
	}
	if len(freed) > 0 {
		logger.Infow("Node departure freed shards", "node_id", nodeID, "shards", len(freed))
	}
	return freed, nil
}

// MinimalEvents snapshots a replayable event sequence for state transfer.
func (t *TopologyServiceImpl) MinimalEvents(ctx context.Context) ([]shard.Event, error) {
	var events []shard.Event
	if err := t.exec(ctx, func(m *shard.Mapper) {
		events = m.MinimalEvents()
	}); err != nil {
		return nil, err
	}
	return events, nil
}

// StatusCounts returns per-state shard counts for health gauges.
func (t *TopologyServiceImpl) StatusCounts(ctx context.Context) (map[shard.State]int, error) {
	var counts map[shard.State]int
	if err := t.exec(ctx, func(m *shard.Mapper) {
		counts = m.StatusCounts()
	}); err != nil {
		return nil, err
	}
	return counts, nil
}

// ShardActive reports whether the shard currently accepts ingestion.
func (t *TopologyServiceImpl) ShardActive(ctx context.Context, s uint32) (bool, error) {
	var active bool
	if err := t.exec(ctx, func(m *shard.Mapper) {
		active = m.ActiveShard(s)
	}); err != nil {
		return false, err
	}
	return active, nil
}

// ShardOwner returns the shard's owner, if assigned.
func (t *TopologyServiceImpl) ShardOwner(ctx context.Context, s uint32) (shard.Node, bool, error) {
	var (
		owner shard.Node
		ok    bool
	)
	if err := t.exec(ctx, func(m *shard.Mapper) {
		owner, ok = m.OwnerOf(s)
	}); err != nil {
		return shard.Node{}, false, err
	}
	return owner, ok, nil
}
