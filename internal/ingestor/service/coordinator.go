package service

import (
	"context"
	"sync"
	"time"

	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/domain"
	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/port"
	"github.com/anthanhphan/go-distributed-timeseries-store/pkg/resilience"
	"github.com/anthanhphan/gosdk/logger"
)

// CoordinatorConfig is fixed for the coordinator's lifetime.
type CoordinatorConfig struct {
	// FlushTriggerRows is the row count that starts an automatic flush.
	FlushTriggerRows int
	// MaxRowsPerTable is the hard cap past which new batches are dropped
	// without acknowledgment until a flush frees the table.
	MaxRowsPerTable int
	// FlushInterval is the periodic flush trigger; zero disables it.
	FlushInterval time.Duration
}

// Coordinator buffers one dataset's incoming rows in an active memtable,
// flushes by row count, timer or explicit request, and applies
// backpressure by withholding acknowledgments.
//
// All buffer and counter mutations happen on one goroutine draining a
// mailbox, so the coordinator needs no internal locking: concurrent
// callers enqueue requests and wait on per-request reply channels.
// Messages are processed in submission order; rows submitted after a
// flush trigger always land in the new active table. At most one flush
// is in flight at a time; a second request queues behind it.
type Coordinator struct {
	dataset     string
	cfg         CoordinatorConfig
	reprojector port.Reprojector
	catalog     port.SegmentCatalog
	pool        *resilience.WorkerPool

	mailbox chan any
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

type submitMsg struct {
	batch domain.RowBatch
	reply chan submitReply
}

type submitReply struct {
	ack   domain.Ack
	acked bool
}

type flushMsg struct {
	notify chan<- domain.FlushResult
}

type flushDoneMsg struct {
	result domain.FlushResult
}

type statsMsg struct {
	reply chan domain.IngestionStats
}

// NewCoordinator creates the coordinator and starts its mailbox loop with
// an empty version-0 active table. catalog may be nil when no segment
// catalog is configured.
func NewCoordinator(dataset string, cfg CoordinatorConfig, reprojector port.Reprojector, catalog port.SegmentCatalog, pool *resilience.WorkerPool) *Coordinator {
	c := &Coordinator{
		dataset:     dataset,
		cfg:         cfg,
		reprojector: reprojector,
		catalog:     catalog,
		pool:        pool,
		mailbox:     make(chan any, 128),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go c.run()
	return c
}

// SubmitRows buffers the batch into the active table and acknowledges it,
// or drops it unacknowledged when the table is at or over capacity. The
// call never waits on persistence; only on the buffer append itself.
func (c *Coordinator) SubmitRows(ctx context.Context, batch domain.RowBatch) (domain.Ack, bool, error) {
	msg := submitMsg{batch: batch, reply: make(chan submitReply, 1)}
	if err := c.send(ctx, msg); err != nil {
		return domain.Ack{}, false, err
	}
	select {
	case r := <-msg.reply:
		return r.ack, r.acked, nil
	case <-ctx.Done():
		return domain.Ack{}, false, ctx.Err()
	case <-c.done:
		return domain.Ack{}, false, domain.ErrCoordinatorDown
	}
}

// StartFlush requests a flush of the current active table regardless of
// row count and returns immediately. notify, when non-nil, receives the
// result once the persistence round-trip completes; it must have capacity
// for one result or risk missing it.
func (c *Coordinator) StartFlush(ctx context.Context, notify chan<- domain.FlushResult) error {
	return c.send(ctx, flushMsg{notify: notify})
}

// ForceFlush requests a flush and waits for its completion.
func (c *Coordinator) ForceFlush(ctx context.Context) (domain.FlushResult, error) {
	notify := make(chan domain.FlushResult, 1)
	if err := c.StartFlush(ctx, notify); err != nil {
		return domain.FlushResult{}, err
	}
	select {
	case res := <-notify:
		return res, nil
	case <-ctx.Done():
		return domain.FlushResult{}, ctx.Err()
	case <-c.done:
		return domain.FlushResult{}, domain.ErrCoordinatorDown
	}
}

// Stats returns a point-in-time snapshot of the coordinator's counters.
func (c *Coordinator) Stats(ctx context.Context) (domain.IngestionStats, error) {
	msg := statsMsg{reply: make(chan domain.IngestionStats, 1)}
	if err := c.send(ctx, msg); err != nil {
		return domain.IngestionStats{}, err
	}
	select {
	case s := <-msg.reply:
		return s, nil
	case <-ctx.Done():
		return domain.IngestionStats{}, ctx.Err()
	case <-c.done:
		return domain.IngestionStats{}, domain.ErrCoordinatorDown
	}
}

// Stop terminates the mailbox loop. In-flight persistence finishes on the
// worker pool but its completion is discarded.
func (c *Coordinator) Stop() {
	c.once.Do(func() { close(c.stop) })
	<-c.done
}

func (c *Coordinator) send(ctx context.Context, msg any) error {
	select {
	case c.mailbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return domain.ErrCoordinatorDown
	}
}

// loopState is confined to the run goroutine.
type loopState struct {
	active   *domain.MemTable
	flushing *domain.MemTable

	flushesStarted   int64
	flushesSucceeded int64
	flushesFailed    int64
	lastFlushMillis  int64

	inflightNotify []chan<- domain.FlushResult
	pendingFlush   bool
	pendingNotify  []chan<- domain.FlushResult
}

func (c *Coordinator) run() {
	defer close(c.done)

	st := &loopState{
		active:          domain.NewMemTable(0),
		lastFlushMillis: domain.UnknownFlushDuration,
	}

	var tick <-chan time.Time
	if c.cfg.FlushInterval > 0 {
		ticker := time.NewTicker(c.cfg.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case msg := <-c.mailbox:
			switch m := msg.(type) {
			case submitMsg:
				c.handleSubmit(st, m)
			case flushMsg:
				c.beginFlush(st, m.notify)
			case flushDoneMsg:
				c.handleFlushDone(st, m.result)
			case statsMsg:
				m.reply <- c.snapshot(st)
			}
		case <-tick:
			if st.active.RowCount() > 0 {
				c.beginFlush(st, nil)
			}
		case <-c.stop:
			return
		}
	}
}

// handleSubmit appends the batch and evaluates the flush trigger as one
// atomic step, so a batch that lands after the trigger point can only go
// into the freshly allocated table.
func (c *Coordinator) handleSubmit(st *loopState, m submitMsg) {
	if st.active.RowCount() >= c.cfg.MaxRowsPerTable {
		// Backpressure: drop without acknowledgment. The sender's retry
		// of unacknowledged batches is the at-least-once mechanism.
		m.reply <- submitReply{acked: false}
		return
	}

	// An oversized batch is accepted whole even when it pushes the table
	// past the cap; only subsequent batches are refused.
	st.active.Append(m.batch.Rows)
	m.reply <- submitReply{ack: domain.Ack{SequenceID: m.batch.SequenceID}, acked: true}

	if st.active.RowCount() >= c.cfg.FlushTriggerRows {
		c.beginFlush(st, nil)
	}
}

// beginFlush promotes the active table to the flushing slot and hands it
// to the reprojector on the worker pool. With a flush already in flight
// the request queues; exactly one follow-up flush runs afterwards.
func (c *Coordinator) beginFlush(st *loopState, notify chan<- domain.FlushResult) {
	if st.flushing != nil {
		st.pendingFlush = true
		if notify != nil {
			st.pendingNotify = append(st.pendingNotify, notify)
		}
		return
	}

	st.flushesStarted++
	st.flushing = st.active
	st.active = domain.NewMemTable(st.flushing.Version() + 1)
	if notify != nil {
		st.inflightNotify = append(st.inflightNotify, notify)
	}

	table := st.flushing
	job := func() {
		begin := time.Now()
		segments, err := c.reprojector.Reproject(context.Background(), c.dataset, table)
		if err == nil {
			c.registerSegments(segments)
		}
		result := domain.FlushResult{
			TableVersion: table.Version(),
			RowCount:     table.RowCount(),
			Segments:     segments,
			Duration:     time.Since(begin),
			Err:          err,
		}
		select {
		case c.mailbox <- flushDoneMsg{result: result}:
		case <-c.done:
		}
	}

	if err := c.pool.Submit(context.Background(), job); err != nil {
		c.handleFlushDone(st, domain.FlushResult{
			TableVersion: table.Version(),
			RowCount:     table.RowCount(),
			Err:          err,
		})
	}
}

func (c *Coordinator) handleFlushDone(st *loopState, res domain.FlushResult) {
	if res.Err != nil {
		st.flushesFailed++
		// The flushed rows are gone from memory; the reprojector's own
		// durability story is the recovery path, not a re-buffer here.
		logger.Errorw("Flush failed, buffered rows dropped",
			"dataset", c.dataset,
			"table_version", res.TableVersion,
			"row_count", res.RowCount,
			"error", res.Err.Error())
	} else {
		st.flushesSucceeded++
		logger.Infow("Flush completed",
			"dataset", c.dataset,
			"table_version", res.TableVersion,
			"row_count", res.RowCount,
			"segments", len(res.Segments),
			"duration_ms", res.Duration.Milliseconds())
	}

	st.lastFlushMillis = res.Duration.Milliseconds()
	st.flushing = nil

	for _, n := range st.inflightNotify {
		select {
		case n <- res:
		default:
		}
	}
	st.inflightNotify = nil

	if st.pendingFlush {
		st.pendingFlush = false
		pending := st.pendingNotify
		st.pendingNotify = nil
		var first chan<- domain.FlushResult
		if len(pending) > 0 {
			first = pending[0]
		}
		c.beginFlush(st, first)
		for _, extra := range pending[1:] {
			st.inflightNotify = append(st.inflightNotify, extra)
		}
	}
}

func (c *Coordinator) registerSegments(segments []domain.SegmentDescriptor) {
	if c.catalog == nil || len(segments) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.catalog.RegisterSegments(ctx, c.dataset, segments); err != nil {
		// Catalog registration is advisory; the segments are durable.
		logger.Warnw("Segment catalog registration failed",
			"dataset", c.dataset, "segments", len(segments), "error", err.Error())
	}
}

func (c *Coordinator) snapshot(st *loopState) domain.IngestionStats {
	return domain.IngestionStats{
		Dataset:                 c.dataset,
		FlushesStarted:          st.flushesStarted,
		FlushesSucceeded:        st.flushesSucceeded,
		FlushesFailed:           st.flushesFailed,
		ActiveRowCount:          st.active.RowCount(),
		ActiveTableVersion:      st.active.Version(),
		LastFlushDurationMillis: st.lastFlushMillis,
	}
}
