package service

import (
	"context"
	"sort"
	"sync"

	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/port"
	"github.com/anthanhphan/go-distributed-timeseries-store/pkg/resilience"
)

// coordinatorRegistry lazily creates and tracks one coordinator per
// dataset. Coordinators never share mutable state, so datasets ingest
// fully in parallel.
type coordinatorRegistry struct {
	mu           sync.RWMutex
	coordinators map[string]*Coordinator

	cfg         CoordinatorConfig
	reprojector port.Reprojector
	catalog     port.SegmentCatalog
	pool        *resilience.WorkerPool
}

func newCoordinatorRegistry(cfg CoordinatorConfig, reprojector port.Reprojector, catalog port.SegmentCatalog, pool *resilience.WorkerPool) *coordinatorRegistry {
	return &coordinatorRegistry{
		coordinators: make(map[string]*Coordinator),
		cfg:          cfg,
		reprojector:  reprojector,
		catalog:      catalog,
		pool:         pool,
	}
}

// get returns the dataset's coordinator, creating it on first use.
func (r *coordinatorRegistry) get(dataset string) *Coordinator {
	r.mu.RLock()
	c, ok := r.coordinators[dataset]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.coordinators[dataset]; ok {
		return c
	}
	c = NewCoordinator(dataset, r.cfg, r.reprojector, r.catalog, r.pool)
	r.coordinators[dataset] = c
	return c
}

// lookup returns the dataset's coordinator without creating one.
func (r *coordinatorRegistry) lookup(dataset string) (*Coordinator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.coordinators[dataset]
	return c, ok
}

// all returns every live coordinator in stable dataset order.
func (r *coordinatorRegistry) all() []*Coordinator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.coordinators))
	for name := range r.coordinators {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*Coordinator, 0, len(names))
	for _, name := range names {
		out = append(out, r.coordinators[name])
	}
	return out
}

// shutdown flushes and stops every coordinator.
func (r *coordinatorRegistry) shutdown(ctx context.Context) {
	for _, c := range r.all() {
		// Best effort final flush so buffered rows reach the column store.
		_, _ = c.ForceFlush(ctx)
		c.Stop()
	}
}
