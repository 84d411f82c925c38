package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	httpHandler "github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/adapter/inbound/http"
	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/adapter/outbound/catalog"
	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/adapter/outbound/columnstore"
	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/config"
	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/port"
	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/service"
	"github.com/anthanhphan/go-distributed-timeseries-store/pkg/gossip"
	"github.com/anthanhphan/go-distributed-timeseries-store/pkg/idgen"
	"github.com/anthanhphan/go-distributed-timeseries-store/pkg/resilience"
	"github.com/anthanhphan/go-distributed-timeseries-store/pkg/shard"
	"github.com/anthanhphan/gosdk/logger"
	"github.com/redis/go-redis/v9"
)

type App struct {
	cfg      *config.Config
	server   *httpHandler.Server
	gossip   *gossip.GossipAdapter
	topology *service.TopologyServiceImpl
	ingest   *service.IngestServiceImpl
	catalog  *catalog.RedisCatalog
	pool     *resilience.WorkerPool
	redis    *redis.Client
}

// topologyBridge feeds gossip membership changes into the mapper's
// single writer.
type topologyBridge struct {
	topology port.TopologyService
}

func (b *topologyBridge) NodeJoined(node shard.Node) {
	// Ownership is claimed through cluster events, not by joining.
	logger.Infow("Member joined cluster", "id", node.ID, "addr", node.Addr)
}

func (b *topologyBridge) NodeLeft(nodeID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := b.topology.NodeLeft(ctx, nodeID); err != nil {
		logger.Warnw("Failed to clear departed node's shards", "node_id", nodeID, "error", err.Error())
	}
}

func New(configPath string) (*App, error) {
	// 1. Load Config
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Initialize Logger
	logger.InitLogger(&cfg.Logger)

	if err := os.MkdirAll(cfg.Ingest.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	// 3. Shard Mapper and Topology
	mapper, err := shard.NewMapper(cfg.Ingest.NumShards)
	if err != nil {
		return nil, fmt.Errorf("failed to init shard mapper: %w", err)
	}
	topology := service.NewTopologyService(mapper)

	// 4. Gossip
	// If NodeID is empty, generate it based on hostname and port
	nodeID := cfg.Server.NodeID
	if nodeID == "" {
		host, _ := os.Hostname()
		nodeID = fmt.Sprintf("%s-%d", host, cfg.Server.Port)
	}
	incarnation := time.Now().UnixMilli()

	gossipAdapter, err := gossip.NewGossipAdapter(nodeID, cfg.Server.Hostname, cfg.Gossip.Port, cfg.Server.Port, incarnation, &topologyBridge{topology: topology})
	if err != nil {
		topology.Stop()
		return nil, fmt.Errorf("failed to init gossip: %w", err)
	}

	// 5. Redis-backed pieces are optional; without Redis the node runs
	// standalone with a local clock and no shared segment catalog.
	var (
		redisClient    *redis.Client
		segmentCatalog *catalog.RedisCatalog
		clock          idgen.Clock
	)
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		clock = idgen.NewRedisClock(redisClient)

		segmentCatalog, err = catalog.NewRedisCatalog(cfg.Redis)
		if err != nil {
			topology.Stop()
			return nil, err
		}
	}

	idGen, err := idgen.New(int64(shard.KeyGroupHash(nodeID)%1024), clock)
	if err != nil {
		topology.Stop()
		return nil, fmt.Errorf("failed to init snowflake: %w", err)
	}

	// 6. Column Store
	segmentStore, err := columnstore.NewSegmentStore(cfg.Ingest.DataDir, cfg.Ingest.FSync, idGen)
	if err != nil {
		topology.Stop()
		return nil, fmt.Errorf("failed to init segment store: %w", err)
	}

	// 7. Ingest Service
	pool := resilience.NewWorkerPool(cfg.Ingest.FlushWorkers, cfg.Ingest.FlushWorkers*2)
	coordCfg := service.CoordinatorConfig{
		FlushTriggerRows: cfg.Ingest.FlushTriggerRows,
		MaxRowsPerTable:  cfg.Ingest.MaxRowsPerTable,
		FlushInterval:    cfg.Ingest.FlushInterval(),
	}

	var catalogPort port.SegmentCatalog
	if segmentCatalog != nil {
		catalogPort = segmentCatalog
	}
	ingest := service.NewIngestService(mapper, topology, segmentStore, catalogPort, pool, coordCfg, nodeID)

	// 8. HTTP Server
	httpServer := httpHandler.NewServer(cfg, ingest, topology, gossipAdapter)

	return &App{
		cfg:      cfg,
		server:   httpServer,
		gossip:   gossipAdapter,
		topology: topology,
		ingest:   ingest,
		catalog:  segmentCatalog,
		pool:     pool,
		redis:    redisClient,
	}, nil
}

func (a *App) Run() error {
	// Start Gossip
	seeds := make([]string, 0, len(a.cfg.Gossip.Seeds))
	selfSeedSuffix := fmt.Sprintf(":%d", a.cfg.Gossip.Port)
	for _, seed := range a.cfg.Gossip.Seeds {
		if seed == "" {
			continue
		}
		if strings.HasSuffix(seed, selfSeedSuffix) && strings.Contains(seed, a.cfg.Server.Hostname) {
			continue
		}
		seeds = append(seeds, seed)
	}

	if len(seeds) > 0 {
		var joinErr error
		for i := 0; i < 5; i++ {
			joinErr = a.gossip.Join(seeds)
			if joinErr == nil {
				break
			}
			logger.Warnw("Failed to join cluster, retrying...", "attempt", i+1, "error", joinErr.Error())
			time.Sleep(2 * time.Second)
		}
		if joinErr != nil {
			logger.Errorw("Failed to join cluster after retries", "error", joinErr.Error())
		}
	}

	logger.Infow("Ingestor node starting",
		"id", a.gossip.LocalNode().ID,
		"port", a.cfg.Server.Port,
		"gossip", a.cfg.Gossip.Port,
		"shards", a.cfg.Ingest.NumShards,
		"flush_trigger_rows", a.cfg.Ingest.FlushTriggerRows)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	var runErr error
	select {
	case sig := <-stop:
		logger.Infow("Shutdown signal received", "signal", sig.String())
	case err := <-serverErrCh:
		runErr = fmt.Errorf("http server failed: %w", err)
		logger.Errorw("Ingestor server exited unexpectedly", "error", err.Error())
	}

	logger.Info("Shutting down ingestor services")

	// Flush buffered rows before anything else goes away.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.ingest.Shutdown(shutdownCtx)

	if err := a.gossip.Leave(); err != nil {
		logger.Warnw("Gossip leave failed", "error", err.Error())
	}
	if err := a.server.Stop(shutdownCtx); err != nil {
		logger.Warnw("HTTP shutdown error", "error", err.Error())
	}
	a.topology.Stop()
	a.pool.Close()
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			logger.Warnw("Segment catalog close failed", "error", err.Error())
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warnw("Redis close failed", "error", err.Error())
		}
	}

	return runErr
}
