package http_handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/config"
	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/domain"
	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/port"
	"github.com/anthanhphan/go-distributed-timeseries-store/pkg/shard"
	sdklogger "github.com/anthanhphan/gosdk/logger"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Server exposes the ingestion and operations API.
type Server struct {
	app        *fiber.App
	cfg        *config.Config
	ingest     port.IngestService
	topology   port.TopologyService
	membership port.MembershipPort
}

func NewServer(cfg *config.Config, ingest port.IngestService, topology port.TopologyService, membership port.MembershipPort) *Server {
	app := fiber.New(fiber.Config{
		AppName: "timeseries-ingestor",
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	s := &Server{
		app:        app,
		cfg:        cfg,
		ingest:     ingest,
		topology:   topology,
		membership: membership,
	}

	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.app.Post("/datasets/:dataset/rows", s.handleSubmitRows)
	s.app.Post("/datasets/:dataset/flush", s.handleFlush)
	s.app.Get("/datasets/:dataset/stats", s.handleDatasetStats)
	s.app.Get("/datasets/:dataset/segments", s.handleSegments)
	s.app.Get("/stats", s.handleAllStats)
	s.app.Get("/shards/route", s.handleShardRoute)
	s.app.Post("/cluster/events", s.handleClusterEvents)
	s.app.Get("/cluster/events", s.handleMinimalEvents)
	s.app.Get("/cluster/shards", s.handleShardGauges)
	s.app.Get("/cluster/topology", s.handleTopology)
}

func (s *Server) Start() error {
	return s.app.Listen(fmt.Sprintf(":%d", s.cfg.Server.Port))
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.Shutdown()
}

func (s *Server) sendJSONError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

// handleSubmitRows buffers a row batch. A buffered batch is acknowledged
// with its sequence id; a backpressured batch gets a 429 with no ack body,
// which the sender must treat as "retry later".
func (s *Server) handleSubmitRows(c *fiber.Ctx) error {
	dataset := c.Params("dataset")

	var batch domain.RowBatch
	if err := c.BodyParser(&batch); err != nil {
		return s.sendJSONError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid row batch: %v", err))
	}

	ack, acked, err := s.ingest.SubmitRows(c.Context(), dataset, batch)
	if err != nil {
		if errors.Is(err, domain.ErrShardNotServed) {
			return s.sendJSONError(c, fiber.StatusConflict, err.Error())
		}
		if errors.Is(err, domain.ErrEmptyBatch) || errors.Is(err, domain.ErrMissingSeries) || errors.Is(err, domain.ErrUnknownDataset) {
			return s.sendJSONError(c, fiber.StatusBadRequest, err.Error())
		}
		sdklogger.Errorw("Row submission failed", "dataset", dataset, "error", err.Error())
		return s.sendJSONError(c, fiber.StatusInternalServerError, err.Error())
	}
	if !acked {
		return c.SendStatus(fiber.StatusTooManyRequests)
	}

	return c.JSON(ack)
}

func (s *Server) handleFlush(c *fiber.Ctx) error {
	dataset := c.Params("dataset")

	res, err := s.ingest.ForceFlush(c.Context(), dataset)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownDataset) {
			return s.sendJSONError(c, fiber.StatusNotFound, err.Error())
		}
		sdklogger.Errorw("Explicit flush failed", "dataset", dataset, "error", err.Error())
		return s.sendJSONError(c, fiber.StatusInternalServerError, err.Error())
	}
	if res.Err != nil {
		return s.sendJSONError(c, fiber.StatusInternalServerError, res.Err.Error())
	}

	return c.JSON(fiber.Map{
		"table_version": res.TableVersion,
		"row_count":     res.RowCount,
		"segments":      res.Segments,
		"duration_ms":   res.Duration.Milliseconds(),
	})
}

func (s *Server) handleDatasetStats(c *fiber.Ctx) error {
	dataset := c.Params("dataset")

	stats, err := s.ingest.DatasetStats(c.Context(), dataset)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownDataset) {
			return s.sendJSONError(c, fiber.StatusNotFound, err.Error())
		}
		return s.sendJSONError(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(stats)
}

func (s *Server) handleAllStats(c *fiber.Ctx) error {
	return c.JSON(s.ingest.AllStats(c.Context()))
}

func (s *Server) handleSegments(c *fiber.Ctx) error {
	dataset := c.Params("dataset")

	segments, err := s.ingest.ListSegments(c.Context(), dataset)
	if err != nil {
		sdklogger.Warnw("Segment listing failed", "dataset", dataset, "error", err.Error())
		return s.sendJSONError(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"dataset": dataset, "segments": segments})
}

// handleShardRoute resolves query fan-out for a key-group at a spread.
func (s *Server) handleShardRoute(c *fiber.Ctx) error {
	group := c.Query("group")
	if group == "" {
		return s.sendJSONError(c, fiber.StatusBadRequest, "Missing 'group' query parameter")
	}
	spread := c.QueryInt("spread", 0)
	if spread < 0 || spread > 255 {
		return s.sendJSONError(c, fiber.StatusBadRequest, "Invalid 'spread' query parameter")
	}

	r, err := s.ingest.QueryShards(group, uint8(spread))
	if err != nil {
		if errors.Is(err, shard.ErrInvalidSpread) {
			return s.sendJSONError(c, fiber.StatusBadRequest, err.Error())
		}
		return s.sendJSONError(c, fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"group":  group,
		"spread": spread,
		"range":  r,
		"shards": r.Shards(),
	})
}

type clusterEventsRequest struct {
	Events []shard.Event `json:"events"`
}

// handleClusterEvents applies a batch of cluster events. Each shard is
// validated independently: a conflict rejects that event only, earlier
// ones in the batch stay applied.
func (s *Server) handleClusterEvents(c *fiber.Ctx) error {
	var req clusterEventsRequest
	if err := c.BodyParser(&req); err != nil {
		return s.sendJSONError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid events payload: %v", err))
	}
	if len(req.Events) == 0 {
		return s.sendJSONError(c, fiber.StatusBadRequest, "No events supplied")
	}

	applied := 0
	rejections := make([]fiber.Map, 0)
	for i, ev := range req.Events {
		if err := s.topology.ApplyEvent(c.Context(), ev); err != nil {
			rejections = append(rejections, fiber.Map{"index": i, "shard": ev.Shard, "error": err.Error()})
			continue
		}
		applied++
	}

	status := fiber.StatusOK
	if len(rejections) > 0 {
		status = fiber.StatusConflict
	}
	return c.Status(status).JSON(fiber.Map{
		"applied":   applied,
		"rejected":  len(rejections),
		"conflicts": rejections,
	})
}

func (s *Server) handleMinimalEvents(c *fiber.Ctx) error {
	events, err := s.topology.MinimalEvents(c.Context())
	if err != nil {
		return s.sendJSONError(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"events": events})
}

// handleShardGauges reports per-status shard counts for health tooling.
func (s *Server) handleShardGauges(c *fiber.Ctx) error {
	counts, err := s.topology.StatusCounts(c.Context())
	if err != nil {
		return s.sendJSONError(c, fiber.StatusInternalServerError, err.Error())
	}

	gauges := make(map[string]int, len(counts))
	for state, n := range counts {
		gauges[state.String()] = n
	}
	return c.JSON(gauges)
}

func (s *Server) handleTopology(c *fiber.Ctx) error {
	if s.membership == nil {
		return c.JSON([]shard.Node{})
	}
	return c.JSON(s.membership.Members())
}
