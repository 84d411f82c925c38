package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/config"
	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/domain"
	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/port"
	"github.com/anthanhphan/go-distributed-timeseries-store/pkg/resilience"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "segments:"

// RedisCatalog stores segment descriptors as JSON entries in a per-dataset
// Redis list. Calls go through a circuit breaker so a down Redis degrades
// to fast failures instead of piling up timeouts on the flush path.
type RedisCatalog struct {
	client  *redis.Client
	breaker *resilience.CircuitBreaker
}

// Ensure RedisCatalog implements port.SegmentCatalog.
var _ port.SegmentCatalog = (*RedisCatalog)(nil)

// NewRedisCatalog connects to Redis and verifies it with a ping.
func NewRedisCatalog(cfg config.Redis) (*RedisCatalog, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect segment catalog: %w", err)
	}

	return &RedisCatalog{
		client: client,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "segment-catalog",
			FailureThreshold: 3,
			OpenTimeout:      10 * time.Second,
		}),
	}, nil
}

func datasetKey(dataset string) string {
	return keyPrefix + dataset
}

// RegisterSegments appends the descriptors to the dataset's catalog list.
func (c *RedisCatalog) RegisterSegments(ctx context.Context, dataset string, segments []domain.SegmentDescriptor) error {
	if len(segments) == 0 {
		return nil
	}

	entries := make([]interface{}, 0, len(segments))
	for _, seg := range segments {
		data, err := json.Marshal(seg)
		if err != nil {
			return fmt.Errorf("failed to encode segment descriptor: %w", err)
		}
		entries = append(entries, data)
	}

	return c.breaker.Execute(ctx, func(execCtx context.Context) error {
		return c.client.RPush(execCtx, datasetKey(dataset), entries...).Err()
	})
}

// ListSegments returns every registered descriptor for the dataset.
func (c *RedisCatalog) ListSegments(ctx context.Context, dataset string) ([]domain.SegmentDescriptor, error) {
	var raw []string
	err := c.breaker.Execute(ctx, func(execCtx context.Context) error {
		var listErr error
		raw, listErr = c.client.LRange(execCtx, datasetKey(dataset), 0, -1).Result()
		return listErr
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.SegmentDescriptor, 0, len(raw))
	for _, entry := range raw {
		var seg domain.SegmentDescriptor
		if err := json.Unmarshal([]byte(entry), &seg); err != nil {
			return nil, fmt.Errorf("failed to decode segment descriptor: %w", err)
		}
		out = append(out, seg)
	}
	return out, nil
}

// Close releases the Redis connection.
func (c *RedisCatalog) Close() error {
	return c.client.Close()
}
