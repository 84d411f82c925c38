package http_handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/config"
	"github.com/anthanhphan/go-distributed-timeseries-store/internal/ingestor/domain"
	"github.com/anthanhphan/go-distributed-timeseries-store/pkg/shard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngestService struct {
	acked      bool
	submitErr  error
	flushRes   domain.FlushResult
	flushErr   error
	stats      domain.IngestionStats
	statsErr   error
	segments   []domain.SegmentDescriptor
	queryRange shard.Range
	queryErr   error
}

func (f *fakeIngestService) SubmitRows(ctx context.Context, dataset string, batch domain.RowBatch) (domain.Ack, bool, error) {
	if f.submitErr != nil {
		return domain.Ack{}, false, f.submitErr
	}
	return domain.Ack{SequenceID: batch.SequenceID}, f.acked, nil
}

func (f *fakeIngestService) ForceFlush(ctx context.Context, dataset string) (domain.FlushResult, error) {
	return f.flushRes, f.flushErr
}

func (f *fakeIngestService) DatasetStats(ctx context.Context, dataset string) (domain.IngestionStats, error) {
	return f.stats, f.statsErr
}

func (f *fakeIngestService) AllStats(ctx context.Context) []domain.IngestionStats {
	return []domain.IngestionStats{f.stats}
}

func (f *fakeIngestService) QueryShards(group string, spread uint8) (shard.Range, error) {
	return f.queryRange, f.queryErr
}

func (f *fakeIngestService) ListSegments(ctx context.Context, dataset string) ([]domain.SegmentDescriptor, error) {
	return f.segments, nil
}

type fakeTopologyService struct {
	applyErrs map[uint32]error
	events    []shard.Event
	counts    map[shard.State]int
}

func (f *fakeTopologyService) ApplyEvent(ctx context.Context, ev shard.Event) error {
	if err, ok := f.applyErrs[ev.Shard]; ok {
		return err
	}
	return nil
}

func (f *fakeTopologyService) NodeLeft(ctx context.Context, nodeID string) ([]uint32, error) {
	return nil, nil
}

func (f *fakeTopologyService) MinimalEvents(ctx context.Context) ([]shard.Event, error) {
	return f.events, nil
}

func (f *fakeTopologyService) StatusCounts(ctx context.Context) (map[shard.State]int, error) {
	return f.counts, nil
}

func (f *fakeTopologyService) ShardActive(ctx context.Context, s uint32) (bool, error) {
	return true, nil
}

func (f *fakeTopologyService) ShardOwner(ctx context.Context, s uint32) (shard.Node, bool, error) {
	return shard.Node{}, false, nil
}

func newTestServer(ingest *fakeIngestService, topology *fakeTopologyService) *Server {
	cfg := config.DefaultConfig()
	return NewServer(cfg, ingest, topology, nil)
}

func postJSON(t *testing.T, s *Server, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	return resp
}

func getPath(t *testing.T, s *Server, path string) *http.Response {
	t.Helper()
	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	return resp
}

func TestServer_SubmitRowsAcked(t *testing.T) {
	s := newTestServer(&fakeIngestService{acked: true}, &fakeTopologyService{})

	batch := domain.RowBatch{
		SequenceID: 42,
		Rows:       []domain.Row{{SeriesKey: "host-1.cpu", Timestamp: 1, Value: 0.5}},
	}
	resp := postJSON(t, s, "/datasets/metrics/rows", batch)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ack domain.Ack
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	assert.Equal(t, int64(42), ack.SequenceID)
}

func TestServer_SubmitRowsBackpressure(t *testing.T) {
	s := newTestServer(&fakeIngestService{acked: false}, &fakeTopologyService{})

	batch := domain.RowBatch{
		SequenceID: 1,
		Rows:       []domain.Row{{SeriesKey: "host-1.cpu", Timestamp: 1, Value: 0.5}},
	}
	resp := postJSON(t, s, "/datasets/metrics/rows", batch)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestServer_SubmitRowsShardNotServed(t *testing.T) {
	s := newTestServer(&fakeIngestService{
		submitErr: fmt.Errorf("%w: shard 3 owned by node-other", domain.ErrShardNotServed),
	}, &fakeTopologyService{})

	batch := domain.RowBatch{
		SequenceID: 1,
		Rows:       []domain.Row{{SeriesKey: "host-1.cpu", Timestamp: 1, Value: 0.5}},
	}
	resp := postJSON(t, s, "/datasets/metrics/rows", batch)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestServer_SubmitRowsValidationError(t *testing.T) {
	s := newTestServer(&fakeIngestService{submitErr: domain.ErrEmptyBatch}, &fakeTopologyService{})

	resp := postJSON(t, s, "/datasets/metrics/rows", domain.RowBatch{SequenceID: 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_FlushUnknownDataset(t *testing.T) {
	s := newTestServer(&fakeIngestService{
		flushErr: fmt.Errorf("%w: nope", domain.ErrUnknownDataset),
	}, &fakeTopologyService{})

	resp := postJSON(t, s, "/datasets/nope/flush", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ShardRoute(t *testing.T) {
	s := newTestServer(&fakeIngestService{
		queryRange: shard.Range{Start: 4, End: 7},
	}, &fakeTopologyService{})

	resp := getPath(t, s, "/shards/route?group=metrics&spread=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Group  string   `json:"group"`
		Spread int      `json:"spread"`
		Shards []uint32 `json:"shards"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "metrics", body.Group)
	assert.Equal(t, []uint32{4, 5, 6, 7}, body.Shards)
}

func TestServer_ShardRouteMissingGroup(t *testing.T) {
	s := newTestServer(&fakeIngestService{}, &fakeTopologyService{})

	resp := getPath(t, s, "/shards/route")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ShardRouteInvalidSpread(t *testing.T) {
	s := newTestServer(&fakeIngestService{queryErr: shard.ErrInvalidSpread}, &fakeTopologyService{})

	resp := getPath(t, s, "/shards/route?group=metrics&spread=200")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ClusterEventsPartialConflict(t *testing.T) {
	topo := &fakeTopologyService{
		applyErrs: map[uint32]error{
			2: &shard.AssignmentConflictError{Shard: 2, Existing: shard.Node{ID: "node-a"}, Incoming: shard.Node{ID: "node-b"}},
		},
	}
	s := newTestServer(&fakeIngestService{}, topo)

	events := clusterEventsRequest{Events: []shard.Event{
		{Type: shard.EventAssignmentStarted, Shard: 1, Node: shard.Node{ID: "node-b"}},
		{Type: shard.EventAssignmentStarted, Shard: 2, Node: shard.Node{ID: "node-b"}},
	}}
	resp := postJSON(t, s, "/cluster/events", events)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var body struct {
		Applied  int `json:"applied"`
		Rejected int `json:"rejected"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Applied)
	assert.Equal(t, 1, body.Rejected)
}

func TestServer_ShardGauges(t *testing.T) {
	topo := &fakeTopologyService{
		counts: map[shard.State]int{shard.StateNormal: 3, shard.StateUnassigned: 13},
	}
	s := newTestServer(&fakeIngestService{}, topo)

	resp := getPath(t, s, "/cluster/shards")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var gauges map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&gauges))
	assert.Equal(t, 3, gauges[shard.StateNormal.String()])
	assert.Equal(t, 13, gauges[shard.StateUnassigned.String()])
}

func TestServer_TopologyWithoutMembership(t *testing.T) {
	s := newTestServer(&fakeIngestService{}, &fakeTopologyService{})

	resp := getPath(t, s, "/cluster/topology")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var nodes []shard.Node
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&nodes))
	assert.Empty(t, nodes)
}
