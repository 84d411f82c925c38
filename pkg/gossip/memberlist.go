package gossip

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/anthanhphan/go-distributed-timeseries-store/pkg/shard"
	"github.com/anthanhphan/gosdk/logger"
	"github.com/hashicorp/memberlist"
)

// NodeEventHandler receives membership changes. NodeLeft is where the
// topology single-writer clears a departed node's shard ownership.
type NodeEventHandler interface {
	NodeJoined(node shard.Node)
	NodeLeft(nodeID string)
}

// GossipAdapter implements port.MembershipPort using memberlist.
type GossipAdapter struct {
	list    *memberlist.Memberlist
	conf    *memberlist.Config
	handler NodeEventHandler

	nodeID      string
	addr        string
	port        int
	serverPort  int
	incarnation int64
}

// Ensure GossipAdapter implements Memberlist Delegate
var _ memberlist.Delegate = (*GossipAdapter)(nil)

// NewGossipAdapter creates a new membership adapter. incarnation should
// change across restarts of the same node so stale ownership claims can
// be distinguished from the live process.
func NewGossipAdapter(nodeID string, bindAddr string, bindPort int, serverPort int, incarnation int64, handler NodeEventHandler) (*GossipAdapter, error) {
	config := memberlist.DefaultLANConfig()
	config.Name = nodeID
	config.BindAddr = bindAddr
	config.BindPort = bindPort
	config.AdvertisePort = bindPort

	// Memberlist's own log output is noise next to structured logging.
	config.LogOutput = io.Discard

	adapter := &GossipAdapter{
		conf:        config,
		handler:     handler,
		nodeID:      nodeID,
		addr:        bindAddr,
		port:        bindPort,
		serverPort:  serverPort,
		incarnation: incarnation,
	}

	config.Events = adapter   // Handle join/leave events
	config.Delegate = adapter // Handle metadata exchange

	list, err := memberlist.Create(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	adapter.list = list

	return adapter, nil
}

// Join joins the cluster using seed nodes.
func (g *GossipAdapter) Join(seeds []string) error {
	if len(seeds) > 0 {
		_, err := g.list.Join(seeds)
		if err != nil {
			return fmt.Errorf("failed to join cluster: %w", err)
		}
	}
	return nil
}

// Leave leaves the cluster.
func (g *GossipAdapter) Leave() error {
	// gracefully leave
	if err := g.list.Leave(time.Second * 5); err != nil {
		return err
	}
	return g.list.Shutdown()
}

// NodeMeta returns the local node metadata.
func (g *GossipAdapter) NodeMeta(limit int) []byte {
	data, err := json.Marshal(map[string]interface{}{
		"server_port": g.serverPort,
		"incarnation": g.incarnation,
	})
	if err != nil {
		logger.Warnw("failed to marshal gossip node meta", "error", err.Error())
		return nil
	}
	return data
}

// NotifyMsg, GetBroadcasts, LocalState, MergeRemoteState are not used here but required by Delegate
func (g *GossipAdapter) NotifyMsg([]byte)                           {}
func (g *GossipAdapter) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (g *GossipAdapter) LocalState(join bool) []byte                { return nil }
func (g *GossipAdapter) MergeRemoteState(buf []byte, join bool)     {}

// Members returns the list of current members.
func (g *GossipAdapter) Members() []shard.Node {
	members := g.list.Members()
	nodes := make([]shard.Node, 0, len(members))
	for _, m := range members {
		nodes = append(nodes, memberToNode(m))
	}
	return nodes
}

// LocalNode returns the local node info.
func (g *GossipAdapter) LocalNode() shard.Node {
	return shard.Node{
		ID:          g.nodeID,
		Addr:        net.JoinHostPort(g.serverHost(), strconv.Itoa(g.serverPort)),
		Incarnation: g.incarnation,
	}
}

// NotifyJoin is invoked when a node joins.
func (g *GossipAdapter) NotifyJoin(node *memberlist.Node) {
	n := memberToNode(node)
	logger.Infow("Node joined", "id", n.ID, "addr", n.Addr, "incarnation", n.Incarnation)
	if g.handler != nil {
		g.handler.NodeJoined(n)
	}
}

// NotifyLeave is invoked when a node leaves or is marked dead.
func (g *GossipAdapter) NotifyLeave(node *memberlist.Node) {
	logger.Infow("Node left", "id", node.Name)
	if g.handler != nil {
		g.handler.NodeLeft(node.Name)
	}
}

// NotifyUpdate is invoked when a node is updated.
func (g *GossipAdapter) NotifyUpdate(node *memberlist.Node) {
	// Re-deliver as a join to refresh metadata.
	g.NotifyJoin(node)
}

func memberToNode(m *memberlist.Node) shard.Node {
	serverPort, incarnation := decodeMeta(m.Meta)
	addr := m.Addr.String()
	if serverPort > 0 {
		addr = net.JoinHostPort(addr, strconv.Itoa(serverPort))
	} else {
		addr = net.JoinHostPort(addr, strconv.Itoa(int(m.Port)))
	}
	return shard.Node{
		ID:          m.Name,
		Addr:        addr,
		Incarnation: incarnation,
	}
}

func decodeMeta(meta []byte) (int, int64) {
	if len(meta) == 0 {
		return 0, 0
	}
	type nodeMeta struct {
		ServerPort  int   `json:"server_port"`
		Incarnation int64 `json:"incarnation"`
	}
	var m nodeMeta
	if err := json.Unmarshal(meta, &m); err != nil {
		logger.Warnw("failed to decode node metadata", "error", err.Error())
		return 0, 0
	}

	return m.ServerPort, m.Incarnation
}

func (g *GossipAdapter) serverHost() string {
	if g.addr == "" {
		return g.addr
	}
	if ip := net.ParseIP(g.addr); ip == nil || !ip.IsUnspecified() {
		return g.addr
	}

	if g.list == nil || g.list.LocalNode() == nil {
		return g.addr
	}

	adv := g.list.LocalNode().Addr.String()
	if adv == "" {
		return g.addr
	}
	if ip := net.ParseIP(adv); ip != nil && ip.IsUnspecified() {
		return g.addr
	}
	return adv
}
