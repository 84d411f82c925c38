package shard

import (
	"fmt"
)

// Node identifies the cluster member that owns a shard. Incarnation
// distinguishes restarts of the same node so stale ownership claims can
// be told apart from a live process.
type Node struct {
	ID          string `json:"id"`
	Addr        string `json:"addr"`
	Incarnation int64  `json:"incarnation"`
}

func (n Node) String() string {
	return fmt.Sprintf("%s@%s#%d", n.ID, n.Addr, n.Incarnation)
}
