package shard

// State enumerates the per-shard lifecycle states driven by cluster events.
type State uint8

const (
	// StateUnassigned is the initial state: no node owns the shard.
	StateUnassigned State = iota
	// StateBeingAssigned means an assignment was announced but ingestion
	// has not yet been confirmed by the owning node.
	StateBeingAssigned
	// StateNormal means ingestion is confirmed active on the owner.
	StateNormal
	// StateRecovery means the owner is replaying buffered data to catch up.
	StateRecovery
	// StateDown means the owning node was lost.
	StateDown
	// StateStopped means ingestion was stopped gracefully.
	StateStopped
	// StateError means ingestion failed on the owning node.
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnassigned:
		return "unassigned"
	case StateBeingAssigned:
		return "being_assigned"
	case StateNormal:
		return "normal"
	case StateRecovery:
		return "recovery"
	case StateDown:
		return "down"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is the full per-shard status. RecoveryProgress is only meaningful
// while State is StateRecovery and stays within [0, 1].
type Status struct {
	State            State   `json:"state"`
	RecoveryProgress float64 `json:"recovery_progress,omitempty"`
}
