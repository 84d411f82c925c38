package shard

// EventType enumerates the cluster events that drive the shard status
// state machine.
type EventType uint8

const (
	// EventAssignmentStarted announces that a node begins taking over a shard.
	EventAssignmentStarted EventType = iota
	// EventIngestionStarted confirms ingestion is active on the owner.
	EventIngestionStarted
	// EventRecoveryStarted reports the owner replaying data, with progress.
	EventRecoveryStarted
	// EventIngestionError reports an ingestion failure on the owner.
	EventIngestionError
	// EventShardDown reports the owning node as lost.
	EventShardDown
	// EventIngestionStopped reports a graceful ingestion stop.
	EventIngestionStopped
)

func (t EventType) String() string {
	switch t {
	case EventAssignmentStarted:
		return "assignment_started"
	case EventIngestionStarted:
		return "ingestion_started"
	case EventRecoveryStarted:
		return "recovery_started"
	case EventIngestionError:
		return "ingestion_error"
	case EventShardDown:
		return "shard_down"
	case EventIngestionStopped:
		return "ingestion_stopped"
	default:
		return "unknown"
	}
}

// Event is one shard lifecycle event. Node is only meaningful for the
// assignment-class events (AssignmentStarted, IngestionStarted,
// RecoveryStarted); Progress only for RecoveryStarted.
type Event struct {
	Type     EventType `json:"type"`
	Shard    uint32    `json:"shard"`
	Node     Node      `json:"node,omitempty"`
	Progress float64   `json:"progress,omitempty"`
}
