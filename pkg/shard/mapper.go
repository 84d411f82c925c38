package shard

import (
	"errors"
	"fmt"
	"math/bits"
)

var (
	// ErrInvalidSpread is returned when a spread argument exceeds
	// log2(numShards) for the mapper it is used against.
	ErrInvalidSpread = errors.New("spread outside valid range")
)

// AssignmentConflictError reports a shard-assignment event that targets a
// shard already owned by a different node. State for that shard is left
// unchanged; the cluster coordination layer decides whether to reassign.
type AssignmentConflictError struct {
	Shard    uint32
	Existing Node
	Incoming Node
}

func (e *AssignmentConflictError) Error() string {
	return fmt.Sprintf("shard %d already assigned to %s, rejected assignment to %s",
		e.Shard, e.Existing, e.Incoming)
}

// Mapper maps shard indices to owning nodes and statuses, and implements
// the hash-to-shard routing math for one dataset.
//
// Mapper is NOT safe for concurrent mutation. All mutating calls
// (RegisterNode, RemoveNode, UpdateFromEvent, Clear) must be serialized by
// a single writer; read methods may run concurrently with each other but
// not with a mutation in progress. The topology service owns that
// discipline by routing every call through one goroutine.
type Mapper struct {
	numShards uint32
	shardBits uint8

	owners   []*Node
	statuses []Status

	// Per possible spread s in [0, shardBits]: spreadMask selects the
	// high (shardBits - s) bits of a shard index, spreadOneBits the low
	// s bits. Precomputed so the routing hot path does no shifting.
	spreadMask    []uint32
	spreadOneBits []uint32
}

// NewMapper creates a mapper over numShards shards, all unassigned.
// numShards must be a power of two.
func NewMapper(numShards uint32) (*Mapper, error) {
	if numShards == 0 || numShards&(numShards-1) != 0 {
		return nil, fmt.Errorf("num shards must be a power of two, got %d", numShards)
	}

	shardBits := uint8(bits.TrailingZeros32(numShards))
	indexMask := numShards - 1

	m := &Mapper{
		numShards:     numShards,
		shardBits:     shardBits,
		owners:        make([]*Node, numShards),
		statuses:      make([]Status, numShards),
		spreadMask:    make([]uint32, shardBits+1),
		spreadOneBits: make([]uint32, shardBits+1),
	}
	for s := uint8(0); s <= shardBits; s++ {
		oneBits := uint32(1)<<s - 1
		m.spreadOneBits[s] = oneBits
		m.spreadMask[s] = indexMask &^ oneBits
	}
	return m, nil
}

// NumShards returns the fixed shard count.
func (m *Mapper) NumShards() uint32 { return m.numShards }

// MaxSpread returns log2(numShards), the largest valid spread.
func (m *Mapper) MaxSpread() uint8 { return m.shardBits }

// IngestionShard routes one series to its destination shard. The high
// (log2N - spread) bits of the shard index come from the key-group hash,
// the low spread bits from the series partition hash, so every series of a
// key-group lands inside that group's contiguous shard range while high
// cardinality groups spread across 2^spread shards.
func (m *Mapper) IngestionShard(shardKeyHash, partitionHash uint32, spread uint8) (uint32, error) {
	if spread > m.shardBits {
		return 0, fmt.Errorf("%w: spread %d, max %d", ErrInvalidSpread, spread, m.shardBits)
	}
	return shardKeyHash&m.spreadMask[spread] | partitionHash&m.spreadOneBits[spread], nil
}

// Range is a contiguous, inclusive range of shard indices.
type Range struct {
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
}

// Count returns the number of shards in the range.
func (r Range) Count() uint32 { return r.End - r.Start + 1 }

// Contains reports whether the shard index falls inside the range.
func (r Range) Contains(shard uint32) bool { return shard >= r.Start && shard <= r.End }

// Shards expands the range into explicit shard indices.
func (r Range) Shards() []uint32 {
	out := make([]uint32, 0, r.Count())
	for s := r.Start; ; s++ {
		out = append(out, s)
		if s == r.End {
			break
		}
	}
	return out
}

// QueryShards returns every shard that can hold data for the key-group at
// the given spread: the contiguous 2^spread shards sharing the group's
// high routing bits. Query fan-out scans exactly this range.
func (m *Mapper) QueryShards(shardKeyHash uint32, spread uint8) (Range, error) {
	if spread > m.shardBits {
		return Range{}, fmt.Errorf("%w: spread %d, max %d", ErrInvalidSpread, spread, m.shardBits)
	}
	start := shardKeyHash & m.spreadMask[spread]
	return Range{Start: start, End: start | m.spreadOneBits[spread]}, nil
}

// PartitionShard maps a full 32-bit hash uniformly onto a shard using a
// 64-bit multiply-and-shift, avoiding both modulo bias and a division.
// This is the default single-shard mapping when spread semantics do not
// apply.
func (m *Mapper) PartitionShard(hash uint32) uint32 {
	return uint32(uint64(hash) * uint64(m.numShards) >> 32)
}

// PartitionShardNode resolves PartitionShard's result to its owner.
// ok is false when the shard is unassigned.
func (m *Mapper) PartitionShardNode(hash uint32) (uint32, Node, bool) {
	s := m.PartitionShard(hash)
	owner := m.owners[s]
	if owner == nil {
		return s, Node{}, false
	}
	return s, *owner, true
}

// RegisterNode records node as the owner of shard. Re-registering the
// current owner is allowed and refreshes its address and incarnation;
// registering a different node fails with AssignmentConflictError and
// leaves the shard untouched.
func (m *Mapper) RegisterNode(shard uint32, node Node) error {
	if shard >= m.numShards {
		return fmt.Errorf("shard %d out of range [0, %d)", shard, m.numShards)
	}
	if existing := m.owners[shard]; existing != nil && existing.ID != node.ID {
		return &AssignmentConflictError{Shard: shard, Existing: *existing, Incoming: node}
	}
	n := node
	m.owners[shard] = &n
	return nil
}

// UpdateFromEvent applies one cluster event. Assignment-class events
// register the acting node as owner before changing status; a registration
// conflict rejects the event for that shard only.
func (m *Mapper) UpdateFromEvent(ev Event) error {
	if ev.Shard >= m.numShards {
		return fmt.Errorf("shard %d out of range [0, %d)", ev.Shard, m.numShards)
	}

	switch ev.Type {
	case EventAssignmentStarted:
		if err := m.RegisterNode(ev.Shard, ev.Node); err != nil {
			return err
		}
		m.statuses[ev.Shard] = Status{State: StateBeingAssigned}
	case EventIngestionStarted:
		if err := m.RegisterNode(ev.Shard, ev.Node); err != nil {
			return err
		}
		m.statuses[ev.Shard] = Status{State: StateNormal}
	case EventRecoveryStarted:
		if err := m.RegisterNode(ev.Shard, ev.Node); err != nil {
			return err
		}
		m.statuses[ev.Shard] = Status{State: StateRecovery, RecoveryProgress: clampProgress(ev.Progress)}
	case EventIngestionError:
		m.statuses[ev.Shard] = Status{State: StateError}
	case EventShardDown:
		m.statuses[ev.Shard] = Status{State: StateDown}
	case EventIngestionStopped:
		m.statuses[ev.Shard] = Status{State: StateStopped}
	default:
		return fmt.Errorf("unknown shard event type %d", ev.Type)
	}
	return nil
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// RemoveNode clears ownership of every shard currently owned by nodeID and
// resets those shards to unassigned. The freed shard indices are returned
// so the caller can re-trigger assignment.
func (m *Mapper) RemoveNode(nodeID string) []uint32 {
	var freed []uint32
	for s := uint32(0); s < m.numShards; s++ {
		if m.owners[s] != nil && m.owners[s].ID == nodeID {
			m.owners[s] = nil
			m.statuses[s] = Status{State: StateUnassigned}
			freed = append(freed, s)
		}
	}
	return freed
}

// Clear resets every shard to unassigned.
func (m *Mapper) Clear() {
	for s := uint32(0); s < m.numShards; s++ {
		m.owners[s] = nil
		m.statuses[s] = Status{State: StateUnassigned}
	}
}

// MinimalEvents reconstructs an event sequence that, replayed into a fresh
// mapper of the same size, reproduces the current owner and status of every
// shard. Used to transfer mapper state across the cluster without shipping
// the structure itself.
func (m *Mapper) MinimalEvents() []Event {
	var events []Event
	for s := uint32(0); s < m.numShards; s++ {
		st := m.statuses[s]
		owner := m.owners[s]

		switch st.State {
		case StateUnassigned:
			// Fresh mappers start here; nothing to replay.
		case StateBeingAssigned:
			events = append(events, Event{Type: EventAssignmentStarted, Shard: s, Node: *owner})
		case StateNormal:
			events = append(events, Event{Type: EventIngestionStarted, Shard: s, Node: *owner})
		case StateRecovery:
			events = append(events, Event{Type: EventRecoveryStarted, Shard: s, Node: *owner, Progress: st.RecoveryProgress})
		case StateDown, StateStopped, StateError:
			// Terminal states do not carry a node, so ownership is
			// restored first when there still is an owner on record.
			if owner != nil {
				events = append(events, Event{Type: EventAssignmentStarted, Shard: s, Node: *owner})
			}
			var t EventType
			switch st.State {
			case StateDown:
				t = EventShardDown
			case StateStopped:
				t = EventIngestionStopped
			default:
				t = EventIngestionError
			}
			events = append(events, Event{Type: t, Shard: s})
		}
	}
	return events
}

// StatusOf returns the current status of shard.
func (m *Mapper) StatusOf(shard uint32) Status {
	return m.statuses[shard]
}

// OwnerOf returns the owner of shard; ok is false when unassigned.
func (m *Mapper) OwnerOf(shard uint32) (Node, bool) {
	if m.owners[shard] == nil {
		return Node{}, false
	}
	return *m.owners[shard], true
}

// ActiveShard reports whether shard is currently accepting ingestion:
// confirmed normal or replaying in recovery.
func (m *Mapper) ActiveShard(shard uint32) bool {
	st := m.statuses[shard].State
	return st == StateNormal || st == StateRecovery
}

// UnassignedShards returns every shard with no registered owner.
func (m *Mapper) UnassignedShards() []uint32 {
	var out []uint32
	for s := uint32(0); s < m.numShards; s++ {
		if m.owners[s] == nil {
			out = append(out, s)
		}
	}
	return out
}

// AssignedShards returns every shard with a registered owner.
func (m *Mapper) AssignedShards() []uint32 {
	var out []uint32
	for s := uint32(0); s < m.numShards; s++ {
		if m.owners[s] != nil {
			out = append(out, s)
		}
	}
	return out
}

// ShardsForOwner returns the shards currently owned by nodeID.
func (m *Mapper) ShardsForOwner(nodeID string) []uint32 {
	var out []uint32
	for s := uint32(0); s < m.numShards; s++ {
		if m.owners[s] != nil && m.owners[s].ID == nodeID {
			out = append(out, s)
		}
	}
	return out
}

// StatusCounts returns the number of shards in each state, for the health
// gauges exposed by the operations API.
func (m *Mapper) StatusCounts() map[State]int {
	counts := make(map[State]int)
	for s := uint32(0); s < m.numShards; s++ {
		counts[m.statuses[s].State]++
	}
	return counts
}
