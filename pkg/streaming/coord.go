package streaming

import "fmt"

// Coord identifies one running replica (§3 "Coord").
type Coord struct {
	BlockID   int
	HostID    int
	ReplicaID int
}

func (c Coord) String() string { return fmt.Sprintf("(block=%d host=%d replica=%d)", c.BlockID, c.HostID, c.ReplicaID) }

// ReceiverEndpoint names exactly one inbound channel on a replica: the
// receiving Coord plus the sending block's id (§3 "ReceiverEndpoint").
type ReceiverEndpoint struct {
	Coord         Coord
	SenderBlockID int
}

func (e ReceiverEndpoint) String() string {
	return fmt.Sprintf("%s<-block%d", e.Coord, e.SenderBlockID)
}

// Replication is the per-block replica-count policy (§3 "Block").
// Precedence under Intersect: Global ≻ PerHost ≻ Limited(min(a,b)) ≻ Unlimited.
type Replication struct {
	kind  replicationKind
	limit int
}

type replicationKind uint8

const (
	replUnlimited replicationKind = iota
	replLimited
	replPerHost
	replGlobal
)

func Unlimited() Replication     { return Replication{kind: replUnlimited} }
func Limited(n int) Replication  { return Replication{kind: replLimited, limit: n} }
func PerHost() Replication       { return Replication{kind: replPerHost} }
func Global() Replication        { return Replication{kind: replGlobal} }

// Clamp computes the replica count on one host with the given core count,
// per §4.6 step 3.
func (r Replication) Clamp(cores int) int {
	switch r.kind {
	case replGlobal:
		return 1
	case replPerHost:
		return 1
	case replLimited:
		if cores < r.limit {
			return cores
		}
		return r.limit
	default: // Unlimited
		return cores
	}
}

// PlaceCounts computes, for an ordered list of surviving hosts' core
// counts, how many replicas each host receives under this policy,
// honoring the cross-host totals §4.6 step 3 describes: Global caps the
// grand total at 1 (only the first host gets a replica); PerHost gives
// exactly 1 per host; Limited(n) sums contributions across hosts capped
// at n; Unlimited gives each host its own Clamp(cores) (its full core
// count).
func (r Replication) PlaceCounts(coresPerHost []int) []int {
	out := make([]int, len(coresPerHost))
	switch r.kind {
	case replGlobal:
		if len(out) > 0 {
			out[0] = 1
		}
	case replPerHost:
		for i := range out {
			out[i] = 1
		}
	case replLimited:
		remaining := r.limit
		for i, cores := range coresPerHost {
			if remaining <= 0 {
				break
			}
			take := cores
			if take > remaining {
				take = remaining
			}
			out[i] = take
			remaining -= take
		}
	default: // Unlimited
		copy(out, coresPerHost)
	}
	return out
}

// Intersect combines two replication policies under the fixed precedence
// Global ≻ PerHost ≻ Limited(min(a,b)) ≻ Unlimited (§3).
func (r Replication) Intersect(other Replication) Replication {
	rank := func(k replicationKind) int {
		switch k {
		case replGlobal:
			return 3
		case replPerHost:
			return 2
		case replLimited:
			return 1
		default:
			return 0
		}
	}
	if rank(r.kind) != rank(other.kind) {
		if rank(r.kind) > rank(other.kind) {
			return r
		}
		return other
	}
	if r.kind == replLimited {
		if r.limit < other.limit {
			return r
		}
		return other
	}
	return r
}

func (r Replication) String() string {
	switch r.kind {
	case replGlobal:
		return "Global"
	case replPerHost:
		return "PerHost"
	case replLimited:
		return fmt.Sprintf("Limited(%d)", r.limit)
	default:
		return "Unlimited"
	}
}
