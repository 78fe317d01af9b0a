// Package scheduler implements the placement algorithm of §4.6: given a
// closed block graph, a typed edge list, and a runtime host
// configuration, it assigns every block a list of Coords and
// materializes the ReceiverEndpoint for every edge, choosing a local
// channel or a network registration depending on whether the two
// endpoints land on the same host.
package scheduler

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/rosscartlidge/dataflow/pkg/streaming"
)

// Host is one entry from the runtime config's host list (§4.6 step 1).
type Host struct {
	ID           int
	Addr         string // network address other hosts dial to reach this one
	Cores        int
	Layer        string            // empty means untagged
	Group        string            // optional co-location group tag
	Capabilities map[string]string // capability bag probed by a block's Requirement DSL
}

// Edge is one typed block-to-block connection in the closed block graph
// (§4.6 step 5: "(src_block, dst_block, elem_type)").
type Edge struct {
	SrcBlock int
	DstBlock int
	ElemType string
}

// Placement is the scheduler's output: every block's assigned Coords.
type Placement struct {
	Coords map[int][]streaming.Coord
}

// EndpointPlan describes how one edge's (src coord, dst coord) pair is
// realized: a local bounded channel when both land on the same host, or
// a registration with the destination host's network demultiplexer
// otherwise (§4.6 step 5).
type EndpointPlan struct {
	Endpoint streaming.ReceiverEndpoint
	SrcCoord streaming.Coord
	Local    bool
	PeerAddr string // destination host's dial address, set when !Local
}

// ErrNoEligibleHost is returned when a block's layer/capability filter
// eliminates every host.
type ErrNoEligibleHost struct{ BlockID int }

func (e ErrNoEligibleHost) Error() string {
	return fmt.Sprintf("scheduler: block %d has no eligible host after layer/capability filtering", e.BlockID)
}

// Place runs the five-step placement algorithm of §4.6 over the given
// blocks, hosts, and edges.
func Place(blocks []*streaming.Block, hosts []Host, edges []Edge) (*Placement, []EndpointPlan, error) {
	sorted := make([]Host, len(hosts))
	copy(sorted, hosts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	placement := &Placement{Coords: make(map[int][]streaming.Coord, len(blocks))}
	for _, b := range blocks {
		eligible := filterHosts(sorted, b.Scheduling)
		if len(eligible) == 0 {
			return nil, nil, ErrNoEligibleHost{BlockID: b.ID}
		}
		cores := make([]int, len(eligible))
		for i, h := range eligible {
			cores[i] = h.Cores
		}
		counts := b.Scheduling.Replication.PlaceCounts(cores)

		var coords []streaming.Coord
		for i, h := range eligible {
			for r := 0; r < counts[i]; r++ {
				coords = append(coords, streaming.Coord{BlockID: b.ID, HostID: h.ID, ReplicaID: r})
			}
		}
		placement.Coords[b.ID] = coords
	}

	hostByID := make(map[int]Host, len(sorted))
	for _, h := range sorted {
		hostByID[h.ID] = h
	}

	var endpoints []EndpointPlan
	for _, e := range edges {
		srcCoords := placement.Coords[e.SrcBlock]
		dstCoords := placement.Coords[e.DstBlock]
		for _, src := range srcCoords {
			for _, dst := range dstCoords {
				ep := streaming.ReceiverEndpoint{Coord: dst, SenderBlockID: e.SrcBlock}
				local := src.HostID == dst.HostID
				plan := EndpointPlan{Endpoint: ep, SrcCoord: src, Local: local}
				if !local {
					plan.PeerAddr = hostByID[dst.HostID].Addr
				}
				endpoints = append(endpoints, plan)
			}
		}
	}

	return placement, endpoints, nil
}

// filterHosts implements §4.6 step 2: keep hosts matching the block's
// layer tag (untagged blocks run anywhere) and satisfying its
// capability Requirement predicate (a nil Requirement always passes).
func filterHosts(hosts []Host, sched streaming.Scheduling) []Host {
	var out []Host
	for _, h := range hosts {
		if sched.Layer != "" && sched.Layer != h.Layer {
			continue
		}
		if sched.Requirement != nil && !sched.Requirement(h.Capabilities) {
			continue
		}
		out = append(out, h)
	}
	return out
}

// ReplicaLauncher starts one goroutine per replica of one block,
// following the teacher's errgroup-based Parallel worker pool
// (pkg/stream/filters.go): every launch failure cancels the group's
// context and Wait returns the first error.
type ReplicaLauncher struct {
	group *errgroup.Group
	ctx   context.Context
}

// NewReplicaLauncher builds a launcher bound to ctx.
func NewReplicaLauncher(ctx context.Context) *ReplicaLauncher {
	group, gctx := errgroup.WithContext(ctx)
	return &ReplicaLauncher{group: group, ctx: gctx}
}

// Launch starts run for each coord assigned to a block, in its own
// goroutine, passing the launcher's shared cancellation context.
func (l *ReplicaLauncher) Launch(coords []streaming.Coord, run func(ctx context.Context, self streaming.Coord) error) {
	for _, c := range coords {
		coord := c
		l.group.Go(func() error { return run(l.ctx, coord) })
	}
}

// Wait blocks until every launched replica has returned, yielding the
// first non-nil error (if any).
func (l *ReplicaLauncher) Wait() error { return l.group.Wait() }
