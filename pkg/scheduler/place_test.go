package scheduler

import (
	"testing"

	"github.com/rosscartlidge/dataflow/pkg/streaming"
)

func TestPlaceUnlimitedUsesAllCores(t *testing.T) {
	blocks := []*streaming.Block{
		{ID: 1, Scheduling: streaming.Scheduling{Replication: streaming.Unlimited()}},
	}
	hosts := []Host{{ID: 1, Cores: 4}, {ID: 2, Cores: 2}}
	p, _, err := Place(blocks, hosts, nil)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if len(p.Coords[1]) != 6 {
		t.Fatalf("expected 6 total replicas, got %d: %v", len(p.Coords[1]), p.Coords[1])
	}
}

func TestPlaceGlobalPinsSingleReplica(t *testing.T) {
	blocks := []*streaming.Block{
		{ID: 1, Scheduling: streaming.Scheduling{Replication: streaming.Global()}},
	}
	hosts := []Host{{ID: 1, Cores: 4}, {ID: 2, Cores: 2}}
	p, _, err := Place(blocks, hosts, nil)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if len(p.Coords[1]) != 1 {
		t.Fatalf("expected exactly 1 replica for Global, got %v", p.Coords[1])
	}
}

func TestPlaceLimitedCapsAcrossHosts(t *testing.T) {
	blocks := []*streaming.Block{
		{ID: 1, Scheduling: streaming.Scheduling{Replication: streaming.Limited(3)}},
	}
	hosts := []Host{{ID: 1, Cores: 4}, {ID: 2, Cores: 4}}
	p, _, err := Place(blocks, hosts, nil)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if len(p.Coords[1]) != 3 {
		t.Fatalf("expected 3 total replicas capped, got %d: %v", len(p.Coords[1]), p.Coords[1])
	}
}

func TestPlaceLayerFiltersHosts(t *testing.T) {
	blocks := []*streaming.Block{
		{ID: 1, Scheduling: streaming.Scheduling{Replication: streaming.PerHost(), Layer: "gpu"}},
	}
	hosts := []Host{{ID: 1, Cores: 2, Layer: "gpu"}, {ID: 2, Cores: 2, Layer: "cpu"}}
	p, _, err := Place(blocks, hosts, nil)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if len(p.Coords[1]) != 1 || p.Coords[1][0].HostID != 1 {
		t.Fatalf("expected single replica on the gpu host, got %v", p.Coords[1])
	}
}

func TestPlaceNoEligibleHost(t *testing.T) {
	blocks := []*streaming.Block{
		{ID: 1, Scheduling: streaming.Scheduling{Replication: streaming.PerHost(), Layer: "tpu"}},
	}
	hosts := []Host{{ID: 1, Cores: 2, Layer: "cpu"}}
	if _, _, err := Place(blocks, hosts, nil); err == nil {
		t.Fatal("expected ErrNoEligibleHost")
	}
}

func TestPlaceEndpointsLocalVsNetwork(t *testing.T) {
	blocks := []*streaming.Block{
		{ID: 1, Scheduling: streaming.Scheduling{Replication: streaming.PerHost()}},
		{ID: 2, Scheduling: streaming.Scheduling{Replication: streaming.PerHost()}},
	}
	hosts := []Host{{ID: 1, Cores: 1, Addr: "host1:9000"}, {ID: 2, Cores: 1, Addr: "host2:9000"}}
	edges := []Edge{{SrcBlock: 1, DstBlock: 2, ElemType: "row"}}
	_, endpoints, err := Place(blocks, hosts, edges)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if len(endpoints) != 4 {
		t.Fatalf("expected 4 endpoint pairs (2x2 replicas), got %d", len(endpoints))
	}
	var local, remote int
	for _, ep := range endpoints {
		if ep.Local {
			local++
		} else {
			remote++
			if ep.PeerAddr == "" {
				t.Fatal("remote endpoint missing PeerAddr")
			}
		}
	}
	if local != 2 || remote != 2 {
		t.Fatalf("expected 2 local + 2 remote endpoints, got local=%d remote=%d", local, remote)
	}
}
