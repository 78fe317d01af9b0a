package runtime

import (
	"context"
	"io"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rosscartlidge/dataflow/pkg/iteration"
	"github.com/rosscartlidge/dataflow/pkg/streaming"
)

func TestReplicaRunReachesTerminated(t *testing.T) {
	elems := []streaming.Element{
		streaming.Item(1),
		streaming.FlushAndRestart(),
		streaming.Terminate(),
	}
	i := 0
	chain := func() (streaming.Element, error) {
		e := elems[i]
		i++
		return e, nil
	}
	var sunk []streaming.Element
	sink := func(e streaming.Element) error {
		sunk = append(sunk, e)
		return nil
	}

	logger := zerolog.New(io.Discard)
	self := streaming.Coord{BlockID: 1, HostID: 0, ReplicaID: 0}
	r := NewReplica(self, chain, sink, logger)
	if r.State() != Booting {
		t.Fatalf("expected Booting before Run, got %v", r.State())
	}

	reg := iteration.NewRegistry()
	lockID := reg.Acquire()
	lock, _ := reg.Get(lockID)

	if err := r.Run(context.Background(), lock); err != nil {
		t.Fatalf("run: %v", err)
	}
	if r.State() != Terminated {
		t.Fatalf("expected Terminated after Run, got %v", r.State())
	}
	if len(sunk) != 3 {
		t.Fatalf("expected all 3 elements sunk, got %d", len(sunk))
	}
}
