package runtime

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rosscartlidge/dataflow/pkg/iteration"
	"github.com/rosscartlidge/dataflow/pkg/network"
	"github.com/rosscartlidge/dataflow/pkg/streaming"
)

// ReplicaState enumerates the state machine of §4.9: Booting → Running →
// Draining → Terminated, with a Draining → Running back-edge ("Restart")
// taken on FlushAndRestart while inside an iteration instead of falling
// through to Terminated.
type ReplicaState int

const (
	Booting ReplicaState = iota
	Running
	Draining
	Terminated
)

func (s ReplicaState) String() string {
	switch s {
	case Booting:
		return "Booting"
	case Running:
		return "Running"
	case Draining:
		return "Draining"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Sink receives every element the replica's operator chain produces;
// the driver discards nothing itself, matching §4.9 "one thread runs
// `while let elem = start.next() { sink(elem) }`".
type Sink func(streaming.Element) error

// Replica owns one running instance of a block: its operator chain
// (already wired to its Start), the sink function elements are handed
// to, and the logger scoped to this replica's Coord.
type Replica struct {
	Self   streaming.Coord
	Chain  streaming.Stream
	Sink   Sink
	Logger zerolog.Logger

	state ReplicaState
}

// NewReplica builds a replica bound to self, logging under a logger
// scoped with the replica's own Coord fields (mirrors the teacher-
// adjacent pg-migrator's logger.With().Str("component", ...) pattern).
func NewReplica(self streaming.Coord, chain streaming.Stream, sink Sink, logger zerolog.Logger) *Replica {
	return &Replica{
		Self:   self,
		Chain:  chain,
		Sink:   sink,
		Logger: logger.With().
			Int("block", self.BlockID).
			Int("host", self.HostID).
			Int("replica", self.ReplicaID).
			Logger(),
		state: Booting,
	}
}

// State reports the replica's current state-machine position.
func (r *Replica) State() ReplicaState { return r.state }

// Run drives the replica to completion: Booting → Running, pulling
// elements from Chain and handing each to Sink, until Terminate puts it
// in Terminated. A FlushAndRestart is handed to Sink and moves the
// replica through Draining back to Running (the Restart edge of §4.9's
// cycle) rather than ending it, whether or not lock is nil; with a
// non-nil lock the current pass number is also logged.
//
// Failure semantics: a panic from Chain or Sink is not recovered here —
// it propagates to the caller's goroutine, matching §4.9 "on any panic
// the worker aborts" (the scheduler/launcher, not the replica, decides
// what happens to the rest of the job).
func (r *Replica) Run(ctx context.Context, lock *iteration.StateLock) error {
	r.state = Running
	r.Logger.Info().Msg("replica running")
	for {
		select {
		case <-ctx.Done():
			r.state = Terminated
			return ctx.Err()
		default:
		}

		elem, err := r.Chain()
		if err != nil {
			r.state = Terminated
			r.Logger.Info().Err(err).Msg("replica input disconnected")
			return err
		}
		if err := r.Sink(elem); err != nil {
			r.state = Terminated
			return fmt.Errorf("runtime: sink: %w", err)
		}

		switch elem.Kind {
		case streaming.KindFlushAndRestart:
			r.state = Draining
			if lock != nil {
				r.Logger.Debug().Int("pass", lock.Pass).Msg("restart: resuming for next iteration pass")
			}
			r.state = Running // the Draining->Running back-edge of §4.9
		case streaming.KindTerminate:
			r.state = Terminated
			r.Logger.Info().Msg("replica terminated")
			return nil
		}
	}
}

// Driver owns the network multiplexer/demultiplexer lifecycle shared by
// every replica co-located on one host, and joins them after the last
// worker ends (§4.9: "The driver owns the multiplexer/demultiplexer
// tasks and joins them after the last worker ends").
type Driver struct {
	Mux    *network.Multiplexer
	Demux  *network.Demultiplexer
	Logger zerolog.Logger
}

// NewDriver builds a Driver for one host, starting its demultiplexer
// listener at listenAddr and dispatching inbound frames via dispatch.
func NewDriver(ctx context.Context, listenAddr string, dispatch func(network.Frame), logger zerolog.Logger) (*Driver, error) {
	demux, err := network.NewDemultiplexer(ctx, listenAddr, dispatch)
	if err != nil {
		return nil, fmt.Errorf("runtime: starting demultiplexer: %w", err)
	}
	return &Driver{
		Mux:    network.NewMultiplexer(ctx),
		Demux:  demux,
		Logger: logger.With().Str("component", "driver").Logger(),
	}, nil
}

// Serve runs the demultiplexer's accept loop; call it in its own
// goroutine and join it via Close and the error Serve returns, or
// simply let ctx cancellation stop it.
func (d *Driver) Serve() error {
	d.Logger.Info().Msg("demultiplexer serving")
	return d.Demux.Serve()
}

// Close tears down the driver's network side: stops accepting new
// connections and waits for every outbound writer goroutine to exit.
func (d *Driver) Close() error {
	if err := d.Demux.Close(); err != nil {
		return err
	}
	return d.Mux.Wait()
}
