package network

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Wire frame header (§4.7 "TCP multiplexer ... header-framed messages"):
//
//	4 bytes  payload length (big-endian uint32)
//	8 bytes  destination replica id (big-endian uint64)
//	8 bytes  sender block id (big-endian uint64)
//	N bytes  payload (the protowire envelope from wire.go)
const headerLen = 4 + 8 + 8

// maxDialConcurrency bounds how many outbound TCP dials a Multiplexer
// runs at once during bring-up, so a host list with hundreds of peers
// doesn't open hundreds of sockets in the same instant (§4.7 "bounded
// dial concurrency").
const maxDialConcurrency = 8

// Frame is one decoded wire message.
type Frame struct {
	DestReplicaID uint64
	SenderBlockID uint64
	Payload       []byte
}

func writeFrame(w io.Writer, f Frame) error {
	header := make([]byte, headerLen)
	binary.BigEndian.PutUint32(header[0:4], uint32(len(f.Payload)))
	binary.BigEndian.PutUint64(header[4:12], f.DestReplicaID)
	binary.BigEndian.PutUint64(header[12:20], f.SenderBlockID)
	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(f.Payload) == 0 {
		return nil
	}
	_, err := w.Write(f.Payload)
	return err
}

func readFrame(r io.Reader) (Frame, error) {
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, err
	}
	n := binary.BigEndian.Uint32(header[0:4])
	f := Frame{
		DestReplicaID: binary.BigEndian.Uint64(header[4:12]),
		SenderBlockID: binary.BigEndian.Uint64(header[12:20]),
	}
	if n == 0 {
		return f, nil
	}
	f.Payload = make([]byte, n)
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Multiplexer owns one outbound TCP connection per peer host and fans
// frames destined for different replicas over that shared connection
// (§4.7: "one TCP connection per host pair carries every block-to-block
// edge between that pair"). Each connection has its own bounded send
// queue and writer goroutine managed by one errgroup; a write error on
// any peer cancels the group's shared context, which stops every writer.
type Multiplexer struct {
	dialSem *semaphore.Weighted
	dial    func(ctx context.Context, addr string) (net.Conn, error)

	mu    sync.Mutex
	conns map[string]*outboundConn

	group *errgroup.Group
	ctx   context.Context
}

type outboundConn struct {
	conn  net.Conn
	queue chan Frame
}

// NewMultiplexer builds a Multiplexer bound to ctx: closing ctx tears
// down every connection and stops every writer goroutine.
func NewMultiplexer(ctx context.Context) *Multiplexer {
	group, gctx := errgroup.WithContext(ctx)
	return &Multiplexer{
		dialSem: semaphore.NewWeighted(maxDialConcurrency),
		dial:    func(ctx context.Context, addr string) (net.Conn, error) { return (&net.Dialer{}).DialContext(ctx, "tcp", addr) },
		conns:   make(map[string]*outboundConn),
		group:   group,
		ctx:     gctx,
	}
}

// Send enqueues a frame for delivery to the peer at addr, dialing lazily
// and bounding concurrent dials via the semaphore (§4.7).
func (m *Multiplexer) Send(ctx context.Context, addr string, f Frame) error {
	oc, err := m.connFor(ctx, addr)
	if err != nil {
		return err
	}
	select {
	case oc.queue <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ctx.Done():
		return m.ctx.Err()
	}
}

func (m *Multiplexer) connFor(ctx context.Context, addr string) (*outboundConn, error) {
	m.mu.Lock()
	if oc, ok := m.conns[addr]; ok {
		m.mu.Unlock()
		return oc, nil
	}
	m.mu.Unlock()

	if err := m.dialSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("network: acquiring dial slot for %s: %w", addr, err)
	}
	defer m.dialSem.Release(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	if oc, ok := m.conns[addr]; ok {
		return oc, nil
	}
	conn, err := m.dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("network: dialing %s: %w", addr, err)
	}
	oc := &outboundConn{conn: conn, queue: make(chan Frame, DefaultLocalCapacity)}
	m.conns[addr] = oc
	m.group.Go(func() error { return m.writeLoop(oc) })
	return oc, nil
}

func (m *Multiplexer) writeLoop(oc *outboundConn) error {
	for {
		select {
		case f, ok := <-oc.queue:
			if !ok {
				return nil
			}
			if err := writeFrame(oc.conn, f); err != nil {
				return fmt.Errorf("network: writing frame: %w", err)
			}
		case <-m.ctx.Done():
			return m.ctx.Err()
		}
	}
}

// Wait blocks until every writer goroutine has exited, returning the
// first error (if any).
func (m *Multiplexer) Wait() error { return m.group.Wait() }

// Demultiplexer accepts inbound TCP connections and dispatches decoded
// frames to locally registered endpoints by replica id (§4.7
// "demultiplexer ... fans frames in to the right local receiver
// endpoint").
type Demultiplexer struct {
	listener net.Listener
	dispatch func(f Frame)
	group    *errgroup.Group
	ctx      context.Context
}

// NewDemultiplexer listens on addr and calls dispatch for every decoded
// frame across every accepted connection. Call Serve to run the accept
// loop; cancel ctx to stop it.
func NewDemultiplexer(ctx context.Context, addr string, dispatch func(Frame)) (*Demultiplexer, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("network: listening on %s: %w", addr, err)
	}
	group, gctx := errgroup.WithContext(ctx)
	return &Demultiplexer{listener: l, dispatch: dispatch, group: group, ctx: gctx}, nil
}

// Addr reports the bound listen address (useful when addr was ":0").
func (d *Demultiplexer) Addr() net.Addr { return d.listener.Addr() }

// Serve runs the accept loop until ctx is cancelled or Close is called.
func (d *Demultiplexer) Serve() error {
	go func() {
		<-d.ctx.Done()
		d.listener.Close()
	}()
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.ctx.Done():
				return d.group.Wait()
			default:
				return fmt.Errorf("network: accept: %w", err)
			}
		}
		d.group.Go(func() error { return d.readLoop(conn) })
	}
}

func (d *Demultiplexer) readLoop(conn net.Conn) error {
	defer conn.Close()
	for {
		f, err := readFrame(conn)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("network: reading frame: %w", err)
		}
		d.dispatch(f)
	}
}

// Close stops accepting new connections; in-flight reads drain naturally
// as their peers close.
func (d *Demultiplexer) Close() error { return d.listener.Close() }
