package tunnel

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/ofmux/ofmux/internal/ofproxy"
	"github.com/ofmux/ofmux/ofp"
)

// EnvelopeConn adapts one dedicated raw connection to the tunnel
// process into the plain Conn interface internal/ofproxy.Service
// expects, so a scheduler's tunnel-uplink mode can reuse Service
// unmodified: from Service's point of view this looks like an
// ordinary controller connection, but every write it makes is
// transparently enveloped with the owning switch's dpid, and every
// read is stripped back down to the plain OpenFlow payload.
//
// The switch's dpid isn't known at dial time — it arrives later, in
// the switch's own FEATURES_REPLY — so EnvelopeConn buffers nothing
// and instead blocks the first Write until SetDPID is called.
type EnvelopeConn struct {
	raw ofproxy.Conn

	dpidMu    sync.Mutex
	dpid      uint64
	ready     chan struct{}
	readyOnce sync.Once

	mu      sync.Mutex
	pending []byte

	readCh    chan []byte
	errCh     chan error
	closed    chan struct{}
	closeOnce sync.Once
}

// NewEnvelopeConn wraps raw, the just-dialed connection to the tunnel
// process, with dpid left unset until SetDPID is called.
func NewEnvelopeConn(raw ofproxy.Conn) *EnvelopeConn {
	c := &EnvelopeConn{
		raw:    raw,
		ready:  make(chan struct{}),
		readCh: make(chan []byte, 16),
		errCh:  make(chan error, 1),
		closed: make(chan struct{}),
	}
	go c.demux()
	return c
}

// SetDPID records dpid and unblocks any Write waiting on it. Safe to
// call once; later calls only update the dpid used on subsequent writes.
func (c *EnvelopeConn) SetDPID(dpid uint64) {
	c.dpidMu.Lock()
	c.dpid = dpid
	c.dpidMu.Unlock()
	c.readyOnce.Do(func() { close(c.ready) })
}

func (c *EnvelopeConn) demux() {
	framer := ofp.NewEnvelopeFramer()
	buf := make([]byte, 4096)
	for {
		n, err := c.raw.Read(buf)
		if err != nil {
			select {
			case c.errCh <- err:
			default:
			}
			close(c.readCh)
			return
		}

		framer.Push(buf[:n])
		for {
			envelope, ok, ferr := framer.Next()
			if ferr != nil {
				select {
				case c.errCh <- ferr:
				default:
				}
				close(c.readCh)
				return
			}
			if !ok {
				break
			}
			payload := ofp.EnvelopePayload(envelope)
			out := make([]byte, len(payload))
			copy(out, payload)
			select {
			case c.readCh <- out:
			case <-c.closed:
				return
			}
		}
	}
}

func (c *EnvelopeConn) Read(b []byte) (int, error) {
	c.mu.Lock()
	if len(c.pending) > 0 {
		n := copy(b, c.pending)
		c.pending = c.pending[n:]
		c.mu.Unlock()
		return n, nil
	}
	c.mu.Unlock()

	select {
	case msg, ok := <-c.readCh:
		if !ok {
			select {
			case err := <-c.errCh:
				return 0, err
			default:
				return 0, io.EOF
			}
		}
		n := copy(b, msg)
		if n < len(msg) {
			c.mu.Lock()
			c.pending = msg[n:]
			c.mu.Unlock()
		}
		return n, nil
	case <-c.closed:
		return 0, io.EOF
	}
}

func (c *EnvelopeConn) Write(b []byte) (int, error) {
	select {
	case <-c.ready:
	case <-c.closed:
		return 0, io.ErrClosedPipe
	}

	c.dpidMu.Lock()
	dpid := c.dpid
	c.dpidMu.Unlock()

	if _, err := c.raw.Write(ofp.Envelope(dpid, b)); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *EnvelopeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.raw.Close()
}

func (c *EnvelopeConn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// UplinkDialer wraps an inner Dialer so every connection it opens is
// presented to internal/ofproxy.Service as an EnvelopeConn, turning
// Service's per-switch controller dial into a dedicated envelope-framed
// connection to the tunnel process.
type UplinkDialer struct {
	Inner ofproxy.Dialer
}

func (d *UplinkDialer) Dial(ctx context.Context, network, address string) (ofproxy.Conn, error) {
	conn, err := d.Inner.Dial(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return NewEnvelopeConn(conn), nil
}
