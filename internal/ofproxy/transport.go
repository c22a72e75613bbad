package ofproxy

import (
	"context"
	"net"
)

// Conn is the minimal connection surface the proxy's I/O boundary
// needs. *net.TCPConn satisfies it in production; tests drive the core
// with an in-memory fake instead of a real socket (design note:
// "Event-loop coupling").
type Conn interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Close() error
	RemoteAddr() net.Addr
}

// Dialer opens outbound connections to controllers.
type Dialer interface {
	Dial(ctx context.Context, network, address string) (Conn, error)
}

// Listener accepts inbound switch connections.
type Listener interface {
	Accept() (Conn, error)
	Close() error
}

// NetDialer adapts net.Dialer to Dialer, enabling TCP_NODELAY on every
// dialed controller-facing connection per spec.md §5.
type NetDialer struct {
	net.Dialer
}

func (d *NetDialer) Dial(ctx context.Context, network, address string) (Conn, error) {
	c, err := d.Dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return c, nil
}

// NetListener adapts net.Listener to Listener.
type NetListener struct {
	net.Listener
}

func NewNetListener(l net.Listener) *NetListener { return &NetListener{l} }

func (l *NetListener) Accept() (Conn, error) {
	return l.Listener.Accept()
}
