package ofproxy

import (
	"context"
	"net"
)

// fakeConn wraps one end of an in-memory net.Pipe, adapted from the
// teacher's stream_test.go fakeConn: a Conn that needs no real socket,
// so Session and Service can be driven deterministically in tests.
type fakeConn struct {
	net.Conn
	addr string
}

func (f *fakeConn) RemoteAddr() net.Addr { return fakeAddr(f.addr) }

type fakeAddr string

func (a fakeAddr) Network() string { return "fake" }
func (a fakeAddr) String() string  { return string(a) }

// newFakePair returns two connected fakeConns, as if one were the
// proxy's accepted switch socket and the other the test's view of the
// switch end.
func newFakePair(localName, remoteName string) (*fakeConn, *fakeConn) {
	a, b := net.Pipe()
	return &fakeConn{Conn: a, addr: localName}, &fakeConn{Conn: b, addr: remoteName}
}

// fakeListener serves a fixed queue of pre-connected Conns, letting a
// test control exactly how many and which switch connections Service.Serve
// sees without opening a real listening socket.
type fakeListener struct {
	conns  chan Conn
	closed chan struct{}
}

func newFakeListener() *fakeListener {
	return &fakeListener{conns: make(chan Conn, 8), closed: make(chan struct{})}
}

func (l *fakeListener) push(c Conn) { l.conns <- c }

func (l *fakeListener) Accept() (Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *fakeListener) Close() error {
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
	return nil
}

// fakeDialer hands out one pre-arranged Conn per controller address,
// queued by the test ahead of time, instead of dialing a real socket.
type fakeDialer struct {
	byAddr map[string]chan Conn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{byAddr: make(map[string]chan Conn)}
}

// expect registers the Conn to be handed back the next time addr is dialed.
func (d *fakeDialer) expect(addr string, c Conn) {
	ch, ok := d.byAddr[addr]
	if !ok {
		ch = make(chan Conn, 4)
		d.byAddr[addr] = ch
	}
	ch <- c
}

func (d *fakeDialer) Dial(ctx context.Context, network, addr string) (Conn, error) {
	ch, ok := d.byAddr[addr]
	if !ok {
		return nil, errUnexpectedDial(addr)
	}
	select {
	case c := <-ch:
		return c, nil
	default:
		return nil, errUnexpectedDial(addr)
	}
}

type errUnexpectedDial string

func (e errUnexpectedDial) Error() string { return "fakeDialer: no conn queued for " + string(e) }
