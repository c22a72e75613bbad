package ofproxy

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ofmux/ofmux/ofp"
)

// Session owns one TCP connection: a framer, a serialized write path,
// and the channels a coordinator drains in arrival order (C2). It is
// adapted from the teacher's MessageStream — the same Inbound/Outbound/
// Error/Shutdown channel shape — but drops the parser worker pool: this
// proxy never decodes a full message body, only a few fixed-offset
// fields, so there is nothing expensive to parallelize, and spec.md §5
// requires a session's framer never be re-entered concurrently, which a
// pool of parser goroutines would violate.
type Session struct {
	conn   Conn
	framer ofp.Framer

	// Inbound carries complete, framed messages in arrival order.
	Inbound chan []byte
	// Outbound accepts messages for serialized delivery to the peer.
	Outbound chan []byte
	// Err carries at most one fatal I/O or framing error before the
	// session closes itself.
	Err chan error

	closeOnce sync.Once
	done      chan struct{}

	log *log.Entry
}

// NewSession wraps conn with framer and starts its read and write
// loops. The returned Session is immediately usable.
func NewSession(conn Conn, framer ofp.Framer, logger *log.Entry) *Session {
	s := &Session{
		conn:     conn,
		framer:   framer,
		Inbound:  make(chan []byte, 16),
		Outbound: make(chan []byte, 16),
		Err:      make(chan error, 1),
		done:     make(chan struct{}),
		log:      logger,
	}
	go s.readLoop()
	go s.writeLoop()
	return s
}

func (s *Session) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			s.fail(err)
			return
		}

		s.framer.Push(buf[:n])
		for {
			msg, ok, ferr := s.framer.Next()
			if ferr != nil {
				s.fail(ferr)
				return
			}
			if !ok {
				break
			}
			select {
			case s.Inbound <- msg:
			case <-s.done:
				return
			}
		}
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case msg := <-s.Outbound:
			if _, err := s.conn.Write(msg); err != nil {
				s.fail(err)
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) fail(err error) {
	select {
	case s.Err <- err:
	default:
	}
	s.Close()
}

// Send enqueues msg for serialized delivery to the peer. Once the
// session has begun closing, Send discards the write and returns
// ErrSessionClosed instead of blocking forever on a dead write loop.
func (s *Session) Send(msg []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.Outbound <- msg:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// Close tears down the underlying connection. It is safe to call more
// than once and from more than one goroutine.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
	return nil
}

// Done returns a channel closed once the session starts shutting down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Conn returns the connection backing this session. Exposed so a
// tunnel-uplink Dialer can recognize and configure its own Conn
// implementation (see internal/tunnel.EnvelopeConn) after Service has
// already wrapped it in a Session; the direct variant's plain
// net.Conn ignores the type assertion this enables.
func (s *Session) Conn() Conn { return s.conn }
