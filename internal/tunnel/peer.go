// Package tunnel implements C8, the two-stage variant's tunnel
// process: it terminates the envelope-framed pipe from one or more
// schedulers, demultiplexes traffic by datapath id, and holds the
// dial-once-per-dpid connections to the real downstream controllers.
// It shares its correlation table, role table and scheduling policy
// types directly from internal/ofproxy rather than duplicating them
// (SPEC_FULL.md §C), since a tunnel peer and a direct-variant scheduler
// make exactly the same C3/C4/C5 decisions — only the switch-facing
// edge framing differs.
package tunnel

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ofmux/ofmux/internal/ofproxy"
	"github.com/ofmux/ofmux/ofp"
)

// Peer is the tunnel-process coordinator. One Peer serves every pipe
// connection accepted from schedulers; dpid state is scoped to the
// pipe it arrived on, since two schedulers never share a datapath id.
type Peer struct {
	Dialer      ofproxy.Dialer
	Controllers []string
	Policy      ofproxy.Policy

	Capture ofproxy.CaptureWriter
	Log     *log.Entry

	wg sync.WaitGroup
}

// NewPeer builds a Peer ready to Serve pipe connections.
func NewPeer(dialer ofproxy.Dialer, controllers []string, policy ofproxy.Policy, capture ofproxy.CaptureWriter, logger *log.Entry) *Peer {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Peer{Dialer: dialer, Controllers: controllers, Policy: policy, Capture: capture, Log: logger}
}

// Serve accepts pipe connections from l until Accept returns an error.
func (p *Peer) Serve(ctx context.Context, l ofproxy.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.servePipe(ctx, conn)
		}()
	}
}

// Wait blocks until every in-flight pipe connection has terminated.
func (p *Peer) Wait() { p.wg.Wait() }

// dpidState is one datapath id's correlation/role/controller-set
// state, scoped to a single pipe connection.
type dpidState struct {
	sw          *ofproxy.SwitchContext
	correlation *ofproxy.CorrelationTable
	roles       *ofproxy.RoleTable
}

func (p *Peer) servePipe(ctx context.Context, conn ofproxy.Conn) {
	id := conn.RemoteAddr().String()
	logger := p.Log.WithField("pipe", id)
	pipe := ofproxy.NewSession(conn, ofp.NewEnvelopeFramer(), logger)
	logger.Info("scheduler pipe connected")

	var mu sync.Mutex
	dpids := make(map[uint64]*dpidState)

	defer func() {
		pipe.Close()
		mu.Lock()
		for dpid, st := range dpids {
			for _, c := range st.sw.Controllers() {
				c.Session.Close()
			}
			logger.WithField("dpid", dpid).Info("dpid state torn down")
		}
		mu.Unlock()
	}()

	for {
		select {
		case envelope, ok := <-pipe.Inbound:
			if !ok {
				return
			}
			dpid := ofp.EnvelopeDPID(envelope)
			payload := ofp.EnvelopePayload(envelope)

			mu.Lock()
			st, known := dpids[dpid]
			mu.Unlock()

			if !known {
				if ofp.Type(payload) != ofp.TypeHello {
					logger.WithField("dpid", dpid).Error("non-HELLO message for unknown dpid, dropping")
					continue
				}
				st = &dpidState{
					sw:          ofproxy.NewSwitchContext(fmt.Sprintf("dpid-%d", dpid), nil),
					correlation: ofproxy.NewCorrelationTable(),
					roles:       ofproxy.NewRoleTable(),
				}
				mu.Lock()
				dpids[dpid] = st
				mu.Unlock()
				p.dialControllers(ctx, pipe, dpid, st, logger)
				continue
			}

			if ofp.Type(payload) == ofp.TypeHello {
				// Idempotent: the dial already happened on first HELLO.
				continue
			}

			if err := p.handlePipeMessage(pipe, dpid, st, payload, logger); err != nil {
				logger.WithField("dpid", dpid).WithError(err).Error("pipe dispatch terminated")
				return
			}

		case err := <-pipe.Err:
			if err != nil {
				logger.WithError(err).Info("scheduler pipe lost")
			}
			return

		case <-ctx.Done():
			return
		}
	}
}

// dialControllers opens one outbound connection to every configured
// controller for a newly seen dpid (SPEC_FULL.md §D.3: dial-once).
func (p *Peer) dialControllers(ctx context.Context, pipe *ofproxy.Session, dpid uint64, st *dpidState, logger *log.Entry) {
	for _, addr := range p.Controllers {
		addr := addr
		go func() {
			conn, err := p.Dialer.Dial(ctx, "tcp", addr)
			if err != nil {
				logger.WithField("dpid", dpid).WithField("controller", addr).
					WithError(err).Error("failed to dial controller")
				return
			}
			p.serveController(ctx, pipe, dpid, st, addr, conn, logger)
		}()
	}
}

func (p *Peer) serveController(ctx context.Context, pipe *ofproxy.Session, dpid uint64, st *dpidState, addr string, conn ofproxy.Conn, logger *log.Entry) {
	clogger := logger.WithField("dpid", dpid).WithField("controller", addr)
	session := ofproxy.NewSession(conn, ofp.NewFramer(), clogger)
	ctrl := ofproxy.NewControllerContext(addr, session, st.sw)
	st.sw.AddController(ctrl)
	clogger.Info("controller connected")

	_ = session.Send(ofp.NewHello())

	ticker := time.NewTicker(ofproxy.EchoInterval)
	defer ticker.Stop()
	defer func() {
		session.Close()
		st.sw.RemoveController(ctrl)
	}()

	for {
		select {
		case msg, ok := <-session.Inbound:
			if !ok {
				return
			}
			if err := p.handleControllerMessage(pipe, dpid, st, ctrl, msg, clogger); err != nil {
				clogger.WithError(err).Error("controller session terminated")
				return
			}
		case err := <-session.Err:
			if err != nil {
				clogger.WithError(err).Info("controller connection lost")
			}
			return
		case <-ticker.C:
			_ = session.Send(ofp.NewEchoRequest())
		case <-ctx.Done():
			return
		}
	}
}

// handlePipeMessage dispatches a message demultiplexed from the
// scheduler pipe for dpid, mirroring ofproxy's switch-side dispatch
// (C6) but replying over the shared envelope pipe instead of a
// per-switch socket.
func (p *Peer) handlePipeMessage(pipe *ofproxy.Session, dpid uint64, st *dpidState, msg []byte, logger *log.Entry) error {
	switch ofp.Type(msg) {
	case ofp.TypeEchoRequest:
		return pipe.Send(ofp.Envelope(dpid, ofp.NewEchoReply(ofp.Xid(msg), ofp.Payload(msg))))

	case ofp.TypePacketIn:
		return p.routePacketIn(pipe, dpid, st, msg, logger)

	case ofp.TypeMultipartReply:
		more, err := ofp.MultipartMore(msg)
		if err != nil {
			return err
		}
		ctrl, ok := st.correlation.Resolve(st.sw, ofp.TypeMultipartRequest, ofp.Xid(msg), more)
		if !ok {
			return fmt.Errorf("tunnel: no controller awaiting multipart reply xid=%d", ofp.Xid(msg))
		}
		return ctrl.Session.Send(msg)

	case ofp.TypeRoleReply:
		ctrl, ok := st.correlation.Resolve(st.sw, ofp.TypeRoleRequest, ofp.Xid(msg), false)
		if !ok {
			return fmt.Errorf("tunnel: no controller awaiting role reply xid=%d", ofp.Xid(msg))
		}
		role, err := ofp.ExtractRole(msg)
		if err != nil {
			return err
		}
		if demoted := st.roles.Accept(st.sw, ctrl, role); demoted != nil {
			logger.WithField("dpid", dpid).WithField("demoted", demoted.ID).WithField("promoted", ctrl.ID).
				Info("role conflict: later acceptance wins, earlier master demoted")
		}
		return ctrl.Session.Send(msg)

	default:
		if reqType, ok := ofp.RequestTypeFor(ofp.Type(msg)); ok {
			ctrl, found := st.correlation.Resolve(st.sw, reqType, ofp.Xid(msg), false)
			if !found {
				return fmt.Errorf("tunnel: no controller awaiting reply type=%d xid=%d", ofp.Type(msg), ofp.Xid(msg))
			}
			return ctrl.Session.Send(msg)
		}
		master, ok := st.roles.Master(st.sw)
		if !ok {
			return fmt.Errorf("tunnel: no master known for dpid=%d", dpid)
		}
		return master.Session.Send(msg)
	}
}

func (p *Peer) routePacketIn(pipe *ofproxy.Session, dpid uint64, st *dpidState, msg []byte, logger *log.Entry) error {
	controllers := st.sw.Controllers()
	if len(controllers) == 0 {
		return fmt.Errorf("tunnel: no controller available for dpid=%d", dpid)
	}

	var target *ofproxy.ControllerContext
	if ofp.IsTopologyPacket(msg) {
		if master, ok := st.roles.Master(st.sw); ok {
			target = master
		} else {
			target = controllers[0]
		}
	} else {
		target = p.Policy.Next(st.sw, controllers)
	}
	if target == nil {
		return fmt.Errorf("tunnel: scheduling policy returned no controller for dpid=%d", dpid)
	}
	if err := target.Session.Send(msg); err != nil {
		return err
	}
	if p.Capture != nil {
		_ = p.Capture.Capture(msg)
	}
	return nil
}

// handleControllerMessage dispatches one message from a real
// controller back toward the scheduler pipe, enveloping it with dpid
// (C7, tunnel side).
func (p *Peer) handleControllerMessage(pipe *ofproxy.Session, dpid uint64, st *dpidState, ctrl *ofproxy.ControllerContext, msg []byte, logger *log.Entry) error {
	switch ofp.Type(msg) {
	case ofp.TypeHello, ofp.TypeEchoReply:
		return nil

	case ofp.TypeEchoRequest:
		return ctrl.Session.Send(ofp.NewEchoReply(ofp.Xid(msg), ofp.Payload(msg)))

	case ofp.TypePacketOut:
		if p.Capture != nil {
			_ = p.Capture.Capture(msg)
		}
		return pipe.Send(ofp.Envelope(dpid, msg))

	default:
		if ofproxy.IsRecordedRequestType(ofp.Type(msg)) {
			st.correlation.Record(st.sw, ofp.Type(msg), ofp.Xid(msg), ctrl)
		}
		return pipe.Send(ofp.Envelope(dpid, msg))
	}
}
