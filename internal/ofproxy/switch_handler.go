package ofproxy

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/ofmux/ofmux/ofp"
)

// DPIDSetter is implemented by Conn types that need to learn a
// switch's datapath id after being dialed but before their first
// write — the tunnel variant's internal/tunnel.EnvelopeConn, which
// must envelope every write with the owning dpid. The direct variant's
// plain net.Conn does not implement it, so the type assertion below is
// a no-op there.
type DPIDSetter interface {
	SetDPID(dpid uint64)
}

// handleSwitchMessage dispatches one framed message received from a
// switch (C6), per spec.md §4.2.
func (s *Service) handleSwitchMessage(ctx context.Context, sw *SwitchContext, msg []byte) error {
	logger := s.Log.WithField("switch", sw.ID).WithField("xid", ofp.Xid(msg))

	switch ofp.Type(msg) {
	case ofp.TypeHello:
		return s.handleSwitchHello(ctx, sw, logger)

	case ofp.TypeEchoRequest:
		return sw.Session.Send(ofp.NewEchoReply(ofp.Xid(msg), ofp.Payload(msg)))

	case ofp.TypeFeaturesReply:
		return s.handleFeaturesReply(sw, msg, logger)

	case ofp.TypePacketIn:
		return s.handlePacketIn(sw, msg, logger)

	case ofp.TypeMultipartReply:
		return s.handleMultipartReply(sw, msg)

	case ofp.TypeRoleReply:
		return s.handleRoleReply(sw, msg, logger)

	default:
		return s.handleOtherSwitchMessage(sw, msg, logger)
	}
}

// handleSwitchHello opens one outbound connection to every configured
// controller on the switch's first HELLO, and always replies with a
// HELLO and FEATURES_REQUEST to solicit the switch's datapath id.
// Subsequent HELLOs are idempotent: they repeat the reply but never
// dial out again (testable property #3).
func (s *Service) handleSwitchHello(ctx context.Context, sw *SwitchContext, logger *log.Entry) error {
	if sw.MarkHelloSeen() {
		s.dialControllers(ctx, sw)
	}
	if err := sw.Session.Send(ofp.NewHello()); err != nil {
		return err
	}
	return sw.Session.Send(ofp.NewFeaturesRequest())
}

// handleFeaturesReply implements the two distinct roles a
// FEATURES_REPLY can play (spec.md §4.2): the first one learns the
// switch's dpid and triggers a HELLO to every associated controller;
// any subsequent one answers a controller-initiated FEATURES_REQUEST
// and is resolved through the correlation table.
func (s *Service) handleFeaturesReply(sw *SwitchContext, msg []byte, logger *log.Entry) error {
	if _, known := sw.DPID(); !known {
		dpid, err := ofp.ExtractDPID(msg)
		if err != nil {
			return err
		}
		sw.SetDPID(dpid)
		logger.WithField("dpid", dpid).Info("learned switch datapath id")

		for _, c := range sw.Controllers() {
			if setter, ok := c.Session.Conn().(DPIDSetter); ok {
				setter.SetDPID(dpid)
			}
			_ = c.Session.Send(ofp.NewHello())
		}
		return nil
	}

	ctrl, ok := s.Correlation.Resolve(sw, ofp.TypeFeaturesRequest, ofp.Xid(msg), false)
	if !ok {
		return correlationMissError(ofp.TypeFeaturesReply, ofp.Xid(msg))
	}
	return ctrl.Session.Send(msg)
}

// handlePacketIn classifies the encapsulated frame: topology traffic
// (LLDP/ARP) is routed to the current master, falling back to an
// arbitrary associated controller; everything else goes through the
// scheduling policy.
func (s *Service) handlePacketIn(sw *SwitchContext, msg []byte, logger *log.Entry) error {
	controllers := sw.Controllers()
	if len(controllers) == 0 {
		return ErrNoController
	}

	var target *ControllerContext
	if ofp.IsTopologyPacket(msg) {
		if master, ok := s.Roles.Master(sw); ok {
			target = master
		} else {
			target = controllers[0]
		}
	} else {
		target = s.Policy.Next(sw, controllers)
	}

	if target == nil {
		return ErrNoController
	}
	if err := target.Session.Send(msg); err != nil {
		return err
	}
	if s.Capture != nil {
		_ = s.Capture.Capture(msg)
	}
	return nil
}

// handleMultipartReply peeks the correlation entry while more fragments
// are coming (MORE flag set) and pops it on the final fragment
// (testable property #6).
func (s *Service) handleMultipartReply(sw *SwitchContext, msg []byte) error {
	more, err := ofp.MultipartMore(msg)
	if err != nil {
		return err
	}
	ctrl, ok := s.Correlation.Resolve(sw, ofp.TypeMultipartRequest, ofp.Xid(msg), more)
	if !ok {
		return correlationMissError(ofp.TypeMultipartReply, ofp.Xid(msg))
	}
	return ctrl.Session.Send(msg)
}

// handleRoleReply updates the role table from the switch's accepted
// role and forwards the reply to the requesting controller.
func (s *Service) handleRoleReply(sw *SwitchContext, msg []byte, logger *log.Entry) error {
	ctrl, ok := s.Correlation.Resolve(sw, ofp.TypeRoleRequest, ofp.Xid(msg), false)
	if !ok {
		return correlationMissError(ofp.TypeRoleReply, ofp.Xid(msg))
	}

	role, err := ofp.ExtractRole(msg)
	if err != nil {
		return err
	}

	if demoted := s.Roles.Accept(sw, ctrl, role); demoted != nil {
		logger.WithField("demoted", demoted.ID).WithField("promoted", ctrl.ID).
			Info("role conflict: later acceptance wins, earlier master demoted")
	}

	return ctrl.Session.Send(msg)
}

// handleOtherSwitchMessage covers the remaining reply types in
// {6, 8, 19, 21, 25, 27} generically, and otherwise routes to the
// switch's current master (spec.md §9, design note "Broadcast on
// 'other' switch messages": this proxy chooses route-to-master).
func (s *Service) handleOtherSwitchMessage(sw *SwitchContext, msg []byte, logger *log.Entry) error {
	t := ofp.Type(msg)
	if reqType, ok := ofp.RequestTypeFor(t); ok {
		ctrl, found := s.Correlation.Resolve(sw, reqType, ofp.Xid(msg), false)
		if !found {
			return correlationMissError(t, ofp.Xid(msg))
		}
		return ctrl.Session.Send(msg)
	}

	master, ok := s.Roles.Master(sw)
	if !ok {
		return ErrNoMaster
	}
	return master.Session.Send(msg)
}
