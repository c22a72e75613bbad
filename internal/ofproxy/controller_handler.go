package ofproxy

import (
	"github.com/ofmux/ofmux/ofp"
)

// handleControllerMessage dispatches one framed message received from
// a controller associated with sw (C7), per spec.md §4.3.
func (s *Service) handleControllerMessage(sw *SwitchContext, ctrl *ControllerContext, msg []byte) error {
	switch ofp.Type(msg) {
	case ofp.TypeHello, ofp.TypeEchoReply:
		// Absorbed: the controller-facing handshake and keepalive are
		// owned by this proxy, not forwarded to the switch.
		return nil

	case ofp.TypeEchoRequest:
		return ctrl.Session.Send(ofp.NewEchoReply(ofp.Xid(msg), ofp.Payload(msg)))

	case ofp.TypePacketOut:
		if s.Capture != nil {
			_ = s.Capture.Capture(msg)
		}
		return sw.Session.Send(msg)

	default:
		if IsRecordedRequestType(ofp.Type(msg)) {
			s.Correlation.Record(sw, ofp.Type(msg), ofp.Xid(msg), ctrl)
		}
		return sw.Session.Send(msg)
	}
}

// IsRecordedRequestType reports whether a controller request type in
// {5, 7, 18, 20, 24, 26} demands a correlated switch reply, per
// spec.md §4.3. Requests outside this set (e.g. PACKET_OUT, FLOW_MOD)
// are forwarded without being recorded, since the switch sends no
// matching reply to correlate. Exported so internal/tunnel's
// controller-side dispatch (Peer.handleControllerMessage), which performs
// the same correlation bookkeeping against a dpid-keyed peer instead of a
// per-connection switch, can share it.
func IsRecordedRequestType(t uint8) bool {
	switch t {
	case ofp.TypeFeaturesRequest, ofp.TypeGetConfigRequest, ofp.TypeMultipartRequest,
		20, ofp.TypeRoleRequest, ofp.TypeGetAsyncRequest:
		return true
	default:
		return false
	}
}
