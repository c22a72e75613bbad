// Package ofp implements the narrow slice of OpenFlow 1.3 that a
// multiplexing proxy needs: the fixed 8-byte header, the 10-byte tunnel
// envelope, the two message framers, and the handful of body fields the
// proxy is allowed to look at (datapath id, role, multipart MORE flag,
// PACKET_IN ethertype). It does not implement flow-table messages,
// actions, instructions, or matches — that is out of scope for a
// connection multiplexer.
package ofp

import "encoding/binary"

// Version is the only OpenFlow wire version this proxy understands.
const Version uint8 = 4

// HeaderLen is the size of the fixed OpenFlow message header.
const HeaderLen = 8

// EnvelopeLen is the size of the tunnel variant's (dpid, length) prefix.
const EnvelopeLen = 10

// Message types the proxy dispatches on. Names follow the OpenFlow 1.3
// wire specification; the proxy never needs the remaining types by name.
const (
	TypeHello          uint8 = 0
	TypeError          uint8 = 1
	TypeEchoRequest    uint8 = 2
	TypeEchoReply      uint8 = 3
	TypeFeaturesRequest uint8 = 5
	TypeFeaturesReply  uint8 = 6
	TypeGetConfigRequest uint8 = 7
	TypeGetConfigReply uint8 = 8
	TypePacketIn       uint8 = 10
	TypePacketOut      uint8 = 13
	TypeRoleRequest    uint8 = 24
	TypeRoleReply      uint8 = 25
	TypeGetAsyncRequest uint8 = 26
	TypeGetAsyncReply  uint8 = 27
	TypeMultipartRequest uint8 = 18
	TypeMultipartReply uint8 = 19
)

// MultipartMoreFlag is the OFPMPF_REPLY_MORE bit of a multipart reply's
// flags field.
const MultipartMoreFlag uint16 = 1 << 0

// Role values carried by ROLE_REQUEST/ROLE_REPLY, per OFP 1.3 §7.3.9.
const (
	RoleNoChange uint32 = 0
	RoleEqual    uint32 = 1
	RoleMaster   uint32 = 2
	RoleSlave    uint32 = 3
)

// replyRequestType maps a reply type in {6, 8, 19, 21, 25, 27} to the
// request type whose xid it answers. 21 and 20 are BARRIER_REPLY and
// BARRIER_REQUEST, which have no named constant here; a BARRIER_REPLY
// is resolved through the generic reply-correlation path.
var replyRequestType = map[uint8]uint8{
	TypeFeaturesReply:    TypeFeaturesRequest,
	TypeGetConfigReply:   TypeGetConfigRequest,
	TypeMultipartReply:   TypeMultipartRequest,
	21:                   20,
	TypeRoleReply:        TypeRoleRequest,
	TypeGetAsyncReply:    TypeGetAsyncRequest,
}

// RequestTypeFor returns the request type a given reply type answers,
// and whether replyType is one of the known switch reply types in
// {6, 8, 19, 21, 25, 27}.
func RequestTypeFor(replyType uint8) (uint8, bool) {
	t, ok := replyRequestType[replyType]
	return t, ok
}

// Header is the fixed 8-byte OpenFlow message header.
type Header struct {
	Version uint8
	Type    uint8
	Length  uint16
	Xid     uint32
}

// ParseHeader reads the 8-byte header from the front of b. The caller
// must ensure len(b) >= HeaderLen.
func ParseHeader(b []byte) Header {
	return Header{
		Version: b[0],
		Type:    b[1],
		Length:  binary.BigEndian.Uint16(b[2:4]),
		Xid:     binary.BigEndian.Uint32(b[4:8]),
	}
}

// PutHeader writes h into the first HeaderLen bytes of b.
func PutHeader(b []byte, h Header) {
	b[0] = h.Version
	b[1] = h.Type
	binary.BigEndian.PutUint16(b[2:4], h.Length)
	binary.BigEndian.PutUint32(b[4:8], h.Xid)
}

// Type returns the message type byte of a framed OpenFlow message.
// The caller must ensure len(msg) >= HeaderLen.
func Type(msg []byte) uint8 { return msg[1] }

// Xid returns the transaction id of a framed OpenFlow message.
func Xid(msg []byte) uint32 { return binary.BigEndian.Uint32(msg[4:8]) }

// Length returns the declared total length of a framed OpenFlow message.
func Length(msg []byte) uint16 { return binary.BigEndian.Uint16(msg[2:4]) }
