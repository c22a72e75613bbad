package ofp

import (
	"math/rand"
)

// NewXid draws a transaction id from the uniform 32-bit space, avoiding
// 0 and 1 so proxy-synthesised traffic is easy to pick out of a packet
// log filtered on those well-known values.
func NewXid() uint32 {
	for {
		x := rand.Uint32()
		if x != 0 && x != 1 {
			return x
		}
	}
}

// newFixed builds a scheduler-synthesised message with no body:
// version 4, an 8-byte length, and the given type and xid.
func newFixed(msgType uint8, xid uint32) []byte {
	b := make([]byte, HeaderLen)
	PutHeader(b, Header{Version: Version, Type: msgType, Length: HeaderLen, Xid: xid})
	return b
}

// NewHello synthesises a HELLO with a fresh xid.
func NewHello() []byte { return newFixed(TypeHello, NewXid()) }

// NewFeaturesRequest synthesises a FEATURES_REQUEST with a fresh xid.
func NewFeaturesRequest() []byte { return newFixed(TypeFeaturesRequest, NewXid()) }

// NewEchoReply synthesises an ECHO_REPLY that echoes the xid and
// payload of the ECHO_REQUEST it answers.
func NewEchoReply(xid uint32, payload []byte) []byte {
	b := make([]byte, HeaderLen+len(payload))
	PutHeader(b, Header{Version: Version, Type: TypeEchoReply, Length: uint16(len(b)), Xid: xid})
	copy(b[HeaderLen:], payload)
	return b
}

// NewEchoRequest synthesises an ECHO_REQUEST with a fresh xid, used by
// the controller-facing keepalive timer.
func NewEchoRequest() []byte { return newFixed(TypeEchoRequest, NewXid()) }

// Payload returns the bytes of a framed message following its 8-byte
// header.
func Payload(msg []byte) []byte {
	if len(msg) <= HeaderLen {
		return nil
	}
	return msg[HeaderLen:]
}
