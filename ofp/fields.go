package ofp

import "encoding/binary"

// EtherTypeLLDP and EtherTypeARP are the "topology packet" ethertypes
// the scheduler routes to the current master rather than through the
// PACKET_IN scheduling policy.
const (
	EtherTypeLLDP uint16 = 0x88cc
	EtherTypeARP  uint16 = 0x0806
)

// ExtractDPID reads the 8-byte datapath id at message offset 8 of a
// FEATURES_REPLY, i.e. the first 8 bytes of its body.
func ExtractDPID(msg []byte) (uint64, error) {
	if len(msg) < HeaderLen+8 {
		return 0, ErrShortBody
	}
	return binary.BigEndian.Uint64(msg[HeaderLen : HeaderLen+8]), nil
}

// ExtractRole reads the role field of a ROLE_REQUEST/ROLE_REPLY: the
// first 4 bytes of the body (message bytes [8:12)), per ofp_role_request.
func ExtractRole(msg []byte) (uint32, error) {
	if len(msg) < HeaderLen+12 {
		return 0, ErrShortBody
	}
	return binary.BigEndian.Uint32(msg[HeaderLen : HeaderLen+4]), nil
}

// MultipartMore reports whether a MULTIPART_REQUEST/REPLY's flags field
// has the MORE bit set. The flags field sits at body offset [2:4), i.e.
// message offset [10:12).
func MultipartMore(msg []byte) (bool, error) {
	if len(msg) < HeaderLen+4 {
		return false, ErrShortBody
	}
	flags := binary.BigEndian.Uint16(msg[HeaderLen+2 : HeaderLen+4])
	return flags&MultipartMoreFlag != 0, nil
}

// packetInFixedLen is the size of ofp_packet_in before its variable
// length OFPMatch: buffer_id(4) + total_len(2) + reason(1) + table_id(1)
// + cookie(8), following the 8-byte header.
const packetInFixedLen = 4 + 2 + 1 + 1 + 8

// PacketInEtherType locates the Ethernet frame embedded in a PACKET_IN
// message and returns its ethertype field. The frame follows a
// variable-length OFPMatch (padded to a multiple of 8 bytes) and two
// bytes of padding; the match's own length lives 2 bytes into the match
// structure. Returns ErrShortBody if the message is too short to
// contain a well-formed match and Ethernet header.
func PacketInEtherType(msg []byte) (uint16, error) {
	matchStart := HeaderLen + packetInFixedLen
	if len(msg) < matchStart+4 {
		return 0, ErrShortBody
	}

	matchLen := int(binary.BigEndian.Uint16(msg[matchStart+2 : matchStart+4]))
	paddedMatchLen := ((matchLen + 7) / 8) * 8

	// Two bytes of padding follow the (already 64-bit aligned) match
	// before the captured Ethernet frame begins.
	frameStart := matchStart + paddedMatchLen + 2
	// Ethertype sits after the two 6-byte MAC addresses.
	etherTypeOffset := frameStart + 12

	if len(msg) < etherTypeOffset+2 {
		return 0, ErrShortBody
	}
	return binary.BigEndian.Uint16(msg[etherTypeOffset : etherTypeOffset+2]), nil
}

// IsTopologyPacket reports whether a PACKET_IN's encapsulated frame
// carries an ethertype the proxy treats as topology discovery traffic
// (LLDP or ARP), to be routed to the switch's master controller instead
// of through the scheduling policy.
func IsTopologyPacket(msg []byte) bool {
	et, err := PacketInEtherType(msg)
	if err != nil {
		return false
	}
	return et == EtherTypeLLDP || et == EtherTypeARP
}
