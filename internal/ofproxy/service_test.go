package ofproxy

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/ofmux/ofmux/ofp"
)

func readFrame(t *testing.T, c *fakeConn) []byte {
	t.Helper()
	header := make([]byte, ofp.HeaderLen)
	if _, err := readFull(c, header); err != nil {
		t.Fatalf("reading header: %v", err)
	}
	length := binary.BigEndian.Uint16(header[2:4])
	msg := make([]byte, length)
	copy(msg, header)
	if length > ofp.HeaderLen {
		if _, err := readFull(c, msg[ofp.HeaderLen:]); err != nil {
			t.Fatalf("reading body: %v", err)
		}
	}
	return msg
}

func readFull(c *fakeConn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func buildFeaturesReply(xid uint32, dpid uint64) []byte {
	body := make([]byte, 8)
	binary.BigEndian.PutUint64(body, dpid)
	msg := make([]byte, ofp.HeaderLen+len(body))
	ofp.PutHeader(msg, ofp.Header{Version: ofp.Version, Type: ofp.TypeFeaturesReply, Length: uint16(len(msg)), Xid: xid})
	copy(msg[ofp.HeaderLen:], body)
	return msg
}

// buildPacketIn constructs a minimal well-formed PACKET_IN whose
// embedded Ethernet frame carries etherType.
func buildPacketIn(xid uint32, etherType uint16) []byte {
	const matchStart = ofp.HeaderLen + 16
	const paddedMatchLen = 8
	frameStart := matchStart + paddedMatchLen + 2
	total := frameStart + 14

	msg := make([]byte, total)
	ofp.PutHeader(msg, ofp.Header{Version: ofp.Version, Type: ofp.TypePacketIn, Length: uint16(total), Xid: xid})
	binary.BigEndian.PutUint16(msg[matchStart:matchStart+2], 1) // OFPMT_OXM
	binary.BigEndian.PutUint16(msg[matchStart+2:matchStart+4], 4)
	binary.BigEndian.PutUint16(msg[frameStart+12:frameStart+14], etherType)
	return msg
}

func buildRoleReply(xid uint32, role uint32) []byte {
	body := make([]byte, 12)
	binary.BigEndian.PutUint32(body[0:4], role)
	msg := make([]byte, ofp.HeaderLen+len(body))
	ofp.PutHeader(msg, ofp.Header{Version: ofp.Version, Type: ofp.TypeRoleReply, Length: uint16(len(msg)), Xid: xid})
	copy(msg[ofp.HeaderLen:], body)
	return msg
}

// TestServiceHandshakeAndDPIDLearn covers scenario S1: a switch's first
// HELLO triggers a controller dial-out and a HELLO/FEATURES_REQUEST
// reply, and the resulting FEATURES_REPLY both learns the dpid and
// re-announces HELLO to the newly dialed controller.
func TestServiceHandshakeAndDPIDLearn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switchProxy, switchPeer := newFakePair("switch", "test-switch")
	defer switchPeer.Close()

	listener := newFakeListener()
	listener.push(switchProxy)

	ctrlProxy, ctrlPeer := newFakePair("ctrl0", "test-ctrl0")
	defer ctrlPeer.Close()

	dialer := newFakeDialer()
	dialer.expect("ctrl0:6633", ctrlProxy)

	svc := NewService(dialer, []string{"ctrl0:6633"}, NewRoundRobin(), nil, testLogger())
	go svc.Serve(ctx, listener)

	if _, err := switchPeer.Write(ofp.NewHello()); err != nil {
		t.Fatalf("writing switch HELLO: %v", err)
	}

	if msg := readFrame(t, switchPeer); ofp.Type(msg) != ofp.TypeHello {
		t.Fatalf("first reply type = %d; want TypeHello", ofp.Type(msg))
	}
	if msg := readFrame(t, switchPeer); ofp.Type(msg) != ofp.TypeFeaturesRequest {
		t.Fatalf("second reply type = %d; want TypeFeaturesRequest", ofp.Type(msg))
	}

	if msg := readFrame(t, ctrlPeer); ofp.Type(msg) != ofp.TypeHello {
		t.Fatalf("controller greeting type = %d; want TypeHello", ofp.Type(msg))
	}

	if _, err := switchPeer.Write(buildFeaturesReply(7, 0xc0ffee)); err != nil {
		t.Fatalf("writing FEATURES_REPLY: %v", err)
	}

	if msg := readFrame(t, ctrlPeer); ofp.Type(msg) != ofp.TypeHello {
		t.Fatalf("post-dpid-learn controller message type = %d; want TypeHello", ofp.Type(msg))
	}
}

// TestServiceRoundRobinPacketIn covers scenario S4: non-topology
// PACKET_IN events rotate through every associated controller.
func TestServiceRoundRobinPacketIn(t *testing.T) {
	sw := &SwitchContext{ID: "sw1"}
	var controllers []*ControllerContext
	var peers []*fakeConn
	for i := 0; i < 3; i++ {
		proxy, peer := newFakePair("c", "test-c")
		defer peer.Close()
		c := NewControllerContext("c", NewSession(proxy, ofp.NewFramer(), testLogger()), sw)
		sw.AddController(c)
		controllers = append(controllers, c)
		peers = append(peers, peer)
	}

	svc := NewService(newFakeDialer(), nil, NewRoundRobin(), nil, testLogger())

	order := []int{1, 2, 0, 1}
	for i, want := range order {
		msg := buildPacketIn(uint32(i), 0x0800) // IPv4, not topology traffic
		if err := svc.handlePacketIn(sw, msg, testLogger()); err != nil {
			t.Fatalf("handlePacketIn() #%d error = %v", i, err)
		}
		got := readFrame(t, peers[want])
		if ofp.Type(got) != ofp.TypePacketIn {
			t.Fatalf("round #%d: unexpected message type %d on controller %d", i, ofp.Type(got), want)
		}
	}
}

// TestServiceRoleTakeoverRoutesTopologyToNewMaster covers scenario S5:
// topology traffic follows the master even after a takeover.
func TestServiceRoleTakeoverRoutesTopologyToNewMaster(t *testing.T) {
	sw := &SwitchContext{ID: "sw1"}
	svc := NewService(newFakeDialer(), nil, NewRoundRobin(), nil, testLogger())

	c0Proxy, c0Peer := newFakePair("c0", "test-c0")
	defer c0Peer.Close()
	c0 := NewControllerContext("c0", NewSession(c0Proxy, ofp.NewFramer(), testLogger()), sw)
	sw.AddController(c0)

	c1Proxy, c1Peer := newFakePair("c1", "test-c1")
	defer c1Peer.Close()
	c1 := NewControllerContext("c1", NewSession(c1Proxy, ofp.NewFramer(), testLogger()), sw)
	sw.AddController(c1)

	svc.Correlation.Record(sw, ofp.TypeRoleRequest, 10, c0)
	if err := svc.handleRoleReply(sw, buildRoleReply(10, ofp.RoleMaster), testLogger()); err != nil {
		t.Fatalf("handleRoleReply() c0 master error = %v", err)
	}
	_ = readFrame(t, c0Peer) // the role reply forwarded to c0

	lldp := buildPacketIn(1, ofp.EtherTypeLLDP)
	if err := svc.handlePacketIn(sw, lldp, testLogger()); err != nil {
		t.Fatalf("handlePacketIn() error = %v", err)
	}
	if got := readFrame(t, c0Peer); ofp.Type(got) != ofp.TypePacketIn {
		t.Fatalf("expected topology packet routed to c0, got type %d", ofp.Type(got))
	}

	svc.Correlation.Record(sw, ofp.TypeRoleRequest, 11, c1)
	demoted := svc.Roles.Accept(sw, c1, ofp.RoleMaster)
	if demoted != c0 {
		t.Fatalf("Accept() demoted %v; want c0", demoted)
	}

	lldp2 := buildPacketIn(2, ofp.EtherTypeLLDP)
	if err := svc.handlePacketIn(sw, lldp2, testLogger()); err != nil {
		t.Fatalf("handlePacketIn() after takeover error = %v", err)
	}
	if got := readFrame(t, c1Peer); ofp.Type(got) != ofp.TypePacketIn {
		t.Fatalf("expected topology packet routed to new master c1, got type %d", ofp.Type(got))
	}
}

// TestServiceMultipartCorrelationMoreFlag covers testable property #6:
// a multipart reply with MORE set resolves without popping the queue.
func TestServiceMultipartCorrelationMoreFlag(t *testing.T) {
	sw := &SwitchContext{ID: "sw1"}
	svc := NewService(newFakeDialer(), nil, NewRoundRobin(), nil, testLogger())

	ctrlProxy, ctrlPeer := newFakePair("ctrl", "test-ctrl")
	defer ctrlPeer.Close()
	ctrl := NewControllerContext("ctrl", NewSession(ctrlProxy, ofp.NewFramer(), testLogger()), sw)

	svc.Correlation.Record(sw, ofp.TypeMultipartRequest, 5, ctrl)

	fragment := make([]byte, ofp.HeaderLen+4)
	ofp.PutHeader(fragment, ofp.Header{Version: ofp.Version, Type: ofp.TypeMultipartReply, Length: uint16(len(fragment)), Xid: 5})
	binary.BigEndian.PutUint16(fragment[ofp.HeaderLen+2:ofp.HeaderLen+4], ofp.MultipartMoreFlag)

	if err := svc.handleMultipartReply(sw, fragment); err != nil {
		t.Fatalf("handleMultipartReply() fragment error = %v", err)
	}
	_ = readFrame(t, ctrlPeer)

	final := make([]byte, ofp.HeaderLen+4)
	ofp.PutHeader(final, ofp.Header{Version: ofp.Version, Type: ofp.TypeMultipartReply, Length: uint16(len(final)), Xid: 5})
	if err := svc.handleMultipartReply(sw, final); err != nil {
		t.Fatalf("handleMultipartReply() final error = %v", err)
	}
	_ = readFrame(t, ctrlPeer)

	if _, ok := svc.Correlation.Resolve(sw, ofp.TypeMultipartRequest, 5, true); ok {
		t.Fatal("correlation entry should be gone after the final fragment")
	}
}
