package ofp

import "encoding/binary"

// A Framer turns an append-only byte stream into a sequence of complete
// messages in arrival order (C1). It is restartable across socket reads:
// Push appends newly-read bytes, and Next drains as many complete
// messages as are currently buffered. A Framer must never be fed into
// concurrently from two goroutines; spec.md requires reads on a session
// to be processed in arrival order, which a single reader goroutine
// already guarantees.
type Framer interface {
	// Push appends newly received bytes to the framer's buffer.
	Push(chunk []byte)
	// Next returns the next complete, framed message if one is fully
	// buffered. ok is false when more bytes are needed. err is non-nil
	// only for a fatal framing error (malformed length, or an unsupported
	// OpenFlow version on the plain framer), at which point the session
	// must be closed.
	Next() (msg []byte, ok bool, err error)
}

// openFlowFramer implements Framer for the plain 8-byte OpenFlow header:
// length lives at bytes [2:4) and includes the header itself.
type openFlowFramer struct {
	buf []byte
}

// NewFramer returns a Framer for plain OpenFlow-framed streams (switch
// and direct-variant controller edges).
func NewFramer() Framer {
	return &openFlowFramer{}
}

func (f *openFlowFramer) Push(chunk []byte) {
	f.buf = append(f.buf, chunk...)
}

func (f *openFlowFramer) Next() (msg []byte, ok bool, err error) {
	if len(f.buf) < HeaderLen {
		return nil, false, nil
	}

	if f.buf[0] != Version {
		return nil, false, ErrUnsupportedVersion
	}

	length := binary.BigEndian.Uint16(f.buf[2:4])
	if length < HeaderLen {
		return nil, false, ErrMalformedLength
	}

	total := int(length)
	if len(f.buf) < total {
		return nil, false, nil
	}

	msg = make([]byte, total)
	copy(msg, f.buf[:total])
	f.buf = f.buf[total:]
	return msg, true, nil
}

// envelopeFramer implements Framer for the tunnel variant's 10-byte
// (dpid uint64, length uint16) envelope, where length is the size of the
// OpenFlow payload following the envelope.
type envelopeFramer struct {
	buf []byte
}

// NewEnvelopeFramer returns a Framer for envelope-prefixed streams (the
// single pipe between a scheduler and its tunnel peer).
func NewEnvelopeFramer() Framer {
	return &envelopeFramer{}
}

func (f *envelopeFramer) Push(chunk []byte) {
	f.buf = append(f.buf, chunk...)
}

func (f *envelopeFramer) Next() (msg []byte, ok bool, err error) {
	if len(f.buf) < EnvelopeLen {
		return nil, false, nil
	}

	payloadLen := binary.BigEndian.Uint16(f.buf[8:10])
	total := EnvelopeLen + int(payloadLen)
	if len(f.buf) < total {
		return nil, false, nil
	}

	msg = make([]byte, total)
	copy(msg, f.buf[:total])
	f.buf = f.buf[total:]
	return msg, true, nil
}

// EnvelopeDPID returns the datapath id prefix of an envelope-framed
// message. The caller must ensure len(framed) >= EnvelopeLen.
func EnvelopeDPID(framed []byte) uint64 {
	return binary.BigEndian.Uint64(framed[0:8])
}

// EnvelopePayload returns the OpenFlow message carried by an
// envelope-framed message, stripped of its (dpid, length) prefix.
func EnvelopePayload(framed []byte) []byte {
	return framed[EnvelopeLen:]
}

// Envelope prefixes an OpenFlow message with its owning datapath id,
// producing a complete envelope-framed message ready to write.
func Envelope(dpid uint64, msg []byte) []byte {
	out := make([]byte, EnvelopeLen+len(msg))
	binary.BigEndian.PutUint64(out[0:8], dpid)
	binary.BigEndian.PutUint16(out[8:10], uint16(len(msg)))
	copy(out[EnvelopeLen:], msg)
	return out
}
