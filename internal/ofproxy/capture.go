package ofproxy

// CaptureWriter records forwarded PACKET_IN and received PACKET_OUT
// messages to the optional capture stream (spec.md §6). Defined here
// rather than imported from internal/capture to keep ofproxy free of a
// dependency on the capture file format; internal/capture.Recorder
// implements it.
type CaptureWriter interface {
	Capture(msg []byte) error
}
