package ofp

import "errors"

// Sentinel errors surfaced by the framer and field extractors. Callers
// use errors.Is to classify them per the error taxonomy in the design
// (framing errors vs. short/malformed bodies).
var (
	// ErrMalformedLength is returned when a message's declared length is
	// smaller than the header it must at least contain.
	ErrMalformedLength = errors.New("ofp: malformed message length")

	// ErrUnsupportedVersion is returned when a message declares an
	// OpenFlow wire version other than Version.
	ErrUnsupportedVersion = errors.New("ofp: unsupported openflow version")

	// ErrShortBody is returned by a field extractor when the message is
	// shorter than the fixed prefix it needs to read a field.
	ErrShortBody = errors.New("ofp: message body too short for field")
)
