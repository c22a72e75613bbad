package ofproxy

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed is returned by Session.Send once the session has
	// begun closing; queued writes on a closed session are discarded
	// per spec.md §4.8.
	ErrSessionClosed = errors.New("ofproxy: session closed")

	// ErrNoMaster is fatal to a switch session: an "any other type"
	// message arrived with no master controller known.
	ErrNoMaster = errors.New("ofproxy: no master controller known")

	// ErrNoController is fatal to a switch session: a PACKET_IN arrived
	// with no associated controller to route it to.
	ErrNoController = errors.New("ofproxy: no controller available")

	// ErrCorrelationMiss is fatal to a switch session: a switch reply
	// arrived for an (type, xid) no controller is waiting on.
	ErrCorrelationMiss = errors.New("ofproxy: no controller awaiting this reply")
)

func correlationMissError(msgType uint8, xid uint32) error {
	return fmt.Errorf("%w: type=%d xid=%d", ErrCorrelationMiss, msgType, xid)
}
