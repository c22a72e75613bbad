package ofproxy

import "sync"

// SwitchContext is one switch's session: its transport, the learned
// datapath id, and the ordered set of controller sessions currently
// associated with it (spec.md §3, "Switch session attributes").
type SwitchContext struct {
	// ID is a logging identity (typically the remote address); it has
	// no protocol meaning.
	ID      string
	Session *Session

	mu          sync.Mutex
	dpid        *uint64
	helloSeen   bool
	controllers []*ControllerContext
}

// NewSwitchContext builds a SwitchContext around an already-running
// Session.
func NewSwitchContext(id string, session *Session) *SwitchContext {
	return &SwitchContext{ID: id, Session: session}
}

// DPID returns the switch's datapath id and whether one has been
// learned yet.
func (sw *SwitchContext) DPID() (uint64, bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.dpid == nil {
		return 0, false
	}
	return *sw.dpid, true
}

// SetDPID records dpid the first time it is called. Spec.md §3 treats
// the datapath id as immutable once learned; SetDPID reports whether
// dpid is consistent with whatever was already recorded.
func (sw *SwitchContext) SetDPID(dpid uint64) (consistent bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.dpid != nil {
		return *sw.dpid == dpid
	}
	sw.dpid = &dpid
	return true
}

// MarkHelloSeen reports whether this call is the first for this switch,
// making HELLO-triggered controller dial-out idempotent (testable
// property #3).
func (sw *SwitchContext) MarkHelloSeen() (first bool) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	first = !sw.helloSeen
	sw.helloSeen = true
	return first
}

// AddController associates c with this switch, appending to the
// insertion-ordered list the scheduler rotates over.
func (sw *SwitchContext) AddController(c *ControllerContext) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.controllers = append(sw.controllers, c)
}

// RemoveController drops c from the switch's controller list and
// returns the number of controllers remaining.
func (sw *SwitchContext) RemoveController(c *ControllerContext) int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	out := sw.controllers[:0]
	for _, existing := range sw.controllers {
		if existing != c {
			out = append(out, existing)
		}
	}
	sw.controllers = out
	return len(sw.controllers)
}

// Controllers returns a snapshot of the currently associated
// controllers, safe to range over without holding sw's lock.
func (sw *SwitchContext) Controllers() []*ControllerContext {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	out := make([]*ControllerContext, len(sw.controllers))
	copy(out, sw.controllers)
	return out
}

// ControllerContext is one controller connection associated with a
// switch (spec.md §3, "Controller session attributes"). In the direct
// variant Switch always identifies exactly one switch; the tunnel
// variant's shared upstream link is represented by internal/tunnel
// instead, since one such link multiplexes many datapath ids.
type ControllerContext struct {
	ID      string
	Session *Session
	Switch  *SwitchContext
}

// NewControllerContext builds a ControllerContext around an
// already-running Session.
func NewControllerContext(id string, session *Session, sw *SwitchContext) *ControllerContext {
	return &ControllerContext{ID: id, Session: session, Switch: sw}
}
