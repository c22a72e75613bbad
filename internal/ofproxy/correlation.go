package ofproxy

import "sync"

// correlationKey identifies a pending reply: the switch that will send
// it, the request type that demands it, and the xid the requester chose.
type correlationKey struct {
	sw      *SwitchContext
	msgType uint8
	xid     uint32
}

// CorrelationTable maps (switch, request type, xid) to the ordered
// queue of controller sessions awaiting the matching switch reply (C3).
// Ties — identical triples recorded by more than one controller — are
// resolved FIFO, in the order Record was called (testable property #2).
type CorrelationTable struct {
	mu      sync.Mutex
	entries map[correlationKey][]*ControllerContext
}

// NewCorrelationTable returns an empty correlation table.
func NewCorrelationTable() *CorrelationTable {
	return &CorrelationTable{entries: make(map[correlationKey][]*ControllerContext)}
}

// Record appends ctrl to the queue awaiting the switch's reply to
// (msgType, xid).
func (t *CorrelationTable) Record(sw *SwitchContext, msgType uint8, xid uint32, ctrl *ControllerContext) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := correlationKey{sw, msgType, xid}
	t.entries[k] = append(t.entries[k], ctrl)
}

// Resolve returns the head of the queue recorded for (sw, msgType, xid).
// When peek is false the head is popped and the queue is deleted once
// empty; when peek is true (multipart replies with the MORE flag set)
// the head is left in place so a subsequent fragment resolves to the
// same controller.
func (t *CorrelationTable) Resolve(sw *SwitchContext, msgType uint8, xid uint32, peek bool) (*ControllerContext, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := correlationKey{sw, msgType, xid}
	q, ok := t.entries[k]
	if !ok || len(q) == 0 {
		return nil, false
	}

	head := q[0]
	if peek {
		return head, true
	}

	if len(q) == 1 {
		delete(t.entries, k)
	} else {
		t.entries[k] = q[1:]
	}
	return head, true
}

// Purge discards every entry recorded for sw, on switch teardown.
func (t *CorrelationTable) Purge(sw *SwitchContext) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.entries {
		if k.sw == sw {
			delete(t.entries, k)
		}
	}
}
