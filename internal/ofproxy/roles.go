package ofproxy

import (
	"sync"

	"github.com/ofmux/ofmux/ofp"
)

// Role mirrors the three per-controller OpenFlow 1.3 permission levels
// a switch grants (GLOSSARY: "Role").
type Role int

const (
	RoleEqual Role = iota
	RoleMaster
	RoleSlave
)

func roleFromWire(v uint32) Role {
	switch v {
	case ofp.RoleMaster:
		return RoleMaster
	case ofp.RoleSlave:
		return RoleSlave
	default:
		return RoleEqual
	}
}

// RoleTable tracks, per switch, which controller holds which role
// (C4). Transitions happen only on an accepted ROLE_REPLY; requests
// alone never alter state. At most one controller per switch holds
// RoleMaster — accepting a new master demotes whichever controller
// previously held it to RoleSlave (OpenFlow 1.3 §6.3.5).
type RoleTable struct {
	mu    sync.Mutex
	table map[*SwitchContext]map[*ControllerContext]Role
}

// NewRoleTable returns an empty role table.
func NewRoleTable() *RoleTable {
	return &RoleTable{table: make(map[*SwitchContext]map[*ControllerContext]Role)}
}

// Accept records ctrl's newly accepted role for sw, as carried by a
// ROLE_REPLY. It returns the controller demoted from master as a
// result, or nil if no demotion occurred.
func (t *RoleTable) Accept(sw *SwitchContext, ctrl *ControllerContext, wireRole uint32) (demoted *ControllerContext) {
	t.mu.Lock()
	defer t.mu.Unlock()

	row, ok := t.table[sw]
	if !ok {
		row = make(map[*ControllerContext]Role)
		t.table[sw] = row
	}

	role := roleFromWire(wireRole)
	if role == RoleMaster {
		for c, r := range row {
			if r == RoleMaster && c != ctrl {
				row[c] = RoleSlave
				demoted = c
			}
		}
	}
	row[ctrl] = role
	return demoted
}

// Master returns the controller currently recorded as master for sw.
func (t *RoleTable) Master(sw *SwitchContext) (*ControllerContext, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.table[sw]
	if !ok {
		return nil, false
	}
	for c, r := range row {
		if r == RoleMaster {
			return c, true
		}
	}
	return nil, false
}

// Purge discards sw's role table row, on switch teardown.
func (t *RoleTable) Purge(sw *SwitchContext) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.table, sw)
}
