package ofproxy

import (
	"testing"

	"github.com/ofmux/ofmux/ofp"
)

// TestRoundRobinCursor covers testable property #4/scenario S4: a
// shared cursor 0 cycles C1, C2, C0, C1 across three controllers.
func TestRoundRobinCursor(t *testing.T) {
	sw := &SwitchContext{ID: "sw1"}
	c0 := &ControllerContext{ID: "c0"}
	c1 := &ControllerContext{ID: "c1"}
	c2 := &ControllerContext{ID: "c2"}
	controllers := []*ControllerContext{c0, c1, c2}

	p := NewRoundRobin()
	want := []*ControllerContext{c1, c2, c0, c1}
	for i, w := range want {
		if got := p.Next(sw, controllers); got != w {
			t.Fatalf("Next() #%d = %v; want %v", i, got, w)
		}
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	p := NewRoundRobin()
	if got := p.Next(&SwitchContext{ID: "sw1"}, nil); got != nil {
		t.Fatalf("Next() on empty controller list = %v; want nil", got)
	}
}

func TestAlwaysMasterFallsBackToFirst(t *testing.T) {
	sw := &SwitchContext{ID: "sw1"}
	c0 := &ControllerContext{ID: "c0"}
	c1 := &ControllerContext{ID: "c1"}
	roles := NewRoleTable()
	p := NewAlwaysMaster(roles)

	if got := p.Next(sw, []*ControllerContext{c0, c1}); got != c0 {
		t.Fatalf("Next() with no master = %v; want c0", got)
	}

	roles.Accept(sw, c1, ofp.RoleMaster)
	if got := p.Next(sw, []*ControllerContext{c0, c1}); got != c1 {
		t.Fatalf("Next() with c1 master = %v; want c1", got)
	}
}

func TestWeightedRoundRobinDistribution(t *testing.T) {
	sw := &SwitchContext{ID: "sw1"}
	c0 := &ControllerContext{ID: "c0"}
	c1 := &ControllerContext{ID: "c1"}
	controllers := []*ControllerContext{c0, c1}

	p := NewWeightedRoundRobin([]int{2, 1})
	counts := map[*ControllerContext]int{}
	for i := 0; i < 30; i++ {
		counts[p.Next(sw, controllers)]++
	}

	if counts[c0] <= counts[c1] {
		t.Fatalf("counts = c0:%d c1:%d; want c0 roughly double c1", counts[c0], counts[c1])
	}
}

func TestWeightedRoundRobinDegradesOnMismatch(t *testing.T) {
	sw := &SwitchContext{ID: "sw1"}
	c0 := &ControllerContext{ID: "c0"}
	c1 := &ControllerContext{ID: "c1"}
	c2 := &ControllerContext{ID: "c2"}

	p := NewWeightedRoundRobin([]int{1, 1})
	for i := 0; i < 3; i++ {
		if got := p.Next(sw, []*ControllerContext{c0, c1, c2}); got == nil {
			t.Fatalf("Next() #%d returned nil on mismatched weights", i)
		}
	}
}
