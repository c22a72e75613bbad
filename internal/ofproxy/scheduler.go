package ofproxy

import "sync"

// Policy selects the controller to receive a non-topology PACKET_IN
// event (C5). Implementations must be stateless across message
// boundaries except for a single rotating cursor, per spec.md §4.5.
type Policy interface {
	Next(sw *SwitchContext, controllers []*ControllerContext) *ControllerContext
}

// RoundRobin is the default scheduling policy: a single cursor shared
// across the whole proxy (not per switch), advanced before every
// selection as r <- (r+1) mod N where N is the live controller count
// for the switch being scheduled.
type RoundRobin struct {
	mu     sync.Mutex
	cursor int
}

// NewRoundRobin returns a RoundRobin policy with its cursor at 0.
func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (p *RoundRobin) Next(sw *SwitchContext, controllers []*ControllerContext) *ControllerContext {
	if len(controllers) == 0 {
		return nil
	}
	p.mu.Lock()
	p.cursor = (p.cursor + 1) % len(controllers)
	idx := p.cursor
	p.mu.Unlock()
	return controllers[idx]
}

// AlwaysMaster routes every event to the switch's current master,
// falling back to the first associated controller when no master is
// known yet.
type AlwaysMaster struct {
	roles *RoleTable
}

// NewAlwaysMaster returns an AlwaysMaster policy backed by roles.
func NewAlwaysMaster(roles *RoleTable) *AlwaysMaster { return &AlwaysMaster{roles: roles} }

func (p *AlwaysMaster) Next(sw *SwitchContext, controllers []*ControllerContext) *ControllerContext {
	if len(controllers) == 0 {
		return nil
	}
	if m, ok := p.roles.Master(sw); ok {
		return m
	}
	return controllers[0]
}

// AlwaysFirst always routes to the first controller in insertion order.
type AlwaysFirst struct{}

func (AlwaysFirst) Next(sw *SwitchContext, controllers []*ControllerContext) *ControllerContext {
	if len(controllers) == 0 {
		return nil
	}
	return controllers[0]
}

// WeightedRoundRobin cycles through controllers proportionally to a
// fixed per-index weight list. If the live controller count no longer
// matches the configured weights (a controller connected or was lost
// since weights were set), it degrades to plain round robin rather
// than index out of range.
type WeightedRoundRobin struct {
	mu      sync.Mutex
	cursor  int
	weights []int
}

// NewWeightedRoundRobin returns a WeightedRoundRobin policy over the
// given per-controller weights, in the same order as the configured
// controller list.
func NewWeightedRoundRobin(weights []int) *WeightedRoundRobin {
	w := make([]int, len(weights))
	copy(w, weights)
	return &WeightedRoundRobin{weights: w}
}

func (p *WeightedRoundRobin) Next(sw *SwitchContext, controllers []*ControllerContext) *ControllerContext {
	if len(controllers) == 0 {
		return nil
	}
	if len(p.weights) != len(controllers) {
		p.mu.Lock()
		p.cursor = (p.cursor + 1) % len(controllers)
		idx := p.cursor
		p.mu.Unlock()
		return controllers[idx]
	}

	total := 0
	for _, w := range p.weights {
		total += w
	}
	if total <= 0 {
		return controllers[0]
	}

	p.mu.Lock()
	p.cursor = (p.cursor + 1) % total
	pos := p.cursor
	p.mu.Unlock()

	for i, w := range p.weights {
		if pos < w {
			return controllers[i]
		}
		pos -= w
	}
	return controllers[len(controllers)-1]
}
