package intent

import (
	"sync"

	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/simstate"
)

// Coop is the shared state of one cooperative task assignment: one
// coordinator assembling at a goal zone and one provider per block. Agents
// plan in parallel, so every access goes through the mutex. All coordinates
// live in the frame of the map the crew shares.
type Coop struct {
	mu sync.Mutex

	task          simstate.Task
	coordinatorID string
	coordinatorAt grid.Coordinate

	providers map[string]*providerSlot
}

type providerSlot struct {
	req        simstate.Requirement
	ready      bool             // parked in handover range with the block
	connecting *grid.Coordinate // assigned block cell, relative to coordinator
	inPosition bool             // block sits on its shape cell, offering connect
	delivered  bool             // handover complete on the provider side
	released   bool             // coordinator is done with this provider
	escaping   bool             // provider is off dodging a hazard
}

// NewCoop creates the shared state for one assignment.
func NewCoop(task simstate.Task, coordinatorID string) *Coop {
	return &Coop{
		task:          task,
		coordinatorID: coordinatorID,
		providers:     make(map[string]*providerSlot),
	}
}

// Task returns the assignment's task.
func (c *Coop) Task() simstate.Task { return c.task }

// CoordinatorID returns the coordinator agent.
func (c *Coop) CoordinatorID() string { return c.coordinatorID }

// AddProvider binds a provider to one requirement.
func (c *Coop) AddProvider(agentID string, req simstate.Requirement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[agentID] = &providerSlot{req: req}
}

// Providers returns the provider agent ids.
func (c *Coop) Providers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.providers))
	for id := range c.providers {
		out = append(out, id)
	}
	return out
}

// Requirement returns the block assigned to a provider.
func (c *Coop) Requirement(agentID string) simstate.Requirement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.providers[agentID].req
}

// SetCoordinatorAt publishes the coordinator's position for the approach.
func (c *Coop) SetCoordinatorAt(at grid.Coordinate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coordinatorAt = at
}

// CoordinatorAt returns the coordinator's last published position.
func (c *Coop) CoordinatorAt() grid.Coordinate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coordinatorAt
}

// SetReady marks whether the provider is parked in handover range.
func (c *Coop) SetReady(agentID string, ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.providers[agentID]; s != nil {
		s.ready = ready
	}
}

// ReadyProviders returns providers waiting for a connection assignment.
func (c *Coop) ReadyProviders() map[string]simstate.Requirement {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]simstate.Requirement)
	for id, s := range c.providers {
		if s.ready && !s.escaping && s.connecting == nil && !s.released {
			out[id] = s.req
		}
	}
	return out
}

// StartConnection assigns a provider its handover cell, relative to the
// coordinator.
func (c *Coop) StartConnection(agentID string, blockRel grid.Coordinate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.providers[agentID]; s != nil {
		s.connecting = &blockRel
	}
}

// Connection returns the provider's assigned handover cell, if any.
func (c *Coop) Connection(agentID string) (grid.Coordinate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.providers[agentID]
	if s == nil || s.connecting == nil {
		return grid.Coordinate{}, false
	}
	return *s.connecting, true
}

// StopConnection withdraws a handover assignment, sending the provider back
// to waiting.
func (c *Coop) StopConnection(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.providers[agentID]; s != nil {
		s.connecting = nil
		s.inPosition = false
	}
}

// SetInPosition marks whether the provider's block sits on its shape cell.
// While set, the provider offers a connect every step; the coordinator must
// offer its half in the same step for the handshake to land.
func (c *Coop) SetInPosition(agentID string, inPosition bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.providers[agentID]; s != nil {
		s.inPosition = inPosition
	}
}

// InPosition reports whether the provider's block is on its shape cell.
func (c *Coop) InPosition(agentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.providers[agentID]
	return s != nil && s.inPosition
}

// SetDelivered marks the provider side of the handover complete.
func (c *Coop) SetDelivered(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.providers[agentID]; s != nil {
		s.delivered = true
	}
}

// Delivered reports whether the provider finished its handover.
func (c *Coop) Delivered(agentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.providers[agentID]
	return s != nil && s.delivered
}

// Release lets a provider go once its block is secured.
func (c *Coop) Release(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.providers[agentID]; s != nil {
		s.released = true
	}
}

// ReleaseAll lets every provider go, the drop path.
func (c *Coop) ReleaseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.providers {
		s.released = true
	}
}

// Released reports whether the coordinator is done with the provider.
func (c *Coop) Released(agentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.providers[agentID]
	return s != nil && s.released
}

// AllReleased reports whether every provider has been let go.
func (c *Coop) AllReleased() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.providers {
		if !s.released {
			return false
		}
	}
	return true
}

// SetEscaping marks a provider as off dodging a hazard so the coordinator
// does not hand it a connection meanwhile.
func (c *Coop) SetEscaping(agentID string, escaping bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.providers[agentID]; s != nil {
		s.escaping = escaping
	}
}

// Shift translates the shared coordinates after a map merge.
func (c *Coop) Shift(offset grid.Coordinate, g grid.Geometry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coordinatorAt = c.coordinatorAt.Shifted(offset, g)
}

// Normalize re-reduces the shared coordinates after a dimension discovery.
func (c *Coop) Normalize(g grid.Geometry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coordinatorAt = c.coordinatorAt.Normalize(g)
}
