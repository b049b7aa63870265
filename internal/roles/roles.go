// Package roles tracks the role catalogue announced at match start, which
// role each agent currently wears, and the role reservations the allocator
// places before sending agents to a role zone.
package roles

import "math/rand"

// Role is one entry of the match's role catalogue.
type Role struct {
	Name             string
	Vision           int
	Actions          map[string]struct{}
	Speeds           []int // indexed by number of attached entities
	ClearChance      float64
	ClearMaxDistance int
}

// Can reports whether the role permits the named action.
func (r Role) Can(act string) bool {
	_, ok := r.Actions[act]
	return ok
}

// Speed returns the step distance with n attachments, capped at two because
// longer batched moves are too likely to be invalidated mid-step.
func (r Role) Speed(n int) int {
	if len(r.Speeds) == 0 {
		return 0
	}
	if n >= len(r.Speeds) {
		n = len(r.Speeds) - 1
	}
	s := r.Speeds[n]
	if s > 2 {
		return 2
	}
	return s
}

// CanCoordinate reports whether the role suits a task coordinator, who must
// receive blocks and submit the finished shape.
func (r Role) CanCoordinate() bool {
	return r.Can("submit") && r.Can("attach") && r.Can("connect")
}

// CanProvide reports whether the role suits a block provider, who fetches
// blocks and hands them over to a coordinator.
func (r Role) CanProvide() bool {
	return r.Can("request") && r.Can("attach") && r.Can("connect") && r.Speed(1) > 0
}

// CanProvideAndSubmit reports whether the role can work a one-block task
// alone, fetching and submitting without a coordinator.
func (r Role) CanProvideAndSubmit() bool {
	return r.Can("request") && r.Can("attach") && r.Can("submit") && r.Speed(1) > 0
}

// Regulation is an active cap on how many agents may wear a role.
type Regulation struct {
	Role     string
	Quantity int
}

// Book holds the catalogue plus the per-agent worn and reserved roles.
// The allocator mutates it only in the sequential phase of the step loop.
type Book struct {
	catalogue map[string]Role
	worn      map[string]string
	reserved  map[string][]string
}

// NewBook creates a book over the announced catalogue.
func NewBook(catalogue []Role) *Book {
	b := &Book{
		catalogue: make(map[string]Role, len(catalogue)),
		worn:      make(map[string]string),
		reserved:  make(map[string][]string),
	}
	for _, r := range catalogue {
		b.catalogue[r.Name] = r
	}
	return b
}

// Get returns the role definition by name.
func (b *Book) Get(name string) (Role, bool) {
	r, ok := b.catalogue[name]
	return r, ok
}

// Worn returns the role the agent currently wears.
func (b *Book) Worn(agentID string) (Role, bool) {
	return b.Get(b.worn[agentID])
}

// SetWorn records a role change observed in the agent's percept. When the
// new role matches the head of the agent's reservation queue that entry is
// consumed.
func (b *Book) SetWorn(agentID, role string) {
	b.worn[agentID] = role
	if q := b.reserved[agentID]; len(q) > 0 && q[0] == role {
		b.reserved[agentID] = q[1:]
	}
}

// Reserve queues roles the agent is expected to adopt, in order.
func (b *Book) Reserve(agentID string, names ...string) {
	b.reserved[agentID] = append(b.reserved[agentID], names...)
}

// Reserved returns the agent's pending role queue.
func (b *Book) Reserved(agentID string) []string { return b.reserved[agentID] }

// NextReserved returns the role the agent should adopt next, falling back to
// the worn role when nothing is queued.
func (b *Book) NextReserved(agentID string) (Role, bool) {
	if q := b.reserved[agentID]; len(q) > 0 {
		return b.Get(q[0])
	}
	return b.Worn(agentID)
}

// Release drops the agent's pending reservations.
func (b *Book) Release(agentID string) { b.reserved[agentID] = nil }

// count tallies agents wearing or queued for the role.
func (b *Book) count(role string) int {
	n := 0
	for _, worn := range b.worn {
		if worn == role {
			n++
		}
	}
	for _, q := range b.reserved {
		for _, r := range q {
			if r == role {
				n++
			}
		}
	}
	return n
}

// Allowed filters candidate role names down to those a further agent may
// still adopt under the given regulations.
func (b *Book) Allowed(candidates []string, regs []Regulation) []string {
	capFor := make(map[string]int, len(regs))
	for _, reg := range regs {
		capFor[reg.Role] = reg.Quantity
	}
	var out []string
	for _, name := range candidates {
		if limit, regulated := capFor[name]; regulated && b.count(name) >= limit {
			continue
		}
		out = append(out, name)
	}
	return out
}

// ViolationCount returns how many agents must shed the role to satisfy the
// regulation. Zero or negative means no violation.
func (b *Book) ViolationCount(reg Regulation) int {
	return b.count(reg.Role) - reg.Quantity
}

// Violators returns agents wearing or queued for the regulated role, worn
// first, up to the violation count.
func (b *Book) Violators(reg Regulation) []string {
	need := b.ViolationCount(reg)
	if need <= 0 {
		return nil
	}
	var out []string
	for agentID, worn := range b.worn {
		if len(out) == need {
			return out
		}
		if worn == reg.Role {
			out = append(out, agentID)
		}
	}
	for agentID, q := range b.reserved {
		if len(out) == need {
			return out
		}
		for _, r := range q {
			if r == reg.Role {
				out = append(out, agentID)
				break
			}
		}
	}
	return out
}

// InterTaskRole picks a role for an agent between tasks: a mobile role
// useful for task work when one exists, any mobile role otherwise.
func (b *Book) InterTaskRole() (Role, bool) {
	var useful, mobile []Role
	for _, r := range b.catalogue {
		if r.Speed(1) <= 0 {
			continue
		}
		mobile = append(mobile, r)
		if r.CanProvide() || r.CanCoordinate() || r.CanProvideAndSubmit() {
			useful = append(useful, r)
		}
	}
	if len(useful) > 0 {
		return useful[rand.Intn(len(useful))], true
	}
	if len(mobile) > 0 {
		return mobile[rand.Intn(len(mobile))], true
	}
	return Role{}, false
}

// CoordinatorRoles returns the catalogue roles suitable for coordinating.
func (b *Book) CoordinatorRoles() []Role { return b.filter(Role.CanCoordinate) }

// ProviderRoles returns the catalogue roles suitable for providing.
func (b *Book) ProviderRoles() []Role { return b.filter(Role.CanProvide) }

// SoloRoles returns the catalogue roles that can work one-block tasks alone.
func (b *Book) SoloRoles() []Role { return b.filter(Role.CanProvideAndSubmit) }

func (b *Book) filter(pred func(Role) bool) []Role {
	var out []Role
	for _, r := range b.catalogue {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// Vision returns the worn role's vision, or the default when unknown.
func (b *Book) Vision(agentID string, fallback int) int {
	if r, ok := b.Worn(agentID); ok && r.Vision > 0 {
		return r.Vision
	}
	return fallback
}
