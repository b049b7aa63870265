package arena

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/protocol"
)

// SimConfig holds the match rules.
type SimConfig struct {
	TotalSteps int
	MaxEnergy  int
	ClearCost  int
	TaskEvery  int // steps between new tasks
	TaskReward int
	TaskTime   int // steps until a task's deadline
	CoopChance float64
	Seed       int64
}

// DefaultSimConfig returns contest-like match rules.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		TotalSteps: 400,
		MaxEnergy:  100,
		ClearCost:  3,
		TaskEvery:  20,
		TaskReward: 10,
		TaskTime:   150,
		CoopChance: 0.4,
		Seed:       1,
	}
}

type simAgent struct {
	id   string
	team string
	pos  grid.Coordinate
	role string

	energy      int
	deactivated bool

	attachments map[grid.Coordinate]string // relative cell -> block type

	lastAction string
	lastParams []string
	lastResult string
}

type connectOffer struct {
	peer string
	rel  grid.Coordinate
}

// Sim is one running match.
type Sim struct {
	world *World
	cfg   SimConfig
	rng   *rand.Rand

	agents map[string]*simAgent
	order  []string

	tasks   map[string]protocol.WireTask
	taskSeq int
	step    int
	score   int
}

// NewSim places the agents on open cells of the world.
func NewSim(world *World, cfg SimConfig, team string, agentIDs []string) *Sim {
	s := &Sim{
		world:  world,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		agents: make(map[string]*simAgent, len(agentIDs)),
		tasks:  make(map[string]protocol.WireTask),
	}
	for _, id := range agentIDs {
		s.agents[id] = &simAgent{
			id:          id,
			team:        team,
			pos:         world.randomOpenCell(),
			role:        "default",
			energy:      cfg.MaxEnergy,
			attachments: make(map[grid.Coordinate]string),
		}
		s.order = append(s.order, id)
	}
	sort.Strings(s.order)
	return s
}

// Step returns the current step number.
func (s *Sim) Step() int { return s.step }

// Score returns the team score.
func (s *Sim) Score() int { return s.score }

// Done reports whether the match is over.
func (s *Sim) Done() bool { return s.step >= s.cfg.TotalSteps }

// Roles returns the arena's role catalogue.
func (s *Sim) Roles() []protocol.WireRole {
	worker := protocol.WireRole{
		Name:    "worker",
		Vision:  5,
		Actions: []string{"move", "rotate", "attach", "detach", "request", "connect", "submit", "clear"},
		Speed:   []int{2, 1},
	}
	worker.Clear.Chance = 1
	worker.Clear.MaxDistance = 2

	deflt := protocol.WireRole{
		Name:    "default",
		Vision:  5,
		Actions: []string{"move", "rotate", "attach", "detach", "request", "connect", "submit", "clear"},
		Speed:   []int{1, 1},
	}
	deflt.Clear.Chance = 1
	deflt.Clear.MaxDistance = 1
	return []protocol.WireRole{deflt, worker}
}

// SpawnTask puts a task with the given shape on the board.
func (s *Sim) SpawnTask(reqs []protocol.WireTaskRequirement) protocol.WireTask {
	s.taskSeq++
	t := protocol.WireTask{
		Name:         fmt.Sprintf("task%d", s.taskSeq),
		Deadline:     s.step + s.cfg.TaskTime,
		Reward:       s.cfg.TaskReward * len(reqs),
		Requirements: reqs,
	}
	s.tasks[t.Name] = t
	return t
}

func (s *Sim) maybeSpawnTask() {
	if s.cfg.TaskEvery <= 0 || s.step%s.cfg.TaskEvery != 0 {
		return
	}
	blockTypes := s.blockTypes()
	reqs := []protocol.WireTaskRequirement{{X: 0, Y: 1, Type: blockTypes[s.rng.Intn(len(blockTypes))]}}
	if s.rng.Float64() < s.cfg.CoopChance {
		reqs = append(reqs, protocol.WireTaskRequirement{X: 0, Y: 2, Type: blockTypes[s.rng.Intn(len(blockTypes))]})
	}
	s.SpawnTask(reqs)
}

func (s *Sim) blockTypes() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range s.world.dispensers {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// Resolve applies one action per agent and advances the clock.
func (s *Sim) Resolve(actions map[string]protocol.ActionMessage) {
	offers := make(map[string]connectOffer)

	for _, id := range s.order {
		a := s.agents[id]
		msg, ok := actions[id]
		if !ok {
			a.lastAction, a.lastParams, a.lastResult = "skip", nil, "success"
			continue
		}
		a.lastAction, a.lastParams = msg.Action, msg.Params
		switch msg.Action {
		case "move":
			a.lastResult = s.resolveMove(a, msg.Params)
		case "rotate":
			a.lastResult = s.resolveRotate(a, msg.Params)
		case "request":
			a.lastResult = s.resolveRequest(a, msg.Params)
		case "attach":
			a.lastResult = s.resolveAttach(a, msg.Params)
		case "detach":
			a.lastResult = s.resolveDetach(a, msg.Params)
		case "disconnect":
			a.lastResult = s.resolveDisconnect(a, msg.Params)
		case "clear":
			a.lastResult = s.resolveClear(a, msg.Params)
		case "adopt":
			a.lastResult = s.resolveAdopt(a, msg.Params)
		case "submit":
			a.lastResult = s.resolveSubmit(a, msg.Params)
		case "connect":
			if offer, err := parseConnect(msg.Params); err == nil {
				offers[id] = offer
				a.lastResult = "failed_partner" // upgraded below on a match
			} else {
				a.lastResult = "failed_parameter"
			}
		default:
			a.lastResult = "success"
		}
	}

	s.resolveConnects(offers)
	s.expireTasks()
	s.step++
	s.maybeSpawnTask()
	for _, a := range s.agents {
		if a.energy < s.cfg.MaxEnergy {
			a.energy++
		}
	}
}

func (s *Sim) expireTasks() {
	for name, t := range s.tasks {
		if t.Deadline <= s.step {
			delete(s.tasks, name)
		}
	}
}

// occupied reports whether a cell is impassable for the given agent, whose
// own body and attachments do not block it.
func (s *Sim) occupied(c grid.Coordinate, self *simAgent) bool {
	g := s.world.Geometry()
	c = c.Normalize(g)
	if s.world.IsObstacle(c) {
		return true
	}
	if _, loose := s.world.BlockAt(c); loose {
		return true
	}
	for _, other := range s.agents {
		if other == self {
			continue
		}
		if other.pos == c {
			return true
		}
		for rel := range other.attachments {
			if other.pos.Shifted(rel, g) == c {
				return true
			}
		}
	}
	return false
}

func (s *Sim) resolveMove(a *simAgent, params []string) string {
	g := s.world.Geometry()
	moved := 0
	for _, p := range params {
		d, err := grid.ParseDirection(p)
		if err != nil {
			return "failed_parameter"
		}
		next := a.pos.Moved(g, d)
		blocked := s.occupied(next, a)
		for rel := range a.attachments {
			if s.occupied(next.Shifted(rel, g), a) {
				blocked = true
			}
		}
		if blocked {
			break
		}
		a.pos = next
		moved++
	}
	switch {
	case moved == len(params):
		return "success"
	case moved > 0:
		return "partial_success"
	default:
		return "failed_path"
	}
}

func (s *Sim) resolveRotate(a *simAgent, params []string) string {
	if len(params) != 1 {
		return "failed_parameter"
	}
	r := grid.Clockwise
	if params[0] == "ccw" {
		r = grid.CounterClockwise
	}
	g := s.world.Geometry()
	rotated := make(map[grid.Coordinate]string, len(a.attachments))
	for rel, blockType := range a.attachments {
		target := rel.Rotated(r)
		if s.occupied(a.pos.Shifted(target, g), a) {
			return "failed"
		}
		rotated[target] = blockType
	}
	a.attachments = rotated
	return "success"
}

func (s *Sim) resolveRequest(a *simAgent, params []string) string {
	if len(params) != 1 {
		return "failed_parameter"
	}
	d, err := grid.ParseDirection(params[0])
	if err != nil {
		return "failed_parameter"
	}
	g := s.world.Geometry()
	cell := a.pos.Moved(g, d)
	blockType, ok := s.world.DispenserAt(cell)
	if !ok {
		return "failed_target"
	}
	if s.occupied(cell, nil) {
		return "failed_blocked"
	}
	s.world.setBlock(cell, blockType)
	return "success"
}

func (s *Sim) resolveAttach(a *simAgent, params []string) string {
	if len(params) != 1 {
		return "failed_parameter"
	}
	d, err := grid.ParseDirection(params[0])
	if err != nil {
		return "failed_parameter"
	}
	g := s.world.Geometry()
	cell := a.pos.Moved(g, d)
	blockType, ok := s.world.BlockAt(cell)
	if !ok {
		return "failed_target"
	}
	s.world.removeBlock(cell)
	a.attachments[d.Vector()] = blockType
	return "success"
}

func (s *Sim) resolveDetach(a *simAgent, params []string) string {
	if len(params) != 1 {
		return "failed_parameter"
	}
	d, err := grid.ParseDirection(params[0])
	if err != nil {
		return "failed_parameter"
	}
	rel := d.Vector()
	if _, ok := a.attachments[rel]; !ok {
		return "failed_target"
	}
	s.severAttachment(a, rel)
	return "success"
}

func (s *Sim) resolveDisconnect(a *simAgent, params []string) string {
	if len(params) != 4 {
		return "failed_parameter"
	}
	var coords [4]int
	for i, p := range params {
		if _, err := fmt.Sscanf(p, "%d", &coords[i]); err != nil {
			return "failed_parameter"
		}
	}
	first := grid.Coordinate{X: coords[0], Y: coords[1]}
	second := grid.Coordinate{X: coords[2], Y: coords[3]}
	if _, ok := a.attachments[first]; !ok {
		return "failed_target"
	}
	if _, ok := a.attachments[second]; !ok {
		return "failed_target"
	}
	s.severAttachment(a, second)
	return "success"
}

// severAttachment removes rel and everything held only through it: the
// survivors are the attachments still reachable from the agent's four
// neighbor cells without stepping on the severed one. Freed blocks drop
// into the world unless another agent still holds them.
func (s *Sim) severAttachment(a *simAgent, rel grid.Coordinate) {
	flat := grid.Geometry{}
	reachable := make(map[grid.Coordinate]bool)
	var walk func(c grid.Coordinate)
	walk = func(c grid.Coordinate) {
		if c == rel || reachable[c] {
			return
		}
		if _, held := a.attachments[c]; !held {
			return
		}
		reachable[c] = true
		for _, n := range c.Neighbors(flat) {
			walk(n)
		}
	}
	for _, n := range grid.Origin.Neighbors(flat) {
		walk(n)
	}

	g := s.world.Geometry()
	for c, blockType := range a.attachments {
		if reachable[c] {
			continue
		}
		delete(a.attachments, c)
		abs := a.pos.Shifted(c, g)
		if !s.heldByOther(abs, a) {
			s.world.setBlock(abs, blockType)
		}
	}
}

// heldByOther reports whether another agent also has the cell attached, in
// which case a detach leaves the block with them instead of dropping it.
func (s *Sim) heldByOther(abs grid.Coordinate, self *simAgent) bool {
	g := s.world.Geometry()
	for _, other := range s.agents {
		if other == self {
			continue
		}
		for rel := range other.attachments {
			if other.pos.Shifted(rel, g) == abs {
				return true
			}
		}
	}
	return false
}

func (s *Sim) resolveClear(a *simAgent, params []string) string {
	if len(params) != 2 {
		return "failed_parameter"
	}
	var x, y int
	if _, err := fmt.Sscanf(params[0], "%d", &x); err != nil {
		return "failed_parameter"
	}
	if _, err := fmt.Sscanf(params[1], "%d", &y); err != nil {
		return "failed_parameter"
	}
	if a.energy < s.cfg.ClearCost {
		return "failed_resources"
	}
	g := s.world.Geometry()
	target := a.pos.Shifted(grid.Coordinate{X: x, Y: y}, g)
	a.energy -= s.cfg.ClearCost
	if s.world.IsObstacle(target) {
		s.world.clearObstacle(target)
		return "success"
	}
	if _, loose := s.world.BlockAt(target); loose {
		s.world.removeBlock(target)
		return "success"
	}
	return "success"
}

func (s *Sim) resolveAdopt(a *simAgent, params []string) string {
	if len(params) != 1 {
		return "failed_parameter"
	}
	if !s.world.IsRoleZone(a.pos) {
		return "failed_location"
	}
	for _, r := range s.Roles() {
		if r.Name == params[0] {
			a.role = params[0]
			return "success"
		}
	}
	return "failed_parameter"
}

func (s *Sim) resolveSubmit(a *simAgent, params []string) string {
	if len(params) != 1 {
		return "failed_parameter"
	}
	task, ok := s.tasks[params[0]]
	if !ok {
		return "failed_target"
	}
	if !s.world.IsGoalZone(a.pos) {
		return "failed_target"
	}
	for _, req := range task.Requirements {
		if a.attachments[grid.Coordinate{X: req.X, Y: req.Y}] != req.Type {
			return "failed_target"
		}
	}
	for _, req := range task.Requirements {
		delete(a.attachments, grid.Coordinate{X: req.X, Y: req.Y})
	}
	s.score += task.Reward
	delete(s.tasks, task.Name)
	return "success"
}

func parseConnect(params []string) (connectOffer, error) {
	if len(params) != 3 {
		return connectOffer{}, fmt.Errorf("connect: want 3 params, got %d", len(params))
	}
	var x, y int
	if _, err := fmt.Sscanf(params[1], "%d", &x); err != nil {
		return connectOffer{}, err
	}
	if _, err := fmt.Sscanf(params[2], "%d", &y); err != nil {
		return connectOffer{}, err
	}
	return connectOffer{peer: params[0], rel: grid.Coordinate{X: x, Y: y}}, nil
}

// resolveConnects pairs mutual offers. A coordinator naming its attached
// cell next to the provider's named block gains that block as its own
// attachment; both sides see success.
func (s *Sim) resolveConnects(offers map[string]connectOffer) {
	g := s.world.Geometry()
	for id, offer := range offers {
		back, mutual := offers[offer.peer]
		if !mutual || back.peer != id {
			continue
		}
		a, b := s.agents[id], s.agents[offer.peer]
		if a == nil || b == nil {
			continue
		}
		aCell := a.pos.Shifted(offer.rel, g)
		bCell := b.pos.Shifted(back.rel, g)
		if grid.ManhattanDistance(aCell, bCell, g) != 1 {
			continue
		}
		// Each side gains the other's named thing as an attachment.
		if blockType, ok := b.attachments[back.rel]; ok {
			a.attachments[a.pos.Relative(bCell, g)] = blockType
		}
		if blockType, ok := a.attachments[offer.rel]; ok {
			b.attachments[b.pos.Relative(aCell, g)] = blockType
		}
		a.lastResult = "success"
		b.lastResult = "success"
	}
}
