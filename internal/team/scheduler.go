package team

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/talgya/blockswarm/internal/action"
	"github.com/talgya/blockswarm/internal/agent"
	"github.com/talgya/blockswarm/internal/intent"
	"github.com/talgya/blockswarm/internal/percept"
	"github.com/talgya/blockswarm/internal/protocol"
	"github.com/talgya/blockswarm/internal/registry"
	"github.com/talgya/blockswarm/internal/roles"
	"github.com/talgya/blockswarm/internal/simstate"
)

// Recorder receives every planned action for replay and telemetry. Optional.
type Recorder interface {
	RecordAction(step int, agentID string, act action.Action, explanation string)
}

// Scheduler runs the per-step pipeline for the whole team: decode percepts,
// fold them into the shared maps, resolve identities, allocate tasks, and
// plan every agent's action in parallel.
type Scheduler struct {
	log    *slog.Logger
	state  *simstate.State
	reg    *registry.Registry
	roles  *roles.Book
	params intent.Params

	agents   map[string]*agent.Agent
	handlers map[string]*intent.Handler
	alloc    *Allocator

	registered map[string]bool
	lastStep   map[string]int

	recorder Recorder
}

// NewScheduler assembles the team over the announced match constants.
func NewScheduler(log *slog.Logger, state *simstate.State, catalogue []roles.Role, agentIDs []string, params intent.Params) *Scheduler {
	s := &Scheduler{
		log:        log.With("component", "scheduler"),
		state:      state,
		reg:        registry.New(log, params.MarkerPurgeSteps, params.UnknownSearchBound),
		roles:      roles.NewBook(catalogue),
		params:     params,
		agents:     make(map[string]*agent.Agent, len(agentIDs)),
		handlers:   make(map[string]*intent.Handler, len(agentIDs)),
		registered: make(map[string]bool, len(agentIDs)),
		lastStep:   make(map[string]int, len(agentIDs)),
	}
	for _, id := range agentIDs {
		s.agents[id] = agent.New(id, state.Team, params.MaxEnergy)
		s.handlers[id] = intent.NewHandler()
	}
	s.alloc = NewAllocator(log, state, s.reg, s.roles, s.agents, s.handlers, params)
	return s
}

// SetRecorder installs an action recorder.
func (s *Scheduler) SetRecorder(r Recorder) { s.recorder = r }

// Registry exposes the map repository, mainly for tests and telemetry.
func (s *Scheduler) Registry() *registry.Registry { return s.reg }

// Roles exposes the role book.
func (s *Scheduler) Roles() *roles.Book { return s.roles }

// Step consumes one request-action per agent and returns each agent's
// chosen action. Missing agents (deactivated or disconnected) are skipped.
func (s *Scheduler) Step(requests map[string]protocol.RequestAction) (map[string]action.Action, error) {
	ids := make([]string, 0, len(requests))
	for id := range requests {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("step: no requests")
	}

	step := requests[ids[0]].Step
	s.state.SetStep(step)

	observations := make(map[string]percept.Observation, len(ids))
	for _, id := range ids {
		req := requests[id]
		vision := s.roles.Vision(id, s.params.DefaultVision)
		observations[id] = percept.Decode(req.Percept, req.Step, vision, s.state.Team)
	}

	// Task and norm boards are global; any one percept carries them.
	first := observations[ids[0]]
	s.state.UpdateTasks(first.Tasks)
	s.state.UpdateNorms(first.Norms)
	s.state.SetScore(first.Score)

	for _, id := range ids {
		obs := observations[id]
		s.roles.SetWorn(id, obs.Role)
		if !s.registered[id] {
			s.reg.Register(id, step, obs.MapUpdate())
			s.registered[id] = true
			s.agents[id].Energy = obs.Energy
			s.agents[id].Role = obs.Role
			continue
		}
		m := s.reg.MapOf(id)
		if err := s.agents[id].ApplyObservation(obs, m); err != nil {
			s.log.Warn("action result rejected", "agent", id, "error", err)
		}
		s.reg.Update(id, step, obs.MapUpdate())
	}

	res := s.reg.CheckIdentifications()
	for id, offset := range res.Offsets {
		if h, ok := s.handlers[id]; ok {
			h.Shift(offset, s.reg.MapOf(id).Geometry())
		}
	}
	if res.DimsDiscovered {
		g := s.reg.Geometry()
		for _, h := range s.handlers {
			h.Normalize(g)
		}
		s.log.Info("grid dimensions known", "width", g.Width, "height", g.Height)
	}

	for _, id := range ids {
		s.handlers[id].CheckFinished(s.context(id, observations[id]))
	}
	s.alloc.Run()
	drops := s.alloc.TakeDrops()

	actions := make(map[string]action.Action, len(ids))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			ctx := s.context(id, observations[id])
			_, drop := drops[id]
			current := s.handlers[id].Select(ctx, s.needReset(id, step), drop)
			act := current.Plan(ctx)
			if s.recorder != nil {
				s.recorder.RecordAction(step, id, act, current.Explain())
			}
			mu.Lock()
			actions[id] = act
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		s.lastStep[id] = step
	}
	return actions, nil
}

// needReset reports whether the agent missed steps, the reconnect signature
// that invalidates its attachment bookkeeping.
func (s *Scheduler) needReset(id string, step int) bool {
	last, seen := s.lastStep[id]
	return seen && step-last > 1
}

func (s *Scheduler) context(id string, obs percept.Observation) *intent.Context {
	return &intent.Context{
		Agent:    s.agents[id],
		Map:      s.reg.MapOf(id),
		Obs:      obs,
		State:    s.state,
		Roles:    s.roles,
		Params:   s.params,
		MapCount: s.reg.MapCount(),
	}
}
