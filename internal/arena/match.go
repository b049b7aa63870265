package arena

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/talgya/blockswarm/internal/protocol"
)

// Match drives one simulation over a set of transports, speaking the same
// protocol as the contest server.
type Match struct {
	log        *slog.Logger
	sim        *Sim
	team       string
	transports map[string]protocol.Transport

	reqID int
}

// NewMatch binds a simulation to one transport per agent.
func NewMatch(log *slog.Logger, sim *Sim, team string, transports map[string]protocol.Transport) *Match {
	return &Match{
		log:        log.With("component", "arena"),
		sim:        sim,
		team:       team,
		transports: transports,
	}
}

// Run plays the match to completion: sim-start, the request-action loop,
// sim-end, bye.
func (m *Match) Run() error {
	ids := make([]string, 0, len(m.transports))
	for id := range m.transports {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		var start protocol.SimStart
		start.Percept.Name = id
		start.Percept.Team = m.team
		start.Percept.TeamSize = len(ids)
		start.Percept.Steps = m.sim.cfg.TotalSteps
		start.Percept.Role = "default"
		start.Percept.Roles = m.sim.Roles()
		msg, err := protocol.NewMessage(protocol.TypeSimStart, start)
		if err != nil {
			return err
		}
		if err := m.transports[id].Send(msg); err != nil {
			return fmt.Errorf("sim-start to %s: %w", id, err)
		}
	}

	for !m.sim.Done() {
		if err := m.playStep(ids); err != nil {
			return err
		}
	}

	for _, id := range ids {
		end, err := protocol.NewMessage(protocol.TypeSimEnd, protocol.SimEnd{Ranking: 1, Score: m.sim.Score()})
		if err != nil {
			return err
		}
		if err := m.transports[id].Send(end); err != nil {
			return fmt.Errorf("sim-end to %s: %w", id, err)
		}
		_ = m.transports[id].Send(protocol.Message{Type: protocol.TypeBye})
	}
	m.log.Info("match over", "steps", m.sim.Step(), "score", m.sim.Score())
	return nil
}

func (m *Match) playStep(ids []string) error {
	pending := make(map[string]int, len(ids))
	for _, id := range ids {
		m.reqID++
		pending[id] = m.reqID
		req := protocol.RequestAction{
			ID:      m.reqID,
			Step:    m.sim.Step(),
			Percept: m.sim.BuildPercept(id),
		}
		msg, err := protocol.NewMessage(protocol.TypeRequestAction, req)
		if err != nil {
			return err
		}
		if err := m.transports[id].Send(msg); err != nil {
			return fmt.Errorf("request-action to %s: %w", id, err)
		}
	}

	actions := make(map[string]protocol.ActionMessage, len(ids))
	for _, id := range ids {
		msg, err := m.transports[id].Receive()
		if err != nil {
			return fmt.Errorf("action from %s: %w", id, err)
		}
		if msg.Type != protocol.TypeAction {
			continue
		}
		var act protocol.ActionMessage
		if err := msg.Decode(&act); err != nil {
			return err
		}
		if act.ID != pending[id] {
			m.log.Warn("stale action dropped", "agent", id, "got", act.ID, "want", pending[id])
			continue
		}
		actions[id] = act
	}

	m.sim.Resolve(actions)
	return nil
}
