// Command swarm connects a team of agents to a match server and plays until
// the simulation ends.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/talgya/blockswarm/internal/config"
	"github.com/talgya/blockswarm/internal/percept"
	"github.com/talgya/blockswarm/internal/protocol"
	"github.com/talgya/blockswarm/internal/simstate"
	"github.com/talgya/blockswarm/internal/team"
	"github.com/talgya/blockswarm/internal/telemetry"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the YAML config file")
		serverURL  = flag.String("server", "", "match server URL, overrides the config")
		count      = flag.Int("agents", 0, "number of agents, overrides the config")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	var handler slog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.Server.URL = *serverURL
	}
	if *count > 0 {
		cfg.Agents.Count = *count
	}

	if err := run(logger, cfg); err != nil {
		logger.Error("match aborted", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, cfg config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	agentIDs := cfg.AgentIDs()
	clients := make(map[string]*protocol.Client, len(agentIDs))
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()

	logger.Info("connecting", "server", cfg.Server.URL, "agents", len(agentIDs))
	for _, id := range agentIDs {
		c, err := protocol.Dial(ctx, cfg.Server.URL, id, cfg.Server.Password)
		if err != nil {
			return fmt.Errorf("connect %s: %w", id, err)
		}
		clients[id] = c
	}

	// Every agent gets the same match constants; decode the first sim-start
	// and drain the rest.
	var start protocol.SimStart
	for i, id := range agentIDs {
		msg, err := clients[id].Receive()
		if err != nil {
			return fmt.Errorf("sim-start for %s: %w", id, err)
		}
		if msg.Type != protocol.TypeSimStart {
			return fmt.Errorf("sim-start for %s: got %q", id, msg.Type)
		}
		if i == 0 {
			if err := msg.Decode(&start); err != nil {
				return err
			}
		}
	}

	state := simstate.New(start.Percept.Team, start.Percept.TeamSize, start.Percept.Steps, cfg.Planning.NormHandleSteps)
	catalogue := percept.DecodeRoles(start.Percept.Roles)
	sched := team.NewScheduler(logger, state, catalogue, agentIDs, cfg.Params())

	var recorders telemetry.Tee
	store, err := telemetry.Open(cfg.Telemetry.DatabasePath, start.Percept.Team)
	if err != nil {
		logger.Warn("telemetry store disabled", "error", err)
	} else {
		defer store.Close()
		recorders = append(recorders, store)
	}
	var replay *telemetry.ReplayWriter
	if store != nil {
		replay, err = telemetry.NewReplayWriter(cfg.Telemetry.ReplayDir, store.MatchID())
		if err != nil {
			logger.Warn("replay log disabled", "error", err)
		} else {
			defer replay.Close()
			recorders = append(recorders, replay)
		}
	}
	if len(recorders) > 0 {
		sched.SetRecorder(recorders)
	}

	logger.Info("match started",
		"team", start.Percept.Team,
		"steps", start.Percept.Steps,
		"roles", len(catalogue),
	)

	startedAt := time.Now()
	end, err := pump(ctx, logger, sched, clients)
	if err != nil {
		return err
	}

	if store != nil {
		if err := store.Finish(state.Step(), end.Score, end.Ranking); err != nil {
			logger.Warn("telemetry finish", "error", err)
		}
	}
	fmt.Printf("Match over: score %s, rank %d, %s elapsed.\n",
		humanize.Comma(int64(end.Score)), end.Ranking, humanize.RelTime(startedAt, time.Now(), "", ""))
	return nil
}

type inbound struct {
	id  string
	msg protocol.Message
	err error
}

// pump runs the step loop: gather one request-action per connected agent,
// plan the whole team at once, answer every request.
func pump(ctx context.Context, logger *slog.Logger, sched *team.Scheduler, clients map[string]*protocol.Client) (protocol.SimEnd, error) {
	ch := make(chan inbound, len(clients))
	for id, c := range clients {
		go func(id string, c *protocol.Client) {
			for {
				msg, err := c.Receive()
				ch <- inbound{id: id, msg: msg, err: err}
				if err != nil {
					return
				}
			}
		}(id, c)
	}

	active := make(map[string]bool, len(clients))
	for id := range clients {
		active[id] = true
	}
	pending := make(map[string]protocol.RequestAction, len(clients))
	pendingStep := -1

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		actions, err := sched.Step(pending)
		if err != nil {
			return err
		}
		for id, act := range actions {
			msg, err := protocol.EncodeAction(pending[id].ID, act)
			if err != nil {
				return err
			}
			if err := clients[id].Send(msg); err != nil {
				return fmt.Errorf("answer %s: %w", id, err)
			}
		}
		pending = make(map[string]protocol.RequestAction, len(clients))
		pendingStep = -1
		return nil
	}

	activeCount := func() int {
		n := 0
		for _, up := range active {
			if up {
				n++
			}
		}
		return n
	}

	var end protocol.SimEnd
	ended := false
	for activeCount() > 0 {
		select {
		case <-ctx.Done():
			return end, ctx.Err()
		case in := <-ch:
			if in.err != nil {
				if active[in.id] {
					logger.Warn("agent disconnected", "agent", in.id, "error", in.err)
					active[in.id] = false
					delete(pending, in.id)
				}
				if ended {
					// Connections closing after sim-end are normal.
					active[in.id] = false
				}
				continue
			}
			switch in.msg.Type {
			case protocol.TypeRequestAction:
				var req protocol.RequestAction
				if err := in.msg.Decode(&req); err != nil {
					return end, err
				}
				// A request from a later step means some agent's answer was
				// never asked for; plan with what we have.
				if pendingStep != -1 && req.Step != pendingStep {
					if err := flush(); err != nil {
						return end, err
					}
				}
				pending[in.id] = req
				pendingStep = req.Step
				if len(pending) == activeCount() {
					if err := flush(); err != nil {
						return end, err
					}
				}
			case protocol.TypeSimEnd:
				if !ended {
					if err := in.msg.Decode(&end); err != nil {
						return end, err
					}
					ended = true
					logger.Info("simulation ended", "score", end.Score, "ranking", end.Ranking)
				}
			case protocol.TypeBye:
				active[in.id] = false
			default:
				logger.Debug("unhandled message", "agent", in.id, "type", in.msg.Type)
			}
		}
	}
	return end, nil
}
