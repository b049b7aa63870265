// Command arena runs a local match server: a generated world and a rule
// engine speaking the same protocol as the contest server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"

	"github.com/talgya/blockswarm/internal/arena"
)

func main() {
	var (
		addr     = flag.String("addr", ":12300", "listen address")
		team     = flag.String("team", "A", "team name")
		count    = flag.Int("agents", 15, "number of agents to wait for")
		steps    = flag.Int("steps", 400, "match length in steps")
		seed     = flag.Int64("seed", 0, "world seed, 0 for random")
		password = flag.String("password", "", "required agent password, empty accepts all")
	)
	flag.Parse()

	var handler slog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(os.Stdout, nil)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	if err := run(logger, *addr, *team, *password, *count, *steps, *seed); err != nil {
		logger.Error("arena aborted", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, addr, team, password string, count, steps int, seed int64) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	genCfg := arena.DefaultGenConfig()
	genCfg.Seed = seed
	world := arena.Generate(genCfg)

	simCfg := arena.DefaultSimConfig()
	simCfg.TotalSteps = steps
	if seed != 0 {
		simCfg.Seed = seed
	}

	listener, err := arena.Listen(logger, addr, password)
	if err != nil {
		return err
	}
	defer listener.Close()

	logger.Info("waiting for agents", "count", count)
	transports, err := listener.WaitForAgents(ctx, count)
	if err != nil {
		return err
	}
	defer func() {
		for _, tr := range transports {
			tr.Close()
		}
	}()

	agentIDs := make([]string, 0, len(transports))
	for id := range transports {
		agentIDs = append(agentIDs, id)
	}
	sim := arena.NewSim(world, simCfg, team, agentIDs)

	return arena.NewMatch(logger, sim, team, transports).Run()
}
