// Package config loads the runtime configuration from YAML, with defaults
// that match the standard contest settings so a bare config file works.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/talgya/blockswarm/internal/intent"
)

// Server is the match server connection block.
type Server struct {
	URL      string `yaml:"url"`
	Team     string `yaml:"team"`
	Password string `yaml:"password"`
}

// Agents names the controlled agents.
type Agents struct {
	Prefix string `yaml:"prefix"`
	Count  int    `yaml:"count"`
}

// Planning carries the planner and behavior constants.
type Planning struct {
	PathMaxIterations  int     `yaml:"path_max_iterations"`
	MarkerPurgeSteps   int     `yaml:"marker_purge_steps"`
	UnknownSearchBound int     `yaml:"unknown_search_bound"`
	ClearConstantCost  float64 `yaml:"clear_constant_cost"`
	ClearEnergyCost    float64 `yaml:"clear_energy_cost"`
	EnergyMinPct       float64 `yaml:"energy_min_pct"`
	MaxBlockingSteps   int     `yaml:"max_blocking_steps"`
	NormHandleSteps    int     `yaml:"norm_handle_steps"`
	DefaultVision      int     `yaml:"default_vision"`
	MaxEnergy          int     `yaml:"max_energy"`
}

// Telemetry configures the match store and the replay log.
type Telemetry struct {
	DatabasePath string `yaml:"database_path"`
	ReplayDir    string `yaml:"replay_dir"`
}

// Config is the full runtime configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Agents    Agents    `yaml:"agents"`
	Planning  Planning  `yaml:"planning"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Default returns the contest-standard configuration.
func Default() Config {
	return Config{
		Server: Server{
			URL:  "ws://localhost:12300",
			Team: "A",
		},
		Agents: Agents{Prefix: "agent", Count: 15},
		Planning: Planning{
			PathMaxIterations:  500,
			MarkerPurgeSteps:   10,
			UnknownSearchBound: 60,
			ClearConstantCost:  2.5,
			ClearEnergyCost:    3.0,
			EnergyMinPct:       0.20,
			MaxBlockingSteps:   10,
			NormHandleSteps:    20,
			DefaultVision:      5,
			MaxEnergy:          100,
		},
		Telemetry: Telemetry{
			DatabasePath: "blockswarm.db",
			ReplayDir:    "replays",
		},
	}
}

// Load reads a YAML config over the defaults. A missing path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Agents.Count < 1 {
		return fmt.Errorf("config: agents.count must be positive, got %d", c.Agents.Count)
	}
	if c.Planning.PathMaxIterations < 1 {
		return fmt.Errorf("config: planning.path_max_iterations must be positive")
	}
	if c.Planning.MaxEnergy < 1 {
		return fmt.Errorf("config: planning.max_energy must be positive")
	}
	return nil
}

// Params converts the planning block into the behavior layer's constants.
func (c Config) Params() intent.Params {
	return intent.Params{
		PathMaxIterations:  c.Planning.PathMaxIterations,
		MarkerPurgeSteps:   c.Planning.MarkerPurgeSteps,
		UnknownSearchBound: c.Planning.UnknownSearchBound,
		ClearConstantCost:  c.Planning.ClearConstantCost,
		ClearEnergyCost:    c.Planning.ClearEnergyCost,
		EnergyMinPct:       c.Planning.EnergyMinPct,
		MaxBlockingSteps:   c.Planning.MaxBlockingSteps,
		DefaultVision:      c.Planning.DefaultVision,
		MaxEnergy:          c.Planning.MaxEnergy,
	}
}

// AgentIDs expands the prefix and count into the agent name list.
func (c Config) AgentIDs() []string {
	out := make([]string, c.Agents.Count)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", c.Agents.Prefix, i+1)
	}
	return out
}
