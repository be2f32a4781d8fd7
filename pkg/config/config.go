package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/boristopalov/ringrl/pkg/agent"
	"github.com/boristopalov/ringrl/pkg/core"
	"github.com/boristopalov/ringrl/pkg/environment"
	"github.com/boristopalov/ringrl/pkg/providers"
	"github.com/boristopalov/ringrl/pkg/reward"
	"github.com/boristopalov/ringrl/pkg/simulator"
)

// Log levels
const (
	LevelInfo  = "info"
	LevelQuiet = "quiet"
)

type ExperimentConfig struct {
	Name     string             `yaml:"name"`
	Episodes int                `yaml:"episodes"`
	Steps    int                `yaml:"steps"`
	Seed     int64              `yaml:"seed"`
	Env      environment.Params `yaml:"env"`
	Scenario core.Scenario      `yaml:"scenario"`
	Sim      simulator.Config   `yaml:"sim"`
	Agent    AgentConfig        `yaml:"agent"`
	Logging  LogConfig          `yaml:"logging"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	StatsPath   string `yaml:"stats_path"`
	ChartPath   string `yaml:"chart_path"`
	RenderEvery int    `yaml:"render_every"`
	Colors      bool   `yaml:"colors"`
}

type AgentConfig struct {
	Policy   string  `yaml:"policy"`
	Provider string  `yaml:"provider"`
	Model    string  `yaml:"model"`
	Constant float64 `yaml:"constant"` // acceleration of the constant policy
	Memory   int     `yaml:"memory"`   // steps of history in the llm prompt
}

// Default is a 230 m ring with 22 vehicles, one of them RL-controlled
func Default() *ExperimentConfig {
	return &ExperimentConfig{
		Name:     "ring",
		Episodes: 1,
		Steps:    1500,
		Seed:     1,
		Env: environment.Params{
			MaxAcc:         1,
			MaxDeacc:       1,
			TargetVelocity: 10,
			Centering:      environment.CenterFirstRL,
			Observation:    environment.ObserveScaledRing,
			Reward:         reward.DesiredVelocityName,
		},
		Scenario: core.Scenario{
			Length:        230,
			NumVehicles:   22,
			NumRLVehicles: 1,
		},
		Sim: simulator.DefaultConfig(),
		Agent: AgentConfig{
			Policy:   agent.PolicyConstant,
			Provider: providers.ProviderOpenAI,
			Memory:   10,
		},
		Logging: LogConfig{
			Level:  LevelInfo,
			Colors: true,
		},
	}
}

// LoadConfig reads a yaml file over the defaults and validates the result
func LoadConfig(path string) (*ExperimentConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *ExperimentConfig) Validate() error {
	var errs []error
	if c.Episodes < 1 {
		errs = append(errs, fmt.Errorf("episodes must be positive, got %d", c.Episodes))
	}
	if c.Steps < 1 {
		errs = append(errs, fmt.Errorf("steps must be positive, got %d", c.Steps))
	}
	if err := c.Scenario.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scenario: %w", err))
	}
	if c.Env.MaxAcc < 0 {
		errs = append(errs, fmt.Errorf("env max_acc must not be negative, got %v", c.Env.MaxAcc))
	}
	if _, err := environment.LookupCentering(c.Env.Centering); err != nil {
		errs = append(errs, err)
	}
	if _, err := environment.LookupObservation(c.Env.Observation); err != nil {
		errs = append(errs, err)
	}
	if _, err := reward.Lookup(c.Env.Reward); err != nil {
		errs = append(errs, err)
	}
	if (c.Env.Centering == "" || c.Env.Centering == environment.CenterFirstRL) && c.Scenario.NumRLVehicles != 1 {
		errs = append(errs, fmt.Errorf("%s centering needs exactly one RL vehicle, got %d",
			environment.CenterFirstRL, c.Scenario.NumRLVehicles))
	}
	if c.Sim.TimeStep <= 0 {
		errs = append(errs, fmt.Errorf("sim time_step must be positive, got %v", c.Sim.TimeStep))
	}

	switch c.Agent.Policy {
	case "", agent.PolicyConstant, agent.PolicyRandom, agent.PolicyLLM:
	default:
		errs = append(errs, fmt.Errorf("unknown policy %q", c.Agent.Policy))
	}
	switch c.Agent.Provider {
	case "", providers.ProviderOpenAI, providers.ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Agent.Provider))
	}

	switch c.Logging.Level {
	case "", LevelInfo, LevelQuiet:
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Logging.Level))
	}
	if c.Logging.RenderEvery < 0 {
		errs = append(errs, fmt.Errorf("render_every must not be negative, got %d", c.Logging.RenderEvery))
	}
	return errors.Join(errs...)
}
