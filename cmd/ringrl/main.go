package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/boristopalov/ringrl/pkg/agent"
	"github.com/boristopalov/ringrl/pkg/config"
	"github.com/boristopalov/ringrl/pkg/environment"
	"github.com/boristopalov/ringrl/pkg/experiment"
	"github.com/boristopalov/ringrl/pkg/messaging"
	"github.com/boristopalov/ringrl/pkg/providers"
	"github.com/boristopalov/ringrl/pkg/render"
	"github.com/boristopalov/ringrl/pkg/simulator"
)

var (
	configPath string
	policyName string
	episodes   int
	steps      int
	chartPath  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ringrl",
		Short: "ringrl drives RL-controlled vehicles on a single-lane ring road to dissipate stop-and-go waves.",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run episodes of the ring environment with the configured policy",
		RunE:  runExperiment,
	}
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a yaml experiment config")
	runCmd.Flags().StringVar(&policyName, "policy", "", "policy to drive the RL vehicles (constant, random, llm)")
	runCmd.Flags().IntVar(&episodes, "episodes", 0, "number of episodes, overrides the config")
	runCmd.Flags().IntVar(&steps, "steps", 0, "steps per episode, overrides the config")
	runCmd.Flags().StringVar(&chartPath, "chart", "", "write an HTML reward chart to this path")

	spacesCmd := &cobra.Command{
		Use:   "spaces",
		Short: "Print the action and observation spaces of the configured environment",
		RunE:  printSpaces,
	}
	spacesCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a yaml experiment config")

	for _, envFile := range []string{
		".env",
		"../../.env",
		"../../../.env",
	} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	rootCmd.AddCommand(runCmd, spacesCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.ExperimentConfig, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("policy") {
		cfg.Agent.Policy = policyName
	}
	if flags.Changed("episodes") {
		cfg.Episodes = episodes
	}
	if flags.Changed("steps") {
		cfg.Steps = steps
	}
	if flags.Changed("chart") {
		cfg.Logging.ChartPath = chartPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logging.Level == config.LevelQuiet {
		log.SetOutput(io.Discard)
	}
	return cfg, nil
}

func runExperiment(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		cancel()
	}()

	broker := messaging.NewBroker()
	defer broker.Reset()

	rng := rand.New(rand.NewSource(cfg.Seed))
	sim, err := simulator.New(cfg.Sim, cfg.Scenario, rng)
	if err != nil {
		return fmt.Errorf("failed to create simulator: %v", err)
	}
	env, err := environment.NewRingAccelEnv(sim.Registry(), cfg.Scenario, cfg.Env,
		environment.WithID(cfg.Name+"-env"),
		environment.WithRand(rng),
		environment.WithBroker(broker),
	)
	if err != nil {
		return fmt.Errorf("failed to create environment: %v", err)
	}

	observer, err := render.NewConsoleObserver("console", broker, os.Stdout, cfg.Logging.Colors, cfg.Env.TargetVelocity)
	if err != nil {
		return err
	}
	observer.Start(ctx)
	defer observer.Stop()

	policy, err := newPolicy(ctx, cfg, rng)
	if err != nil {
		return fmt.Errorf("failed to create policy: %v", err)
	}
	log.Printf("Created %s", policy.GetID())

	runner, err := experiment.NewRunner(env, sim, policy, cfg.Episodes, cfg.Steps,
		experiment.WithName(cfg.Name),
		experiment.WithRenderEvery(cfg.Logging.RenderEvery),
		experiment.WithBroker(broker),
		experiment.WithStatsPath(cfg.Logging.StatsPath),
	)
	if err != nil {
		return err
	}
	if err := runner.Run(ctx); err != nil {
		return fmt.Errorf("experiment failed: %v", err)
	}

	if cfg.Logging.ChartPath != "" {
		if err := writeChart(cfg, runner.Trajectories()); err != nil {
			return fmt.Errorf("failed to write chart: %v", err)
		}
		log.Printf("Wrote reward chart to %s", cfg.Logging.ChartPath)
	}
	return nil
}

func newPolicy(ctx context.Context, cfg *config.ExperimentConfig, rng *rand.Rand) (agent.Policy, error) {
	var opts []agent.PolicyOption
	if cfg.Agent.Policy == agent.PolicyLLM {
		client, err := providers.New(ctx, cfg.Agent.Provider)
		if err != nil {
			return nil, err
		}
		model := cfg.Agent.Model
		if model == "" {
			model = providers.DefaultModel(cfg.Agent.Provider)
		}
		opts = append(opts,
			agent.WithClient(client),
			agent.WithModel(agent.ModelInfo{Id: model, Config: make(map[string]any)}),
			agent.WithMemory(cfg.Agent.Memory),
			agent.WithTargetVelocity(cfg.Env.TargetVelocity),
		)
	}
	return agent.New(cfg.Agent.Policy, cfg.Agent.Constant, rng, opts...)
}

func writeChart(cfg *config.ExperimentConfig, trajs []experiment.Trajectory) error {
	f, err := os.Create(cfg.Logging.ChartPath)
	if err != nil {
		return err
	}
	defer f.Close()

	series := make([]render.Series, 0, len(trajs))
	for _, t := range trajs {
		series = append(series, render.Series{
			Name:    fmt.Sprintf("episode %d", t.Episode),
			Rewards: t.Rewards(),
		})
	}
	return render.WriteRewardChart(f, cfg.Name+" reward per step", series...)
}

func printSpaces(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sim, err := simulator.New(cfg.Sim, cfg.Scenario, nil)
	if err != nil {
		return err
	}
	env, err := environment.NewRingAccelEnv(sim.Registry(), cfg.Scenario, cfg.Env)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "action space: %s\n", env.ActionSpace())
	for i, s := range env.ObservationSpace().Spaces {
		fmt.Fprintf(out, "observation space %d: %s\n", i, s)
	}
	return nil
}
