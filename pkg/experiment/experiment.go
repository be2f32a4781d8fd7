// Package experiment drives episodes of the ring environment: it asks a
// policy for accelerations, advances the simulation and scores each step.
package experiment

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/boristopalov/ringrl/pkg/agent"
	"github.com/boristopalov/ringrl/pkg/core"
	"github.com/boristopalov/ringrl/pkg/memory"
	"github.com/boristopalov/ringrl/pkg/messaging"
	"github.com/boristopalov/ringrl/pkg/spaces"
	"github.com/google/uuid"
)

// Simulation is the part of the simulator the runner drives
type Simulation interface {
	Reset() error
	Step() (fail bool, err error)
}

// stepRenderer is implemented by environments that can tag renders with
// the driver's step
type stepRenderer interface {
	RenderStep(step int)
}

// resetter is implemented by policies that keep per-episode state
type resetter interface {
	Reset()
}

// Trajectory is the record of one episode
type Trajectory struct {
	RunID   string
	Episode int
	Steps   []core.StepResult
	Return  float64
	Failed  bool
}

func (t Trajectory) Rewards() []float64 {
	out := make([]float64, len(t.Steps))
	for i, s := range t.Steps {
		out[i] = s.Reward
	}
	return out
}

func (t Trajectory) Summary() core.EpisodeSummary {
	return core.EpisodeSummary{
		RunID:   t.RunID,
		Episode: t.Episode,
		Steps:   len(t.Steps),
		Return:  t.Return,
		Failed:  t.Failed,
	}
}

type Runner struct {
	name         string
	runID        string
	env          core.Environment
	sim          Simulation
	policy       agent.Policy
	episodes     int
	steps        int
	renderEvery  int
	broker       messaging.Broker
	statsPath    string
	trajectories *memory.Memory[Trajectory]
	mu           sync.RWMutex
	status       core.ExperimentStatus
}

type RunnerOption func(*Runner)

func WithName(name string) RunnerOption {
	return func(r *Runner) {
		r.name = name
	}
}

func WithRunID(id string) RunnerOption {
	return func(r *Runner) {
		r.runID = id
	}
}

// WithRenderEvery renders the environment every n steps; 0 disables it
func WithRenderEvery(n int) RunnerOption {
	return func(r *Runner) {
		r.renderEvery = n
	}
}

// WithBroker publishes an episode summary after every episode
func WithBroker(b messaging.Broker) RunnerOption {
	return func(r *Runner) {
		r.broker = b
	}
}

// WithStatsPath writes one CSV row of statistics per episode to path
func WithStatsPath(path string) RunnerOption {
	return func(r *Runner) {
		r.statsPath = path
	}
}

func NewRunner(env core.Environment, sim Simulation, policy agent.Policy, episodes, steps int, opts ...RunnerOption) (*Runner, error) {
	if env == nil || sim == nil || policy == nil {
		return nil, fmt.Errorf("runner needs an environment, a simulation and a policy")
	}
	if episodes < 1 || steps < 1 {
		return nil, fmt.Errorf("episodes and steps must be positive, got %d and %d", episodes, steps)
	}

	r := &Runner{
		name:     "ring",
		runID:    uuid.New().String(),
		env:      env,
		sim:      sim,
		policy:   policy,
		episodes: episodes,
		steps:    steps,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.trajectories = memory.NewMemory[Trajectory](episodes)
	r.status.RunID = r.runID
	return r, nil
}

func (r *Runner) RunID() string {
	return r.runID
}

// Status returns a snapshot of the run's progress
func (r *Runner) Status() core.ExperimentStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.status
	s.Errors = append([]error(nil), r.status.Errors...)
	return s
}

// Trajectories returns the finished episodes, oldest first
func (r *Runner) Trajectories() []Trajectory {
	return r.trajectories.All()
}

// Run plays every episode. Cancelling ctx stops the run between steps.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	r.status.Running = true
	r.status.StartTime = time.Now()
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.status.Running = false
		r.status.EndTime = time.Now()
		r.mu.Unlock()
	}()

	stats, err := newStatsWriter(r.statsPath)
	if err != nil {
		log.Printf("Warning: Failed to create stats file: %v", err)
	}
	defer stats.Close()

	err = r.runLoop(ctx, stats)
	if err != nil {
		r.recordError(err)
	}
	return err
}

func (r *Runner) runLoop(ctx context.Context, stats *statsWriter) error {
	for ep := 0; ep < r.episodes; ep++ {
		log.Printf("%s %s: starting episode %d", r.name, r.runID, ep)
		traj, err := r.episode(ctx, ep)
		if err != nil {
			return fmt.Errorf("episode %d: %w", ep, err)
		}
		r.trajectories.Store(traj)
		r.printEpisodeStats(traj)
		stats.Write(traj)
		r.publish(traj)
	}
	return nil
}

func (r *Runner) episode(ctx context.Context, ep int) (Trajectory, error) {
	traj := Trajectory{RunID: r.runID, Episode: ep}

	if err := r.sim.Reset(); err != nil {
		return traj, fmt.Errorf("reset simulation: %w", err)
	}
	if p, ok := r.policy.(resetter); ok {
		p.Reset()
	}
	r.setProgress(ep, 0)

	obs, err := r.env.ObserveState()
	if err != nil {
		return traj, err
	}
	space := r.env.ActionSpace()

	for step := 0; step < r.steps; step++ {
		select {
		case <-ctx.Done():
			return traj, ctx.Err()
		default:
		}

		result, err := r.step(ctx, step, obs, space)
		if err != nil {
			return traj, fmt.Errorf("step %d: %w", step, err)
		}
		traj.Steps = append(traj.Steps, result)
		traj.Return += result.Reward
		r.setProgress(ep, step+1)

		if r.renderEvery > 0 && (step+1)%r.renderEvery == 0 {
			r.render(step + 1)
		}
		if result.Fail {
			log.Printf("%s %s: collision in episode %d at step %d", r.name, r.runID, ep, step)
			traj.Failed = true
			break
		}
		obs = result.Observation
	}
	return traj, nil
}

// step is one observe-act-advance-reward cycle starting from obs
func (r *Runner) step(ctx context.Context, step int, obs core.Observation, space spaces.Box) (core.StepResult, error) {
	actions, err := r.policy.Act(ctx, obs, space)
	if err != nil {
		return core.StepResult{}, fmt.Errorf("policy %s: %w", r.policy.GetID(), err)
	}
	if err := r.env.ApplyRLActions(actions); err != nil {
		return core.StepResult{}, err
	}
	fail, err := r.sim.Step()
	if err != nil {
		return core.StepResult{}, err
	}
	next, err := r.env.ObserveState()
	if err != nil {
		return core.StepResult{}, err
	}
	reward, err := r.env.ComputeReward(next, actions, fail)
	if err != nil {
		return core.StepResult{}, err
	}
	return core.StepResult{
		Step:        step,
		Observation: next,
		Actions:     actions,
		Reward:      reward,
		Fail:        fail,
		Timestamp:   time.Now(),
	}, nil
}

func (r *Runner) render(step int) {
	if sr, ok := r.env.(stepRenderer); ok {
		sr.RenderStep(step)
		return
	}
	r.env.Render()
}

func (r *Runner) publish(traj Trajectory) {
	if r.broker == nil {
		return
	}
	if err := r.broker.Publish(messaging.Message{
		From:      r.runID,
		Topic:     messaging.TopicEpisode,
		Step:      len(traj.Steps),
		Content:   traj.Summary(),
		Timestamp: time.Now(),
	}); err != nil {
		log.Printf("%s %s: %v", r.name, r.runID, err)
	}
}

func (r *Runner) setProgress(ep, step int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Episode = ep
	r.status.Step = step
}

func (r *Runner) recordError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Errors = append(r.status.Errors, err)
}

func (r *Runner) printEpisodeStats(traj Trajectory) {
	s := episodeStats(traj)
	log.Printf("%s %s: episode %d finished after %d steps, return %.3f, average reward %.3f, mean speed %.2f, failed %v",
		r.name, r.runID, traj.Episode, s.Steps, traj.Return, s.AverageReward, s.MeanSpeed, traj.Failed)
}
