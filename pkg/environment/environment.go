// Package environment adapts a ring-road vehicle registry to a
// reinforcement-learning interface: observations out, accelerations in,
// and a scalar reward per step.
//
// The adapter keeps no state between steps. Every call reads the registry
// afresh, so the driver decides the order of apply, advance, observe and
// reward.
package environment

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/boristopalov/ringrl/pkg/core"
	"github.com/boristopalov/ringrl/pkg/messaging"
	"github.com/boristopalov/ringrl/pkg/reward"
	"github.com/boristopalov/ringrl/pkg/spaces"
	"github.com/samber/lo"
)

// Params are the acceleration bounds and reward target of the environment
type Params struct {
	MaxAcc         float64 `yaml:"max_acc"`   // m/s²
	MaxDeacc       float64 `yaml:"max_deacc"` // m/s², only the magnitude is used
	TargetVelocity float64 `yaml:"target_velocity"`
	Centering      string  `yaml:"centering"`
	Observation    string  `yaml:"observation"`
	Reward         string  `yaml:"reward"`
	Noise          Noise   `yaml:"noise"`
}

// RingAccelEnv controls RL vehicles on a ring through their acceleration.
// It implements core.Environment.
type RingAccelEnv struct {
	id        string
	registry  core.VehicleRegistry
	scenario  core.Scenario
	params    Params
	centering Centering
	observer  ObservationStrategy
	reward    reward.Strategy
	rng       *rand.Rand
	broker    messaging.Broker
}

type EnvOption func(*RingAccelEnv)

func WithID(id string) EnvOption {
	return func(e *RingAccelEnv) {
		e.id = id
	}
}

// WithRand sets the source used for observation noise
func WithRand(rng *rand.Rand) EnvOption {
	return func(e *RingAccelEnv) {
		e.rng = rng
	}
}

// WithBroker makes Render publish observations instead of logging them
func WithBroker(b messaging.Broker) EnvOption {
	return func(e *RingAccelEnv) {
		e.broker = b
	}
}

func WithCentering(c Centering) EnvOption {
	return func(e *RingAccelEnv) {
		e.centering = c
	}
}

func WithObservation(o ObservationStrategy) EnvOption {
	return func(e *RingAccelEnv) {
		e.observer = o
	}
}

func WithReward(r reward.Strategy) EnvOption {
	return func(e *RingAccelEnv) {
		e.reward = r
	}
}

// NewRingAccelEnv builds an environment over registry. Strategies named in
// params are resolved here; options override them.
func NewRingAccelEnv(registry core.VehicleRegistry, scenario core.Scenario, params Params, opts ...EnvOption) (*RingAccelEnv, error) {
	if registry == nil {
		return nil, fmt.Errorf("nil vehicle registry")
	}
	if err := scenario.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if params.MaxAcc < 0 {
		return nil, fmt.Errorf("max_acc must not be negative, got %v", params.MaxAcc)
	}

	centering, err := LookupCentering(params.Centering)
	if err != nil {
		return nil, err
	}
	observer, err := LookupObservation(params.Observation)
	if err != nil {
		return nil, err
	}
	rewardFn, err := reward.Lookup(params.Reward)
	if err != nil {
		return nil, err
	}

	e := &RingAccelEnv{
		id:        "ring-env",
		registry:  registry,
		scenario:  scenario,
		params:    params,
		centering: centering,
		observer:  observer,
		reward:    rewardFn,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil && params.Noise.Enabled() {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return e, nil
}

func (e *RingAccelEnv) GetID() string {
	return e.id
}

func (e *RingAccelEnv) Scenario() core.Scenario {
	return e.scenario
}

func (e *RingAccelEnv) Params() Params {
	return e.params
}

// ActionSpace returns one acceleration per RL vehicle, bounded by the
// configured deceleration magnitude and maximum acceleration.
func (e *RingAccelEnv) ActionSpace() spaces.Box {
	return spaces.Uniform(-math.Abs(e.params.MaxDeacc), e.params.MaxAcc, e.scenario.NumRLVehicles)
}

// ObservationSpace returns the speed and position boxes declared by the
// observation strategy.
func (e *RingAccelEnv) ObservationSpace() spaces.Product {
	return e.observer.Space(e.scenario)
}

// ApplyRLActions forwards actions[i] to the i-th RL vehicle in ring order.
// A length mismatch is rejected before any vehicle is touched.
func (e *RingAccelEnv) ApplyRLActions(actions []float64) error {
	rlIDs := e.registry.RLIDs()
	isRL := make(map[string]bool, len(rlIDs))
	for _, id := range rlIDs {
		isRL[id] = true
	}
	sortedRL := lo.Filter(e.registry.SortedIDs(), func(id string, _ int) bool {
		return isRL[id]
	})

	if len(actions) != len(rlIDs) {
		return fmt.Errorf("%w: got %d actions for %d RL vehicles", core.ErrShapeMismatch, len(actions), len(rlIDs))
	}
	if len(sortedRL) != len(rlIDs) {
		return fmt.Errorf("%w: %d of %d RL vehicles are not on the ring",
			core.ErrMissingVehicle, len(rlIDs)-len(sortedRL), len(rlIDs))
	}

	for i, id := range sortedRL {
		if err := e.registry.SetAcceleration(id, actions[i]); err != nil {
			return fmt.Errorf("apply action to %s: %w", id, err)
		}
	}
	return nil
}

// ObserveState returns the observation centered on the first anchor of the
// centering policy, perturbed by the configured noise.
func (e *RingAccelEnv) ObserveState() (core.Observation, error) {
	return e.ObserveWith(e.params.Noise)
}

// ObserveWith is ObserveState with explicit noise parameters
func (e *RingAccelEnv) ObserveWith(noise Noise) (core.Observation, error) {
	views, err := e.observe(noise, true)
	if err != nil {
		return core.Observation{}, err
	}
	return views[0], nil
}

// ObserveViews returns one observation per anchor of the centering policy.
// With each-rl centering that is one view per RL vehicle.
func (e *RingAccelEnv) ObserveViews() ([]core.Observation, error) {
	return e.observe(e.params.Noise, false)
}

func (e *RingAccelEnv) observe(noise Noise, firstOnly bool) ([]core.Observation, error) {
	sorted, err := e.sortedVehicles()
	if err != nil {
		return nil, err
	}

	anchors, err := e.centering.Anchors(sorted)
	if err != nil {
		return nil, err
	}
	if firstOnly {
		anchors = anchors[:1]
	}

	s := NewSampler(noise, e.rng)
	views := make([]core.Observation, 0, len(anchors))
	for _, k := range anchors {
		obs, err := e.observer.Observe(rotate(sorted, k), e.registry.Get, e.scenario, s)
		if err != nil {
			return nil, err
		}
		views = append(views, obs)
	}
	return views, nil
}

// sortedVehicles resolves every sorted id against the registry
func (e *RingAccelEnv) sortedVehicles() ([]core.Vehicle, error) {
	ids := e.registry.SortedIDs()
	if len(ids) != e.scenario.NumVehicles {
		return nil, fmt.Errorf("%w: registry holds %d vehicles, scenario expects %d",
			core.ErrMissingVehicle, len(ids), e.scenario.NumVehicles)
	}

	sorted := make([]core.Vehicle, 0, len(ids))
	for _, id := range ids {
		v, err := e.registry.Get(id)
		if err != nil {
			return nil, err
		}
		sorted = append(sorted, v)
	}
	return sorted, nil
}

// ComputeReward scores state with the configured reward strategy and
// target velocity. It reads the registry only when the strategy scores the
// whole fleet.
func (e *RingAccelEnv) ComputeReward(state core.Observation, actions []float64, fail bool) (float64, error) {
	in := reward.Input{
		Observed:       state.Speeds,
		Actions:        actions,
		Fail:           fail,
		TargetVelocity: e.params.TargetVelocity,
	}
	if e.reward.Name() == reward.GlobalDesiredVelocityName {
		fleet, err := e.fleetSpeeds()
		if err != nil {
			return 0, err
		}
		in.Fleet = fleet
	}
	return e.reward.Reward(in), nil
}

func (e *RingAccelEnv) fleetSpeeds() ([]float64, error) {
	ids := e.registry.SortedIDs()
	speeds := make([]float64, 0, len(ids))
	for _, id := range ids {
		v, err := e.registry.Get(id)
		if err != nil {
			return nil, err
		}
		speeds = append(speeds, v.Speed)
	}
	return speeds, nil
}

// Render publishes the current observation. Without a broker it is logged.
func (e *RingAccelEnv) Render() {
	e.RenderStep(0)
}

// RenderStep is Render with the driver's step counter attached
func (e *RingAccelEnv) RenderStep(step int) {
	obs, err := e.ObserveState()
	if err != nil {
		log.Printf("render %s: %v", e.id, err)
		return
	}

	if e.broker == nil {
		log.Printf("current state/velocity: speeds=%v positions=%v", obs.Speeds, obs.Positions)
		return
	}
	if err := e.broker.Publish(messaging.Message{
		From:      e.id,
		Topic:     messaging.TopicObservation,
		Step:      step,
		Content:   obs,
		Timestamp: time.Now(),
	}); err != nil {
		log.Printf("render %s: %v", e.id, err)
	}
}
