// Package simulator advances vehicles around a single-lane ring in fixed
// timesteps.
//
// Each step has two passes over a snapshot of the registry:
//
//  1. Control pass - every vehicle gets an acceleration. Human-driven
//     vehicles follow the intelligent driver model; RL vehicles use the
//     command left in the registry by the environment, passed through the
//     configured safe-action filter.
//
//  2. Motion pass - speeds and positions are integrated over dt and
//     neighbors are refreshed. A non-positive headway afterwards is a
//     collision and fails the step.
package simulator

import (
	"fmt"
	"math/rand"

	"github.com/boristopalov/ringrl/pkg/controllers"
	"github.com/boristopalov/ringrl/pkg/core"
	"github.com/boristopalov/ringrl/pkg/vehicles"
)

// Safe-action filters applied to RL commands
const (
	SafeNone          = "none"
	SafeInstantaneous = "instantaneous"
	SafeVelocity      = "velocity"
)

type Config struct {
	TimeStep      float64               `yaml:"time_step"`      // seconds
	VehicleLength float64               `yaml:"vehicle_length"` // metres
	InitialSpeed  float64               `yaml:"initial_speed"`  // m/s
	Jitter        float64               `yaml:"jitter"`         // metres of uniform noise on initial spacing
	MaxDeacc      float64               `yaml:"max_deacc"`      // braking limit for every vehicle, magnitude
	SafeMode      string                `yaml:"safe_mode"`
	IDM           controllers.IDMParams `yaml:"idm"`
}

func DefaultConfig() Config {
	return Config{
		TimeStep:      0.1,
		VehicleLength: 5,
		InitialSpeed:  0,
		MaxDeacc:      5,
		SafeMode:      SafeInstantaneous,
		IDM:           controllers.DefaultIDMParams(),
	}
}

// Simulator owns the vehicle registry the environment reads
type Simulator struct {
	cfg      Config
	scenario core.Scenario
	registry *vehicles.Registry
	humans   map[string]controllers.Controller
	safety   map[string]controllers.BaseController
	rng      *rand.Rand
	steps    int
}

func New(cfg Config, scenario core.Scenario, rng *rand.Rand) (*Simulator, error) {
	if err := scenario.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if cfg.TimeStep <= 0 {
		return nil, fmt.Errorf("time_step must be positive, got %v", cfg.TimeStep)
	}
	if cfg.IDM.DesiredSpeed <= 0 {
		return nil, fmt.Errorf("idm desired_speed must be positive, got %v", cfg.IDM.DesiredSpeed)
	}
	if float64(scenario.NumVehicles)*cfg.VehicleLength >= scenario.Length {
		return nil, fmt.Errorf("%d vehicles of %v m do not fit on a %v m ring",
			scenario.NumVehicles, cfg.VehicleLength, scenario.Length)
	}
	switch cfg.SafeMode {
	case "", SafeNone, SafeInstantaneous, SafeVelocity:
	default:
		return nil, fmt.Errorf("unknown safe_mode %q", cfg.SafeMode)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	return &Simulator{
		cfg:      cfg,
		scenario: scenario,
		registry: vehicles.NewRegistry(scenario.Length, cfg.VehicleLength),
		rng:      rng,
	}, nil
}

// Registry is the telemetry the environment adapter reads
func (s *Simulator) Registry() *vehicles.Registry {
	return s.registry
}

func (s *Simulator) Steps() int {
	return s.steps
}

// Time returns the simulated seconds since the last reset
func (s *Simulator) Time() float64 {
	return float64(s.steps) * s.cfg.TimeStep
}

// VehicleID names the i-th vehicle; RL vehicles carry the RL tag
func VehicleID(i int, rl bool) string {
	if rl {
		return fmt.Sprintf("%s_%d", vehicles.RLTag, i)
	}
	return fmt.Sprintf("human_%d", i)
}

// Reset spaces the vehicles evenly around the ring with RL vehicles spread
// among them, and rebuilds their controllers.
func (s *Simulator) Reset() error {
	s.registry.Reset()
	s.humans = make(map[string]controllers.Controller)
	s.safety = make(map[string]controllers.BaseController)
	s.steps = 0

	n := s.scenario.NumVehicles
	spacing := s.scenario.Length / float64(n)
	jitter := s.cfg.Jitter
	if limit := (spacing - s.cfg.VehicleLength) / 2; jitter > limit {
		jitter = limit
	}

	rlSlots := make(map[int]bool, s.scenario.NumRLVehicles)
	for k := 0; k < s.scenario.NumRLVehicles; k++ {
		rlSlots[k*n/s.scenario.NumRLVehicles] = true
	}

	rlCount, humanCount := 0, 0
	for i := 0; i < n; i++ {
		pos := float64(i) * spacing
		if jitter > 0 {
			pos += (s.rng.Float64()*2 - 1) * jitter
			if pos < 0 {
				pos += s.scenario.Length
			}
		}

		var id string
		if rlSlots[i] {
			id = VehicleID(rlCount, true)
			rlCount++
			s.safety[id] = controllers.NewBaseController(id, s.cfg.MaxDeacc, 0, 0)
		} else {
			id = VehicleID(humanCount, false)
			humanCount++
			s.humans[id] = controllers.NewIDM(id, s.cfg.MaxDeacc, s.cfg.IDM, s.rng)
		}
		if err := s.registry.Add(id, s.cfg.InitialSpeed, pos); err != nil {
			return err
		}
	}
	s.registry.RefreshNeighbors()
	return nil
}

// Step advances every vehicle by one timestep. fail reports a collision.
func (s *Simulator) Step() (fail bool, err error) {
	if s.registry.Len() == 0 {
		return false, fmt.Errorf("step before reset")
	}

	dt := s.cfg.TimeStep
	ids := s.registry.SortedIDs()
	accels := make(map[string]float64, len(ids))

	for _, id := range ids {
		view, err := s.view(id)
		if err != nil {
			return false, err
		}
		if c, ok := s.humans[id]; ok {
			accels[id] = c.Accel(view)
			continue
		}
		cmd, _ := s.registry.TakeAcceleration(id)
		accels[id] = s.filter(id, view, cmd)
	}

	for _, id := range ids {
		v, err := s.registry.Get(id)
		if err != nil {
			return false, err
		}
		speed := v.Speed + accels[id]*dt
		if speed < 0 {
			speed = 0
		}
		if err := s.registry.Update(id, speed, v.AbsolutePosition+speed*dt); err != nil {
			return false, err
		}
	}
	s.registry.RefreshNeighbors()
	s.steps++

	if len(ids) < 2 {
		return false, nil
	}
	for _, id := range ids {
		v, err := s.registry.Get(id)
		if err != nil {
			return false, err
		}
		if v.Headway <= 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *Simulator) view(id string) (controllers.NeighborView, error) {
	v, err := s.registry.Get(id)
	if err != nil {
		return controllers.NeighborView{}, err
	}
	view := controllers.NeighborView{
		Speed:    v.Speed,
		Headway:  v.Headway,
		TimeStep: s.cfg.TimeStep,
	}
	if v.LeaderID == "" || v.LeaderID == id {
		return view, nil
	}
	leader, err := s.registry.Get(v.LeaderID)
	if err != nil {
		return controllers.NeighborView{}, err
	}
	view.HasLeader = true
	view.LeaderSpeed = leader.Speed
	return view, nil
}

func (s *Simulator) filter(id string, view controllers.NeighborView, cmd float64) float64 {
	c := s.safety[id]
	switch s.cfg.SafeMode {
	case SafeInstantaneous:
		return c.SafeActionInstantaneous(view, cmd)
	case SafeVelocity:
		return c.SafeAction(view, cmd)
	default:
		return cmd
	}
}
