package environment

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/boristopalov/ringrl/pkg/core"
	"github.com/boristopalov/ringrl/pkg/spaces"
)

const (
	ObserveScaledRing = "scaled-ring"
	ObserveAbsolute   = "absolute"
	ObservePartial    = "partial"
)

// partialWidth is the follower, self and leader triple
const partialWidth = 3

// Noise perturbs observed speeds and positions with Gaussian noise. The
// zero value disables it.
type Noise struct {
	VelocityMean float64 `yaml:"velocity_mean"`
	VelocityStd  float64 `yaml:"velocity_std"`
	PositionMean float64 `yaml:"position_mean"`
	PositionStd  float64 `yaml:"position_std"`
}

func (n Noise) Enabled() bool {
	return n.VelocityStd > 0 || n.PositionStd > 0 || n.VelocityMean != 0 || n.PositionMean != 0
}

// Sampler draws observation noise from an explicit source
type Sampler struct {
	noise Noise
	rng   *rand.Rand
}

func NewSampler(noise Noise, rng *rand.Rand) Sampler {
	return Sampler{noise: noise, rng: rng}
}

// Speed perturbs a speed; the result never goes negative
func (s Sampler) Speed(v float64) float64 {
	if s.rng == nil || (s.noise.VelocityStd == 0 && s.noise.VelocityMean == 0) {
		return v
	}
	return math.Max(0, v+s.noise.VelocityMean+s.rng.NormFloat64()*s.noise.VelocityStd)
}

func (s Sampler) Position(p float64) float64 {
	if s.rng == nil || (s.noise.PositionStd == 0 && s.noise.PositionMean == 0) {
		return p
	}
	return p + s.noise.PositionMean + s.rng.NormFloat64()*s.noise.PositionStd
}

// VehicleLookup resolves neighbors by id
type VehicleLookup func(id string) (core.Vehicle, error)

// ObservationStrategy turns a centered vehicle ordering into an observation
type ObservationStrategy interface {
	Name() string
	// Space is the declared observation space for the scenario
	Space(scn core.Scenario) spaces.Product
	// Observe builds the observation; order[0] is the anchor vehicle
	Observe(order []core.Vehicle, lookup VehicleLookup, scn core.Scenario, s Sampler) (core.Observation, error)
}

// LookupObservation returns the strategy registered under name. An empty
// name selects scaled-ring.
func LookupObservation(name string) (ObservationStrategy, error) {
	switch name {
	case "", ObserveScaledRing:
		return scaledRing{}, nil
	case ObserveAbsolute:
		return absolute{}, nil
	case ObservePartial:
		return partial{}, nil
	default:
		return nil, fmt.Errorf("unknown observation strategy %q", name)
	}
}

// ScaledPosition maps an absolute position onto [0, 1) as a fraction of
// the ring.
func ScaledPosition(absolute, length float64) float64 {
	p := math.Mod(absolute, length)
	if p < 0 {
		p += length
	}
	if p >= length {
		return 0
	}
	return p / length
}

// scaledRing reports raw speeds and ring-relative positions for every
// vehicle
type scaledRing struct{}

func (scaledRing) Name() string { return ObserveScaledRing }

// The declared position bound is closed at 1 although Observe never
// returns 1.
func (scaledRing) Space(scn core.Scenario) spaces.Product {
	return spaces.NewProduct(
		spaces.Uniform(0, math.Inf(1), scn.NumVehicles),
		spaces.Uniform(0, 1, scn.NumVehicles),
	)
}

func (scaledRing) Observe(order []core.Vehicle, _ VehicleLookup, scn core.Scenario, s Sampler) (core.Observation, error) {
	obs := newObservation(len(order))
	for _, v := range order {
		obs.IDs = append(obs.IDs, v.ID)
		obs.Speeds = append(obs.Speeds, s.Speed(v.Speed))
		obs.Positions = append(obs.Positions, ScaledPosition(s.Position(v.AbsolutePosition), scn.Length))
	}
	return obs, nil
}

// absolute reports raw speeds and raw absolute positions
type absolute struct{}

func (absolute) Name() string { return ObserveAbsolute }

func (absolute) Space(scn core.Scenario) spaces.Product {
	return spaces.NewProduct(
		spaces.Uniform(0, math.Inf(1), scn.NumVehicles),
		spaces.Uniform(0, math.Inf(1), scn.NumVehicles),
	)
}

func (absolute) Observe(order []core.Vehicle, _ VehicleLookup, _ core.Scenario, s Sampler) (core.Observation, error) {
	obs := newObservation(len(order))
	for _, v := range order {
		obs.IDs = append(obs.IDs, v.ID)
		obs.Speeds = append(obs.Speeds, s.Speed(v.Speed))
		obs.Positions = append(obs.Positions, math.Max(0, s.Position(v.AbsolutePosition)))
	}
	return obs, nil
}

// partial sees only the first RL vehicle of the ordering and its immediate
// neighbors. Speeds are (follower, self, leader); positions are (follower
// headway, own absolute position, own headway).
type partial struct{}

func (partial) Name() string { return ObservePartial }

func (partial) Space(core.Scenario) spaces.Product {
	return spaces.NewProduct(
		spaces.Uniform(0, math.Inf(1), partialWidth),
		spaces.Uniform(0, math.Inf(1), partialWidth),
	)
}

func (partial) Observe(order []core.Vehicle, lookup VehicleLookup, _ core.Scenario, s Sampler) (core.Observation, error) {
	var self *core.Vehicle
	for i := range order {
		if order[i].IsRL() {
			self = &order[i]
			break
		}
	}
	if self == nil {
		return core.Observation{}, fmt.Errorf("%w: %s needs an RL vehicle", core.ErrDegenerateCentering, ObservePartial)
	}

	follower, err := lookup(self.FollowerID)
	if err != nil {
		return core.Observation{}, fmt.Errorf("follower of %s: %w", self.ID, err)
	}
	leader, err := lookup(self.LeaderID)
	if err != nil {
		return core.Observation{}, fmt.Errorf("leader of %s: %w", self.ID, err)
	}

	return core.Observation{
		IDs:       []string{follower.ID, self.ID, leader.ID},
		Speeds:    []float64{s.Speed(follower.Speed), s.Speed(self.Speed), s.Speed(leader.Speed)},
		Positions: []float64{follower.Headway, math.Max(0, s.Position(self.AbsolutePosition)), self.Headway},
	}, nil
}

func newObservation(n int) core.Observation {
	return core.Observation{
		IDs:       make([]string, 0, n),
		Speeds:    make([]float64, 0, n),
		Positions: make([]float64, 0, n),
	}
}
