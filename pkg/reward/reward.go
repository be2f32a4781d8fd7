// Package reward scores ring-road states for the learning agent.
package reward

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// removedSpeed is the speed below which the simulator reports a vehicle
// that has left the network.
const removedSpeed = -100

// DesiredVelocity rewards states whose speeds are all close to target. The
// value is the norm of the all-target speed vector minus the distance
// between speeds and that vector, floored at zero, so it peaks at
// target*sqrt(n) when every vehicle drives at target. A failed state scores
// zero.
func DesiredVelocity(speeds, actions []float64, fail bool, target float64) float64 {
	if fail || len(speeds) == 0 {
		return 0
	}
	for _, v := range speeds {
		if v < removedSpeed {
			return 0
		}
	}

	want := make([]float64, len(speeds))
	for i := range want {
		want[i] = target
	}
	maxCost := floats.Norm(want, 2)
	cost := floats.Distance(speeds, want, 2)
	return math.Max(maxCost-cost, 0)
}

// Input carries everything a Strategy may score
type Input struct {
	// Observed are the speeds the agent saw
	Observed []float64
	// Fleet are the speeds of every vehicle in the registry
	Fleet          []float64
	Actions        []float64
	Fail           bool
	TargetVelocity float64
}

// Strategy is a named reward shaping
type Strategy interface {
	Name() string
	Reward(in Input) float64
}

const (
	DesiredVelocityName       = "desired-velocity"
	GlobalDesiredVelocityName = "global-desired-velocity"
)

// Desired scores the observed speeds
type Desired struct{}

func (Desired) Name() string { return DesiredVelocityName }

func (Desired) Reward(in Input) float64 {
	return DesiredVelocity(in.Observed, in.Actions, in.Fail, in.TargetVelocity)
}

// GlobalDesired scores every vehicle on the ring regardless of what the
// agent observed. Use it with partial observations.
type GlobalDesired struct{}

func (GlobalDesired) Name() string { return GlobalDesiredVelocityName }

func (GlobalDesired) Reward(in Input) float64 {
	return DesiredVelocity(in.Fleet, in.Actions, in.Fail, in.TargetVelocity)
}

// Lookup returns the strategy registered under name. An empty name selects
// the desired-velocity reward.
func Lookup(name string) (Strategy, error) {
	switch name {
	case "", DesiredVelocityName:
		return Desired{}, nil
	case GlobalDesiredVelocityName:
		return GlobalDesired{}, nil
	default:
		return nil, fmt.Errorf("unknown reward strategy %q", name)
	}
}
