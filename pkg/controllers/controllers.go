// Package controllers computes accelerations for vehicles on the ring.
//
// BaseController holds the parameters every controller shares: the
// braking limit, an actuation delay and Gaussian acceleration noise. It
// also provides the safe-action filters that stop a requested acceleration
// from driving a vehicle into its leader within one step.
package controllers

import (
	"math"
	"math/rand"
)

// NeighborView is what a controller sees of its vehicle and its leader
type NeighborView struct {
	Speed       float64
	LeaderSpeed float64
	Headway     float64
	HasLeader   bool // false when the vehicle is alone on the ring
	TimeStep    float64
}

// Controller produces an acceleration for one vehicle
type Controller interface {
	Accel(view NeighborView) float64
}

// BaseController carries parameters shared by every controller
type BaseController struct {
	VehicleID  string
	MaxDeaccel float64 // stored as a magnitude
	Delay      float64 // seconds
	Noise      float64 // std of the acceleration noise, 0 disables it
}

func NewBaseController(vehicleID string, maxDeaccel, delay, noise float64) BaseController {
	return BaseController{
		VehicleID:  vehicleID,
		MaxDeaccel: math.Abs(maxDeaccel),
		Delay:      delay,
		Noise:      noise,
	}
}

// WithNoise adds acceleration noise to accel when the controller is noisy
func (c BaseController) WithNoise(accel float64, rng *rand.Rand) float64 {
	if c.Noise > 0 && rng != nil {
		accel += rng.NormFloat64() * c.Noise
	}
	return accel
}

// SafeActionInstantaneous returns action unless following it would put the
// vehicle into its (assumed stopped) leader during the next step; in that
// case it returns the acceleration that stops the vehicle within the step.
func (c BaseController) SafeActionInstantaneous(view NeighborView, action float64) float64 {
	if !view.HasLeader {
		return action
	}

	dt := view.TimeStep
	nextVel := view.Speed + action*dt
	if nextVel <= 0 {
		return action
	}

	// the extra terms conservatively cover the distance covered while
	// braking to a halt
	if view.Headway < dt*nextVel+view.Speed*1e-3+0.5*view.Speed*dt {
		return -view.Speed / dt
	}
	return action
}

// SafeAction clips action so the next speed does not exceed SafeVelocity
func (c BaseController) SafeAction(view NeighborView, action float64) float64 {
	if !view.HasLeader {
		return action
	}

	safe := c.SafeVelocity(view)
	if view.Speed+action*view.TimeStep > safe {
		return (safe - view.Speed) / view.TimeStep
	}
	return action
}

// SafeVelocity is the highest speed from which the vehicle can still stop
// at zero headway if its leader stopped dead, given the actuation delay.
func (c BaseController) SafeVelocity(view NeighborView) float64 {
	dv := view.LeaderSpeed - view.Speed
	return 2*view.Headway/view.TimeStep + dv - view.Speed*(2*c.Delay)
}
