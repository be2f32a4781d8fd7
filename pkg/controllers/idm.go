package controllers

import (
	"math"
	"math/rand"

	"github.com/samber/lo"
)

// idmDelta is the free-road acceleration exponent
const idmDelta = 4

// IDM is the intelligent driver model used for human-driven vehicles
type IDM struct {
	BaseController
	MaxAccel     float64 // m/s²
	ComfortDecel float64 // m/s², positive
	DesiredSpeed float64 // m/s
	TimeHeadway  float64 // s
	MinGap       float64 // m
	rng          *rand.Rand
}

// IDMParams are the tunable parameters of the model
type IDMParams struct {
	MaxAccel     float64 `yaml:"max_accel"`
	ComfortDecel float64 `yaml:"comfort_decel"`
	DesiredSpeed float64 `yaml:"desired_speed"`
	TimeHeadway  float64 `yaml:"time_headway"`
	MinGap       float64 `yaml:"min_gap"`
	Noise        float64 `yaml:"noise"`
}

// DefaultIDMParams are commonly used values for ring-road experiments
func DefaultIDMParams() IDMParams {
	return IDMParams{
		MaxAccel:     1,
		ComfortDecel: 1.5,
		DesiredSpeed: 30,
		TimeHeadway:  1,
		MinGap:       2,
	}
}

func NewIDM(vehicleID string, maxDeaccel float64, p IDMParams, rng *rand.Rand) *IDM {
	return &IDM{
		BaseController: NewBaseController(vehicleID, maxDeaccel, 0, p.Noise),
		MaxAccel:       p.MaxAccel,
		ComfortDecel:   math.Abs(p.ComfortDecel),
		DesiredSpeed:   p.DesiredSpeed,
		TimeHeadway:    p.TimeHeadway,
		MinGap:         p.MinGap,
		rng:            rng,
	}
}

// Accel implements Controller. The result is clamped to
// [-MaxDeaccel, MaxAccel]; a non-positive headway brakes as hard as allowed.
func (m *IDM) Accel(view NeighborView) float64 {
	var acc float64
	switch {
	case !view.HasLeader:
		acc = m.MaxAccel * (1 - math.Pow(view.Speed/m.DesiredSpeed, idmDelta))
	case view.Headway <= 0:
		acc = math.Inf(-1)
	default:
		// https://en.wikipedia.org/wiki/Intelligent_driver_model
		sStar := m.MinGap + math.Max(0,
			view.Speed*m.TimeHeadway+view.Speed*(view.Speed-view.LeaderSpeed)/(2*math.Sqrt(m.MaxAccel*m.ComfortDecel)))
		acc = m.MaxAccel * (1 - math.Pow(view.Speed/m.DesiredSpeed, idmDelta) - math.Pow(sStar/view.Headway, 2))
	}
	return lo.Clamp(m.WithNoise(acc, m.rng), -m.MaxDeaccel, m.MaxAccel)
}
