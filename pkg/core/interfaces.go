package core

import (
	"errors"

	"github.com/boristopalov/ringrl/pkg/spaces"
)

var (
	// ErrShapeMismatch is returned when an action vector does not have one
	// entry per RL vehicle.
	ErrShapeMismatch = errors.New("action shape mismatch")
	// ErrMissingVehicle means the scenario and the registry disagree about
	// which vehicles exist.
	ErrMissingVehicle = errors.New("vehicle missing from registry")
	// ErrDegenerateCentering is returned when the number of RL vehicles
	// does not fit the configured centering policy.
	ErrDegenerateCentering = errors.New("degenerate centering")
)

// VehicleRegistry is the simulator-side view of vehicle telemetry
type VehicleRegistry interface {
	// Get returns the current record for id
	Get(id string) (Vehicle, error)
	// SortedIDs returns every vehicle id ordered by position along the ring
	SortedIDs() []string
	// RLIDs returns the ids of RL-controlled vehicles
	RLIDs() []string
	// SetAcceleration forwards a commanded acceleration to a vehicle
	SetAcceleration(id string, accel float64) error
}

// Environment translates between simulator state and the RL agent
type Environment interface {
	// ActionSpace describes one acceleration per RL vehicle
	ActionSpace() spaces.Box
	// ObservationSpace describes the speed and position sequences
	ObservationSpace() spaces.Product
	// ApplyRLActions forwards accelerations to RL vehicles in ring order
	ApplyRLActions(actions []float64) error
	// ObserveState builds the observation for the current step
	ObserveState() (Observation, error)
	// ComputeReward scores a state
	ComputeReward(state Observation, actions []float64, fail bool) (float64, error)
	// Render shows the current observation to any observers
	Render()
}
