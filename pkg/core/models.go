package core

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Kind tags a vehicle as learner-controlled or human-driven
type Kind string

const (
	KindRL    Kind = "rl"
	KindHuman Kind = "human"
)

// Vehicle is the per-step telemetry record kept by a VehicleRegistry
type Vehicle struct {
	ID               string
	Kind             Kind
	Speed            float64 // m/s
	AbsolutePosition float64 // metres travelled along the ring, grows without bound
	Headway          float64 // metres to the leader's rear bumper
	LeaderID         string
	FollowerID       string
}

func (v Vehicle) IsRL() bool {
	return v.Kind == KindRL
}

// Scenario is the static ring geometry
type Scenario struct {
	Length        float64 `yaml:"length"` // ring circumference, metres
	NumVehicles   int     `yaml:"num_vehicles"`
	NumRLVehicles int     `yaml:"num_rl_vehicles"`
}

func (s Scenario) Validate() error {
	if s.Length <= 0 {
		return fmt.Errorf("ring length must be positive, got %v", s.Length)
	}
	if s.NumVehicles <= 0 {
		return fmt.Errorf("num_vehicles must be positive, got %d", s.NumVehicles)
	}
	if s.NumRLVehicles < 0 || s.NumRLVehicles > s.NumVehicles {
		return fmt.Errorf("num_rl_vehicles must be in [0, %d], got %d", s.NumVehicles, s.NumRLVehicles)
	}
	return nil
}

// Observation is what the agent sees after a step: two parallel sequences
// ordered by the environment's centering policy.
type Observation struct {
	IDs       []string
	Speeds    []float64
	Positions []float64
}

func (o Observation) Len() int {
	return len(o.Speeds)
}

// Matrix returns the observation as a 2xN matrix, speeds in row 0 and
// positions in row 1.
func (o Observation) Matrix() *mat.Dense {
	n := o.Len()
	if n == 0 {
		return &mat.Dense{}
	}
	data := make([]float64, 0, 2*n)
	data = append(data, o.Speeds...)
	data = append(data, o.Positions...)
	return mat.NewDense(2, n, data)
}

// StepResult is the outcome of one driver step
type StepResult struct {
	Step        int
	Observation Observation
	Actions     []float64
	Reward      float64
	Fail        bool
	Timestamp   time.Time
}

type ExperimentStatus struct {
	Running   bool
	RunID     string
	Episode   int
	Step      int
	StartTime time.Time
	EndTime   time.Time
	Errors    []error
}

// EpisodeSummary is published when an episode ends
type EpisodeSummary struct {
	RunID   string
	Episode int
	Steps   int
	Return  float64
	Failed  bool
}
