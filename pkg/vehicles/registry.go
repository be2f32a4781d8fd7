// Package vehicles keeps the per-step telemetry of every vehicle on the ring.
package vehicles

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/boristopalov/ringrl/pkg/core"
	"github.com/samber/lo"
)

// RLTag marks RL-controlled vehicles by naming convention
const RLTag = "rl"

// KindFor returns the kind implied by a vehicle id
func KindFor(id string) core.Kind {
	if strings.Contains(id, RLTag) {
		return core.KindRL
	}
	return core.KindHuman
}

// Registry is an in-memory core.VehicleRegistry for a ring of fixed length
type Registry struct {
	length        float64
	vehicleLength float64
	vehicles      map[string]*core.Vehicle
	order         []string // insertion order
	rlIDs         []string
	accel         map[string]float64
	mu            sync.RWMutex
}

// NewRegistry creates an empty registry for a ring of the given length.
// vehicleLength is subtracted from bumper-to-bumper gaps when computing
// headways.
func NewRegistry(length, vehicleLength float64) *Registry {
	return &Registry{
		length:        length,
		vehicleLength: vehicleLength,
		vehicles:      make(map[string]*core.Vehicle),
		accel:         make(map[string]float64),
	}
}

// Add registers a vehicle at an absolute position. The RL tag is derived
// from the id.
func (r *Registry) Add(id string, speed, absolutePosition float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.vehicles[id]; exists {
		return fmt.Errorf("vehicle %s is already registered", id)
	}
	kind := KindFor(id)
	r.vehicles[id] = &core.Vehicle{
		ID:               id,
		Kind:             kind,
		Speed:            speed,
		AbsolutePosition: absolutePosition,
	}
	r.order = append(r.order, id)
	if kind == core.KindRL {
		r.rlIDs = append(r.rlIDs, id)
	}
	return nil
}

func (r *Registry) Length() float64 {
	return r.length
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.vehicles)
}

// Get implements core.VehicleRegistry
func (r *Registry) Get(id string) (core.Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.vehicles[id]
	if !ok {
		return core.Vehicle{}, fmt.Errorf("%w: %s", core.ErrMissingVehicle, id)
	}
	return *v, nil
}

// IDs returns every id in insertion order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// SortedIDs implements core.VehicleRegistry. Vehicles are ordered by their
// position on the ring, ties broken by id.
func (r *Registry) SortedIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked()
}

func (r *Registry) sortedLocked() []string {
	ids := append([]string(nil), r.order...)
	sort.SliceStable(ids, func(i, j int) bool {
		pi := r.ringPos(r.vehicles[ids[i]].AbsolutePosition)
		pj := r.ringPos(r.vehicles[ids[j]].AbsolutePosition)
		if pi != pj {
			return pi < pj
		}
		return ids[i] < ids[j]
	})
	return ids
}

func (r *Registry) ringPos(abs float64) float64 {
	p := math.Mod(abs, r.length)
	if p < 0 {
		p += r.length
	}
	return p
}

// RLIDs implements core.VehicleRegistry
func (r *Registry) RLIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.rlIDs...)
}

// HumanIDs returns the ids without the RL tag, in insertion order
func (r *Registry) HumanIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Filter(r.order, func(id string, _ int) bool {
		return r.vehicles[id].Kind == core.KindHuman
	})
}

// SetAcceleration implements core.VehicleRegistry. The command is held until
// the simulator consumes it with TakeAcceleration.
func (r *Registry) SetAcceleration(id string, accel float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.vehicles[id]; !ok {
		return fmt.Errorf("set acceleration: %w: %s", core.ErrMissingVehicle, id)
	}
	r.accel[id] = accel
	return nil
}

// TakeAcceleration returns and clears the pending command for id
func (r *Registry) TakeAcceleration(id string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accel[id]
	delete(r.accel, id)
	return a, ok
}

// Update overwrites the kinematic state of a vehicle
func (r *Registry) Update(id string, speed, absolutePosition float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.vehicles[id]
	if !ok {
		return fmt.Errorf("update: %w: %s", core.ErrMissingVehicle, id)
	}
	v.Speed = speed
	v.AbsolutePosition = absolutePosition
	return nil
}

// RefreshNeighbors recomputes leader, follower and headway for every
// vehicle from the current positions. With a single vehicle the vehicle is
// its own leader and the headway is the ring length minus its own length.
func (r *Registry) RefreshNeighbors() {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.sortedLocked()
	n := len(ids)
	for i, id := range ids {
		leader := ids[(i+1)%n]
		follower := ids[(i-1+n)%n]
		v := r.vehicles[id]

		gap := r.ringPos(r.vehicles[leader].AbsolutePosition) - r.ringPos(v.AbsolutePosition)
		if i == n-1 {
			gap += r.length
		}
		v.LeaderID = leader
		v.FollowerID = follower
		v.Headway = gap - r.vehicleLength
	}
}

// Reset drops every vehicle and pending command
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.vehicles = make(map[string]*core.Vehicle)
	r.accel = make(map[string]float64)
	r.order = nil
	r.rlIDs = nil
}
