package environment

import (
	"fmt"

	"github.com/boristopalov/ringrl/pkg/core"
)

const (
	CenterFirstRL = "first-rl"
	CenterNone    = "none"
	CenterEachRL  = "each-rl"
)

// Centering picks the vehicles an observation is rotated to start at
type Centering interface {
	Name() string
	// Anchors returns indices into the position-sorted vehicles
	Anchors(sorted []core.Vehicle) ([]int, error)
}

// LookupCentering returns the centering policy registered under name. An
// empty name selects first-rl.
func LookupCentering(name string) (Centering, error) {
	switch name {
	case "", CenterFirstRL:
		return firstRL{}, nil
	case CenterNone:
		return noCentering{}, nil
	case CenterEachRL:
		return eachRL{}, nil
	default:
		return nil, fmt.Errorf("unknown centering policy %q", name)
	}
}

func rlIndices(sorted []core.Vehicle) []int {
	var idx []int
	for i, v := range sorted {
		if v.IsRL() {
			idx = append(idx, i)
		}
	}
	return idx
}

// firstRL centers on the single RL vehicle of the ring
type firstRL struct{}

func (firstRL) Name() string { return CenterFirstRL }

func (firstRL) Anchors(sorted []core.Vehicle) ([]int, error) {
	idx := rlIndices(sorted)
	if len(idx) != 1 {
		return nil, fmt.Errorf("%w: %s needs exactly one RL vehicle, found %d",
			core.ErrDegenerateCentering, CenterFirstRL, len(idx))
	}
	return idx, nil
}

type noCentering struct{}

func (noCentering) Name() string { return CenterNone }

func (noCentering) Anchors(sorted []core.Vehicle) ([]int, error) {
	return []int{0}, nil
}

// eachRL yields one view per RL vehicle
type eachRL struct{}

func (eachRL) Name() string { return CenterEachRL }

func (eachRL) Anchors(sorted []core.Vehicle) ([]int, error) {
	idx := rlIndices(sorted)
	if len(idx) == 0 {
		return nil, fmt.Errorf("%w: %s needs at least one RL vehicle",
			core.ErrDegenerateCentering, CenterEachRL)
	}
	return idx, nil
}

// rotate returns sorted starting at index k and wrapping around
func rotate(sorted []core.Vehicle, k int) []core.Vehicle {
	out := make([]core.Vehicle, 0, len(sorted))
	out = append(out, sorted[k:]...)
	return append(out, sorted[:k]...)
}
