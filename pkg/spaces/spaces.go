// Package spaces provides declarative bounded-box and product descriptions
// of action and observation shapes.
package spaces

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Box is an n-dimensional closed interval [Low, High]. Bounds may be
// infinite.
type Box struct {
	Low  *mat.VecDense
	High *mat.VecDense
}

// NewBox constructs a box from explicit per-dimension bounds
func NewBox(low, high []float64) Box {
	if len(low) != len(high) {
		panic(fmt.Sprintf("lower bound length %v must match upper bound length %v",
			len(low), len(high)))
	}
	for i := range low {
		if low[i] > high[i] {
			panic(fmt.Sprintf("dimension %d: lower bound %v above upper bound %v", i, low[i], high[i]))
		}
	}
	return Box{
		Low:  vec(low),
		High: vec(high),
	}
}

// Uniform constructs a box with the same bounds in every dimension
func Uniform(low, high float64, dim int) Box {
	lo := make([]float64, dim)
	hi := make([]float64, dim)
	for i := 0; i < dim; i++ {
		lo[i] = low
		hi[i] = high
	}
	return NewBox(lo, hi)
}

// mat.NewVecDense panics on a zero length slice
func vec(data []float64) *mat.VecDense {
	if len(data) == 0 {
		return &mat.VecDense{}
	}
	return mat.NewVecDense(len(data), append([]float64(nil), data...))
}

func (b Box) Dim() int {
	if b.Low == nil {
		return 0
	}
	return b.Low.Len()
}

func (b Box) LowAt(i int) float64  { return b.Low.AtVec(i) }
func (b Box) HighAt(i int) float64 { return b.High.AtVec(i) }

// Contains reports whether x has the box's dimension and lies inside it
func (b Box) Contains(x []float64) bool {
	if len(x) != b.Dim() {
		return false
	}
	for i, v := range x {
		if math.IsNaN(v) || v < b.LowAt(i) || v > b.HighAt(i) {
			return false
		}
	}
	return true
}

// Clip returns a copy of x with every component clamped into the box
func (b Box) Clip(x []float64) ([]float64, error) {
	if len(x) != b.Dim() {
		return nil, fmt.Errorf("clip: got %d values for a %d-dimensional box", len(x), b.Dim())
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Min(math.Max(v, b.LowAt(i)), b.HighAt(i))
	}
	return out, nil
}

// Sample draws a point uniformly from the box. Dimensions with an infinite
// bound are sampled from a unit normal shifted onto the finite bound.
func (b Box) Sample(rng *rand.Rand) []float64 {
	out := make([]float64, b.Dim())
	for i := range out {
		lo, hi := b.LowAt(i), b.HighAt(i)
		switch {
		case !math.IsInf(lo, 0) && !math.IsInf(hi, 0):
			out[i] = lo + rng.Float64()*(hi-lo)
		case !math.IsInf(lo, 0):
			out[i] = lo + math.Abs(rng.NormFloat64())
		case !math.IsInf(hi, 0):
			out[i] = hi - math.Abs(rng.NormFloat64())
		default:
			out[i] = rng.NormFloat64()
		}
	}
	return out
}

func (b Box) String() string {
	if b.Dim() == 0 {
		return "Box(0)"
	}
	return fmt.Sprintf("Box(%d)[%v, %v]", b.Dim(), b.LowAt(0), b.HighAt(0))
}

// Product is an ordered tuple of boxes
type Product struct {
	Spaces []Box
}

func NewProduct(spaces ...Box) Product {
	return Product{Spaces: spaces}
}

// Dims returns the dimension of each component
func (p Product) Dims() []int {
	dims := make([]int, len(p.Spaces))
	for i, s := range p.Spaces {
		dims[i] = s.Dim()
	}
	return dims
}

// Contains reports whether each component of x lies in the matching box
func (p Product) Contains(x ...[]float64) bool {
	if len(x) != len(p.Spaces) {
		return false
	}
	for i, s := range p.Spaces {
		if !s.Contains(x[i]) {
			return false
		}
	}
	return true
}
