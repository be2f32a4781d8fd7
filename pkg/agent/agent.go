package agent

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/boristopalov/ringrl/pkg/core"
	"github.com/boristopalov/ringrl/pkg/spaces"
	"github.com/google/uuid"
)

// Policy names accepted by New
const (
	PolicyConstant = "constant"
	PolicyRandom   = "random"
	PolicyLLM      = "llm"
)

// Policy maps an observation to one acceleration per RL vehicle
type Policy interface {
	GetID() string
	// Act returns an action inside space
	Act(ctx context.Context, obs core.Observation, space spaces.Box) ([]float64, error)
}

// ConstantPolicy commands the same acceleration for every RL vehicle
type ConstantPolicy struct {
	id    string
	value float64
}

func NewConstantPolicy(value float64) *ConstantPolicy {
	return &ConstantPolicy{
		id:    "constant-" + uuid.New().String(),
		value: value,
	}
}

func (p *ConstantPolicy) GetID() string {
	return p.id
}

func (p *ConstantPolicy) Act(ctx context.Context, obs core.Observation, space spaces.Box) ([]float64, error) {
	actions := make([]float64, space.Dim())
	for i := range actions {
		actions[i] = p.value
	}
	return space.Clip(actions)
}

// RandomPolicy samples uniformly from the action space
type RandomPolicy struct {
	id  string
	rng *rand.Rand
}

func NewRandomPolicy(rng *rand.Rand) *RandomPolicy {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RandomPolicy{
		id:  "random-" + uuid.New().String(),
		rng: rng,
	}
}

func (p *RandomPolicy) GetID() string {
	return p.id
}

func (p *RandomPolicy) Act(ctx context.Context, obs core.Observation, space spaces.Box) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return space.Sample(p.rng), nil
}

// New builds a policy by name. The llm policy needs a client option.
func New(name string, constant float64, rng *rand.Rand, opts ...PolicyOption) (Policy, error) {
	switch name {
	case "", PolicyConstant:
		return NewConstantPolicy(constant), nil
	case PolicyRandom:
		return NewRandomPolicy(rng), nil
	case PolicyLLM:
		p, err := NewLLMPolicy(opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown policy %q", name)
	}
}
