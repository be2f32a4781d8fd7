package controllers

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseController(t *testing.T) {
	c := NewBaseController("rl_0", -3, 0, 0)
	assert.Equal(t, 3.0, c.MaxDeaccel)

	t.Run("alone on the ring every action is safe", func(t *testing.T) {
		view := NeighborView{Speed: 10, Headway: 0.1, TimeStep: 0.1}
		assert.Equal(t, 5.0, c.SafeActionInstantaneous(view, 5))
		assert.Equal(t, 5.0, c.SafeAction(view, 5))
	})

	t.Run("instantaneous stop when the gap is too short", func(t *testing.T) {
		view := NeighborView{Speed: 10, Headway: 1, TimeStep: 0.1, HasLeader: true}
		assert.InDelta(t, -100, c.SafeActionInstantaneous(view, 2), 1e-9)

		view.Headway = 50
		assert.Equal(t, 2.0, c.SafeActionInstantaneous(view, 2))
	})

	t.Run("braking to a halt is left alone", func(t *testing.T) {
		view := NeighborView{Speed: 1, Headway: 0.01, TimeStep: 0.1, HasLeader: true}
		assert.Equal(t, -20.0, c.SafeActionInstantaneous(view, -20))
	})

	t.Run("safe velocity clips the action", func(t *testing.T) {
		view := NeighborView{Speed: 10, LeaderSpeed: 10, Headway: 0.5, TimeStep: 1, HasLeader: true}
		// safe velocity = 2*0.5/1 + 0 - 0 = 1
		assert.InDelta(t, -9, c.SafeAction(view, 3), 1e-9)

		view.Headway = 100
		assert.Equal(t, 3.0, c.SafeAction(view, 3))
	})

	t.Run("delay lowers the safe velocity", func(t *testing.T) {
		view := NeighborView{Speed: 10, LeaderSpeed: 12, Headway: 20, TimeStep: 1, HasLeader: true}
		delayed := NewBaseController("rl_0", 3, 0.5, 0)
		assert.InDelta(t, 42, c.SafeVelocity(view), 1e-9)
		assert.InDelta(t, 32, delayed.SafeVelocity(view), 1e-9)
	})

	t.Run("noise needs a source", func(t *testing.T) {
		noisy := NewBaseController("rl_0", 3, 0, 1)
		assert.Equal(t, 1.0, noisy.WithNoise(1, nil))
		assert.NotEqual(t, 1.0, noisy.WithNoise(1, rand.New(rand.NewSource(3))))
		assert.Equal(t, 1.0, c.WithNoise(1, rand.New(rand.NewSource(3))))
	})
}

func TestIDM(t *testing.T) {
	m := NewIDM("human_0", 5, DefaultIDMParams(), nil)

	t.Run("free road accelerates below desired speed", func(t *testing.T) {
		acc := m.Accel(NeighborView{Speed: 0, TimeStep: 0.1})
		assert.InDelta(t, 1, acc, 1e-9)
	})

	t.Run("equilibrium gap gives near zero acceleration", func(t *testing.T) {
		// s* = 2 + 10*1 = 12; choose the gap so the interaction term balances
		acc := m.Accel(NeighborView{Speed: 10, LeaderSpeed: 10, Headway: 12.0 / 0.9938079899999, TimeStep: 0.1, HasLeader: true})
		assert.InDelta(t, 0, acc, 1e-3)
	})

	t.Run("close leader brakes, bounded by max deceleration", func(t *testing.T) {
		acc := m.Accel(NeighborView{Speed: 20, LeaderSpeed: 0, Headway: 3, TimeStep: 0.1, HasLeader: true})
		assert.Equal(t, -5.0, acc)
	})

	t.Run("collision brakes fully", func(t *testing.T) {
		acc := m.Accel(NeighborView{Speed: 5, Headway: -1, TimeStep: 0.1, HasLeader: true})
		assert.Equal(t, -5.0, acc)
	})

	t.Run("never exceeds max acceleration", func(t *testing.T) {
		noisy := NewIDM("human_1", 5, IDMParams{MaxAccel: 1, ComfortDecel: 1.5, DesiredSpeed: 30, TimeHeadway: 1, MinGap: 2, Noise: 10}, rand.New(rand.NewSource(1)))
		for i := 0; i < 50; i++ {
			acc := noisy.Accel(NeighborView{Speed: 0, TimeStep: 0.1})
			assert.LessOrEqual(t, acc, 1.0)
			assert.GreaterOrEqual(t, acc, -5.0)
		}
	})
}
