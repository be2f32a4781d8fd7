package environment

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/boristopalov/ringrl/pkg/core"
	"github.com/boristopalov/ringrl/pkg/messaging"
	"github.com/boristopalov/ringrl/pkg/reward"
	"github.com/boristopalov/ringrl/pkg/vehicles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultParams = Params{
	MaxAcc:         3,
	MaxDeacc:       -5,
	TargetVelocity: 5,
}

type placement struct {
	id    string
	speed float64
	pos   float64
}

func newRegistry(t *testing.T, length float64, vs ...placement) *vehicles.Registry {
	t.Helper()
	r := vehicles.NewRegistry(length, 0)
	for _, v := range vs {
		require.NoError(t, r.Add(v.id, v.speed, v.pos))
	}
	r.RefreshNeighbors()
	return r
}

// five vehicles on a 100 m ring, the RL vehicle at 40 m
func fiveOnRing(t *testing.T) (*vehicles.Registry, core.Scenario) {
	t.Helper()
	r := newRegistry(t, 100,
		placement{"human_0", 5, 0},
		placement{"human_1", 5, 120}, // 20 on the ring
		placement{"rl_0", 5, 40},
		placement{"human_2", 5, 260}, // 60 on the ring
		placement{"human_3", 5, 80},
	)
	return r, core.Scenario{Length: 100, NumVehicles: 5, NumRLVehicles: 1}
}

func TestSpaces(t *testing.T) {
	for _, scn := range []core.Scenario{
		{Length: 100, NumVehicles: 5, NumRLVehicles: 1},
		{Length: 230, NumVehicles: 22, NumRLVehicles: 3},
		{Length: 10, NumVehicles: 1, NumRLVehicles: 0},
	} {
		env, err := NewRingAccelEnv(vehicles.NewRegistry(scn.Length, 0), scn, defaultParams)
		require.NoError(t, err)

		as := env.ActionSpace()
		require.Equal(t, scn.NumRLVehicles, as.Dim())
		for i := 0; i < as.Dim(); i++ {
			assert.Equal(t, -5.0, as.LowAt(i))
			assert.Equal(t, 3.0, as.HighAt(i))
		}

		os := env.ObservationSpace()
		assert.Equal(t, []int{scn.NumVehicles, scn.NumVehicles}, os.Dims())
		for i := 0; i < scn.NumVehicles; i++ {
			assert.Equal(t, 0.0, os.Spaces[0].LowAt(i))
			assert.True(t, math.IsInf(os.Spaces[0].HighAt(i), 1))
			assert.Equal(t, 1.0, os.Spaces[1].HighAt(i))
		}
	}

	t.Run("absolute positions are unbounded", func(t *testing.T) {
		scn := core.Scenario{Length: 100, NumVehicles: 4, NumRLVehicles: 1}
		p := defaultParams
		p.Observation = ObserveAbsolute
		env, err := NewRingAccelEnv(vehicles.NewRegistry(100, 0), scn, p)
		require.NoError(t, err)
		assert.True(t, math.IsInf(env.ObservationSpace().Spaces[1].HighAt(0), 1))
	})

	t.Run("partial observation is three wide", func(t *testing.T) {
		scn := core.Scenario{Length: 100, NumVehicles: 9, NumRLVehicles: 1}
		p := defaultParams
		p.Observation = ObservePartial
		env, err := NewRingAccelEnv(vehicles.NewRegistry(100, 0), scn, p)
		require.NoError(t, err)
		assert.Equal(t, []int{3, 3}, env.ObservationSpace().Dims())
	})
}

func TestNewRingAccelEnv(t *testing.T) {
	scn := core.Scenario{Length: 100, NumVehicles: 2, NumRLVehicles: 1}

	_, err := NewRingAccelEnv(nil, scn, defaultParams)
	assert.Error(t, err)

	_, err = NewRingAccelEnv(vehicles.NewRegistry(100, 0), core.Scenario{Length: 0, NumVehicles: 2}, defaultParams)
	assert.Error(t, err)

	for _, p := range []Params{
		{Centering: "middle"},
		{Observation: "lidar"},
		{Reward: "speed"},
		{MaxAcc: -1},
	} {
		_, err = NewRingAccelEnv(vehicles.NewRegistry(100, 0), scn, p)
		assert.Error(t, err, "%+v", p)
	}
}

func TestObserveState(t *testing.T) {
	t.Run("rotates the RL vehicle to the front", func(t *testing.T) {
		reg, scn := fiveOnRing(t)
		env, err := NewRingAccelEnv(reg, scn, defaultParams)
		require.NoError(t, err)

		obs, err := env.ObserveState()
		require.NoError(t, err)

		assert.Equal(t, []string{"rl_0", "human_2", "human_3", "human_0", "human_1"}, obs.IDs)
		require.Equal(t, scn.NumVehicles, len(obs.Speeds))
		require.Equal(t, scn.NumVehicles, len(obs.Positions))
		assert.InDelta(t, 0.4, obs.Positions[0], 1e-12)
		assert.InDelta(t, 0.6, obs.Positions[1], 1e-12)
		assert.InDelta(t, 0.8, obs.Positions[2], 1e-12)
		assert.InDelta(t, 0.0, obs.Positions[3], 1e-12)
		assert.InDelta(t, 0.2, obs.Positions[4], 1e-12)
		assert.True(t, env.ObservationSpace().Contains(obs.Speeds, obs.Positions))
	})

	t.Run("scaled positions agree with raw positions mod length", func(t *testing.T) {
		reg, scn := fiveOnRing(t)
		env, err := NewRingAccelEnv(reg, scn, defaultParams)
		require.NoError(t, err)

		obs, err := env.ObserveState()
		require.NoError(t, err)
		for i, id := range obs.IDs {
			v, err := reg.Get(id)
			require.NoError(t, err)
			assert.InDelta(t, math.Mod(v.AbsolutePosition, 100)/100, obs.Positions[i], 1e-12)
			assert.GreaterOrEqual(t, obs.Positions[i], 0.0)
			assert.Less(t, obs.Positions[i], 1.0)
		}
	})

	t.Run("RL vehicle first wherever it sits", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		for trial := 0; trial < 20; trial++ {
			reg := vehicles.NewRegistry(250, 0)
			n := 2 + rng.Intn(10)
			rlAt := rng.Intn(n)
			for i := 0; i < n; i++ {
				id := "human_" + string(rune('a'+i))
				if i == rlAt {
					id = "rl_0"
				}
				require.NoError(t, reg.Add(id, rng.Float64()*30, rng.Float64()*5000))
			}
			scn := core.Scenario{Length: 250, NumVehicles: n, NumRLVehicles: 1}
			env, err := NewRingAccelEnv(reg, scn, defaultParams)
			require.NoError(t, err)

			obs, err := env.ObserveState()
			require.NoError(t, err)
			self, err := reg.Get("rl_0")
			require.NoError(t, err)

			assert.Equal(t, "rl_0", obs.IDs[0])
			assert.Equal(t, self.Speed, obs.Speeds[0])
			assert.InDelta(t, ScaledPosition(self.AbsolutePosition, 250), obs.Positions[0], 1e-12)
			for _, p := range obs.Positions {
				assert.True(t, p >= 0 && p < 1, "position %v outside [0, 1)", p)
			}
		}
	})

	t.Run("no RL vehicle is degenerate", func(t *testing.T) {
		reg := newRegistry(t, 100, placement{"human_0", 1, 0}, placement{"human_1", 1, 50})
		env, err := NewRingAccelEnv(reg, core.Scenario{Length: 100, NumVehicles: 2}, defaultParams)
		require.NoError(t, err)

		_, err = env.ObserveState()
		assert.True(t, errors.Is(err, core.ErrDegenerateCentering))
	})

	t.Run("two RL vehicles are degenerate under first-rl", func(t *testing.T) {
		reg := newRegistry(t, 100, placement{"rl_0", 1, 0}, placement{"rl_1", 1, 50})
		env, err := NewRingAccelEnv(reg, core.Scenario{Length: 100, NumVehicles: 2, NumRLVehicles: 2}, defaultParams)
		require.NoError(t, err)

		_, err = env.ObserveState()
		assert.True(t, errors.Is(err, core.ErrDegenerateCentering))
	})

	t.Run("registry out of sync with scenario", func(t *testing.T) {
		reg, _ := fiveOnRing(t)
		env, err := NewRingAccelEnv(reg, core.Scenario{Length: 100, NumVehicles: 6, NumRLVehicles: 1}, defaultParams)
		require.NoError(t, err)

		_, err = env.ObserveState()
		assert.True(t, errors.Is(err, core.ErrMissingVehicle))
	})
}

func TestCenteringPolicies(t *testing.T) {
	twoRL := func(t *testing.T) (*vehicles.Registry, core.Scenario) {
		reg := newRegistry(t, 100,
			placement{"human_0", 1, 10},
			placement{"rl_0", 2, 30},
			placement{"human_1", 3, 50},
			placement{"rl_1", 4, 70},
		)
		return reg, core.Scenario{Length: 100, NumVehicles: 4, NumRLVehicles: 2}
	}

	t.Run("none keeps ring order", func(t *testing.T) {
		reg, scn := twoRL(t)
		p := defaultParams
		p.Centering = CenterNone
		env, err := NewRingAccelEnv(reg, scn, p)
		require.NoError(t, err)

		obs, err := env.ObserveState()
		require.NoError(t, err)
		assert.Equal(t, []string{"human_0", "rl_0", "human_1", "rl_1"}, obs.IDs)
	})

	t.Run("each-rl gives one view per RL vehicle", func(t *testing.T) {
		reg, scn := twoRL(t)
		p := defaultParams
		p.Centering = CenterEachRL
		env, err := NewRingAccelEnv(reg, scn, p)
		require.NoError(t, err)

		views, err := env.ObserveViews()
		require.NoError(t, err)
		require.Len(t, views, 2)
		assert.Equal(t, []string{"rl_0", "human_1", "rl_1", "human_0"}, views[0].IDs)
		assert.Equal(t, []string{"rl_1", "human_0", "rl_0", "human_1"}, views[1].IDs)

		obs, err := env.ObserveState()
		require.NoError(t, err)
		assert.Equal(t, views[0], obs)
	})

	t.Run("each-rl without RL vehicles", func(t *testing.T) {
		reg := newRegistry(t, 100, placement{"human_0", 1, 10})
		p := defaultParams
		p.Centering = CenterEachRL
		env, err := NewRingAccelEnv(reg, core.Scenario{Length: 100, NumVehicles: 1}, p)
		require.NoError(t, err)

		_, err = env.ObserveViews()
		assert.True(t, errors.Is(err, core.ErrDegenerateCentering))
	})
}

func TestObservationVariants(t *testing.T) {
	t.Run("partial sees follower, self and leader", func(t *testing.T) {
		reg, scn := fiveOnRing(t)
		p := defaultParams
		p.Observation = ObservePartial
		env, err := NewRingAccelEnv(reg, scn, p)
		require.NoError(t, err)

		obs, err := env.ObserveState()
		require.NoError(t, err)
		assert.Equal(t, []string{"human_1", "rl_0", "human_2"}, obs.IDs)
		assert.Equal(t, []float64{20, 40, 20}, obs.Positions)
	})

	t.Run("absolute keeps raw positions", func(t *testing.T) {
		reg, scn := fiveOnRing(t)
		p := defaultParams
		p.Observation = ObserveAbsolute
		env, err := NewRingAccelEnv(reg, scn, p)
		require.NoError(t, err)

		obs, err := env.ObserveState()
		require.NoError(t, err)
		assert.Equal(t, []float64{40, 260, 80, 0, 120}, obs.Positions)
	})

	t.Run("noise is reproducible and keeps positions on the ring", func(t *testing.T) {
		noise := Noise{VelocityStd: 0.5, PositionStd: 30}
		observe := func() core.Observation {
			reg, scn := fiveOnRing(t)
			p := defaultParams
			p.Noise = noise
			env, err := NewRingAccelEnv(reg, scn, p, WithRand(rand.New(rand.NewSource(42))))
			require.NoError(t, err)
			obs, err := env.ObserveState()
			require.NoError(t, err)
			return obs
		}

		a, b := observe(), observe()
		assert.Equal(t, a, b)
		assert.NotEqual(t, []float64{5, 5, 5, 5, 5}, a.Speeds)
		for i := range a.Speeds {
			assert.GreaterOrEqual(t, a.Speeds[i], 0.0)
			assert.True(t, a.Positions[i] >= 0 && a.Positions[i] < 1)
		}
	})

	t.Run("explicit zero noise overrides configuration", func(t *testing.T) {
		reg, scn := fiveOnRing(t)
		p := defaultParams
		p.Noise = Noise{VelocityStd: 3}
		env, err := NewRingAccelEnv(reg, scn, p, WithRand(rand.New(rand.NewSource(1))))
		require.NoError(t, err)

		obs, err := env.ObserveWith(Noise{})
		require.NoError(t, err)
		assert.Equal(t, []float64{5, 5, 5, 5, 5}, obs.Speeds)
	})
}

func TestApplyRLActions(t *testing.T) {
	t.Run("actions follow ring order, not id order", func(t *testing.T) {
		reg := newRegistry(t, 100,
			placement{"rl_b", 1, 10},
			placement{"human_0", 1, 40},
			placement{"rl_a", 1, 70},
		)
		env, err := NewRingAccelEnv(reg, core.Scenario{Length: 100, NumVehicles: 3, NumRLVehicles: 2}, defaultParams)
		require.NoError(t, err)

		require.NoError(t, env.ApplyRLActions([]float64{1.5, -2}))

		a, ok := reg.TakeAcceleration("rl_b")
		require.True(t, ok)
		assert.Equal(t, 1.5, a)
		a, ok = reg.TakeAcceleration("rl_a")
		require.True(t, ok)
		assert.Equal(t, -2.0, a)
		_, ok = reg.TakeAcceleration("human_0")
		assert.False(t, ok)
	})

	t.Run("wrong length is a shape mismatch", func(t *testing.T) {
		reg, scn := fiveOnRing(t)
		env, err := NewRingAccelEnv(reg, scn, defaultParams)
		require.NoError(t, err)

		err = env.ApplyRLActions([]float64{1, 2})
		assert.True(t, errors.Is(err, core.ErrShapeMismatch))
		_, ok := reg.TakeAcceleration("rl_0")
		assert.False(t, ok, "no prefix may be applied")

		assert.True(t, errors.Is(env.ApplyRLActions(nil), core.ErrShapeMismatch))
	})
}

func TestComputeReward(t *testing.T) {
	t.Run("all vehicles at target", func(t *testing.T) {
		reg, scn := fiveOnRing(t)
		env, err := NewRingAccelEnv(reg, scn, defaultParams)
		require.NoError(t, err)

		obs, err := env.ObserveState()
		require.NoError(t, err)
		r, err := env.ComputeReward(obs, []float64{0}, false)
		require.NoError(t, err)
		assert.InDelta(t, 5*math.Sqrt(5), r, 1e-9)

		r, err = env.ComputeReward(obs, []float64{0}, true)
		require.NoError(t, err)
		assert.Equal(t, 0.0, r)
	})

	t.Run("global reward scores the fleet", func(t *testing.T) {
		reg, scn := fiveOnRing(t)
		p := defaultParams
		p.Observation = ObservePartial
		p.Reward = reward.GlobalDesiredVelocityName
		env, err := NewRingAccelEnv(reg, scn, p)
		require.NoError(t, err)

		obs, err := env.ObserveState()
		require.NoError(t, err)
		require.Len(t, obs.Speeds, 3)
		r, err := env.ComputeReward(obs, []float64{0}, false)
		require.NoError(t, err)
		assert.InDelta(t, 5*math.Sqrt(5), r, 1e-9)
	})
}

func TestRender(t *testing.T) {
	reg, scn := fiveOnRing(t)
	broker := messaging.NewBroker()
	t.Cleanup(broker.Reset)
	ch := make(chan messaging.Message, 1)
	require.NoError(t, broker.Subscribe("console", ch))

	env, err := NewRingAccelEnv(reg, scn, defaultParams, WithBroker(broker), WithID("ring-test"))
	require.NoError(t, err)
	env.RenderStep(4)

	select {
	case msg := <-ch:
		assert.Equal(t, "ring-test", msg.From)
		assert.Equal(t, messaging.TopicObservation, msg.Topic)
		assert.Equal(t, 4, msg.Step)
		obs, ok := msg.Content.(core.Observation)
		require.True(t, ok)
		assert.Equal(t, "rl_0", obs.IDs[0])
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for render message")
	}
}
