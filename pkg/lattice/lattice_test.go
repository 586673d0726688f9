package lattice

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_CRRParameters(t *testing.T) {
	spec, prices, err := Build(100, 0.05, 0.03, 0.1, 1, 4)
	require.NoError(t, err)

	dt := 0.25
	assert.Equal(t, 4, spec.Steps)
	assert.InDelta(t, dt, spec.Dt, 1e-15)
	assert.InDelta(t, math.Exp(0.1*math.Sqrt(dt)), spec.Up, 1e-15)
	assert.InDelta(t, 1/spec.Up, spec.Down, 1e-15)
	assert.InDelta(t, (math.Exp(0.02*dt)-spec.Down)/(spec.Up-spec.Down), spec.Prob, 1e-15)
	assert.InDelta(t, math.Exp(-0.05*dt), spec.Discount, 1e-15)

	require.Equal(t, 4, prices.Depth())
	for i := 0; i <= 4; i++ {
		require.Len(t, prices.Layer(i), i+1)
		for j := 0; j <= i; j++ {
			want := 100 * math.Pow(spec.Up, float64(i-j)) * math.Pow(spec.Down, float64(j))
			assert.InDelta(t, want, prices.At(i, j), 1e-9, "node (%d,%d)", i, j)
		}
	}
}

func TestBuild_Recombines(t *testing.T) {
	_, prices, err := Build(100, 0.01, 0, 0.3, 1, 10)
	require.NoError(t, err)
	// 中心节点: 涨跌次数相同
	assert.InDelta(t, 100, prices.At(2, 1), 1e-9)
	assert.InDelta(t, 100, prices.At(10, 5), 1e-9)
}

func TestBuild_DegenerateProbability(t *testing.T) {
	_, _, err := Build(100, 0.5, 0, 0.001, 10, 1)
	require.ErrorIs(t, err, ErrDegenerateLattice)
}

func TestBuild_InvalidInputs(t *testing.T) {
	cases := []struct {
		name               string
		spot, vol, horizon float64
		steps              int
	}{
		{"zero steps", 100, 0.2, 1, 0},
		{"zero horizon", 100, 0.2, 0, 10},
		{"negative spot", -1, 0.2, 1, 10},
		{"negative vol", 100, -0.1, 1, 10},
		{"nan vol", 100, math.NaN(), 1, 10},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, _, err := Build(c.spot, 0.05, 0, c.vol, c.horizon, c.steps)
			require.ErrorIs(t, err, ErrInvalidLattice)
		})
	}
}

func TestBuild_ZeroVolIsForwardPath(t *testing.T) {
	spec, prices, err := Build(100, 0.05, 0.01, 0, 2, 8)
	require.NoError(t, err)
	assert.Equal(t, spec.Up, spec.Down)

	fwd := 100 * math.Exp(0.04*2)
	for _, s := range prices.Layer(8) {
		assert.InDelta(t, fwd, s, 1e-9)
	}
}

func put(k float64) func(float64) float64 {
	return func(s float64) float64 { return math.Max(k-s, 0) }
}

type always struct{}

func (always) Eligible(int) bool { return true }

func TestInduct_ZeroVolDiscountedForward(t *testing.T) {
	spec, prices, err := Build(100, 0.05, 0, 0, 1, 50)
	require.NoError(t, err)

	call := func(s float64) float64 { return math.Max(s-90, 0) }
	values := Terminal(prices, call)
	got := Engine{}.Induct(spec, prices, values, call, nil)

	want := math.Exp(-0.05) * (100*math.Exp(0.05) - 90)
	assert.InDelta(t, want, got, 1e-9)
}

func TestInduct_EarlyExerciseFloor(t *testing.T) {
	spec, prices, err := Build(100, 0.05, 0, 0.2, 1, 200)
	require.NoError(t, err)

	pay := put(100)
	values := Terminal(prices, pay)
	Engine{}.Induct(spec, prices, values, pay, always{})

	// 可行权的每个节点价值都不低于内在价值
	for i := 0; i < spec.Steps; i++ {
		for j := 0; j <= i; j++ {
			require.GreaterOrEqual(t, values.At(i, j), pay(prices.At(i, j)))
		}
	}
}

func TestInduct_ParallelMatchesSequential(t *testing.T) {
	spec, prices, err := Build(100, 0.05, 0.02, 0.25, 1, 2000)
	require.NoError(t, err)
	pay := put(105)

	seq := Terminal(prices, pay)
	a := Engine{Workers: 1}.Induct(spec, prices, seq, pay, always{})

	par := Terminal(prices, pay)
	b := Engine{Workers: 8}.Induct(spec, prices, par, pay, always{})

	require.Equal(t, math.Float64bits(a), math.Float64bits(b))
	for i := 0; i <= spec.Steps; i += 97 {
		for j := 0; j <= i; j++ {
			require.Equal(t, math.Float64bits(seq.At(i, j)), math.Float64bits(par.At(i, j)))
		}
	}
}

func TestTerminal_PayoffPanicPropagates(t *testing.T) {
	_, prices, err := Build(100, 0.05, 0, 0.2, 1, 4)
	require.NoError(t, err)

	assert.PanicsWithValue(t, "boom", func() {
		Terminal(prices, func(float64) float64 { panic("boom") })
	})
}

func TestInduct_ParallelPanicReachesCaller(t *testing.T) {
	spec, prices, err := Build(100, 0.05, 0, 0.2, 1, 2000)
	require.NoError(t, err)
	values := Terminal(prices, func(s float64) float64 { return s })

	bad := func(s float64) float64 {
		if s > 150 {
			panic("early exercise payoff failed")
		}
		return 0
	}
	assert.PanicsWithValue(t, "early exercise payoff failed", func() {
		Engine{Workers: 8}.Induct(spec, prices, values, bad, always{})
	})
}
