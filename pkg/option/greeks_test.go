package option

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deriv.com/pkg/analytic"
	"deriv.com/pkg/lattice"
	"deriv.com/pkg/market"
	"deriv.com/pkg/payoff"
)

func TestGreeks_EuropeanCallMatchesBlackScholes(t *testing.T) {
	o := mustNew(t, ref, EuropeanAt(DaysPerYear), payoff.Call(100))
	bs, err := analytic.Evaluate(analytic.Call, 100, 100, 0.05, 0.03, 0.1, 1)
	require.NoError(t, err)

	g, err := o.Greeks()
	require.NoError(t, err)

	assert.InDelta(t, bs.Price, g.Price, 1e-2)
	assert.InDelta(t, bs.Delta, g.Delta, 5e-3)
	assert.InDelta(t, bs.Gamma, g.Gamma, 2e-3)
	assert.InDelta(t, bs.Vega, g.Vega, 0.5)
	assert.InDelta(t, bs.Rho, g.Rho, 0.5)
	assert.InDelta(t, bs.Theta, g.Theta, 0.15)
}

func TestGreeks_MatchSingleQueries(t *testing.T) {
	o := mustNew(t, ref, BermudanAt(DaysPerYear, 63, 126, 189), payoff.Put(100), WithSteps(300))
	g, err := o.Greeks()
	require.NoError(t, err)

	p, _ := o.Price()
	d, _ := o.Delta()
	gm, _ := o.Gamma()
	v, _ := o.Vega()
	r, _ := o.Rho()
	th, _ := o.Theta()
	assert.Equal(t, Greeks{Price: p, Delta: d, Gamma: gm, Vega: v, Rho: r, Theta: th}, g)
}

func TestGreeks_ParamsUntouched(t *testing.T) {
	o := mustNew(t, ref, AmericanAt(DaysPerYear), payoff.Put(100), WithSteps(200))
	before := o.Params()

	queries := map[string]func() (float64, error){
		"price": o.Price,
		"delta": o.Delta,
		"gamma": o.Gamma,
		"vega":  o.Vega,
		"rho":   o.Rho,
		"theta": o.Theta,
	}
	for name, q := range queries {
		_, err := q()
		require.NoError(t, err, name)

		after := o.Params()
		require.Equal(t, math.Float64bits(before.Spot), math.Float64bits(after.Spot), name)
		require.Equal(t, math.Float64bits(before.Rate), math.Float64bits(after.Rate), name)
		require.Equal(t, math.Float64bits(before.Dividend), math.Float64bits(after.Dividend), name)
		require.Equal(t, math.Float64bits(before.Vol), math.Float64bits(after.Vol), name)
		require.Equal(t, DaysPerYear*1.0, o.Exercise().Expiry, name)
	}

	// 失败路径同样不改变参数
	short := mustNew(t, ref, EuropeanAt(1), payoff.Call(100))
	_, err := short.Theta()
	require.ErrorIs(t, err, ErrInvalidHorizon)
	assert.Equal(t, ref, short.Params())
	assert.Equal(t, 1.0, short.Exercise().Expiry)
}

func TestGreeks_StraddleGammaNonNegative(t *testing.T) {
	for _, ex := range []Exercise{EuropeanAt(DaysPerYear), AmericanAt(DaysPerYear)} {
		o := mustNew(t, ref, ex, payoff.Straddle(100))
		g, err := o.Gamma()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, g, 0.0, ex.Style.String())
	}
}

func TestGreeks_Signs(t *testing.T) {
	put := mustNew(t, ref, AmericanAt(DaysPerYear), payoff.Put(100))
	d, err := put.Delta()
	require.NoError(t, err)
	assert.Less(t, d, 0.0)
	assert.Greater(t, d, -1.0)

	r, err := put.Rho()
	require.NoError(t, err)
	assert.Less(t, r, 0.0)

	call := mustNew(t, ref, EuropeanAt(DaysPerYear), payoff.Call(100))
	v, err := call.Vega()
	require.NoError(t, err)
	assert.Greater(t, v, 0.0)
}

func TestGreeks_InsufficientDepth(t *testing.T) {
	o := mustNew(t, ref, EuropeanAt(DaysPerYear), payoff.Call(100), WithSteps(1))

	_, err := o.Delta()
	require.NoError(t, err)

	_, err = o.Gamma()
	require.ErrorIs(t, err, ErrInsufficientLatticeDepth)

	_, err = o.Greeks()
	require.ErrorIs(t, err, ErrInsufficientLatticeDepth)
}

func TestGreeks_ZeroVol(t *testing.T) {
	p := market.Params{Spot: 100, Vol: 0}
	o := mustNew(t, p, EuropeanAt(DaysPerYear), payoff.Call(90), WithSteps(100))

	// 确定性格点上节点没有价差
	_, err := o.Delta()
	require.ErrorIs(t, err, lattice.ErrDegenerateLattice)

	// σ=0 时 vega 退化为前向差分，不会出现负波动率; 深度实值几乎不受波动率影响
	v, err := o.Vega()
	require.NoError(t, err)
	assert.InDelta(t, 0.0, v, 1e-3)
}

func TestGreeks_BermudanTheta(t *testing.T) {
	o := mustNew(t, ref, BermudanAt(DaysPerYear, 0.5, 63, 126, 252), payoff.Put(105), WithSteps(500))
	th, err := o.Theta()
	require.NoError(t, err)
	assert.False(t, math.IsNaN(th))

	// 每日子步数沿用原格点，所以半天的行权日平移后依然对齐
	steps, err := o.Steps()
	require.NoError(t, err)
	assert.Equal(t, 252*2, steps)
}
