package option

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deriv.com/pkg/analytic"
	"deriv.com/pkg/exercise"
	"deriv.com/pkg/lattice"
	"deriv.com/pkg/market"
	"deriv.com/pkg/payoff"
)

// 基准参数: S=100, r=5%, q=3%, σ=10%, K=100, T=1 年
var ref = market.Params{Spot: 100, Rate: 0.05, Dividend: 0.03, Vol: 0.1}

func mustNew(t *testing.T, p market.Params, ex Exercise, pay payoff.Func, opts ...Opt) *Option {
	t.Helper()
	o, err := New(p, ex, pay, opts...)
	require.NoError(t, err)
	return o
}

func price(t *testing.T, o *Option) float64 {
	t.Helper()
	v, err := o.Price()
	require.NoError(t, err)
	return v
}

func TestPrice_ConvergesToBlackScholes(t *testing.T) {
	o := mustNew(t, ref, EuropeanAt(DaysPerYear), payoff.Call(100))
	bs, err := analytic.Price(analytic.Call, 100, 100, 0.05, 0.03, 0.1, 1)
	require.NoError(t, err)

	assert.InDelta(t, bs, price(t, o), 1e-2)

	put := mustNew(t, ref, EuropeanAt(DaysPerYear), payoff.Put(100))
	bsPut, _ := analytic.Price(analytic.Put, 100, 100, 0.05, 0.03, 0.1, 1)
	assert.InDelta(t, bsPut, price(t, put), 1e-2)
}

func TestPrice_ZeroVolDeterministic(t *testing.T) {
	p := market.Params{Spot: 100, Rate: 0.05, Vol: 0}
	o := mustNew(t, p, EuropeanAt(DaysPerYear), payoff.Call(90))

	want := math.Exp(-0.05) * (100*math.Exp(0.05) - 90)
	assert.InDelta(t, want, price(t, o), 1e-8)
}

func TestPrice_American_GE_European(t *testing.T) {
	for _, k := range []float64{90, 100, 110, 120} {
		euro := price(t, mustNew(t, ref, EuropeanAt(DaysPerYear), payoff.Put(k)))
		amer := price(t, mustNew(t, ref, AmericanAt(DaysPerYear), payoff.Put(k)))
		assert.GreaterOrEqual(t, amer, euro, "strike %v", k)
	}

	// 深度实值美式看跌: 至少值内在价值
	amer := price(t, mustNew(t, ref, AmericanAt(DaysPerYear), payoff.Put(150)))
	assert.GreaterOrEqual(t, amer, 50.0)
}

func TestPrice_Bermudan_Between(t *testing.T) {
	ex := BermudanAt(DaysPerYear, 63, 126, 189)
	euro := price(t, mustNew(t, ref, EuropeanAt(DaysPerYear), payoff.Put(110)))
	berm := price(t, mustNew(t, ref, ex, payoff.Put(110)))
	amer := price(t, mustNew(t, ref, AmericanAt(DaysPerYear), payoff.Put(110)))

	assert.GreaterOrEqual(t, berm, euro)
	assert.LessOrEqual(t, berm, amer+1e-3)
}

func TestPrice_BermudanEmptyScheduleIsEuropean(t *testing.T) {
	// 252 天, 1000 步 -> 每天 4 步, 共 1008 步
	berm := mustNew(t, ref, BermudanAt(DaysPerYear), payoff.Put(100))
	steps, err := berm.Steps()
	require.NoError(t, err)
	require.Equal(t, 1008, steps)

	euro := mustNew(t, ref, EuropeanAt(DaysPerYear), payoff.Put(100), WithSteps(1008))
	assert.Equal(t, math.Float64bits(price(t, euro)), math.Float64bits(price(t, berm)))
}

func TestPrice_BermudanInvalidSchedule(t *testing.T) {
	cases := map[string]Exercise{
		"after expiry":      BermudanAt(DaysPerYear, 300),
		"negative":          BermudanAt(DaysPerYear, -1),
		"misaligned":        BermudanAt(DaysPerYear, 10.3),
		"fractional expiry": BermudanAt(math.Pi, 1),
	}
	for name, ex := range cases {
		t.Run(name, func(t *testing.T) {
			o := mustNew(t, ref, ex, payoff.Put(100))
			_, err := o.Price()
			require.ErrorIs(t, err, exercise.ErrInvalidExerciseSchedule)
		})
	}

	// 10.5 天 * 96 步/天 = 1008 步，可以
	o := mustNew(t, ref, BermudanAt(10.5, 5, 10.5), payoff.Put(100))
	_, err := o.Price()
	require.NoError(t, err)

	// 10.3 天: 子步数加到 100 才对齐，1030 步
	o = mustNew(t, ref, BermudanAt(10.3, 5), payoff.Put(100))
	steps, err := o.Steps()
	require.NoError(t, err)
	assert.Equal(t, 1030, steps)
	_, err = o.Price()
	require.NoError(t, err)
}

func TestPrice_Monotonicity(t *testing.T) {
	call := payoff.Call(100)

	lo := price(t, mustNew(t, ref.WithSpot(95), EuropeanAt(DaysPerYear), call))
	hi := price(t, mustNew(t, ref.WithSpot(105), EuropeanAt(DaysPerYear), call))
	assert.Greater(t, hi, lo, "spot")

	lo = price(t, mustNew(t, ref.WithVol(0.1), EuropeanAt(DaysPerYear), call))
	hi = price(t, mustNew(t, ref.WithVol(0.3), EuropeanAt(DaysPerYear), call))
	assert.Greater(t, hi, lo, "vol")

	noDiv := market.Params{Spot: 100, Rate: 0.05, Vol: 0.2}
	lo = price(t, mustNew(t, noDiv, EuropeanAt(126), call))
	hi = price(t, mustNew(t, noDiv, EuropeanAt(504), call))
	assert.Greater(t, hi, lo, "maturity")

	put := payoff.Put(100)
	for _, ex := range []Exercise{EuropeanAt(DaysPerYear), AmericanAt(DaysPerYear)} {
		lo = price(t, mustNew(t, ref.WithSpot(95), ex, put))
		hi = price(t, mustNew(t, ref.WithSpot(105), ex, put))
		assert.GreaterOrEqual(t, lo, hi, "put spot %v", ex.Style)
	}
}

func TestPrice_DegenerateLattice(t *testing.T) {
	p := market.Params{Spot: 100, Rate: 0.5, Vol: 0.001}
	o := mustNew(t, p, EuropeanAt(10*DaysPerYear), payoff.Call(100), WithSteps(1))

	_, err := o.Price()
	require.ErrorIs(t, err, lattice.ErrDegenerateLattice)
}

func TestPrice_ParallelMatchesSequential(t *testing.T) {
	seq := mustNew(t, ref, AmericanAt(DaysPerYear), payoff.Put(105), WithSteps(2000))
	par := mustNew(t, ref, AmericanAt(DaysPerYear), payoff.Put(105), WithSteps(2000), WithWorkers(8))
	assert.Equal(t, math.Float64bits(price(t, seq)), math.Float64bits(price(t, par)))
}

func TestPrice_PayoffPanicPropagates(t *testing.T) {
	o := mustNew(t, ref, EuropeanAt(DaysPerYear), func(float64) float64 { panic("bad payoff") }, WithSteps(10))
	assert.PanicsWithValue(t, "bad payoff", func() { _, _ = o.Price() })
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(ref, EuropeanAt(0), payoff.Call(100))
	require.ErrorIs(t, err, ErrInvalidHorizon)

	_, err = New(ref, EuropeanAt(DaysPerYear), nil)
	require.ErrorIs(t, err, ErrNilPayoff)

	_, err = New(market.Params{Spot: -1}, EuropeanAt(DaysPerYear), payoff.Call(100))
	require.ErrorIs(t, err, market.ErrInvalidParams)

	_, err = New(ref, Exercise{Style: Style(9), Expiry: 10}, payoff.Call(100))
	require.ErrorIs(t, err, ErrUnknownStyle)

	_, err = New(ref, EuropeanAt(10), payoff.Call(100), WithSteps(0))
	require.ErrorIs(t, err, lattice.ErrInvalidLattice)
}

func TestNew_CopiesSchedule(t *testing.T) {
	times := []float64{63, 126}
	o := mustNew(t, ref, Exercise{Style: Bermudan, Expiry: DaysPerYear, Times: times}, payoff.Put(100))
	times[0] = 999

	assert.Equal(t, []float64{63, 126}, o.Exercise().Times)
}

func TestExercise_Shift(t *testing.T) {
	ex := BermudanAt(10, 0, 0.5, 5, 10)

	down := ex.Shift(-1)
	assert.Equal(t, 9.0, down.Expiry)
	assert.Equal(t, []float64{4, 9}, down.Times)

	up := ex.Shift(1)
	assert.Equal(t, 11.0, up.Expiry)
	assert.Equal(t, []float64{1, 1.5, 6, 11}, up.Times)

	// 原值不变
	assert.Equal(t, []float64{0, 0.5, 5, 10}, ex.Times)
}

func TestParseStyle(t *testing.T) {
	for in, want := range map[string]Style{"European": European, "american": American, " bermudan ": Bermudan} {
		got, err := ParseStyle(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, want, mustParse(t, got.String()))
	}
	_, err := ParseStyle("asian")
	require.ErrorIs(t, err, ErrUnknownStyle)
}

func mustParse(t *testing.T, s string) Style {
	t.Helper()
	st, err := ParseStyle(s)
	require.NoError(t, err)
	return st
}

func TestConcurrentQueries(t *testing.T) {
	o := mustNew(t, ref, AmericanAt(DaysPerYear), payoff.Put(100), WithSteps(200))
	want, err := o.Greeks()
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]Greeks, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = o.Greeks()
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}
