package market

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deriv.com/pkg/lattice"
)

func TestParams_Validate(t *testing.T) {
	require.NoError(t, Params{Spot: 100, Rate: 0.05, Vol: 0.2}.Validate())
	require.NoError(t, Params{Spot: 100, Rate: -0.01, Vol: 0}.Validate())

	for _, p := range []Params{
		{Spot: 0, Vol: 0.2},
		{Spot: 100, Vol: -0.2},
		{Spot: 100, Vol: math.NaN()},
		{Spot: 100, Rate: math.NaN(), Vol: 0.2},
	} {
		require.ErrorIs(t, p.Validate(), ErrInvalidParams, "%+v", p)
	}
}

func TestParams_WithCopies(t *testing.T) {
	base := Params{Spot: 100, Rate: 0.05, Dividend: 0.01, Vol: 0.2}

	bumped := base.WithVol(0.3).WithRate(0.06).WithSpot(101)
	assert.Equal(t, Params{Spot: 101, Rate: 0.06, Dividend: 0.01, Vol: 0.3}, bumped)
	assert.Equal(t, Params{Spot: 100, Rate: 0.05, Dividend: 0.01, Vol: 0.2}, base)
}

func TestParams_Lattice(t *testing.T) {
	p := Params{Spot: 100, Rate: 0.05, Dividend: 0.03, Vol: 0.1}
	spec, prices, err := p.Lattice(1, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, spec.Steps)
	assert.Equal(t, 100.0, prices.At(0, 0))

	_, _, err = Params{Spot: 100, Rate: 0.5, Vol: 0.001}.Lattice(10, 1)
	require.ErrorIs(t, err, lattice.ErrDegenerateLattice)
}

func TestParams_PathsMartingale(t *testing.T) {
	p := Params{Spot: 100, Rate: 0.05, Dividend: 0.02, Vol: 0.2}
	rng := rand.New(rand.NewPCG(42, 0))

	paths := p.Paths(rng, 10, 20000, 0.1)
	require.Len(t, paths, 20000)

	sum := 0.0
	for _, path := range paths {
		require.Len(t, path, 11)
		require.Equal(t, 100.0, path[0])
		sum += path[10]
	}
	// E[S_T] = S·exp((r-q)T)，T=1，σ√T/√n ≈ 0.14
	mean := sum / float64(len(paths))
	assert.InDelta(t, 100*math.Exp(0.03), mean, 1.0)
}

func TestTicker_EmitsTicks(t *testing.T) {
	ticker := NewTicker("SPX", Params{Spot: 100, Rate: 0.05, Vol: 0.2}, 5*time.Millisecond)
	ch := ticker.Start()
	defer ticker.Stop()

	select {
	case tick := <-ch:
		assert.Equal(t, "SPX", tick.Symbol)
		assert.Greater(t, tick.Spot, 0.0)
	case <-time.After(time.Second):
		t.Fatal("no tick received")
	}
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster()
	a, c := b.Subscribe(), b.Subscribe()

	b.Broadcast(SpotTick{Symbol: "SPX", Spot: 101})

	assert.Equal(t, 101.0, (<-a).Spot)
	assert.Equal(t, 101.0, (<-c).Spot)

	b.Close()
	_, ok := <-a
	assert.False(t, ok)
}

func TestBroadcaster_DropsWhenFull(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()
	for i := 0; i < 200; i++ {
		b.Broadcast(SpotTick{Symbol: "SPX", Spot: float64(i)})
	}
	assert.Equal(t, 64, len(ch))
	assert.Equal(t, 0.0, (<-ch).Spot)
}

func TestBroadcaster_Pipe(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()

	in := make(chan SpotTick, 2)
	in <- SpotTick{Symbol: "A", Spot: 1}
	in <- SpotTick{Symbol: "B", Spot: 2}
	close(in)
	b.Pipe(in)

	assert.Equal(t, "A", (<-ch).Symbol)
	assert.Equal(t, "B", (<-ch).Symbol)
}
