package risk

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestComputeRisk_NetGreeks(t *testing.T) {
	e := NewEngine(0)

	// 场景：
	// 1. 买入 10 张看涨 (乘数 100)
	// 2. 卖出 5 张看跌 (乘数 100)
	// 预期：
	// net_delta = 10*100*0.58 + (-5)*100*(-0.39) = 580 + 195 = 775
	in := RiskInput{
		Positions: []Position{
			{Symbol: "SPX_C100", Qty: 10, Multiplier: 100},
			{Symbol: "SPX_P100", Qty: -5, Multiplier: 100},
		},
		Quotes: map[string]Sensitivity{
			"SPX_C100": {Spot: 100, Price: 4.87, Delta: 0.58, Gamma: 0.0375, Vega: 37.5, Rho: 53.2, Theta: -2.8},
			"SPX_P100": {Spot: 100, Price: 2.95, Delta: -0.39, Gamma: 0.0375, Vega: 37.5, Rho: -41.9, Theta: -0.95},
		},
	}

	out, err := e.ComputeRisk(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !almostEqual(out.NetDelta, 775) {
		t.Errorf("expected net delta 775, got %v", out.NetDelta)
	}
	// 37500 - 18750
	if !almostEqual(out.NetVega, 18750) {
		t.Errorf("expected net vega 18750, got %v", out.NetVega)
	}
	// 4870 - 1475
	if !almostEqual(out.MarketValue, 3395) {
		t.Errorf("expected market value 3395, got %v", out.MarketValue)
	}
	// 775 * 100
	if !almostEqual(out.DollarDelta, 77500) {
		t.Errorf("expected dollar delta 77500, got %v", out.DollarDelta)
	}
	// net gamma 18.75, ½·18.75·1² = 9.375
	if !almostEqual(out.DollarGamma, 9.375) {
		t.Errorf("expected dollar gamma 9.375, got %v", out.DollarGamma)
	}
	if out.Positions != 2 || out.Warnings != nil {
		t.Errorf("unexpected positions/warnings: %d %v", out.Positions, out.Warnings)
	}
}

func TestComputeRisk_Warnings(t *testing.T) {
	e := NewEngine(time.Minute)
	now := time.Now()
	e.now = func() time.Time { return now }

	in := RiskInput{
		Positions: []Position{
			{Symbol: "A", Qty: 1},
			{Symbol: "A", Qty: 2},
			{Symbol: "B", Qty: 1, Multiplier: 1},
			{Symbol: "C", Qty: 1, Multiplier: 1},
		},
		Quotes: map[string]Sensitivity{
			"A": {Spot: 100, Delta: 0.5, Ts: now},
			"C": {Spot: 100, Delta: 0.5, Ts: now.Add(-time.Hour)},
		},
	}

	out, err := e.ComputeRisk(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Positions != 3 {
		t.Errorf("expected 3 positions, got %d", out.Positions)
	}
	if !almostEqual(out.NetDelta, 2) {
		t.Errorf("expected net delta 2, got %v", out.NetDelta)
	}

	want := []string{
		"multiplier defaulted to 1 for A",
		"missing quote for B",
		"stale quote for C",
	}
	if len(out.Warnings) != len(want) {
		t.Fatalf("expected warnings %v, got %v", want, out.Warnings)
	}
	for i := range want {
		if out.Warnings[i] != want[i] {
			t.Errorf("warning %d: want %q got %q", i, want[i], out.Warnings[i])
		}
	}
}

func TestComputeRisk_InvalidInput(t *testing.T) {
	e := NewEngine(0)

	if _, err := e.ComputeRisk(RiskInput{Quotes: map[string]Sensitivity{}}); !errors.Is(err, ErrEmptyPositions) {
		t.Errorf("expected ErrEmptyPositions, got %v", err)
	}
	if _, err := e.ComputeRisk(RiskInput{Positions: []Position{{Symbol: "A"}}}); !errors.Is(err, ErrNilQuotes) {
		t.Errorf("expected ErrNilQuotes, got %v", err)
	}

	in := RiskInput{
		Positions: []Position{{Symbol: "A", Qty: 1}},
		Quotes:    map[string]Sensitivity{"A": {Spot: 100, Delta: math.NaN()}},
	}
	if _, err := e.ComputeRisk(in); !errors.Is(err, ErrInvalidQuote) {
		t.Errorf("expected ErrInvalidQuote, got %v", err)
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(b))
}
