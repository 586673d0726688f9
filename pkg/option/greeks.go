// 文件: pkg/option/greeks.go
// 有限差分希腊字母
//
// delta / gamma: 直接读同一次归纳结果的第 1、2 层节点，不重新定价
// vega / rho / theta: 在参数副本上做中心差分，各重新定价两次

package option

import (
	"fmt"

	"deriv.com/pkg/exercise"
	"deriv.com/pkg/lattice"
	"deriv.com/pkg/market"
)

// Greeks 价格 + 五个希腊字母
// Theta 按年计 (每交易日的衰减 = Theta / DaysPerYear)
type Greeks struct {
	Price float64 `json:"price"`
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
	Theta float64 `json:"theta"`
}

// slope 两个节点之间的差商
func slope(r run, i, j int) (float64, error) {
	ds := r.prices.At(i, j) - r.prices.At(i, j+1)
	if ds == 0 {
		return 0, fmt.Errorf("%w: zero node spread at step %d", lattice.ErrDegenerateLattice, i)
	}
	return (r.values.At(i, j) - r.values.At(i, j+1)) / ds, nil
}

//	delta = (V(1,0) - V(1,1)) / (S(1,0) - S(1,1))
func (r run) delta() (float64, error) {
	if r.spec.Steps < 1 {
		return 0, fmt.Errorf("%w: delta needs 1 step, have %d", ErrInsufficientLatticeDepth, r.spec.Steps)
	}
	return slope(r, 1, 0)
}

//	gamma = 2·[ Δ(2,0) - Δ(2,1) ] / (S(2,0) - S(2,2))
func (r run) gamma() (float64, error) {
	if r.spec.Steps < 2 {
		return 0, fmt.Errorf("%w: gamma needs 2 steps, have %d", ErrInsufficientLatticeDepth, r.spec.Steps)
	}
	up, err := slope(r, 2, 0)
	if err != nil {
		return 0, err
	}
	down, err := slope(r, 2, 1)
	if err != nil {
		return 0, err
	}
	return 2 * (up - down) / (r.prices.At(2, 0) - r.prices.At(2, 2)), nil
}

// Delta ∂V/∂S
func (o *Option) Delta() (float64, error) {
	r, err := o.evaluate(o.params, o.exercise, 0)
	if err != nil {
		return 0, err
	}
	return r.delta()
}

// Gamma ∂²V/∂S²
func (o *Option) Gamma() (float64, error) {
	r, err := o.evaluate(o.params, o.exercise, 0)
	if err != nil {
		return 0, err
	}
	return r.gamma()
}

// central (f(x+ε) - f(x-ε)) / 2ε
func (o *Option) central(up, down market.Params, eps float64) (float64, error) {
	hi, err := o.evaluate(up, o.exercise, 0)
	if err != nil {
		return 0, err
	}
	lo, err := o.evaluate(down, o.exercise, 0)
	if err != nil {
		return 0, err
	}
	return (hi.price - lo.price) / (2 * eps), nil
}

// Vega ∂V/∂σ
// σ < ε 时向下扰动会得到负波动率，退化为前向差分
func (o *Option) Vega() (float64, error) {
	p := o.params
	if p.Vol < VolBump {
		hi, err := o.evaluate(p.WithVol(p.Vol+VolBump), o.exercise, 0)
		if err != nil {
			return 0, err
		}
		base, err := o.evaluate(p, o.exercise, 0)
		if err != nil {
			return 0, err
		}
		return (hi.price - base.price) / VolBump, nil
	}
	return o.central(p.WithVol(p.Vol+VolBump), p.WithVol(p.Vol-VolBump), VolBump)
}

// Rho ∂V/∂r
func (o *Option) Rho() (float64, error) {
	p := o.params
	return o.central(p.WithRate(p.Rate+RateBump), p.WithRate(p.Rate-RateBump), RateBump)
}

// Theta -∂V/∂T，按年计
//
//	theta = (P(T - 1d) - P(T + 1d)) / (2 · 1d)
//
// 整个行权安排一起平移; 百慕大沿用原格点的每日子步数，保证平移后的行权日仍落在格点上
func (o *Option) Theta() (float64, error) {
	spd := 0
	if o.exercise.Style == Bermudan {
		spd = exercise.StepsPerDay(o.cfg.steps, o.exercise.Expiry)
	}
	shorter, err := o.evaluate(o.params, o.exercise.Shift(-ThetaShift), spd)
	if err != nil {
		return 0, err
	}
	longer, err := o.evaluate(o.params, o.exercise.Shift(ThetaShift), spd)
	if err != nil {
		return 0, err
	}
	return (shorter.price - longer.price) / (2 * ThetaShift / DaysPerYear), nil
}

// Greeks 一次性计算价格和全部希腊字母
// price / delta / gamma 共用一次归纳
func (o *Option) Greeks() (Greeks, error) {
	r, err := o.evaluate(o.params, o.exercise, 0)
	if err != nil {
		return Greeks{}, err
	}
	g := Greeks{Price: r.price}
	if g.Delta, err = r.delta(); err != nil {
		return Greeks{}, err
	}
	if g.Gamma, err = r.gamma(); err != nil {
		return Greeks{}, err
	}
	if g.Vega, err = o.Vega(); err != nil {
		return Greeks{}, err
	}
	if g.Rho, err = o.Rho(); err != nil {
		return Greeks{}, err
	}
	if g.Theta, err = o.Theta(); err != nil {
		return Greeks{}, err
	}
	return g, nil
}
