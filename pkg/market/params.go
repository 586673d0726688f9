// 文件: pkg/market/params.go
// 标的资产市场参数

package market

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"deriv.com/pkg/lattice"
)

// ErrInvalidParams 市场参数非法
var ErrInvalidParams = errors.New("invalid market params")

// Params 标的资产参数 (值类型)
//
// 希腊字母的扰动总是在副本上做: WithVol / WithRate / WithSpot 返回新值，
// 原对象不会被修改，也就不存在 "bump 之后忘了还原" 的问题。
type Params struct {
	Spot     float64 `json:"spot" yaml:"spot"`         // 现价 S > 0
	Rate     float64 `json:"rate" yaml:"rate"`         // 无风险利率 r (连续复利)
	Dividend float64 `json:"dividend" yaml:"dividend"` // 连续股息率 q
	Vol      float64 `json:"vol" yaml:"vol"`           // 年化波动率 σ >= 0
}

// Validate 校验参数
func (p Params) Validate() error {
	if !(p.Spot > 0) || math.IsInf(p.Spot, 0) {
		return fmt.Errorf("%w: spot=%v", ErrInvalidParams, p.Spot)
	}
	if !(p.Vol >= 0) || math.IsInf(p.Vol, 0) {
		return fmt.Errorf("%w: vol=%v", ErrInvalidParams, p.Vol)
	}
	if math.IsNaN(p.Rate) || math.IsNaN(p.Dividend) {
		return fmt.Errorf("%w: rate=%v dividend=%v", ErrInvalidParams, p.Rate, p.Dividend)
	}
	return nil
}

func (p Params) WithSpot(s float64) Params { p.Spot = s; return p }
func (p Params) WithRate(r float64) Params { p.Rate = r; return p }
func (p Params) WithVol(v float64) Params  { p.Vol = v; return p }

// Lattice 构建该标的的二叉树价格格点
// horizon: 到期时长 (年), steps: 步数
func (p Params) Lattice(horizon float64, steps int) (lattice.Spec, lattice.Tree, error) {
	return lattice.Build(p.Spot, p.Rate, p.Dividend, p.Vol, horizon, steps)
}

// Paths 生成 n 条几何布朗运动路径，每条 steps+1 个点 (含起点)
// dt: 单步时长 (年)
//
//	S(t+dt) = S(t) · exp((r - q - σ²/2)·dt + σ·√dt·Z)
func (p Params) Paths(rng *rand.Rand, steps, n int, dt float64) [][]float64 {
	drift := (p.Rate - p.Dividend - 0.5*p.Vol*p.Vol) * dt
	diffusion := p.Vol * math.Sqrt(dt)

	paths := make([][]float64, n)
	for k := range paths {
		path := make([]float64, steps+1)
		path[0] = p.Spot
		for i := 1; i <= steps; i++ {
			path[i] = path[i-1] * math.Exp(drift+diffusion*rng.NormFloat64())
		}
		paths[k] = path
	}
	return paths
}
