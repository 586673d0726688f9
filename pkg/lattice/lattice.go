// 文件: pkg/lattice/lattice.go
// 二叉树 (CRR) 价格格点构建
//
// 格点是"可重组"的: 先涨后跌与先跌后涨落在同一个节点，
// 所以 N 步只需要 (N+1)(N+2)/2 个节点，而不是 2^N 条路径。
//
//	            S·u²
//	      S·u
//	S            S        (u·d = 1)
//	      S·d
//	            S·d²
//
//	step: 0     1     2

package lattice

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDegenerateLattice 风险中性概率 p 不在 (0,1) 内
	// 不能截断 (clamp)，截断会让所有价格产生系统性偏差
	ErrDegenerateLattice = errors.New("degenerate lattice")

	// ErrInvalidLattice 构建参数非法 (steps < 1, horizon <= 0, spot <= 0, vol < 0)
	ErrInvalidLattice = errors.New("invalid lattice parameters")
)

// Spec 格点参数，构建时一次性算好
type Spec struct {
	Steps    int     // 步数 N
	Dt       float64 // 单步时长 Δt = horizon / N (年)
	Up       float64 // 上涨因子 u = exp(σ√Δt)
	Down     float64 // 下跌因子 d = 1/u
	Prob     float64 // 风险中性上涨概率 p
	Discount float64 // 单步折现因子 exp(-rΔt)
}

// Tree 三角形格点，第 i 层有 i+1 个节点
// 价格格点与价值格点共用这个形状
// 节点 (i, j) 表示 i 步中有 j 次下跌、i-j 次上涨
type Tree [][]float64

// Depth 返回格点步数 N
func (t Tree) Depth() int { return len(t) - 1 }

// Layer 返回第 i 层
func (t Tree) Layer(i int) []float64 { return t[i] }

// At 返回节点 (i, j)
func (t Tree) At(i, j int) float64 { return t[i][j] }

// newTree 分配 N 步的三角形格点 (一次性分配底层数组，减少碎片)
func newTree(steps int) Tree {
	backing := make([]float64, (steps+1)*(steps+2)/2)
	t := make(Tree, steps+1)
	off := 0
	for i := 0; i <= steps; i++ {
		t[i] = backing[off : off+i+1 : off+i+1]
		off += i + 1
	}
	return t
}

// Build 构建 CRR 价格格点
// spot: 现价, rate: 无风险利率, dividend: 连续股息率, vol: 年化波动率
// horizon: 到期时长 (年), steps: 步数
//
// price(i,j) = S · u^(i-j) · d^j
//
// vol == 0 时格点退化为一条确定性远期路径: u = d = exp((r-q)Δt)，p 取 1/2
// (两个子节点相同，p 的取值不影响价值)。
func Build(spot, rate, dividend, vol, horizon float64, steps int) (Spec, Tree, error) {
	if steps < 1 || horizon <= 0 || spot <= 0 || vol < 0 ||
		math.IsNaN(spot) || math.IsNaN(vol) || math.IsNaN(horizon) {
		return Spec{}, nil, fmt.Errorf("%w: spot=%v vol=%v horizon=%v steps=%d",
			ErrInvalidLattice, spot, vol, horizon, steps)
	}

	dt := horizon / float64(steps)
	spec := Spec{
		Steps:    steps,
		Dt:       dt,
		Discount: math.Exp(-rate * dt),
	}

	growth := math.Exp((rate - dividend) * dt)
	if vol == 0 {
		spec.Up, spec.Down, spec.Prob = growth, growth, 0.5
	} else {
		spec.Up = math.Exp(vol * math.Sqrt(dt))
		spec.Down = 1 / spec.Up
		spec.Prob = (growth - spec.Down) / (spec.Up - spec.Down)
		if !(spec.Prob > 0 && spec.Prob < 1) {
			return Spec{}, nil, fmt.Errorf("%w: p=%v (u=%v d=%v growth=%v)",
				ErrDegenerateLattice, spec.Prob, spec.Up, spec.Down, growth)
		}
	}

	prices := newTree(steps)
	prices[0][0] = spot
	for i := 1; i <= steps; i++ {
		prev, cur := prices[i-1], prices[i]
		// 每层第 0 个节点由上一层第 0 个节点上涨得到，其余节点由左上方下跌得到
		cur[0] = prev[0] * spec.Up
		for j := 1; j <= i; j++ {
			cur[j] = prev[j-1] * spec.Down
		}
	}
	return spec, prices, nil
}
