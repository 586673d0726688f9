// 文件: pkg/montecarlo/engine.go
// 蒙特卡洛定价引擎
//
// 与二叉树引擎共用 market.Params 和 payoff 收益函数，
// 用于验证格点结果，以及定价格点处理不了的路径依赖期权 (亚式、回望)。

package montecarlo

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/stat"

	"deriv.com/pkg/market"
	"deriv.com/pkg/option"
	"deriv.com/pkg/payoff"
)

const DefaultPaths = 10000

// ErrInvalidConfig 路径数、步数或期限非法
var ErrInvalidConfig = errors.New("invalid monte carlo config")

// Config 模拟配置
type Config struct {
	Paths   int    // 路径数
	Steps   int    // 终值采样步数: 1 = 精确对数正态一步到位, >1 = Euler 离散
	Seed    uint64 // 随机种子，相同种子结果可复现
	Workers int    // 并行 worker 数 (<= 1 单线程); 结果只依赖 Seed 和 Workers
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{Paths: DefaultPaths, Steps: 1, Seed: 1, Workers: 1}
}

// Estimate 估计值 + 标准误
type Estimate struct {
	Price  float64 `json:"price"`
	StdErr float64 `json:"std_err"`
}

// Engine 蒙特卡洛引擎
// Expiry 以交易日计
type Engine struct {
	params market.Params
	expiry float64
	cfg    Config
}

// New 创建引擎
func New(params market.Params, expiry float64, cfg Config) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if !(expiry > 0) || math.IsInf(expiry, 0) {
		return nil, fmt.Errorf("%w: expiry=%v days", ErrInvalidConfig, expiry)
	}
	if cfg.Paths < 2 || cfg.Steps < 1 {
		return nil, fmt.Errorf("%w: paths=%d steps=%d", ErrInvalidConfig, cfg.Paths, cfg.Steps)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Engine{params: params, expiry: expiry, cfg: cfg}, nil
}

func (e *Engine) horizon() float64 { return e.expiry / option.DaysPerYear }

// days 路径的交易日数 (不足一天按一天)
func (e *Engine) days() int {
	return max(int(math.Ceil(e.expiry-1e-9)), 1)
}

// simulate 把 Paths 条路径分给 worker，每个 worker 用独立的 PCG 流
// sample(rng) 返回一条路径的 (未折现) 收益
func (e *Engine) simulate(sample func(rng *rand.Rand) float64) Estimate {
	out := make([]float64, e.cfg.Paths)
	workers := min(e.cfg.Workers, e.cfg.Paths)
	chunk := (e.cfg.Paths + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo, hi := w*chunk, min((w+1)*chunk, e.cfg.Paths)
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(e.cfg.Seed, uint64(w)))
			for k := lo; k < hi; k++ {
				out[k] = sample(rng)
			}
		}(w, lo, hi)
	}
	wg.Wait()

	disc := math.Exp(-e.params.Rate * e.horizon())
	for k := range out {
		out[k] *= disc
	}
	mean, std := stat.MeanStdDev(out, nil)
	return Estimate{Price: mean, StdErr: stat.StdErr(std, float64(len(out)))}
}

// terminal 采样一个到期价
//
//	Steps == 1: S_T = S·exp((r-q-σ²/2)T + σ√T·Z)
//	Steps  > 1: S  *= 1 + (r-q)·T/N + σ·√(T/N)·Z   (N 次)
func terminal(p market.Params, T float64, steps int, rng *rand.Rand) float64 {
	if steps == 1 {
		return p.Spot * math.Exp((p.Rate-p.Dividend-0.5*p.Vol*p.Vol)*T+p.Vol*math.Sqrt(T)*rng.NormFloat64())
	}
	dt := T / float64(steps)
	drift, diffusion := (p.Rate-p.Dividend)*dt, p.Vol*math.Sqrt(dt)
	s := p.Spot
	for i := 0; i < steps; i++ {
		s *= 1 + drift + diffusion*rng.NormFloat64()
	}
	return s
}

func (e *Engine) price(p market.Params, pay payoff.Func) Estimate {
	T, steps := e.horizon(), e.cfg.Steps
	return e.simulate(func(rng *rand.Rand) float64 {
		return pay(terminal(p, T, steps, rng))
	})
}

// Price 欧式收益定价
func (e *Engine) Price(pay payoff.Func) (Estimate, error) {
	if pay == nil {
		return Estimate{}, option.ErrNilPayoff
	}
	return e.price(e.params, pay), nil
}

// Delta 现价中心差分 (S ± SpotBump)
// 上下两次模拟用同一组随机数 (同种子)，差分里的噪声大部分抵消
func (e *Engine) Delta(pay payoff.Func) (float64, error) {
	if pay == nil {
		return 0, option.ErrNilPayoff
	}
	p := e.params
	if p.Spot <= option.SpotBump {
		return 0, fmt.Errorf("%w: spot %v too small to bump", market.ErrInvalidParams, p.Spot)
	}
	up := e.price(p.WithSpot(p.Spot+option.SpotBump), pay)
	down := e.price(p.WithSpot(p.Spot-option.SpotBump), pay)
	return (up.Price - down.Price) / (2 * option.SpotBump), nil
}

// path 按交易日生成一条 GBM 路径，含起点
func (e *Engine) path(rng *rand.Rand) []float64 {
	days := e.days()
	return e.params.Paths(rng, days, 1, e.horizon()/float64(days))[0]
}

// PricePath 亚式等路径依赖收益定价 (按日采样)
func (e *Engine) PricePath(pay payoff.PathFunc) (Estimate, error) {
	if pay == nil {
		return Estimate{}, option.ErrNilPayoff
	}
	return e.simulate(func(rng *rand.Rand) float64 {
		return pay(e.path(rng))
	}), nil
}

// PriceLookback 回望收益定价 (按日观察最高/最低价)
func (e *Engine) PriceLookback(pay payoff.LookbackFunc) (Estimate, error) {
	if pay == nil {
		return Estimate{}, option.ErrNilPayoff
	}
	return e.simulate(func(rng *rand.Rand) float64 {
		path := e.path(rng)
		lo, hi := path[0], path[0]
		for _, s := range path[1:] {
			lo, hi = math.Min(lo, s), math.Max(hi, s)
		}
		return pay(path[len(path)-1], lo, hi)
	}), nil
}
