// 文件: pkg/quoter/request.go
// 定价请求 -> 任一引擎的定价结果

package quoter

import (
	"errors"
	"fmt"
	"strings"

	"deriv.com/pkg/analytic"
	"deriv.com/pkg/market"
	"deriv.com/pkg/montecarlo"
	"deriv.com/pkg/option"
	"deriv.com/pkg/payoff"
	"deriv.com/pkg/quote"
)

var ErrUnsupportedEngine = errors.New("unsupported engine for contract")

// Request 定价请求 (Kafka pricing.requests / CLI)
// Market.Spot == 0 时使用服务维护的标的行情
type Request struct {
	RequestID  int64         `json:"request_id"`
	Instrument Instrument    `json:"instrument"`
	Market     market.Params `json:"market"`
	Engine     quote.Engine  `json:"engine"`

	Steps   int    `json:"steps,omitempty"`    // 二叉树步数，0 = option.DefaultSteps
	Paths   int    `json:"paths,omitempty"`    // 蒙特卡洛路径数，0 = montecarlo.DefaultPaths
	MCSteps int    `json:"mc_steps,omitempty"` // 蒙特卡洛终值采样步数，0 = 1
	Seed    uint64 `json:"seed,omitempty"`
}

// Pricer 引擎参数
type Pricer struct {
	Steps          int // 二叉树步数
	LatticeWorkers int // 层内并行
	Paths          int
	MCSteps        int
	Seed           uint64
	MCWorkers      int
}

// DefaultPricer 默认引擎参数
func DefaultPricer() Pricer {
	return Pricer{Steps: option.DefaultSteps, LatticeWorkers: 1, Paths: montecarlo.DefaultPaths, MCSteps: 1, Seed: 1, MCWorkers: 1}
}

// Merge 请求里显式给出的参数优先
func (p Pricer) Merge(req Request) Pricer {
	if req.Steps > 0 {
		p.Steps = req.Steps
	}
	if req.Paths > 0 {
		p.Paths = req.Paths
	}
	if req.MCSteps > 0 {
		p.MCSteps = req.MCSteps
	}
	if req.Seed != 0 {
		p.Seed = req.Seed
	}
	return p
}

// Price 按引擎定价
// 二叉树给出全部希腊字母; 闭式解只支持欧式看涨/看跌; 蒙特卡洛只给价格和 delta
func (p Pricer) Price(engine quote.Engine, in Instrument, m market.Params) (option.Greeks, error) {
	switch quote.Engine(strings.ToLower(string(engine))) {
	case quote.EngineLattice, "":
		opt, err := in.Option(m, option.WithSteps(p.Steps), option.WithWorkers(p.LatticeWorkers))
		if err != nil {
			return option.Greeks{}, err
		}
		return opt.Greeks()
	case quote.EngineAnalytic:
		return p.analytic(in, m)
	case quote.EngineMonteCarlo:
		return p.monteCarlo(in, m)
	}
	return option.Greeks{}, fmt.Errorf("%w: engine %q", ErrUnsupportedEngine, engine)
}

func (p Pricer) analytic(in Instrument, m market.Params) (option.Greeks, error) {
	ex, err := in.Exercise()
	if err != nil {
		return option.Greeks{}, err
	}
	var right analytic.Right
	switch payoff.Kind(strings.ToLower(in.Payoff)) {
	case payoff.KindCall:
		right = analytic.Call
	case payoff.KindPut:
		right = analytic.Put
	default:
		return option.Greeks{}, fmt.Errorf("%w: analytic %s", ErrUnsupportedEngine, in.Payoff)
	}
	if ex.Style != option.European {
		return option.Greeks{}, fmt.Errorf("%w: analytic %s", ErrUnsupportedEngine, ex.Style)
	}
	q, err := analytic.Evaluate(right, m.Spot, in.Strike, m.Rate, m.Dividend, m.Vol, ex.Horizon())
	if err != nil {
		return option.Greeks{}, err
	}
	return option.Greeks{Price: q.Price, Delta: q.Delta, Gamma: q.Gamma, Vega: q.Vega, Rho: q.Rho, Theta: q.Theta}, nil
}

func (p Pricer) monteCarlo(in Instrument, m market.Params) (option.Greeks, error) {
	ex, err := in.Exercise()
	if err != nil {
		return option.Greeks{}, err
	}
	if ex.Style != option.European {
		return option.Greeks{}, fmt.Errorf("%w: montecarlo %s", ErrUnsupportedEngine, ex.Style)
	}
	e, err := montecarlo.New(m, ex.Expiry, montecarlo.Config{Paths: p.Paths, Steps: p.MCSteps, Seed: p.Seed, Workers: p.MCWorkers})
	if err != nil {
		return option.Greeks{}, err
	}

	// 路径依赖收益优先匹配
	if pf, err := payoff.ParsePath(in.Payoff, in.Strike); err == nil {
		est, err := e.PricePath(pf)
		return option.Greeks{Price: est.Price}, err
	}
	if lf, err := payoff.ParseLookback(in.Payoff, in.Strike); err == nil {
		est, err := e.PriceLookback(lf)
		return option.Greeks{Price: est.Price}, err
	}

	pay, err := payoff.Parse(in.Payoff, in.Strike, in.Power)
	if err != nil {
		return option.Greeks{}, err
	}
	est, err := e.Price(pay)
	if err != nil {
		return option.Greeks{}, err
	}
	delta, err := e.Delta(pay)
	if err != nil {
		return option.Greeks{}, err
	}
	return option.Greeks{Price: est.Price, Delta: delta}, nil
}
