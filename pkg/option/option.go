// 文件: pkg/option/option.go
// 二叉树期权定价
//
// Option = 市场参数 (值) + 行权条款 + 收益函数 + 引擎配置
// 所有查询 (Price / Greeks) 都不修改 Option 本身，可以并发调用。

package option

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"deriv.com/pkg/exercise"
	"deriv.com/pkg/lattice"
	"deriv.com/pkg/market"
	"deriv.com/pkg/payoff"
)

const (
	DefaultSteps = 1000 // 默认格点步数
	DaysPerYear  = 252  // 每年交易日数，时间的基本单位是交易日

	SpotBump = 0.01   // 现价扰动 (蒙特卡洛 delta)
	VolBump  = 0.0001 // 波动率扰动 (vega)
	RateBump = 0.0001 // 利率扰动 (rho)

	// ThetaShift theta 的时间扰动: 1 个交易日
	ThetaShift = 1.0
)

var (
	// ErrInsufficientLatticeDepth delta 需要 >= 1 步，gamma 需要 >= 2 步
	ErrInsufficientLatticeDepth = errors.New("insufficient lattice depth")

	// ErrInvalidHorizon 到期时长 <= 0
	ErrInvalidHorizon = errors.New("invalid horizon")

	ErrUnknownStyle = errors.New("unknown exercise style")
	ErrNilPayoff    = errors.New("nil payoff")
)

// Style 行权方式
type Style int

const (
	European Style = iota
	American
	Bermudan
)

func (s Style) String() string {
	switch s {
	case European:
		return "european"
	case American:
		return "american"
	case Bermudan:
		return "bermudan"
	}
	return fmt.Sprintf("style(%d)", int(s))
}

// ParseStyle 解析配置里的行权方式
func ParseStyle(s string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "european", "euro", "":
		return European, nil
	case "american":
		return American, nil
	case "bermudan":
		return Bermudan, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStyle, s)
}

// Exercise 行权条款
// Expiry 和 Times 都以交易日计; Times 只有 Bermudan 使用
type Exercise struct {
	Style  Style
	Expiry float64
	Times  []float64
}

// EuropeanAt 欧式，expiry 个交易日后到期
func EuropeanAt(expiry float64) Exercise {
	return Exercise{Style: European, Expiry: expiry}
}

// AmericanAt 美式，到期前任意时刻可行权
func AmericanAt(expiry float64) Exercise {
	return Exercise{Style: American, Expiry: expiry}
}

// BermudanAt 百慕大，只能在 times 行权
func BermudanAt(expiry float64, times ...float64) Exercise {
	return Exercise{Style: Bermudan, Expiry: expiry, Times: append([]float64(nil), times...)}
}

// Shift 把整个行权安排平移 days 个交易日 (负数表示缩短)
// 平移后落在 0 之前的行权日被丢弃; 返回新值，原值不变
func (e Exercise) Shift(days float64) Exercise {
	out := Exercise{Style: e.Style, Expiry: e.Expiry + days}
	if len(e.Times) > 0 {
		out.Times = make([]float64, 0, len(e.Times))
		for _, t := range e.Times {
			if t+days >= 0 {
				out.Times = append(out.Times, t+days)
			}
		}
	}
	return out
}

// Horizon 到期时长 (年)
func (e Exercise) Horizon() float64 { return e.Expiry / DaysPerYear }

type config struct {
	steps   int
	workers int
}

// Opt 构造选项
type Opt func(*config)

// WithSteps 格点步数 (欧式/美式的总步数; 百慕大按它推算每日子步数)
func WithSteps(n int) Opt { return func(c *config) { c.steps = n } }

// WithWorkers 层内并行的 goroutine 数，<= 1 单线程
func WithWorkers(n int) Opt { return func(c *config) { c.workers = n } }

type Option struct {
	params   market.Params
	exercise Exercise
	pay      payoff.Func
	cfg      config
}

// New 创建期权
func New(params market.Params, ex Exercise, pay payoff.Func, opts ...Opt) (*Option, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if pay == nil {
		return nil, ErrNilPayoff
	}
	if err := checkHorizon(ex.Expiry); err != nil {
		return nil, err
	}
	if ex.Style < European || ex.Style > Bermudan {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStyle, int(ex.Style))
	}

	cfg := config{steps: DefaultSteps}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.steps < 1 {
		return nil, fmt.Errorf("%w: steps=%d", lattice.ErrInvalidLattice, cfg.steps)
	}

	o := &Option{params: params, pay: pay, cfg: cfg}
	o.exercise = ex
	o.exercise.Times = append([]float64(nil), ex.Times...)
	return o, nil
}

func checkHorizon(expiry float64) error {
	if !(expiry > 0) || math.IsInf(expiry, 0) {
		return fmt.Errorf("%w: expiry=%v days", ErrInvalidHorizon, expiry)
	}
	return nil
}

// Params 市场参数 (副本)
func (o *Option) Params() market.Params { return o.params }

// Exercise 行权条款 (副本)
func (o *Option) Exercise() Exercise {
	ex := o.exercise
	ex.Times = append([]float64(nil), o.exercise.Times...)
	return ex
}

// Steps 实际使用的格点步数
func (o *Option) Steps() (int, error) {
	steps, _, err := o.plan(o.exercise, 0)
	return steps, err
}

// plan 按行权方式决定步数和行权策略，唯一的分派点
// spd > 0 时百慕大沿用给定的每日子步数 (theta 平移时行权日必须仍然落在格点上)
func (o *Option) plan(ex Exercise, spd int) (int, lattice.Policy, error) {
	if err := checkHorizon(ex.Expiry); err != nil {
		return 0, nil, err
	}
	switch ex.Style {
	case European:
		return o.cfg.steps, exercise.European{}, nil
	case American:
		return o.cfg.steps, exercise.American{}, nil
	case Bermudan:
		if spd <= 0 {
			spd = exercise.StepsPerDay(o.cfg.steps, ex.Expiry)
		}
		total := ex.Expiry * float64(spd)
		steps := math.Round(total)
		if math.Abs(total-steps) > 1e-9 || steps < 1 {
			return 0, nil, fmt.Errorf("%w: expiry %v days is not a whole number of steps (%d steps/day)",
				exercise.ErrInvalidExerciseSchedule, ex.Expiry, spd)
		}
		policy, err := exercise.NewBermudan(ex.Times, ex.Expiry, spd)
		if err != nil {
			return 0, nil, err
		}
		return int(steps), policy, nil
	}
	return 0, nil, fmt.Errorf("%w: %d", ErrUnknownStyle, int(ex.Style))
}

// run 一次完整的 构建 -> 终端收益 -> 逆向归纳
type run struct {
	spec   lattice.Spec
	prices lattice.Tree
	values lattice.Tree
	price  float64
}

func (o *Option) evaluate(p market.Params, ex Exercise, spd int) (run, error) {
	steps, policy, err := o.plan(ex, spd)
	if err != nil {
		return run{}, err
	}
	spec, prices, err := p.Lattice(ex.Horizon(), steps)
	if err != nil {
		return run{}, err
	}
	values := lattice.Terminal(prices, o.pay)
	engine := lattice.Engine{Workers: o.cfg.workers}
	price := engine.Induct(spec, prices, values, o.pay, policy)
	return run{spec: spec, prices: prices, values: values, price: price}, nil
}

// Price 期权价格
func (o *Option) Price() (float64, error) {
	r, err := o.evaluate(o.params, o.exercise, 0)
	if err != nil {
		return 0, err
	}
	return r.price, nil
}
