// 文件: pkg/quoter/instrument.go
// 报价合约定义 (来自配置或定价请求)

package quoter

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"deriv.com/pkg/market"
	"deriv.com/pkg/option"
	"deriv.com/pkg/payoff"
	"deriv.com/pkg/quote"
	"deriv.com/pkg/risk"
)

var ErrInvalidInstrument = errors.New("invalid instrument")

// Instrument 一个期权合约 + 账簿里的持仓
type Instrument struct {
	Symbol     string    `json:"symbol" yaml:"symbol"`         // 合约标识，唯一
	Underlying string    `json:"underlying" yaml:"underlying"` // 标的，对应 markets 的 key
	Payoff     string    `json:"payoff" yaml:"payoff"`         // payoff.Kind / 亚式 / 回望
	Strike     float64   `json:"strike" yaml:"strike"`
	Power      float64   `json:"power,omitempty" yaml:"power"`
	Style      string    `json:"style" yaml:"style"`   // european / american / bermudan
	Expiry     float64   `json:"expiry" yaml:"expiry"` // 交易日
	Times      []float64 `json:"times,omitempty" yaml:"times"`

	Qty        float64 `json:"qty,omitempty" yaml:"qty"`
	Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier"`
}

// Validate 只检查不依赖市场参数的部分
func (in Instrument) Validate() error {
	if strings.TrimSpace(in.Symbol) == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidInstrument)
	}
	if strings.TrimSpace(in.Underlying) == "" {
		return fmt.Errorf("%w: %s has no underlying", ErrInvalidInstrument, in.Symbol)
	}
	if _, err := option.ParseStyle(in.Style); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidInstrument, in.Symbol, err)
	}
	if math.IsNaN(in.Power) || math.IsInf(in.Power, 0) {
		return fmt.Errorf("%w: %s: power=%v", ErrInvalidInstrument, in.Symbol, in.Power)
	}
	return nil
}

// Exercise 行权条款
func (in Instrument) Exercise() (option.Exercise, error) {
	style, err := option.ParseStyle(in.Style)
	if err != nil {
		return option.Exercise{}, err
	}
	return option.Exercise{Style: style, Expiry: in.Expiry, Times: in.Times}, nil
}

// Option 用给定市场参数构造二叉树期权
func (in Instrument) Option(p market.Params, opts ...option.Opt) (*option.Option, error) {
	pay, err := payoff.Parse(in.Payoff, in.Strike, in.Power)
	if err != nil {
		return nil, err
	}
	ex, err := in.Exercise()
	if err != nil {
		return nil, err
	}
	return option.New(p, ex, pay, opts...)
}

// Contract 报价记录里的合约描述
func (in Instrument) Contract() quote.Contract {
	style, _ := option.ParseStyle(in.Style)
	return quote.Contract{
		Symbol: in.Symbol,
		Style:  style,
		Payoff: in.Payoff,
		Strike: in.Strike,
		Expiry: in.Expiry,
	}
}

// Position 账簿仓位
func (in Instrument) Position() risk.Position {
	return risk.Position{Symbol: in.Symbol, Qty: in.Qty, Multiplier: in.Multiplier}
}
