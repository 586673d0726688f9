// 文件: pkg/payoff/payoff.go
// 收益函数库
//
// 收益函数是纯函数: 输入标的价格 (或价格路径)，输出现金收益。
// 定价引擎只调用它，不关心它闭包了什么 (行权价、幂次...)，
// 所以既能给二叉树用，也能给蒙特卡洛用。

package payoff

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrUnknownPayoff 配置里出现了不认识的收益类型
var ErrUnknownPayoff = errors.New("unknown payoff")

// ErrInvalidPower power 不是有限数
var ErrInvalidPower = errors.New("invalid payoff power")

// Func 到期 (或行权时) 价格 -> 收益
type Func func(s float64) float64

// PathFunc 价格路径 -> 收益 (亚式)
type PathFunc func(path []float64) float64

// LookbackFunc (到期价, 路径最低价, 路径最高价) -> 收益 (回望)
type LookbackFunc func(s, sMin, sMax float64) float64

// =============================================================================
// 欧式 / 美式 / 百慕大 通用收益
// =============================================================================

// Forward 远期: S - K
func Forward(k float64) Func {
	return func(s float64) float64 { return s - k }
}

// Call 看涨: max(S - K, 0)
func Call(k float64) Func {
	return func(s float64) float64 {
		if s > k {
			return s - k
		}
		return 0
	}
}

// Put 看跌: max(K - S, 0)
func Put(k float64) Func {
	return func(s float64) float64 {
		if s < k {
			return k - s
		}
		return 0
	}
}

// DigitalCall 二元看涨: S > K 时支付 1
func DigitalCall(k float64) Func {
	return func(s float64) float64 {
		if s > k {
			return 1
		}
		return 0
	}
}

// DigitalPut 二元看跌: S < K 时支付 1
func DigitalPut(k float64) Func {
	return func(s float64) float64 {
		if s < k {
			return 1
		}
		return 0
	}
}

// PowerCall 幂看涨: max(S - K, 0)^λ
func PowerCall(k, lambda float64) Func {
	return func(s float64) float64 {
		if s > k {
			return math.Pow(s-k, lambda)
		}
		return 0
	}
}

// PowerPut 幂看跌: max(K - S, 0)^λ
func PowerPut(k, lambda float64) Func {
	return func(s float64) float64 {
		if s < k {
			return math.Pow(k-s, lambda)
		}
		return 0
	}
}

// Straddle 跨式: |S - K|
func Straddle(k float64) Func {
	return func(s float64) float64 {
		if s > k {
			return s - k
		}
		return k - s
	}
}

// =============================================================================
// 亚式 (路径依赖)
// =============================================================================

func arithmeticMean(path []float64) float64 {
	sum := 0.0
	for _, s := range path {
		sum += s
	}
	return sum / float64(len(path))
}

// 几何平均用对数求和，避免长路径连乘溢出
func geometricMean(path []float64) float64 {
	sum := 0.0
	for _, s := range path {
		sum += math.Log(s)
	}
	return math.Exp(sum / float64(len(path)))
}

// ArithmeticAsianCall 算术平均亚式看涨
func ArithmeticAsianCall(k float64) PathFunc {
	return func(path []float64) float64 { return math.Max(arithmeticMean(path)-k, 0) }
}

// ArithmeticAsianPut 算术平均亚式看跌
func ArithmeticAsianPut(k float64) PathFunc {
	return func(path []float64) float64 { return math.Max(k-arithmeticMean(path), 0) }
}

// GeometricAsianCall 几何平均亚式看涨
func GeometricAsianCall(k float64) PathFunc {
	return func(path []float64) float64 { return math.Max(geometricMean(path)-k, 0) }
}

// GeometricAsianPut 几何平均亚式看跌
func GeometricAsianPut(k float64) PathFunc {
	return func(path []float64) float64 { return math.Max(k-geometricMean(path), 0) }
}

// =============================================================================
// 回望
// =============================================================================

// LookbackCallFixed 固定行权价回望看涨: max(Smax - K, 0)
func LookbackCallFixed(k float64) LookbackFunc {
	return func(_, _, sMax float64) float64 { return math.Max(sMax-k, 0) }
}

// LookbackPutFixed 固定行权价回望看跌: max(K - Smin, 0)
func LookbackPutFixed(k float64) LookbackFunc {
	return func(_, sMin, _ float64) float64 { return math.Max(k-sMin, 0) }
}

// LookbackCallFloating 浮动行权价回望看涨: S - Smin
func LookbackCallFloating() LookbackFunc {
	return func(s, sMin, _ float64) float64 { return s - sMin }
}

// LookbackPutFloating 浮动行权价回望看跌: Smax - S
func LookbackPutFloating() LookbackFunc {
	return func(s, _, sMax float64) float64 { return sMax - s }
}

// =============================================================================
// 配置解析
// =============================================================================

// Kind 收益类型名 (配置 / 请求里使用)
type Kind string

const (
	KindForward     Kind = "forward"
	KindCall        Kind = "call"
	KindPut         Kind = "put"
	KindDigitalCall Kind = "digital_call"
	KindDigitalPut  Kind = "digital_put"
	KindPowerCall   Kind = "power_call"
	KindPowerPut    Kind = "power_put"
	KindStraddle    Kind = "straddle"
)

// Parse 根据类型名构造收益函数
// power 只对 power_call / power_put 生效，<= 0 时按 1 处理; NaN / Inf 报错
func Parse(kind string, strike, power float64) (Func, error) {
	if math.IsNaN(power) || math.IsInf(power, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPower, power)
	}
	if power <= 0 {
		power = 1
	}
	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindForward:
		return Forward(strike), nil
	case KindCall:
		return Call(strike), nil
	case KindPut:
		return Put(strike), nil
	case KindDigitalCall:
		return DigitalCall(strike), nil
	case KindDigitalPut:
		return DigitalPut(strike), nil
	case KindPowerCall:
		return PowerCall(strike, power), nil
	case KindPowerPut:
		return PowerPut(strike, power), nil
	case KindStraddle:
		return Straddle(strike), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPayoff, kind)
}

// ParsePath 构造亚式收益: arithmetic_asian_call / arithmetic_asian_put / geometric_asian_call / geometric_asian_put
func ParsePath(kind string, strike float64) (PathFunc, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "arithmetic_asian_call":
		return ArithmeticAsianCall(strike), nil
	case "arithmetic_asian_put":
		return ArithmeticAsianPut(strike), nil
	case "geometric_asian_call":
		return GeometricAsianCall(strike), nil
	case "geometric_asian_put":
		return GeometricAsianPut(strike), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPayoff, kind)
}

// ParseLookback 构造回望收益: lookback_call_fixed / lookback_put_fixed / lookback_call_floating / lookback_put_floating
func ParseLookback(kind string, strike float64) (LookbackFunc, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "lookback_call_fixed":
		return LookbackCallFixed(strike), nil
	case "lookback_put_fixed":
		return LookbackPutFixed(strike), nil
	case "lookback_call_floating":
		return LookbackCallFloating(), nil
	case "lookback_put_floating":
		return LookbackPutFloating(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPayoff, kind)
}
