// 文件: pkg/analytic/bs.go
// Black-Scholes 闭式解 (连续股息率 q)
//
// 二叉树和蒙特卡洛的基准: 欧式期权在步数足够大时应当收敛到这里的结果。

package analytic

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// 错误信息，针对无效输入
	ErrInvalidInputs = errors.New("invalid inputs")

	// ErrNoConvergence 隐含波动率牛顿迭代不收敛
	ErrNoConvergence = errors.New("failed to converge to implied volatility")
)

/*
Greeks 是衡量期权价格对不同市场因素敏感度的指标:

Delta: 标的价格变动 1 单位时，期权价格的变动量。

Gamma: 标的价格变动 1 单位时，Delta 的变动量。

Vega: 波动率变动 1 单位 (100%) 时，期权价格的变动量。

Theta: 时间流逝 1 年时，期权价格的变动量 (通常为负)。

Rho: 无风险利率变动 1 单位时，期权价格的变动量。
*/

// Right 看涨 / 看跌
type Right int

const (
	Call Right = iota
	Put
)

var unitNormal = distuv.UnitNormal

// Price Black-Scholes 价格
// S: 现价, K: 行权价, r: 无风险利率, q: 连续股息率, sigma: 年化波动率, T: 剩余期限 (年)
func Price(right Right, S, K, r, q, sigma, T float64) (float64, error) {
	if err := validateBSInputs(S, K, sigma, T); err != nil {
		return 0, err
	}

	// T=0 即内在价值
	if T == 0 {
		return intrinsic(right, S, K), nil
	}

	fwd := S * math.Exp(-q*T)
	dk := K * math.Exp(-r*T)

	// 波动率为 0，价格是确定的: 贴现远期的内在价值
	if sigma == 0 {
		return intrinsic(right, fwd, dk), nil
	}

	d1, d2 := calcD(S, K, r, q, sigma, T)
	if right == Call {
		return fwd*unitNormal.CDF(d1) - dk*unitNormal.CDF(d2), nil
	}
	return dk*unitNormal.CDF(-d2) - fwd*unitNormal.CDF(-d1), nil
}

func intrinsic(right Right, s, k float64) float64 {
	if right == Call {
		return math.Max(s-k, 0)
	}
	return math.Max(k-s, 0)
}

// Delta ∂V/∂S
func Delta(right Right, S, K, r, q, sigma, T float64) (float64, error) {
	if err := validateGreekInputs(S, K, sigma, T); err != nil {
		return 0, err
	}
	d1, _ := calcD(S, K, r, q, sigma, T)
	nd1 := unitNormal.CDF(d1)
	if right == Put {
		nd1 -= 1
	}
	return math.Exp(-q*T) * nd1, nil
}

// Gamma ∂²V/∂S²，看涨看跌相同
func Gamma(S, K, r, q, sigma, T float64) (float64, error) {
	if err := validateGreekInputs(S, K, sigma, T); err != nil {
		return 0, err
	}
	d1, _ := calcD(S, K, r, q, sigma, T)
	return math.Exp(-q*T) * unitNormal.Prob(d1) / (S * sigma * math.Sqrt(T)), nil
}

// Vega ∂V/∂σ，看涨看跌相同
func Vega(S, K, r, q, sigma, T float64) (float64, error) {
	if err := validateGreekInputs(S, K, sigma, T); err != nil {
		return 0, err
	}
	d1, _ := calcD(S, K, r, q, sigma, T)
	return S * math.Exp(-q*T) * math.Sqrt(T) * unitNormal.Prob(d1), nil
}

// Theta ∂V/∂t (按年)
func Theta(right Right, S, K, r, q, sigma, T float64) (float64, error) {
	if err := validateGreekInputs(S, K, sigma, T); err != nil {
		return 0, err
	}
	d1, d2 := calcD(S, K, r, q, sigma, T)
	fwd := S * math.Exp(-q*T)
	dk := K * math.Exp(-r*T)

	decay := -fwd * unitNormal.Prob(d1) * sigma / (2 * math.Sqrt(T))
	if right == Call {
		return decay - r*dk*unitNormal.CDF(d2) + q*fwd*unitNormal.CDF(d1), nil
	}
	return decay + r*dk*unitNormal.CDF(-d2) - q*fwd*unitNormal.CDF(-d1), nil
}

// Rho ∂V/∂r
func Rho(right Right, S, K, r, q, sigma, T float64) (float64, error) {
	if err := validateGreekInputs(S, K, sigma, T); err != nil {
		return 0, err
	}
	_, d2 := calcD(S, K, r, q, sigma, T)
	dk := K * T * math.Exp(-r*T)
	if right == Call {
		return dk * unitNormal.CDF(d2), nil
	}
	return -dk * unitNormal.CDF(-d2), nil
}

// ImpliedVolatility 通过期权市场价格反推隐含波动率 (牛顿法)
func ImpliedVolatility(right Right, S, K, r, q, marketPrice, T float64) (float64, error) {
	// 初始猜测 20%
	sigma := 0.2
	tolerance := 1e-8
	maxIterations := 100

	for i := 0; i < maxIterations; i++ {
		price, err := Price(right, S, K, r, q, sigma, T)
		if err != nil {
			return 0, err
		}
		vega, err := Vega(S, K, r, q, sigma, T)
		if err != nil {
			return 0, err
		}

		priceError := marketPrice - price
		if math.Abs(priceError) < tolerance {
			return sigma, nil
		}
		// vega 太小时牛顿步会飞出去
		if vega < 1e-10 {
			break
		}
		sigma += priceError / vega
		if sigma <= 0 {
			sigma = 1e-4
		}
	}
	return 0, ErrNoConvergence
}

// Quote 价格 + Greeks 一次算完
type Quote struct {
	Price float64
	Delta float64
	Gamma float64
	Vega  float64
	Theta float64
	Rho   float64
}

// Evaluate 计算价格和全部 Greeks
func Evaluate(right Right, S, K, r, q, sigma, T float64) (Quote, error) {
	var (
		out Quote
		err error
	)
	if out.Price, err = Price(right, S, K, r, q, sigma, T); err != nil {
		return Quote{}, err
	}
	if out.Delta, err = Delta(right, S, K, r, q, sigma, T); err != nil {
		return Quote{}, err
	}
	out.Gamma, _ = Gamma(S, K, r, q, sigma, T)
	out.Vega, _ = Vega(S, K, r, q, sigma, T)
	out.Theta, _ = Theta(right, S, K, r, q, sigma, T)
	out.Rho, _ = Rho(right, S, K, r, q, sigma, T)
	return out, nil
}

// validateBSInputs 检查 Black-Scholes 输入的有效性
func validateBSInputs(S, K, sigma, T float64) error {
	// 当前标的价格和执行价必须大于零
	if !(S > 0) || !(K > 0) {
		return ErrInvalidInputs
	}
	// 波动率和到期时间不能为负
	if !(sigma >= 0) || !(T >= 0) {
		return ErrInvalidInputs
	}
	return nil
}

// Greeks 在 sigma=0 或 T=0 处不可导
func validateGreekInputs(S, K, sigma, T float64) error {
	if err := validateBSInputs(S, K, sigma, T); err != nil {
		return err
	}
	if sigma == 0 || T == 0 {
		return ErrInvalidInputs
	}
	return nil
}

// calcD 计算 d1, d2
// d1 = [ln(S/K) + (r - q + 0.5*sigma^2)T] / (sigma * sqrt(T))
// d2 = d1 - sigma * sqrt(T)
func calcD(S, K, r, q, sigma, T float64) (float64, float64) {
	sqrtT := math.Sqrt(T)
	d1 := (math.Log(S/K) + (r-q+0.5*sigma*sigma)*T) / (sigma * sqrtT)
	return d1, d1 - sigma*sqrtT
}
