package risk

import (
	"errors"
	"math"
	"time"
)

var (
	ErrEmptyPositions = errors.New("positions cannot be empty")
	ErrNilQuotes      = errors.New("quotes cannot be nil")
	ErrInvalidQuote   = errors.New("invalid quote")
)

// Engine 是风险引擎对象。
// 输入 RiskInput → 输出 RiskOutput，本身无状态，可以并发调用。
type Engine struct {
	// MaxQuoteAge 报价最大年龄，0 表示不检查
	MaxQuoteAge time.Duration

	now func() time.Time
}

func NewEngine(maxQuoteAge time.Duration) *Engine {
	return &Engine{MaxQuoteAge: maxQuoteAge, now: time.Now}
}

// ComputeRisk 汇总账簿希腊字母
// 缺报价的仓位跳过并提示；报价本身非法 (NaN / Inf / 现价 <= 0) 直接报错
func (e *Engine) ComputeRisk(in RiskInput) (RiskOutput, error) {
	// 1. 基础校验
	if err := validateInput(in); err != nil {
		return RiskOutput{}, err
	}

	var (
		out      RiskOutput
		warnings []string
	)
	now := time.Now()
	if e.now != nil {
		now = e.now()
	}

	// 2. 遍历仓位
	for _, p := range in.Positions {
		// 2.1 获取报价
		q, ok := in.Quotes[p.Symbol]
		if !ok {
			warnings = append(warnings, "missing quote for "+p.Symbol)
			continue
		}
		if err := validateQuote(q); err != nil {
			return RiskOutput{}, errors.Join(err, errors.New("symbol "+p.Symbol))
		}
		if e.MaxQuoteAge > 0 && !q.Ts.IsZero() && now.Sub(q.Ts) > e.MaxQuoteAge {
			warnings = append(warnings, "stale quote for "+p.Symbol)
		}

		mult := p.Multiplier
		if mult == 0 {
			mult = 1
			warnings = append(warnings, "multiplier defaulted to 1 for "+p.Symbol)
		}
		w := p.Qty * mult

		// 2.2 聚合
		out.MarketValue += w * q.Price
		out.NetDelta += w * q.Delta
		out.NetGamma += w * q.Gamma
		out.NetVega += w * q.Vega
		out.NetRho += w * q.Rho
		out.NetTheta += w * q.Theta

		out.DollarDelta += w * q.Delta * q.Spot
		move := 0.01 * q.Spot
		out.DollarGamma += w * 0.5 * q.Gamma * move * move

		out.Positions++
	}

	out.Warnings = dedup(warnings)
	return out, nil
}

func validateInput(in RiskInput) error {
	if len(in.Positions) == 0 {
		return ErrEmptyPositions
	}
	if in.Quotes == nil {
		return ErrNilQuotes
	}
	return nil
}

func validateQuote(q Sensitivity) error {
	if !(q.Spot > 0) {
		return ErrInvalidQuote
	}
	for _, x := range []float64{q.Price, q.Delta, q.Gamma, q.Vega, q.Rho, q.Theta} {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ErrInvalidQuote
		}
	}
	return nil
}

func dedup(ss []string) []string {
	if len(ss) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, s := range ss {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
