package risk

import "time"

// Position 表示一条期权仓位。
//
// 报价服务按标的给出单位合约的价格和希腊字母，
// 风险引擎再按仓位加权汇总成整本账簿的敞口。
type Position struct {
	// symbol：合约标识，和报价的 symbol 一一对应，例如 SPX_P100_A
	Symbol string `json:"symbol" yaml:"symbol"`

	// qty：持仓张数（正负表示方向）
	// - qty > 0 代表买入（long）
	// - qty < 0 代表卖出（short）
	Qty float64 `json:"qty" yaml:"qty"`

	// multiplier：合约乘数，一张合约对应多少份标的。
	// 0 视为 1，并给出提示。
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
}

// Sensitivity 单位合约的定价结果（来自报价服务）。
type Sensitivity struct {
	// spot：定价时的标的现价，用于计算 dollar delta / dollar gamma
	Spot float64 `json:"spot"`

	Price float64 `json:"price"`
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
	Theta float64 `json:"theta"`

	// ts：定价时间。超过 Engine.MaxQuoteAge 的报价会给出 stale 提示。
	Ts time.Time `json:"ts,omitempty"`
}

// RiskInput 是“风险引擎”的统一输入：仓位 + 每个 symbol 的最新定价。
type RiskInput struct {
	Positions []Position `json:"positions"`

	// quotes：symbol → 单位合约定价
	Quotes map[string]Sensitivity `json:"quotes"`
}

// RiskOutput 是“风险引擎”的统一输出。
//
// 全部是仓位加权后的净值：
// net_x = Σ qty · multiplier · x
type RiskOutput struct {
	// market_value：账簿市值
	MarketValue float64 `json:"market_value"`

	NetDelta float64 `json:"net_delta"`
	NetGamma float64 `json:"net_gamma"`
	NetVega  float64 `json:"net_vega"`
	NetRho   float64 `json:"net_rho"`
	NetTheta float64 `json:"net_theta"`

	// DollarDelta: 标的涨 1 元时账簿的盈亏（≈ Σ delta·S）
	DollarDelta float64 `json:"dollar_delta"`

	// DollarGamma: 标的涨跌 1% 时 gamma 贡献的盈亏 ½·Γ·(1%·S)²
	DollarGamma float64 `json:"dollar_gamma"`

	// positions：实际参与汇总的仓位数
	Positions int `json:"positions"`

	// warnings：提示信息（缺报价、乘数缺省、报价过期）
	Warnings []string `json:"warnings,omitempty"`
}
