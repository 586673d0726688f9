// 文件: pkg/quote/model.go
// 报价记录模型
//
// 价格和希腊字母落库/发布时使用 decimal，避免 float 序列化出现 0.30000000000000004

package quote

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"deriv.com/pkg/option"
)

// =============================================================================
// 定价引擎
// =============================================================================

type Engine string

const (
	EngineLattice    Engine = "lattice"
	EngineMonteCarlo Engine = "montecarlo"
	EngineAnalytic   Engine = "analytic"
)

// 小数位数
const scale = 10

// ErrNonFinite 定价结果含 NaN / Inf，不能落库
var ErrNonFinite = errors.New("non-finite pricing result")

// =============================================================================
// Quote - 一次定价的结果
// =============================================================================

type Quote struct {
	ID      uint  `gorm:"primaryKey;autoIncrement" json:"-"`
	QuoteID int64 `gorm:"column:quote_id;uniqueIndex" json:"quote_id"` // 雪花ID

	Symbol string `gorm:"column:symbol;type:varchar(32);index:idx_symbol_created" json:"symbol"`
	Engine Engine `gorm:"column:engine;type:varchar(16)" json:"engine"`
	Style  string `gorm:"column:style;type:varchar(16)" json:"style"`
	Payoff string `gorm:"column:payoff;type:varchar(32)" json:"payoff"`

	Strike decimal.Decimal `gorm:"column:strike;type:decimal(32,10)" json:"strike"`
	Expiry float64         `gorm:"column:expiry" json:"expiry"` // 交易日
	Spot   decimal.Decimal `gorm:"column:spot;type:decimal(32,10)" json:"spot"`

	Price decimal.Decimal `gorm:"column:price;type:decimal(32,10)" json:"price"`
	Delta decimal.Decimal `gorm:"column:delta;type:decimal(32,10)" json:"delta"`
	Gamma decimal.Decimal `gorm:"column:gamma;type:decimal(32,10)" json:"gamma"`
	Vega  decimal.Decimal `gorm:"column:vega;type:decimal(32,10)" json:"vega"`
	Rho   decimal.Decimal `gorm:"column:rho;type:decimal(32,10)" json:"rho"`
	Theta decimal.Decimal `gorm:"column:theta;type:decimal(32,10)" json:"theta"`

	CreatedAt int64 `gorm:"column:created_at;index:idx_symbol_created" json:"created_at"`
}

func (Quote) TableName() string {
	return "option_quotes"
}

// Contract 报价对应的合约描述
type Contract struct {
	Symbol string
	Style  option.Style
	Payoff string
	Strike float64
	Expiry float64
}

// NewQuote 由定价结果创建报价记录
func NewQuote(quoteID int64, c Contract, engine Engine, spot float64, g option.Greeks) *Quote {
	return &Quote{
		QuoteID:   quoteID,
		Symbol:    c.Symbol,
		Engine:    engine,
		Style:     c.Style.String(),
		Payoff:    c.Payoff,
		Strike:    toDecimal(c.Strike),
		Expiry:    c.Expiry,
		Spot:      toDecimal(spot),
		Price:     toDecimal(g.Price),
		Delta:     toDecimal(g.Delta),
		Gamma:     toDecimal(g.Gamma),
		Vega:      toDecimal(g.Vega),
		Rho:       toDecimal(g.Rho),
		Theta:     toDecimal(g.Theta),
		CreatedAt: time.Now().UnixMilli(),
	}
}

// CheckFinite 创建报价前检查现价和定价结果
func CheckFinite(spot float64, g option.Greeks) error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"spot", spot}, {"price", g.Price}, {"delta", g.Delta}, {"gamma", g.Gamma},
		{"vega", g.Vega}, {"rho", g.Rho}, {"theta", g.Theta},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s=%v", ErrNonFinite, f.name, f.v)
		}
	}
	return nil
}

// toDecimal decimal.NewFromFloat 遇到 NaN / Inf 会 panic，这里记为 0
func toDecimal(x float64) decimal.Decimal {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(x).Round(scale)
}

// Greeks 转回 float 形式 (风险聚合用)
func (q *Quote) Greeks() option.Greeks {
	return option.Greeks{
		Price: q.Price.InexactFloat64(),
		Delta: q.Delta.InexactFloat64(),
		Gamma: q.Gamma.InexactFloat64(),
		Vega:  q.Vega.InexactFloat64(),
		Rho:   q.Rho.InexactFloat64(),
		Theta: q.Theta.InexactFloat64(),
	}
}
