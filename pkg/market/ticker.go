package market

import (
	"math"
	"math/rand/v2"
	"time"
)

// SpotTick 标的现价快照
type SpotTick struct {
	Symbol string    `json:"symbol"`
	Spot   float64   `json:"spot"`
	Ts     time.Time `json:"ts"`
}

// Ticker 模拟现价生成器
// 使用风险中性几何布朗运动，漂移 r - q，波动率取 Params.Vol
type Ticker struct {
	Symbol   string        // 标的标识，如 "SPX"
	Interval time.Duration // 生成频率

	params Params

	// 停止信号: close(stopChan) 本身就是广播
	stopChan chan struct{}

	// 输出通道带缓冲，抵抗下游的短暂停顿
	outChan chan SpotTick

	lastUpdated time.Time
}

// NewTicker 创建现价生成器
func NewTicker(symbol string, params Params, interval time.Duration) *Ticker {
	return &Ticker{
		Symbol:      symbol,
		Interval:    interval,
		params:      params,
		stopChan:    make(chan struct{}),
		outChan:     make(chan SpotTick, 100),
		lastUpdated: time.Now(),
	}
}

// Start 启动，返回只读 Channel
func (t *Ticker) Start() <-chan SpotTick {
	go t.loop()
	return t.outChan
}

// Stop 停止
func (t *Ticker) Stop() {
	close(t.stopChan)
}

func (t *Ticker) loop() {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	defer close(t.outChan)

	// 独立随机源，不和全局 rand 抢锁
	r := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))

	for {
		select {
		case <-t.stopChan:
			return

		case now := <-ticker.C:
			t.step(r, now)

			snap := SpotTick{Symbol: t.Symbol, Spot: t.params.Spot, Ts: now}

			// 非阻塞发送: 行情旧了就没价值，下游慢就丢
			select {
			case t.outChan <- snap:
			default:
			}
		}
	}
}

// step 推进一步 GBM
// dt 按自然时间折算成年
func (t *Ticker) step(r *rand.Rand, now time.Time) {
	dt := now.Sub(t.lastUpdated).Hours() / 24 / 365
	if dt <= 0 {
		dt = 1e-9
	}
	p := t.params
	z := r.NormFloat64()
	t.params.Spot *= math.Exp((p.Rate-p.Dividend-0.5*p.Vol*p.Vol)*dt + p.Vol*math.Sqrt(dt)*z)
	t.lastUpdated = now
}
