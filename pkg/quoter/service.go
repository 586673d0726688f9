// 文件: pkg/quoter/service.go
// 实时报价服务
//
//	SpotTick ──> OnTick ──> Reprice (worker pool) ──> repo.Save ──> Publisher.PublishQuote
//	                                   │
//	                                   └──> BookRisk ──> Publisher.PublishRisk
//
// 每个标的的现价更新后，只重新定价挂在该标的上的合约。

package quoter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"deriv.com/pkg/market"
	"deriv.com/pkg/option"
	"deriv.com/pkg/quote"
	"deriv.com/pkg/risk"
)

var (
	ErrUnknownUnderlying = errors.New("unknown underlying")
	ErrDuplicateSymbol   = errors.New("duplicate instrument symbol")
)

// Publisher 报价/风险的推送目标 (NATS、Kafka)
type Publisher interface {
	PublishQuote(ctx context.Context, q *quote.Quote) error
	PublishRisk(ctx context.Context, out risk.RiskOutput) error
}

// Config 服务配置
type Config struct {
	Workers        int           // 重新定价的 worker 数
	RequestTimeout time.Duration // 单个定价请求的超时
	MaxQuoteAge    time.Duration // 风险汇总时报价的最大年龄
	Pricer         Pricer
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		RequestTimeout: 10 * time.Second,
		MaxQuoteAge:    time.Minute,
		Pricer:         DefaultPricer(),
	}
}

// Service 报价服务
type Service struct {
	cfg         Config
	instruments []Instrument
	byUnderly   map[string][]int // underlying -> instruments 下标
	repo        quote.Repository
	pubs        []Publisher
	riskEngine  *risk.Engine

	mu      sync.RWMutex
	markets map[string]market.Params     // underlying -> 最新参数
	latest  map[string]risk.Sensitivity // symbol -> 最新定价
}

// NewService 创建报价服务
func NewService(cfg Config, markets map[string]market.Params, instruments []Instrument, repo quote.Repository, pubs ...Publisher) (*Service, error) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	s := &Service{
		cfg:         cfg,
		instruments: append([]Instrument(nil), instruments...),
		byUnderly:   make(map[string][]int),
		repo:        repo,
		pubs:        pubs,
		riskEngine:  risk.NewEngine(cfg.MaxQuoteAge),
		markets:     make(map[string]market.Params, len(markets)),
		latest:      make(map[string]risk.Sensitivity),
	}
	for name, p := range markets {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("market %s: %w", name, err)
		}
		s.markets[name] = p
	}

	seen := make(map[string]struct{}, len(instruments))
	for i, in := range s.instruments {
		if err := in.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[in.Symbol]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSymbol, in.Symbol)
		}
		seen[in.Symbol] = struct{}{}
		if _, ok := s.markets[in.Underlying]; !ok {
			return nil, fmt.Errorf("%w: %s (instrument %s)", ErrUnknownUnderlying, in.Underlying, in.Symbol)
		}
		s.byUnderly[in.Underlying] = append(s.byUnderly[in.Underlying], i)
	}
	return s, nil
}

// Market 标的当前参数
func (s *Service) Market(underlying string) (market.Params, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.markets[underlying]
	return p, ok
}

// =============================================================================
// 行情驱动
// =============================================================================

// Run 消费现价直到 ctx 结束或通道关闭
func (s *Service) Run(ctx context.Context, ticks <-chan market.SpotTick) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick, ok := <-ticks:
			if !ok {
				return nil
			}
			if err := s.OnTick(ctx, tick); err != nil {
				log.WithFields(log.Fields{"underlying": tick.Symbol, "spot": tick.Spot}).
					WithError(err).Warn("[Quoter] reprice failed")
			}
		}
	}
}

// OnTick 更新现价，重新定价该标的上的合约并推送账簿风险
func (s *Service) OnTick(ctx context.Context, tick market.SpotTick) error {
	if !(tick.Spot > 0) {
		return fmt.Errorf("%w: spot=%v", market.ErrInvalidParams, tick.Spot)
	}
	s.mu.Lock()
	p, ok := s.markets[tick.Symbol]
	if ok {
		s.markets[tick.Symbol] = p.WithSpot(tick.Spot)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUnderlying, tick.Symbol)
	}

	_, repriceErr := s.Reprice(ctx, tick.Symbol)
	if ctx.Err() != nil {
		return repriceErr
	}

	// 部分合约失败时账簿风险照样推送，缺报价的仓位会出现在 warnings 里
	if len(s.instruments) > 0 {
		out, err := s.BookRisk()
		if err == nil {
			s.publishRisk(ctx, out)
		} else {
			repriceErr = errors.Join(repriceErr, err)
		}
	}
	return repriceErr
}

type repriceResult struct {
	quote *quote.Quote
	err   error
}

// Reprice 用标的当前参数重新定价挂在它上面的合约
// 任务按下标分给 worker，结果写回对应位置，不需要加锁
func (s *Service) Reprice(ctx context.Context, underlying string) ([]*quote.Quote, error) {
	p, ok := s.Market(underlying)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUnderlying, underlying)
	}
	idx := s.byUnderly[underlying]
	if len(idx) == 0 {
		return nil, nil
	}

	start := time.Now()
	results := make([]repriceResult, len(idx))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(s.cfg.Workers, len(idx)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := range jobs {
				in := s.instruments[idx[k]]
				g, err := s.cfg.Pricer.Price(quote.EngineLattice, in, p)
				if err == nil {
					err = quote.CheckFinite(p.Spot, g)
				}
				if err != nil {
					results[k].err = fmt.Errorf("%s: %w", in.Symbol, err)
					continue
				}
				results[k].quote = quote.NewQuote(quote.GenerateQuoteID(), in.Contract(), quote.EngineLattice, p.Spot, g)
			}
		}()
	}
feed:
	for k := range idx {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- k:
		}
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		quotes []*quote.Quote
		errs   []error
	)
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		if err := s.store(ctx, r.quote); err != nil {
			errs = append(errs, err)
			continue
		}
		quotes = append(quotes, r.quote)
	}

	log.WithFields(log.Fields{
		"underlying": underlying,
		"spot":       p.Spot,
		"quotes":     len(quotes),
		"failed":     len(errs),
		"elapsed":    time.Since(start),
	}).Debug("[Quoter] repriced")

	return quotes, errors.Join(errs...)
}

// store 落库并推送，再记为该合约的最新定价 (账簿风险只认行情驱动的报价)
func (s *Service) store(ctx context.Context, q *quote.Quote) error {
	if err := s.save(ctx, q); err != nil {
		return err
	}

	g := q.Greeks()
	s.mu.Lock()
	s.latest[q.Symbol] = risk.Sensitivity{
		Spot:  q.Spot.InexactFloat64(),
		Price: g.Price,
		Delta: g.Delta,
		Gamma: g.Gamma,
		Vega:  g.Vega,
		Rho:   g.Rho,
		Theta: g.Theta,
		Ts:    time.UnixMilli(q.CreatedAt),
	}
	s.mu.Unlock()
	return nil
}

// save 落库、推送
// 推送失败只记日志，报价已经落库
func (s *Service) save(ctx context.Context, q *quote.Quote) error {
	if s.repo != nil {
		if err := s.repo.Save(ctx, q); err != nil {
			return fmt.Errorf("save quote %s: %w", q.Symbol, err)
		}
	}
	for _, pub := range s.pubs {
		if err := pub.PublishQuote(ctx, q); err != nil {
			log.WithField("symbol", q.Symbol).WithError(err).Warn("[Quoter] publish quote failed")
		}
	}
	return nil
}

// =============================================================================
// 账簿风险
// =============================================================================

// BookRisk 用最新定价汇总整本账簿
func (s *Service) BookRisk() (risk.RiskOutput, error) {
	in := risk.RiskInput{
		Positions: make([]risk.Position, 0, len(s.instruments)),
		Quotes:    make(map[string]risk.Sensitivity),
	}
	for _, inst := range s.instruments {
		in.Positions = append(in.Positions, inst.Position())
	}
	s.mu.RLock()
	for k, v := range s.latest {
		in.Quotes[k] = v
	}
	s.mu.RUnlock()

	return s.riskEngine.ComputeRisk(in)
}

func (s *Service) publishRisk(ctx context.Context, out risk.RiskOutput) {
	for _, pub := range s.pubs {
		if err := pub.PublishRisk(ctx, out); err != nil {
			log.WithError(err).Warn("[Quoter] publish risk failed")
		}
	}
}

// =============================================================================
// 定价请求
// =============================================================================

// HandleRequest 处理一次定价请求
// 请求没带市场参数时，使用服务维护的标的参数
func (s *Service) HandleRequest(ctx context.Context, req Request) (*quote.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	m := req.Market
	if m.Spot == 0 {
		p, ok := s.Market(req.Instrument.Underlying)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownUnderlying, req.Instrument.Underlying)
		}
		m = p
	}
	if err := req.Instrument.Validate(); err != nil {
		return nil, err
	}

	engine := req.Engine
	if engine == "" {
		engine = quote.EngineLattice
	}

	// 定价是纯计算，不可中断; 放到 goroutine 里以便超时返回
	type priced struct {
		g   option.Greeks
		err error
	}
	done := make(chan priced, 1)
	go func() {
		g, err := s.cfg.Pricer.Merge(req).Price(engine, req.Instrument, m)
		done <- priced{g, err}
	}()

	var r priced
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r = <-done:
	}
	if r.err != nil {
		return nil, r.err
	}
	if err := quote.CheckFinite(m.Spot, r.g); err != nil {
		return nil, fmt.Errorf("%s: %w", req.Instrument.Symbol, err)
	}

	// 请求可能带假设行情或换了引擎，不进账簿风险
	q := quote.NewQuote(quote.GenerateQuoteID(), req.Instrument.Contract(), engine, m.Spot, r.g)
	if err := s.save(ctx, q); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"request_id": req.RequestID,
		"symbol":     q.Symbol,
		"engine":     engine,
		"price":      q.Price.String(),
	}).Info("[Quoter] request priced")
	return q, nil
}

// HandleMessage 适配 kafka.MessageHandler，消息体是 JSON 编码的 Request
func (s *Service) HandleMessage(ctx context.Context, topic string, _ int32, offset int64, _, value []byte) error {
	var req Request
	if err := json.Unmarshal(value, &req); err != nil {
		return fmt.Errorf("decode request (topic=%s offset=%d): %w", topic, offset, err)
	}
	_, err := s.HandleRequest(ctx, req)
	return err
}
