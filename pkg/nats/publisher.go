// 文件: pkg/nats/publisher.go
// NATS 消息发布者
// 报价和账簿风险的实时推送，轻量级替代 Kafka

package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"deriv.com/pkg/quote"
	"deriv.com/pkg/risk"
)

const (
	// 报价主题: pricing.quote.{symbol}
	SubjectQuotePrefix = "pricing.quote."
	// 账簿风险主题
	SubjectRisk = "pricing.risk"
	// 外部现价主题: market.spot.{symbol}
	SubjectSpotPrefix = "market.spot."
)

// Publisher NATS 发布者
type Publisher struct {
	conn *nats.Conn
}

// NewPublisher 创建发布者
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url, nats.Name("pricer-publisher"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Publisher{conn: conn}, nil
}

// Publish 发布 JSON 消息
func (p *Publisher) Publish(subject string, data any) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return p.conn.Publish(subject, bytes)
}

// PublishRaw 发布原始消息
func (p *Publisher) PublishRaw(subject string, data []byte) error {
	return p.conn.Publish(subject, data)
}

// PublishQuote 推送一条报价
func (p *Publisher) PublishQuote(_ context.Context, q *quote.Quote) error {
	return p.Publish(SubjectQuotePrefix+q.Symbol, q)
}

// PublishRisk 推送账簿风险
func (p *Publisher) PublishRisk(_ context.Context, out risk.RiskOutput) error {
	return p.Publish(SubjectRisk, out)
}

// Flush 等待已发布的消息写出
func (p *Publisher) Flush() error {
	return p.conn.Flush()
}

// Close 关闭连接
func (p *Publisher) Close() {
	p.conn.Close()
}
