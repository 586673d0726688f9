// 文件: pkg/kafka/messages.go
// 定价相关的 Kafka 消息

package kafka

import (
	"context"
	"encoding/json"
	"strconv"

	"deriv.com/pkg/quote"
	"deriv.com/pkg/risk"
)

const (
	TopicQuotes   = "pricing.quotes"
	TopicRisk     = "pricing.risk"
	TopicRequests = "pricing.requests"
)

// QuoteMessage 报价消息，按 symbol 分区保证同一合约有序
type QuoteMessage struct {
	Quote *quote.Quote
}

func (m QuoteMessage) Topic() string          { return TopicQuotes }
func (m QuoteMessage) Key() string            { return m.Quote.Symbol }
func (m QuoteMessage) Value() ([]byte, error) { return json.Marshal(m.Quote) }

// RiskMessage 账簿风险消息
type RiskMessage struct {
	Book string
	Risk risk.RiskOutput
	Ts   int64 // 毫秒
}

func (m RiskMessage) Topic() string { return TopicRisk }
func (m RiskMessage) Key() string   { return m.Book }
func (m RiskMessage) Value() ([]byte, error) {
	return json.Marshal(struct {
		Book string          `json:"book"`
		Ts   int64           `json:"ts"`
		Risk risk.RiskOutput `json:"risk"`
	}{m.Book, m.Ts, m.Risk})
}

// Publisher 把报价和风险写入 Kafka
type Publisher struct {
	producer *Producer
	book     string
	now      func() int64
}

// NewPublisher book: 风险消息的分区 key
func NewPublisher(p *Producer, book string) *Publisher {
	return &Publisher{producer: p, book: book, now: nowMillis}
}

func (p *Publisher) PublishQuote(ctx context.Context, q *quote.Quote) error {
	return p.producer.Send(ctx, QuoteMessage{Quote: q})
}

func (p *Publisher) PublishRisk(ctx context.Context, out risk.RiskOutput) error {
	return p.producer.Send(ctx, RiskMessage{Book: p.book, Risk: out, Ts: p.now()})
}

// RequestKey 定价请求的分区 key
func RequestKey(requestID int64) string {
	return strconv.FormatInt(requestID, 10)
}
