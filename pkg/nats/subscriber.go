// 文件: pkg/nats/subscriber.go
// NATS 订阅: 现价行情、报价回放
//
// 连接断开后无限重连，行情源短暂不可用时服务不退出。

package nats

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// MessageHandler 消息处理函数
type MessageHandler func(subject string, data []byte) error

// SubscriberOption 订阅者选项
type SubscriberOption func(*subscriberOptions)

type subscriberOptions struct {
	name          string
	queue         string
	reconnectWait time.Duration
}

// WithName 连接名，便于在 nats-server 监控里区分实例
func WithName(name string) SubscriberOption {
	return func(o *subscriberOptions) { o.name = name }
}

// WithQueue 以队列组订阅，同组实例分摊消息
// 现价行情不要用: 每个报价实例都需要全部行情
func WithQueue(group string) SubscriberOption {
	return func(o *subscriberOptions) { o.queue = group }
}

// WithReconnectWait 重连间隔
func WithReconnectWait(d time.Duration) SubscriberOption {
	return func(o *subscriberOptions) { o.reconnectWait = d }
}

// SubscriberStats 处理统计
type SubscriberStats struct {
	Received int64
	Failed   int64
}

// Subscriber NATS 订阅者
type Subscriber struct {
	conn    *nats.Conn
	opts    subscriberOptions
	subs    []*nats.Subscription
	handler MessageHandler

	received atomic.Int64
	failed   atomic.Int64
}

// NewSubscriber 创建订阅者
func NewSubscriber(url string, handler MessageHandler, opts ...SubscriberOption) (*Subscriber, error) {
	o := subscriberOptions{name: "pricer-subscriber", reconnectWait: time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := nats.Connect(url,
		nats.Name(o.name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(o.reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.WithField("name", o.name).WithError(err).Warn("[NATS] disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.WithFields(log.Fields{"name": o.name, "url": c.ConnectedUrl()}).Info("[NATS] reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return newSubscriber(conn, handler, o), nil
}

func newSubscriber(conn *nats.Conn, handler MessageHandler, o subscriberOptions) *Subscriber {
	return &Subscriber{conn: conn, opts: o, handler: handler}
}

func (s *Subscriber) handle(msg *nats.Msg) {
	s.received.Add(1)
	if err := s.handler(msg.Subject, msg.Data); err != nil {
		s.failed.Add(1)
		log.WithFields(log.Fields{"subject": msg.Subject, "queue": s.opts.queue}).WithError(err).Warn("[NATS] handle error")
	}
}

// Subscribe 订阅主题 (支持通配符，如 market.spot.*)
func (s *Subscriber) Subscribe(subjects ...string) error {
	for _, subject := range subjects {
		var (
			sub *nats.Subscription
			err error
		)
		if s.opts.queue != "" {
			sub, err = s.conn.QueueSubscribe(subject, s.opts.queue, s.handle)
		} else {
			sub, err = s.conn.Subscribe(subject, s.handle)
		}
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	return nil
}

// SubscribeSpot 订阅标的现价; 不给标的时订阅全部
func (s *Subscriber) SubscribeSpot(symbols ...string) error {
	return s.Subscribe(SpotSubjects(symbols...)...)
}

// SpotSubjects 标的 -> market.spot.{symbol}; 为空时返回通配主题
func SpotSubjects(symbols ...string) []string {
	if len(symbols) == 0 {
		return []string{SubjectSpotPrefix + "*"}
	}
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, SubjectSpotPrefix+s)
	}
	return out
}

// Stats 统计快照
func (s *Subscriber) Stats() SubscriberStats {
	return SubscriberStats{Received: s.received.Load(), Failed: s.failed.Load()}
}

// Flush 确认订阅已到达服务端
func (s *Subscriber) Flush() error {
	return s.conn.Flush()
}

// Close 退订并关闭连接
func (s *Subscriber) Close() error {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
	if s.conn == nil {
		return nil
	}
	s.conn.Close()
	return nil
}

// UnmarshalJSON 反序列化 JSON
func UnmarshalJSON[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
