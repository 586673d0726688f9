// 文件: pkg/kafka/producer.go
// 报价 / 账簿风险写入 Kafka，供下游离线消费
//
// 异步发送: 重新定价的 worker 不等 broker 确认。
// Input 队列满时按 ctx 放弃，broker 卡住不会拖住定价。

package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// ErrProducerClosed 生产者已关闭
var ErrProducerClosed = errors.New("producer is closed")

// Message 一条待发送的消息
type Message interface {
	Topic() string          // 目标 topic
	Key() string            // 分区 key，同一合约 / 同一账簿保持有序
	Value() ([]byte, error) // JSON 消息体
}

// ProducerConfig 生产者配置
type ProducerConfig struct {
	Brokers        []string
	RequiredAcks   int           // 0 = 不等待, 1 = leader, -1 = 全部副本
	Compression    string        // none / gzip / snappy / lz4 / zstd
	FlushFrequency time.Duration // 批量刷新间隔
	FlushMessages  int
	MaxRetries     int
}

// DefaultProducerConfig 默认配置
// 报价量不大但要求低延迟，刷新间隔取得比较短
func DefaultProducerConfig(brokers []string) ProducerConfig {
	return ProducerConfig{
		Brokers:        brokers,
		RequiredAcks:   1,
		Compression:    "snappy",
		FlushFrequency: 50 * time.Millisecond,
		FlushMessages:  64,
		MaxRetries:     3,
	}
}

var compressionCodecs = map[string]sarama.CompressionCodec{
	"":       sarama.CompressionNone,
	"none":   sarama.CompressionNone,
	"gzip":   sarama.CompressionGZIP,
	"snappy": sarama.CompressionSnappy,
	"lz4":    sarama.CompressionLZ4,
	"zstd":   sarama.CompressionZSTD,
}

// saramaConfig 转成 sarama 配置
func (cfg ProducerConfig) saramaConfig() (*sarama.Config, error) {
	sc := sarama.NewConfig()

	switch cfg.RequiredAcks {
	case 0, 1, -1:
		sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.RequiredAcks)
	default:
		return nil, fmt.Errorf("kafka: required acks %d not in {0, 1, -1}", cfg.RequiredAcks)
	}

	codec, ok := compressionCodecs[cfg.Compression]
	if !ok {
		return nil, fmt.Errorf("kafka: unknown compression %q", cfg.Compression)
	}
	sc.Producer.Compression = codec

	sc.Producer.Flush.Frequency = cfg.FlushFrequency
	sc.Producer.Flush.Messages = cfg.FlushMessages
	sc.Producer.Retry.Max = cfg.MaxRetries
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	sc.Producer.Return.Successes = false
	sc.Producer.Return.Errors = true
	return sc, nil
}

// Producer 异步生产者
type Producer struct {
	producer sarama.AsyncProducer

	mu      sync.Mutex // 保护 byTopic
	byTopic map[string]int64

	failed atomic.Int64
	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewProducer 创建生产者
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	sc, err := cfg.saramaConfig()
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return newProducer(producer), nil
}

// newProducer 包装已有的 AsyncProducer (测试里传 mocks)
func newProducer(producer sarama.AsyncProducer) *Producer {
	p := &Producer{producer: producer, byTopic: make(map[string]int64)}
	p.wg.Add(1)
	go p.drainErrors()
	return p
}

// Send 序列化后投递
func (p *Producer) Send(ctx context.Context, msg Message) error {
	data, err := msg.Value()
	if err != nil {
		return fmt.Errorf("encode %s message: %w", msg.Topic(), err)
	}
	return p.SendRaw(ctx, msg.Topic(), msg.Key(), data)
}

// SendRaw 投递已编码的消息
func (p *Producer) SendRaw(ctx context.Context, topic, key string, value []byte) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	m := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s/%s: %w", topic, key, ctx.Err())
	case p.producer.Input() <- m:
	}

	p.mu.Lock()
	p.byTopic[topic]++
	p.mu.Unlock()
	return nil
}

func (p *Producer) drainErrors() {
	defer p.wg.Done()
	for err := range p.producer.Errors() {
		p.failed.Add(1)
		fields := log.Fields{"topic": err.Msg.Topic}
		if err.Msg.Key != nil {
			if k, e := err.Msg.Key.Encode(); e == nil {
				fields["key"] = string(k)
			}
		}
		log.WithFields(fields).WithError(err.Err).Error("[Kafka] delivery failed")
	}
}

// ProducerStats 已投递 / 投递失败的消息数
type ProducerStats struct {
	Sent   map[string]int64 // topic -> 条数
	Failed int64
}

// Total 全部 topic 的投递数
func (s ProducerStats) Total() int64 {
	var n int64
	for _, v := range s.Sent {
		n += v
	}
	return n
}

// Stats 统计快照
func (p *Producer) Stats() ProducerStats {
	p.mu.Lock()
	sent := make(map[string]int64, len(p.byTopic))
	for k, v := range p.byTopic {
		sent[k] = v
	}
	p.mu.Unlock()
	return ProducerStats{Sent: sent, Failed: p.failed.Load()}
}

// Close 等在途消息发完再返回，重复调用安全
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	err := p.producer.Close()
	p.wg.Wait()
	return err
}

func nowMillis() int64 { return time.Now().UnixMilli() }
