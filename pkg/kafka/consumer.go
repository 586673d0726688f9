// 文件: pkg/kafka/consumer.go
// 定价请求消费者 (topic: pricing.requests)
//
// 一条消息一个定价请求，处理失败只记日志，offset 照常提交:
// 坏请求重放也不会变好。

package kafka

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Brokers       []string
	GroupID       string
	Topics        []string
	OffsetInitial int64 // sarama.OffsetNewest / sarama.OffsetOldest
	AutoCommit    bool
}

// DefaultConsumerConfig 默认从最新位置开始: 服务重启前积压的请求已经没人等结果
func DefaultConsumerConfig(brokers []string, groupID string, topics []string) ConsumerConfig {
	return ConsumerConfig{
		Brokers:       brokers,
		GroupID:       groupID,
		Topics:        topics,
		OffsetInitial: sarama.OffsetNewest,
		AutoCommit:    true,
	}
}

// MessageHandler 处理一条消息; ctx 在消费者停止或分区重平衡时取消
type MessageHandler func(ctx context.Context, topic string, partition int32, offset int64, key, value []byte) error

// ConsumerStats 处理统计
type ConsumerStats struct {
	Handled int64
	Failed  int64
}

type counters struct {
	handled atomic.Int64
	failed  atomic.Int64
}

// Consumer 消费者组封装
type Consumer struct {
	client  sarama.ConsumerGroup
	topics  []string
	handler MessageHandler
	stats   counters

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer 创建消费者
func NewConsumer(cfg ConsumerConfig, handler MessageHandler) (*Consumer, error) {
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("kafka: consumer %s has no topics", cfg.GroupID)
	}
	sc := sarama.NewConfig()
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = cfg.OffsetInitial
	sc.Consumer.Offsets.AutoCommit.Enable = cfg.AutoCommit

	client, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		client:  client,
		topics:  cfg.Topics,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start 后台消费，重平衡后自动重新加入
func (c *Consumer) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		h := &consumerGroupHandler{handler: c.handler, stats: &c.stats}
		for {
			err := c.client.Consume(c.ctx, c.topics, h)
			if c.ctx.Err() != nil {
				return
			}
			if err != nil {
				log.WithField("topics", c.topics).WithError(err).Warn("[Kafka] consume error")
				// broker 不可用时避免空转
				select {
				case <-c.ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
		}
	}()
}

// Stats 统计快照
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{Handled: c.stats.handled.Load(), Failed: c.stats.failed.Load()}
}

// Stop 停止消费并关闭连接
func (c *Consumer) Stop() error {
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

// consumerGroupHandler 实现 sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	handler MessageHandler
	stats   *counters
}

func (h *consumerGroupHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.stats.handled.Add(1)
			if err := h.handler(ctx, msg.Topic, msg.Partition, msg.Offset, msg.Key, msg.Value); err != nil {
				h.stats.failed.Add(1)
				log.WithFields(log.Fields{
					"topic":     msg.Topic,
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).WithError(err).Warn("[Kafka] request failed")
			}
			session.MarkMessage(msg, "")
		}
	}
}
