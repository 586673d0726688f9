package market

import "sync"

// Broadcaster 现价广播器 (Fan-out)
//
//	   Ticker / NATS SpotFeed
//	            |
//	            v
//	      [Broadcaster]
//	       /    |    \
//	      v     v     v
//	  报价服务  风控   ...
//
// 某个订阅者处理慢，不能拖累其他订阅者: 发送时 Channel 满了直接丢弃。
type Broadcaster struct {
	// Subscribe 少、Broadcast 多，读写锁
	mu          sync.RWMutex
	subscribers []chan SpotTick
}

// NewBroadcaster 创建广播器
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make([]chan SpotTick, 0),
	}
}

// Subscribe 订阅，返回只读 Channel
// 重新定价一轮比 tick 间隔慢得多，缓冲不需要很大
func (b *Broadcaster) Subscribe() <-chan SpotTick {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan SpotTick, 64)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Broadcast 分发给所有订阅者，满了就丢
func (b *Broadcaster) Broadcast(t SpotTick) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- t:
		default:
		}
	}
}

// Pipe 把上游 Channel 接到广播器，上游关闭后返回
func (b *Broadcaster) Pipe(in <-chan SpotTick) {
	for t := range in {
		b.Broadcast(t)
	}
}

// Close 关闭所有订阅者的 Channel
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
