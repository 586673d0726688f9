// 文件: pkg/nats/spot_feed.go
// 外部现价行情 -> market.SpotTick
//
// 消息体: {"spot": 101.25, "ts": "..."}，symbol 取自主题后缀

package nats

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"deriv.com/pkg/market"
)

var ErrBadSpot = errors.New("bad spot message")

type spotMessage struct {
	Spot float64   `json:"spot"`
	Ts   time.Time `json:"ts"`
}

// SpotFeed 订阅 market.spot.{symbol}，把行情转成 SpotTick
type SpotFeed struct {
	sub *Subscriber

	// mu 保护 out 的关闭: 回调可能在 Close 之后仍在执行
	mu     sync.Mutex
	closed bool
	out    chan market.SpotTick
}

// NewSpotFeed 订阅给定标的; symbols 为空时订阅 market.spot.*
func NewSpotFeed(url string, symbols ...string) (*SpotFeed, error) {
	f := &SpotFeed{out: make(chan market.SpotTick, 256)}

	sub, err := NewSubscriber(url, f.handle, WithName("pricer-spot-feed"))
	if err != nil {
		return nil, err
	}
	if err := sub.SubscribeSpot(symbols...); err != nil {
		sub.Close()
		return nil, err
	}
	f.sub = sub
	return f, nil
}

// Ticks 行情通道，Close 后关闭
func (f *SpotFeed) Ticks() <-chan market.SpotTick { return f.out }

// Flush 确认订阅已生效
func (f *SpotFeed) Flush() error { return f.sub.Flush() }

func (f *SpotFeed) handle(subject string, data []byte) error {
	tick, err := decodeSpot(subject, data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	// 下游慢就丢，行情旧了没价值
	select {
	case f.out <- tick:
	default:
	}
	return nil
}

func decodeSpot(subject string, data []byte) (market.SpotTick, error) {
	symbol := strings.TrimPrefix(subject, SubjectSpotPrefix)
	if symbol == "" || symbol == subject {
		return market.SpotTick{}, fmt.Errorf("%w: subject %q", ErrBadSpot, subject)
	}
	msg, err := UnmarshalJSON[spotMessage](data)
	if err != nil {
		return market.SpotTick{}, fmt.Errorf("%w: %v", ErrBadSpot, err)
	}
	if !(msg.Spot > 0) {
		return market.SpotTick{}, fmt.Errorf("%w: spot=%v", ErrBadSpot, msg.Spot)
	}
	ts := msg.Ts
	if ts.IsZero() {
		ts = time.Now()
	}
	return market.SpotTick{Symbol: symbol, Spot: msg.Spot, Ts: ts}, nil
}

// Close 取消订阅并关闭通道
func (f *SpotFeed) Close() error {
	err := f.sub.Close()

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.out)
	}
	return err
}
