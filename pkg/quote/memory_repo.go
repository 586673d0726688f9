// 文件: pkg/quote/memory_repo.go
// 内存报价存储，未配置 MySQL 时使用

package quote

import (
	"context"
	"sync"
)

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository 每个标的只保留最近 capacity 条
type MemoryRepository struct {
	mu       sync.RWMutex
	capacity int
	bySymbol map[string][]*Quote // 按时间正序
	byID     map[int64]*Quote
}

func NewMemoryRepository(capacity int) *MemoryRepository {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryRepository{
		capacity: capacity,
		bySymbol: make(map[string][]*Quote),
		byID:     make(map[int64]*Quote),
	}
}

func (r *MemoryRepository) Save(_ context.Context, q *Quote) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *q
	list := append(r.bySymbol[q.Symbol], &cp)
	if len(list) > r.capacity {
		delete(r.byID, list[0].QuoteID)
		list = list[1:]
	}
	r.bySymbol[q.Symbol] = list
	r.byID[q.QuoteID] = &cp
	return nil
}

func (r *MemoryRepository) GetByQuoteID(_ context.Context, quoteID int64) (*Quote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.byID[quoteID]
	if !ok {
		return nil, ErrQuoteNotFound
	}
	cp := *q
	return &cp, nil
}

func (r *MemoryRepository) Latest(_ context.Context, symbol string) (*Quote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.bySymbol[symbol]
	if len(list) == 0 {
		return nil, ErrQuoteNotFound
	}
	cp := *list[len(list)-1]
	return &cp, nil
}

func (r *MemoryRepository) History(_ context.Context, symbol string, limit int) ([]*Quote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.bySymbol[symbol]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]*Quote, 0, limit)
	for i := len(list) - 1; i >= len(list)-limit; i-- {
		cp := *list[i]
		out = append(out, &cp)
	}
	return out, nil
}
