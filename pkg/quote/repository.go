// 文件: pkg/quote/repository.go
// 报价存储接口

package quote

import (
	"context"
	"errors"
)

// ErrQuoteNotFound 查询不到报价
var ErrQuoteNotFound = errors.New("quote not found")

type Repository interface {
	// Save 保存一条报价
	Save(ctx context.Context, q *Quote) error

	// GetByQuoteID 不存在返回 ErrQuoteNotFound
	GetByQuoteID(ctx context.Context, quoteID int64) (*Quote, error)

	// Latest 某标的最新一条报价，不存在返回 ErrQuoteNotFound
	Latest(ctx context.Context, symbol string) (*Quote, error)

	// History 某标的最近 limit 条报价，按时间倒序
	History(ctx context.Context, symbol string, limit int) ([]*Quote, error)
}
