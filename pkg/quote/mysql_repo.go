// 文件: pkg/quote/mysql_repo.go
package quote

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var _ Repository = (*MySQLRepository)(nil)

type MySQLRepository struct {
	db *gorm.DB
}

func NewMySQLRepository(db *gorm.DB) *MySQLRepository {
	return &MySQLRepository{db: db}
}

// AutoMigrate 建表
func (r *MySQLRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&Quote{})
}

func (r *MySQLRepository) Save(ctx context.Context, q *Quote) error {
	return r.db.WithContext(ctx).Create(q).Error
}

func (r *MySQLRepository) GetByQuoteID(ctx context.Context, quoteID int64) (*Quote, error) {
	var q Quote
	err := r.db.WithContext(ctx).Where("quote_id = ?", quoteID).First(&q).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuoteNotFound
		}
		return nil, err
	}
	return &q, nil
}

func (r *MySQLRepository) Latest(ctx context.Context, symbol string) (*Quote, error) {
	var q Quote
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("created_at DESC, id DESC").
		First(&q).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuoteNotFound
		}
		return nil, err
	}
	return &q, nil
}

func (r *MySQLRepository) History(ctx context.Context, symbol string, limit int) ([]*Quote, error) {
	var quotes []*Quote
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&quotes).Error
	return quotes, err
}
