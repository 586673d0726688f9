// 文件: pkg/quote/cache_repo.go
// 报价 Redis 缓存层 (装饰器)
//
// - Latest: 每次 Save 后直接覆盖 quote:latest:{symbol}，行情驱动下读远多于写
// - GetByQuoteID: 先查 Redis，miss 则查 DB 并回填 (Cache Aside)
// - History: 不缓存

package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

var _ Repository = (*CachedRepository)(nil)

const (
	cacheKeyPrefix = "quote:"

	// 最新报价: quote:latest:{symbol}
	cacheKeyLatest = cacheKeyPrefix + "latest:%s"

	// 单条报价: quote:id:{quoteID}
	cacheKeyID = cacheKeyPrefix + "id:%d"

	latestTTL = 10 * time.Minute
	idTTL     = time.Hour
)

// CachedRepository Redis 缓存装饰器
//
// 用法:
//
//	mysqlRepo := NewMySQLRepository(db)
//	repo := NewCachedRepository(mysqlRepo, redisClient)
type CachedRepository struct {
	repo  Repository
	redis *redis.Client
}

func NewCachedRepository(repo Repository, rds *redis.Client) *CachedRepository {
	return &CachedRepository{repo: repo, redis: rds}
}

// Save 先写底层，成功后刷新最新报价缓存
func (r *CachedRepository) Save(ctx context.Context, q *Quote) error {
	if err := r.repo.Save(ctx, q); err != nil {
		return err
	}
	r.setCache(ctx, fmt.Sprintf(cacheKeyLatest, q.Symbol), q, latestTTL)
	return nil
}

func (r *CachedRepository) GetByQuoteID(ctx context.Context, quoteID int64) (*Quote, error) {
	key := fmt.Sprintf(cacheKeyID, quoteID)
	if q, ok := r.getCache(ctx, key); ok {
		return q, nil
	}

	q, err := r.repo.GetByQuoteID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	// 回填 (异步，不阻塞主流程)
	go r.setCache(context.Background(), key, q, idTTL)
	return q, nil
}

func (r *CachedRepository) Latest(ctx context.Context, symbol string) (*Quote, error) {
	key := fmt.Sprintf(cacheKeyLatest, symbol)
	if q, ok := r.getCache(ctx, key); ok {
		return q, nil
	}

	q, err := r.repo.Latest(ctx, symbol)
	if err != nil {
		return nil, err
	}
	r.setCache(ctx, key, q, latestTTL)
	return q, nil
}

func (r *CachedRepository) History(ctx context.Context, symbol string, limit int) ([]*Quote, error) {
	return r.repo.History(ctx, symbol, limit)
}

// Invalidate 删除某标的的最新报价缓存
func (r *CachedRepository) Invalidate(ctx context.Context, symbol string) {
	r.redis.Del(ctx, fmt.Sprintf(cacheKeyLatest, symbol))
}

// =============================================================================
// 缓存操作
// =============================================================================

func (r *CachedRepository) getCache(ctx context.Context, key string) (*Quote, bool) {
	data, err := r.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var q Quote
	if json.Unmarshal(data, &q) != nil {
		return nil, false
	}
	return &q, true
}

// setCache 缓存失败只记日志，DB 才是准
func (r *CachedRepository) setCache(ctx context.Context, key string, q *Quote, ttl time.Duration) {
	data, err := json.Marshal(q)
	if err != nil {
		return
	}
	if err := r.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		log.WithError(err).WithField("key", key).Warn("quote cache set failed")
	}
}
