package ledger

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"storefront/internal/pkg/redis"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/port"
)

const reserveScriptName = "stock_reserve"

// RedisLedger 是 port.StockLedger 的 Redis 实现。
// 预占通过一个 Lua 脚本完成：先检查所有商品，全部充足才统一 DECRBY，Redis 单线程执行脚本保证原子性。
type RedisLedger struct {
	redisClient *redis.Client
}

// NewRedisLedger 创建库存账本并在创建时加载 Lua 脚本
func NewRedisLedger(redisClient *redis.Client) (*RedisLedger, error) {
	if err := redisClient.LoadScriptFromContent(reserveScriptName, reserveScript); err != nil {
		return nil, fmt.Errorf("failed to load stock reserve script: %w", err)
	}
	return &RedisLedger{redisClient: redisClient}, nil
}

// stockKey 所有库存键共用 {stock} 哈希标签，集群模式下落在同一个槽位，脚本才能一次操作多个键
func stockKey(productID int64) string {
	return fmt.Sprintf("{stock}:%d", productID)
}

func (l *RedisLedger) Reserve(ctx context.Context, requests []port.StockRequest) ([]port.Shortage, error) {
	reqs, err := normalize(requests)
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(reqs))
	args := make([]interface{}, len(reqs))
	for i, r := range reqs {
		keys[i] = stockKey(r.ProductID)
		args[i] = r.Quantity
	}

	result, err := l.redisClient.RunScript(ctx, reserveScriptName, keys, args...)
	if err != nil {
		return nil, domain.Infra("reserve stock", errors.Wrap(err, "run reserve script"))
	}

	// 返回值是扁平数组 [index1, available1, index2, available2, ...]，空数组代表成功
	flat, ok := result.([]interface{})
	if !ok {
		return nil, domain.Infra("reserve stock", fmt.Errorf("unexpected result type from reserve script: %T", result))
	}
	if len(flat)%2 != 0 {
		return nil, domain.Infra("reserve stock", fmt.Errorf("malformed reserve script result: %v", flat))
	}

	var shortages []port.Shortage
	for i := 0; i < len(flat); i += 2 {
		idx, ok1 := flat[i].(int64)
		have, ok2 := flat[i+1].(int64)
		if !ok1 || !ok2 || idx < 1 || int(idx) > len(reqs) {
			return nil, domain.Infra("reserve stock", fmt.Errorf("malformed reserve script result: %v", flat))
		}
		r := reqs[idx-1]
		shortages = append(shortages, port.Shortage{ProductID: r.ProductID, Requested: r.Quantity, Available: int(have)})
	}
	return shortages, nil
}

func (l *RedisLedger) Release(ctx context.Context, requests []port.StockRequest) error {
	reqs, err := normalize(requests)
	if err != nil {
		return err
	}
	_, err = l.redisClient.GetClient().TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, r := range reqs {
			pipe.IncrBy(ctx, stockKey(r.ProductID), int64(r.Quantity))
		}
		return nil
	})
	return domain.Infra("release stock", err)
}

func (l *RedisLedger) Available(ctx context.Context, productID int64) (int, error) {
	raw, err := l.redisClient.GetClient().Get(ctx, stockKey(productID)).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, domain.Infra("read stock", errors.Wrapf(err, "product %d", productID))
	}
	q, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Infra("read stock", errors.Wrapf(err, "stock of product %d is not a number", productID))
	}
	return q, nil
}

// Set (初始化和管理用) 设置商品库存
func (l *RedisLedger) Set(ctx context.Context, productID int64, quantity int) error {
	err := l.redisClient.GetClient().Set(ctx, stockKey(productID), quantity, 0).Err()
	if err != nil {
		return domain.Infra("set stock", errors.Wrapf(err, "product %d", productID))
	}
	return nil
}

var reserveScript = `
-- KEYS[i]: 商品库存的 Key, 例如: {stock}:7
-- ARGV[i]: 该商品要扣减的数量

-- 1. 先检查所有商品，记录不足的商品序号和当前库存
local short = {}
for i, key in ipairs(KEYS) do
    local stock = tonumber(redis.call('get', key) or '0')
    local want = tonumber(ARGV[i])
    if stock < want then
        table.insert(short, i)
        table.insert(short, stock)
    end
end

-- 2. 有任何不足就直接返回，不做扣减
if #short > 0 then
    return short
end

-- 3. 全部充足，统一扣减
for i, key in ipairs(KEYS) do
    redis.call('decrby', key, ARGV[i])
end
return {}
`
