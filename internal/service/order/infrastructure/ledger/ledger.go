// Package ledger 提供库存账本的几种实现：内存、关系库（GORM）和 Redis。
// 三者语义一致：Reserve 要么全部扣减，要么一个都不扣并返回所有不足的商品。
package ledger

import (
	"sort"

	"github.com/pkg/errors"

	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/port"
)

// normalize 合并同一商品的请求并按商品 ID 排序。
// 固定的加锁/更新顺序避免多行更新时的死锁，也让不足列表的顺序稳定。
func normalize(requests []port.StockRequest) ([]port.StockRequest, error) {
	merged := make(map[int64]int, len(requests))
	for _, r := range requests {
		if r.Quantity <= 0 {
			return nil, errors.Wrapf(domain.ErrInvalidQuantity, "product %d quantity %d", r.ProductID, r.Quantity)
		}
		merged[r.ProductID] += r.Quantity
	}

	out := make([]port.StockRequest, 0, len(merged))
	for id, q := range merged {
		out = append(out, port.StockRequest{ProductID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}
