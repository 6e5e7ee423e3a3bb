package port

import (
	"context"
)

// StockRequest 是按商品聚合后的一条库存预占请求
type StockRequest struct {
	ProductID int64
	Quantity  int
}

// Shortage 描述一个库存不足的商品：请求数量与当前可用数量
type Shortage struct {
	ProductID int64 `json:"productId"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
}

// StockLedger 是库存账本的出站端口。
type StockLedger interface {
	// Reserve 原子地为所有请求扣减库存。
	// 全部充足时一起扣减并返回空切片；只要有一个不足，就不做任何扣减，并返回所有不足的商品。
	// error 只用于基础设施故障，库存不足不是 error。
	Reserve(ctx context.Context, requests []StockRequest) ([]Shortage, error)

	// Release 是 Reserve 的补偿操作，归还已经扣减的库存。
	Release(ctx context.Context, requests []StockRequest) error

	// Available 读取商品当前库存
	Available(ctx context.Context, productID int64) (int, error)
}
