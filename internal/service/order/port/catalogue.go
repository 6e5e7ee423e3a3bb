package port

import (
	"context"

	"github.com/shopspring/decimal"
)

// Product 是目录服务返回的商品展示信息，只用于小票展示，不参与库存判断
type Product struct {
	ID       int64
	Name     string
	Price    decimal.Decimal
	ImageRef string
}

// Catalogue 是商品目录的出站端口。
type Catalogue interface {
	// Lookup 查找商品，不存在时返回 domain.ErrUnknownProduct
	Lookup(ctx context.Context, productID int64) (Product, error)
}
