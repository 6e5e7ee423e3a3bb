package port

import (
	"context"

	"storefront/internal/service/order/domain"
)

// OrderRegistry 是结账流程看到的 Hub：只能登记新订单。
type OrderRegistry interface {
	Register(ctx context.Context, order *domain.Order) error
}
