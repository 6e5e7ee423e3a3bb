package port

import (
	"context"

	"storefront/internal/service/order/domain"
)

// StateEventProducer 是订单状态事件的出站端口（消息队列）。
type StateEventProducer interface {
	// PublishStateChanged 发布一批状态变化事件，同一订单的事件按顺序发布。
	PublishStateChanged(ctx context.Context, events []domain.OrderStateChanged) error
}
