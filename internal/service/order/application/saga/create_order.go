package saga

import (
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CreateOrderHandler 把新订单交给 Hub。
// 注册后 Hub 独占该实例，上下文里只留下一个副本用于返回给调用方。
type CreateOrderHandler struct {
	NextHandler
}

func (h *CreateOrderHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.CreateOrder")
	defer span.End()

	order := checkoutCtx.Order
	span.SetAttributes(attribute.Int64("order.id", order.ID))

	snapshot := order.Clone()
	if err := checkoutCtx.Registry.Register(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Order registration failed")
		return errors.Wrapf(err, "register order %d", order.ID)
	}
	checkoutCtx.Order = &snapshot

	span.AddEvent("Order registered with hub")
	return h.executeNext(checkoutCtx)
}
