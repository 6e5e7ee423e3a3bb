package saga

import (
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"storefront/internal/service/order/domain"
)

// IssueIDHandler 在库存预占成功后才申请订单号，库存不足的结账不会消耗订单号。
type IssueIDHandler struct {
	NextHandler
}

func (h *IssueIDHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.IssueOrderID")
	defer span.End()

	id, err := checkoutCtx.IDs.NextID(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Order id issuance failed")
		return errors.Wrap(err, "issue order id")
	}
	span.SetAttributes(attribute.Int64("order.id", id))

	order, err := domain.NewOrder(id, checkoutCtx.Lines, checkoutCtx.Now)
	if err != nil {
		span.RecordError(err)
		return err
	}
	checkoutCtx.Order = order

	return h.executeNext(checkoutCtx)
}
