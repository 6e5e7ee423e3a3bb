package saga

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/port"
)

// InventoryHandler 负责库存预占步骤。
// 库存不足不是错误：记录不足列表后直接结束链路，后面的发号和注册都不会执行。
type InventoryHandler struct {
	NextHandler
}

func (h *InventoryHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.InventoryReserve")
	defer span.End()

	span.SetAttributes(attribute.Int("products", len(checkoutCtx.Requests)))

	shortages, err := checkoutCtx.Ledger.Reserve(ctx, checkoutCtx.Requests)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Inventory reservation failed")
		return errors.Wrap(err, "reserve stock")
	}
	if len(shortages) > 0 {
		checkoutCtx.Shortages = shortages
		span.AddEvent("Insufficient stock", withShortages(shortages))
		return nil
	}

	reserved := checkoutCtx.Requests
	checkoutCtx.AddCompensation(func(compCtx context.Context) {
		compCtx, compSpan := checkoutCtx.Tracer.Start(compCtx, "saga.compensation.ReleaseStock")
		defer compSpan.End()

		// 补偿失败需要记录严重错误，并可能需要人工介入
		if err := checkoutCtx.Ledger.Release(compCtx, reserved); err != nil {
			compSpan.RecordError(err)
			logger.Ctx(compCtx).Error().Err(err).Bool("critical", true).Interface("requests", reserved).
				Msg("failed to release reserved stock")
		}
	})

	span.AddEvent("All items reserved successfully")
	return h.executeNext(checkoutCtx)
}

func withShortages(shortages []port.Shortage) trace.EventOption {
	desc := make([]string, len(shortages))
	for i, s := range shortages {
		desc[i] = fmt.Sprintf("%d:%d/%d", s.ProductID, s.Requested, s.Available)
	}
	return trace.WithAttributes(attribute.StringSlice("shortages", desc))
}
