// internal/service/order/application/service.go
package application

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/order/application/saga"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/port"
)

// CheckoutService 只关注结账流程编排，具体步骤在 saga 责任链中。
type CheckoutService struct {
	tracer trace.Tracer
	now    func() time.Time

	catalogue port.Catalogue
	ledger    port.StockLedger
	ids       port.IDGenerator
	registry  port.OrderRegistry
}

func NewCheckoutService(tracer trace.Tracer, catalogue port.Catalogue, ledger port.StockLedger, ids port.IDGenerator, registry port.OrderRegistry) *CheckoutService {
	return &CheckoutService{
		tracer: tracer, now: time.Now,
		catalogue: catalogue, ledger: ledger,
		ids: ids, registry: registry,
	}
}

// WithClock 替换时间源（测试用）
func (s *CheckoutService) WithClock(now func() time.Time) *CheckoutService {
	s.now = now
	return s
}

// Checkout 结账。
// 库存不足时返回带 Shortages 的结果而不是 error；error 只有两类：
// 业务拒绝（空购物篮、未知商品、数量非法）和基础设施故障（domain.IsFault 为 true）。
// 一旦开始就执行到底，不响应调用方的取消，失败时已预占的库存会被归还。
func (s *CheckoutService) Checkout(ctx context.Context, basket []BasketLine) (*CheckoutResult, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := s.tracer.Start(ctx, "app.Checkout")
	defer span.End()

	items := make([]saga.BasketItem, len(basket))
	for i, l := range basket {
		items[i] = saga.BasketItem{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	span.SetAttributes(attribute.Int("basket.lines", len(items)))

	checkoutCtx := &saga.CheckoutContext{
		Ctx:       ctx,
		Tracer:    s.tracer,
		Now:       s.now(),
		Basket:    items,
		Catalogue: s.catalogue,
		Ledger:    s.ledger,
		IDs:       s.ids,
		Registry:  s.registry,
	}

	if err := saga.NewCheckoutChain().Handle(checkoutCtx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Checkout failed in chain")
		checkoutCtx.TriggerCompensation(ctx)

		// 不认识的错误一律按故障处理，不能当作业务拒绝展示给顾客
		if !domain.IsBusiness(err) && !domain.IsFault(err) {
			err = domain.Infra("checkout", err)
		}
		if domain.IsFault(err) {
			metrics.CheckoutTotal.WithLabelValues("fault").Inc()
			logger.Ctx(ctx).Error().Err(err).Bool("critical", isCritical(err)).Msg("checkout failed")
		} else {
			metrics.CheckoutTotal.WithLabelValues("rejected").Inc()
			logger.Ctx(ctx).Info().Err(err).Msg("checkout rejected")
		}
		return nil, err
	}

	if len(checkoutCtx.Shortages) > 0 {
		metrics.CheckoutTotal.WithLabelValues("insufficient").Inc()
		logger.Ctx(ctx).Info().Int("shortages", len(checkoutCtx.Shortages)).Msg("checkout declined: insufficient stock")
		return &CheckoutResult{Shortages: checkoutCtx.Shortages}, nil
	}

	order := checkoutCtx.Order
	metrics.CheckoutTotal.WithLabelValues("success").Inc()
	span.SetAttributes(attribute.Int64("order.id", order.ID))
	logger.Ctx(ctx).Info().Int64("order", order.ID).Str("total", order.Total().StringFixed(2)).Msg("order placed")

	return &CheckoutResult{
		Order:   order,
		Receipt: NewReceipt(order, checkoutCtx.Products),
	}, nil
}

// isCritical 可重试的故障（锁超时）之外都需要人工介入
func isCritical(err error) bool {
	var t interface{ Temporary() bool }
	return !(errors.As(err, &t) && t.Temporary())
}
