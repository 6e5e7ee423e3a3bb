package saga

import (
	"go.opentelemetry.io/otel/attribute"

	"storefront/internal/service/order/port"
)

// GroupHandler 按商品合并购物篮，同一商品的数量相加，保持首次出现的顺序。
type GroupHandler struct {
	NextHandler
}

func (h *GroupHandler) Handle(checkoutCtx *CheckoutContext) error {
	_, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.Group")
	defer span.End()

	checkoutCtx.Requests = GroupLines(checkoutCtx.Basket)

	span.SetAttributes(attribute.Int("products", len(checkoutCtx.Requests)))
	return h.executeNext(checkoutCtx)
}

// GroupLines 合并同一商品的行
func GroupLines(items []BasketItem) []port.StockRequest {
	index := make(map[int64]int, len(items))
	var out []port.StockRequest
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, port.StockRequest{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return out
}
