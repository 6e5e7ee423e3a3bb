package saga

import (
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/port"
)

// PricingHandler 查目录，为每一行快照商品描述和单价。
type PricingHandler struct {
	NextHandler
}

func (h *PricingHandler) Handle(checkoutCtx *CheckoutContext) error {
	ctx, span := checkoutCtx.Tracer.Start(checkoutCtx.Ctx, "saga.Pricing")
	defer span.End()

	if len(checkoutCtx.Basket) == 0 {
		span.SetStatus(codes.Error, "empty basket")
		return domain.ErrEmptyBasket
	}

	checkoutCtx.Products = make(map[int64]port.Product)
	checkoutCtx.Lines = make([]domain.OrderLine, 0, len(checkoutCtx.Basket))
	for _, item := range checkoutCtx.Basket {
		if item.Quantity <= 0 {
			span.SetStatus(codes.Error, "invalid quantity")
			return errors.Wrapf(domain.ErrInvalidQuantity, "product %d quantity %d", item.ProductID, item.Quantity)
		}

		product, ok := checkoutCtx.Products[item.ProductID]
		if !ok {
			var err error
			product, err = checkoutCtx.Catalogue.Lookup(ctx, item.ProductID)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "catalogue lookup failed")
				return err
			}
			checkoutCtx.Products[item.ProductID] = product
		}

		checkoutCtx.Lines = append(checkoutCtx.Lines, domain.OrderLine{
			ProductID:   product.ID,
			Description: product.Name,
			UnitPrice:   product.Price,
			Quantity:    item.Quantity,
		})
	}

	span.SetAttributes(attribute.Int("lines", len(checkoutCtx.Lines)))
	return h.executeNext(checkoutCtx)
}
