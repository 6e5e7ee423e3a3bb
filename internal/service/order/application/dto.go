// internal/service/order/application/dto.go
package application

import (
	"time"

	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/port"
)

// BasketLine 是结账用例的一行输入
type BasketLine struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// CheckoutResult 是结账用例的输出：要么有订单和小票，要么有库存不足列表
type CheckoutResult struct {
	Order     *domain.Order   `json:"order,omitempty"`
	Receipt   *Receipt        `json:"receipt,omitempty"`
	Shortages []port.Shortage `json:"shortages,omitempty"`
}

// Succeeded 订单是否创建成功
func (r *CheckoutResult) Succeeded() bool {
	return r.Order != nil && len(r.Shortages) == 0
}

// ReceiptLine 是小票上的一行，金额已格式化为两位小数
type ReceiptLine struct {
	ProductID   int64  `json:"productId"`
	Description string `json:"description"`
	ImageRef    string `json:"imageRef,omitempty"`
	UnitPrice   string `json:"unitPrice"`
	Quantity    int    `json:"quantity"`
	LineTotal   string `json:"lineTotal"`
}

// Receipt 是给顾客看的订单小票
type Receipt struct {
	OrderID   int64         `json:"orderId"`
	CreatedAt time.Time     `json:"createdAt"`
	Lines     []ReceiptLine `json:"lines"`
	Total     string        `json:"total"`
}

// NewReceipt 根据订单生成小票，products 提供图片等展示信息，可以为空
func NewReceipt(order *domain.Order, products map[int64]port.Product) *Receipt {
	r := &Receipt{
		OrderID:   order.ID,
		CreatedAt: order.CreatedAt,
		Lines:     make([]ReceiptLine, len(order.Lines)),
		Total:     order.Total().StringFixed(2),
	}
	for i, l := range order.Lines {
		r.Lines[i] = ReceiptLine{
			ProductID:   l.ProductID,
			Description: l.Description,
			ImageRef:    products[l.ProductID].ImageRef,
			UnitPrice:   l.UnitPrice.StringFixed(2),
			Quantity:    l.Quantity,
			LineTotal:   l.Total().StringFixed(2),
		}
	}
	return r
}
