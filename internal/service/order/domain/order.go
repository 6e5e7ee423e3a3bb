// internal/service/order/domain/order.go
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderLine 是订单中的一行，订单创建后不可变
type OrderLine struct {
	ProductID   int64           `json:"productId"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
}

// Total 计算行小计 unitPrice × quantity
func (l OrderLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order 是订单聚合的根实体。
// 注册到 Hub 之后只有 Hub 持有可变实例，对外一律返回 Clone 出来的副本。
type Order struct {
	ID        int64       `json:"id"`
	State     State       `json:"state"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Lines     []OrderLine `json:"lines"`
}

// 工厂函数: NewOrder 用于创建一个新的订单实例
func NewOrder(id int64, lines []OrderLine, now time.Time) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}

	owned := make([]OrderLine, len(lines))
	copy(owned, lines)

	return &Order{
		ID:        id,
		State:     StateOrdered, // 初始状态
		CreatedAt: now,
		UpdatedAt: now,
		Lines:     owned,
	}, nil
}

// TransitionTo 推进订单状态，只允许紧邻的下一个状态
func (o *Order) TransitionTo(to State, now time.Time) error {
	if !o.State.CanTransitionTo(to) {
		return &TransitionError{OrderID: o.ID, From: o.State, To: to, Err: ErrIllegalTransition}
	}
	o.State = to
	o.UpdatedAt = now
	return nil
}

// Total 计算订单总价（定点小数，避免浮点误差）
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Total())
	}
	return total
}

// Clone 返回一个与 Hub 内部实例不共享内存的副本
func (o *Order) Clone() Order {
	c := *o
	c.Lines = make([]OrderLine, len(o.Lines))
	copy(c.Lines, o.Lines)
	return c
}
