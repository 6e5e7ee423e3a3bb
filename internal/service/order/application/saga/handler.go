package saga

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/port"
)

// BasketItem 是顾客购物篮中的一行（未合并）
type BasketItem struct {
	ProductID int64
	Quantity  int
}

// CheckoutContext 在结账责任链中传递上下文数据。
type CheckoutContext struct {
	Ctx    context.Context
	Tracer trace.Tracer
	Now    time.Time

	// 输入
	Basket []BasketItem

	// 依赖出站端口 (Interfaces)
	Catalogue port.Catalogue
	Ledger    port.StockLedger
	IDs       port.IDGenerator
	Registry  port.OrderRegistry

	// 各步骤的产出
	Products  map[int64]port.Product // 下单时刻的商品快照
	Lines     []domain.OrderLine     // 定价后的原始行，不合并
	Requests  []port.StockRequest    // 按商品合并后的预占请求
	Shortages []port.Shortage        // 非空表示库存不足，链路提前结束
	Order     *domain.Order          // 注册成功后的副本，Hub 持有真正的实例

	compensations []func(ctx context.Context)
	compLock      sync.Mutex
}

// AddCompensation 登记补偿操作，后登记的先执行
func (c *CheckoutContext) AddCompensation(comp func(ctx context.Context)) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context){comp}, c.compensations...)
}

func (c *CheckoutContext) TriggerCompensation(ctx context.Context) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	if len(c.compensations) == 0 {
		return
	}
	logger.Ctx(ctx).Printf("INFO: [Checkout] Executing %d compensation functions.", len(c.compensations))
	for _, comp := range c.compensations {
		comp(ctx)
	}
	c.compensations = nil
}

// Handler 是责任链中的一个步骤
type Handler interface {
	SetNext(handler Handler) Handler
	Handle(checkoutCtx *CheckoutContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(checkoutCtx *CheckoutContext) error {
	if h.next != nil {
		return h.next.Handle(checkoutCtx)
	}
	return nil
}

// NewCheckoutChain 组装结账责任链：定价 → 合并 → 预占库存 → 发号 → 注册到 Hub
func NewCheckoutChain() Handler {
	chain := new(PricingHandler)
	chain.
		SetNext(new(GroupHandler)).
		SetNext(new(InventoryHandler)).
		SetNext(new(IssueIDHandler)).
		SetNext(new(CreateOrderHandler))
	return chain
}
