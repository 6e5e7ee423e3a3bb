// internal/service/order/hub/hub.go
package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/metrics"
	"storefront/internal/service/order/domain"
)

const DefaultQueueSize = 16

var ErrHubClosed = errors.New("order hub closed")

// Hub 是进程内唯一的订单状态权威。
// 订单表、订阅者表和版本号由同一把锁保护，修改和随后的快照广播在同一个临界区内完成，
// 所以订阅者看到的每个快照都对应某个完整的时刻，并且按版本号顺序到达。
// 投递是异步的：每个订阅者有自己的有界队列和 goroutine，慢订阅者不会阻塞 Hub。
type Hub struct {
	mu      sync.Mutex
	orders  map[int64]*domain.Order
	subs    map[string]*Subscription
	version uint64
	closed  bool

	queueSize int
	now       func() time.Time
	tracer    trace.Tracer
	log       *zerolog.Logger
	wg        sync.WaitGroup
}

type Option func(*Hub)

// WithQueueSize 设置每个订阅者的队列长度
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

func WithTracer(t trace.Tracer) Option {
	return func(h *Hub) { h.tracer = t }
}

func New(opts ...Option) *Hub {
	h := &Hub{
		orders:    make(map[int64]*domain.Order),
		subs:      make(map[string]*Subscription),
		queueSize: DefaultQueueSize,
		now:       time.Now,
		tracer:    otel.Tracer("order-hub"),
		log:       logger.L(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register 登记一个新订单，Hub 从此独占该实例。
// 只接受处于 ORDERED 状态、每行数量为正的订单。
func (h *Hub) Register(ctx context.Context, order *domain.Order) error {
	ctx, span := h.tracer.Start(ctx, "hub.Register")
	defer span.End()

	if err := validateNew(order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order rejected")
		return err
	}
	span.SetAttributes(attribute.Int64("order.id", order.ID))

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	if _, exists := h.orders[order.ID]; exists {
		err := &domain.DuplicateOrderError{OrderID: order.ID}
		span.RecordError(err)
		span.SetStatus(codes.Error, "duplicate order id")
		logger.Ctx(ctx).Error().Bool("critical", true).Int64("order", order.ID).
			Msg("order id already registered, sequence store may have been reset")
		return err
	}

	h.orders[order.ID] = order
	metrics.OrdersLive.Set(float64(len(h.orders)))
	h.broadcastLocked()

	logger.Ctx(ctx).Info().Int64("order", order.ID).Uint64("version", h.version).Msg("order registered")
	return nil
}

// Transition 推进订单状态，只允许紧邻的下一个状态
func (h *Hub) Transition(ctx context.Context, orderID int64, to domain.State) error {
	ctx, span := h.tracer.Start(ctx, "hub.Transition")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", orderID), attribute.String("order.to", to.String()))

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}

	order, ok := h.orders[orderID]
	if !ok {
		metrics.TransitionTotal.WithLabelValues(to.String(), "unknown").Inc()
		return &domain.TransitionError{OrderID: orderID, To: to, Err: domain.ErrUnknownOrder}
	}

	from := order.State
	if err := order.TransitionTo(to, h.now()); err != nil {
		metrics.TransitionTotal.WithLabelValues(to.String(), "illegal").Inc()
		span.RecordError(err)
		return err
	}
	metrics.TransitionTotal.WithLabelValues(to.String(), "ok").Inc()
	h.broadcastLocked()

	logger.Ctx(ctx).Info().Int64("order", orderID).Str("from", from.String()).Str("to", to.String()).
		Uint64("version", h.version).Msg("order state changed")
	return nil
}

// Advance 把订单推进到下一个状态，返回新状态
func (h *Hub) Advance(ctx context.Context, orderID int64) (domain.State, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return "", ErrHubClosed
	}
	order, ok := h.orders[orderID]
	var current domain.State
	if ok {
		current = order.State
	}
	h.mu.Unlock()
	if !ok {
		return "", &domain.TransitionError{OrderID: orderID, Err: domain.ErrUnknownOrder}
	}

	next, ok := current.Next()
	if !ok {
		return "", &domain.TransitionError{OrderID: orderID, From: current, To: current, Err: domain.ErrIllegalTransition}
	}
	// 两次加锁之间状态可能已被别人推进，Transition 会再校验一次
	if err := h.Transition(ctx, orderID, next); err != nil {
		return "", err
	}
	return next, nil
}

// Subscribe 注册订阅者，立即投递一份当前快照，之后每次变化投递一次
func (h *Hub) Subscribe(s Subscriber) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}

	sub := newSubscription(uuid.NewString(), h, s, h.queueSize)
	h.subs[sub.id] = sub
	metrics.Subscribers.Set(float64(len(h.subs)))

	sub.offer(h.snapshotLocked())
	h.wg.Add(1)
	go sub.run(&h.wg)

	h.log.Debug().Str("subscription", sub.id).Msg("subscriber registered")
	return sub, nil
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if _, ok := h.subs[sub.id]; ok {
		delete(h.subs, sub.id)
		metrics.Subscribers.Set(float64(len(h.subs)))
	}
	h.mu.Unlock()
	sub.stop()
}

// Snapshot 同步返回当前完整状态表
func (h *Hub) Snapshot() domain.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

// Order 返回订单副本
func (h *Hub) Order(orderID int64) (domain.Order, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	order, ok := h.orders[orderID]
	if !ok {
		return domain.Order{}, &domain.TransitionError{OrderID: orderID, Err: domain.ErrUnknownOrder}
	}
	return order.Clone(), nil
}

// Orders 返回所有订单副本，按 ID 升序
func validateNew(order *domain.Order) error {
	if order == nil || len(order.Lines) == 0 {
		return domain.ErrEmptyOrder
	}
	if order.State != domain.StateOrdered {
		return fmt.Errorf("order %d in state %q: %w", order.ID, order.State, domain.ErrOrderNotNew)
	}
	for _, line := range order.Lines {
		if line.Quantity <= 0 {
			return fmt.Errorf("order %d product %d quantity %d: %w", order.ID, line.ProductID, line.Quantity, domain.ErrInvalidQuantity)
		}
	}
	return nil
}

func (h *Hub) Orders() []domain.Order {
	h.mu.Lock()
	out := make([]domain.Order, 0, len(h.orders))
	for _, o := range h.orders {
		out = append(out, o.Clone())
	}
	h.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close 停止所有投递 goroutine 并等待其退出。之后的修改和订阅返回 ErrHubClosed。
// 订阅者回调里不能直接调用 Close（会等待自己所在的 goroutine），需要时用 go h.Close()。
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	metrics.Subscribers.Set(0)
	h.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	h.wg.Wait()
}

// broadcastLocked 递增版本号并向所有订阅者投递新快照，调用方必须持有锁
func (h *Hub) broadcastLocked() {
	h.version++
	if len(h.subs) == 0 {
		return
	}
	for _, s := range h.subs {
		s.offer(h.snapshotLocked())
	}
}

// snapshotLocked 每次调用都生成独立的副本，订阅者之间互不影响
func (h *Hub) snapshotLocked() domain.Snapshot {
	states := make(map[int64]domain.State, len(h.orders))
	for id, o := range h.orders {
		states[id] = o.State
	}
	return domain.Snapshot{Version: h.version, TakenAt: h.now(), States: states}
}
