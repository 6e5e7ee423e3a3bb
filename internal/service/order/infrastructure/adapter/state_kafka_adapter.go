package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/hub"
	"storefront/internal/service/order/port"
)

const (
	StateTopic     = "order-state-changed"
	publishTimeout = 5 * time.Second
)

// StateKafkaAdapter 实现了 port.StateEventProducer，同时作为 Hub 的订阅者：
// 对比相邻两个快照，把每个订单的状态变化转换成 OrderStateChanged 事件发到 Kafka。
// 消息 key 是订单号，同一订单的事件落在同一分区，保持顺序。
type StateKafkaAdapter struct {
	writer mq.MessageWriter

	mu      sync.Mutex
	version uint64
	last    map[int64]domain.State
}

var (
	_ port.StateEventProducer = (*StateKafkaAdapter)(nil)
	_ hub.Subscriber          = (*StateKafkaAdapter)(nil)
)

// NewStateKafkaAdapter 创建一个新的状态事件生产者适配器。
func NewStateKafkaAdapter(writer mq.MessageWriter) *StateKafkaAdapter {
	return &StateKafkaAdapter{writer: writer, last: make(map[int64]domain.State)}
}

// OnSnapshot 实现 hub.Subscriber
func (a *StateKafkaAdapter) OnSnapshot(snapshot domain.Snapshot) {
	events := a.diff(snapshot)
	if len(events) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := a.PublishStateChanged(ctx, events); err != nil {
		// 事件流是通知性质的，Hub 的状态不受影响，下游可以通过 HTTP 查询全量状态补齐
		logger.Ctx(ctx).Error().Err(err).Int("events", len(events)).Uint64("version", snapshot.Version).
			Msg("failed to publish order state events")
	}
}

// diff 计算相对上一个快照的变化，过期或重复的快照直接忽略
func (a *StateKafkaAdapter) diff(snapshot domain.Snapshot) []domain.OrderStateChanged {
	a.mu.Lock()
	defer a.mu.Unlock()

	if snapshot.Version <= a.version && len(a.last) > 0 {
		return nil
	}
	a.version = snapshot.Version

	var events []domain.OrderStateChanged
	for id, state := range snapshot.States {
		prev, seen := a.last[id]
		if seen && prev == state {
			continue
		}
		events = append(events, domain.OrderStateChanged{
			EventID:    uuid.NewString(),
			OrderID:    id,
			From:       prev,
			To:         state,
			Version:    snapshot.Version,
			OccurredAt: snapshot.TakenAt,
		})
		a.last[id] = state
	}
	sort.Slice(events, func(i, j int) bool { return events[i].OrderID < events[j].OrderID })
	return events
}

// PublishStateChanged 批量发布状态事件
func (a *StateKafkaAdapter) PublishStateChanged(ctx context.Context, events []domain.OrderStateChanged) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal order state event: %w", err)
		}
		msg := kafka.Message{
			Key:   []byte(strconv.FormatInt(e.OrderID, 10)),
			Value: payload,
			Time:  e.OccurredAt,
		}
		mq.InjectTraceContext(ctx, &msg.Headers)
		msgs = append(msgs, msg)
	}
	if err := a.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write %d order state events: %w", len(msgs), err)
	}
	return nil
}
