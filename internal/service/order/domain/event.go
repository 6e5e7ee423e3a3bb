// internal/service/order/domain/event.go
package domain

import "time"

// Snapshot 是 Hub 向订阅者广播的完整订单状态表。
// 每次广播都是一个独立的不可变副本，Version 单调递增，订阅者可以据此丢弃过期的快照。
type Snapshot struct {
	Version uint64          `json:"version"`
	TakenAt time.Time       `json:"takenAt"`
	States  map[int64]State `json:"states"`
}

// State 返回某个订单在该快照中的状态
func (s Snapshot) State(orderID int64) (State, bool) {
	st, ok := s.States[orderID]
	return st, ok
}

// Len 返回快照中的订单数
func (s Snapshot) Len() int { return len(s.States) }

// OrderStateChanged 是订单状态变化时对外发布的事件（Kafka）
type OrderStateChanged struct {
	EventID    string    `json:"eventId"`
	OrderID    int64     `json:"orderId"`
	From       State     `json:"from,omitempty"` // 新订单为空
	To         State     `json:"to"`
	Version    uint64    `json:"version"`
	OccurredAt time.Time `json:"occurredAt"`
}
