package interfaces

import (
	"encoding/json"

	"storefront/internal/service/order/application"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/port"
)

// websocket 消息类型
const (
	MsgSnapshot   = "snapshot"
	MsgTransition = "transition"
	MsgAck        = "ack"
	MsgError      = "error"
)

// ServerMessage 是网关推送给客户端的消息
type ServerMessage struct {
	Type    string                 `json:"type"`
	Version uint64                 `json:"version,omitempty"`
	States  map[int64]domain.State `json:"states,omitempty"`
	OrderID int64                  `json:"orderId,omitempty"`
	State   domain.State           `json:"state,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// ClientMessage 是拣货端发给网关的指令。State 为空表示推进到下一个状态。
type ClientMessage struct {
	Type    string `json:"type"`
	OrderID int64  `json:"orderId"`
	State   string `json:"state,omitempty"`
}

// PickerCommand 是通过 Kafka 下发的拣货指令
type PickerCommand struct {
	OrderID int64  `json:"orderId"`
	State   string `json:"state,omitempty"`
}

// CheckoutRequest 是 POST /checkout 的请求体
type CheckoutRequest struct {
	Lines []application.BasketLine `json:"lines"`
}

// CheckoutResponse 是 POST /checkout 的响应体
type CheckoutResponse struct {
	Order     *domain.Order        `json:"order,omitempty"`
	Receipt   *application.Receipt `json:"receipt,omitempty"`
	Shortages []port.Shortage      `json:"shortages,omitempty"`
}

// TransitionRequest 是 POST /orders/{id}/transition 的请求体
type TransitionRequest struct {
	State string `json:"state,omitempty"`
}

// ErrorResponse 是所有错误响应的统一格式
type ErrorResponse struct {
	Error string `json:"error"`
	Fault bool   `json:"fault,omitempty"`
}

func snapshotMessage(s domain.Snapshot) ServerMessage {
	return ServerMessage{Type: MsgSnapshot, Version: s.Version, States: s.States}
}

// MarshalJSON 快照消息总是带 version 和 states，空表输出 {}
func (m ServerMessage) MarshalJSON() ([]byte, error) {
	type plain ServerMessage
	if m.Type != MsgSnapshot {
		return json.Marshal(plain(m))
	}
	states := m.States
	if states == nil {
		states = map[int64]domain.State{}
	}
	return json.Marshal(struct {
		Type    string                 `json:"type"`
		Version uint64                 `json:"version"`
		States  map[int64]domain.State `json:"states"`
	}{Type: m.Type, Version: m.Version, States: states})
}
