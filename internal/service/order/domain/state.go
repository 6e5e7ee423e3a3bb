// internal/service/order/domain/state.go
package domain

import "strings"

// State 定义了订单的生命周期状态
type State string

const (
	StateOrdered     State = "ORDERED"     // 下单成功，库存已扣减，等待拣货
	StateProgressing State = "PROGRESSING" // 拣货员已开始处理
	StateCollected   State = "COLLECTED"   // 已取货（终态）
)

// Next 返回当前状态唯一合法的后继状态。终态返回 false。
func (s State) Next() (State, bool) {
	switch s {
	case StateOrdered:
		return StateProgressing, true
	case StateProgressing:
		return StateCollected, true
	default:
		return "", false
	}
}

// CanTransitionTo 只允许前进到紧邻的下一个状态，不允许回退或跳过。
func (s State) CanTransitionTo(to State) bool {
	next, ok := s.Next()
	return ok && next == to
}

// IsTerminal 判断是否为终态
func (s State) IsTerminal() bool {
	return s == StateCollected
}

// Valid 判断是否为已知状态
func (s State) Valid() bool {
	switch s {
	case StateOrdered, StateProgressing, StateCollected:
		return true
	}
	return false
}

// ParseState 解析外部输入（大小写不敏感）
func ParseState(raw string) (State, error) {
	s := State(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", &UnknownStateError{Raw: raw}
	}
	return s, nil
}

func (s State) String() string { return string(s) }
