// internal/service/order/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// 业务类错误：调用方可以据此分支处理（提示用户、刷新页面），不应自动重试。
var (
	ErrUnknownOrder      = errors.New("unknown order")
	ErrIllegalTransition = errors.New("illegal order state transition")
	ErrUnknownProduct    = errors.New("unknown product")
	ErrEmptyBasket       = errors.New("basket is empty")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrEmptyOrder        = errors.New("order must contain at least one line")
	ErrOrderNotNew       = errors.New("order must be registered in ORDERED state")
)

// ErrDuplicateOrder 属于一致性故障，而不是业务错误。
var ErrDuplicateOrder = errors.New("duplicate order id")

// Fault 标记基础设施类/一致性类故障。
// 业务错误与故障是两套不相交的表示：实现了 Fault 的错误永远不会被当作业务拒绝展示给顾客。
type Fault interface {
	error
	Fault() bool
}

// IsFault 判断错误链中是否存在基础设施故障
func IsFault(err error) bool {
	var f Fault
	return errors.As(err, &f) && f.Fault()
}

// TransitionError 描述一次被拒绝的状态流转
type TransitionError struct {
	OrderID int64
	From    State
	To      State
	Err     error // ErrUnknownOrder 或 ErrIllegalTransition
}

func (e *TransitionError) Error() string {
	if errors.Is(e.Err, ErrUnknownOrder) {
		return fmt.Sprintf("order %d: %v", e.OrderID, e.Err)
	}
	return fmt.Sprintf("order %d: %v %s -> %s", e.OrderID, e.Err, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// DuplicateOrderError 在 Hub 中已存在相同 ID 时返回。
// 正常情况下序列号存储保证不会出现，一旦出现说明 ID 被重复发放。
type DuplicateOrderError struct {
	OrderID int64
}

func (e *DuplicateOrderError) Error() string {
	return fmt.Sprintf("order %d already registered: %v", e.OrderID, ErrDuplicateOrder)
}

func (e *DuplicateOrderError) Unwrap() error { return ErrDuplicateOrder }

func (e *DuplicateOrderError) Fault() bool { return true }

// UnknownStateError 表示无法识别的状态字符串
type UnknownStateError struct {
	Raw string
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("unknown order state %q", e.Raw)
}

func (e *UnknownStateError) Unwrap() error { return ErrIllegalTransition }

// InfraError 包装存储、缓存、数据库等外部依赖的失败，始终是故障
type InfraError struct {
	Op  string
	Err error
}

func (e *InfraError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *InfraError) Unwrap() error { return e.Err }

func (e *InfraError) Fault() bool { return true }

// Infra 把 err 包装为 InfraError；err 为 nil 时返回 nil
func Infra(op string, err error) error {
	if err == nil {
		return nil
	}
	return &InfraError{Op: op, Err: err}
}

// IsBusiness 判断错误是否属于业务拒绝
func IsBusiness(err error) bool {
	if err == nil || IsFault(err) {
		return false
	}
	for _, target := range []error{
		ErrUnknownOrder, ErrIllegalTransition, ErrUnknownProduct,
		ErrEmptyBasket, ErrInvalidQuantity, ErrEmptyOrder, ErrOrderNotNew,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
