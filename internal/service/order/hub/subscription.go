package hub

import (
	"sync"
	"sync/atomic"

	"storefront/internal/pkg/metrics"
	"storefront/internal/service/order/domain"
)

// Subscriber 接收 Hub 推送的完整订单状态表。
// 每个订阅者在自己的 goroutine 中被调用，同一订阅者的回调不会并发执行。
// 回调里可以 Unsubscribe，但不能同步调用 Hub.Close。
type Subscriber interface {
	OnSnapshot(snapshot domain.Snapshot)
}

// SubscriberFunc 让普通函数满足 Subscriber 接口
type SubscriberFunc func(snapshot domain.Snapshot)

func (f SubscriberFunc) OnSnapshot(snapshot domain.Snapshot) { f(snapshot) }

// Subscription 是一次订阅的句柄
type Subscription struct {
	id  string
	hub *Hub

	subscriber Subscriber
	queue      chan domain.Snapshot
	quit       chan struct{}
	stopped    atomic.Bool
	stopOnce   sync.Once
}

func newSubscription(id string, h *Hub, s Subscriber, size int) *Subscription {
	return &Subscription{
		id:         id,
		hub:        h,
		subscriber: s,
		queue:      make(chan domain.Snapshot, size),
		quit:       make(chan struct{}),
	}
}

// ID 返回订阅 ID
func (s *Subscription) ID() string { return s.id }

// Unsubscribe 取消订阅。返回后不会再开始新的投递，正在执行的回调不受影响。
// 可以在回调内部调用。
func (s *Subscription) Unsubscribe() {
	s.hub.unsubscribe(s)
}

// offer 把快照放进队列，队列满时丢掉最旧的一个。
// 只在持有 Hub 锁时调用，所以生产者只有一个，循环最多两轮。
func (s *Subscription) offer(snapshot domain.Snapshot) {
	for {
		select {
		case s.queue <- snapshot:
			return
		default:
		}
		select {
		case <-s.queue:
			metrics.SnapshotsCoalesced.Inc()
		default:
		}
	}
}

func (s *Subscription) stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.quit)
	})
}

// run 是订阅者的投递循环
func (s *Subscription) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-s.quit:
			return
		case snapshot := <-s.queue:
			if s.stopped.Load() {
				return
			}
			s.deliver(snapshot)
		}
	}
}

// deliver 订阅者回调 panic 不能拖垮 Hub
func (s *Subscription) deliver(snapshot domain.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			s.hub.log.Error().Str("subscription", s.id).Interface("panic", r).Msg("subscriber panicked while handling snapshot")
		}
	}()
	s.subscriber.OnSnapshot(snapshot)
}
