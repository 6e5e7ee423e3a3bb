package adapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/hub"
	"storefront/internal/service/order/infrastructure/adapter"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) events(t *testing.T) []domain.OrderStateChanged {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]domain.OrderStateChanged, len(w.msgs))
	for i, m := range w.msgs {
		require.NoError(t, json.Unmarshal(m.Value, &out[i]))
	}
	return out
}

func snapshot(version uint64, states map[int64]domain.State) domain.Snapshot {
	return domain.Snapshot{Version: version, TakenAt: time.Now(), States: states}
}

func TestStateKafkaAdapter_PublishesOnlyChanges(t *testing.T) {
	w := &fakeWriter{}
	a := adapter.NewStateKafkaAdapter(w)

	a.OnSnapshot(snapshot(1, map[int64]domain.State{1: domain.StateOrdered}))
	a.OnSnapshot(snapshot(2, map[int64]domain.State{1: domain.StateOrdered, 2: domain.StateOrdered}))
	a.OnSnapshot(snapshot(3, map[int64]domain.State{1: domain.StateProgressing, 2: domain.StateOrdered}))
	// 过期快照被忽略
	a.OnSnapshot(snapshot(2, map[int64]domain.State{1: domain.StateOrdered, 2: domain.StateOrdered}))

	events := w.events(t)
	require.Len(t, events, 3)

	assert.Equal(t, int64(1), events[0].OrderID)
	assert.Equal(t, domain.State(""), events[0].From)
	assert.Equal(t, domain.StateOrdered, events[0].To)

	assert.Equal(t, int64(2), events[1].OrderID)
	assert.Equal(t, uint64(2), events[1].Version)

	assert.Equal(t, int64(1), events[2].OrderID)
	assert.Equal(t, domain.StateOrdered, events[2].From)
	assert.Equal(t, domain.StateProgressing, events[2].To)

	assert.Equal(t, "1", string(w.msgs[2].Key))
}

func TestStateKafkaAdapter_WriteFailureIsReported(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	a := adapter.NewStateKafkaAdapter(w)

	err := a.PublishStateChanged(context.Background(), []domain.OrderStateChanged{{OrderID: 1, To: domain.StateOrdered}})
	assert.ErrorContains(t, err, "broker down")

	// 订阅回调里只记日志，不会 panic
	a.OnSnapshot(snapshot(1, map[int64]domain.State{1: domain.StateOrdered}))
}

func TestStateKafkaAdapter_AsHubSubscriber(t *testing.T) {
	h := hub.New()
	defer h.Close()
	w := &fakeWriter{}
	sub, err := h.Subscribe(adapter.NewStateKafkaAdapter(w))
	require.NoError(t, err)
	defer sub.Unsubscribe()

	ctx := context.Background()
	order, err := domain.NewOrder(10, []domain.OrderLine{{ProductID: 1, UnitPrice: decimal.NewFromInt(1), Quantity: 1}}, time.Now())
	require.NoError(t, err)
	require.NoError(t, h.Register(ctx, order))
	require.NoError(t, h.Transition(ctx, 10, domain.StateProgressing))
	require.NoError(t, h.Transition(ctx, 10, domain.StateCollected))

	assert.Eventually(t, func() bool {
		events := w.events(t)
		return len(events) > 0 && events[len(events)-1].To == domain.StateCollected
	}, 2*time.Second, 10*time.Millisecond)
}
