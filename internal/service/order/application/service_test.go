package application_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"storefront/internal/pkg/redis"
	"storefront/internal/service/order/application"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/hub"
	"storefront/internal/service/order/infrastructure/catalogue"
	"storefront/internal/service/order/infrastructure/ledger"
	"storefront/internal/service/order/infrastructure/sequence"
	"storefront/internal/service/order/port"
)

var fixedNow = time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)

type fixture struct {
	svc    *application.CheckoutService
	cat    *catalogue.MemoryCatalogue
	ledger *ledger.MemoryLedger
	seq    *sequence.FileStore
	hub    *hub.Hub
}

func newFixture(t *testing.T, stock map[int64]int, ids port.IDGenerator, registry port.OrderRegistry) *fixture {
	t.Helper()

	cat := catalogue.NewMemoryCatalogue(
		port.Product{ID: 7, Name: "Desk lamp", Price: decimal.RequireFromString("12.50"), ImageRef: "img/lamp.png"},
		port.Product{ID: 9, Name: "Notebook", Price: decimal.RequireFromString("3.20")},
	)
	l := ledger.NewMemoryLedger(stock)

	seq, err := sequence.NewFileStore(filepath.Join(t.TempDir(), "order-id"))
	require.NoError(t, err)
	if ids == nil {
		ids = seq
	}

	h := hub.New()
	t.Cleanup(h.Close)
	if registry == nil {
		registry = h
	}

	svc := application.NewCheckoutService(noop.NewTracerProvider().Tracer("test"), cat, l, ids, registry).
		WithClock(func() time.Time { return fixedNow })
	return &fixture{svc: svc, cat: cat, ledger: l, seq: seq, hub: h}
}

func (f *fixture) stock(t *testing.T, productID int64) int {
	t.Helper()
	q, err := f.ledger.Available(context.Background(), productID)
	require.NoError(t, err)
	return q
}

func (f *fixture) counter(t *testing.T) int64 {
	t.Helper()
	c, err := f.seq.Current(context.Background())
	require.NoError(t, err)
	return c
}

func TestCheckout_InsufficientStockHasNoSideEffects(t *testing.T) {
	f := newFixture(t, map[int64]int{7: 10, 9: 0}, nil, nil)

	result, err := f.svc.Checkout(context.Background(), []application.BasketLine{
		{ProductID: 7, Quantity: 2},
		{ProductID: 7, Quantity: 1},
		{ProductID: 9, Quantity: 1},
	})
	require.NoError(t, err)
	assert.False(t, result.Succeeded())
	assert.Nil(t, result.Order)
	assert.Equal(t, []port.Shortage{{ProductID: 9, Requested: 1, Available: 0}}, result.Shortages)

	assert.Equal(t, 10, f.stock(t, 7))
	assert.Equal(t, 0, f.hub.Snapshot().Len())
	assert.Equal(t, int64(0), f.counter(t))
}

// recordingLedger 记录每次 Reserve 收到的请求
type recordingLedger struct {
	port.StockLedger
	mu       sync.Mutex
	reserves [][]port.StockRequest
}

func (r *recordingLedger) Reserve(ctx context.Context, requests []port.StockRequest) ([]port.Shortage, error) {
	r.mu.Lock()
	r.reserves = append(r.reserves, append([]port.StockRequest(nil), requests...))
	r.mu.Unlock()
	return r.StockLedger.Reserve(ctx, requests)
}

func TestCheckout_GroupsDuplicateLines(t *testing.T) {
	f := newFixture(t, map[int64]int{7: 5}, nil, nil)
	spy := &recordingLedger{StockLedger: f.ledger}
	svc := application.NewCheckoutService(noop.NewTracerProvider().Tracer("test"), f.cat, spy, f.seq, f.hub).
		WithClock(func() time.Time { return fixedNow })

	result, err := svc.Checkout(context.Background(), []application.BasketLine{
		{ProductID: 7, Quantity: 2},
		{ProductID: 7, Quantity: 3},
	})
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	assert.Equal(t, 0, f.stock(t, 7))
	// 账本只收到一次合并后的预占
	assert.Equal(t, [][]port.StockRequest{{{ProductID: 7, Quantity: 5}}}, spy.reserves)

	order := result.Order
	assert.Equal(t, int64(1), order.ID)
	assert.Equal(t, domain.StateOrdered, order.State)
	assert.Equal(t, fixedNow, order.CreatedAt)
	// 原始行保持不合并
	require.Len(t, order.Lines, 2)
	assert.Equal(t, 2, order.Lines[0].Quantity)
	assert.Equal(t, 3, order.Lines[1].Quantity)
	assert.True(t, decimal.RequireFromString("62.50").Equal(order.Total()))

	receipt := result.Receipt
	require.NotNil(t, receipt)
	assert.Equal(t, "62.50", receipt.Total)
	assert.Equal(t, "25.00", receipt.Lines[0].LineTotal)
	assert.Equal(t, "37.50", receipt.Lines[1].LineTotal)
	assert.Equal(t, "img/lamp.png", receipt.Lines[0].ImageRef)
}

func TestCheckout_RegistersWithHub(t *testing.T) {
	f := newFixture(t, map[int64]int{7: 10, 9: 10}, nil, nil)
	ctx := context.Background()

	first, err := f.svc.Checkout(ctx, []application.BasketLine{{ProductID: 7, Quantity: 1}})
	require.NoError(t, err)
	second, err := f.svc.Checkout(ctx, []application.BasketLine{{ProductID: 9, Quantity: 4}})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Order.ID)
	assert.Equal(t, int64(2), second.Order.ID)

	snap := f.hub.Snapshot()
	assert.Equal(t, map[int64]domain.State{1: domain.StateOrdered, 2: domain.StateOrdered}, snap.States)

	// 返回给调用方的是副本，改动不影响 Hub
	second.Order.Lines[0].Quantity = 100
	held, err := f.hub.Order(2)
	require.NoError(t, err)
	assert.Equal(t, 4, held.Lines[0].Quantity)
	assert.Equal(t, "12.80", application.NewReceipt(&held, nil).Total)
}

func TestCheckout_RejectsInvalidBaskets(t *testing.T) {
	f := newFixture(t, map[int64]int{7: 10}, nil, nil)

	cases := map[string]struct {
		basket []application.BasketLine
		want   error
	}{
		"empty":           {basket: nil, want: domain.ErrEmptyBasket},
		"zero quantity":   {basket: []application.BasketLine{{ProductID: 7, Quantity: 0}}, want: domain.ErrInvalidQuantity},
		"negative":        {basket: []application.BasketLine{{ProductID: 7, Quantity: -1}}, want: domain.ErrInvalidQuantity},
		"unknown product": {basket: []application.BasketLine{{ProductID: 7, Quantity: 1}, {ProductID: 404, Quantity: 1}}, want: domain.ErrUnknownProduct},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			result, err := f.svc.Checkout(context.Background(), tc.basket)
			require.ErrorIs(t, err, tc.want)
			assert.Nil(t, result)
			assert.False(t, domain.IsFault(err))
		})
	}
	assert.Equal(t, 10, f.stock(t, 7))
	assert.Equal(t, int64(0), f.counter(t))
}

type failingIDs struct{ err error }

func (f failingIDs) NextID(context.Context) (int64, error) { return 0, f.err }

func TestCheckout_SequenceFaultReleasesStock(t *testing.T) {
	fault := &sequence.LockTimeoutError{Path: "order-id", Waited: time.Second}
	f := newFixture(t, map[int64]int{7: 3}, failingIDs{err: fault}, nil)

	result, err := f.svc.Checkout(context.Background(), []application.BasketLine{{ProductID: 7, Quantity: 3}})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, domain.IsFault(err))
	assert.ErrorIs(t, err, sequence.ErrLockTimeout)

	assert.Equal(t, 3, f.stock(t, 7), "reserved stock must be released")
	assert.Equal(t, 0, f.hub.Snapshot().Len())
}

func TestCheckout_LedgerOutageIsFault(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	stock, err := ledger.NewRedisLedger(redis.Wrap(rdb))
	require.NoError(t, err)
	mr.Close()

	svc := application.NewCheckoutService(noop.NewTracerProvider().Tracer("test"), f.cat, stock, f.seq, f.hub)
	result, err := svc.Checkout(context.Background(), []application.BasketLine{{ProductID: 7, Quantity: 1}})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, domain.IsFault(err))
	assert.False(t, domain.IsBusiness(err))
	assert.Equal(t, int64(0), f.counter(t))
}

func TestCheckout_UnclassifiedErrorIsFault(t *testing.T) {
	f := newFixture(t, map[int64]int{7: 3}, failingIDs{err: errors.New("disk detached")}, nil)

	_, err := f.svc.Checkout(context.Background(), []application.BasketLine{{ProductID: 7, Quantity: 1}})
	require.Error(t, err)
	var infra *domain.InfraError
	require.ErrorAs(t, err, &infra)
	assert.Equal(t, "checkout", infra.Op)
	assert.Contains(t, err.Error(), "disk detached")
	assert.Equal(t, 3, f.stock(t, 7))
}

type rejectingRegistry struct{}

func (rejectingRegistry) Register(_ context.Context, o *domain.Order) error {
	return &domain.DuplicateOrderError{OrderID: o.ID}
}

func TestCheckout_RegistrationFaultReleasesStock(t *testing.T) {
	f := newFixture(t, map[int64]int{7: 3}, nil, rejectingRegistry{})

	_, err := f.svc.Checkout(context.Background(), []application.BasketLine{{ProductID: 7, Quantity: 2}})
	require.Error(t, err)
	assert.True(t, domain.IsFault(err))
	assert.True(t, errors.Is(err, domain.ErrDuplicateOrder))
	assert.Equal(t, 3, f.stock(t, 7))
}

func TestCheckout_CancelledCallerStillCompletes(t *testing.T) {
	f := newFixture(t, map[int64]int{7: 1}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.svc.Checkout(ctx, []application.BasketLine{{ProductID: 7, Quantity: 1}})
	require.NoError(t, err)
	assert.True(t, result.Succeeded())
}

func TestCheckout_ConcurrentCheckoutsNeverOversell(t *testing.T) {
	f := newFixture(t, map[int64]int{7: 20}, nil, nil)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[int64]bool{}
		decline int
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.svc.Checkout(context.Background(), []application.BasketLine{{ProductID: 7, Quantity: 1}})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if result.Succeeded() {
				assert.False(t, ids[result.Order.ID])
				ids[result.Order.ID] = true
			} else {
				decline++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 20)
	assert.Equal(t, 10, decline)
	assert.Equal(t, 0, f.stock(t, 7))
	assert.Equal(t, int64(20), f.counter(t))
	assert.Equal(t, 20, f.hub.Snapshot().Len())
}
