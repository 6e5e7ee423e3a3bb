package ledger

import (
	"context"
	"sync"

	"storefront/internal/service/order/port"
)

// MemoryLedger 是进程内的库存账本，用于单机运行和测试
type MemoryLedger struct {
	mu    sync.Mutex
	stock map[int64]int
}

func NewMemoryLedger(initial map[int64]int) *MemoryLedger {
	stock := make(map[int64]int, len(initial))
	for id, q := range initial {
		stock[id] = q
	}
	return &MemoryLedger{stock: stock}
}

func (l *MemoryLedger) Reserve(_ context.Context, requests []port.StockRequest) ([]port.Shortage, error) {
	reqs, err := normalize(requests)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var shortages []port.Shortage
	for _, r := range reqs {
		if have := l.stock[r.ProductID]; have < r.Quantity {
			shortages = append(shortages, port.Shortage{ProductID: r.ProductID, Requested: r.Quantity, Available: have})
		}
	}
	if len(shortages) > 0 {
		return shortages, nil
	}
	for _, r := range reqs {
		l.stock[r.ProductID] -= r.Quantity
	}
	return nil, nil
}

func (l *MemoryLedger) Release(_ context.Context, requests []port.StockRequest) error {
	reqs, err := normalize(requests)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range reqs {
		l.stock[r.ProductID] += r.Quantity
	}
	return nil
}

func (l *MemoryLedger) Available(_ context.Context, productID int64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stock[productID], nil
}

// Set 直接设置库存（补货、测试）
func (l *MemoryLedger) Set(productID int64, quantity int) {
	l.mu.Lock()
	l.stock[productID] = quantity
	l.mu.Unlock()
}
