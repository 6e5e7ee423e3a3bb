package saga_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"storefront/internal/service/order/application/saga"
	"storefront/internal/service/order/port"
)

func TestGroupLines(t *testing.T) {
	got := saga.GroupLines([]saga.BasketItem{
		{ProductID: 9, Quantity: 1},
		{ProductID: 7, Quantity: 2},
		{ProductID: 9, Quantity: 4},
		{ProductID: 7, Quantity: 3},
	})
	assert.Equal(t, []port.StockRequest{
		{ProductID: 9, Quantity: 5},
		{ProductID: 7, Quantity: 5},
	}, got)
}

func TestCompensationsRunInReverseOrderOnce(t *testing.T) {
	var calls []string
	c := &saga.CheckoutContext{}
	c.AddCompensation(func(context.Context) { calls = append(calls, "first") })
	c.AddCompensation(func(context.Context) { calls = append(calls, "second") })

	c.TriggerCompensation(context.Background())
	c.TriggerCompensation(context.Background())

	assert.Equal(t, []string{"second", "first"}, calls)
}
