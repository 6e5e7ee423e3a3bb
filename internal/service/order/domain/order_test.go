package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/service/order/domain"
)

func TestState_Transitions(t *testing.T) {
	tests := []struct {
		from, to domain.State
		ok       bool
	}{
		{domain.StateOrdered, domain.StateProgressing, true},
		{domain.StateProgressing, domain.StateCollected, true},
		{domain.StateOrdered, domain.StateCollected, false},
		{domain.StateProgressing, domain.StateOrdered, false},
		{domain.StateCollected, domain.StateProgressing, false},
		{domain.StateCollected, domain.StateCollected, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
	assert.True(t, domain.StateCollected.IsTerminal())
	assert.False(t, domain.StateOrdered.IsTerminal())
}

func TestParseState(t *testing.T) {
	s, err := domain.ParseState(" progressing ")
	require.NoError(t, err)
	assert.Equal(t, domain.StateProgressing, s)

	_, err = domain.ParseState("SHIPPED")
	var unknown *domain.UnknownStateError
	require.ErrorAs(t, err, &unknown)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestNewOrder(t *testing.T) {
	now := time.Now()
	lines := []domain.OrderLine{
		{ProductID: 1, Description: "Pen", UnitPrice: decimal.RequireFromString("0.10"), Quantity: 3},
		{ProductID: 2, Description: "Ink", UnitPrice: decimal.RequireFromString("0.20"), Quantity: 1},
	}

	o, err := domain.NewOrder(11, lines, now)
	require.NoError(t, err)
	assert.Equal(t, domain.StateOrdered, o.State)
	assert.Equal(t, now, o.CreatedAt)
	// 0.1*3 + 0.2 用浮点会得到 0.5000000000000001
	assert.Equal(t, "0.50", o.Total().StringFixed(2))
	assert.True(t, decimal.RequireFromString("0.5").Equal(o.Total()))

	lines[0].Quantity = 99
	assert.Equal(t, 3, o.Lines[0].Quantity, "order owns its lines")

	_, err = domain.NewOrder(12, nil, now)
	assert.ErrorIs(t, err, domain.ErrEmptyOrder)

	_, err = domain.NewOrder(13, []domain.OrderLine{{ProductID: 1, Quantity: 0}}, now)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestOrder_TransitionTo(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	o, err := domain.NewOrder(1, []domain.OrderLine{{ProductID: 1, Quantity: 1}}, created)
	require.NoError(t, err)

	err = o.TransitionTo(domain.StateCollected, created.Add(time.Minute))
	require.ErrorIs(t, err, domain.ErrIllegalTransition)
	assert.Equal(t, domain.StateOrdered, o.State)
	assert.Equal(t, created, o.UpdatedAt)

	later := created.Add(time.Hour)
	require.NoError(t, o.TransitionTo(domain.StateProgressing, later))
	assert.Equal(t, domain.StateProgressing, o.State)
	assert.Equal(t, later, o.UpdatedAt)
	assert.Equal(t, created, o.CreatedAt)
}

func TestIsFault(t *testing.T) {
	assert.True(t, domain.IsFault(&domain.DuplicateOrderError{OrderID: 1}))
	assert.False(t, domain.IsFault(domain.ErrUnknownOrder))
	assert.False(t, domain.IsFault(&domain.TransitionError{OrderID: 1, Err: domain.ErrIllegalTransition}))
	assert.False(t, domain.IsFault(nil))
}
