package orderstore

import (
	"testing"
	"time"

	"github.com/lattice-exchange/core/pkg/money"
	"github.com/lattice-exchange/core/pkg/types"
	"github.com/lattice-exchange/core/pkg/xerrors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amt(s string) money.Amount {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newOrder(id, userID, marketID string) *types.Order {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &types.Order{
		ID:         id,
		UserID:     userID,
		MarketID:   marketID,
		Side:       types.Buy,
		Type:       types.Limit,
		Price:      amt("100"),
		Quantity:   amt("1"),
		Status:     types.Pending,
		AcceptedAt: now,
		UpdatedAt:  now,
	}
}

func TestCreateAndGet(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)

	o := newOrder("o1", "u1", "BTC-USDT")
	result, created, err := s.Create(o)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "o1", result.ID)

	got, ok := s.Get("o1")
	require.True(t, ok)
	assert.Equal(t, "o1", got.ID)
}

func TestCreateDuplicateClientOrderIDIsIdempotent(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)

	o1 := newOrder("o1", "u1", "BTC-USDT")
	o1.ClientOrderID = "coid-1"
	_, created, err := s.Create(o1)
	require.NoError(t, err)
	assert.True(t, created)

	o2 := newOrder("o2", "u1", "BTC-USDT")
	o2.ClientOrderID = "coid-1"
	result, created, err := s.Create(o2)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "o1", result.ID, "duplicate client_order_id must return the first-accepted order")

	_, ok := s.Get("o2")
	assert.False(t, ok, "the duplicate submission must not create a second order")
}

func TestUpdateStatusEnforcesTransitionGraph(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	o := newOrder("o1", "u1", "BTC-USDT")
	_, _, err = s.Create(o)
	require.NoError(t, err)

	require.NoError(t, s.UpdateStatus("o1", types.Open, StatusDiff{}))

	filled := amt("1")
	require.NoError(t, s.UpdateStatus("o1", types.Filled, StatusDiff{FilledQuantity: &filled}))

	err = s.UpdateStatus("o1", types.Open, StatusDiff{})
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeOrderAlreadyTerminal, xerrors.CodeOf(err))
}

func TestUpdateStatusRejectsIllegalEdge(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	o := newOrder("o1", "u1", "BTC-USDT")
	_, _, err = s.Create(o)
	require.NoError(t, err)

	// Pending cannot jump straight to PartiallyFilled.
	err = s.UpdateStatus("o1", types.PartiallyFilled, StatusDiff{})
	require.Error(t, err)
}

func TestFindActiveExcludesTerminalOrders(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)

	o1 := newOrder("o1", "u1", "BTC-USDT")
	o2 := newOrder("o2", "u2", "BTC-USDT")
	_, _, _ = s.Create(o1)
	_, _, _ = s.Create(o2)
	require.NoError(t, s.UpdateStatus("o1", types.Open, StatusDiff{}))
	require.NoError(t, s.UpdateStatus("o2", types.Open, StatusDiff{}))

	require.NoError(t, s.UpdateStatus("o2", types.Cancelled, StatusDiff{}))

	active := s.FindActive("BTC-USDT", nil)
	require.Len(t, active, 1)
	assert.Equal(t, "o1", active[0].ID)
}

func TestFindByUserMostRecentFirst(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)

	for _, id := range []string{"o1", "o2", "o3"} {
		_, _, err := s.Create(newOrder(id, "u1", "BTC-USDT"))
		require.NoError(t, err)
	}

	out := s.FindByUser("u1", "", false)
	require.Len(t, out, 3)
	assert.Equal(t, "o3", out[0].ID)
	assert.Equal(t, "o1", out[2].ID)
}
