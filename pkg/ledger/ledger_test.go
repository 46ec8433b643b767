package ledger

import (
	"testing"

	"github.com/lattice-exchange/core/pkg/money"
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

func TestLockAndUnlock(t *testing.T) {
	l := New(nil, nil)
	require.NoError(t, l.Deposit("u1", "USDT", amt("1000")))

	require.NoError(t, l.Lock("u1", "USDT", amt("400")))
	b := l.Get("u1", "USDT")
	assert.True(t, b.Available.Equal(amt("600")))
	assert.True(t, b.Locked.Equal(amt("400")))

	require.NoError(t, l.Unlock("u1", "USDT", amt("100")))
	b = l.Get("u1", "USDT")
	assert.True(t, b.Available.Equal(amt("700")))
	assert.True(t, b.Locked.Equal(amt("300")))
}

func TestLockInsufficientBalance(t *testing.T) {
	l := New(nil, nil)
	require.NoError(t, l.Deposit("u1", "USDT", amt("100")))

	err := l.Lock("u1", "USDT", amt("200"))
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeInsufficientBalance, xerrors.CodeOf(err))
}

func TestUnlockInsufficientLocked(t *testing.T) {
	l := New(nil, nil)
	require.NoError(t, l.Deposit("u1", "USDT", amt("100")))
	require.NoError(t, l.Lock("u1", "USDT", amt("50")))

	err := l.Unlock("u1", "USDT", amt("60"))
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeInsufficientLocked, xerrors.CodeOf(err))

	// No partial mutation on failure.
	b := l.Get("u1", "USDT")
	assert.True(t, b.Locked.Equal(amt("50")))
}

// TestSettleFillScenarioA reproduces §8 Scenario A: a 0.3 BTC fill at 30000
// between a resting seller (maker) and an aggressing buyer (taker), both
// charged a 0.1% fee.
func TestSettleFillScenarioA(t *testing.T) {
	l := New(nil, nil)
	require.NoError(t, l.Deposit("seller", "BTC", amt("0.5")))
	require.NoError(t, l.Deposit("buyer", "USDT", amt("9000")))

	require.NoError(t, l.Lock("seller", "BTC", amt("0.5")))
	require.NoError(t, l.Lock("buyer", "USDT", amt("9000")))

	price := amt("30000.00")
	qty := amt("0.3")
	total := price.Mul(qty) // 9000
	fee := amt("0.001")

	buyerFee := qty.Mul(fee)        // 0.0003 BTC
	sellerFee := total.Mul(fee)     // 9 USDT
	buyerCredit := qty.Sub(buyerFee)
	sellerCredit := total.Sub(sellerFee)

	err := l.SettleFill(
		FillLeg{UserID: "buyer", DebitAsset: "USDT", DebitAmount: total, CreditAsset: "BTC", CreditAmount: buyerCredit},
		FillLeg{UserID: "seller", DebitAsset: "BTC", DebitAmount: qty, CreditAsset: "USDT", CreditAmount: sellerCredit},
	)
	require.NoError(t, err)

	buyerBTC := l.Get("buyer", "BTC")
	assert.True(t, buyerBTC.Available.Equal(amt("0.2997")), "buyer BTC available: %s", buyerBTC.Available)

	buyerUSDT := l.Get("buyer", "USDT")
	assert.True(t, buyerUSDT.Locked.IsZero())

	sellerUSDT := l.Get("seller", "USDT")
	assert.True(t, sellerUSDT.Available.Equal(amt("8991")), "seller USDT available: %s", sellerUSDT.Available)

	sellerBTC := l.Get("seller", "BTC")
	assert.True(t, sellerBTC.Locked.Equal(amt("0.2")), "seller BTC still locked for residual: %s", sellerBTC.Locked)
}

func TestSettleFillRollsBackOnFailure(t *testing.T) {
	l := New(nil, nil)
	require.NoError(t, l.Deposit("buyer", "USDT", amt("100")))
	require.NoError(t, l.Lock("buyer", "USDT", amt("100")))
	// Seller never locked BTC, so seller's debit leg must fail and nothing
	// should be mutated for either side.
	err := l.SettleFill(
		FillLeg{UserID: "buyer", DebitAsset: "USDT", DebitAmount: amt("100"), CreditAsset: "BTC", CreditAmount: amt("1")},
		FillLeg{UserID: "seller", DebitAsset: "BTC", DebitAmount: amt("1"), CreditAsset: "USDT", CreditAmount: amt("100")},
	)
	require.Error(t, err)

	buyerUSDT := l.Get("buyer", "USDT")
	assert.True(t, buyerUSDT.Locked.Equal(amt("100")), "buyer's locked funds must be untouched on rollback")
}
