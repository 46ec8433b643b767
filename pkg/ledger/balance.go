package ledger

import "github.com/lattice-exchange/core/pkg/money"

// Balance is the unique (user, asset) row of the ledger: available funds free
// to lock against new orders, and funds already locked against resting orders
// or in-flight settlement.
type Balance struct {
	UserID    string
	Asset     string
	Available money.Amount
	Locked    money.Amount
}

// Total returns Available + Locked, the ledger position for this (user, asset).
func (b Balance) Total() money.Amount {
	return b.Available.Add(b.Locked)
}
