// Package ledger implements the double-entry balance ledger (C2): per
// (user, asset) available/locked partitions, mutated only through lock,
// unlock, credit, debitLocked, and the composite settleFill transaction.
//
// The teacher's AccountManager (pkg/app/core/account/manager.go) serializes
// every account behind one mutex because a validator only ever has a handful
// of accounts touched per block. A centralized exchange ledger is touched by
// every market concurrently, so here each (user, asset) row is sharded across
// a fixed set of mutexes (hashed, like a sync.Map-free striped lock) so that
// unrelated users/assets never block each other, while operations on the same
// row still serialize, per §4.1.
package ledger

import (
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/lattice-exchange/core/pkg/money"
	"github.com/lattice-exchange/core/pkg/xerrors"
	"go.uber.org/zap"
)

const shardCount = 64

type shard struct {
	idx      int
	mu       sync.Mutex
	balances map[string]*Balance // "user|asset" -> balance
}

// Ledger is the balance ledger's in-memory authority, optionally backed by a
// Store for durability across restarts.
type Ledger struct {
	shards [shardCount]*shard
	store  Store
	log    *zap.Logger
}

// Store persists balance rows so the ledger survives a restart. The matching
// engine never talks to Store directly — only the Ledger does, keeping the
// persistence boundary a single repository interface per DESIGN.md.
type Store interface {
	SaveBalance(b *Balance) error
	LoadBalance(userID, asset string) (*Balance, error)
	LoadAllBalances(userID string) ([]*Balance, error)
}

// New creates a Ledger. store may be nil for a purely in-memory ledger (tests).
func New(store Store, log *zap.Logger) *Ledger {
	l := &Ledger{store: store, log: log}
	for i := range l.shards {
		l.shards[i] = &shard{idx: i, balances: make(map[string]*Balance)}
	}
	return l
}

func rowKey(userID, asset string) string { return userID + "|" + asset }

func (l *Ledger) shardFor(userID, asset string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(rowKey(userID, asset)))
	return l.shards[h.Sum32()%shardCount]
}

// getLocked returns the balance row for (userID, asset), creating a
// zero-valued one (and lazily hydrating from Store) if absent. Caller must
// hold sh.mu.
func (l *Ledger) getLocked(sh *shard, userID, asset string) *Balance {
	key := rowKey(userID, asset)
	if b, ok := sh.balances[key]; ok {
		return b
	}

	var b *Balance
	if l.store != nil {
		if loaded, err := l.store.LoadBalance(userID, asset); err == nil && loaded != nil {
			b = loaded
		}
	}
	if b == nil {
		b = &Balance{UserID: userID, Asset: asset, Available: money.Zero, Locked: money.Zero}
	}
	sh.balances[key] = b
	return b
}

func (l *Ledger) persist(b *Balance) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveBalance(b); err != nil && l.log != nil {
		l.log.Warn("ledger: failed to persist balance", zap.String("user", b.UserID), zap.String("asset", b.Asset), zap.Error(err))
	}
}

// Get returns a snapshot copy of the (user, asset) balance row.
func (l *Ledger) Get(userID, asset string) Balance {
	sh := l.shardFor(userID, asset)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return *l.getLocked(sh, userID, asset)
}

// Deposit credits available balance unconditionally (external deposit or
// admin adjustment, not a fill). Equivalent to the composite "credit".
func (l *Ledger) Deposit(userID, asset string, amount money.Amount) error {
	if !money.IsPositive(amount) {
		return xerrors.New(xerrors.CodeValidation, "deposit amount must be positive")
	}
	sh := l.shardFor(userID, asset)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	b := l.getLocked(sh, userID, asset)
	b.Available = b.Available.Add(amount)
	l.persist(b)
	return nil
}

// Lock moves amount from available to locked, e.g. when an order is accepted.
// Fails with InsufficientBalance if available < amount.
func (l *Ledger) Lock(userID, asset string, amount money.Amount) error {
	if !money.IsPositive(amount) {
		return xerrors.New(xerrors.CodeValidation, "lock amount must be positive")
	}
	sh := l.shardFor(userID, asset)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	b := l.getLocked(sh, userID, asset)
	if b.Available.LessThan(amount) {
		return xerrors.Newf(xerrors.CodeInsufficientBalance, "user %s: available %s < requested lock %s %s", userID, b.Available, amount, asset)
	}
	b.Available = b.Available.Sub(amount)
	b.Locked = b.Locked.Add(amount)
	l.persist(b)
	return nil
}

// Unlock moves amount from locked back to available, e.g. on cancel.
// Fails with InsufficientLocked if locked < amount.
func (l *Ledger) Unlock(userID, asset string, amount money.Amount) error {
	if !money.IsPositive(amount) {
		return xerrors.New(xerrors.CodeValidation, "unlock amount must be positive")
	}
	sh := l.shardFor(userID, asset)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return l.unlockLocked(sh, userID, asset, amount)
}

func (l *Ledger) unlockLocked(sh *shard, userID, asset string, amount money.Amount) error {
	b := l.getLocked(sh, userID, asset)
	if b.Locked.LessThan(amount) {
		return xerrors.Newf(xerrors.CodeInsufficientLocked, "user %s: locked %s < requested unlock %s %s", userID, b.Locked, amount, asset)
	}
	b.Locked = b.Locked.Sub(amount)
	b.Available = b.Available.Add(amount)
	l.persist(b)
	return nil
}

// Credit increases available balance, used when a fill delivers an asset.
func (l *Ledger) Credit(userID, asset string, amount money.Amount) error {
	if amount.IsNegative() {
		return xerrors.New(xerrors.CodeValidation, "credit amount cannot be negative")
	}
	if amount.IsZero() {
		return nil
	}
	sh := l.shardFor(userID, asset)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return l.creditLocked(sh, userID, asset, amount)
}

func (l *Ledger) creditLocked(sh *shard, userID, asset string, amount money.Amount) error {
	b := l.getLocked(sh, userID, asset)
	b.Available = b.Available.Add(amount)
	l.persist(b)
	return nil
}

// DebitLocked decreases locked balance, used when a fill consumes funds that
// were locked against an order (the matched side of a fill, before any
// residual is unlocked).
func (l *Ledger) DebitLocked(userID, asset string, amount money.Amount) error {
	if !money.IsPositive(amount) {
		return xerrors.New(xerrors.CodeValidation, "debit amount must be positive")
	}
	sh := l.shardFor(userID, asset)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return l.debitLockedLocked(sh, userID, asset, amount)
}

func (l *Ledger) debitLockedLocked(sh *shard, userID, asset string, amount money.Amount) error {
	b := l.getLocked(sh, userID, asset)
	if b.Locked.LessThan(amount) {
		return xerrors.Newf(xerrors.CodeInsufficientLocked, "user %s: locked %s < requested debit %s %s", userID, b.Locked, amount, asset)
	}
	b.Locked = b.Locked.Sub(amount)
	l.persist(b)
	return nil
}

// FillLeg describes one side's balance mutation for a single fill, so
// SettleFill can apply both sides atomically with a consistent lock order.
type FillLeg struct {
	UserID       string
	DebitAsset   string // asset to debit from locked
	DebitAmount  money.Amount
	CreditAsset  string // asset to credit to available
	CreditAmount money.Amount
}

// SettleFill applies both legs of a trade fill as a single transactional
// scope: debit each side's locked balance and credit each side's received
// balance net of fees, already netted into CreditAmount by the caller. If
// either leg fails, neither is applied (§4.4 "If any step fails, the whole
// transaction rolls back").
//
// Lock ordering: both legs' shards are locked in a fixed order (lower shard
// index first) to avoid deadlock when two fills for the same pair of users
// run concurrently on different markets.
func (l *Ledger) SettleFill(buyer, seller FillLeg) error {
	shA := l.shardFor(buyer.UserID, buyer.DebitAsset)
	shB := l.shardFor(seller.UserID, seller.DebitAsset)

	// Collect every distinct shard touched (up to 4: buyer debit/credit,
	// seller debit/credit) and lock them in a stable order.
	touched := map[*shard]struct{}{
		shA: {},
		shB: {},
		l.shardFor(buyer.UserID, buyer.CreditAsset):  {},
		l.shardFor(seller.UserID, seller.CreditAsset): {},
	}
	shards := make([]*shard, 0, len(touched))
	for sh := range touched {
		shards = append(shards, sh)
	}
	sortShards(shards)

	for _, sh := range shards {
		sh.mu.Lock()
		defer sh.mu.Unlock()
	}

	// All four shard locks are held for the remainder of this call, so no
	// other goroutine can observe an intermediate state; on failure we undo
	// whatever already applied before returning, leaving balances exactly as
	// they were (§4.4: "no trade is emitted, no balance changes persist").
	var applied []func()
	rollback := func() {
		for i := len(applied) - 1; i >= 0; i-- {
			applied[i]()
		}
	}

	if err := l.debitLockedLocked(l.shardFor(buyer.UserID, buyer.DebitAsset), buyer.UserID, buyer.DebitAsset, buyer.DebitAmount); err != nil {
		rollback()
		return fmt.Errorf("settle fill: buyer debit: %w", err)
	}
	applied = append(applied, func() {
		l.undoDebitLocked(l.shardFor(buyer.UserID, buyer.DebitAsset), buyer.UserID, buyer.DebitAsset, buyer.DebitAmount)
	})

	if err := l.debitLockedLocked(l.shardFor(seller.UserID, seller.DebitAsset), seller.UserID, seller.DebitAsset, seller.DebitAmount); err != nil {
		rollback()
		return fmt.Errorf("settle fill: seller debit: %w", err)
	}
	applied = append(applied, func() {
		l.undoDebitLocked(l.shardFor(seller.UserID, seller.DebitAsset), seller.UserID, seller.DebitAsset, seller.DebitAmount)
	})

	if err := l.creditLocked(l.shardFor(buyer.UserID, buyer.CreditAsset), buyer.UserID, buyer.CreditAsset, buyer.CreditAmount); err != nil {
		rollback()
		return fmt.Errorf("settle fill: buyer credit: %w", err)
	}
	applied = append(applied, func() {
		l.undoCreditLocked(l.shardFor(buyer.UserID, buyer.CreditAsset), buyer.UserID, buyer.CreditAsset, buyer.CreditAmount)
	})

	if err := l.creditLocked(l.shardFor(seller.UserID, seller.CreditAsset), seller.UserID, seller.CreditAsset, seller.CreditAmount); err != nil {
		rollback()
		return fmt.Errorf("settle fill: seller credit: %w", err)
	}
	return nil
}

// undoDebitLocked reverses a prior debitLockedLocked during SettleFill
// rollback. Caller must hold sh.mu.
func (l *Ledger) undoDebitLocked(sh *shard, userID, asset string, amount money.Amount) {
	b := l.getLocked(sh, userID, asset)
	b.Locked = b.Locked.Add(amount)
	l.persist(b)
}

// undoCreditLocked reverses a prior creditLocked during SettleFill rollback.
// Caller must hold sh.mu.
func (l *Ledger) undoCreditLocked(sh *shard, userID, asset string, amount money.Amount) {
	b := l.getLocked(sh, userID, asset)
	b.Available = b.Available.Sub(amount)
	l.persist(b)
}

func sortShards(shards []*shard) {
	sort.Slice(shards, func(i, j int) bool { return shards[i].idx < shards[j].idx })
}
