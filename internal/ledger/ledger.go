// Package ledger is the single point of truth for user balances. Every
// mutation goes through ApplyDelta as a signed adjustment.
package ledger

import (
	"context"
	"log"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/noa1020/Finance-master/internal/events"
	"github.com/noa1020/Finance-master/internal/readmodel"
	"github.com/noa1020/Finance-master/internal/storage"
)

// Ledger reads and writes user balances. Deltas for the same user are
// serialized through a per-user lock, so concurrent paired operations can
// never lose an update; deltas for different users run in parallel.
type Ledger struct {
	users     storage.UserStore
	views     *readmodel.UserViews
	publisher events.Publisher

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New creates a Ledger. views and publisher may be nil; cache refreshes and
// event publication are then skipped.
func New(users storage.UserStore, views *readmodel.UserViews, publisher events.Publisher) *Ledger {
	return &Ledger{
		users:     users,
		views:     views,
		publisher: publisher,
		locks:     make(map[int64]*sync.Mutex),
	}
}

// userLock returns the serialization point for one user. The table grows
// with the number of distinct users touched; entries are never reclaimed.
func (l *Ledger) userLock(userID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[userID] = lock
	}
	return lock
}

// ApplyDelta adjusts the user's balance by delta (which may be zero or
// negative) and returns the new balance. Exactly one read and one
// balance-only write hit the user record.
func (l *Ledger) ApplyDelta(ctx context.Context, userID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	user, err := l.users.GetUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	newBalance := user.Balance.Add(delta)
	if err := l.users.UpdateBalance(ctx, userID, newBalance); err != nil {
		return decimal.Zero, err
	}

	user.Balance = newBalance
	l.views.Put(ctx, user.View())
	l.publish(ctx, events.BalanceUpdatedEvent{
		UserID:     userID,
		NewBalance: newBalance,
		Change:     delta,
	})
	return newBalance, nil
}

// Balance returns the current balance without mutating it.
func (l *Ledger) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	user, err := l.users.GetUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return user.Balance, nil
}

func (l *Ledger) publish(ctx context.Context, data events.BalanceUpdatedEvent) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.Publish(ctx, events.LedgerEventsStream, events.BalanceUpdated, data); err != nil {
		log.Printf("Failed to publish balance.updated event: %v", err)
	}
}
