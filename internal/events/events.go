package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noa1020/Finance-master/internal/models"
)

// Event types
const (
	UserCreated = "user.created"
	UserUpdated = "user.updated"
	UserDeleted = "user.deleted"

	EntryCreated = "entry.created"
	EntryUpdated = "entry.updated"
	EntryDeleted = "entry.deleted"

	BalanceUpdated = "balance.updated"
)

// Stream names
const (
	UserEventsStream   = "user.events"
	EntryEventsStream  = "entry.events"
	LedgerEventsStream = "ledger.events"
)

// Base event structure
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type UserCreatedEvent struct {
	UserID  int64           `json:"userId"`
	Email   string          `json:"email"`
	Balance decimal.Decimal `json:"balance"`
}

type UserUpdatedEvent struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
}

// UserDeletedEvent is published once a cascade completes.
type UserDeletedEvent struct {
	UserID         int64 `json:"userId"`
	RecordsRemoved int   `json:"recordsRemoved"`
}

type EntryEvent struct {
	Kind    models.EntryKind `json:"kind"`
	EntryID int64            `json:"entryId"`
	UserID  int64            `json:"userId"`
	Amount  decimal.Decimal  `json:"amount"`
}

type BalanceUpdatedEvent struct {
	UserID     int64           `json:"userId"`
	NewBalance decimal.Decimal `json:"newBalance"`
	Change     decimal.Decimal `json:"change"`
}
