package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind distinguishes the two financial record collections.
type EntryKind string

const (
	KindExpense EntryKind = "expense"
	KindRevenue EntryKind = "revenue"
)

var (
	minusOne = decimal.NewFromInt(-1)
	plusOne  = decimal.NewFromInt(1)
)

// Sign returns the direction an entry of this kind moves a balance:
// -1 for expenses, +1 for revenues.
func (k EntryKind) Sign() decimal.Decimal {
	if k == KindExpense {
		return minusOne
	}
	return plusOne
}

func (k EntryKind) String() string { return string(k) }

// User is the write model. Balance is mutated only through the ledger.
type User struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Password  string          `json:"-"`
	Email     string          `json:"email"`
	Phone     string          `json:"phone"`
	BirthDate time.Time       `json:"birthDate"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdTimestamp"`
	UpdatedAt time.Time       `json:"updatedTimestamp"`
}

// Entry is a single expense or revenue record. Counterparty holds the
// beneficiary of an expense or the benefactor of a revenue; the HTTP layer
// maps the kind-specific field names.
type Entry struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"userId"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	Counterparty  string          `json:"counterparty"`
	Documentation string          `json:"documentation"`
	CreatedAt     time.Time       `json:"createdTimestamp"`
	UpdatedAt     time.Time       `json:"updatedTimestamp"`
}

// EntryPatch is a partial update. Nil means "leave unchanged"; a non-nil
// pointer means "set this value", so explicit zero values survive the merge.
type EntryPatch struct {
	Amount        *decimal.Decimal `json:"amount"`
	Date          *time.Time       `json:"date"`
	Counterparty  *string          `json:"counterparty"`
	Documentation *string          `json:"documentation"`
}

// ApplyTo merges the patch into a copy of the existing entry.
func (p EntryPatch) ApplyTo(e Entry) Entry {
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.Counterparty != nil {
		e.Counterparty = *p.Counterparty
	}
	if p.Documentation != nil {
		e.Documentation = *p.Documentation
	}
	return e
}

// UserPatch is a partial profile update. Balance is deliberately absent:
// only the ledger writes balances.
type UserPatch struct {
	Name      *string    `json:"name"`
	Password  *string    `json:"password"`
	Email     *string    `json:"email"`
	Phone     *string    `json:"phone"`
	BirthDate *time.Time `json:"birthDate"`
}

// ApplyTo merges the patch into a copy of the existing user. Password is
// carried through raw; the coordinator hashes it after validation.
func (p UserPatch) ApplyTo(u User) User {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Password != nil {
		u.Password = *p.Password
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.BirthDate != nil {
		u.BirthDate = *p.BirthDate
	}
	return u
}
