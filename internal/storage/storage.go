package storage

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/noa1020/Finance-master/internal/models"
)

// ErrNotFound indicates a record does not exist in the addressed collection.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates an insert collided with an existing id.
var ErrAlreadyExists = errors.New("record already exists")

// ErrUnavailable indicates the store itself failed, independent of the
// input's validity. Handlers map it to a degraded-service status.
var ErrUnavailable = errors.New("store unavailable")

// UserStore persists user records. Every operation touches a single record;
// no multi-record atomicity is offered. UpdateBalance exists so the ledger
// can mutate the balance column without rewriting profile fields.
type UserStore interface {
	GetAllUsers(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, id int64) (models.User, error)
	InsertUser(ctx context.Context, user models.User) (models.User, error)
	UpdateUser(ctx context.Context, id int64, user models.User) (models.User, error)
	UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	DeleteUser(ctx context.Context, id int64) (models.User, error)
}

// EntryStore persists expense and revenue records, addressed per collection
// by kind. Delete returns the removed record.
type EntryStore interface {
	GetAll(ctx context.Context, kind models.EntryKind) ([]models.Entry, error)
	GetByID(ctx context.Context, kind models.EntryKind, id int64) (models.Entry, error)
	Insert(ctx context.Context, kind models.EntryKind, entry models.Entry) (models.Entry, error)
	Update(ctx context.Context, kind models.EntryKind, id int64, entry models.Entry) (models.Entry, error)
	Delete(ctx context.Context, kind models.EntryKind, id int64) (models.Entry, error)
}
