// Package coordinator keeps user balances consistent with the financial
// records that produce them. Entries pairs every record mutation with the
// matching ledger delta; Users owns the user lifecycle, including cascade
// deletion of a user's whole record set.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noa1020/Finance-master/internal/events"
	"github.com/noa1020/Finance-master/internal/ledger"
	"github.com/noa1020/Finance-master/internal/models"
	"github.com/noa1020/Finance-master/internal/sequence"
	"github.com/noa1020/Finance-master/internal/storage"
	"github.com/noa1020/Finance-master/internal/validation"
)

// ErrForbidden indicates the record exists but belongs to another user.
// Handlers fold it into 404 so record existence is never confirmed.
var ErrForbidden = errors.New("forbidden")

// Entries coordinates one record kind (expense or revenue). Each mutation is
// a two-step saga: the ledger delta and the record mutation are issued in a
// fixed order with a compensating reverse delta if the second step fails.
// There is still no shared transaction across the pair.
type Entries struct {
	kind      models.EntryKind
	store     storage.EntryStore
	users     storage.UserStore
	ledger    *ledger.Ledger
	ids       *sequence.Allocator
	validate  *validation.Validator
	publisher events.Publisher
}

func NewEntries(
	kind models.EntryKind,
	store storage.EntryStore,
	users storage.UserStore,
	ledger *ledger.Ledger,
	ids *sequence.Allocator,
	publisher events.Publisher,
) *Entries {
	return &Entries{
		kind:      kind,
		store:     store,
		users:     users,
		ledger:    ledger,
		ids:       ids,
		validate:  validation.New(),
		publisher: publisher,
	}
}

func (s *Entries) Kind() models.EntryKind { return s.kind }

// Create validates the entry, assigns an id when the caller supplied none,
// applies the signed amount to the owner's balance and inserts the record.
// If the insert fails after the delta committed, the delta is reversed.
func (s *Entries) Create(ctx context.Context, entry models.Entry) (models.Entry, error) {
	if err := s.validate.Entry(entry); err != nil {
		return models.Entry{}, err
	}
	if _, err := s.users.GetUser(ctx, entry.UserID); err != nil {
		return models.Entry{}, err
	}

	if entry.ID != 0 {
		_, err := s.store.GetByID(ctx, s.kind, entry.ID)
		if err == nil {
			return models.Entry{}, fmt.Errorf("%s %d: %w", s.kind, entry.ID, storage.ErrAlreadyExists)
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return models.Entry{}, err
		}
		s.ids.Observe(s.kind.String(), entry.ID)
	} else {
		id, err := s.ids.Next(s.kind.String(), func() (int64, error) { return s.maxID(ctx) })
		if err != nil {
			return models.Entry{}, err
		}
		entry.ID = id
	}

	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	delta := s.kind.Sign().Mul(entry.Amount)
	if _, err := s.ledger.ApplyDelta(ctx, entry.UserID, delta); err != nil {
		return models.Entry{}, err
	}

	inserted, err := s.store.Insert(ctx, s.kind, entry)
	if err != nil {
		s.compensate(ctx, entry.UserID, delta.Neg(), "create")
		return models.Entry{}, err
	}

	s.publish(ctx, events.EntryCreated, inserted)
	return inserted, nil
}

// Update merges the patch into the existing record by field presence,
// re-validates, and applies the amount difference to the balance before
// writing the merged record back.
func (s *Entries) Update(ctx context.Context, id int64, patch models.EntryPatch, requesterID int64) (models.Entry, error) {
	existing, err := s.store.GetByID(ctx, s.kind, id)
	if err != nil {
		return models.Entry{}, err
	}
	if existing.UserID != requesterID {
		return models.Entry{}, fmt.Errorf("%s %d: %w", s.kind, id, ErrForbidden)
	}

	merged := patch.ApplyTo(existing)
	merged.UpdatedAt = time.Now().UTC()
	if err := s.validate.Entry(merged); err != nil {
		return models.Entry{}, err
	}

	delta := s.kind.Sign().Mul(merged.Amount.Sub(existing.Amount))
	if !delta.IsZero() {
		if _, err := s.ledger.ApplyDelta(ctx, existing.UserID, delta); err != nil {
			return models.Entry{}, err
		}
	}

	updated, err := s.store.Update(ctx, s.kind, id, merged)
	if err != nil {
		if !delta.IsZero() {
			s.compensate(ctx, existing.UserID, delta.Neg(), "update")
		}
		return models.Entry{}, err
	}

	s.publish(ctx, events.EntryUpdated, updated)
	return updated, nil
}

// Delete removes the record, then reverses its balance effect. Deleting
// before applying the delta means a record's effect is reversed at most
// once, so a retried cascade cannot double-credit a balance.
func (s *Entries) Delete(ctx context.Context, id, userID int64) (models.Entry, error) {
	existing, err := s.store.GetByID(ctx, s.kind, id)
	if err != nil {
		return models.Entry{}, err
	}
	if existing.UserID != userID {
		return models.Entry{}, fmt.Errorf("%s %d: %w", s.kind, id, ErrForbidden)
	}

	deleted, err := s.store.Delete(ctx, s.kind, id)
	if err != nil {
		return models.Entry{}, err
	}

	reversal := s.kind.Sign().Neg().Mul(deleted.Amount)
	if _, err := s.ledger.ApplyDelta(ctx, deleted.UserID, reversal); err != nil {
		// Undo step one: put the record back so balance and records agree.
		if _, insErr := s.store.Insert(ctx, s.kind, deleted); insErr != nil {
			log.Printf("compensation failed: re-insert %s %d: %v", s.kind, id, insErr)
		}
		return models.Entry{}, err
	}

	s.publish(ctx, events.EntryDeleted, deleted)
	return deleted, nil
}

// Get fetches one record. Records owned by another user are reported as
// not found rather than forbidden.
func (s *Entries) Get(ctx context.Context, id, userID int64) (models.Entry, error) {
	entry, err := s.store.GetByID(ctx, s.kind, id)
	if err != nil {
		return models.Entry{}, err
	}
	if entry.UserID != userID {
		return models.Entry{}, fmt.Errorf("%s %d: %w", s.kind, id, storage.ErrNotFound)
	}
	return entry, nil
}

// List returns the user's records. The scan is collection-wide and the
// result order is unspecified; callers needing chronology sort themselves.
func (s *Entries) List(ctx context.Context, userID int64) ([]models.Entry, error) {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	all, err := s.store.GetAll(ctx, s.kind)
	if err != nil {
		return nil, err
	}
	owned := make([]models.Entry, 0, len(all))
	for _, e := range all {
		if e.UserID == userID {
			owned = append(owned, e)
		}
	}
	return owned, nil
}

func (s *Entries) maxID(ctx context.Context) (int64, error) {
	all, err := s.store.GetAll(ctx, s.kind)
	if err != nil {
		return 0, err
	}
	var max int64
	for _, e := range all {
		if e.ID > max {
			max = e.ID
		}
	}
	return max, nil
}

// compensate reverses an already-applied ledger delta after the record half
// of a paired operation failed. A failed compensation is logged; the store
// error from the failed half still reaches the caller.
func (s *Entries) compensate(ctx context.Context, userID int64, reversal decimal.Decimal, op string) {
	if _, err := s.ledger.ApplyDelta(ctx, userID, reversal); err != nil {
		log.Printf("compensation failed: reverse %s delta for user %d on %s: %v", s.kind, userID, op, err)
	}
}

func (s *Entries) publish(ctx context.Context, eventType string, entry models.Entry) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, events.EntryEventsStream, eventType, events.EntryEvent{
		Kind:    s.kind,
		EntryID: entry.ID,
		UserID:  entry.UserID,
		Amount:  entry.Amount,
	})
	if err != nil {
		log.Printf("Failed to publish %s event: %v", eventType, err)
	}
}
