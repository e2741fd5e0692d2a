package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/noa1020/Finance-master/internal/events"
	"github.com/noa1020/Finance-master/internal/models"
	"github.com/noa1020/Finance-master/internal/readmodel"
	"github.com/noa1020/Finance-master/internal/storage"
	"github.com/noa1020/Finance-master/internal/validation"
)

const defaultCascadeWorkers = 8

// Users owns the user lifecycle. Deletion cascades over the user's entire
// expense and revenue set through the per-kind coordinators before the user
// record itself is removed.
type Users struct {
	store          storage.UserStore
	expenses       *Entries
	revenues       *Entries
	views          *readmodel.UserViews
	validate       *validation.Validator
	publisher      events.Publisher
	cascadeWorkers int
}

func NewUsers(
	store storage.UserStore,
	expenses, revenues *Entries,
	views *readmodel.UserViews,
	publisher events.Publisher,
	cascadeWorkers int,
) *Users {
	if cascadeWorkers <= 0 {
		cascadeWorkers = defaultCascadeWorkers
	}
	return &Users{
		store:          store,
		expenses:       expenses,
		revenues:       revenues,
		views:          views,
		validate:       validation.New(),
		publisher:      publisher,
		cascadeWorkers: cascadeWorkers,
	}
}

// Create validates and inserts a new user. Balance is taken as supplied:
// an opaque opening value, mutable afterwards only through the ledger.
func (s *Users) Create(ctx context.Context, user models.User) (models.User, error) {
	if err := s.validate.User(user); err != nil {
		return models.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = string(hash)

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	created, err := s.store.InsertUser(ctx, user)
	if err != nil {
		return models.User{}, err
	}

	s.views.Put(ctx, created.View())
	s.publishUser(ctx, events.UserCreated, events.UserCreatedEvent{
		UserID:  created.ID,
		Email:   created.Email,
		Balance: created.Balance,
	})
	return created, nil
}

// Update merges a profile patch by field presence. Balance is not part of
// the patch; only the ledger writes balances.
func (s *Users) Update(ctx context.Context, id int64, patch models.UserPatch) (models.UserView, error) {
	existing, err := s.store.GetUser(ctx, id)
	if err != nil {
		return models.UserView{}, err
	}

	merged := patch.ApplyTo(existing)
	if err := s.validate.User(merged); err != nil {
		return models.UserView{}, err
	}
	if patch.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*patch.Password), bcrypt.DefaultCost)
		if err != nil {
			return models.UserView{}, fmt.Errorf("failed to hash password: %w", err)
		}
		merged.Password = string(hash)
	}
	merged.UpdatedAt = time.Now().UTC()

	updated, err := s.store.UpdateUser(ctx, id, merged)
	if err != nil {
		return models.UserView{}, err
	}

	view := updated.View()
	s.views.Put(ctx, view)
	s.publishUser(ctx, events.UserUpdated, events.UserUpdatedEvent{
		UserID: updated.ID,
		Email:  updated.Email,
	})
	return view, nil
}

// Get returns the user's view, cache-first with a store fallback.
func (s *Users) Get(ctx context.Context, id int64) (models.UserView, error) {
	if view, ok := s.views.Get(ctx, id); ok {
		return *view, nil
	}
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return models.UserView{}, err
	}
	view := user.View()
	s.views.Put(ctx, view)
	return view, nil
}

// List returns views of every user.
func (s *Users) List(ctx context.Context) ([]models.UserView, error) {
	users, err := s.store.GetAllUsers(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]models.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, u.View())
	}
	return views, nil
}

// Delete removes the user and every record they own. The returned tombstone
// carries the balance snapshotted before the cascade started: the per-record
// reversals applied during the cascade are about to be discarded with the
// user row, and surfacing their interleaved result would only confuse.
//
// If any sub-deletion fails the user record survives and the error
// aggregates every failure; records deleted before the failure stay deleted.
// Re-running the cascade skips records that are already gone.
func (s *Users) Delete(ctx context.Context, userID int64) (models.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	snapshot := user.Balance

	expenses, revenues, err := s.fetchOwned(ctx, userID)
	if err != nil {
		return models.User{}, err
	}

	if err := s.deleteAll(ctx, expenses, revenues, userID); err != nil {
		return models.User{}, fmt.Errorf("cascade aborted, user %d not deleted: %w", userID, err)
	}

	if _, err := s.store.DeleteUser(ctx, userID); err != nil {
		return models.User{}, err
	}

	s.views.Invalidate(ctx, userID)
	s.publishUser(ctx, events.UserDeleted, events.UserDeletedEvent{
		UserID:         userID,
		RecordsRemoved: len(expenses) + len(revenues),
	})

	user.Balance = snapshot
	return user, nil
}

// fetchOwned loads both collections concurrently. Either fetch failing
// fails the whole deletion before any record is touched.
func (s *Users) fetchOwned(ctx context.Context, userID int64) ([]models.Entry, []models.Entry, error) {
	var (
		wg                 sync.WaitGroup
		expenses, revenues []models.Entry
		expErr, revErr     error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		expenses, expErr = s.expenses.List(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		revenues, revErr = s.revenues.List(ctx, userID)
	}()
	wg.Wait()

	if expErr != nil {
		return nil, nil, expErr
	}
	if revErr != nil {
		return nil, nil, revErr
	}
	return expenses, revenues, nil
}

type cascadeTarget struct {
	coordinator *Entries
	id          int64
}

// deleteAll fans the per-record deletions out over a bounded worker pool
// and joins every failure rather than stopping at the first. A record that
// is already gone counts as deleted.
func (s *Users) deleteAll(ctx context.Context, expenses, revenues []models.Entry, userID int64) error {
	targets := make([]cascadeTarget, 0, len(expenses)+len(revenues))
	for _, e := range expenses {
		targets = append(targets, cascadeTarget{s.expenses, e.ID})
	}
	for _, r := range revenues {
		targets = append(targets, cascadeTarget{s.revenues, r.ID})
	}
	if len(targets) == 0 {
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	sem := make(chan struct{}, s.cascadeWorkers)
	for _, t := range targets {
		t := t
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			_, err := t.coordinator.Delete(ctx, t.id, userID)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				mu.Lock()
				errs = append(errs, fmt.Errorf("delete %s %d: %w", t.coordinator.Kind(), t.id, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (s *Users) publishUser(ctx context.Context, eventType string, data any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.UserEventsStream, eventType, data); err != nil {
		log.Printf("Failed to publish %s event: %v", eventType, err)
	}
}
