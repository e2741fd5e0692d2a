// Package memstore is an in-memory implementation of the storage interfaces
// with the same single-record, no-transaction semantics as the Postgres
// store. It backs tests and local development.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/noa1020/Finance-master/internal/models"
	"github.com/noa1020/Finance-master/internal/storage"
)

var (
	_ storage.UserStore  = (*Store)(nil)
	_ storage.EntryStore = (*Store)(nil)
)

type Store struct {
	mu      sync.RWMutex
	users   map[int64]models.User
	entries map[models.EntryKind]map[int64]models.Entry
}

func New() *Store {
	return &Store{
		users: make(map[int64]models.User),
		entries: map[models.EntryKind]map[int64]models.Entry{
			models.KindExpense: {},
			models.KindRevenue: {},
		},
	}
}

func (s *Store) GetAllUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	return users, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %d: %w", id, storage.ErrNotFound)
	}
	return u, nil
}

func (s *Store) InsertUser(ctx context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return models.User{}, fmt.Errorf("user %d: %w", user.ID, storage.ErrAlreadyExists)
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *Store) UpdateUser(ctx context.Context, id int64, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return models.User{}, fmt.Errorf("user %d: %w", id, storage.ErrNotFound)
	}
	user.ID = id
	s.users[id] = user
	return user, nil
}

func (s *Store) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, storage.ErrNotFound)
	}
	u.Balance = balance
	s.users[id] = u
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id int64) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %d: %w", id, storage.ErrNotFound)
	}
	delete(s.users, id)
	return u, nil
}

func (s *Store) GetAll(ctx context.Context, kind models.EntryKind) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll := s.entries[kind]
	entries := make([]models.Entry, 0, len(coll))
	for _, e := range coll {
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Store) GetByID(ctx context.Context, kind models.EntryKind, id int64) (models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[kind][id]
	if !ok {
		return models.Entry{}, fmt.Errorf("%s %d: %w", kind, id, storage.ErrNotFound)
	}
	return e, nil
}

func (s *Store) Insert(ctx context.Context, kind models.EntryKind, entry models.Entry) (models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[kind][entry.ID]; ok {
		return models.Entry{}, fmt.Errorf("%s %d: %w", kind, entry.ID, storage.ErrAlreadyExists)
	}
	s.entries[kind][entry.ID] = entry
	return entry, nil
}

func (s *Store) Update(ctx context.Context, kind models.EntryKind, id int64, entry models.Entry) (models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[kind][id]; !ok {
		return models.Entry{}, fmt.Errorf("%s %d: %w", kind, id, storage.ErrNotFound)
	}
	entry.ID = id
	s.entries[kind][id] = entry
	return entry, nil
}

func (s *Store) Delete(ctx context.Context, kind models.EntryKind, id int64) (models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[kind][id]
	if !ok {
		return models.Entry{}, fmt.Errorf("%s %d: %w", kind, id, storage.ErrNotFound)
	}
	delete(s.entries[kind], id)
	return e, nil
}
