// Package postgres is the PostgreSQL record store. It is the source of
// truth for users and entries; every statement touches a single row and no
// cross-row transaction is ever opened.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/noa1020/Finance-master/internal/models"
	"github.com/noa1020/Finance-master/internal/storage"
)

var (
	_ storage.UserStore  = (*Store)(nil)
	_ storage.EntryStore = (*Store)(nil)
)

type Store struct {
	db *sql.DB
}

// New wraps an open connection and ensures the schema exists.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT NOT NULL,
			birth_date TIMESTAMPTZ NOT NULL,
			balance NUMERIC(24,2) NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS entries (
			id BIGINT NOT NULL,
			kind TEXT NOT NULL,
			user_id BIGINT NOT NULL,
			amount NUMERIC(24,2) NOT NULL,
			entry_date TIMESTAMPTZ NOT NULL,
			counterparty TEXT NOT NULL,
			documentation TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (kind, id)
		);`,
		`CREATE INDEX IF NOT EXISTS entries_user_idx ON entries (kind, user_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}

const userColumns = `id, name, password_hash, email, phone, birth_date, balance, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Password, &u.Email, &u.Phone,
		&u.BirthDate, &u.Balance, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *Store) GetAllUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users`)
	if err != nil {
		return nil, storeErr("list users", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, storeErr("scan user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list users", err)
	}
	return users, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return models.User{}, storeErr("get user", err)
	}
	return u, nil
}

func (s *Store) InsertUser(ctx context.Context, user models.User) (models.User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, password_hash, email, phone, birth_date, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.Name, user.Password, user.Email, user.Phone,
		user.BirthDate, user.Balance, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, fmt.Errorf("user %d: %w", user.ID, storage.ErrAlreadyExists)
		}
		return models.User{}, storeErr("insert user", err)
	}
	return user, nil
}

func (s *Store) UpdateUser(ctx context.Context, id int64, user models.User) (models.User, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name = $2, password_hash = $3, email = $4, phone = $5, birth_date = $6, updated_at = $7
		WHERE id = $1`,
		id, user.Name, user.Password, user.Email, user.Phone, user.BirthDate, user.UpdatedAt,
	)
	if err != nil {
		return models.User{}, storeErr("update user", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return models.User{}, fmt.Errorf("user %d: %w", id, storage.ErrNotFound)
	}
	user.ID = id
	return user, nil
}

func (s *Store) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET balance = $2, updated_at = NOW() WHERE id = $1`, id, balance)
	if err != nil {
		return storeErr("update balance", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("user %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id int64) (models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM users WHERE id = $1 RETURNING `+userColumns, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return models.User{}, storeErr("delete user", err)
	}
	return u, nil
}

const entryColumns = `id, user_id, amount, entry_date, counterparty, documentation, created_at, updated_at`

func scanEntry(row interface{ Scan(...any) error }) (models.Entry, error) {
	var e models.Entry
	err := row.Scan(&e.ID, &e.UserID, &e.Amount, &e.Date,
		&e.Counterparty, &e.Documentation, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (s *Store) GetAll(ctx context.Context, kind models.EntryKind) ([]models.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE kind = $1`, kind.String())
	if err != nil {
		return nil, storeErr("list entries", err)
	}
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, storeErr("scan entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list entries", err)
	}
	return entries, nil
}

func (s *Store) GetByID(ctx context.Context, kind models.EntryKind, id int64) (models.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE kind = $1 AND id = $2`, kind.String(), id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Entry{}, fmt.Errorf("%s %d: %w", kind, id, storage.ErrNotFound)
	}
	if err != nil {
		return models.Entry{}, storeErr("get entry", err)
	}
	return e, nil
}

func (s *Store) Insert(ctx context.Context, kind models.EntryKind, entry models.Entry) (models.Entry, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (id, kind, user_id, amount, entry_date, counterparty, documentation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, kind.String(), entry.UserID, entry.Amount, entry.Date,
		entry.Counterparty, entry.Documentation, entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Entry{}, fmt.Errorf("%s %d: %w", kind, entry.ID, storage.ErrAlreadyExists)
		}
		return models.Entry{}, storeErr("insert entry", err)
	}
	return entry, nil
}

func (s *Store) Update(ctx context.Context, kind models.EntryKind, id int64, entry models.Entry) (models.Entry, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE entries
		SET user_id = $3, amount = $4, entry_date = $5, counterparty = $6, documentation = $7, updated_at = $8
		WHERE kind = $1 AND id = $2`,
		kind.String(), id, entry.UserID, entry.Amount, entry.Date,
		entry.Counterparty, entry.Documentation, entry.UpdatedAt,
	)
	if err != nil {
		return models.Entry{}, storeErr("update entry", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return models.Entry{}, fmt.Errorf("%s %d: %w", kind, id, storage.ErrNotFound)
	}
	entry.ID = id
	return entry, nil
}

func (s *Store) Delete(ctx context.Context, kind models.EntryKind, id int64) (models.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM entries WHERE kind = $1 AND id = $2 RETURNING `+entryColumns, kind.String(), id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Entry{}, fmt.Errorf("%s %d: %w", kind, id, storage.ErrNotFound)
	}
	if err != nil {
		return models.Entry{}, storeErr("delete entry", err)
	}
	return e, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, storage.ErrUnavailable)
}
