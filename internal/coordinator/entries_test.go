package coordinator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noa1020/Finance-master/internal/ledger"
	"github.com/noa1020/Finance-master/internal/models"
	"github.com/noa1020/Finance-master/internal/sequence"
	"github.com/noa1020/Finance-master/internal/storage"
	"github.com/noa1020/Finance-master/internal/storage/memstore"
	"github.com/noa1020/Finance-master/internal/validation"
)

const (
	ownerID int64 = 123456782
	otherID int64 = 987654324
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// flakyEntryStore injects failures into selected operations while
// delegating everything else to the real in-memory store. Faults are
// keyed by kind and id because ids are only unique per collection.
type entryKey struct {
	kind models.EntryKind
	id   int64
}

type flakyEntryStore struct {
	storage.EntryStore
	failInsert bool
	failUpdate bool
	failDelete map[entryKey]bool
	goneDelete map[entryKey]bool
}

func (f *flakyEntryStore) Insert(ctx context.Context, kind models.EntryKind, e models.Entry) (models.Entry, error) {
	if f.failInsert {
		return models.Entry{}, fmt.Errorf("insert rejected: %w", storage.ErrUnavailable)
	}
	return f.EntryStore.Insert(ctx, kind, e)
}

func (f *flakyEntryStore) Update(ctx context.Context, kind models.EntryKind, id int64, e models.Entry) (models.Entry, error) {
	if f.failUpdate {
		return models.Entry{}, fmt.Errorf("update rejected: %w", storage.ErrUnavailable)
	}
	return f.EntryStore.Update(ctx, kind, id, e)
}

func (f *flakyEntryStore) Delete(ctx context.Context, kind models.EntryKind, id int64) (models.Entry, error) {
	if f.failDelete[entryKey{kind, id}] {
		return models.Entry{}, fmt.Errorf("delete rejected: %w", storage.ErrUnavailable)
	}
	if f.goneDelete[entryKey{kind, id}] {
		return models.Entry{}, fmt.Errorf("%s %d: %w", kind, id, storage.ErrNotFound)
	}
	return f.EntryStore.Delete(ctx, kind, id)
}

type env struct {
	store    *memstore.Store
	ledger   *ledger.Ledger
	expenses *Entries
	revenues *Entries
}

// newEnv seeds two users, the owner with the given balance.
func newEnv(t *testing.T, balance float64) *env {
	t.Helper()
	return newEnvWithStore(t, memstore.New(), nil, balance)
}

func newEnvWithStore(t *testing.T, store *memstore.Store, entryStore storage.EntryStore, balance float64) *env {
	t.Helper()
	ctx := context.Background()
	seed := []models.User{
		{ID: ownerID, Name: "Noa Cohen", Password: "x", Balance: dec(balance)},
		{ID: otherID, Name: "Dana Levi", Password: "x", Balance: dec(0)},
	}
	for _, u := range seed {
		if _, err := store.InsertUser(ctx, u); err != nil {
			t.Fatalf("seed user %d: %v", u.ID, err)
		}
	}

	if entryStore == nil {
		entryStore = store
	}
	lg := ledger.New(store, nil, nil)
	ids := sequence.New()
	return &env{
		store:    store,
		ledger:   lg,
		expenses: NewEntries(models.KindExpense, entryStore, store, lg, ids, nil),
		revenues: NewEntries(models.KindRevenue, entryStore, store, lg, ids, nil),
	}
}

func (e *env) balance(t *testing.T, userID int64) decimal.Decimal {
	t.Helper()
	u, err := e.store.GetUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	return u.Balance
}

func (e *env) mustBalance(t *testing.T, userID int64, want float64) {
	t.Helper()
	got := e.balance(t, userID)
	if !got.Equal(dec(want)) {
		t.Fatalf("balance = %s, want %s", got, dec(want))
	}
}

func testEntry(owner int64, amount float64) models.Entry {
	return models.Entry{
		UserID:        owner,
		Amount:        dec(amount),
		Date:          time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Counterparty:  "Acme Corp",
		Documentation: "invoice 42",
	}
}

func TestCreateAdjustsBalance(t *testing.T) {
	tests := []struct {
		name   string
		kind   models.EntryKind
		amount float64
		want   float64
	}{
		{"expense decreases balance", models.KindExpense, 30, 70},
		{"revenue increases balance", models.KindRevenue, 50, 150},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, 100)
			coord := e.expenses
			if tt.kind == models.KindRevenue {
				coord = e.revenues
			}
			if _, err := coord.Create(context.Background(), testEntry(ownerID, tt.amount)); err != nil {
				t.Fatalf("Create: %v", err)
			}
			e.mustBalance(t, ownerID, tt.want)
		})
	}
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	e := newEnv(t, 1000)
	ctx := context.Background()

	first, err := e.expenses.Create(ctx, testEntry(ownerID, 10))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if first.ID != 1 {
		t.Errorf("first id into empty collection = %d, want 1", first.ID)
	}

	second, err := e.expenses.Create(ctx, testEntry(ownerID, 10))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if second.ID != 2 {
		t.Errorf("second id = %d, want 2", second.ID)
	}

	// A caller-supplied id bumps the counter past it.
	supplied := testEntry(ownerID, 10)
	supplied.ID = 7
	if _, err := e.expenses.Create(ctx, supplied); err != nil {
		t.Fatalf("Create with supplied id: %v", err)
	}
	next, err := e.expenses.Create(ctx, testEntry(ownerID, 10))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if next.ID != 8 {
		t.Errorf("id after max 7 = %d, want 8", next.ID)
	}

	// The two collections count independently.
	rev, err := e.revenues.Create(ctx, testEntry(ownerID, 10))
	if err != nil {
		t.Fatalf("Create revenue: %v", err)
	}
	if rev.ID != 1 {
		t.Errorf("first revenue id = %d, want 1", rev.ID)
	}
}

func TestCreateDuplicateID(t *testing.T) {
	e := newEnv(t, 100)
	ctx := context.Background()

	entry := testEntry(ownerID, 10)
	entry.ID = 5
	if _, err := e.expenses.Create(ctx, entry); err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err := e.expenses.Create(ctx, entry)
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	// The failed create must not have touched the balance.
	e.mustBalance(t, ownerID, 90)
}

func TestCreateInvalidNoSideEffect(t *testing.T) {
	e := newEnv(t, 100)
	ctx := context.Background()

	bad := testEntry(ownerID, 0)
	_, err := e.expenses.Create(ctx, bad)
	if !errors.Is(err, validation.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}

	e.mustBalance(t, ownerID, 100)
	all, _ := e.store.GetAll(ctx, models.KindExpense)
	if len(all) != 0 {
		t.Errorf("invalid create inserted a record")
	}
}

func TestCreateUnknownUser(t *testing.T) {
	e := newEnv(t, 100)

	_, err := e.expenses.Create(context.Background(), testEntry(111111118, 10))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateInsertFailureCompensates(t *testing.T) {
	store := memstore.New()
	flaky := &flakyEntryStore{EntryStore: store, failInsert: true}
	e := newEnvWithStore(t, store, flaky, 100)

	_, err := e.expenses.Create(context.Background(), testEntry(ownerID, 30))
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	// The already-applied delta was reversed.
	e.mustBalance(t, ownerID, 100)
}

func TestUpdateAmountDelta(t *testing.T) {
	tests := []struct {
		name      string
		kind      models.EntryKind
		from, to  float64
		wantAfter float64
	}{
		{"expense raised", models.KindExpense, 30, 40, 60},  // 100-30=70, then -10
		{"expense lowered", models.KindExpense, 30, 10, 90}, // 70 +20
		{"revenue raised", models.KindRevenue, 50, 80, 180}, // 150 +30
		{"revenue lowered", models.KindRevenue, 50, 20, 120},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, 100)
			ctx := context.Background()
			coord := e.expenses
			if tt.kind == models.KindRevenue {
				coord = e.revenues
			}

			created, err := coord.Create(ctx, testEntry(ownerID, tt.from))
			if err != nil {
				t.Fatalf("Create: %v", err)
			}

			amount := dec(tt.to)
			updated, err := coord.Update(ctx, created.ID, models.EntryPatch{Amount: &amount}, ownerID)
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			if !updated.Amount.Equal(amount) {
				t.Errorf("amount = %s, want %s", updated.Amount, amount)
			}
			e.mustBalance(t, ownerID, tt.wantAfter)
		})
	}
}

func TestUpdateMergesByPresence(t *testing.T) {
	e := newEnv(t, 100)
	ctx := context.Background()

	created, err := e.expenses.Create(ctx, testEntry(ownerID, 30))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	doc := "corrected receipt"
	updated, err := e.expenses.Update(ctx, created.ID, models.EntryPatch{Documentation: &doc}, ownerID)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Documentation != doc {
		t.Errorf("documentation = %q, want %q", updated.Documentation, doc)
	}
	if !updated.Amount.Equal(dec(30)) {
		t.Errorf("amount changed by unrelated patch: %s", updated.Amount)
	}
	if updated.Counterparty != created.Counterparty {
		t.Errorf("counterparty changed by unrelated patch")
	}
	// No amount change, no balance movement.
	e.mustBalance(t, ownerID, 70)
}

func TestUpdateExplicitZeroAmountRejected(t *testing.T) {
	e := newEnv(t, 100)
	ctx := context.Background()

	created, err := e.expenses.Create(ctx, testEntry(ownerID, 30))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	zero := decimal.Zero
	_, err = e.expenses.Update(ctx, created.ID, models.EntryPatch{Amount: &zero}, ownerID)
	if !errors.Is(err, validation.ErrInvalid) {
		t.Fatalf("explicit zero amount: expected ErrInvalid, got %v", err)
	}
	e.mustBalance(t, ownerID, 70)
}

func TestUpdateOwnership(t *testing.T) {
	e := newEnv(t, 100)
	ctx := context.Background()

	created, err := e.expenses.Create(ctx, testEntry(ownerID, 30))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	amount := dec(99)
	_, err = e.expenses.Update(ctx, created.ID, models.EntryPatch{Amount: &amount}, otherID)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	stored, _ := e.store.GetByID(ctx, models.KindExpense, created.ID)
	if !stored.Amount.Equal(dec(30)) {
		t.Errorf("forbidden update mutated the record")
	}
	e.mustBalance(t, ownerID, 70)
}

func TestUpdateStoreFailureCompensates(t *testing.T) {
	store := memstore.New()
	flaky := &flakyEntryStore{EntryStore: store}
	e := newEnvWithStore(t, store, flaky, 100)
	ctx := context.Background()

	created, err := e.expenses.Create(ctx, testEntry(ownerID, 30))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	e.mustBalance(t, ownerID, 70)

	flaky.failUpdate = true
	amount := dec(50)
	_, err = e.expenses.Update(ctx, created.ID, models.EntryPatch{Amount: &amount}, ownerID)
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	// Delta of -20 was applied, then reversed when the write failed.
	e.mustBalance(t, ownerID, 70)
}

func TestDeleteReversesEffect(t *testing.T) {
	tests := []struct {
		name      string
		kind      models.EntryKind
		amount    float64
		wantAfter float64
	}{
		{"deleting expense restores balance", models.KindExpense, 30, 100},
		{"deleting revenue removes credit", models.KindRevenue, 50, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, 100)
			ctx := context.Background()
			coord := e.expenses
			if tt.kind == models.KindRevenue {
				coord = e.revenues
			}

			created, err := coord.Create(ctx, testEntry(ownerID, tt.amount))
			if err != nil {
				t.Fatalf("Create: %v", err)
			}

			deleted, err := coord.Delete(ctx, created.ID, ownerID)
			if err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if deleted.ID != created.ID {
				t.Errorf("deleted id = %d, want %d", deleted.ID, created.ID)
			}
			e.mustBalance(t, ownerID, tt.wantAfter)

			if _, err := e.store.GetByID(ctx, tt.kind, created.ID); !errors.Is(err, storage.ErrNotFound) {
				t.Errorf("record still present after delete")
			}
		})
	}
}

func TestDeleteOwnership(t *testing.T) {
	e := newEnv(t, 100)
	ctx := context.Background()

	created, err := e.expenses.Create(ctx, testEntry(ownerID, 30))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = e.expenses.Delete(ctx, created.ID, otherID)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := e.store.GetByID(ctx, models.KindExpense, created.ID); err != nil {
		t.Errorf("forbidden delete removed the record")
	}
	e.mustBalance(t, ownerID, 70)
}

func TestGetFoldsOwnershipIntoNotFound(t *testing.T) {
	e := newEnv(t, 100)
	ctx := context.Background()

	created, err := e.expenses.Create(ctx, testEntry(ownerID, 30))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := e.expenses.Get(ctx, created.ID, ownerID); err != nil {
		t.Fatalf("owner Get: %v", err)
	}

	_, err = e.expenses.Get(ctx, created.ID, otherID)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("foreign Get: expected ErrNotFound, got %v", err)
	}
	if errors.Is(err, ErrForbidden) {
		t.Fatal("foreign Get must not reveal the record exists")
	}
}

func TestListFiltersByOwner(t *testing.T) {
	e := newEnv(t, 1000)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := e.expenses.Create(ctx, testEntry(ownerID, 10)); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := e.expenses.Create(ctx, testEntry(otherID, 10)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	owned, err := e.expenses.List(ctx, ownerID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(owned) != 3 {
		t.Errorf("List returned %d entries, want 3", len(owned))
	}
	for _, entry := range owned {
		if entry.UserID != ownerID {
			t.Errorf("List leaked entry of user %d", entry.UserID)
		}
	}

	_, err = e.expenses.List(ctx, 111111118)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("List for unknown user: expected ErrNotFound, got %v", err)
	}
}

// Sequential invariant: after any sequence of non-overlapping operations,
// balance == initial + Σrevenues − Σexpenses over surviving records.
func TestSequentialInvariant(t *testing.T) {
	e := newEnv(t, 250)
	ctx := context.Background()

	r1, _ := e.revenues.Create(ctx, testEntry(ownerID, 120))
	e1, _ := e.expenses.Create(ctx, testEntry(ownerID, 45))
	_, _ = e.expenses.Create(ctx, testEntry(ownerID, 15))

	amount := dec(60)
	if _, err := e.expenses.Update(ctx, e1.ID, models.EntryPatch{Amount: &amount}, ownerID); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := e.revenues.Delete(ctx, r1.ID, ownerID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// 250 + 0 revenues − (60 + 15) expenses
	e.mustBalance(t, ownerID, 175)
}
