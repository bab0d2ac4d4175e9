package services

import (
	"context"
	"errors"
	"sort"
	"testing"

	"finledger/internal/core"
	"finledger/internal/crypto"
)

const (
	testOwnerID    = "3f1e8a4c-2d5b-4c7e-9a1f-6b8d0c2e4f6a"
	testCategoryID = "7b0d5c6e-3a3e-4bbf-9f3d-0a4f5b6c7d8e"
)

// fakeStore is an in-memory Store used to exercise the engine without SQLite.
type fakeStore struct {
	transactions map[string]core.Transaction
	categories   map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		transactions: make(map[string]core.Transaction),
		categories:   map[string]bool{testCategoryID: true},
	}
}

func (s *fakeStore) FindTransaction(_ context.Context, ownerID, id string) (core.Transaction, error) {
	t, ok := s.transactions[id]
	if !ok || t.OwnerID != ownerID {
		return core.Transaction{}, core.ErrNotFound
	}
	return t, nil
}

func (s *fakeStore) ListMonth(_ context.Context, ownerID string, year, month int) ([]core.Transaction, error) {
	from, to := core.MonthRange(year, month)
	var out []core.Transaction
	for _, t := range s.transactions {
		if t.OwnerID == ownerID && !t.Date.Before(from) && !to.Before(t.Date) {
			out = append(out, t)
		}
	}
	sortByDate(out)
	return out, nil
}

func (s *fakeStore) ListSeriesFrom(_ context.Context, ownerID, recurrenceID string, from core.Timestamp) ([]core.Transaction, error) {
	var out []core.Transaction
	for _, t := range s.transactions {
		if t.OwnerID == ownerID && t.RecurrenceID == recurrenceID && !t.Date.Before(from) {
			out = append(out, t)
		}
	}
	sortByDate(out)
	return out, nil
}

func (s *fakeStore) InsertTransaction(_ context.Context, t core.Transaction) error {
	s.transactions[t.ID] = t
	return nil
}

func (s *fakeStore) InsertTransactionBatch(_ context.Context, ts []core.Transaction) error {
	for _, t := range ts {
		s.transactions[t.ID] = t
	}
	return nil
}

func (s *fakeStore) UpdateTransaction(_ context.Context, t core.Transaction) error {
	if _, ok := s.transactions[t.ID]; !ok {
		return core.ErrNotFound
	}
	s.transactions[t.ID] = t
	return nil
}

func (s *fakeStore) DeleteTransaction(_ context.Context, ownerID, id string) error {
	t, ok := s.transactions[id]
	if !ok || t.OwnerID != ownerID {
		return core.ErrNotFound
	}
	delete(s.transactions, id)
	return nil
}

func (s *fakeStore) DeleteSeriesFrom(_ context.Context, ownerID, recurrenceID string, from core.Timestamp) (int, error) {
	count := 0
	for id, t := range s.transactions {
		if t.OwnerID == ownerID && t.RecurrenceID == recurrenceID && !t.Date.Before(from) {
			delete(s.transactions, id)
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) CategoryExists(_ context.Context, id string) (bool, error) {
	return s.categories[id], nil
}

func sortByDate(ts []core.Transaction) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Date < ts[j].Date })
}

func newTestEngine() (*Engine, *fakeStore) {
	store := newFakeStore()
	return NewEngine(store, crypto.New("test-secret"), nil), store
}

func standaloneDraft() core.Draft {
	return core.Draft{
		Date:        "2025-01-15T00:00:00.000Z",
		Description: "Rent",
		Amount:      1250.50,
		CategoryID:  testCategoryID,
	}
}

func monthlyDraft() core.Draft {
	d := standaloneDraft()
	d.IsRecurrent = true
	d.RecurrenceType = core.Monthly
	d.RecurrenceEndDate = "2025-04-15T00:00:00.000Z"
	return d
}

func TestCreateStandalone(t *testing.T) {
	engine, store := newTestEngine()

	views, err := engine.Create(context.Background(), testOwnerID, standaloneDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 record, got %d", len(views))
	}

	v := views[0]
	if v.Amount != 1250.50 {
		t.Fatalf("returned amount must be decrypted, got %v", v.Amount)
	}
	if v.IsRecurrent || v.RecurrenceID != "" {
		t.Fatalf("standalone record must carry no recurrence state: %+v", v)
	}

	stored := store.transactions[v.ID]
	if stored.Amount == "1250.5" {
		t.Fatalf("stored amount must be encrypted, got %q", stored.Amount)
	}
	if stored.CreatedAt.IsZero() || stored.UpdatedAt.IsZero() {
		t.Fatalf("create must stamp timestamps")
	}
}

func TestCreateRecurrentExpandsSeries(t *testing.T) {
	engine, store := newTestEngine()

	views, err := engine.Create(context.Background(), testOwnerID, monthlyDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(views) != 4 {
		t.Fatalf("expected 4 occurrences Jan..Apr, got %d", len(views))
	}

	wantDates := []core.Timestamp{
		"2025-01-15T00:00:00.000Z",
		"2025-02-15T00:00:00.000Z",
		"2025-03-15T00:00:00.000Z",
		"2025-04-15T00:00:00.000Z",
	}
	for i, v := range views {
		if v.Date != wantDates[i] {
			t.Fatalf("occurrence %d: got date %s, want %s", i, v.Date, wantDates[i])
		}
		if v.RecurrenceID != views[0].RecurrenceID {
			t.Fatalf("occurrence %d must share the series recurrence id", i)
		}
		if v.IsOriginalRecurrence != (i == 0) {
			t.Fatalf("only occurrence 0 may be flagged original, got flag at %d", i)
		}
		if v.Amount != 1250.50 {
			t.Fatalf("occurrence %d: amount %v", i, v.Amount)
		}
	}

	if len(store.transactions) != 4 {
		t.Fatalf("expected 4 stored records, got %d", len(store.transactions))
	}
}

func TestCreateUnknownCategory(t *testing.T) {
	engine, _ := newTestEngine()

	draft := standaloneDraft()
	draft.CategoryID = "9e8d7c6b-5a4f-4e3d-8c2b-1a0f9e8d7c6b"
	_, err := engine.Create(context.Background(), testOwnerID, draft)
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown category, got %v", err)
	}
}

func TestCreateInvalidDraft(t *testing.T) {
	engine, _ := newTestEngine()

	draft := standaloneDraft()
	draft.Date = "2025-01-15"
	if _, err := engine.Create(context.Background(), testOwnerID, draft); !errors.Is(err, core.ErrInvalidDateFormat) {
		t.Fatalf("expected ErrInvalidDateFormat, got %v", err)
	}

	if _, err := engine.Create(context.Background(), "not-a-uuid", standaloneDraft()); !errors.Is(err, core.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID for malformed owner, got %v", err)
	}
}

func TestUpdateSingleRecord(t *testing.T) {
	engine, store := newTestEngine()
	created, err := engine.Create(context.Background(), testOwnerID, standaloneDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	newAmount := 999.99
	newDesc := "Rent (increased)"
	views, err := engine.Update(context.Background(), testOwnerID, created[0].ID, core.Patch{
		Amount:      &newAmount,
		Description: &newDesc,
	}, false)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 updated record, got %d", len(views))
	}
	if views[0].Amount != newAmount || views[0].Description != newDesc {
		t.Fatalf("patch not applied: %+v", views[0])
	}

	stored := store.transactions[created[0].ID]
	if stored.Amount == "999.99" {
		t.Fatalf("updated amount must be stored encrypted")
	}
}

func TestUpdatePropagateFromMiddle(t *testing.T) {
	engine, store := newTestEngine()
	created, err := engine.Create(context.Background(), testOwnerID, monthlyDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Patch the February record with propagation: Feb, Mar and Apr change,
	// January stays untouched.
	newDesc := "Rent v2"
	views, err := engine.Update(context.Background(), testOwnerID, created[1].ID, core.Patch{
		Description: &newDesc,
	}, true)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("expected 3 affected records, got %d", len(views))
	}
	for _, v := range views {
		if v.Description != newDesc {
			t.Fatalf("record %s did not receive the patch", v.ID)
		}
	}

	if got := store.transactions[created[0].ID].Description; got != "Rent" {
		t.Fatalf("earlier series member must not change, got %q", got)
	}
}

func TestUpdatePropagateDateOnlyMovesTarget(t *testing.T) {
	engine, store := newTestEngine()
	created, err := engine.Create(context.Background(), testOwnerID, monthlyDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	newDate := "2025-02-20T00:00:00.000Z"
	newDesc := "Rent v2"
	views, err := engine.Update(context.Background(), testOwnerID, created[1].ID, core.Patch{
		Date:        &newDate,
		Description: &newDesc,
	}, true)
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if views[0].Date != core.Timestamp(newDate) {
		t.Fatalf("target date not moved: %s", views[0].Date)
	}
	if got := store.transactions[created[2].ID].Date; got != "2025-03-15T00:00:00.000Z" {
		t.Fatalf("later member's date must not move, got %s", got)
	}
	if got := store.transactions[created[2].ID].Description; got != newDesc {
		t.Fatalf("later member must still receive non-date fields, got %q", got)
	}
}

func TestUpdateNotFound(t *testing.T) {
	engine, _ := newTestEngine()

	desc := "x"
	_, err := engine.Update(context.Background(), testOwnerID,
		"9e8d7c6b-5a4f-4e3d-8c2b-1a0f9e8d7c6b", core.Patch{Description: &desc}, false)
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteSingle(t *testing.T) {
	engine, store := newTestEngine()
	created, err := engine.Create(context.Background(), testOwnerID, monthlyDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	count, err := engine.Delete(context.Background(), testOwnerID, created[1].ID, false)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}
	if len(store.transactions) != 3 {
		t.Fatalf("expected 3 remaining records, got %d", len(store.transactions))
	}
}

func TestDeleteSeriesSuffix(t *testing.T) {
	engine, store := newTestEngine()
	created, err := engine.Create(context.Background(), testOwnerID, monthlyDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Deleting from the February record removes Feb, Mar, Apr.
	count, err := engine.Delete(context.Background(), testOwnerID, created[1].ID, true)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 deleted, got %d", count)
	}
	if _, ok := store.transactions[created[0].ID]; !ok {
		t.Fatalf("earlier series member must survive")
	}
	if len(store.transactions) != 1 {
		t.Fatalf("expected 1 remaining record, got %d", len(store.transactions))
	}
}

func TestDeleteAllOnStandaloneDeletesOne(t *testing.T) {
	engine, _ := newTestEngine()
	created, err := engine.Create(context.Background(), testOwnerID, standaloneDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	count, err := engine.Delete(context.Background(), testOwnerID, created[0].ID, true)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1 for standalone, got %d", count)
	}
}

func TestOwnerScoping(t *testing.T) {
	engine, _ := newTestEngine()
	created, err := engine.Create(context.Background(), testOwnerID, standaloneDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	otherOwner := "1a2b3c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d"
	if _, err := engine.Get(context.Background(), otherOwner, created[0].ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("foreign owner must not see the record, got %v", err)
	}
	if _, err := engine.Delete(context.Background(), otherOwner, created[0].ID, false); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("foreign owner must not delete the record, got %v", err)
	}
}

func TestListMonth(t *testing.T) {
	engine, _ := newTestEngine()
	if _, err := engine.Create(context.Background(), testOwnerID, monthlyDraft()); err != nil {
		t.Fatalf("create: %v", err)
	}

	views, err := engine.ListMonth(context.Background(), testOwnerID, 2025, 2)
	if err != nil {
		t.Fatalf("list month: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 record in February, got %d", len(views))
	}
	if views[0].Date != "2025-02-15T00:00:00.000Z" {
		t.Fatalf("unexpected record: %+v", views[0])
	}
	if views[0].Amount != 1250.50 {
		t.Fatalf("listing must decrypt amounts, got %v", views[0].Amount)
	}

	if _, err := engine.ListMonth(context.Background(), testOwnerID, 2025, 13); err == nil {
		t.Fatalf("month 13 must be rejected")
	}
}
