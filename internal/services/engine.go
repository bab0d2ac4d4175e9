package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"finledger/internal/amqp"
	"finledger/internal/core"
	"finledger/internal/crypto"
)

// Store is the persistence port the engine writes through. It is implemented
// by storage.SQLiteRepository and by in-memory fakes in tests.
type Store interface {
	FindTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error)
	ListMonth(ctx context.Context, ownerID string, year, month int) ([]core.Transaction, error)
	ListSeriesFrom(ctx context.Context, ownerID, recurrenceID string, from core.Timestamp) ([]core.Transaction, error)
	InsertTransaction(ctx context.Context, t core.Transaction) error
	InsertTransactionBatch(ctx context.Context, ts []core.Transaction) error
	UpdateTransaction(ctx context.Context, t core.Transaction) error
	DeleteTransaction(ctx context.Context, ownerID, id string) error
	DeleteSeriesFrom(ctx context.Context, ownerID, recurrenceID string, from core.Timestamp) (int, error)
	CategoryExists(ctx context.Context, id string) (bool, error)
}

// EventPublisher pushes mutation events onto the audit stream. A nil publisher
// disables eventing.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, msg *amqp.TransactionEventMessage) error
}

// TransactionView is the caller-facing shape of a transaction: the amount is
// decrypted. Views never go back into storage.
type TransactionView struct {
	ID                   string              `json:"id"`
	Date                 core.Timestamp      `json:"date"`
	Description          string              `json:"description"`
	Amount               float64             `json:"amount"`
	CategoryID           string              `json:"categoryId"`
	IsRecurrent          bool                `json:"isRecurrent"`
	RecurrenceType       core.RecurrenceType `json:"recurrenceType,omitempty"`
	RecurrenceEndDate    core.Timestamp      `json:"recurrenceEndDate,omitempty"`
	RecurrenceID         string              `json:"recurrenceId,omitempty"`
	IsOriginalRecurrence bool                `json:"isOriginalRecurrence"`
	CreatedAt            core.Timestamp      `json:"createdAt"`
	UpdatedAt            core.Timestamp      `json:"updatedAt"`
}

// Engine implements transaction create/update/delete with recurrence series
// semantics. Amounts are encrypted before they reach the store and decrypted
// on the way out.
type Engine struct {
	store  Store
	codec  *crypto.Codec
	events EventPublisher
}

func NewEngine(store Store, codec *crypto.Codec, events EventPublisher) *Engine {
	return &Engine{store: store, codec: codec, events: events}
}

// Create validates and stores a transaction. A non-recurrent draft produces a
// single record; a recurrent draft expands into one record per occurrence
// between the draft date and the recurrence end date, written atomically and
// sharing a fresh recurrence ID. Both paths return the full decrypted list of
// created records.
func (e *Engine) Create(ctx context.Context, ownerID string, draft core.Draft) ([]TransactionView, error) {
	if !core.ValidID(ownerID) {
		return nil, core.ErrInvalidID
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	exists, err := e.store.CategoryExists(ctx, draft.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("resolve category: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("category %s: %w", draft.CategoryID, core.ErrNotFound)
	}

	// Already validated by draft.Validate.
	date, _ := core.ParseTimestamp(draft.Date)

	cipherAmount, err := e.codec.EncryptNumber(draft.Amount)
	if err != nil {
		return nil, fmt.Errorf("encrypt amount: %w", err)
	}

	now := core.Now()

	if !draft.IsRecurrent {
		t := core.Transaction{
			ID:          uuid.NewString(),
			OwnerID:     ownerID,
			Date:        date,
			Description: draft.Description,
			Amount:      cipherAmount,
			CategoryID:  draft.CategoryID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.store.InsertTransaction(ctx, t); err != nil {
			return nil, err
		}

		e.publish(ctx, amqp.NewTransactionEvent(amqp.EventTransactionCreated, ownerID, t.ID, "", 1))
		return e.toViews([]core.Transaction{t})
	}

	end, _ := core.ParseTimestamp(draft.RecurrenceEndDate)
	dates, err := core.GenerateOccurrences(date, end, draft.RecurrenceType)
	if err != nil {
		return nil, err
	}

	recurrenceID := uuid.NewString()
	batch := make([]core.Transaction, len(dates))
	for i, d := range dates {
		batch[i] = core.Transaction{
			ID:                   uuid.NewString(),
			OwnerID:              ownerID,
			Date:                 d,
			Description:          draft.Description,
			Amount:               cipherAmount,
			CategoryID:           draft.CategoryID,
			IsRecurrent:          true,
			RecurrenceType:       draft.RecurrenceType,
			RecurrenceEndDate:    end,
			RecurrenceID:         recurrenceID,
			IsOriginalRecurrence: i == 0,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
	}

	if err := e.store.InsertTransactionBatch(ctx, batch); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Recurrence series created",
		"owner_id", ownerID,
		"recurrence_id", recurrenceID,
		"record_count", len(batch))

	e.publish(ctx, amqp.NewTransactionEvent(amqp.EventTransactionCreated, ownerID, batch[0].ID, recurrenceID, len(batch)))
	return e.toViews(batch)
}

// Update applies a validated patch to one transaction, or, when propagate is
// set and the target belongs to a series, to the target and every later member
// of its series. A patched date only ever moves the target itself; the other
// patched fields reach the whole affected set. Returns the updated records.
func (e *Engine) Update(ctx context.Context, ownerID, id string, patch core.Patch, propagate bool) ([]TransactionView, error) {
	if !core.ValidID(ownerID) || !core.ValidID(id) {
		return nil, core.ErrInvalidID
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	target, err := e.store.FindTransaction(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if patch.CategoryID != nil {
		exists, err := e.store.CategoryExists(ctx, *patch.CategoryID)
		if err != nil {
			return nil, fmt.Errorf("resolve category: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("category %s: %w", *patch.CategoryID, core.ErrNotFound)
		}
	}

	affected := []core.Transaction{target}
	if propagate && target.RecurrenceID != "" {
		affected, err = e.store.ListSeriesFrom(ctx, ownerID, target.RecurrenceID, target.Date)
		if err != nil {
			return nil, err
		}
	}

	var cipherAmount string
	if patch.Amount != nil {
		if cipherAmount, err = e.codec.EncryptNumber(*patch.Amount); err != nil {
			return nil, fmt.Errorf("encrypt amount: %w", err)
		}
	}

	now := core.Now()
	for i := range affected {
		t := &affected[i]
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.Amount != nil {
			t.Amount = cipherAmount
		}
		if patch.CategoryID != nil {
			t.CategoryID = *patch.CategoryID
		}
		// A date change only moves the earliest record of the affected set;
		// shifting every later occurrence by it would desynchronize the series
		// from its generation anchor.
		if patch.Date != nil && i == 0 {
			d, _ := core.ParseTimestamp(*patch.Date)
			t.Date = d
		}
		t.UpdatedAt = now

		if err := e.store.UpdateTransaction(ctx, *t); err != nil {
			return nil, err
		}
	}

	e.publish(ctx, amqp.NewTransactionEvent(amqp.EventTransactionUpdated, ownerID, target.ID, target.RecurrenceID, len(affected)))
	return e.toViews(affected)
}

// Delete removes one transaction, or, when deleteAll is set and the target
// belongs to a series, the target and every later member of its series.
// Returns how many records were removed.
func (e *Engine) Delete(ctx context.Context, ownerID, id string, deleteAll bool) (int, error) {
	if !core.ValidID(ownerID) || !core.ValidID(id) {
		return 0, core.ErrInvalidID
	}

	target, err := e.store.FindTransaction(ctx, ownerID, id)
	if err != nil {
		return 0, err
	}

	count := 1
	if deleteAll && target.RecurrenceID != "" {
		count, err = e.store.DeleteSeriesFrom(ctx, ownerID, target.RecurrenceID, target.Date)
		if err != nil {
			return 0, err
		}
	} else {
		if err := e.store.DeleteTransaction(ctx, ownerID, id); err != nil {
			return 0, err
		}
	}

	e.publish(ctx, amqp.NewTransactionEvent(amqp.EventTransactionDeleted, ownerID, target.ID, target.RecurrenceID, count))
	return count, nil
}

// Get returns one decrypted transaction scoped to its owner.
func (e *Engine) Get(ctx context.Context, ownerID, id string) (TransactionView, error) {
	if !core.ValidID(ownerID) || !core.ValidID(id) {
		return TransactionView{}, core.ErrInvalidID
	}

	t, err := e.store.FindTransaction(ctx, ownerID, id)
	if err != nil {
		return TransactionView{}, err
	}
	return e.toView(t)
}

// ListMonth returns the owner's transactions for a month, decrypted, ordered
// by date ascending.
func (e *Engine) ListMonth(ctx context.Context, ownerID string, year, month int) ([]TransactionView, error) {
	if !core.ValidID(ownerID) {
		return nil, core.ErrInvalidID
	}
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("month %d: %w", month, core.ErrInvalidDateFormat)
	}

	ts, err := e.store.ListMonth(ctx, ownerID, year, month)
	if err != nil {
		return nil, err
	}
	return e.toViews(ts)
}

func (e *Engine) toView(t core.Transaction) (TransactionView, error) {
	amount, err := e.codec.DecryptNumber(t.Amount)
	if err != nil {
		return TransactionView{}, fmt.Errorf("decrypt amount of %s: %w", t.ID, err)
	}
	return TransactionView{
		ID:                   t.ID,
		Date:                 t.Date,
		Description:          t.Description,
		Amount:               amount,
		CategoryID:           t.CategoryID,
		IsRecurrent:          t.IsRecurrent,
		RecurrenceType:       t.RecurrenceType,
		RecurrenceEndDate:    t.RecurrenceEndDate,
		RecurrenceID:         t.RecurrenceID,
		IsOriginalRecurrence: t.IsOriginalRecurrence,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}, nil
}

func (e *Engine) toViews(ts []core.Transaction) ([]TransactionView, error) {
	views := make([]TransactionView, len(ts))
	for i, t := range ts {
		v, err := e.toView(t)
		if err != nil {
			return nil, err
		}
		views[i] = v
	}
	return views, nil
}

// publish sends an event best-effort. A publish failure never fails the
// mutation that triggered it.
func (e *Engine) publish(ctx context.Context, msg *amqp.TransactionEventMessage) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishTransactionEvent(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			"type", msg.Type,
			"transaction_id", msg.TransactionID,
			"error", err)
	}
}
