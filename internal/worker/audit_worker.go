package worker

import (
	"context"
	"fmt"
	"log/slog"

	"finledger/internal/amqp"
)

// AuditStore is the slice of storage the worker writes to.
type AuditStore interface {
	AppendAuditEvent(ctx context.Context, msg *amqp.TransactionEventMessage) error
}

// AuditWorker persists transaction events into the audit trail.
type AuditWorker struct {
	store AuditStore
}

func NewAuditWorker(store AuditStore) *AuditWorker {
	return &AuditWorker{store: store}
}

// HandleEvent processes a single transaction event from AMQP.
func (w *AuditWorker) HandleEvent(ctx context.Context, msg *amqp.TransactionEventMessage) error {
	slog.InfoContext(ctx, "Processing transaction event",
		"type", msg.Type,
		"owner_id", msg.OwnerID,
		"transaction_id", msg.TransactionID,
		"record_count", msg.RecordCount)

	switch msg.Type {
	case amqp.EventTransactionCreated, amqp.EventTransactionUpdated, amqp.EventTransactionDeleted:
	default:
		// Drop unknown event types instead of requeueing them forever.
		slog.WarnContext(ctx, "Skipping unknown event type", "type", msg.Type)
		return nil
	}

	if err := w.store.AppendAuditEvent(ctx, msg); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}

	return nil
}
