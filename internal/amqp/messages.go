package amqp

import (
	"encoding/json"
	"time"
)

// Event types carried on the transaction event stream.
const (
	EventTransactionCreated = "transaction.created"
	EventTransactionUpdated = "transaction.updated"
	EventTransactionDeleted = "transaction.deleted"
)

// TransactionEventMessage is a lightweight notification emitted after a
// successful ledger mutation. It carries identifiers and a record count, not
// transaction bodies, so amounts never transit the broker.
type TransactionEventMessage struct {
	Type          string    `json:"type"`
	OwnerID       string    `json:"ownerId"`
	TransactionID string    `json:"transactionId"`
	RecurrenceID  string    `json:"recurrenceId,omitempty"`
	RecordCount   int       `json:"recordCount"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewTransactionEvent builds an event message stamped with the current time.
func NewTransactionEvent(eventType, ownerID, transactionID, recurrenceID string, recordCount int) *TransactionEventMessage {
	return &TransactionEventMessage{
		Type:          eventType,
		OwnerID:       ownerID,
		TransactionID: transactionID,
		RecurrenceID:  recurrenceID,
		RecordCount:   recordCount,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *TransactionEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionEventFromJSON parses a message from JSON bytes.
func TransactionEventFromJSON(data []byte) (*TransactionEventMessage, error) {
	var msg TransactionEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
