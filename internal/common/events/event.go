package events

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event represents a domain event envelope
type Event struct {
	ID            string          `json:"event_id"`
	Type          string          `json:"type"`
	Version       int             `json:"version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event
func NewEvent(eventType, aggregateType, aggregateID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            ulid.Make().String(),
		Type:          eventType,
		Version:       1,
		OccurredAt:    time.Now().UTC(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Data:          dataBytes,
	}, nil
}

// WithCorrelation adds a correlation ID
func (e *Event) WithCorrelation(correlationID string) *Event {
	e.CorrelationID = correlationID
	return e
}

// DecodeData decodes the event data into a struct
func (e *Event) DecodeData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Event types published by the core. The notification subsystem consumes
// transaction.* events to send push/SMS alerts.
const (
	EventWalletCredited = "wallet.credited"
	EventWalletDebited  = "wallet.debited"
	EventWalletFunded   = "wallet.funded"

	EventTransactionSuccessful = "transaction.successful"
	EventTransactionFailed     = "transaction.failed"
	EventTransactionRefunded   = "transaction.refunded"
)

// WalletMovementData is the payload of wallet.credited / wallet.debited.
type WalletMovementData struct {
	UserID      string `json:"user_id"`
	WalletID    string `json:"wallet_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	Balance     int64  `json:"balance_minor"`
	Description string `json:"description,omitempty"`
}

// TransactionNotificationData is the payload of transaction.* events.
type TransactionNotificationData struct {
	UserID          string `json:"user_id"`
	TransactionID   string `json:"transaction_id"`
	Type            string `json:"type"`
	Status          string `json:"status"`
	AmountMinor     int64  `json:"amount_minor"`
	Currency        string `json:"currency"`
	ReferenceNumber string `json:"reference_number"`
	Provider        string `json:"provider,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
}
