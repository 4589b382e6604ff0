package ledger

import (
	"context"
	"errors"
	"time"
)

// Channel identifies which flow produced a record.
type Channel string

const (
	ChannelAPI        Channel = "api"
	ChannelHPP        Channel = "hpp"
	ChannelRefund     Channel = "refund"
	ChannelStoredCard Channel = "stored-card"
)

// MaxRecords is the rolling-window size of the ledger. The store keeps the
// newest MaxRecords entries and silently drops the rest.
const MaxRecords = 1000

// Record is the persisted outcome of one operation, success or failure.
// Records are immutable once appended. JSON field names match the legacy
// data files so existing transaction history loads unchanged.
//
// Amount is in major units (the legacy file format stores "12.34", not
// 1234); minor units exist only on the wire.
type Record struct {
	ID              string    `json:"id"`
	OrderID         string    `json:"orderId"`
	OriginalOrderID string    `json:"originalOrderId,omitempty"`
	Timestamp       time.Time `json:"timestamp"` // capture time, not the gateway's
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
	Success         bool      `json:"success"`
	ResultCode      string    `json:"resultCode"`
	Message         string    `json:"message"`
	AuthCode        string    `json:"authCode,omitempty"`
	PasRef          string    `json:"pasRef,omitempty"`
	Channel         Channel   `json:"type"`
	SignatureValid  *bool     `json:"signatureValid,omitempty"` // HPP responses only
	RawResponse     string    `json:"rawResponse,omitempty"`
	UserID          string    `json:"userId,omitempty"`
}

var (
	ErrNotFound        = errors.New("ledger: transaction not found")
	ErrNotRefundable   = errors.New("ledger: original transaction was not successful")
	ErrAlreadyRefunded = errors.New("ledger: transaction already refunded")
	ErrRefundInFlight  = errors.New("ledger: refund already in progress")
)

// Store is the ledger persistence interface. The orchestrator is the only
// writer; anything may read. BeginRefund and Append together implement the
// refund-once guarantee: implementations must make the eligibility check
// and the reservation a single atomic step.
type Store interface {
	// Append adds a record at the head of the ledger and trims the window
	// to MaxRecords. Appending a refund record (success or failure)
	// releases the BeginRefund reservation for its original order.
	Append(ctx context.Context, rec Record) error

	// FindByOrderID returns the newest non-refund record for the order.
	FindByOrderID(ctx context.Context, orderID string) (Record, error)

	// BeginRefund atomically checks that orderID refers to a successful,
	// not-yet-refunded transaction and reserves it so a concurrent refund
	// of the same order is rejected while this one is in flight. The
	// reservation is cleared by appending a refund record or by
	// AbortRefund.
	BeginRefund(ctx context.Context, orderID string) (Record, error)

	// AbortRefund releases a reservation without appending a record.
	AbortRefund(ctx context.Context, orderID string)

	// ListRecent returns up to n records, newest first.
	ListRecent(ctx context.Context, n int) ([]Record, error)

	// ListByChannel returns up to n records for one channel, newest first.
	ListByChannel(ctx context.Context, ch Channel, n int) ([]Record, error)

	// ListByUser returns up to n records tagged with userID, newest first.
	ListByUser(ctx context.Context, userID string, n int) ([]Record, error)

	// ClearChannel drops all records for one channel.
	ClearChannel(ctx context.Context, ch Channel) error
}
