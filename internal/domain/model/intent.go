package model

import "time"

// Purpose is the business reason for a payment intent. Each purpose owns an
// independent pending-record slot so the cash-in and plan-change flows can
// never race each other.
type Purpose string

const (
	PurposeWalletCashIn       Purpose = "wallet_cashin"
	PurposeSubscriptionChange Purpose = "subscription_change"
)

// AllPurposes lists every slot RestoreOnLoad inspects at startup.
var AllPurposes = []Purpose{PurposeWalletCashIn, PurposeSubscriptionChange}

func (p Purpose) Valid() bool {
	return p == PurposeWalletCashIn || p == PurposeSubscriptionChange
}

// IntentStatus is the gateway-reported state of an intent.
type IntentStatus string

const (
	IntentStatusPending   IntentStatus = "pending"
	IntentStatusSucceeded IntentStatus = "succeeded"
	IntentStatusFailed    IntentStatus = "failed"
	IntentStatusExpired   IntentStatus = "expired"
)

// Terminal reports whether polling stops at this status.
func (s IntentStatus) Terminal() bool {
	switch s {
	case IntentStatusSucceeded, IntentStatusFailed, IntentStatusExpired:
		return true
	}
	return false
}

// PaymentIntent records one in-flight payment request on the gateway.
type PaymentIntent struct {
	PaymentID string  `json:"paymentId"` // local record identifier
	IntentID  string  `json:"intentId"`  // gateway correlation id used for polling
	Purpose   Purpose `json:"purpose"`
	// Amounts are integer minor units, never floats.
	AmountMinorUnits int64 `json:"amountMinorUnits"`
	// CodeImageURL may be absent at creation time and lazily backfilled.
	CodeImageURL *string                `json:"codeImageUrl"`
	ExpiresAt    time.Time              `json:"expiresAt"`
	Metadata     map[string]interface{} `json:"metadata"` // opaque, passed through to the finalizer
}

// Expired reports whether the intent is past its nominal expiry.
func (i *PaymentIntent) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// RecordStatus is the lifecycle state the record is persisted with. A record
// only ever exists while polling; resolution clears it instead of updating it.
type RecordStatus string

const RecordStatusPolling RecordStatus = "polling"

// PendingRecord is the durable projection of a PaymentIntent plus protocol
// bookkeeping. At most one exists per purpose at any time.
type PendingRecord struct {
	PaymentIntent
	Status        RecordStatus `json:"status"`
	GraceWindowMs int64        `json:"graceWindowMs"`
}

func (r *PendingRecord) GraceWindow() time.Duration {
	return time.Duration(r.GraceWindowMs) * time.Millisecond
}

// StalePast reports whether the record is beyond any reasonable recovery
// window: now > expiresAt + grace.
func (r *PendingRecord) StalePast(now time.Time) bool {
	return now.After(r.ExpiresAt.Add(r.GraceWindow()))
}
