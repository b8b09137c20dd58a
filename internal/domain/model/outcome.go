package model

import "time"

// OutcomeKind is a terminal resolution of a payment intent. These are the only
// states that cross the coordinator boundary towards the presentation layer.
type OutcomeKind string

const (
	OutcomeSucceeded OutcomeKind = "succeeded"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeExpired   OutcomeKind = "expired"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// OutcomeEvent is emitted by the coordinator once per resolved intent.
type OutcomeEvent struct {
	PaymentID        string      `json:"paymentId"`
	IntentID         string      `json:"intentId"`
	Purpose          Purpose     `json:"purpose"`
	Kind             OutcomeKind `json:"kind"`
	Reason           string      `json:"reason,omitempty"`
	AmountMinorUnits int64       `json:"amountMinorUnits"`
	// FinalizeWarning is set when the payment settled gateway-side but the
	// local finalize call failed. The payment is still a success; the warning
	// tells the caller to re-check balance/plan rather than retry the protocol.
	FinalizeWarning string    `json:"finalizeWarning,omitempty"`
	OccurredAt      time.Time `json:"occurredAt"`
}
