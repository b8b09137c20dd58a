package adapter

import (
	"context"

	"vendor-payments/internal/domain/model"
)

// CreateIntentParams is the request body for a new gateway intent.
type CreateIntentParams struct {
	Purpose          model.Purpose
	AmountMinorUnits int64
	Description      string
	Metadata         map[string]interface{}
}

// GatewayClient is the hex port for the external payment gateway.
//
// CreateIntent fails with domain.ErrGatewayUnavailable (network/5xx) or
// domain.ErrInvalidRequest (4xx); nothing is persisted on failure.
// FetchStatus is an idempotent read and safe to call repeatedly; a network
// failure is a transient error, never a terminal status.
// FetchCodeImage is used only when CreateIntent omitted the code image URL.
type GatewayClient interface {
	Name() string
	CreateIntent(ctx context.Context, params CreateIntentParams) (*model.PaymentIntent, error)
	FetchStatus(ctx context.Context, intentID string) (model.IntentStatus, error)
	FetchCodeImage(ctx context.Context, intentID string) (string, error)
}
