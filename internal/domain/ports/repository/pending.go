package repository

import (
	"context"

	"vendor-payments/internal/domain/model"
)

// PendingIntentStore is a single-slot, durable record of "the payment
// currently awaited", keyed by purpose. The two purposes use independent
// slots; they never share a key.
//
// Only the coordinator writes; everyone else (UI projections, restore) reads.
// Load returns domain.ErrNotFound when the slot is empty. Clear on an empty
// slot is a no-op.
type PendingIntentStore interface {
	Save(ctx context.Context, purpose model.Purpose, rec *model.PendingRecord) error
	Load(ctx context.Context, purpose model.Purpose) (*model.PendingRecord, error)
	Clear(ctx context.Context, purpose model.Purpose) error
}
