package repository

import (
	"context"

	"vendor-payments/internal/domain/model"
)

// OutcomeRepository is the append-only audit trail of terminal outcomes.
// The reconciliation protocol never reads it to make decisions; the pending
// record stays the single source of truth.
type OutcomeRepository interface {
	// Record appends one terminal outcome. Recording the same intentID twice
	// must not error (the second write is dropped).
	Record(ctx context.Context, ev *model.OutcomeEvent) error
	ListRecent(ctx context.Context, limit int) ([]*model.OutcomeEvent, error)
}
