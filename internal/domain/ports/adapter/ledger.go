package adapter

import "context"

// Finalizer is the local acknowledgment of a succeeded intent: credit the
// wallet or activate the plan. The coordinator invokes it at most once per
// intentID; the server behind it must still be idempotent, since a crash
// between clearing the pending record and the call completing leaves the
// outcome ambiguous on our side.
type Finalizer interface {
	Name() string
	Finalize(ctx context.Context, intentID string, amountMinorUnits int64, metadata map[string]interface{}) error
}
