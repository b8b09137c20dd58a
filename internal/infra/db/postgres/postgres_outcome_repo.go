package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"vendor-payments/internal/domain"
	"vendor-payments/internal/domain/model"
	"vendor-payments/internal/domain/ports/repository"
)

var _ repository.OutcomeRepository = (*outcomeRepo)(nil)

// outcomeRepo appends terminal outcomes to payment_outcomes. The unique index
// on intent_id is a durable finalize-once witness: a second record for the
// same intent is dropped, never duplicated.
type outcomeRepo struct{ pool *pgxpool.Pool }

func NewOutcomeRepo(pool *pgxpool.Pool) *outcomeRepo {
	return &outcomeRepo{pool: pool}
}

const outcomeSchema = `
CREATE TABLE IF NOT EXISTS payment_outcomes (
  id                 TEXT PRIMARY KEY,
  payment_id         TEXT NOT NULL,
  intent_id          TEXT NOT NULL UNIQUE,
  purpose            TEXT NOT NULL,
  outcome            TEXT NOT NULL,
  reason             TEXT NOT NULL DEFAULT '',
  amount_minor_units BIGINT NOT NULL,
  finalize_warning   TEXT NOT NULL DEFAULT '',
  occurred_at        TIMESTAMPTZ NOT NULL
);`

// EnsureSchema creates the audit table if missing.
func (r *outcomeRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, outcomeSchema)
	return err
}

func (r *outcomeRepo) Record(ctx context.Context, ev *model.OutcomeEvent) error {
	const q = `
INSERT INTO payment_outcomes (
  id, payment_id, intent_id, purpose, outcome, reason, amount_minor_units, finalize_warning, occurred_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`

	id := ulid.Make().String()
	_, err := r.pool.Exec(ctx, q,
		id, ev.PaymentID, ev.IntentID, string(ev.Purpose), string(ev.Kind),
		ev.Reason, ev.AmountMinorUnits, ev.FinalizeWarning, ev.OccurredAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Outcome for this intent already recorded.
			return nil
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *outcomeRepo) ListRecent(ctx context.Context, limit int) ([]*model.OutcomeEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const q = `
SELECT payment_id, intent_id, purpose, outcome, reason, amount_minor_units, finalize_warning, occurred_at
FROM payment_outcomes ORDER BY id DESC LIMIT $1;`

	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.OutcomeEvent
	for rows.Next() {
		ev := &model.OutcomeEvent{}
		var purpose, kind string
		if err := rows.Scan(&ev.PaymentID, &ev.IntentID, &purpose, &kind, &ev.Reason, &ev.AmountMinorUnits, &ev.FinalizeWarning, &ev.OccurredAt); err != nil {
			return nil, domain.ErrOperationFailed
		}
		ev.Purpose = model.Purpose(purpose)
		ev.Kind = model.OutcomeKind(kind)
		out = append(out, ev)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}
