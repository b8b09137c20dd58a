// File: internal/usecase/reconcile_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"vendor-payments/internal/domain"
	"vendor-payments/internal/domain/model"
	"vendor-payments/internal/domain/ports/adapter"
	"vendor-payments/internal/domain/ports/repository"
	"vendor-payments/internal/infra/logging"
	"vendor-payments/internal/infra/metrics"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

// StatusPoller is the cancellable repeating status-check task the coordinator
// owns. The returned cancel func must be idempotent.
type StatusPoller interface {
	Start(intentID string, expiresAt time.Time, onUpdate func(model.IntentStatus)) (cancel func())
}

// BeginRequest carries the caller's parameters for a new intent.
type BeginRequest struct {
	AmountMinorUnits int64
	Description      string
	Metadata         map[string]interface{}
}

// ReconcileUseCase orchestrates intent creation, durable pending state,
// status polling, exactly-once finalization and cleanup.
type ReconcileUseCase interface {
	// Begin creates a gateway intent for purpose, persists the pending record
	// and starts polling. An existing pending intent for the same purpose is
	// replaced; its poller is cancelled first.
	Begin(ctx context.Context, purpose model.Purpose, req BeginRequest) (*model.PendingRecord, error)
	// Cancel stops polling and clears the pending record. The gateway-side
	// intent is not voided; it is left to expire on its own.
	Cancel(ctx context.Context, purpose model.Purpose) error
	// Pending returns a read-only copy of the awaited record, if any.
	Pending(ctx context.Context, purpose model.Purpose) (*model.PendingRecord, error)
	// RestoreOnLoad runs once at startup: per purpose it either resumes a
	// poller for a live record or silently discards a stale one.
	RestoreOnLoad(ctx context.Context) error
	// Subscribe returns a channel of terminal outcome events plus an
	// unsubscribe func. Slow subscribers lose events rather than block the
	// coordinator.
	Subscribe(buffer int) (<-chan model.OutcomeEvent, func())
	// Close cancels every active poller. Pending records are kept so the next
	// start resumes them via RestoreOnLoad.
	Close()
}

type activePoll struct {
	intentID string
	cancel   func()
}

type reconcileUC struct {
	store      repository.PendingIntentStore
	outcomes   repository.OutcomeRepository
	gw         adapter.GatewayClient
	poller     StatusPoller
	finalizers map[model.Purpose]adapter.Finalizer
	grace      time.Duration
	log        *zerolog.Logger
	now        func() time.Time

	mu        sync.Mutex
	active    map[model.Purpose]*activePoll
	finalized map[string]struct{} // intent ids finalized by this process
	subs      map[int]chan model.OutcomeEvent
	nextSub   int
}

func NewReconcileUseCase(
	store repository.PendingIntentStore,
	outcomes repository.OutcomeRepository,
	gw adapter.GatewayClient,
	poller StatusPoller,
	wallet adapter.Finalizer,
	subscription adapter.Finalizer,
	graceWindow time.Duration,
	logger *zerolog.Logger,
) (*reconcileUC, error) {
	if store == nil || gw == nil || poller == nil {
		return nil, errors.New("store, gateway and poller are required")
	}
	if wallet == nil || subscription == nil {
		return nil, errors.New("a finalizer per purpose is required")
	}
	if graceWindow <= 0 {
		graceWindow = 10 * time.Minute
	}
	return &reconcileUC{
		store:    store,
		outcomes: outcomes,
		gw:       gw,
		poller:   poller,
		finalizers: map[model.Purpose]adapter.Finalizer{
			model.PurposeWalletCashIn:       wallet,
			model.PurposeSubscriptionChange: subscription,
		},
		grace:     graceWindow,
		log:       logger,
		now:       time.Now,
		active:    make(map[model.Purpose]*activePoll),
		finalized: make(map[string]struct{}),
		subs:      make(map[int]chan model.OutcomeEvent),
	}, nil
}

func (u *reconcileUC) Begin(ctx context.Context, purpose model.Purpose, req BeginRequest) (*model.PendingRecord, error) {
	if !purpose.Valid() {
		return nil, fmt.Errorf("%w: unknown purpose %q", domain.ErrInvalidArgument, purpose)
	}
	if req.AmountMinorUnits <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidArgument)
	}
	defer logging.TraceDuration(u.log, "ReconcileUC.Begin")()

	u.mu.Lock()
	defer u.mu.Unlock()

	// Replace any pending intent for this purpose: cancel its poller before
	// anything else so two pollers never run concurrently for one slot.
	if ap := u.active[purpose]; ap != nil {
		ap.cancel()
		delete(u.active, purpose)
		u.log.Info().Str("purpose", string(purpose)).Str("intent_id", ap.intentID).
			Msg("replacing pending intent; previous poller cancelled")
	}
	if err := u.store.Clear(ctx, purpose); err != nil {
		return nil, fmt.Errorf("clear previous record: %w", err)
	}

	intent, err := u.gw.CreateIntent(ctx, adapter.CreateIntentParams{
		Purpose:          purpose,
		AmountMinorUnits: req.AmountMinorUnits,
		Description:      req.Description,
		Metadata:         req.Metadata,
	})
	if err != nil {
		// Nothing was persisted; the slot stays idle.
		return nil, err
	}
	if intent.PaymentID == "" {
		intent.PaymentID = ulid.Make().String()
	}

	rec := &model.PendingRecord{
		PaymentIntent: *intent,
		Status:        model.RecordStatusPolling,
		GraceWindowMs: u.grace.Milliseconds(),
	}

	// Code-image backfill before the first render. Failure is non-fatal; the
	// record stays polling-capable without an image.
	if rec.CodeImageURL == nil {
		if imgURL, ferr := u.gw.FetchCodeImage(ctx, intent.IntentID); ferr != nil {
			u.log.Warn().Str("intent_id", intent.IntentID).Err(ferr).Msg("code image fetch failed")
		} else {
			rec.CodeImageURL = &imgURL
		}
	}

	if err := u.store.Save(ctx, purpose, rec); err != nil {
		return nil, fmt.Errorf("persist pending record: %w", err)
	}
	metrics.IncIntentCreated(string(purpose))
	u.startPollerLocked(purpose, rec)

	cp := *rec
	return &cp, nil
}

// startPollerLocked starts polling rec's intent. Caller holds u.mu.
func (u *reconcileUC) startPollerLocked(purpose model.Purpose, rec *model.PendingRecord) {
	intentID := rec.IntentID
	cancel := u.poller.Start(intentID, rec.ExpiresAt, func(status model.IntentStatus) {
		u.onTerminal(purpose, intentID, status)
	})
	u.active[purpose] = &activePoll{intentID: intentID, cancel: cancel}
}

// onTerminal handles a poller's single terminal status report.
func (u *reconcileUC) onTerminal(purpose model.Purpose, intentID string, status model.IntentStatus) {
	ctx, cancelCtx := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelCtx()
	ctx = logging.WithIntentID(ctx, intentID)
	log := logging.With(ctx, u.log)

	u.mu.Lock()
	ap := u.active[purpose]
	if ap == nil || ap.intentID != intentID {
		// A newer Begin replaced this intent, or Cancel already won the race.
		u.mu.Unlock()
		log.Debug().Str("purpose", string(purpose)).Msg("discarding terminal status from superseded poller")
		return
	}
	delete(u.active, purpose)

	rec, err := u.store.Load(ctx, purpose)
	if err != nil || rec.IntentID != intentID {
		// The record is the single source of truth: gone means no finalize,
		// no event.
		u.mu.Unlock()
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Error().Err(err).Msg("load pending record on terminal status failed")
		}
		return
	}

	ev := model.OutcomeEvent{
		PaymentID:        rec.PaymentID,
		IntentID:         intentID,
		Purpose:          purpose,
		AmountMinorUnits: rec.AmountMinorUnits,
		OccurredAt:       u.now(),
	}

	switch status {
	case model.IntentStatusSucceeded:
		if _, done := u.finalized[intentID]; done {
			u.mu.Unlock()
			return
		}
		u.finalized[intentID] = struct{}{}
		// Clear synchronously with the decision to finalize, strictly before
		// the finalizer's own network call, so a concurrent reload or Begin
		// can never observe a half-finalized intent and re-trigger it.
		if cerr := u.store.Clear(ctx, purpose); cerr != nil {
			// Without a confirmed clear we must not finalize; re-arm polling
			// so a later tick retries the whole transition.
			delete(u.finalized, intentID)
			u.startPollerLocked(purpose, rec)
			u.mu.Unlock()
			log.Error().Err(cerr).Msg("clear before finalize failed; polling re-armed")
			return
		}
		fin := u.finalizers[purpose]
		u.mu.Unlock()

		ev.Kind = model.OutcomeSucceeded
		if ferr := fin.Finalize(ctx, intentID, rec.AmountMinorUnits, rec.Metadata); ferr != nil {
			// The payment is settled gateway-side. Retrying or restoring the
			// record could credit twice; surface a warning instead and let
			// the user re-check their balance/plan.
			ev.FinalizeWarning = ferr.Error()
			metrics.IncFinalizeWarning()
			log.Error().Str("finalizer", fin.Name()).Err(ferr).
				Msg("payment settled but finalize failed; not retrying")
		}

	case model.IntentStatusFailed, model.IntentStatusExpired:
		if cerr := u.store.Clear(ctx, purpose); cerr != nil {
			// A surviving record would be resumed by the next restore and emit
			// a second terminal event; re-arm here and let a later tick own
			// both the clear and the emission.
			u.startPollerLocked(purpose, rec)
			u.mu.Unlock()
			log.Error().Str("status", string(status)).Err(cerr).
				Msg("clear on terminal intent failed; polling re-armed")
			return
		}
		u.mu.Unlock()
		if status == model.IntentStatusFailed {
			ev.Kind = model.OutcomeFailed
			ev.Reason = "gateway reported failure"
		} else {
			ev.Kind = model.OutcomeExpired
		}

	default:
		u.mu.Unlock()
		log.Error().Str("status", string(status)).Msg("poller reported non-terminal status")
		return
	}

	u.emit(ctx, &ev)
}

func (u *reconcileUC) Cancel(ctx context.Context, purpose model.Purpose) error {
	if !purpose.Valid() {
		return fmt.Errorf("%w: unknown purpose %q", domain.ErrInvalidArgument, purpose)
	}

	u.mu.Lock()
	ap := u.active[purpose]
	rec, lerr := u.store.Load(ctx, purpose)
	if ap == nil && lerr != nil {
		u.mu.Unlock()
		if errors.Is(lerr, domain.ErrNotFound) {
			return domain.ErrNoPendingIntent
		}
		return lerr
	}
	if ap != nil {
		ap.cancel()
		delete(u.active, purpose)
	}
	if err := u.store.Clear(ctx, purpose); err != nil {
		u.mu.Unlock()
		return fmt.Errorf("clear pending record: %w", err)
	}
	u.mu.Unlock()

	ev := model.OutcomeEvent{
		Purpose:    purpose,
		Kind:       model.OutcomeCancelled,
		OccurredAt: u.now(),
	}
	if rec != nil {
		ev.PaymentID = rec.PaymentID
		ev.IntentID = rec.IntentID
		ev.AmountMinorUnits = rec.AmountMinorUnits
		// The gateway-side intent is left to expire on its own. If it settles
		// right after this, the success has no listener; keep it traceable.
		u.log.Warn().Str("purpose", string(purpose)).Str("intent_id", rec.IntentID).
			Msg("intent cancelled locally; gateway-side intent left to expire")
	}
	u.emit(ctx, &ev)
	return nil
}

func (u *reconcileUC) Pending(ctx context.Context, purpose model.Purpose) (*model.PendingRecord, error) {
	if !purpose.Valid() {
		return nil, fmt.Errorf("%w: unknown purpose %q", domain.ErrInvalidArgument, purpose)
	}
	rec, err := u.store.Load(ctx, purpose)
	if err != nil {
		return nil, err
	}
	cp := *rec
	return &cp, nil
}

func (u *reconcileUC) RestoreOnLoad(ctx context.Context) error {
	defer logging.TraceDuration(u.log, "ReconcileUC.RestoreOnLoad")()
	var firstErr error
	for _, purpose := range model.AllPurposes {
		if err := u.restorePurpose(ctx, purpose); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (u *reconcileUC) restorePurpose(ctx context.Context, purpose model.Purpose) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.active[purpose] != nil {
		// A poller already owns this slot; a repeated restore must never
		// produce a second one.
		return nil
	}

	rec, err := u.store.Load(ctx, purpose)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.IncRestore("empty")
		return nil
	}
	if err != nil {
		return err
	}

	now := u.now()
	if rec.StalePast(now) {
		// Cold path: past any reasonable recovery window. No network call,
		// no event, just discard.
		if cerr := u.store.Clear(ctx, purpose); cerr != nil {
			return cerr
		}
		metrics.IncRestore("stale_discarded")
		u.log.Info().Str("purpose", string(purpose)).Str("intent_id", rec.IntentID).
			Time("expires_at", rec.ExpiresAt).Msg("stale pending record discarded on restore")
		return nil
	}

	if rec.Expired(now) {
		// Past nominal expiry but inside the grace window: resume anyway so
		// the first fetch can still observe a success that raced the restart.
		u.log.Info().Str("purpose", string(purpose)).Str("intent_id", rec.IntentID).
			Time("expires_at", rec.ExpiresAt).Msg("resuming intent already past expiry within grace window")
	}

	if rec.CodeImageURL == nil {
		if imgURL, ferr := u.gw.FetchCodeImage(ctx, rec.IntentID); ferr != nil {
			u.log.Warn().Str("intent_id", rec.IntentID).Err(ferr).Msg("code image backfill on restore failed")
		} else {
			rec.CodeImageURL = &imgURL
			if serr := u.store.Save(ctx, purpose, rec); serr != nil {
				u.log.Warn().Str("intent_id", rec.IntentID).Err(serr).Msg("saving backfilled code image failed")
			}
		}
	}

	// The poller's immediate first fetch doubles as the restore status check;
	// from here the slot re-enters the same state machine as after Begin.
	u.startPollerLocked(purpose, rec)
	metrics.IncRestore("resumed")
	u.log.Info().Str("purpose", string(purpose)).Str("intent_id", rec.IntentID).Msg("pending intent resumed on restore")
	return nil
}

func (u *reconcileUC) Subscribe(buffer int) (<-chan model.OutcomeEvent, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	id := u.nextSub
	u.nextSub++
	ch := make(chan model.OutcomeEvent, buffer)
	u.subs[id] = ch
	return ch, func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		if c, ok := u.subs[id]; ok {
			delete(u.subs, id)
			close(c)
		}
	}
}

// emit records the outcome in the audit trail and fans it out to subscribers.
// Audit failures never affect the protocol.
func (u *reconcileUC) emit(ctx context.Context, ev *model.OutcomeEvent) {
	metrics.IncOutcome(string(ev.Purpose), string(ev.Kind))
	if u.outcomes != nil {
		if err := u.outcomes.Record(ctx, ev); err != nil {
			u.log.Error().Str("intent_id", ev.IntentID).Err(err).Msg("outcome audit write failed")
		}
	}
	u.mu.Lock()
	for _, ch := range u.subs {
		select {
		case ch <- *ev:
		default:
			// slow subscriber; drop rather than block the coordinator
		}
	}
	u.mu.Unlock()
}

func (u *reconcileUC) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	for purpose, ap := range u.active {
		ap.cancel()
		delete(u.active, purpose)
	}
	for id, ch := range u.subs {
		close(ch)
		delete(u.subs, id)
	}
}
