package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"vendor-payments/internal/domain"
	"vendor-payments/internal/domain/model"
	"vendor-payments/internal/domain/ports/repository"
)

var _ repository.PendingIntentStore = (*PendingStore)(nil)

// PendingStore keeps the single awaited-payment record per purpose in Redis.
// Keys carry no TTL: a record must survive until the coordinator resolves it
// or RestoreOnLoad declares it stale; expiry is a protocol decision, not a
// storage one.
type PendingStore struct {
	client RedisClient
}

func NewPendingStore(client RedisClient) *PendingStore {
	return &PendingStore{client: client}
}

func (s *PendingStore) slotKey(purpose model.Purpose) string {
	return fmt.Sprintf("pending_intent:%s", purpose)
}

func (s *PendingStore) Save(ctx context.Context, purpose model.Purpose, rec *model.PendingRecord) error {
	if !purpose.Valid() {
		return domain.ErrInvalidArgument
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.slotKey(purpose), data, 0)
}

func (s *PendingStore) Load(ctx context.Context, purpose model.Purpose) (*model.PendingRecord, error) {
	if !purpose.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	data, err := s.client.Get(ctx, s.slotKey(purpose))
	if err != nil {
		if IsNil(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	var rec model.PendingRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PendingStore) Clear(ctx context.Context, purpose model.Purpose) error {
	if !purpose.Valid() {
		return domain.ErrInvalidArgument
	}
	return s.client.Del(ctx, s.slotKey(purpose))
}
