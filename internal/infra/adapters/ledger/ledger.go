// File: internal/infra/adapters/ledger/ledger.go
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"vendor-payments/internal/domain"
	"vendor-payments/internal/domain/ports/adapter"
)

var (
	_ adapter.Finalizer = (*WalletClient)(nil)
	_ adapter.Finalizer = (*SubscriptionClient)(nil)
)

// idempotencyKey derives a stable key from the intent id so a crash-and-rerun
// of the same finalize call dedupes server-side.
func idempotencyKey(scope, intentID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(scope+":"+intentID)).String()
}

func post(ctx context.Context, client *http.Client, url, idemKey string, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idemKey)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrFinalizeFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: http %d: %s", domain.ErrFinalizeFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// WalletClient credits the vendor wallet ledger for a settled cash-in.
type WalletClient struct {
	url    string
	client *http.Client
}

func NewWalletClient(baseURL string, timeout time.Duration) (*WalletClient, error) {
	if baseURL == "" {
		return nil, errors.New("wallet ledger url empty")
	}
	return &WalletClient{
		url:    strings.TrimRight(baseURL, "/") + "/wallet/credits",
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (c *WalletClient) Name() string { return "wallet-ledger" }

func (c *WalletClient) Finalize(ctx context.Context, intentID string, amountMinorUnits int64, metadata map[string]interface{}) error {
	payload := map[string]interface{}{
		"intent_id":          intentID,
		"amount_minor_units": amountMinorUnits,
		"metadata":           metadata,
	}
	return post(ctx, c.client, c.url, idempotencyKey("wallet", intentID), payload)
}

// SubscriptionClient activates the plan a settled subscription-change payment
// was made for. The target plan travels in the intent metadata, opaque to the
// coordinator.
type SubscriptionClient struct {
	url    string
	client *http.Client
}

func NewSubscriptionClient(baseURL string, timeout time.Duration) (*SubscriptionClient, error) {
	if baseURL == "" {
		return nil, errors.New("subscription ledger url empty")
	}
	return &SubscriptionClient{
		url:    strings.TrimRight(baseURL, "/") + "/subscriptions/activate",
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (c *SubscriptionClient) Name() string { return "subscription-ledger" }

func (c *SubscriptionClient) Finalize(ctx context.Context, intentID string, amountMinorUnits int64, metadata map[string]interface{}) error {
	payload := map[string]interface{}{
		"intent_id":          intentID,
		"amount_minor_units": amountMinorUnits,
		"metadata":           metadata,
	}
	return post(ctx, c.client, c.url, idempotencyKey("subscription", intentID), payload)
}
