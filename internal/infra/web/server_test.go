//go:build !integration

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vendor-payments/internal/domain"
	"vendor-payments/internal/domain/model"
	"vendor-payments/internal/infra/web"
	"vendor-payments/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return &l
}

// mockUC is a minimal ReconcileUseCase for handler tests.
type mockUC struct {
	BeginFunc   func(ctx context.Context, purpose model.Purpose, req usecase.BeginRequest) (*model.PendingRecord, error)
	CancelFunc  func(ctx context.Context, purpose model.Purpose) error
	PendingFunc func(ctx context.Context, purpose model.Purpose) (*model.PendingRecord, error)
	events      chan model.OutcomeEvent
}

func (m *mockUC) Begin(ctx context.Context, purpose model.Purpose, req usecase.BeginRequest) (*model.PendingRecord, error) {
	return m.BeginFunc(ctx, purpose, req)
}

func (m *mockUC) Cancel(ctx context.Context, purpose model.Purpose) error {
	return m.CancelFunc(ctx, purpose)
}

func (m *mockUC) Pending(ctx context.Context, purpose model.Purpose) (*model.PendingRecord, error) {
	return m.PendingFunc(ctx, purpose)
}

func (m *mockUC) RestoreOnLoad(ctx context.Context) error { return nil }

func (m *mockUC) Subscribe(buffer int) (<-chan model.OutcomeEvent, func()) {
	if m.events == nil {
		m.events = make(chan model.OutcomeEvent, 4)
	}
	return m.events, func() {}
}

func (m *mockUC) Close() {}

type serverDeps struct {
	uc   *mockUC
	srv  *httptest.Server
	auth string // bearer token
}

func newServerDeps(t *testing.T) *serverDeps {
	t.Helper()
	uc := &mockUC{}
	auth := web.NewAuthManager("test-secret", false, 30*time.Minute)
	s := web.NewServer(uc, nil, auth, "test-api-key", newTestLogger())
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	// Exchange the API key for a session token.
	body, _ := json.Marshal(map[string]string{"apiKey": "test-api-key"})
	resp, err := http.Post(srv.URL+"/api/v1/session", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session status %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return &serverDeps{uc: uc, srv: srv, auth: out.Token}
}

func (d *serverDeps) request(t *testing.T, method, path string, body interface{}, withAuth bool) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, d.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if withAuth {
		req.Header.Set("Authorization", "Bearer "+d.auth)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func TestServer_Auth(t *testing.T) {
	t.Run("should reject payment routes without a session", func(t *testing.T) {
		d := newServerDeps(t)
		resp := d.request(t, http.MethodGet, "/api/v1/payments/wallet_cashin", nil, false)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("should reject a wrong api key at session exchange", func(t *testing.T) {
		d := newServerDeps(t)
		body, _ := json.Marshal(map[string]string{"apiKey": "nope"})
		resp, err := http.Post(d.srv.URL+"/api/v1/session", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("session: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", resp.StatusCode)
		}
	})
}

func TestServer_Payments(t *testing.T) {
	t.Run("should begin an intent and return the pending record", func(t *testing.T) {
		d := newServerDeps(t)
		d.uc.BeginFunc = func(ctx context.Context, purpose model.Purpose, req usecase.BeginRequest) (*model.PendingRecord, error) {
			if purpose != model.PurposeWalletCashIn {
				t.Errorf("purpose %q", purpose)
			}
			if req.AmountMinorUnits != 10000 {
				t.Errorf("amount %d", req.AmountMinorUnits)
			}
			return &model.PendingRecord{
				PaymentIntent: model.PaymentIntent{PaymentID: "pay-1", IntentID: "intent-1", Purpose: purpose, AmountMinorUnits: 10000},
				Status:        model.RecordStatusPolling,
			}, nil
		}

		resp := d.request(t, http.MethodPost, "/api/v1/payments/wallet_cashin", map[string]interface{}{"amountMinorUnits": 10000}, true)
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d", resp.StatusCode)
		}
		var rec model.PendingRecord
		if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if rec.IntentID != "intent-1" {
			t.Errorf("unexpected record %+v", rec)
		}
	})

	t.Run("should map gateway rejection to 400 and outage to 502", func(t *testing.T) {
		d := newServerDeps(t)
		d.uc.BeginFunc = func(ctx context.Context, purpose model.Purpose, req usecase.BeginRequest) (*model.PendingRecord, error) {
			return nil, domain.ErrInvalidRequest
		}
		resp := d.request(t, http.MethodPost, "/api/v1/payments/wallet_cashin", map[string]interface{}{"amountMinorUnits": 1}, true)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}

		d.uc.BeginFunc = func(ctx context.Context, purpose model.Purpose, req usecase.BeginRequest) (*model.PendingRecord, error) {
			return nil, domain.ErrGatewayUnavailable
		}
		resp = d.request(t, http.MethodPost, "/api/v1/payments/wallet_cashin", map[string]interface{}{"amountMinorUnits": 1}, true)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", resp.StatusCode)
		}
	})

	t.Run("should reject an unknown purpose in the path", func(t *testing.T) {
		d := newServerDeps(t)
		resp := d.request(t, http.MethodGet, "/api/v1/payments/gift_cards", nil, true)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("should return 404 for an empty slot and 204 on cancel", func(t *testing.T) {
		d := newServerDeps(t)
		d.uc.PendingFunc = func(ctx context.Context, purpose model.Purpose) (*model.PendingRecord, error) {
			return nil, domain.ErrNotFound
		}
		resp := d.request(t, http.MethodGet, "/api/v1/payments/wallet_cashin", nil, true)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}

		cancelled := false
		d.uc.CancelFunc = func(ctx context.Context, purpose model.Purpose) error {
			cancelled = true
			return nil
		}
		resp = d.request(t, http.MethodDelete, "/api/v1/payments/wallet_cashin", nil, true)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("expected 204, got %d", resp.StatusCode)
		}
		if !cancelled {
			t.Error("cancel never reached the coordinator")
		}

		d.uc.CancelFunc = func(ctx context.Context, purpose model.Purpose) error {
			return domain.ErrNoPendingIntent
		}
		resp = d.request(t, http.MethodDelete, "/api/v1/payments/wallet_cashin", nil, true)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404 on second cancel, got %d", resp.StatusCode)
		}
	})
}

func TestServer_NextOutcome(t *testing.T) {
	t.Run("should deliver the next outcome event to a long-poll", func(t *testing.T) {
		d := newServerDeps(t)
		d.uc.Subscribe(1) // pre-create the channel
		d.uc.events <- model.OutcomeEvent{PaymentID: "pay-1", Kind: model.OutcomeSucceeded, Purpose: model.PurposeWalletCashIn}

		resp := d.request(t, http.MethodGet, "/api/v1/outcomes/next", nil, true)
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var ev model.OutcomeEvent
		if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.Kind != model.OutcomeSucceeded || ev.PaymentID != "pay-1" {
			t.Errorf("unexpected event %+v", ev)
		}
	})
}
