// File: internal/infra/adapters/gateway/http_gateway.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vendor-payments/internal/domain"
	"vendor-payments/internal/domain/model"
	"vendor-payments/internal/domain/ports/adapter"
)

var _ adapter.GatewayClient = (*HTTPGateway)(nil)

// HTTPGateway implements adapter.GatewayClient against the gateway REST API:
// POST /intents, GET /intents/{id}/status, GET /intents/{id}/code.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPGateway(baseURL, apiKey string, timeout time.Duration) (*HTTPGateway, error) {
	if baseURL == "" {
		return nil, errors.New("gateway base url empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid gateway base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (g *HTTPGateway) Name() string { return "http-gateway" }

func (g *HTTPGateway) endpoint(path string) string {
	return g.baseURL + path
}

func (g *HTTPGateway) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	return resp, nil
}

// classify maps an HTTP error status to the domain taxonomy: 4xx is a fatal
// request error, anything else is transient.
func classify(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if status >= 400 && status < 500 {
		return fmt.Errorf("%w: http %d: %s", domain.ErrInvalidRequest, status, msg)
	}
	return fmt.Errorf("%w: http %d", domain.ErrGatewayUnavailable, status)
}

type intentResponse struct {
	PaymentID        string                 `json:"payment_id"`
	IntentID         string                 `json:"intent_id"`
	AmountMinorUnits int64                  `json:"amount_minor_units"`
	CodeImageURL     *string                `json:"code_image_url"`
	ExpiresAt        time.Time              `json:"expires_at"`
	Metadata         map[string]interface{} `json:"metadata"`
}

// CreateIntent calls POST /intents and returns the created intent.
func (g *HTTPGateway) CreateIntent(ctx context.Context, params adapter.CreateIntentParams) (*model.PaymentIntent, error) {
	payload := map[string]interface{}{
		"purpose":            string(params.Purpose),
		"amount_minor_units": params.AmountMinorUnits,
		"description":        params.Description,
	}
	if params.Metadata != nil {
		payload["metadata"] = params.Metadata
	}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint("/intents"), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	resp, err := g.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classify(resp.StatusCode, body)
	}
	var out intentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode intent: %v", domain.ErrGatewayUnavailable, err)
	}
	if out.IntentID == "" {
		return nil, fmt.Errorf("%w: missing intent_id", domain.ErrInvalidRequest)
	}
	return &model.PaymentIntent{
		PaymentID:        out.PaymentID,
		IntentID:         out.IntentID,
		Purpose:          params.Purpose,
		AmountMinorUnits: out.AmountMinorUnits,
		CodeImageURL:     out.CodeImageURL,
		ExpiresAt:        out.ExpiresAt,
		Metadata:         params.Metadata,
	}, nil
}

// FetchStatus calls GET /intents/{id}/status. Repeated calls are safe; the
// gateway treats it as a pure read.
func (g *HTTPGateway) FetchStatus(ctx context.Context, intentID string) (model.IntentStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint("/intents/"+url.PathEscape(intentID)+"/status"), nil)
	if err != nil {
		return "", err
	}
	resp, err := g.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", classify(resp.StatusCode, body)
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode status: %v", domain.ErrGatewayUnavailable, err)
	}
	st := model.IntentStatus(out.Status)
	switch st {
	case model.IntentStatusPending, model.IntentStatusSucceeded, model.IntentStatusFailed, model.IntentStatusExpired:
		return st, nil
	}
	return "", fmt.Errorf("gateway returned unknown status %q", out.Status)
}

// FetchCodeImage calls GET /intents/{id}/code and returns the image URL.
func (g *HTTPGateway) FetchCodeImage(ctx context.Context, intentID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint("/intents/"+url.PathEscape(intentID)+"/code"), nil)
	if err != nil {
		return "", err
	}
	resp, err := g.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", classify(resp.StatusCode, body)
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode code image: %v", domain.ErrGatewayUnavailable, err)
	}
	if out.URL == "" {
		return "", errors.New("gateway returned empty code image url")
	}
	return out.URL, nil
}
