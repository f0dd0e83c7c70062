package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PaymentEvent is the inbound provider event as plain data. Signature
// verification happens upstream of this boundary. Thin deliveries carry only
// the id and type; ResolveFull fills in the refs.
type PaymentEvent struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OrderRef   string          `json:"order_ref,omitempty"`
	SessionRef string          `json:"session_ref,omitempty"`
	ChargeRef  string          `json:"charge_ref,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// Thin reports whether the payload needs resolving before use.
func (e PaymentEvent) Thin() bool {
	return e.SessionRef == "" && e.OrderRef == ""
}

// PayloadResolver resolves an abbreviated provider payload to its full form.
// Stubbed in tests; backed by the provider's REST API in production.
type PayloadResolver interface {
	ResolveFull(ctx context.Context, eventType string, partial PaymentEvent) (PaymentEvent, error)
}

// ProviderClient resolves thin payloads by re-fetching the event from the
// payment provider's API.
type ProviderClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewProviderClient creates a provider API client.
func NewProviderClient(apiKey, baseURL string) *ProviderClient {
	return &ProviderClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// providerEventBody mirrors the provider's event envelope.
type providerEventBody struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID                string `json:"id"`
			ClientReferenceID string `json:"client_reference_id"`
			PaymentIntent     string `json:"payment_intent"`
		} `json:"object"`
	} `json:"data"`
}

// ResolveFull fetches the full event and maps the session, order and charge refs.
func (c *ProviderClient) ResolveFull(ctx context.Context, eventType string, partial PaymentEvent) (PaymentEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/events/"+partial.ID, nil)
	if err != nil {
		return PaymentEvent{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return PaymentEvent{}, fmt.Errorf("resolve event %s: %w", partial.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return PaymentEvent{}, fmt.Errorf("resolve event %s: provider returned %d", partial.ID, resp.StatusCode)
	}

	var body providerEventBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return PaymentEvent{}, fmt.Errorf("resolve event %s: %w", partial.ID, err)
	}

	full := partial
	full.Type = body.Type
	full.SessionRef = body.Data.Object.ID
	full.OrderRef = body.Data.Object.ClientReferenceID
	full.ChargeRef = body.Data.Object.PaymentIntent
	return full, nil
}
