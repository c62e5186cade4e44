package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EventCheckoutCompleted is the only event kind that materializes an order;
// every other kind is acknowledged and ignored.
const EventCheckoutCompleted = "checkout.session.completed"

type LineItem struct {
	Name       string            `json:"name"`
	ImageURL   string            `json:"image_url,omitempty"`
	UnitAmount int64             `json:"unit_amount"`
	Quantity   uint              `json:"quantity"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type CheckoutSession struct {
	ID        string            `json:"id"`
	URL       string            `json:"url"`
	Metadata  map[string]string `json:"metadata"`
	LineItems []LineItem        `json:"line_items"`
}

type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Session CheckoutSession `json:"object"`
	} `json:"data"`
}

type SessionParams struct {
	SuccessURL      string            `json:"success_url"`
	CancelURL       string            `json:"cancel_url"`
	ClientReference string            `json:"client_reference_id,omitempty"`
	LineItems       []LineItem        `json:"line_items"`
	Metadata        map[string]string `json:"metadata"`
}

// Gateway creates hosted checkout sessions at the payment provider.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, params *SessionParams) (*CheckoutSession, error)
}

type Client struct {
	APIURL     string
	SecretKey  string
	HTTPClient *http.Client
}

func NewClient(apiURL, secretKey string) *Client {
	return &Client{
		APIURL:     apiURL,
		SecretKey:  secretKey,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) CreateCheckoutSession(ctx context.Context, params *SessionParams) (*CheckoutSession, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("payment: encode session params: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.APIURL+"/v1/checkout/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payment: gateway unreachable: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("payment: gateway returned %d: %s", res.StatusCode, msg)
	}

	var session CheckoutSession
	if err := json.NewDecoder(res.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("payment: decode session: %w", err)
	}
	return &session, nil
}

func ParseEvent(payload []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("payment: malformed event payload: %w", err)
	}
	if ev.ID == "" || ev.Type == "" {
		return nil, fmt.Errorf("payment: event missing id or type")
	}
	return &ev, nil
}
