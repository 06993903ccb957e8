package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/eventpass-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://api.paystack.co"
	responseBodyReadLimit int64 = 1024

	// SignatureHeader carries the HMAC-SHA512 of the webhook body.
	SignatureHeader = "x-paystack-signature"

	EventChargeSuccess = "charge.success"
)

// Transaction statuses reported by /transaction/verify.
const (
	StatusSuccess   = "success"
	StatusAbandoned = "abandoned"
	StatusFailed    = "failed"
	StatusReversed  = "reversed"
	StatusOngoing   = "ongoing"
	StatusPending   = "pending"
)

var errSecretKeyRequired = errors.New("paystack secret key is required")

// Client talks to the Paystack transactions API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	secretKey   string
	callbackURL string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds a Paystack client from config.
func NewClient(cfg config.PaystackConfig, opts ...Option) (*Client, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errSecretKeyRequired
	}
	client := &Client{
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		baseURL:     defaultBaseURL,
		secretKey:   secret,
		callbackURL: strings.TrimSpace(cfg.CallbackURL),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		client.baseURL = base
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// InitializeRequest opens a hosted payment page. Amount is in minor units.
type InitializeRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency,omitempty"`
	Reference   string            `json:"reference"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type InitializeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Transaction is the subset of the transaction object the checkout needs.
type Transaction struct {
	ID              int64             `json:"id"`
	Status          string            `json:"status"`
	Reference       string            `json:"reference"`
	Amount          int64             `json:"amount"`
	Currency        string            `json:"currency"`
	GatewayResponse string            `json:"gateway_response"`
	Metadata        Metadata          `json:"metadata"`
}

// Metadata is the flat key/value metadata attached at initialize. Paystack
// echoes an empty string when none was set.
type Metadata map[string]string

func (m *Metadata) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == `""` || trimmed == "0" {
		*m = nil
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Metadata, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	*m = out
	return nil
}

// Event is a webhook delivery.
type Event struct {
	Event string      `json:"event"`
	Data  Transaction `json:"data"`
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitializeTransaction calls POST /transaction/initialize.
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paystack client not configured")
	}
	if strings.TrimSpace(req.Email) == "" || req.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and a positive amount are required")
	}
	if req.CallbackURL == "" {
		req.CallbackURL = c.callbackURL
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal initialize request")
	}

	var out InitializeResponse
	if err := c.do(ctx, http.MethodPost, "transaction/initialize", bytes.NewReader(payload), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTransaction calls GET /transaction/verify/{reference}.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paystack client not configured")
	}
	trimmed := strings.TrimSpace(reference)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}

	var out Transaction
	if err := c.do(ctx, http.MethodGet, "transaction/verify/"+url.PathEscape(trimmed), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifySignature checks a webhook body against its signature header.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	if c == nil || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(c.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// ParseEvent verifies and decodes a webhook delivery.
func (c *Client) ParseEvent(body []byte, signature string) (*Event, error) {
	if !c.VerifySignature(body, signature) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid paystack signature")
	}
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode paystack event")
	}
	return &evt, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build paystack request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute paystack request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "paystack request failed")
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode paystack response")
	}
	if !env.Status {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("paystack rejected request: %s", env.Message))
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode paystack data")
	}
	return nil
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
