// Package gateway talks to the card payment gateway: it opens hosted
// payment sessions and authenticates result callbacks.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

const (
	Provider        = "maib"
	SignatureHeader = "X-Gateway-Signature"
)

var (
	ErrDisabled         = errors.New("gateway_disabled")
	ErrUnavailable      = errors.New("gateway_unavailable")
	ErrInvalidSignature = errors.New("invalid_signature")
	// ErrCallbacksDisabled means no webhook secret is configured, so no
	// callback can be authenticated.
	ErrCallbacksDisabled = errors.New("callbacks_disabled")
	ErrInvalidPayload    = errors.New("invalid_payload")
)

type SessionRequest struct {
	OrderNumber string
	Amount      int64
	Currency    string
	Email       string
	Language    string
	Description string
	ClientIP    string
}

type Session struct {
	TransactionID string
	PaymentURL    string
}

type Client interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
}

// Callback is the payment result notification posted by the gateway.
type Callback struct {
	TransactionID  string `json:"transaction_id"`
	OrderReference string `json:"order_reference"`
	Result         string `json:"result"`
	FailureReason  string `json:"failure_reason,omitempty"`
	Amount         *int64 `json:"amount,omitempty"`
}

func ParseCallback(payload []byte) (Callback, error) {
	var cb Callback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return Callback{}, ErrInvalidPayload
	}
	cb.TransactionID = strings.TrimSpace(cb.TransactionID)
	cb.OrderReference = strings.TrimSpace(cb.OrderReference)
	cb.Result = strings.ToLower(strings.TrimSpace(cb.Result))
	if cb.TransactionID == "" || cb.OrderReference == "" {
		return Callback{}, ErrInvalidPayload
	}
	if cb.Result != "ok" && cb.Result != "failed" {
		return Callback{}, ErrInvalidPayload
	}
	return cb, nil
}

// Verifier checks the HMAC-SHA256 signature the gateway puts on callbacks.
// Without a secret every callback is refused.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(strings.TrimSpace(secret))}
}

func (v *Verifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

func (v *Verifier) Verify(payload []byte, headers http.Header) error {
	if v == nil || !v.Enabled() {
		return ErrCallbacksDisabled
	}
	signature := strings.TrimSpace(headers.Get(SignatureHeader))
	signature = strings.TrimPrefix(signature, "sha256=")
	if signature == "" {
		return ErrInvalidSignature
	}
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(Sign(v.secret, payload))) {
		return ErrInvalidSignature
	}
	return nil
}

func Sign(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type disabledClient struct{}

// NewDisabledClient is used when no gateway is configured; every order
// stays pending with payment_pending.
func NewDisabledClient() Client {
	return disabledClient{}
}

func (disabledClient) CreateSession(context.Context, SessionRequest) (Session, error) {
	return Session{}, ErrDisabled
}
