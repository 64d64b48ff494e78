package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/boxoffice/internal/config"
	"go.uber.org/zap"
)

type HTTPClient struct {
	baseURL    string
	merchantID string
	secret     []byte
	returnURL  string
	http       *http.Client
	log        *zap.Logger
}

func NewHTTPClient(cfg config.GatewayConfig, publicBaseURL string, log *zap.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		merchantID: cfg.MerchantID,
		secret:     []byte(cfg.WebhookSecret),
		returnURL:  strings.TrimRight(publicBaseURL, "/"),
		http:       &http.Client{Timeout: timeout},
		log:        log.Named("gateway"),
	}
}

type sessionPayload struct {
	MerchantID  string `json:"merchant_id"`
	OrderID     string `json:"order_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Email       string `json:"email"`
	Language    string `json:"language"`
	Description string `json:"description"`
	ClientIP    string `json:"client_ip,omitempty"`
	OkURL       string `json:"ok_url"`
	FailURL     string `json:"fail_url"`
	CallbackURL string `json:"callback_url"`
}

type sessionResponse struct {
	TransactionID string `json:"transaction_id"`
	PaymentURL    string `json:"payment_url"`
}

func (c *HTTPClient) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	body, err := json.Marshal(sessionPayload{
		MerchantID:  c.merchantID,
		OrderID:     req.OrderNumber,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Email:       req.Email,
		Language:    req.Language,
		Description: req.Description,
		ClientIP:    req.ClientIP,
		OkURL:       c.returnURL + "/orders/" + req.OrderNumber + "/success",
		FailURL:     c.returnURL + "/orders/" + req.OrderNumber + "/failed",
		CallbackURL: c.returnURL + "/api/gateway/callback",
	})
	if err != nil {
		return Session{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sessions", bytes.NewReader(body))
	if err != nil {
		return Session{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if len(c.secret) > 0 {
		httpReq.Header.Set(SignatureHeader, Sign(c.secret, body))
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.Warn("gateway session request failed", zap.String("order_number", req.OrderNumber), zap.Error(err))
		return Session{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= 300 {
		c.log.Warn("gateway rejected session",
			zap.String("order_number", req.OrderNumber),
			zap.Int("status", resp.StatusCode),
		)
		return Session{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out sessionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if out.TransactionID == "" || out.PaymentURL == "" {
		return Session{}, fmt.Errorf("%w: incomplete session", ErrUnavailable)
	}
	return Session{TransactionID: out.TransactionID, PaymentURL: out.PaymentURL}, nil
}
