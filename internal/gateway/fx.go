package gateway

import (
	"errors"

	"github.com/smallbiznis/boxoffice/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("gateway",
	fx.Provide(NewFromConfig),
	fx.Provide(NewVerifierFromConfig),
)

// NewVerifierFromConfig refuses to start a production process that could
// not authenticate payment callbacks.
func NewVerifierFromConfig(cfg config.Config, log *zap.Logger) (*Verifier, error) {
	v := NewVerifier(cfg.Gateway.WebhookSecret)
	if v.Enabled() {
		return v, nil
	}
	if cfg.IsProduction() {
		return nil, errors.New("GATEWAY_WEBHOOK_SECRET is required in production")
	}
	log.Warn("GATEWAY_WEBHOOK_SECRET not set; gateway callbacks will be refused")
	return v, nil
}

func NewFromConfig(cfg config.Config, log *zap.Logger) Client {
	if cfg.Gateway.BaseURL == "" {
		log.Warn("payment gateway not configured; orders will stay pending")
		return NewDisabledClient()
	}
	return NewHTTPClient(cfg.Gateway, cfg.PublicBaseURL, log)
}
