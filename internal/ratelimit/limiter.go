package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/boxoffice/internal/config"
	"go.uber.org/zap"
)

const (
	EndpointCheckout = "checkout"
	EndpointDownload = "download"
)

type rule struct {
	rate  float64
	burst int
}

// Limiter throttles public endpoints per client IP. A nil Limiter allows
// everything, which is what runs when redis is not configured.
type Limiter struct {
	bucket *TokenBucket
	rules  map[string]rule
	log    *zap.Logger
}

func NewLimiter(bucket *TokenBucket, cfg config.Config, log *zap.Logger) *Limiter {
	if bucket == nil {
		return nil
	}
	rl := cfg.RateLimit
	return &Limiter{
		bucket: bucket,
		rules: map[string]rule{
			EndpointCheckout: {rate: rl.CheckoutRate, burst: rl.CheckoutBurst},
			EndpointDownload: {rate: rl.DownloadRate, burst: rl.DownloadBurst},
		},
		log: log.Named("ratelimit"),
	}
}

// Allow reports whether the client may call endpoint. Redis failures fail
// open so an outage of the limiter never blocks ticket sales.
func (l *Limiter) Allow(ctx context.Context, endpoint, clientIP string) (Result, error) {
	if l == nil {
		return Result{Allowed: true}, nil
	}
	r, ok := l.rules[endpoint]
	if !ok || r.rate <= 0 || r.burst <= 0 {
		return Result{Allowed: true}, nil
	}
	key := fmt.Sprintf("boxoffice:ratelimit:%s:%s", endpoint, strings.TrimSpace(clientIP))
	res, err := l.bucket.Allow(ctx, key, r.rate, r.burst)
	if err != nil {
		l.log.Warn("rate limiter unavailable", zap.String("endpoint", endpoint), zap.Error(err))
		return Result{Allowed: true}, err
	}
	return res, nil
}
