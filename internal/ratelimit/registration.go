package ratelimit

import (
	"context"
	"strings"

	"github.com/smallbiznis/gymledger/internal/config"
)

const keyRegistrationClient = "gymledger:ratelimit:registration:"

// RegistrationLimiter throttles the public signup endpoints per client.
// A nil or disabled limiter allows everything.
type RegistrationLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewRegistrationLimiter(cfg config.Config, bucket *TokenBucket) *RegistrationLimiter {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled || bucket == nil {
		return nil
	}
	if limitCfg.RegistrationRate <= 0 || limitCfg.RegistrationBurst <= 0 {
		return nil
	}
	return &RegistrationLimiter{
		bucket: bucket,
		rate:   limitCfg.RegistrationRate,
		burst:  limitCfg.RegistrationBurst,
	}
}

func (l *RegistrationLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *RegistrationLimiter) Allow(ctx context.Context, clientKey string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, keyRegistrationClient+strings.TrimSpace(clientKey), l.rate, l.burst)
}
