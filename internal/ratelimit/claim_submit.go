package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/duesledger/internal/config"
	"go.uber.org/fx"
)

const (
	keyClaimSubmitResident = "claims:submit:resident:%s"
	keyClaimSubmitLock     = "claims:submit:lock:%s"
)

// ClaimSubmitLimiter throttles online payment claims per resident and keeps
// two submissions for one invoice from racing each other.
type ClaimSubmitLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	rate    float64
	burst   int
	lockTTL time.Duration
}

// NewClaimSubmitLimiter returns nil when rate limiting is disabled.
func NewClaimSubmitLimiter(lc fx.Lifecycle, cfg config.Config) (*ClaimSubmitLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	limiter, err := NewClaimSubmitLimiterWithClient(client, limitCfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}
	return limiter, nil
}

func NewClaimSubmitLimiterWithClient(client redis.UniversalClient, limitCfg config.RateLimitConfig) (*ClaimSubmitLimiter, error) {
	if limitCfg.ClaimSubmitRate <= 0 || limitCfg.ClaimSubmitBurst <= 0 {
		return nil, errors.New("claim submit rate limit must be positive")
	}
	if limitCfg.ClaimSubmitLockTTLSec <= 0 {
		return nil, errors.New("claim submit lock ttl must be positive")
	}
	return &ClaimSubmitLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		locker:  NewLocker(client),
		rate:    limitCfg.ClaimSubmitRate,
		burst:   limitCfg.ClaimSubmitBurst,
		lockTTL: time.Duration(limitCfg.ClaimSubmitLockTTLSec) * time.Second,
	}, nil
}

func (l *ClaimSubmitLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *ClaimSubmitLimiter) AllowResident(ctx context.Context, residentID string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyClaimSubmitResident, strings.TrimSpace(residentID)), l.rate, l.burst)
}

// LockInvoice takes the in-flight submission lease for an invoice. A nil
// lease with a nil error means another submission holds it.
func (l *ClaimSubmitLimiter) LockInvoice(ctx context.Context, invoiceID string) (*Lease, error) {
	if !l.Enabled() {
		return &Lease{}, nil
	}
	return l.locker.Acquire(ctx, fmt.Sprintf(keyClaimSubmitLock, strings.TrimSpace(invoiceID)), l.lockTTL)
}
