package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// ConsumeResult reports the outcome of an atomic dual-window consume.
type ConsumeResult struct {
	Allowed        bool
	RemainingDaily int64
	RemainingBurst int64
}

// CounterStore holds the shared admission counters. Consume must decrement
// the daily and burst windows atomically together, or neither.
type CounterStore interface {
	Consume(ctx context.Context, dailyKey string, dailyCap int, burstKey string, burstCap int, dailyTTL, burstTTL time.Duration) (ConsumeResult, error)
	Remaining(ctx context.Context, dailyKey string, dailyCap int) (int64, error)
}

// Stats is a point-in-time usage snapshot for one tenant.
type Stats struct {
	TenantID    string  `json:"tenant_id"`
	Limit       int     `json:"limit"`
	Used        int64   `json:"used"`
	Remaining   int64   `json:"remaining"`
	PercentUsed float64 `json:"percent_used"`
}

// Limiter is the distributed dual-window admission counter: a daily window
// keyed by tenant and UTC date, plus a per-minute burst window. On store
// unavailability it fails open: availability over strict enforcement.
type Limiter struct {
	store        CounterStore
	defaultDaily int
	burstCap     int
	now          func() time.Time
	log          *slog.Logger
}

func NewLimiter(store CounterStore, defaultDaily, burstCap int, log *slog.Logger) *Limiter {
	if defaultDaily <= 0 {
		defaultDaily = 100000
	}
	if burstCap <= 0 {
		burstCap = 1000
	}
	return &Limiter{
		store:        store,
		defaultDaily: defaultDaily,
		burstCap:     burstCap,
		now:          time.Now,
		log:          log,
	}
}

// WithClock overrides the limiter's clock; used by tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Admit atomically consumes one unit from both windows. dailyCap <= 0 selects
// the default daily limit.
func (l *Limiter) Admit(ctx context.Context, tenantID string, dailyCap int) bool {
	if dailyCap <= 0 {
		dailyCap = l.defaultDaily
	}

	res, err := l.store.Consume(ctx,
		l.dailyKey(tenantID), dailyCap,
		l.burstKey(tenantID), l.burstCap,
		48*time.Hour, 2*time.Minute)
	if err != nil {
		// Fail open on shared-storage unavailability.
		l.log.Error("rate limit store error, admitting", "tenant_id", tenantID, "error", err)
		return true
	}

	if !res.Allowed {
		l.log.Warn("rate limit exceeded", "tenant_id", tenantID,
			"remaining_daily", res.RemainingDaily, "remaining_burst", res.RemainingBurst)
		return false
	}

	if res.RemainingDaily < int64(dailyCap)/5 {
		l.log.Info("high quota usage", "tenant_id", tenantID,
			"remaining", res.RemainingDaily, "limit", dailyCap)
	}
	return true
}

// Remaining returns the unused daily quota for a tenant.
func (l *Limiter) Remaining(ctx context.Context, tenantID string, dailyCap int) int64 {
	if dailyCap <= 0 {
		dailyCap = l.defaultDaily
	}
	remaining, err := l.store.Remaining(ctx, l.dailyKey(tenantID), dailyCap)
	if err != nil {
		l.log.Error("rate limit remaining lookup failed", "tenant_id", tenantID, "error", err)
		return int64(dailyCap)
	}
	return remaining
}

// GetStats returns a usage snapshot for a tenant.
func (l *Limiter) GetStats(ctx context.Context, tenantID string, dailyCap int) Stats {
	if dailyCap <= 0 {
		dailyCap = l.defaultDaily
	}
	remaining := l.Remaining(ctx, tenantID, dailyCap)
	used := int64(dailyCap) - remaining
	if used < 0 {
		used = 0
	}
	return Stats{
		TenantID:    tenantID,
		Limit:       dailyCap,
		Used:        used,
		Remaining:   remaining,
		PercentUsed: float64(used) / float64(dailyCap) * 100,
	}
}

// dailyKey resets naturally at the UTC date rollover via key expiry.
func (l *Limiter) dailyKey(tenantID string) string {
	return "ratelimit:" + tenantID + ":" + l.now().UTC().Format("2006-01-02")
}

func (l *Limiter) burstKey(tenantID string) string {
	return "ratelimit:burst:" + tenantID + ":" + l.now().UTC().Format("2006-01-02T15:04")
}
