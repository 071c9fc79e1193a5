package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/capturelabs/capture-core/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	windowLength = time.Minute
	// Every Nth admission runs an extra sweep so hot traffic keeps the map
	// bounded even between periodic passes.
	opportunisticSweepEvery = 100
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	RetryAfter int // seconds, set only on rejection
}

// Limiter enforces a fixed 60-second request window per client identifier.
// Internal store failures fail open: availability wins over enforcement.
type Limiter struct {
	store      Store
	limit      int
	sweepEvery time.Duration
	log        *slog.Logger
	clock      func() time.Time
	admissions atomic.Uint64

	allowed  metric.Int64Counter
	rejected metric.Int64Counter
}

func New(cfg config.RateLimitConfig, store Store, log *slog.Logger) *Limiter {
	l := &Limiter{
		store:      store,
		limit:      cfg.RequestsPerMinute,
		sweepEvery: time.Duration(cfg.SweepIntervalMS) * time.Millisecond,
		log:        log.With(slog.String("component", "ratelimit")),
		clock:      time.Now,
	}
	if err := l.initMetrics(); err != nil {
		l.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return l
}

func (l *Limiter) initMetrics() error {
	meter := otel.Meter("github.com/capturelabs/capture-core/ratelimit")
	allowed, err := meter.Int64Counter("capture.ratelimit.allowed",
		metric.WithDescription("Admissions allowed"))
	if err != nil {
		return err
	}
	rejected, err := meter.Int64Counter("capture.ratelimit.rejected",
		metric.WithDescription("Admissions rejected"))
	if err != nil {
		return err
	}
	l.allowed = allowed
	l.rejected = rejected
	return nil
}

// Admit decides whether a request from clientID may proceed.
func (l *Limiter) Admit(clientID string) Decision {
	now := l.clock()

	if n := l.admissions.Add(1); n%opportunisticSweepEvery == 0 {
		if _, err := l.store.Sweep(now.Add(-windowLength)); err != nil {
			l.log.Warn("opportunistic sweep failed", slog.String("error", err.Error()))
		}
	}

	var decision Decision
	err := l.store.Update(clientID, func(w Window, ok bool) Window {
		if !ok || now.Sub(w.Start) >= windowLength {
			decision = Decision{Allowed: true}
			return Window{Count: 1, Start: now}
		}
		w.Count++
		if w.Count > l.limit {
			remaining := windowLength - now.Sub(w.Start)
			decision = Decision{
				Allowed:    false,
				RetryAfter: int(math.Ceil(remaining.Seconds())),
			}
		} else {
			decision = Decision{Allowed: true}
		}
		return w
	})
	if err != nil {
		l.log.Warn("admission check failed, allowing request",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()))
		decision = Decision{Allowed: true}
	}

	l.count(decision)
	return decision
}

func (l *Limiter) count(d Decision) {
	ctx := context.Background()
	if d.Allowed {
		if l.allowed != nil {
			l.allowed.Add(ctx, 1)
		}
		return
	}
	if l.rejected != nil {
		l.rejected.Add(ctx, 1)
	}
}

// Run sweeps expired windows on a fixed interval, independent of request
// traffic, until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := l.clock().Add(-windowLength)
			removed, err := l.store.Sweep(cutoff)
			if err != nil {
				l.log.Warn("sweep failed", slog.String("error", err.Error()))
				continue
			}
			if removed > 0 {
				l.log.Debug("swept expired rate limit windows", slog.Int("removed", removed))
			}
		}
	}
}
