// Package ratelimiter throttles requests per key (usually the client IP)
// with token buckets. Idle buckets expire from an in-memory cache.
package ratelimiter

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

var ErrInvalidConfig = errors.New("ratelimiter: invalid configuration")

type Config struct {
	// Requests allowed per Window; also the burst size.
	Requests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"10"`
	Window   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

type Result struct {
	Limit      int
	Remaining  int
	Allowed    bool
	RetryAfter time.Duration
	ResetAt    time.Time
}

type Limiter struct {
	cfg     Config
	every   rate.Limit
	buckets *cache.Cache
	mu      sync.Mutex
	now     func() time.Time
}

type Option func(*Limiter)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(cfg Config, opts ...Option) (*Limiter, error) {
	if cfg.Requests <= 0 || cfg.Window <= 0 {
		return nil, fmt.Errorf("%w: requests=%d window=%s", ErrInvalidConfig, cfg.Requests, cfg.Window)
	}
	l := &Limiter{
		cfg:     cfg,
		every:   rate.Every(cfg.Window / time.Duration(cfg.Requests)),
		buckets: cache.New(2*cfg.Window, cfg.Window),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Allow consumes one token for key.
func (l *Limiter) Allow(key string) Result {
	now := l.now()
	b := l.bucket(key)

	res := Result{Limit: l.cfg.Requests}
	r := b.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		res.RetryAfter = delay
		res.ResetAt = now.Add(delay)
		return res
	}
	res.Allowed = true
	res.Remaining = int(math.Max(0, math.Floor(b.TokensAt(now))))
	missing := float64(l.cfg.Requests) - b.TokensAt(now)
	res.ResetAt = now.Add(time.Duration(missing * float64(time.Second) / float64(l.every)))
	return res
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.buckets.Get(key); ok {
		b := v.(*rate.Limiter)
		l.buckets.SetDefault(key, b)
		return b
	}
	b := rate.NewLimiter(l.every, l.cfg.Requests)
	l.buckets.SetDefault(key, b)
	return b
}
