package auth

import (
	"sync"

	"golang.org/x/time/rate"
)

// Fallback limits when the config leaves rate limiting unset.
const (
	defaultRPS   = 5
	defaultBurst = 10
)

// limiterPool hands out one token bucket per api key (or client ip for
// unauthenticated callers), created on first use.
type limiterPool struct {
	cfg SecConfig

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func newLimiterPool(cfg SecConfig) *limiterPool {
	return &limiterPool{cfg: cfg, buckets: make(map[string]*rate.Limiter)}
}

func (p *limiterPool) Allow(key string) bool {
	p.mu.Lock()
	l, ok := p.buckets[key]
	if !ok {
		rps := p.cfg.RPS
		if rps <= 0 {
			rps = defaultRPS
		}
		burst := p.cfg.Burst
		if burst <= 0 {
			burst = defaultBurst
		}
		l = rate.NewLimiter(rate.Limit(rps), burst)
		p.buckets[key] = l
	}
	p.mu.Unlock()
	return l.Allow()
}
