package resilience

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/invoice-recon/internal/config"
)

// Guard wraps one external collaborator: calls wait for the rate limiter,
// pass the circuit breaker and are retried on transient errors. Each
// attempt is bounded by the timeout.
type Guard struct {
	name    string
	retry   RetryConfig
	breaker *CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
}

// GuardOptions configures NewGuard.
type GuardOptions struct {
	RatePerSec float64 // <= 0 disables rate limiting
	Timeout    time.Duration
}

// NewGuard creates a Guard for the named collaborator.
func NewGuard(name string, c config.ResilienceConfig, opts GuardOptions) *Guard {
	rc, cc := FromConfig(c)
	rc.OnRetry = RetryLogger(name)
	cc.OnStateChange = func(from, to CircuitState) {
		zap.L().Warn("resilience: circuit state change",
			zap.String("collaborator", name),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}

	g := &Guard{
		name:    name,
		retry:   rc,
		breaker: NewCircuitBreaker(cc),
		timeout: opts.Timeout,
	}
	if opts.RatePerSec > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), max(1, int(opts.RatePerSec)))
	}
	return g
}

// Name returns the collaborator name.
func (g *Guard) Name() string { return g.name }

// Breaker exposes the guard's circuit breaker.
func (g *Guard) Breaker() *CircuitBreaker { return g.breaker }

// Call runs fn through g.
func Call[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return zero, eris.Wrapf(err, "resilience: %s rate limit wait", g.name)
		}
	}
	return ExecuteVal(ctx, g.breaker, func(ctx context.Context) (T, error) {
		return DoVal(ctx, g.retry, func(ctx context.Context) (T, error) {
			if g.timeout <= 0 {
				return fn(ctx)
			}
			actx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()
			return fn(actx)
		})
	})
}
