package resilience

import (
	"time"

	"github.com/sells-group/invoice-recon/internal/config"
)

// FromConfig converts resilience configuration into retry and breaker
// settings. Zero values keep the defaults.
func FromConfig(c config.ResilienceConfig) (RetryConfig, CircuitBreakerConfig) {
	rc := DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		rc.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoffMs > 0 {
		rc.InitialBackoff = time.Duration(c.InitialBackoffMs) * time.Millisecond
	}
	if c.MaxBackoffMs > 0 {
		rc.MaxBackoff = time.Duration(c.MaxBackoffMs) * time.Millisecond
	}

	cc := DefaultCircuitBreakerConfig()
	if c.FailureThreshold > 0 {
		cc.FailureThreshold = c.FailureThreshold
	}
	if c.ResetTimeoutSecs > 0 {
		cc.ResetTimeout = time.Duration(c.ResetTimeoutSecs) * time.Second
	}
	return rc, cc
}
