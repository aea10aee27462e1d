// Package monitoring watches recent reconciliation runs and raises webhook
// alerts when the flag rate or verifier confidence drifts past its threshold.
package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/invoice-recon/internal/config"
)

// Checker runs periodic alert checks in the background. An alert type is
// delivered when it first fires and again only after it has cleared.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	log       *zap.Logger

	mu     sync.Mutex
	active map[AlertType]bool
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		log:       zap.L().With(zap.String("component", "monitoring.checker")),
		active:    make(map[AlertType]bool),
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	c.log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check collects one snapshot and delivers the alerts that were not already
// active on the previous check. It returns the newly raised alerts.
func (c *Checker) Check(ctx context.Context) []Alert {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		c.log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return nil
	}

	raised := c.transition(c.alerter.Evaluate(snap))
	if len(raised) == 0 {
		c.log.Debug("monitoring: no new alerts",
			zap.Int("reconciled", snap.Reconciled),
			zap.Float64("flag_rate", snap.FlagRate),
		)
		return nil
	}

	sent := c.alerter.SendAlerts(ctx, raised)
	c.log.Info("monitoring: alert check complete",
		zap.Int("alerts_raised", len(raised)),
		zap.Int("alerts_sent", sent),
	)
	return raised
}

// transition replaces the active set with the types in firing and returns
// the alerts whose type was not active before.
func (c *Checker) transition(firing []Alert) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[AlertType]bool, len(firing))
	var raised []Alert
	for _, a := range firing {
		next[a.Type] = true
		if !c.active[a.Type] {
			raised = append(raised, a)
		}
	}
	c.active = next
	return raised
}
