// Package auxiliary looks up vendor, compliance and web signals that are
// attached to evidence bundles. Lookups never fail: a provider error becomes a
// single synthetic "search_error" signal.
package auxiliary

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/invoice-recon/internal/model"
	"github.com/sells-group/invoice-recon/internal/resilience"
)

// ErrorTitle is the title of the synthetic signal produced by a failed lookup.
const ErrorTitle = "search_error"

// maxSnippet bounds the snippet length of a signal.
const maxSnippet = 500

// Query identifies what to look up. Key is the invoice id (or the raw query
// when there is none); Text is the free-text search phrasing.
type Query struct {
	Key  string `json:"key"`
	Text string `json:"query"`
}

func (q Query) text() string {
	if q.Text != "" {
		return q.Text
	}
	return q.Key
}

// Provider returns auxiliary signals for a query. Implementations never
// return an error.
type Provider interface {
	Lookup(ctx context.Context, q Query) []model.Signal
}

// Searcher is a signal backend that may fail.
type Searcher interface {
	Name() string
	Search(ctx context.Context, q Query) ([]model.Signal, error)
}

// None is a Provider that returns no signals.
type None struct{}

// Lookup implements Provider.
func (None) Lookup(context.Context, Query) []model.Signal { return nil }

// Guarded adapts a Searcher into a Provider. Calls run through a resilience
// guard and results are capped at maxResults.
type Guarded struct {
	searcher   Searcher
	guard      *resilience.Guard
	maxResults int
}

// NewGuarded wraps s. A nil guard calls the searcher directly.
func NewGuarded(s Searcher, guard *resilience.Guard, maxResults int) *Guarded {
	return &Guarded{searcher: s, guard: guard, maxResults: maxResults}
}

// Lookup implements Provider.
func (g *Guarded) Lookup(ctx context.Context, q Query) []model.Signal {
	start := time.Now()
	var (
		signals []model.Signal
		err     error
	)
	if g.guard != nil {
		signals, err = resilience.Call(ctx, g.guard, func(ctx context.Context) ([]model.Signal, error) {
			return g.searcher.Search(ctx, q)
		})
	} else {
		signals, err = g.searcher.Search(ctx, q)
	}
	if err != nil {
		zap.L().Warn("auxiliary: lookup failed",
			zap.String("provider", g.searcher.Name()),
			zap.String("key", q.Key),
			zap.Error(err),
		)
		return []model.Signal{ErrorSignal(err)}
	}

	if g.maxResults > 0 && len(signals) > g.maxResults {
		signals = signals[:g.maxResults]
	}
	zap.L().Debug("auxiliary: lookup complete",
		zap.String("provider", g.searcher.Name()),
		zap.Int("signals", len(signals)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return signals
}

// ErrorSignal renders a lookup failure as a signal.
func ErrorSignal(err error) model.Signal {
	return model.Signal{Title: ErrorTitle, Reference: "", Snippet: err.Error()}
}

// transientStatus marks HTTP status errors worth retrying.
func transientStatus(err error, code int) error {
	if resilience.IsTransientHTTPStatus(code) {
		return resilience.NewTransientError(err, code)
	}
	return err
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxSnippet {
		return s
	}
	return string(r[:maxSnippet])
}
