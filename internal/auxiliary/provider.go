package auxiliary

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-recon/internal/config"
	"github.com/sells-group/invoice-recon/internal/resilience"
	"github.com/sells-group/invoice-recon/pkg/jina"
	"github.com/sells-group/invoice-recon/pkg/perplexity"
)

// New builds the configured Provider.
func New(cfg *config.Config) (Provider, error) {
	var s Searcher
	switch cfg.Auxiliary.Provider {
	case "", "none":
		return None{}, nil
	case "static":
		st, err := LoadStatic(cfg.Auxiliary.SignalsFile)
		if err != nil {
			return nil, err
		}
		s = st
	case "jina":
		s = NewJinaSearcher(jina.NewClient(cfg.Jina.Key, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL)))
	case "perplexity":
		s = NewPerplexitySearcher(perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		))
	default:
		return nil, eris.Errorf("auxiliary: unknown provider %q", cfg.Auxiliary.Provider)
	}

	guard := resilience.NewGuard("auxiliary."+s.Name(), cfg.Resilience, resilience.GuardOptions{
		RatePerSec: cfg.Auxiliary.RatePerSec,
		Timeout:    time.Duration(cfg.Auxiliary.TimeoutSecs) * time.Second,
	})
	return NewGuarded(s, guard, cfg.Auxiliary.MaxResults), nil
}
