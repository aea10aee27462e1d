package auxiliary

import (
	"context"
	"errors"

	"github.com/sells-group/invoice-recon/internal/model"
	"github.com/sells-group/invoice-recon/pkg/perplexity"
)

const perplexityPrompt = "You research vendors and accounts-payable compliance. " +
	"Answer briefly with facts relevant to validating the invoice, its vendor and the purchasing policy."

// PerplexitySearcher asks Perplexity for grounded vendor and policy notes.
type PerplexitySearcher struct {
	client perplexity.Client
}

// NewPerplexitySearcher creates a PerplexitySearcher.
func NewPerplexitySearcher(client perplexity.Client) *PerplexitySearcher {
	return &PerplexitySearcher{client: client}
}

// Name implements Searcher.
func (s *PerplexitySearcher) Name() string { return "perplexity" }

// Search implements Searcher. The answer is the first signal, followed by
// the sources it cites.
func (s *PerplexitySearcher) Search(ctx context.Context, q Query) ([]model.Signal, error) {
	temp := 0.0
	resp, err := s.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: perplexityPrompt},
			{Role: "user", Content: q.text()},
		},
		Temperature: &temp,
	})
	if err != nil {
		var se *perplexity.StatusError
		if errors.As(err, &se) {
			return nil, transientStatus(err, se.StatusCode)
		}
		return nil, err
	}

	var signals []model.Signal
	if answer := resp.Content(); answer != "" {
		ref := ""
		if len(resp.Citations) > 0 {
			ref = resp.Citations[0]
		}
		signals = append(signals, model.Signal{Title: "perplexity answer", Reference: ref, Snippet: truncate(answer)})
	}
	for _, r := range resp.SearchResults {
		signals = append(signals, model.Signal{Title: r.Title, Reference: r.URL})
	}
	return signals, nil
}
