package auxiliary

import (
	"context"
	"errors"

	"github.com/sells-group/invoice-recon/internal/model"
	"github.com/sells-group/invoice-recon/pkg/jina"
)

// JinaSearcher searches the web through Jina AI.
type JinaSearcher struct {
	client jina.Client
}

// NewJinaSearcher creates a JinaSearcher.
func NewJinaSearcher(client jina.Client) *JinaSearcher {
	return &JinaSearcher{client: client}
}

// Name implements Searcher.
func (s *JinaSearcher) Name() string { return "jina" }

// Search implements Searcher.
func (s *JinaSearcher) Search(ctx context.Context, q Query) ([]model.Signal, error) {
	resp, err := s.client.Search(ctx, q.text())
	if err != nil {
		var se *jina.StatusError
		if errors.As(err, &se) {
			return nil, transientStatus(err, se.StatusCode)
		}
		return nil, err
	}

	signals := make([]model.Signal, 0, len(resp.Data))
	for _, r := range resp.Data {
		snippet := r.Description
		if snippet == "" {
			snippet = r.Content
		}
		signals = append(signals, model.Signal{
			Title:     r.Title,
			Reference: r.URL,
			Snippet:   truncate(snippet),
		})
	}
	return signals, nil
}
