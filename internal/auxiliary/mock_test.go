package auxiliary

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/invoice-recon/internal/model"
	"github.com/sells-group/invoice-recon/pkg/jina"
	"github.com/sells-group/invoice-recon/pkg/perplexity"
)

type mockJinaClient struct {
	mock.Mock
}

func (m *mockJinaClient) Search(ctx context.Context, query string, opts ...jina.SearchOption) (*jina.SearchResponse, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jina.SearchResponse), args.Error(1)
}

type mockPerplexityClient struct {
	mock.Mock
}

func (m *mockPerplexityClient) ChatCompletion(ctx context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*perplexity.ChatCompletionResponse), args.Error(1)
}

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) Name() string { return "mock" }

func (m *mockSearcher) Search(ctx context.Context, q Query) ([]model.Signal, error) {
	args := m.Called(ctx, q)
	signals, _ := args.Get(0).([]model.Signal)
	return signals, args.Error(1)
}
