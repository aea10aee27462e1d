package perplexity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCompletion(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer pk", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "c1",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Acme Corp is a verified vendor."}}],
			"citations": ["https://example.com/acme"],
			"search_results": [{"title": "Acme profile", "url": "https://example.com/acme"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 8}
		}`))
	}))
	defer srv.Close()

	temp := 0.1
	resp, err := NewClient("pk", WithBaseURL(srv.URL)).ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages:    []Message{{Role: "user", Content: "acme vendor risk"}},
		Temperature: &temp,
	})
	require.NoError(t, err)

	assert.Equal(t, defaultModel, got.Model)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, "Acme Corp is a verified vendor.", resp.Content())
	assert.Equal(t, []string{"https://example.com/acme"}, resp.Citations)
	require.Len(t, resp.SearchResults, 1)
	assert.Equal(t, "Acme profile", resp.SearchResults[0].Title)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
}

func TestChatCompletion_ModelOverrides(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient("pk", WithBaseURL(srv.URL), WithModel("sonar"))
	resp, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "sonar", got.Model)
	assert.Equal(t, "", resp.Content())

	_, err = c.ChatCompletion(context.Background(), ChatCompletionRequest{Model: "sonar-reasoning"})
	require.NoError(t, err)
	assert.Equal(t, "sonar-reasoning", got.Model)
}

func TestChatCompletion_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	_, err := NewClient("pk", WithBaseURL(srv.URL)).ChatCompletion(context.Background(), ChatCompletionRequest{})
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestChatCompletion_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewClient("pk", WithBaseURL(srv.URL), WithHTTPClient(srv.Client())).ChatCompletion(ctx, ChatCompletionRequest{})
	assert.Error(t, err)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("pk", WithBaseURL(""), WithModel("")).(*httpClient)
	assert.Equal(t, defaultBaseURL, c.baseURL)
	assert.Equal(t, defaultModel, c.model)
	assert.Equal(t, 60*time.Second, c.http.Timeout)
}
