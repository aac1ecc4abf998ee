package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func newTestOpenAI(t *testing.T, url string) *OpenAIProvider {
	t.Helper()
	p, err := NewOpenAIProvider(OpenAIConfig{
		APIKey:     "test-key",
		Model:      "text-embedding-3-large",
		BaseURL:    url,
		Dimensions: 3,
	}, WithRetryConfig(fastRetry()))
	require.NoError(t, err)
	return p
}

func writeEmbedding(w http.ResponseWriter, vec []float32, tokens int) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"data":  []map[string]interface{}{{"embedding": vec, "index": 0}},
		"model": "text-embedding-3-large",
		"usage": map[string]int{"prompt_tokens": tokens, "total_tokens": tokens},
	})
}

func TestOpenAIProvider_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello world", body["input"])
		assert.Equal(t, "text-embedding-3-large", body["model"])
		assert.EqualValues(t, 3, body["dimensions"])

		writeEmbedding(w, []float32{0.1, 0.2, 0.3}, 7)
	}))
	defer server.Close()

	p := newTestOpenAI(t, server.URL+"/")
	emb, err := p.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, emb.Vector)
	assert.Equal(t, 7, emb.Tokens)
	assert.Equal(t, 3, p.Dimensions())
	assert.Equal(t, "text-embedding-3-large", p.Model())
	assert.NoError(t, p.Close())
}

func TestOpenAIProvider_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		writeEmbedding(w, []float32{1, 0, 0}, 2)
	}))
	defer server.Close()

	emb, err := newTestOpenAI(t, server.URL).Embed(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, emb.Vector)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestOpenAIProvider_Unauthorized(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestOpenAI(t, server.URL).Embed(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProviderFailed))
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "client errors are not retried")
}

func TestOpenAIProvider_EmptyData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[],"usage":{"total_tokens":0}}`))
	}))
	defer server.Close()

	_, err := newTestOpenAI(t, server.URL).Embed(context.Background(), "text")
	assert.ErrorIs(t, err, ErrProviderFailed)
}

func TestOpenAIProvider_MissingUsageFallsBackToEstimate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.5,0.5,0.5]}]}`))
	}))
	defer server.Close()

	emb, err := newTestOpenAI(t, server.URL).Embed(context.Background(), "twelve chars")
	require.NoError(t, err)
	assert.Equal(t, 3, emb.Tokens)
}

func TestOpenAIProvider_EmptyText(t *testing.T) {
	p := newTestOpenAI(t, "http://127.0.0.1:0")
	_, err := p.Embed(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestOpenAIProvider_NoCredential(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{APIKeyEnv: "KIOKU_TEST_KEY"})
	require.ErrorIs(t, err, ErrNoCredential)
	assert.Contains(t, err.Error(), "KIOKU_TEST_KEY")
}

func TestRetryWithBackoff(t *testing.T) {
	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		_, err := retryWithBackoff(context.Background(), fastRetry(), func() (int, error) {
			calls++
			return 0, &permanentError{errors.New("bad request")}
		})
		assert.EqualError(t, err, "bad request")
		assert.Equal(t, 1, calls)
	})

	t.Run("returns last error after max retries", func(t *testing.T) {
		calls := 0
		_, err := retryWithBackoff(context.Background(), fastRetry(), func() (int, error) {
			calls++
			return 0, errors.New("flaky")
		})
		assert.EqualError(t, err, "flaky")
		assert.Equal(t, 3, calls)
	})

	t.Run("honors cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := retryWithBackoff(ctx, fastRetry(), func() (int, error) {
			return 0, errors.New("flaky")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
