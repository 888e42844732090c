package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/localbook/backend/pkg/circuitbreaker"
	"github.com/localbook/backend/pkg/retry"
)

func newTestClient(baseURL string, failureThreshold int) *Client {
	clientConfig := openai.DefaultConfig("test-key")
	clientConfig.BaseURL = baseURL + "/v1"

	return &Client{
		client:         openai.NewClientWithConfig(clientConfig),
		model:          "test-model",
		embeddingModel: "test-embed",
		timeout:        2 * time.Second,
		cb: circuitbreaker.New("llm-test", circuitbreaker.Config{
			FailureThreshold: uint32(failureThreshold),
			SuccessThreshold: 1,
			OpenTimeout:      time.Minute,
			Logger:           zap.NewNop(),
		}),
		retryConfig: retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   1.0,
			Logger:       zap.NewNop(),
		},
	}
}

func TestEmbedBatchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","model":"test-embed","data":[
			{"object":"embedding","index":0,"embedding":[0.1,0.2]},
			{"object":"embedding","index":1,"embedding":[0.3,0.4]}
		]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5)

	got, err := c.EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []float32{0.1, 0.2}, got[0])
	assert.Equal(t, []float32{0.3, 0.4}, got[1])
}

func TestEmbedBatchRetriesInsideClosedBreaker(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "backend down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1)

	// The closed breaker admits one execution; the retry policy inside it
	// exhausts all attempts against the backend before failing.
	_, err := c.EmbedBatch(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.Equal(t, int64(3), requests.Load())

	// The breaker is now open: the next call is rejected up front, with
	// no retry attempts reaching the backend.
	_, err = c.EmbedBatch(context.Background(), []string{"text"})
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, int64(3), requests.Load())
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1", 5)

	got, err := c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}
