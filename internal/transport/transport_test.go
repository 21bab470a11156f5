package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryingClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := NewRetryingClient(WithRetryWait(time.Millisecond, 2*time.Millisecond))
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, calls.Load())
}

func TestRetryingClient_DoesNotRetryRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewRetryingClient(WithRetryWait(time.Millisecond, 2*time.Millisecond))
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.EqualValues(t, 1, calls.Load())
}

func TestRetryPolicy(t *testing.T) {
	retry, err := RetryPolicy(context.Background(), &http.Response{StatusCode: http.StatusTooManyRequests}, nil)
	require.NoError(t, err)
	assert.False(t, retry)

	retry, err = RetryPolicy(context.Background(), &http.Response{StatusCode: http.StatusServiceUnavailable}, nil)
	require.NoError(t, err)
	assert.True(t, retry)
}
