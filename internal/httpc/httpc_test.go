package httpc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRequest(url string) RequestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
}

func TestTransportSetsUserAgent(t *testing.T) {
	var seen atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(Options{Timeout: time.Second, UserAgent: "movieagent-test"})
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "movieagent-test", seen.Load())
}

func TestCallerRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	caller := &Caller{HTTP: srv.Client(), Service: "test", Retries: 1, Delay: time.Millisecond}
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, caller.JSON(context.Background(), getRequest(srv.URL), &out))
	assert.True(t, out.OK)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCallerDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	caller := &Caller{HTTP: srv.Client(), Service: "tmdb", Retries: 3, Delay: time.Millisecond}
	err := caller.JSON(context.Background(), getRequest(srv.URL), nil)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, "tmdb", statusErr.Service)
	assert.Equal(t, "bad key", statusErr.Body)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCallerDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	caller := &Caller{HTTP: srv.Client(), Service: "omdb"}
	var out map[string]any
	err := caller.JSON(context.Background(), getRequest(srv.URL), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "omdb: decode response")
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&StatusError{StatusCode: http.StatusTooManyRequests}))
	assert.True(t, Retryable(&StatusError{StatusCode: http.StatusBadGateway}))
	assert.False(t, Retryable(&StatusError{StatusCode: http.StatusNotFound}))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(errors.New("boom")))
	assert.False(t, Retryable(nil))
}

func TestTransportLimiterPerHost(t *testing.T) {
	tr := NewTransport(nil, "", 5)
	a := tr.limiter("a.example")
	b := tr.limiter("b.example")
	require.NotNil(t, a)
	assert.NotSame(t, a, b)
	assert.Same(t, a, tr.limiter("a.example"))

	assert.Nil(t, NewTransport(nil, "", 0).limiter("a.example"))
}
