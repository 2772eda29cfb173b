package salesforce

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) retryConfig {
	return retryConfig{
		maxAttempts:    attempts,
		initialBackoff: time.Millisecond,
		maxBackoff:     5 * time.Millisecond,
		multiplier:     2.0,
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &statusError{code: http.StatusTooManyRequests, msg: "sf: query failed"}, true},
		{"server error", &statusError{code: http.StatusBadGateway, msg: "sf: query failed"}, true},
		{"bad request", &statusError{code: http.StatusBadRequest, msg: "sf: query failed"}, false},
		{"unauthorized", &statusError{code: http.StatusUnauthorized, msg: "sf: query failed"}, false},
		{"wrapped server error", eris.Wrap(&statusError{code: 503, msg: "busy"}, "sf: query"), true},
		{"connection reset", eris.New("read tcp: connection reset by peer"), true},
		{"plain error", eris.New("malformed query"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := retry(context.Background(), fastRetry(3), func(context.Context) (int, error) {
		calls++
		return 0, &statusError{code: http.StatusBadRequest, msg: "bad soql"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryRecoversFromTransientError(t *testing.T) {
	calls := 0
	val, err := retry(context.Background(), fastRetry(3), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &statusError{code: http.StatusServiceUnavailable, msg: "busy"}
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := retry(context.Background(), fastRetry(2), func(context.Context) (int, error) {
		calls++
		return 0, &statusError{code: 500, msg: "boom"}
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := retry(ctx, fastRetry(5), func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, &statusError{code: 500, msg: "boom"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestQueryPageDoesNotRetryByDefault(t *testing.T) {
	var hits atomic.Int64
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"totalSize":1,"done":true,"records":[{"Id":"001","Name":"Acme"}]}`)
	})

	_, err := client.QueryPage(context.Background(), "SELECT Id FROM Account")
	require.Error(t, err)
	assert.Equal(t, int64(1), hits.Load())
}

func TestQueryPageRetriesServerErrors(t *testing.T) {
	var hits atomic.Int64
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"totalSize":1,"done":true,"records":[{"Id":"001","Name":"Acme"}]}`)
	})
	client.retry = fastRetry(3)

	page, err := client.QueryPage(context.Background(), "SELECT Id FROM Account")
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalSize)
	assert.Equal(t, int64(3), hits.Load())
}

func TestQueryPageDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int64
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})
	client.retry = fastRetry(3)

	_, err := client.QueryPage(context.Background(), "SELECT bogus FROM Account")
	require.Error(t, err)
	assert.Equal(t, int64(1), hits.Load())
}

func TestWithRetryAttempts(t *testing.T) {
	c := NewClient(StaticTokenProvider{Tok: Token{AccessToken: "t", InstanceURL: "http://x"}},
		WithRetryAttempts(5))
	assert.Equal(t, 5, c.retry.maxAttempts)
}
