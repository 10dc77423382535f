package zoom

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queueTestServer serves the OAuth exchange plus meeting creation,
// tracking how many creations ever run at the same time.
func queueTestServer(t *testing.T, inFlight, maxInFlight *int32, fail func(call int32) bool) *httptest.Server {
	t.Helper()
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
	})
	mux.HandleFunc("/users/me/meetings", func(w http.ResponseWriter, r *http.Request) {
		call := atomic.AddInt32(&calls, 1)
		cur := atomic.AddInt32(inFlight, 1)
		for {
			prev := atomic.LoadInt32(maxInFlight)
			if cur <= prev || atomic.CompareAndSwapInt32(maxInFlight, prev, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(inFlight, -1)
		if fail != nil && fail(call) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":81234567890,"start_url":"s","join_url":"j","password":"p"}`))
	})
	return httptest.NewServer(mux)
}

func queueTestClient(apiURL string) *Client {
	cfg := testZoomConfig(apiURL + "/oauth/token")
	cfg.APIBaseURL = apiURL
	cfg.HostEmail = "me"
	c := NewClient(cfg, NewTokenManager(cfg, nil), nil)
	c.baseBackoff = time.Millisecond
	return c
}

func TestCreationQueueSerializesConcurrentCalls(t *testing.T) {
	var inFlight, maxInFlight int32
	ts := queueTestServer(t, &inFlight, &maxInFlight, nil)
	defer ts.Close()

	q := newCreationQueue(queueTestClient(ts.URL), time.Millisecond, 0, nil)
	defer q.Stop()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = q.EnqueueCreate(context.Background(), futureRequest(), "")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}
	assert.Equal(t, int32(1), maxInFlight, "provider creations must run one at a time")
}

func TestCreationQueueSurvivesJobFailure(t *testing.T) {
	var inFlight, maxInFlight int32
	// First job fails all three attempts; the jobs behind it still run.
	ts := queueTestServer(t, &inFlight, &maxInFlight, func(call int32) bool { return call <= 3 })
	defer ts.Close()

	q := newCreationQueue(queueTestClient(ts.URL), time.Millisecond, 0, nil)
	defer q.Stop()

	_, err := q.EnqueueCreate(context.Background(), futureRequest(), "")
	require.Error(t, err)

	m, err := q.EnqueueCreate(context.Background(), futureRequest(), "")
	require.NoError(t, err)
	assert.NotZero(t, m.ID)
}

func TestCreationQueueAppliesSpacing(t *testing.T) {
	var inFlight, maxInFlight int32
	ts := queueTestServer(t, &inFlight, &maxInFlight, nil)
	defer ts.Close()

	spacing := 50 * time.Millisecond
	q := newCreationQueue(queueTestClient(ts.URL), spacing, 0, nil)
	defer q.Stop()

	start := time.Now()
	_, err := q.EnqueueCreate(context.Background(), futureRequest(), "")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), spacing, "each job waits the spacing interval before the provider call")
}

func TestCreationQueueClosed(t *testing.T) {
	var inFlight, maxInFlight int32
	ts := queueTestServer(t, &inFlight, &maxInFlight, nil)
	defer ts.Close()

	q := newCreationQueue(queueTestClient(ts.URL), time.Millisecond, 0, nil)
	q.Stop()

	_, err := q.EnqueueCreate(context.Background(), futureRequest(), "")
	assert.ErrorIs(t, err, ErrQueueClosed)
}
