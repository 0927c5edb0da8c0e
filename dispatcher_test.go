package discordbridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opengovern/discord-bridge/mock"
)

func newTestClient(t *testing.T, transport *mock.Transport, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithHTTPClient(&http.Client{Transport: transport}),
		WithBaseBackoff(20 * time.Millisecond),
	}, opts...)
	client, err := New("test-token", opts...)
	require.NoError(t, err)
	return client
}

func TestNoContentYieldsEmptySuccess(t *testing.T) {
	transport := mock.NewTransport(mock.NoContent())
	client := newTestClient(t, transport)

	resp, err := client.Request(context.Background(), http.MethodDelete, "/channels/1/messages/2", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.Status)
	require.Nil(t, resp.Data)
}

func TestSuccessCarriesRateLimitSnapshot(t *testing.T) {
	transport := mock.NewTransport(mock.Response{
		Status: http.StatusOK,
		Headers: map[string]string{
			"X-RateLimit-Limit":       "5",
			"X-RateLimit-Remaining":   "0",
			"X-RateLimit-Reset-After": "1.5",
			"X-RateLimit-Bucket":      "abcd1234",
		},
		Body: `{"id":"42"}`,
	})
	client := newTestClient(t, transport)

	resp, err := client.Request(context.Background(), http.MethodGet, "/channels/1", nil)
	require.NoError(t, err)
	require.NotNil(t, resp.RateLimit)
	require.Equal(t, 5, *resp.RateLimit.Limit)
	require.Equal(t, 0, *resp.RateLimit.Remaining)
	require.Equal(t, "abcd1234", resp.RateLimit.Bucket)

	// The tracker saw the update: the route is now exhausted.
	require.True(t, client.IsLimited(http.MethodGet, "/channels/1"))
}

func TestServerErrorRetriedWithLinearBackoff(t *testing.T) {
	var mu sync.Mutex
	var hits []time.Time
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":0,"message":"something broke"}`))
	}))
	defer server.Close()

	client, err := New("test-token",
		WithBaseURL(server.URL),
		WithMaxRetries(2),
		WithBaseBackoff(50*time.Millisecond),
	)
	require.NoError(t, err)

	_, err = client.Request(context.Background(), http.MethodGet, "/guilds/1", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusInternalServerError, apiErr.Status)
	require.Equal(t, "something broke", apiErr.Message)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, hits, 3)
	gap1 := hits[1].Sub(hits[0])
	gap2 := hits[2].Sub(hits[1])
	require.GreaterOrEqual(t, gap1, 50*time.Millisecond)
	require.Greater(t, gap2, gap1)
}

func TestRateLimitRetriedThenSurfaced(t *testing.T) {
	transport := mock.NewTransport(mock.RateLimited(0.02, false))
	client := newTestClient(t, transport, WithMaxRetries(2))

	_, err := client.Request(context.Background(), http.MethodPost, "/channels/1/messages", nil)

	var rle *RateLimitedError
	require.ErrorAs(t, err, &rle)
	require.InDelta(t, 0.02, rle.RetryAfter, 1e-9)
	require.False(t, rle.Global)
	require.Equal(t, 3, transport.Count())
}

func TestRateLimitRecoversWithinBudget(t *testing.T) {
	transport := mock.NewTransport(
		mock.RateLimited(0.02, false),
		mock.OK(`{"id":"1"}`),
	)
	client := newTestClient(t, transport)

	resp, err := client.Request(context.Background(), http.MethodPost, "/channels/1/messages", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Equal(t, 2, transport.Count())
}

func TestGlobalThrottleSuspendsUnrelatedRoutes(t *testing.T) {
	transport := mock.NewTransport(mock.RateLimited(0.5, true))
	client := newTestClient(t, transport, WithMaxRetries(0))

	_, err := client.Request(context.Background(), http.MethodGet, "/channels/1", nil)

	var rle *RateLimitedError
	require.ErrorAs(t, err, &rle)
	require.True(t, rle.Global)

	// A route never seen before must also wait out the suspension.
	require.True(t, client.IsLimited(http.MethodGet, "/guilds/9"))
	require.Greater(t, client.DelayFor(http.MethodGet, "/guilds/9"), 300*time.Millisecond)
}

func TestRetryAfterHeaderFallback(t *testing.T) {
	transport := mock.NewTransport(mock.Response{
		Status:  http.StatusTooManyRequests,
		Headers: map[string]string{"Retry-After": "3"},
	})
	client := newTestClient(t, transport, WithMaxRetries(0))

	_, err := client.Request(context.Background(), http.MethodGet, "/channels/1", nil)

	var rle *RateLimitedError
	require.ErrorAs(t, err, &rle)
	require.InDelta(t, 3.0, rle.RetryAfter, 1e-9)
}

func TestClientErrorSurfacesEnvelope(t *testing.T) {
	transport := mock.NewTransport(mock.Response{
		Status: http.StatusBadRequest,
		Body:   `{"code":50035,"message":"Invalid Form Body","errors":{"content":{"_errors":[{"code":"BASE_TYPE_REQUIRED","message":"This field is required"}]}}}`,
	})
	client := newTestClient(t, transport)

	_, err := client.Request(context.Background(), http.MethodPost, "/channels/1/messages", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Equal(t, 50035, apiErr.Code)
	require.Equal(t, "Invalid Form Body", apiErr.Message)
	require.Contains(t, string(apiErr.Errors), "BASE_TYPE_REQUIRED")
	require.Equal(t, 1, transport.Count(), "client errors are not retried")
}

func TestTimeoutSurfacedImmediately(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	client, err := New("test-token",
		WithBaseURL(server.URL),
		WithTimeout(50*time.Millisecond),
	)
	require.NoError(t, err)

	_, err = client.Request(context.Background(), http.MethodGet, "/channels/1", nil)

	var toErr *NetworkTimeoutError
	require.ErrorAs(t, err, &toErr)
	require.Equal(t, 50*time.Millisecond, toErr.Timeout)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, hits, "timeouts must not be retried")
}

func TestOversizeAttachmentFailsBeforeTransfer(t *testing.T) {
	transport := mock.NewTransport(mock.OK(`{}`))
	client := newTestClient(t, transport, WithMaxAttachmentSize(10))

	_, err := client.Request(context.Background(), http.MethodPost, "/channels/1/messages", &RequestOptions{
		Files: []File{{Name: "big.png", Data: make([]byte, 11)}},
	})

	var tooBig *PayloadTooLargeError
	require.ErrorAs(t, err, &tooBig)
	require.Equal(t, "big.png", tooBig.Name)
	require.Equal(t, int64(11), tooBig.Size)
	require.Equal(t, int64(10), tooBig.Ceiling)
	require.Zero(t, transport.Count(), "no transfer may happen for oversize payloads")
}

func TestMultipartBodyMergesPayloadAndFiles(t *testing.T) {
	transport := mock.NewTransport(mock.OK(`{}`))
	client := newTestClient(t, transport)

	_, err := client.Request(context.Background(), http.MethodPost, "/channels/1/messages", &RequestOptions{
		Body:  map[string]string{"content": "hello"},
		Files: []File{{Name: "note.txt", ContentType: "text/plain", Data: []byte("attached")}},
	})
	require.NoError(t, err)

	reqs := transport.Requests()
	require.Len(t, reqs, 1)
	require.True(t, strings.HasPrefix(reqs[0].Header.Get("Content-Type"), "multipart/form-data"))

	body := string(transport.Bodies()[0])
	require.Contains(t, body, `name="payload_json"`)
	require.Contains(t, body, `"content":"hello"`)
	require.Contains(t, body, `filename="note.txt"`)
	require.Contains(t, body, "attached")
}

func TestRequestBuildingHeadersAndQuery(t *testing.T) {
	transport := mock.NewTransport(mock.OK(`{}`))
	client := newTestClient(t, transport)

	_, err := client.Request(context.Background(), http.MethodGet, "/guilds/1/audit-logs", &RequestOptions{
		Query:   map[string]string{"limit": "50", "before": ""},
		Reason:  "routine cleanup",
		Headers: map[string]string{"X-Custom": "yes", "User-Agent": "override/1.0"},
	})
	require.NoError(t, err)

	req := transport.Requests()[0]
	require.Equal(t, "/api/v10/guilds/1/audit-logs", req.URL.Path)
	require.Equal(t, "limit=50", req.URL.RawQuery, "empty query values are omitted")
	require.Equal(t, "routine%20cleanup", req.Header.Get("X-Audit-Log-Reason"))
	require.Equal(t, "yes", req.Header.Get("X-Custom"))
	require.Equal(t, "override/1.0", req.Header.Get("User-Agent"), "user headers are merged last")
	require.Equal(t, "Bot test-token", req.Header.Get("Authorization"))
}
