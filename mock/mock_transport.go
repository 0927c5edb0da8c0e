// Package mock provides a scripted http.RoundTripper for testing code
// built on the SDK without a network. Responses are played back in
// order; the last one repeats once the script runs out. Every request
// that reaches the transport is recorded, including its body.
package mock

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
)

// Response is one scripted reply.
type Response struct {
	Status  int
	Headers map[string]string
	Body    string
}

// OK returns a scripted 200 response with the given JSON body.
func OK(body string) Response {
	return Response{Status: http.StatusOK, Body: body}
}

// NoContent returns a scripted 204 response.
func NoContent() Response {
	return Response{Status: http.StatusNoContent}
}

// RateLimited returns a scripted 429 with the standard throttle envelope.
func RateLimited(retryAfter float64, global bool) Response {
	return Response{
		Status:  http.StatusTooManyRequests,
		Headers: map[string]string{"Retry-After": strconv.Itoa(int(retryAfter + 0.5))},
		Body:    fmt.Sprintf(`{"message":"You are being rate limited.","retry_after":%g,"global":%t}`, retryAfter, global),
	}
}

// ServerError returns a scripted 5xx with a minimal error envelope.
func ServerError(status int) Response {
	return Response{Status: status, Body: fmt.Sprintf(`{"code":0,"message":"upstream failure %d"}`, status)}
}

// Transport is a scripted http.RoundTripper. Safe for concurrent use.
type Transport struct {
	mu        sync.Mutex
	responses []Response
	next      int

	requests []*http.Request
	bodies   [][]byte
}

func NewTransport(responses ...Response) *Transport {
	return &Transport{responses: responses}
}

// Append adds more scripted responses to the end of the script.
func (t *Transport) Append(responses ...Response) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responses = append(t.responses, responses...)
}

// Requests returns the requests seen so far, in arrival order.
func (t *Transport) Requests() []*http.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*http.Request, len(t.requests))
	copy(out, t.requests)
	return out
}

// Bodies returns the recorded request bodies, index-aligned with
// Requests.
func (t *Transport) Bodies() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.bodies))
	copy(out, t.bodies)
	return out
}

// Count returns how many requests reached the transport.
func (t *Transport) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}

	t.mu.Lock()
	t.requests = append(t.requests, req)
	t.bodies = append(t.bodies, body)
	if len(t.responses) == 0 {
		t.mu.Unlock()
		return nil, fmt.Errorf("mock: no scripted responses")
	}
	scripted := t.responses[t.next]
	if t.next < len(t.responses)-1 {
		t.next++
	}
	t.mu.Unlock()

	header := make(http.Header)
	for k, v := range scripted.Headers {
		header.Set(k, v)
	}
	if header.Get("Content-Type") == "" && scripted.Body != "" {
		header.Set("Content-Type", "application/json")
	}

	return &http.Response{
		StatusCode: scripted.Status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader([]byte(scripted.Body))),
		Request:    req,
	}, nil
}
