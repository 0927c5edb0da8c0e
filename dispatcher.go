// dispatcher.go
// --------------
// The Dispatcher owns the full life of one logical call: building the
// outgoing request, waiting on the route bucket, performing the transfer
// with a timeout, classifying the response, feeding rate-limit headers
// back to the tracker, and retrying within the shared budget.
//
// Retry policy:
// - 429: wait the server-requested retry_after, then resubmit.
// - >= 500: linear backoff (attempt number times the base delay).
// - Timeouts are surfaced immediately and never retried here; without
//   idempotency guarantees only the caller can decide to resubmit.
// Budget exhaustion surfaces the last failure, not a synthetic one.
package discordbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dispatcher handles request building, retry logic, and consulting the
// client's Limiter.
type Dispatcher struct {
	sdk *Client
}

func newDispatcher(sdk *Client) *Dispatcher {
	return &Dispatcher{sdk: sdk}
}

// Do executes one logical call against the API, retrying within the
// budget, and returns the terminal result.
func (d *Dispatcher) Do(ctx context.Context, method, path string, opts *RequestOptions) (*Response, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}
	cfg := &d.sdk.config

	for _, f := range opts.Files {
		if size := int64(len(f.Data)); size > cfg.MaxAttachmentSize {
			return nil, &PayloadTooLargeError{Name: f.Name, Size: size, Ceiling: cfg.MaxAttachmentSize}
		}
	}

	routeKey := RouteKey(method, path)
	log := d.sdk.logger.With(
		zap.String("request_id", uuid.NewString()),
		zap.String("route", routeKey),
	)

	var lastErr error
	for attempt := 0; ; attempt++ {
		if d.sdk.pacer != nil {
			if err := d.sdk.pacer.Wait(ctx); err != nil {
				return nil, err
			}
		}
		if err := d.sdk.limiter.Acquire(ctx, routeKey); err != nil {
			return nil, err
		}
		resp, err := d.transfer(ctx, method, path, opts, routeKey)
		d.sdk.limiter.Release(routeKey)
		if err != nil {
			// Timeouts and transport failures are terminal at this layer.
			return nil, err
		}

		switch {
		case resp.Status == http.StatusTooManyRequests:
			rle := d.classifyThrottle(resp)
			lastErr = rle
			if attempt >= cfg.MaxRetries {
				log.Debug("rate limit retry budget exhausted", zap.Int("attempts", attempt+1))
				return nil, lastErr
			}
			wait := time.Duration(rle.RetryAfter * float64(time.Second))
			log.Debug("rate limited, retrying",
				zap.Duration("wait", wait),
				zap.Bool("global", rle.Global),
				zap.Int("attempt", attempt+1))
			if err := sleepContext(ctx, wait); err != nil {
				return nil, err
			}

		case resp.Status >= http.StatusInternalServerError:
			lastErr = decodeAPIError(resp)
			if attempt >= cfg.MaxRetries {
				log.Debug("server error retry budget exhausted",
					zap.Int("status", resp.Status),
					zap.Int("attempts", attempt+1))
				return nil, lastErr
			}
			wait := time.Duration(attempt+1) * cfg.BaseBackoff
			log.Debug("server error, retrying",
				zap.Int("status", resp.Status),
				zap.Duration("wait", wait),
				zap.Int("attempt", attempt+1))
			if err := sleepContext(ctx, wait); err != nil {
				return nil, err
			}

		case resp.Status >= http.StatusBadRequest:
			return nil, decodeAPIError(resp)

		default:
			if attempt > 0 {
				log.Debug("request succeeded after retries", zap.Int("attempts", attempt+1))
			}
			return resp, nil
		}
	}
}

// transfer performs exactly one HTTP round trip: build, send with the
// per-request timeout, read, and feed rate-limit headers to the tracker.
// Every response, success or failure, updates the tracker.
func (d *Dispatcher) transfer(ctx context.Context, method, path string, opts *RequestOptions, routeKey string) (*Response, error) {
	cfg := &d.sdk.config

	body, contentType, err := encodeBody(opts)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}

	target := cfg.BaseURL + "/v" + strconv.Itoa(cfg.APIVersion) + path
	if len(opts.Query) > 0 {
		values := url.Values{}
		for k, v := range opts.Query {
			if v == "" {
				continue
			}
			values.Set(k, v)
		}
		if encoded := values.Encode(); encoded != "" {
			target += "?" + encoded
		}
	}

	tctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(tctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("User-Agent", cfg.UserAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if !opts.NoAuth {
		token, err := d.sdk.currentToken()
		if err != nil {
			return nil, fmt.Errorf("resolve token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", string(cfg.Scheme)+" "+token)
		}
	}
	if opts.Reason != "" {
		req.Header.Set("X-Audit-Log-Reason", url.PathEscape(opts.Reason))
	}
	// User headers win over everything set above.
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.sdk.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == nil && tctx.Err() == context.DeadlineExceeded {
			return nil, &NetworkTimeoutError{Timeout: cfg.Timeout}
		}
		return nil, fmt.Errorf("dispatch %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() == nil && tctx.Err() == context.DeadlineExceeded {
			return nil, &NetworkTimeoutError{Timeout: cfg.Timeout}
		}
		return nil, fmt.Errorf("read response: %w", err)
	}

	info := parseRateLimitInfo(resp.Header)
	d.sdk.limiter.Update(routeKey, info)

	out := &Response{
		Status:    resp.StatusCode,
		Headers:   resp.Header,
		RateLimit: info,
	}
	if resp.StatusCode != http.StatusNoContent && len(data) > 0 {
		out.Data = data
	}
	return out, nil
}

// classifyThrottle decodes a 429 into a RateLimitedError and raises the
// global suspension when the throttle is API-wide.
func (d *Dispatcher) classifyThrottle(resp *Response) *RateLimitedError {
	var body rateLimitBody
	_ = json.Unmarshal(resp.Data, &body)

	retryAfter := body.RetryAfter
	if retryAfter == 0 {
		// Some intermediaries strip the body; fall back to the header.
		if secs, err := strconv.ParseFloat(resp.Headers.Get("Retry-After"), 64); err == nil && secs > 0 {
			retryAfter = secs
		}
	}

	scope := ""
	global := body.Global
	if resp.RateLimit != nil {
		scope = resp.RateLimit.Scope
		global = global || resp.RateLimit.Global
	}
	if global {
		until := time.Now().Add(time.Duration(retryAfter * float64(time.Second)))
		d.sdk.limiter.SetGlobalSuspension(until)
	}

	return &RateLimitedError{
		RetryAfter: retryAfter,
		Global:     global,
		Scope:      scope,
		Code:       body.Code,
		Message:    body.Message,
	}
}

// decodeAPIError parses the structured error envelope of a non-429
// failure status.
func decodeAPIError(resp *Response) *APIError {
	var body apiErrorBody
	_ = json.Unmarshal(resp.Data, &body)
	return &APIError{
		Status:  resp.Status,
		Code:    body.Code,
		Message: body.Message,
		Errors:  body.Errors,
	}
}

// encodeBody serializes the request payload. With attachments present it
// builds a multipart body merging a payload_json part with one part per
// file; otherwise a JSON body; otherwise nothing.
func encodeBody(opts *RequestOptions) ([]byte, string, error) {
	if len(opts.Files) > 0 {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		if opts.Body != nil {
			payload, err := json.Marshal(opts.Body)
			if err != nil {
				return nil, "", err
			}
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", `form-data; name="payload_json"`)
			h.Set("Content-Type", "application/json")
			part, err := w.CreatePart(h)
			if err != nil {
				return nil, "", err
			}
			if _, err := part.Write(payload); err != nil {
				return nil, "", err
			}
		}
		for i, f := range opts.Files {
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files[%d]"; filename=%q`, i, f.Name))
			ct := f.ContentType
			if ct == "" {
				ct = "application/octet-stream"
			}
			h.Set("Content-Type", ct)
			part, err := w.CreatePart(h)
			if err != nil {
				return nil, "", err
			}
			if _, err := part.Write(f.Data); err != nil {
				return nil, "", err
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), w.FormDataContentType(), nil
	}

	if opts.Body != nil {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, "", err
		}
		return data, "application/json", nil
	}
	return nil, "", nil
}

// sleepContext waits for d or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
