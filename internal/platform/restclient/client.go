// Package restclient provides the JSON-over-HTTP client shared by the
// REST provider adapters.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brpag/pix-gateway/internal/core/domain"
)

const defaultMaxAttempts = 3

// Client is a thin wrapper over http.Client bound to one provider's base
// URL and static headers. Transport failures are retried; HTTP status
// handling is left to the adapter.
type Client struct {
	baseURL     string
	headers     map[string]string
	httpClient  *http.Client
	maxAttempts int
}

// New creates a client for the given base URL. The headers map carries
// static credentials (Authorization and friends) applied to every call.
func New(baseURL string, timeout time.Duration, headers map[string]string) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		headers:     headers,
		httpClient:  &http.Client{Timeout: timeout},
		maxAttempts: defaultMaxAttempts,
	}
}

// Response is the raw outcome of one exchange.
type Response struct {
	StatusCode int
	Body       []byte
}

// Success reports whether the status code is in the 2xx range.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the body. A body that does not parse is a malformed
// provider response.
func (r *Response) Decode(out any) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return domain.NewServiceError(domain.ErrProvider,
			"malformed provider response", "PROVIDER_BAD_BODY")
	}
	return nil
}

// DoJSON sends one JSON request. The body is marshaled when non-nil;
// extra headers override the client's static ones for this call only.
// Connection-level failures are retried up to the attempt budget and
// returned as ErrNetwork; any HTTP status is a successful exchange from
// the transport's point of view.
func (c *Client) DoJSON(ctx context.Context, method, path string, query url.Values, body any, extra map[string]string) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, domain.NewServiceError(domain.ErrProvider,
				"failed to encode request body", "REQUEST_MARSHAL_ERROR")
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, domain.NewServiceError(domain.ErrProvider,
				"failed to build request", "REQUEST_BUILD_ERROR")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}
		for k, v := range extra {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return &Response{StatusCode: resp.StatusCode, Body: data}, nil
	}

	return nil, domain.NewServiceError(domain.ErrNetwork,
		"request failed: "+lastErr.Error(), "NETWORK_ERROR")
}
