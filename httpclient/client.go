// Package httpclient provides the single shared HTTP client used by every
// outbound caller in the worker, with retry/backoff for the calls that opt
// into it. The preservation page-walk and the stage calls driven by the
// coordinator do not opt into retries — retrying is an external
// reconciliation concern, not this worker's.
package httpclient

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client wraps a single *http.Client, reused across every backend so TCP
// connections are pooled for the lifetime of the process.
type Client struct {
	http *http.Client
}

// New builds a Client around a default *http.Client. A separate client with
// TLS verification disabled is built for each request that sets
// InsecureSkipVerify or targets https://localhost:, a local-testing
// carve-out.
func New() *Client {
	return &Client{http: &http.Client{}}
}

// Execute performs req, retrying up to req.RetryCount times on transport
// errors or 5xx responses. 4xx responses are never retried.
func (c *Client) Execute(req *Request) (*Response, error) {
	attempts := req.RetryCount + 1
	var lastErr error
	var lastResp *Response

	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := c.executeOnce(req)
		if err == nil {
			return resp, nil
		}
		lastErr, lastResp = err, resp

		if resp != nil && resp.IsClientError() {
			return resp, err
		}
		if attempt < attempts-1 {
			time.Sleep(backoff(attempt, req.RetryBackoff, req.RetryInterval))
		}
	}

	if lastResp != nil {
		return lastResp, lastErr
	}
	return nil, fmt.Errorf("request failed after %d attempt(s): %w", attempts, lastErr)
}

func (c *Client) executeOnce(req *Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequest(req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	client := c.http
	if req.InsecureSkipVerify || strings.HasPrefix(req.URL, "https://localhost:") {
		client = &http.Client{
			Timeout:   req.Timeout,
			Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
		}
	} else if req.Timeout > 0 {
		clone := *c.http
		clone.Timeout = req.Timeout
		client = &clone
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    make(map[string]string, len(httpResp.Header)),
		Body:       respBody,
		ETag:       httpResp.Header.Get("ETag"),
	}
	for k, v := range httpResp.Header {
		if len(v) > 0 {
			resp.Headers[k] = v[0]
		}
	}

	if resp.IsServerError() {
		return resp, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp, nil
}

func backoff(attempt int, strategy string, initial time.Duration) time.Duration {
	if strategy == "linear" {
		return initial * time.Duration(attempt+1)
	}
	return initial * time.Duration(1<<uint(attempt))
}
