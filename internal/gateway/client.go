package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gpcheckout.org/internal/obs"
)

// DefaultTimeout bounds a single gateway call. The legacy integration had
// no timeout at all; expiry here surfaces as a transport error, which the
// orchestrator records with its synthetic result code.
const DefaultTimeout = 30 * time.Second

// Client posts XML request bodies to the gateway endpoint and scrapes the
// replies. Transport problems (network errors, timeouts, non-2xx statuses)
// come back as an error so callers can tell them apart from gateway
// declines; a decline is a successful call with a non-"00" result.
type Client struct {
	url  string
	http *http.Client
}

// NewClient builds a client for the given endpoint URL.
func NewClient(url string) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: DefaultTimeout},
	}
}

// URL returns the configured endpoint.
func (c *Client) URL() string { return c.url }

// Post sends one XML request. op labels the request type for metrics only.
func (c *Client) Post(ctx context.Context, op, body string) (Response, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(body))
	if err != nil {
		obs.ObserveGateway(op, time.Since(start), "error")
		return Response{}, fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml")

	httpResp, err := c.http.Do(req)
	if err != nil {
		obs.ObserveGateway(op, time.Since(start), "error")
		return Response{}, fmt.Errorf("gateway call: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		obs.ObserveGateway(op, time.Since(start), "error")
		return Response{}, fmt.Errorf("read gateway response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		obs.ObserveGateway(op, time.Since(start), "error")
		return Response{}, fmt.Errorf("gateway returned status %d", httpResp.StatusCode)
	}

	resp := ParseResponse(string(data))
	outcome := "declined"
	if resp.Approved() {
		outcome = "approved"
	}
	obs.ObserveGateway(op, time.Since(start), outcome)
	return resp, nil
}
