// Package catalogue fetches descriptive-metadata JSON for an archival
// group from the catalogue API.
package catalogue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/digirati-co-uk/iiif-builder/httpclient"
	"github.com/digirati-co-uk/iiif-builder/result"
)

// Client reads descriptive metadata with a configured API-key header.
type Client struct {
	http      *httpclient.Client
	keyHeader string
	keyValue  string
}

// New builds a Client.
func New(http *httpclient.Client, keyHeader, keyValue string) *Client {
	return &Client{http: http, keyHeader: keyHeader, keyValue: keyValue}
}

type envelope struct {
	Data  map[string]interface{} `json:"data"`
	Error string                 `json:"error"`
}

// Read fetches and parses the descriptive-metadata document at uri. On a
// non-200 response it attempts to surface the body's "error" field,
// falling back to the bare status code.
func (c *Client) Read(ctx context.Context, uri string) result.Envelope[map[string]interface{}] {
	req := httpclient.NewRequest("GET", uri)
	if c.keyHeader != "" {
		req.Headers[c.keyHeader] = c.keyValue
	}

	resp, err := c.http.Execute(req)
	if resp == nil {
		return result.Err[map[string]interface{}]("failed to read catalogue API")
	}

	if err != nil || resp.StatusCode != http.StatusOK {
		var body envelope
		if jsonErr := json.Unmarshal(resp.Body, &body); jsonErr == nil && body.Error != "" {
			return result.Err[map[string]interface{}](fmt.Sprintf("catalogue API error: %s", body.Error))
		}
		return result.Err[map[string]interface{}](fmt.Sprintf("catalogue API returned status %d", resp.StatusCode))
	}

	var body envelope
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return result.Err[map[string]interface{}]("malformed catalogue API response")
	}
	return result.Ok(body.Data)
}
