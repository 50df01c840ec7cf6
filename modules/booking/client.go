package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Client drives the sweep endpoints of a remote server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient authenticates every request with tokens from ts.
func NewClient(baseURL string, ts oauth2.TokenSource) *Client {
	hc := oauth2.NewClient(context.Background(), ts)
	hc.Timeout = 30 * time.Second
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: hc}
}

func (c *Client) NextExpiry(ctx context.Context) (*time.Time, error) {
	resp := &NextExpiryResponse{}
	if err := c.roundtrip(ctx, http.MethodGet, "/api/occupations/next-expiry", nil, resp); err != nil {
		return nil, err
	}
	return resp.NextExpiry, nil
}

// Sweep asks the server to sweep as of now, or as of asOf when it is set.
func (c *Client) Sweep(ctx context.Context, asOf *time.Time) (int64, error) {
	resp := &SweepResponse{}
	if err := c.roundtrip(ctx, http.MethodPost, "/api/sweep", &SweepRequest{AsOf: asOf}, resp); err != nil {
		return 0, err
	}
	return resp.UpdatedCount, nil
}

func (c *Client) roundtrip(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		js, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(js)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
