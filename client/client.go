// Package client talks to a running log server over HTTP.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"logserver/daterange"
	"logserver/storage"
)

// Client is a thin typed wrapper over the log server's HTTP surface.
type Client struct {
	base      *url.URL
	HTTP      *http.Client // injected for testability
	UserAgent string
}

// StatusError is returned for any non-200 reply.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("log server returned %d: %s", e.Code, strings.TrimSpace(e.Body))
}

// New returns a client for the server at baseURL. A nil hc gets a client
// with a 10 second timeout.
func New(baseURL string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid log server url: %w", err)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{base: u, HTTP: hc, UserAgent: "logserver-client/0.1"}, nil
}

// Status counts readings of every stream in the range.
func (c *Client) Status(ctx context.Context, p daterange.Params) (int64, error) {
	var out map[string]int64
	if err := c.get(ctx, "/status", "", p, &out); err != nil {
		return 0, err
	}
	return out["COUNT(*)"], nil
}

// Data fetches the raw readings of stream in the range.
func (c *Client) Data(ctx context.Context, stream string, p daterange.Params) ([]storage.Reading, error) {
	var out []storage.Reading
	if err := c.get(ctx, "/data", stream, p, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Max(ctx context.Context, stream string, p daterange.Params) (storage.Extreme, error) {
	return c.extreme(ctx, "/max", "MAX(data)", stream, p)
}

func (c *Client) Min(ctx context.Context, stream string, p daterange.Params) (storage.Extreme, error) {
	return c.extreme(ctx, "/min", "MIN(data)", stream, p)
}

func (c *Client) extreme(ctx context.Context, path, field, stream string, p daterange.Params) (storage.Extreme, error) {
	var out map[string]json.RawMessage
	if err := c.get(ctx, path, stream, p, &out); err != nil {
		return storage.Extreme{}, err
	}

	var ext storage.Extreme
	if raw, ok := out["time"]; ok {
		if err := json.Unmarshal(raw, &ext.Time); err != nil {
			return storage.Extreme{}, fmt.Errorf("decode %s time: %w", path, err)
		}
	}
	if raw, ok := out[field]; ok {
		if err := json.Unmarshal(raw, &ext.Value); err != nil {
			return storage.Extreme{}, fmt.Errorf("decode %s value: %w", path, err)
		}
	}
	return ext, nil
}

// Avg returns the mean of stream in the range, nil when it has no readings.
func (c *Client) Avg(ctx context.Context, stream string, p daterange.Params) (*float64, error) {
	var out map[string]*float64
	if err := c.get(ctx, "/avg", stream, p, &out); err != nil {
		return nil, err
	}
	return out["AVG(data)"], nil
}

// Latest returns the most recent reading of stream, nil when there is none.
func (c *Client) Latest(ctx context.Context, stream string) (*storage.Reading, error) {
	var out *storage.Reading
	if err := c.get(ctx, "/latest", stream, daterange.Params{}, &out); err != nil {
		return nil, err
	}
	if out != nil {
		out.Stream = stream
	}
	return out, nil
}

// Append logs v to stream. A null value is sent without a data parameter.
func (c *Client) Append(ctx context.Context, stream string, v storage.Value) error {
	q := url.Values{}
	if !v.IsNull() {
		q.Set("data", v.String())
	}
	resp, err := c.do(ctx, http.MethodPost, "/"+url.PathEscape(stream), q)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) get(ctx context.Context, path, stream string, p daterange.Params, out any) error {
	q := url.Values{}
	if stream != "" {
		q.Set("stream", stream)
	}
	p.Query(q)

	resp, err := c.do(ctx, http.MethodGet, path, q)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// do sends the request and turns any non-200 reply into a *StatusError.
func (c *Client) do(ctx context.Context, method, path string, q url.Values) (*http.Response, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{Code: resp.StatusCode, Body: string(b)}
	}
	return resp, nil
}
