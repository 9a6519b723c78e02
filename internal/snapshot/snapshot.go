// Package snapshot is a thin HTTP client for the external snapshot
// source (a go2rtc-compatible server): it fetches per-camera JPEG
// frames and discovers configured camera ids.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// DefaultTimeout is used until a scheduler interval is known to derive
// a tighter bound from (see SetTimeout).
const DefaultTimeout = 10 * time.Second

// Client fetches frames and stream listings from a snapshot source.
// The per-call timeout is stored atomically rather than on HTTP.Timeout
// so it can be retuned at runtime (the round-robin scheduler's interval
// can change via POST /round-robin/start) without racing in-flight
// requests reading http.Client.Timeout.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	timeoutNanos atomic.Int64
}

// NewClient constructs a client bound to baseURL (e.g.
// http://localhost:1984), with its per-call timeout bounded by timeout
// (see SetTimeout; §5 requires this bound to track the tick interval).
func NewClient(baseURL string, timeout time.Duration) *Client {
	c := &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{},
	}
	c.SetTimeout(timeout)
	return c
}

// SetTimeout retunes the per-call bound, safe to call concurrently with
// in-flight requests. Called whenever the scheduler's tick interval
// changes so snapshot fetches stay bounded by it (spec §5).
func (c *Client) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c.timeoutNanos.Store(int64(timeout))
}

func (c *Client) timeout() time.Duration {
	d := time.Duration(c.timeoutNanos.Load())
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}

// Frame fetches the latest JPEG for cameraID from {base}/api/frame.jpeg?src=.
func (c *Client) Frame(ctx context.Context, cameraID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	url := fmt.Sprintf("%s/api/frame.jpeg?src=%s", c.BaseURL, cameraID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch frame for %s: %w", cameraID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch frame for %s: status %d", cameraID, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return data, nil
}

// FetchURL retrieves a single JPEG from an arbitrary absolute URL,
// bypassing camera-id resolution against BaseURL. Used when a caller
// already has a direct stream/snapshot URL (e.g. POST /analyze-stream).
func (c *Client) FetchURL(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return data, nil
}

// Cameras lists configured camera ids from {base}/api/streams, whose
// top-level keys are the stream/camera names.
func (c *Client) Cameras(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	url := c.BaseURL + "/api/streams"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list streams: status %d", resp.StatusCode)
	}

	var streams map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&streams); err != nil {
		return nil, fmt.Errorf("decode streams response: %w", err)
	}

	cameras := make([]string, 0, len(streams))
	for id := range streams {
		cameras = append(cameras, id)
	}
	return cameras, nil
}
