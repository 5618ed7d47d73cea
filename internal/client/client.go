// Package client talks to a running mfu server.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lazypower/mfu/internal/mfu"
)

const (
	defaultServerURL = "http://127.0.0.1:37778"
	httpTimeout      = 5 * time.Second
)

// Client talks to the mfu server.
type Client struct {
	http      *http.Client
	serverURL string
}

// New creates a client for serverURL. An empty serverURL respects the
// MFU_URL env var and falls back to http://127.0.0.1:37778.
func New(serverURL string) *Client {
	if serverURL == "" {
		serverURL = os.Getenv("MFU_URL")
	}
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: serverURL,
	}
}

// URL returns the server base URL.
func (c *Client) URL() string {
	return c.serverURL
}

// post sends a POST request with a JSON body. Returns response body.
func (c *Client) post(path string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", path, err)
	}
	resp, err := c.http.Post(c.serverURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return data, fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, data)
	}
	return data, nil
}

// get sends a GET request. Returns response body.
func (c *Client) get(path string) ([]byte, error) {
	resp, err := c.http.Get(c.serverURL + path)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return data, fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, data)
	}
	return data, nil
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy() bool {
	resp, err := c.http.Get(c.serverURL + "/api/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Accessed reports one access of path.
func (c *Client) Accessed(path string) error {
	_, err := c.post("/api/files/accessed", map[string]string{"path": path})
	return err
}

// Moved reports that from was renamed to to.
func (c *Client) Moved(from, to string) error {
	_, err := c.post("/api/files/moved", map[string]string{"from": from, "to": to})
	return err
}

// Deleted reports that path is gone.
func (c *Client) Deleted(path string) error {
	_, err := c.post("/api/files/deleted", map[string]string{"path": path})
	return err
}

// Files fetches the ranked list.
func (c *Client) Files() ([]mfu.File, error) {
	data, err := c.get("/api/files")
	if err != nil {
		return nil, err
	}
	var resp struct {
		Files []mfu.File `json:"files"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode files: %w", err)
	}
	return resp.Files, nil
}

// Maintain triggers one decay and prune pass.
func (c *Client) Maintain() (decayed, pruned int, err error) {
	data, err := c.post("/api/maintenance", struct{}{})
	if err != nil {
		return 0, 0, err
	}
	var resp struct {
		Decayed int `json:"decayed"`
		Pruned  int `json:"pruned"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return 0, 0, fmt.Errorf("decode maintenance: %w", err)
	}
	return resp.Decayed, resp.Pruned, nil
}

// Stream subscribes to the server's ranking updates and calls fn for each
// list until ctx is cancelled or the connection drops.
func (c *Client) Stream(ctx context.Context, fn func([]mfu.File)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/api/files/stream", nil)
	if err != nil {
		return fmt.Errorf("stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// No client timeout: the stream is open-ended.
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET /api/files/stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET /api/files/stream: status %d: %s", resp.StatusCode, data)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var files []mfu.File
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &files); err != nil {
			return fmt.Errorf("decode stream event: %w", err)
		}
		fn(files)
	}
	if ctx.Err() != nil {
		return nil
	}
	return sc.Err()
}
