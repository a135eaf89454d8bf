package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

// Client is the thin HTTP client the CLI uses against a running daemon.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the daemon at bind (host:port).
func NewClient(bind, token string) *Client {
	base := strings.TrimSpace(bind)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var status DaemonStatus
	if err := c.getJSON(ctx, "/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Video fetches one artifact with its job history.
func (c *Client) Video(ctx context.Context, id string) (*StatusResponse, error) {
	var response StatusResponse
	if err := c.getJSON(ctx, "/videos/"+id, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Videos lists all artifacts.
func (c *Client) Videos(ctx context.Context) (*ListResponse, error) {
	var response ListResponse
	if err := c.getJSON(ctx, "/videos", &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Trim requests a trim transform on an artifact.
func (c *Client) Trim(ctx context.Context, id string, start, end float64) (*TransformResponse, error) {
	return c.postTransform(ctx, "/videos/"+id+"/trim", TrimRequest{Start: &start, End: &end})
}

// Subtitles requests a subtitle overlay transform on an artifact.
func (c *Client) Subtitles(ctx context.Context, id, text string, start, end float64) (*TransformResponse, error) {
	return c.postTransform(ctx, "/videos/"+id+"/subtitles", SubtitleRequest{Text: text, Start: &start, End: &end})
}

// Render requests a final render of an artifact.
func (c *Client) Render(ctx context.Context, id string) (*TransformResponse, error) {
	return c.postTransform(ctx, "/videos/"+id+"/render", RenderRequest{})
}

// Download streams the artifact's current bytes into w and returns the
// filename suggested by the daemon.
func (c *Client) Download(ctx context.Context, id string, w io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/videos/"+id+"/download", nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", c.statusError(resp)
	}

	name := ""
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		name = params["filename"]
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("download body: %w", err)
	}
	return name, nil
}

func (c *Client) postTransform(ctx context.Context, path string, payload any) (*TransformResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return nil, c.statusError(resp)
	}

	var accepted TransformResponse
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &accepted, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) statusError(resp *http.Response) error {
	var payload ErrorResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&payload); decodeErr == nil && payload.Error != "" {
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("daemon returned %d", resp.StatusCode)
}
