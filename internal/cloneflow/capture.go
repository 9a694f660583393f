package cloneflow

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const maxCaptureBytes = 32 << 20

// HTTPCapture fetches the target artifact from a capture service endpoint.
// The service is expected to answer GET {base}/{targetID} with the raw image.
type HTTPCapture struct {
	baseURL string
	client  *http.Client
}

// HTTPCaptureOptions configures an HTTPCapture.
type HTTPCaptureOptions struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewHTTPCapture builds a capture source against the given base URL.
func NewHTTPCapture(opts HTTPCaptureOptions) (*HTTPCapture, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("cloneflow: capture base url is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPCapture{baseURL: opts.BaseURL, client: client}, nil
}

// Capture fetches the artifact for the target. The caller bounds the wait via
// the context.
func (c *HTTPCapture) Capture(ctx context.Context, targetID string) (*Artifact, error) {
	endpoint := c.baseURL + "/" + url.PathEscape(targetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("cloneflow: build capture request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloneflow: capture: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("cloneflow: target %s not found", targetID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cloneflow: capture status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCaptureBytes))
	if err != nil {
		return nil, fmt.Errorf("cloneflow: read capture body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("cloneflow: capture returned an empty artifact")
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/png"
	}
	return &Artifact{Data: data, MIME: mime, URL: endpoint}, nil
}
