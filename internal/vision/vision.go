// Package vision wraps the external image-understanding service. The
// matching engine never talks to a vision model itself; it consumes the
// analysis and embedding this package attaches to an item at report time.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Analysis is the structured result of describing an item photo.
type Analysis struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Category    string   `json:"category"`
	Color       string   `json:"color,omitempty"`
	Brand       string   `json:"brand,omitempty"`
	Confidence  float64  `json:"confidence"`
}

// Analyzer describes and embeds item photos. Implementations are injected
// so tests can run against deterministic fakes.
type Analyzer interface {
	Describe(ctx context.Context, imageBase64 string) (Analysis, error)
	Embed(ctx context.Context, imageBase64 string) ([]float32, error)
}

// Client communicates with a vision API over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client targeting the given vision API base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type analyzeRequest struct {
	ImageBase64 string `json:"image_base64"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

type describeResponse struct {
	Analysis
	Error string `json:"error,omitempty"`
}

// Describe sends the image to POST /analyze and returns the structured
// analysis.
func (c *Client) Describe(ctx context.Context, imageBase64 string) (Analysis, error) {
	var out describeResponse
	if err := c.post(ctx, "/analyze", analyzeRequest{ImageBase64: imageBase64}, &out); err != nil {
		return Analysis{}, err
	}
	if out.Error != "" {
		return Analysis{}, fmt.Errorf("vision analyze: %s", out.Error)
	}
	return out.Analysis, nil
}

// Embed sends the image to POST /embed and returns its embedding vector.
func (c *Client) Embed(ctx context.Context, imageBase64 string) ([]float32, error) {
	var out embedResponse
	if err := c.post(ctx, "/embed", analyzeRequest{ImageBase64: imageBase64}, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("vision embed: %s", out.Error)
	}
	return out.Embedding, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling vision API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("vision API %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding vision response: %w", err)
	}
	return nil
}
