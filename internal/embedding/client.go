package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Client computes text embeddings through a model-serving endpoint.
// A failed embedding call fails the save that requested it; nothing here
// swallows errors.
type Client struct {
	host       string
	token      string
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// Options configures an embedding client.
type Options struct {
	Host     string
	Token    string
	Endpoint string
	Timeout  time.Duration
	Logger   *slog.Logger
}

// NewClient creates an embedding client.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		host:       strings.TrimRight(opts.Host, "/"),
		token:      opts.Token,
		endpoint:   opts.Endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Embed returns the embedding vector for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint not configured")
	}

	body, err := json.Marshal(map[string]any{"input": text})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding payload: %w", err)
	}

	url := fmt.Sprintf("%s/serving-endpoints/%s/invocations", c.host, c.endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call embedding endpoint: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding endpoint returned %d", resp.StatusCode)
	}

	vector := parseVector(raw)
	if vector == nil {
		return nil, fmt.Errorf("embedding response contained no vector")
	}

	return vector, nil
}

// parseVector extracts the vector from either the OpenAI-compatible shape
// ({data: [{embedding: [...]}]}) or the MLflow predictions shape
// ({predictions: [[...]]}).
func parseVector(raw []byte) []float32 {
	result := gjson.ParseBytes(raw)

	candidates := []gjson.Result{
		result.Get("data.0.embedding"),
		result.Get("predictions.0"),
	}

	for _, candidate := range candidates {
		if !candidate.IsArray() {
			continue
		}
		values := candidate.Array()
		if len(values) == 0 {
			continue
		}
		vector := make([]float32, len(values))
		for i, v := range values {
			vector[i] = float32(v.Float())
		}
		return vector
	}

	return nil
}
