package agent

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
)

// Message is one turn of conversation context sent to the serving endpoint.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client invokes a model-serving endpoint over the workspace REST surface.
// One call per assistant turn; the endpoint returns the full response body
// in a single blocking request.
type Client struct {
	host       string
	token      string
	endpoint   string
	chatK      int
	httpClient *http.Client
	logger     *slog.Logger
}

// Options configures a serving endpoint client.
type Options struct {
	Host     string // workspace base URL, e.g. https://adb-123.azuredatabricks.net
	Token    string // bearer token
	Endpoint string // serving endpoint name
	ChatK    int    // retrieval depth passed through custom_inputs
	Timeout  time.Duration
	Logger   *slog.Logger
}

// NewClient creates a serving-endpoint client.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	chatK := opts.ChatK
	if chatK <= 0 {
		chatK = 5
	}
	return &Client{
		host:       strings.TrimRight(opts.Host, "/"),
		token:      opts.Token,
		endpoint:   opts.Endpoint,
		chatK:      chatK,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// invocationRequest is the serving payload: a batch of one chat request with
// per-user retrieval filters for the chat-history search tool.
type invocationRequest struct {
	Inputs []chatRequest `json:"inputs"`
}

type chatRequest struct {
	Messages     []Message    `json:"messages"`
	CustomInputs customInputs `json:"custom_inputs"`
}

type customInputs struct {
	Filters filters `json:"filters"`
	K       int     `json:"k"`
}

type filters struct {
	UserName string `json:"user_name"`
}

// Generate calls the agent endpoint with the ordered message history and
// returns the assistant reply as plain text. Empty messages are dropped to
// satisfy the endpoint's non-empty content requirement.
func (c *Client) Generate(ctx context.Context, userName string, history []Message) (string, error) {
	if c.endpoint == "" {
		return "", fmt.Errorf("agent endpoint not configured")
	}

	messages := make([]Message, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		messages = append(messages, m)
	}

	payload := invocationRequest{
		Inputs: []chatRequest{{
			Messages: messages,
			CustomInputs: customInputs{
				Filters: filters{UserName: userName},
				K:       c.chatK,
			},
		}},
	}

	raw, err := c.invoke(ctx, c.endpoint, payload)
	if err != nil {
		return "", err
	}

	return NormalizeResponse(raw), nil
}

// GenerateText sends a bare prompt to an endpoint and returns normalized
// text. Used for short auxiliary generations such as chat titles.
func (c *Client) GenerateText(ctx context.Context, endpoint, prompt string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("serving endpoint not configured")
	}

	payload := invocationRequest{
		Inputs: []chatRequest{{
			Messages: []Message{{Role: "user", Content: prompt}},
		}},
	}

	raw, err := c.invoke(ctx, endpoint, payload)
	if err != nil {
		return "", err
	}

	return NormalizeResponse(raw), nil
}

// invoke POSTs a payload to a serving endpoint and returns the raw response
// body.
func (c *Client) invoke(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal serving payload: %w", err)
	}

	url := fmt.Sprintf("%s/serving-endpoints/%s/invocations", c.host, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build serving request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call serving endpoint %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read serving response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serving endpoint %s returned %d: %s", endpoint, resp.StatusCode, truncate(string(raw), 200))
	}

	c.logger.Debug("serving endpoint invoked",
		"endpoint", endpoint,
		"elapsed", time.Since(start),
		"response_bytes", len(raw),
	)

	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
