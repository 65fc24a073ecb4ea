// Package threads is a client for a remote conversational-thread API
// (OpenAI Assistants-compatible): threads, messages, and runs.
package threads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// DefaultBaseURL is the public OpenAI API root.
const DefaultBaseURL = "https://api.openai.com/v1"

// Message fetch orderings accepted by ListMessages.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Options configures a Client.
type Options struct {
	// BaseURL of the thread API (e.g., "https://api.openai.com/v1")
	BaseURL string

	// APIKey is sent as a bearer credential on every request.
	APIKey string

	// Headers are extra provider headers sent on every request,
	// e.g. {"OpenAI-Beta": "assistants=v2"}.
	Headers map[string]string

	// HTTPClient is used for all calls. Defaults to a client without a global timeout;
	// callers bound individual calls through their context.
	HTTPClient *http.Client

	Logger *zap.Logger
}

// Client issues thread API calls. It holds no per-conversation state and is safe
// for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	headers    map[string]string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a new Client.
func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		headers:    headers,
		httpClient: httpClient,
		logger:     logger,
	}
}

// CreateThread creates an empty thread and returns its identifier.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var thread openai.Thread
	if err := c.do(ctx, "create thread", http.MethodPost, "/threads", openai.ThreadRequest{}, &thread); err != nil {
		return "", err
	}

	return thread.ID, nil
}

// AppendMessage adds a user-authored message to the thread.
func (c *Client) AppendMessage(ctx context.Context, threadID, content string) error {
	req := openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	}

	return c.do(ctx, "add message", http.MethodPost, threadPath(threadID, "messages"), req, nil)
}

// CreateRun starts an assistant run on the thread.
func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (*openai.Run, error) {
	var run openai.Run
	req := openai.RunRequest{AssistantID: assistantID}
	if err := c.do(ctx, "start run", http.MethodPost, threadPath(threadID, "runs"), req, &run); err != nil {
		return nil, err
	}

	return &run, nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*openai.Run, error) {
	var run openai.Run
	if err := c.do(ctx, "check run", http.MethodGet, threadPath(threadID, "runs", runID), nil, &run); err != nil {
		return nil, err
	}

	return &run, nil
}

// ListMessages returns up to limit messages of the thread. An empty order leaves
// the provider default in place.
func (c *Client) ListMessages(ctx context.Context, threadID string, limit int, order string) ([]openai.Message, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if order != "" {
		query.Set("order", order)
	}

	path := threadPath(threadID, "messages")
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var list openai.MessagesList
	if err := c.do(ctx, "read messages", http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}

	return list.Messages, nil
}

// do performs one API call. A nil in sends no body; a nil out discards the response.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &UpstreamError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &UpstreamError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	c.setHeaders(httpReq)

	c.logger.Debug("calling thread API",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
	)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &UpstreamError{Op: op, Err: fmt.Errorf("do request: %w", err)}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return &UpstreamError{Op: op, StatusCode: httpResp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if httpResp.StatusCode >= http.StatusBadRequest {
		c.logger.Error("thread API returned error",
			zap.String("op", op),
			zap.Int("status", httpResp.StatusCode),
			zap.String("body", string(respBody)),
		)
		return &UpstreamError{Op: op, StatusCode: httpResp.StatusCode, Body: string(respBody)}
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &UpstreamError{Op: op, StatusCode: httpResp.StatusCode, Body: string(respBody), Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
}

func threadPath(threadID string, parts ...string) string {
	var b strings.Builder
	b.WriteString("/threads/")
	b.WriteString(url.PathEscape(threadID))
	for _, p := range parts {
		b.WriteString("/")
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}
