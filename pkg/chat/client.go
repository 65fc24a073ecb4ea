package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client talks to a running relay server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the relay at serverURL. prefix is the server's route prefix.
func NewClient(serverURL, prefix string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	base := strings.TrimRight(serverURL, "/")
	if p := strings.Trim(prefix, "/"); p != "" {
		base += "/" + p
	}

	return &Client{baseURL: base, httpClient: httpClient}
}

// Start begins a conversation and returns its thread id.
func (c *Client) Start(ctx context.Context) (string, error) {
	var resp StartResponse
	if err := c.do(ctx, http.MethodGet, "/start", nil, &resp); err != nil {
		return "", err
	}

	return resp.ThreadID, nil
}

// Send relays message on threadID and returns the reply.
func (c *Client) Send(ctx context.Context, threadID, message string) (*Response, error) {
	var resp Response
	if err := c.do(ctx, http.MethodPost, "/chat", Request{ThreadID: threadID, Message: message}, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("could not marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		var errResp ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Detail != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, errResp.Detail)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}

	return nil
}
