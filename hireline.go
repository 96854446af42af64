// Package hireline provides the Go SDK for the Hireline messaging service.
//
// It maintains a locally consistent view of conversations, messages, and
// notifications against a server that delivers events at-least-once and
// unordered, while the local user optimistically originates new messages.
//
// Example:
//
//	client := hireline.NewClient("hl-token-...")
//	msgr := hireline.NewMessenger(client, &hireline.MessengerConfig{
//		Token:  "hl-token-...",
//		UserID: "user-123",
//	})
//	_ = msgr.Connect(ctx)
//	msg, _ := msgr.SendMessage(ctx, "conv-1", "", "Hello!")
//	view := msgr.MergedConversation(&conv)
package hireline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ============================================================================
// Environment
// ============================================================================

type Environment string

const (
	Production Environment = "production"
)

var environments = map[Environment]string{
	Production: "https://api.hireline.dev",
}

const (
	DefaultBaseURL = "https://api.hireline.dev"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client is the REST client for the conversation and message fetch surface.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithEnvironment(env Environment) ClientOption {
	return func(c *Client) {
		if u, ok := environments[env]; ok {
			c.baseURL = u
		}
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// NewClient creates a new Hireline REST client.
// token may be "" for unauthenticated health checks.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken sets or updates the auth token.
func (c *Client) SetToken(token string) {
	c.token = token
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, query map[string]string) (*Result, error) {
	data, err := c.doRequest(ctx, method, path, body, query)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Result](data)
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// ============================================================================
// Conversation / Message fetch surface
// ============================================================================

// Health checks service reachability.
func (c *Client) Health(ctx context.Context) (*Result, error) {
	return c.do(ctx, "GET", "/api/messaging/health", nil, nil)
}

// ListConversations fetches the user's conversations.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	res, err := c.do(ctx, "GET", "/api/messaging/conversations", nil, nil)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, resultErr(res, "list conversations")
	}
	var convs []Conversation
	if err := res.Decode(&convs); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}
	return convs, nil
}

// GetMessages fetches the persisted message list for one conversation.
func (c *Client) GetMessages(ctx context.Context, conversationID string, opts *PaginationOptions) ([]Message, error) {
	res, err := c.do(ctx, "GET", "/api/messaging/conversations/"+conversationID+"/messages", nil, paginationQuery(opts))
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, resultErr(res, "get messages")
	}
	var msgs []Message
	if err := res.Decode(&msgs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return msgs, nil
}

// PaginationOptions bounds a fetch.
type PaginationOptions struct {
	Limit  int
	Offset int
}

func paginationQuery(opts *PaginationOptions) map[string]string {
	if opts == nil {
		return nil
	}
	q := map[string]string{}
	if opts.Limit > 0 {
		q["limit"] = fmt.Sprintf("%d", opts.Limit)
	}
	if opts.Offset > 0 {
		q["offset"] = fmt.Sprintf("%d", opts.Offset)
	}
	if len(q) == 0 {
		return nil
	}
	return q
}

func resultErr(res *Result, op string) error {
	if res.Error != nil {
		return fmt.Errorf("%s: %w", op, res.Error)
	}
	return fmt.Errorf("%s: request not ok", op)
}
