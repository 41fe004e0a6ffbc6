// Package ticket talks to the external ticketing system that tracks bad
// cables.
package ticket

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

// Client is the ticketing collaborator used by the cable lifecycle.
type Client interface {
	// Create opens a ticket and returns its id. An id of 0 means no ticket
	// was opened.
	Create(ctx context.Context, req CreateRequest) (int64, error)
	AssignGroup(ctx context.Context, id int64, group string, fields Fields) error
	AddComment(ctx context.Context, id int64, text string) error
	Close(ctx context.Context, id int64, text string) error
}

// Fields carries extra ticket attributes such as counts or labels.
type Fields map[string]string

// CreateRequest describes a new ticket.
type CreateRequest struct {
	Queue    string `json:"queue"`
	Assignee string `json:"assignee,omitempty"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Fields   Fields `json:"fields,omitempty"`
}

type createResponse struct {
	ID int64 `json:"id"`
}

type assignRequest struct {
	Group  string `json:"group"`
	Fields Fields `json:"fields,omitempty"`
}

type textRequest struct {
	Text string `json:"text"`
}

// RESTClient wraps the ticket system REST API.
type RESTClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

var _ Client = (*RESTClient)(nil)

// NewRESTClient creates a new ticket API client.
func NewRESTClient(baseURL, token string, timeout time.Duration) *RESTClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &RESTClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

// Create opens a new ticket.
func (c *RESTClient) Create(ctx context.Context, req CreateRequest) (int64, error) {
	var resp createResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/tickets/", req, &resp); err != nil {
		return 0, fmt.Errorf("create ticket: %w", err)
	}
	return resp.ID, nil
}

// AssignGroup hands a ticket to another group, reopening it if needed.
func (c *RESTClient) AssignGroup(ctx context.Context, id int64, group string, fields Fields) error {
	path := fmt.Sprintf("/api/tickets/%d/assign/", id)
	if err := c.doJSON(ctx, http.MethodPost, path, assignRequest{Group: group, Fields: fields}, nil); err != nil {
		return fmt.Errorf("assign ticket %d: %w", id, err)
	}
	return nil
}

// AddComment appends a comment to a ticket.
func (c *RESTClient) AddComment(ctx context.Context, id int64, text string) error {
	path := fmt.Sprintf("/api/tickets/%d/comments/", id)
	if err := c.doJSON(ctx, http.MethodPost, path, textRequest{Text: text}, nil); err != nil {
		return fmt.Errorf("comment on ticket %d: %w", id, err)
	}
	return nil
}

// Close resolves a ticket with a final comment.
func (c *RESTClient) Close(ctx context.Context, id int64, text string) error {
	path := fmt.Sprintf("/api/tickets/%d/close/", id)
	if err := c.doJSON(ctx, http.MethodPost, path, textRequest{Text: text}, nil); err != nil {
		return fmt.Errorf("close ticket %d: %w", id, err)
	}
	return nil
}

// doJSON performs an HTTP request with JSON serialization/deserialization.
func (c *RESTClient) doJSON(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("ticket API %s %s returned %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
