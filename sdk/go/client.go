// Package agendasdk is a self-contained client for the Agenda HTTP API plus
// a local todo store that applies changes optimistically and reconciles with
// the server in the background.
package agendasdk

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

// Client is a minimal Agenda HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Todo represents the API todo model.
type Todo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	WorkspaceID *string   `json:"workspace_id,omitempty"`
	Title       string    `json:"title"`
	DueDate     *string   `json:"due_date,omitempty"`
	Urgency     float64   `json:"urgency"`
	Completed   bool      `json:"completed"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
	Comments    []Comment `json:"comments"`
}

// Comment represents a todo comment.
type Comment struct {
	ID        string `json:"id"`
	TodoID    string `json:"todo_id"`
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// Workspace represents a todo workspace.
type Workspace struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	OwnerID   string `json:"owner_id"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Reminder represents a scheduled reminder.
type Reminder struct {
	ID           string  `json:"id"`
	TodoID       string  `json:"todo_id"`
	UserID       string  `json:"user_id"`
	Title        string  `json:"title"`
	Description  *string `json:"description,omitempty"`
	ReminderTime string  `json:"reminder_time"`
	Status       string  `json:"status"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// ParseResult is one turn of the capture conversation.
type ParseResult struct {
	Text            string            `json:"text"`
	HTML            string            `json:"html"`
	Values          map[string]string `json:"values"`
	StillNeeded     []string          `json:"still_needed"`
	IsComplete      bool              `json:"is_complete"`
	FieldAttempts   map[string]int    `json:"field_attempts"`
	FallbackApplied bool              `json:"fallback_applied"`
}

// Resolution is the outcome of resolving a natural language date.
type Resolution struct {
	OriginalText      string `json:"original_text"`
	FormattedDateTime string `json:"formatted_date_time"`
	DateTime          string `json:"date_time"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTodo creates a todo.
func (c *Client) CreateTodo(ctx context.Context, title string, dueDate *string, urgency int, workspaceID *string) (Todo, error) {
	body := map[string]any{"title": title}
	if dueDate != nil {
		body["due_date"] = *dueDate
	}
	if urgency > 0 {
		body["urgency"] = urgency
	}
	if workspaceID != nil {
		body["workspace_id"] = *workspaceID
	}
	var resp Todo
	err := c.do(ctx, http.MethodPost, "v1/todos", body, &resp)
	return resp, err
}

// ListTodos returns the caller's todos.
func (c *Client) ListTodos(ctx context.Context) ([]Todo, error) {
	var resp []Todo
	err := c.do(ctx, http.MethodGet, "v1/todos", nil, &resp)
	return resp, err
}

// UpdateTodo applies a partial update.
func (c *Client) UpdateTodo(ctx context.Context, id string, fields map[string]any) (Todo, error) {
	var resp Todo
	err := c.do(ctx, http.MethodPatch, "v1/todos/"+url.PathEscape(id), fields, &resp)
	return resp, err
}

// DeleteTodo removes a todo.
func (c *Client) DeleteTodo(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v1/todos/"+url.PathEscape(id), nil, nil)
}

// AddComment adds a comment to a todo.
func (c *Client) AddComment(ctx context.Context, todoID, text string) (Comment, error) {
	var resp Comment
	err := c.do(ctx, http.MethodPost, "v1/todos/"+url.PathEscape(todoID)+"/comments", map[string]any{"text": text}, &resp)
	return resp, err
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, todoID, commentID string) error {
	endpoint := fmt.Sprintf("v1/todos/%s/comments/%s", url.PathEscape(todoID), url.PathEscape(commentID))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// CreateWorkspace creates a workspace.
func (c *Client) CreateWorkspace(ctx context.Context, name string) (Workspace, error) {
	var resp Workspace
	err := c.do(ctx, http.MethodPost, "v1/workspaces", map[string]any{"name": name}, &resp)
	return resp, err
}

// ListWorkspaces returns the caller's workspaces.
func (c *Client) ListWorkspaces(ctx context.Context) ([]Workspace, error) {
	var resp []Workspace
	err := c.do(ctx, http.MethodGet, "v1/workspaces", nil, &resp)
	return resp, err
}

// DeleteWorkspace removes a workspace and everything in it.
func (c *Client) DeleteWorkspace(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v1/workspaces/"+url.PathEscape(id), nil, nil)
}

// CreateReminder asks the server to schedule a reminder for a todo.
func (c *Client) CreateReminder(ctx context.Context, todoID, instruction string) (Reminder, error) {
	var resp Reminder
	endpoint := "v1/todos/" + url.PathEscape(todoID) + "/reminders"
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"instruction": instruction}, &resp)
	return resp, err
}

// ListReminders returns reminders, optionally filtered by status.
func (c *Client) ListReminders(ctx context.Context, status string) ([]Reminder, error) {
	endpoint := "v1/reminders"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Reminder
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CancelReminder cancels a pending reminder.
func (c *Client) CancelReminder(ctx context.Context, id string) (Reminder, error) {
	var resp Reminder
	err := c.do(ctx, http.MethodPost, "v1/reminders/"+url.PathEscape(id)+"/cancel", nil, &resp)
	return resp, err
}

// ParseTodo runs one capture turn against the AI endpoint.
func (c *Client) ParseTodo(ctx context.Context, body map[string]any) (ParseResult, error) {
	var resp ParseResult
	err := c.do(ctx, http.MethodPost, "v1/ai/parse", body, &resp)
	return resp, err
}

// ResolveDate resolves a natural language date phrase.
func (c *Client) ResolveDate(ctx context.Context, text, timezone string) (Resolution, error) {
	body := map[string]any{"text": text}
	if timezone != "" {
		body["timezone"] = timezone
	}
	var resp Resolution
	err := c.do(ctx, http.MethodPost, "v1/ai/resolve-date", body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
