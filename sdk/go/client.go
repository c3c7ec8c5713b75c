package jorfsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal JORF HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Request represents the API request model.
type Request struct {
	ID            int64       `json:"id"`
	JorfID        string      `json:"jorf_id"`
	RequestorID   string      `json:"requestor_id"`
	RequestorName string      `json:"requestor_name"`
	Department    string      `json:"department"`
	RequestType   string      `json:"request_type"`
	Details       string      `json:"details"`
	Remarks       string      `json:"remarks,omitempty"`
	Status        int         `json:"status"`
	StatusLabel   string      `json:"status_label"`
	StatusColor   string      `json:"status_color"`
	Critical      bool        `json:"critical"`
	CostAmount    json.Number `json:"cost_amount,omitempty"`
	Rating        *int        `json:"rating,omitempty"`
	HandledBy     []string    `json:"handled_by"`
	CreatedAt     string      `json:"created_at"`
	UpdatedAt     string      `json:"updated_at"`
	Actions       []string    `json:"actions,omitempty"`
}

// AuditEntry is one line of a request's trail.
type AuditEntry struct {
	ID         int64          `json:"id"`
	RequestID  int64          `json:"request_id"`
	ActionType string         `json:"action_type"`
	ActorID    string         `json:"actor_id"`
	ActorName  string         `json:"actor_name"`
	OldValues  map[string]any `json:"old_values,omitempty"`
	NewValues  map[string]any `json:"new_values,omitempty"`
	Remarks    string         `json:"remarks,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

// Notification is an inbox item.
type Notification struct {
	ID             string  `json:"id"`
	JorfID         string  `json:"jorf_id"`
	Message        string  `json:"message"`
	Category       string  `json:"category"`
	ActionRequired string  `json:"action_required,omitempty"`
	ReadAt         *string `json:"read_at,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

// StatusCount is one tab of the status summary.
type StatusCount struct {
	Label  string `json:"label"`
	Status int    `json:"status"`
	Color  string `json:"color"`
	Count  int    `json:"count"`
}

// Delivery summarizes the notification fan-out of one call.
type Delivery struct {
	Total     int `json:"total"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

type SubmitInput struct {
	RequestType string `json:"request_type"`
	Details     string `json:"details"`
	Remarks     string `json:"remarks,omitempty"`
}

type ActInput struct {
	Action     string      `json:"action"`
	Remarks    string      `json:"remarks,omitempty"`
	CostAmount json.Number `json:"cost_amount,omitempty"`
	HandledBy  []string    `json:"handled_by,omitempty"`
	Rating     *int        `json:"rating,omitempty"`
}

type ActResult struct {
	Request  Request    `json:"request"`
	Audit    AuditEntry `json:"audit"`
	Notified Delivery   `json:"notified"`
}

type ListOptions struct {
	Status      string
	RequestType string
	Search      string
	SortBy      string
	Desc        bool
	Page        int
	PageSize    int
}

type RequestPage struct {
	Items    []Request `json:"items"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}

type LogPage struct {
	Items    []AuditEntry `json:"items"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

type Inbox struct {
	Items  []Notification `json:"items"`
	Unread int            `json:"unread"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Submit files a new request for the authenticated requestor.
func (c *Client) Submit(ctx context.Context, in SubmitInput) (Request, error) {
	var resp struct {
		Request Request `json:"request"`
	}
	err := c.do(ctx, http.MethodPost, "requests", in, &resp)
	return resp.Request, err
}

// Get fetches one request.
func (c *Client) Get(ctx context.Context, jorfID string) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodGet, "requests/"+url.PathEscape(jorfID), nil, &resp)
	return resp, err
}

// List returns one page of requests visible to the caller.
func (c *Client) List(ctx context.Context, opts ListOptions) (RequestPage, error) {
	q := url.Values{}
	setQuery(q, "status", opts.Status)
	setQuery(q, "request_type", opts.RequestType)
	setQuery(q, "search", opts.Search)
	setQuery(q, "sort_by", opts.SortBy)
	if opts.Desc {
		q.Set("order", "desc")
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(opts.PageSize))
	}
	var resp RequestPage
	err := c.do(ctx, http.MethodGet, withQuery("requests", q), nil, &resp)
	return resp, err
}

// Counts returns the per-status summary.
func (c *Client) Counts(ctx context.Context, search string) ([]StatusCount, error) {
	q := url.Values{}
	setQuery(q, "search", search)
	var resp []StatusCount
	err := c.do(ctx, http.MethodGet, withQuery("requests/counts", q), nil, &resp)
	return resp, err
}

// Actions lists what the caller may do to a request right now.
func (c *Client) Actions(ctx context.Context, jorfID string) ([]string, error) {
	var resp struct {
		Actions []string `json:"actions"`
	}
	err := c.do(ctx, http.MethodGet, "requests/"+url.PathEscape(jorfID)+"/actions", nil, &resp)
	return resp.Actions, err
}

// Act applies a workflow action.
func (c *Client) Act(ctx context.Context, jorfID string, in ActInput) (ActResult, error) {
	var resp ActResult
	err := c.do(ctx, http.MethodPost, "requests/"+url.PathEscape(jorfID)+"/actions", in, &resp)
	return resp, err
}

// Logs returns one page of the audit trail.
func (c *Client) Logs(ctx context.Context, jorfID string, page int) (LogPage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	var resp LogPage
	err := c.do(ctx, http.MethodGet, withQuery("requests/"+url.PathEscape(jorfID)+"/logs", q), nil, &resp)
	return resp, err
}

// Notifications returns the caller's inbox.
func (c *Client) Notifications(ctx context.Context, unreadOnly bool) (Inbox, error) {
	q := url.Values{}
	if unreadOnly {
		q.Set("unread", "true")
	}
	var resp Inbox
	err := c.do(ctx, http.MethodGet, withQuery("notifications", q), nil, &resp)
	return resp, err
}

// MarkRead marks one notification read.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "notifications/"+url.PathEscape(id)+"/read", nil, nil)
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
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}

func setQuery(q url.Values, key, value string) {
	if strings.TrimSpace(value) != "" {
		q.Set(key, value)
	}
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}
