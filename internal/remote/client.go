// Package remote implements the HTTP client for the third-party case
// management service. The service exposes one collection endpoint: POST
// creates a case, GET lists cases a page at a time with optional filters.
//
// The client distinguishes service rejections (an APIError carrying the
// service's own message) from transport failures so callers can surface the
// most specific message available per row.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"casebridge/internal/core"

	"github.com/goccy/go-json"
)

// DefaultTimeout is the per-call ceiling. Generous because the service is
// slow under load; a timeout surfaces as an ordinary per-row failure, not a
// process-fatal one.
const DefaultTimeout = 30 * time.Second

// Config holds the connection settings for the case service.
type Config struct {
	BaseURL string        // collection endpoint base, e.g. https://api.example.com/v1
	APIKey  string        // credential sent in the X-API-Key header
	Timeout time.Duration // per-call timeout (default: 30s)
}

// Client is a case-service API client. Safe for concurrent use.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewClient creates a Client from config.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// APIError is a non-success response from the case service. Message is the
// service's structured human-readable message when the body carried one.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("case service returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("case service returned %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// RemoteMessage returns the service's own message, empty when the response
// body carried none. Satisfies core.RemoteMessager.
func (e *APIError) RemoteMessage() string {
	return e.Message
}

// errorBody is the shape of the service's failure responses. Some surfaces
// use "message", older ones use "error".
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// CreateCase POSTs one payload to the collection endpoint and returns the
// created record.
func (c *Client) CreateCase(ctx context.Context, payload core.Payload) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/cases", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create case: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.apiError(resp.StatusCode, data)
	}

	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return record, nil
}

// listBody is the shape of one listing page. The completion metadata varies
// by surface: total and last_page are each optional.
type listBody struct {
	Data     []map[string]any `json:"data"`
	Total    *int             `json:"total"`
	LastPage *int             `json:"last_page"`
}

// ListCases GETs one page of the collection. Filters are passed through as
// query parameters alongside the page cursor and page size.
func (c *Client) ListCases(ctx context.Context, params core.ListParams) (core.ListPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(params.Page))
	q.Set("page_size", strconv.Itoa(params.PageSize))
	for k, v := range params.Filters {
		if v != "" {
			q.Set(k, v)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/cases?"+q.Encode(), nil)
	if err != nil {
		return core.ListPage{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return core.ListPage{}, fmt.Errorf("list cases: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.ListPage{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return core.ListPage{}, c.apiError(resp.StatusCode, data)
	}

	var body listBody
	if err := json.Unmarshal(data, &body); err != nil {
		return core.ListPage{}, fmt.Errorf("decode page: %w", err)
	}

	return core.ListPage{
		Items:    body.Data,
		Total:    body.Total,
		LastPage: body.LastPage,
	}, nil
}

// LookupCase asks whether any record matches the given identity components.
// Empty components are omitted from the filter. Used by the targeted
// duplicate-check path; reads are cheap so a page size of 1 suffices.
func (c *Client) LookupCase(ctx context.Context, first, last, email string) (bool, error) {
	filters := map[string]string{
		"fname_injured": first,
		"lname_injured": last,
		"email_injured": email,
	}
	page, err := c.ListCases(ctx, core.ListParams{
		Page:     core.DefaultFirstPage,
		PageSize: 1,
		Filters:  filters,
	})
	if err != nil {
		return false, err
	}
	return len(page.Items) > 0, nil
}

// apiError decodes the most specific message the failure body offers.
func (c *Client) apiError(status int, body []byte) error {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Message != "" {
			return &APIError{StatusCode: status, Message: eb.Message}
		}
		if eb.Error != "" {
			return &APIError{StatusCode: status, Message: eb.Error}
		}
	}
	return &APIError{StatusCode: status}
}
