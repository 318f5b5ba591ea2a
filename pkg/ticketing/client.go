package ticketing

import (
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

	pkgerrors "github.com/mverdugo-dev/tempora-backend/pkg/errors"
)

const (
	defaultTimeout               = 30 * time.Second
	responseBodyReadLimit  int64 = 1024
)

var errBaseURLRequired = errors.New("ticketing base url is required")

// Client wraps the upstream ticketing system's change-feed API. The sync
// worker pulls timesheet and approval changes from here.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiToken   string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewClient builds the ticketing client given the API base URL and token.
func NewClient(baseURL, apiToken string, opts ...Option) (*Client, error) {
	trimmedURL := strings.TrimSpace(baseURL)
	if trimmedURL == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		baseURL:    strings.TrimRight(trimmedURL, "/"),
		apiToken:   strings.TrimSpace(apiToken),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return client, nil
}

// Change is one upstream record the sync worker has to apply.
type Change struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Operation string          `json:"operation"`
	Payload   json.RawMessage `json:"payload"`
	ChangedAt time.Time       `json:"changedAt"`
}

// ChangePage is one page of the upstream change feed.
type ChangePage struct {
	Changes    []Change `json:"changes"`
	NextCursor string   `json:"nextCursor"`
	HasMore    bool     `json:"hasMore"`
}

// FetchChanges retrieves one page of upstream changes since the given cursor.
// An empty cursor starts from the beginning of the feed.
func (c *Client) FetchChanges(ctx context.Context, cursor string, pageSize int) (*ChangePage, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ticketing client not configured")
	}
	if pageSize <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "page size must be positive")
	}

	query := url.Values{}
	query.Set("pageSize", strconv.Itoa(pageSize))
	if strings.TrimSpace(cursor) != "" {
		query.Set("cursor", cursor)
	}

	endpoint := fmt.Sprintf("%s/v1/changes?%s", c.baseURL, query.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build change feed request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.apiToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute change feed request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(
			pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"change feed request failed",
		)
	}

	var page ChangePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode change feed response")
	}

	return &page, nil
}

// Ping checks the upstream API is reachable and the token is accepted.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "ticketing client not configured")
	}

	endpoint := c.baseURL + "/v1/health"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build health request")
	}
	if c.apiToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute health request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("ticketing health returned status %d", resp.StatusCode))
	}
	return nil
}
