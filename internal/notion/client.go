// Package notion is a thin client for the Notion pages and blocks endpoints
// used to mirror vault tasks into a database.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/tasksync/internal/apperr"
)

const (
	DefaultBaseURL = "https://api.notion.com/v1"
	DefaultVersion = "2022-06-28"
	// DefaultTimeout bounds one HTTP exchange, body included.
	DefaultTimeout = 30 * time.Second

	// maxBlocksPerRequest is the API limit on children per append call.
	maxBlocksPerRequest = 100
	pageSize            = 100
	maxResponseBytes    = 16 << 20
)

// Properties names the database columns the client reads and writes.
type Properties struct {
	Title  string
	Status string
	Tags   string
}

// Config holds the connection settings.
type Config struct {
	Token      string
	DatabaseID string
	BaseURL    string
	Version    string
	Properties Properties
	// Tags are written to the multi-select Tags property on create.
	Tags []string
	// Timeout applies to the default HTTP client. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Client performs authenticated requests against the API. It never retries.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger used for swallowed failures.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client. Empty config fields fall back to the public
// API endpoint, the pinned API version, the stock property names and
// DefaultTimeout.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.Properties.Title == "" {
		cfg.Properties.Title = "Name"
	}
	if cfg.Properties.Status == "" {
		cfg.Properties.Status = "Status"
	}
	if cfg.Properties.Tags == "" {
		cfg.Properties.Tags = "Tags"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreatePage creates a database entry with title and status, then attaches
// children as its body. A failed body attach is logged and the page URL is
// still returned: a page without body is an accepted degraded state.
func (c *Client) CreatePage(ctx context.Context, title, status string, children []Block) (string, error) {
	props := c.properties(title, status)
	if len(c.cfg.Tags) > 0 {
		opts := make([]Option, len(c.cfg.Tags))
		for i, t := range c.cfg.Tags {
			opts[i] = Option{Name: t}
		}
		props[c.cfg.Properties.Tags] = Property{MultiSelect: opts}
	}

	var page Page
	req := createPageRequest{
		Parent:     parent{DatabaseID: c.cfg.DatabaseID},
		Properties: props,
	}
	if err := c.do(ctx, http.MethodPost, "/pages", req, &page); err != nil {
		return "", fmt.Errorf("notion: create page: %w", err)
	}
	if page.URL == "" || page.ID == "" {
		return "", fmt.Errorf("notion: create page: response carries no id or url")
	}

	if len(children) > 0 {
		if err := c.AppendChildren(ctx, page.ID, children); err != nil {
			c.logger.Warn("notion: attach page body failed, keeping bare page",
				slog.String("page_id", page.ID),
				slog.String("error", err.Error()))
		}
	}
	return page.URL, nil
}

// GetPage fetches a page. A missing, archived or trashed page yields
// apperr.ErrNotFound.
func (c *Client) GetPage(ctx context.Context, id string) (*Record, error) {
	var page Page
	if err := c.do(ctx, http.MethodGet, "/pages/"+url.PathEscape(id), nil, &page); err != nil {
		return nil, fmt.Errorf("notion: get page %s: %w", id, err)
	}
	if page.Archived || page.InTrash {
		return nil, fmt.Errorf("notion: get page %s: archived: %w", id, apperr.ErrNotFound)
	}
	return &Record{
		ID:     page.ID,
		URL:    page.URL,
		Title:  PlainText(page.Properties[c.cfg.Properties.Title].Title),
		Status: statusName(page.Properties[c.cfg.Properties.Status]),
	}, nil
}

// UpdatePageProperties overwrites the title and status of a page.
func (c *Client) UpdatePageProperties(ctx context.Context, id, title, status string) error {
	req := updatePageRequest{Properties: c.properties(title, status)}
	if err := c.do(ctx, http.MethodPatch, "/pages/"+url.PathEscape(id), req, nil); err != nil {
		return fmt.Errorf("notion: update page %s: %w", id, err)
	}
	return nil
}

// AppendChildren adds blocks to the end of a page or block, in batches the
// API accepts.
func (c *Client) AppendChildren(ctx context.Context, id string, children []Block) error {
	for start := 0; start < len(children); start += maxBlocksPerRequest {
		end := min(start+maxBlocksPerRequest, len(children))
		req := appendChildrenRequest{Children: children[start:end]}
		if err := c.do(ctx, http.MethodPatch, "/blocks/"+url.PathEscape(id)+"/children", req, nil); err != nil {
			return fmt.Errorf("notion: append children to %s (blocks %d-%d): %w", id, start, end, err)
		}
	}
	return nil
}

// ListChildren returns every direct child of a block, following pagination.
func (c *Client) ListChildren(ctx context.Context, id string) ([]Block, error) {
	var out []Block
	cursor := ""
	for {
		q := url.Values{}
		q.Set("page_size", fmt.Sprint(pageSize))
		if cursor != "" {
			q.Set("start_cursor", cursor)
		}
		var list blockList
		path := "/blocks/" + url.PathEscape(id) + "/children?" + q.Encode()
		if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
			return nil, fmt.Errorf("notion: list children of %s: %w", id, err)
		}
		out = append(out, list.Results...)
		if !list.HasMore || list.NextCursor == nil || *list.NextCursor == "" {
			return out, nil
		}
		cursor = *list.NextCursor
	}
}

// ReplaceChildren deletes the current body of a page and appends children.
// Deletes are issued one at a time: the API rejects overlapping deletes under
// the same parent with 409. A failed append leaves the body empty; the next
// successful replace restores it.
func (c *Client) ReplaceChildren(ctx context.Context, id string, children []Block) error {
	old, err := c.ListChildren(ctx, id)
	if err != nil {
		return err
	}
	for _, b := range old {
		if err := c.DeleteBlock(ctx, b.ID); err != nil {
			return err
		}
	}
	return c.AppendChildren(ctx, id, children)
}

// DeleteBlock archives a block or a whole page. Deleting something already
// gone succeeds.
func (c *Client) DeleteBlock(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/blocks/"+url.PathEscape(id), nil, nil)
	if err == nil {
		return nil
	}
	if errors.Is(err, apperr.ErrNotFound) || isArchived(err) {
		c.logger.Debug("notion: block already gone", slog.String("block_id", id))
		return nil
	}
	return fmt.Errorf("notion: delete block %s: %w", id, err)
}

func (c *Client) properties(title, status string) map[string]Property {
	return map[string]Property{
		c.cfg.Properties.Title:  {Title: []RichText{textRun(title)}},
		c.cfg.Properties.Status: {Status: &Option{Name: status}},
	}
}

func statusName(p Property) string {
	if p.Status == nil {
		return ""
	}
	return p.Status.Name
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Notion-Version", c.cfg.Version)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
