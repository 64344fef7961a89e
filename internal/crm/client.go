package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds configuration for the CRM API client.
type Config struct {
	BaseURL  string
	Token    string        // bearer token
	Timeout  time.Duration // default: 30s
	PageSize int           // default: 100
}

// Client is a paged, bearer-authenticated HTTP client for the CRM API.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient creates a CRM client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = 100
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// page is the envelope every list endpoint returns. NextPage is 0 on the
// last page.
type page struct {
	Items    json.RawMessage `json:"items"`
	NextPage int             `json:"next_page"`
}

// FetchOrganizations retrieves all organizations, walking every page.
func (c *Client) FetchOrganizations(ctx context.Context) ([]Organization, error) {
	var all []Organization
	err := c.fetchAll(ctx, "/v1/organizations", func(items json.RawMessage) error {
		var batch []Organization
		if err := json.Unmarshal(items, &batch); err != nil {
			return fmt.Errorf("crm: failed to decode organizations: %w", err)
		}
		all = append(all, batch...)
		return nil
	})
	return all, err
}

// FetchPeople retrieves all people, walking every page.
func (c *Client) FetchPeople(ctx context.Context) ([]Person, error) {
	var all []Person
	err := c.fetchAll(ctx, "/v1/people", func(items json.RawMessage) error {
		var batch []Person
		if err := json.Unmarshal(items, &batch); err != nil {
			return fmt.Errorf("crm: failed to decode people: %w", err)
		}
		all = append(all, batch...)
		return nil
	})
	return all, err
}

// FetchNotes retrieves interaction records updated since the given time.
// A zero since fetches everything.
func (c *Client) FetchNotes(ctx context.Context, since time.Time) ([]Note, error) {
	path := "/v1/notes"
	if !since.IsZero() {
		path += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	}
	var all []Note
	err := c.fetchAll(ctx, path, func(items json.RawMessage) error {
		var batch []Note
		if err := json.Unmarshal(items, &batch); err != nil {
			return fmt.Errorf("crm: failed to decode notes: %w", err)
		}
		all = append(all, batch...)
		return nil
	})
	return all, err
}

// fetchAll walks the paged endpoint, invoking onPage for each items payload.
func (c *Client) fetchAll(ctx context.Context, path string, onPage func(json.RawMessage) error) error {
	pageNum := 1
	for {
		p, err := c.fetchPage(ctx, path, pageNum)
		if err != nil {
			return err
		}
		if err := onPage(p.Items); err != nil {
			return err
		}
		if p.NextPage == 0 {
			return nil
		}
		if p.NextPage <= pageNum {
			return fmt.Errorf("crm: endpoint %s returned non-advancing next_page %d", path, p.NextPage)
		}
		pageNum = p.NextPage
	}
}

func (c *Client) fetchPage(ctx context.Context, path string, pageNum int) (*page, error) {
	u := c.cfg.BaseURL + path
	sep := "?"
	if _, query, found := cutQuery(path); found && query != "" {
		sep = "&"
	}
	u += sep + "page=" + strconv.Itoa(pageNum) + "&page_size=" + strconv.Itoa(c.cfg.PageSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("crm: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crm: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("crm: %s returned status %d: %s", path, resp.StatusCode, string(body))
	}

	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("crm: failed to decode page: %w", err)
	}
	return &p, nil
}

func cutQuery(path string) (before, after string, found bool) {
	for i := 0; i < len(path); i++ {
		if path[i] == '?' {
			return path[:i], path[i+1:], true
		}
	}
	return path, "", false
}
