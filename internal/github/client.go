// internal/github/client.go
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"
)

// ErrMissingItems is returned when a search response carries no "items"
// field. The whole request is treated as failed in that case.
var ErrMissingItems = errors.New(`search response has no "items" field`)

// Client is a wrapper around the go-github client, scoped to the
// repository search API.
type Client struct {
	gh     *github.Client
	logger *slog.Logger
}

// NewClient creates and configures a new Client instance. An empty token is
// allowed; unauthenticated requests work against lower rate limits.
func NewClient(token string, logger *slog.Logger) *Client {
	httpClient := http.DefaultClient
	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		httpClient = oauth2.NewClient(context.Background(), ts)
	}

	return &Client{
		gh:     github.NewClient(httpClient),
		logger: logger,
	}
}

// WithBaseURL points the client at an alternate API endpoint. Used by tests
// to target a local httptest server.
func (c *Client) WithBaseURL(baseURL string) error {
	gh, err := c.gh.WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return err
	}
	c.gh = gh
	return nil
}

// RepoItem is the explicit boundary schema for one repository record of the
// search payload. Optional upstream fields are pointers.
type RepoItem struct {
	FullName        string    `json:"full_name"`
	HTMLURL         string    `json:"html_url"`
	Description     *string   `json:"description"`
	StargazersCount int       `json:"stargazers_count"`
	ForksCount      int       `json:"forks_count"`
	CreatedAt       time.Time `json:"created_at"`
	Language        *string   `json:"language"`
	Topics          []string  `json:"topics"`
}

// SearchResult holds one page of search results. Items stay raw so that a
// single malformed record can be skipped without failing the page.
type SearchResult struct {
	TotalCount int
	Items      []json.RawMessage
}

type searchResponse struct {
	TotalCount int               `json:"total_count"`
	Items      []json.RawMessage `json:"items"`
}

// Search issues one page of a repository search, sorted by stars descending.
func (c *Client) Search(ctx context.Context, query string, page, perPage int) (*SearchResult, error) {
	u := fmt.Sprintf("search/repositories?q=%s&sort=stars&order=desc&per_page=%d&page=%d",
		url.QueryEscape(query), perPage, page)

	c.logger.Debug("Calling search API", "query", query, "page", page, "per_page", perPage)

	req, err := c.gh.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var body searchResponse
	if _, err := c.gh.Do(ctx, req, &body); err != nil {
		return nil, err
	}
	if body.Items == nil {
		return nil, ErrMissingItems
	}

	return &SearchResult{TotalCount: body.TotalCount, Items: body.Items}, nil
}
