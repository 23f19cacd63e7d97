// Package catalog looks anime up in the public Jikan API (the unofficial
// MyAnimeList API, v4). Results are mapped into model.CatalogAnime so the
// rest of the application never sees Jikan's wire format.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jsedeno/anitrack/internal/apperror"
	"github.com/jsedeno/anitrack/internal/model"
)

const (
	defaultBaseURL = "https://api.jikan.moe/v4"
	searchPageSize = 20
	requestTimeout = 10 * time.Second
)

// Client talks to Jikan over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client against the public Jikan endpoint.
func NewClient() *Client {
	return NewClientWithBaseURL(defaultBaseURL)
}

// NewClientWithBaseURL is for tests pointing at an httptest server.
func NewClientWithBaseURL(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// jikanAnime is the subset of Jikan's anime object we care about.
type jikanAnime struct {
	MalID  int    `json:"mal_id"`
	Title  string `json:"title"`
	Images struct {
		JPG struct {
			ImageURL string `json:"image_url"`
		} `json:"jpg"`
	} `json:"images"`
	Episodes *int     `json:"episodes"`
	Score    *float64 `json:"score"`
	Synopsis string   `json:"synopsis"`
}

type searchResponse struct {
	Data       []jikanAnime `json:"data"`
	Pagination struct {
		HasNextPage bool `json:"has_next_page"`
	} `json:"pagination"`
}

type detailResponse struct {
	Data jikanAnime `json:"data"`
}

// SearchResult is one page of catalog matches.
type SearchResult struct {
	Anime       []model.CatalogAnime
	HasNextPage bool
}

// Search queries the catalog by title. Pages start at 1.
func (c *Client) Search(ctx context.Context, query string, page int) (*SearchResult, error) {
	if query == "" {
		return nil, apperror.ValidationFailed("query", "search query is required")
	}
	if page < 1 {
		page = 1
	}

	u := fmt.Sprintf("%s/anime?q=%s&page=%d&limit=%d&sfw=true",
		c.baseURL, url.QueryEscape(query), page, searchPageSize)

	var parsed searchResponse
	if err := c.getJSON(ctx, u, &parsed); err != nil {
		return nil, fmt.Errorf("catalog: searching %q: %w", query, err)
	}

	result := &SearchResult{
		Anime:       make([]model.CatalogAnime, 0, len(parsed.Data)),
		HasNextPage: parsed.Pagination.HasNextPage,
	}
	for _, a := range parsed.Data {
		result.Anime = append(result.Anime, toCatalogAnime(a))
	}
	return result, nil
}

// GetByID fetches one anime by its MyAnimeList ID.
func (c *Client) GetByID(ctx context.Context, id int) (*model.CatalogAnime, error) {
	if id <= 0 {
		return nil, apperror.ValidationFailed("id", "anime id must be positive")
	}

	u := fmt.Sprintf("%s/anime/%d", c.baseURL, id)

	var parsed detailResponse
	if err := c.getJSON(ctx, u, &parsed); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("anime", strconv.Itoa(id))
		}
		return nil, fmt.Errorf("catalog: fetching anime %d: %w", id, err)
	}

	anime := toCatalogAnime(parsed.Data)
	return &anime, nil
}

// getJSON performs a GET and decodes the body. Jikan rate-limits aggressively
// (3 req/s), so a 429 gets one retry after the advertised backoff.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	resp, err := c.do(ctx, url)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		select {
		case <-time.After(retryDelay(resp)):
		case <-ctx.Done():
			return ctx.Err()
		}
		resp, err = c.do(ctx, url)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperror.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", url, err)
	}
	return resp, nil
}

func retryDelay(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 && secs <= 10 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Second
}

func toCatalogAnime(a jikanAnime) model.CatalogAnime {
	return model.CatalogAnime{
		ID:       a.MalID,
		Title:    a.Title,
		ImageURL: a.Images.JPG.ImageURL,
		Episodes: a.Episodes,
		Score:    a.Score,
		Synopsis: a.Synopsis,
	}
}
