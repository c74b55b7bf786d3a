// Package catalogue is the TMDb-style catalogue client (§4.4): typed search
// by title/year with a same-process rate limit, a hybrid movie/tv fallback
// when the first type search is empty, and the taxonomy's retry policy for
// transient failures.
package catalogue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/semaphore"

	"github.com/mantonx/clearmedia/internal/analyser"
	"github.com/mantonx/clearmedia/internal/apperr"
)

// Match is the subset of a catalogue result the rest of the pipeline needs.
type Match struct {
	TmdbID  int64
	Type    string // "movie" or "tv"
	Title   string
	Year    int
	Season  int // carried over from the guess, not queried per-episode
	Episode int
}

// Config mirrors the TMDB_* environment keys (§6).
type Config struct {
	BaseURL     string
	APIKey      string
	Language    string
	Enabled     bool
	Concurrency int64
	Timeout     time.Duration
}

type Client struct {
	logger     hclog.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
	language   string
	enabled    bool
	sem        *semaphore.Weighted
}

func New(cfg Config, logger hclog.Logger) *Client {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		language:   cfg.Language,
		enabled:    cfg.Enabled,
		sem:        semaphore.NewWeighted(concurrency),
	}
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Name         string `json:"name"` // tv uses "name" instead of "title"
	ReleaseDate  string `json:"release_date"`
	FirstAirDate string `json:"first_air_date"`
}

// Search performs a typed search for guess.Title, retrying once with the
// opposite media type if the first search is empty. Returns apperr.NoMatch
// when both attempts are empty.
func (c *Client) Search(ctx context.Context, guess analyser.Guess) (Match, error) {
	if !c.enabled {
		return Match{}, apperr.NewNoMatch("catalogue lookup disabled")
	}

	primaryType := guess.Type
	if primaryType != "movie" && primaryType != "tv" {
		primaryType = "movie"
	}

	result, err := c.searchByType(ctx, primaryType, guess.Title, guess.Year)
	if err != nil {
		return Match{}, err
	}
	if result == nil {
		fallbackType := oppositeType(primaryType)
		c.logger.Debug("primary type search empty, attempting hybrid fallback", "title", guess.Title, "from", primaryType, "to", fallbackType)
		result, err = c.searchByType(ctx, fallbackType, guess.Title, guess.Year)
		if err != nil {
			return Match{}, err
		}
		if result == nil {
			return Match{}, apperr.NewNoMatch("catalogue returned no results")
		}
		primaryType = fallbackType
	}

	match := *result
	match.Type = primaryType
	match.Season = guess.Season
	match.Episode = guess.Episode
	return match, nil
}

func oppositeType(t string) string {
	if t == "movie" {
		return "tv"
	}
	return "movie"
}

func (c *Client) searchByType(ctx context.Context, mediaType, title string, year int) (*Match, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, apperr.NewCancelled("acquiring catalogue semaphore")
	}
	defer c.sem.Release(1)

	endpoint := "movie"
	if mediaType == "tv" {
		endpoint = "tv"
	}

	var parsed searchResponse
	operation := func() error {
		q := url.Values{}
		q.Set("query", title)
		q.Set("api_key", c.apiKey)
		if c.language != "" {
			q.Set("language", c.language)
		}
		if year > 0 {
			if mediaType == "movie" {
				q.Set("year", fmt.Sprintf("%d", year))
			} else {
				q.Set("first_air_date_year", fmt.Sprintf("%d", year))
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf("%s/search/%s?%s", c.baseURL, endpoint, q.Encode()), nil)
		if err != nil {
			return backoff.Permanent(apperr.NewCataloguePermanent(fmt.Sprintf("build request: %v", err), err))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperr.NewCatalogueTransient(fmt.Sprintf("request failed: %v", err), err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return apperr.NewCatalogueTransient("rate limited (429)", nil)
		case resp.StatusCode >= 500:
			return apperr.NewCatalogueTransient(fmt.Sprintf("catalogue returned %d", resp.StatusCode), nil)
		case resp.StatusCode >= 400:
			return backoff.Permanent(apperr.NewCataloguePermanent(fmt.Sprintf("catalogue returned %d", resp.StatusCode), nil))
		}

		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return backoff.Permanent(apperr.NewCataloguePermanent(fmt.Sprintf("decode response: %v", err), err))
		}
		return nil
	}

	base := backoff.NewExponentialBackOff()
	base.InitialInterval = time.Second
	base.Multiplier = 2
	policy := backoff.WithMaxRetries(base, 4)
	if err := backoff.Retry(operation, policy); err != nil {
		if appErr, ok := apperr.As(err); ok {
			return nil, appErr
		}
		return nil, apperr.NewCatalogueTransient("retry budget exhausted", err)
	}

	if len(parsed.Results) == 0 {
		return nil, nil
	}

	top := parsed.Results[0]
	name := top.Title
	date := top.ReleaseDate
	if mediaType == "tv" {
		name = top.Name
		date = top.FirstAirDate
	}

	return &Match{
		TmdbID: top.ID,
		Title:  name,
		Year:   yearFromDate(date),
	}, nil
}

func yearFromDate(date string) int {
	if len(date) < 4 {
		return 0
	}
	var year int
	if _, err := fmt.Sscanf(date[:4], "%d", &year); err != nil {
		return 0
	}
	return year
}
