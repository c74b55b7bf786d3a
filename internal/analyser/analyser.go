// Package analyser is the filename analyser client (§4.3): given a bare
// filename it returns a structured Guess, backed by a remote LLM-style
// endpoint, a process-local LRU cache, and a deterministic SxxEyy fallback
// extractor for season/episode fields the remote guess leaves empty.
package analyser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mantonx/clearmedia/internal/apperr"
)

// Guess is the client's structured output for one filename.
type Guess struct {
	Title   string
	Year    int // 0 = unknown
	Type    string // "movie" or "tv"
	Season  int // tv only, 0 = unknown
	Episode int // tv only, 0 = unknown
}

type rawGuess struct {
	Title   string `json:"title"`
	Year    int    `json:"year"`
	Type    string `json:"type"`
	Season  int    `json:"season"`
	Episode int    `json:"episode"`
}

// Client calls the remote filename analyser, or falls back to a filename-
// stem guess when disabled.
type Client struct {
	logger     hclog.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	enabled    bool
	cache      *lru.Cache[string, Guess]
}

// Config carries the client's construction-time settings, mirroring the
// ANALYSER_* environment keys (§6).
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	Enabled   bool
	CacheSize int
	Timeout   time.Duration
}

func New(cfg Config, logger hclog.Logger) (*Client, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, Guess](size)
	if err != nil {
		return nil, fmt.Errorf("create analyser cache: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		enabled:    cfg.Enabled,
		cache:      cache,
	}, nil
}

var seasonEpisodePattern = regexp.MustCompile(`(?i)s(\d{1,3})e(\d{1,3})`)

// extractSeasonEpisode looks for an explicit SxxEyy-style token in filename
// and returns the season and episode it names, or (0, 0, false).
func extractSeasonEpisode(filename string) (season, episode int, ok bool) {
	m := seasonEpisodePattern.FindStringSubmatch(filename)
	if m == nil {
		return 0, 0, false
	}
	s, err1 := strconv.Atoi(m[1])
	e, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return s, e, true
}

func normalise(filename string) string {
	return strings.Join(strings.Fields(strings.ToLower(filename)), " ")
}

// Analyse returns a Guess for filename, consulting the cache first and
// augmenting the result with the filename's own SxxEyy token whenever
// season/episode are unset — independent of the type the remote analyser
// guessed, since a mislabelled "movie" guess for an episodic file must still
// carry season/episode through to the catalogue's hybrid fallback.
func (c *Client) Analyse(ctx context.Context, filename string) (Guess, error) {
	key := normalise(filename)
	if cached, ok := c.cache.Get(key); ok {
		c.logger.Debug("analyser cache hit", "filename", filename)
		return augmentWithFilenameToken(cached, filename), nil
	}

	var guess Guess
	var err error
	if c.enabled {
		guess, err = c.analyseRemote(ctx, filename)
	} else {
		guess = fallbackGuess(filename)
	}
	if err != nil {
		return Guess{}, err
	}

	guess = augmentWithFilenameToken(guess, filename)
	c.cache.Add(key, guess)
	return guess, nil
}

func augmentWithFilenameToken(g Guess, filename string) Guess {
	if g.Season == 0 || g.Episode == 0 {
		if season, episode, ok := extractSeasonEpisode(filename); ok {
			g.Season = season
			g.Episode = episode
		}
	}
	return g
}

func fallbackGuess(filename string) Guess {
	stem := filename
	if dot := strings.LastIndex(stem, "."); dot > 0 {
		stem = stem[:dot]
	}
	return Guess{Title: stem, Type: "movie"}
}

func (c *Client) analyseRemote(ctx context.Context, filename string) (Guess, error) {
	var guess Guess

	operation := func() error {
		body, err := json.Marshal(map[string]string{"filename": filename, "model": c.model})
		if err != nil {
			return apperr.NewAnalyserPermanent(fmt.Sprintf("marshal request: %v", err), err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyse", bytes.NewReader(body))
		if err != nil {
			return apperr.NewAnalyserPermanent(fmt.Sprintf("build request: %v", err), err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperr.NewAnalyserTransient(fmt.Sprintf("request failed: %v", err), err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return apperr.NewAnalyserTransient("read response body", err)
		}

		if resp.StatusCode >= 500 {
			return apperr.NewAnalyserTransient(fmt.Sprintf("analyser returned %d", resp.StatusCode), nil)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(apperr.NewAnalyserPermanent(fmt.Sprintf("analyser returned %d", resp.StatusCode), nil))
		}

		object, err := extractFirstJSONObject(raw)
		if err != nil {
			return backoff.Permanent(apperr.NewAnalyserPermanent(fmt.Sprintf("no JSON object in response: %v", err), err))
		}

		var parsed rawGuess
		if err := json.Unmarshal(object, &parsed); err != nil {
			return backoff.Permanent(apperr.NewAnalyserPermanent(fmt.Sprintf("decode guess: %v", err), err))
		}
		if parsed.Title == "" || (parsed.Type != "movie" && parsed.Type != "tv") {
			return backoff.Permanent(apperr.NewAnalyserPermanent("guess missing title or has unrecognised type", nil))
		}

		guess = Guess{
			Title:   parsed.Title,
			Year:    parsed.Year,
			Type:    parsed.Type,
			Season:  parsed.Season,
			Episode: parsed.Episode,
		}
		return nil
	}

	base := backoff.NewExponentialBackOff()
	base.InitialInterval = time.Second
	base.Multiplier = 2
	policy := backoff.WithMaxRetries(base, 4)
	if err := backoff.Retry(operation, policy); err != nil {
		if appErr, ok := apperr.As(err); ok {
			return Guess{}, appErr
		}
		return Guess{}, apperr.NewAnalyserTransient("retry budget exhausted", err)
	}
	return guess, nil
}

// extractFirstJSONObject tolerates minor wrapping noise (prose, markdown
// fences) around the analyser's JSON payload by scanning for the first
// balanced {...} span.
func extractFirstJSONObject(raw []byte) ([]byte, error) {
	start := bytes.IndexByte(raw, '{')
	if start < 0 {
		return nil, fmt.Errorf("no opening brace found")
	}
	depth := 0
	for i := start; i < len(raw); i++ {
		switch raw[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], nil
			}
		}
	}
	return nil, fmt.Errorf("no balanced closing brace found")
}
