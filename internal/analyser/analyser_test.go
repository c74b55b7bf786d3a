package analyser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/clearmedia/internal/apperr"
)

func TestAnalyseDisabledReturnsFilenameStemFallback(t *testing.T) {
	c, err := New(Config{Enabled: false}, hclog.NewNullLogger())
	require.NoError(t, err)

	guess, err := c.Analyse(context.Background(), "Inception.2010.1080p.mkv")
	require.NoError(t, err)
	assert.Equal(t, "Inception.2010.1080p", guess.Title)
	assert.Equal(t, "movie", guess.Type)
}

func TestAnalyseAugmentsTVGuessWithFilenameSeasonEpisode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"title": "Chernobyl", "type": "tv",
		})
	}))
	defer server.Close()

	c, err := New(Config{Enabled: true, BaseURL: server.URL}, hclog.NewNullLogger())
	require.NoError(t, err)

	guess, err := c.Analyse(context.Background(), "Chernobyl.S01E02.mkv")
	require.NoError(t, err)
	assert.Equal(t, 1, guess.Season)
	assert.Equal(t, 2, guess.Episode)
}

func TestAnalyseAugmentsMislabelledMovieGuessWithFilenameSeasonEpisode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"title": "Chernobyl", "type": "movie",
		})
	}))
	defer server.Close()

	c, err := New(Config{Enabled: true, BaseURL: server.URL}, hclog.NewNullLogger())
	require.NoError(t, err)

	guess, err := c.Analyse(context.Background(), "Chernobyl.S01E02.mkv")
	require.NoError(t, err)
	assert.Equal(t, "movie", guess.Type)
	assert.Equal(t, 1, guess.Season)
	assert.Equal(t, 2, guess.Episode)
}

func TestAnalyseCachesByNormalisedFilename(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(map[string]any{"title": "Dune", "type": "movie", "year": 2021})
	}))
	defer server.Close()

	c, err := New(Config{Enabled: true, BaseURL: server.URL}, hclog.NewNullLogger())
	require.NoError(t, err)

	_, err = c.Analyse(context.Background(), "Dune.2021.mkv")
	require.NoError(t, err)
	_, err = c.Analyse(context.Background(), "  DUNE.2021.MKV  ")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

func TestAnalyseSchemaViolationIsPermanentAndNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(map[string]any{"year": 2021})
	}))
	defer server.Close()

	c, err := New(Config{Enabled: true, BaseURL: server.URL}, hclog.NewNullLogger())
	require.NoError(t, err)

	_, err = c.Analyse(context.Background(), "broken.mkv")
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindAnalyserPermanent, appErr.Kind)
	assert.Equal(t, 1, calls)
}

func TestExtractFirstJSONObjectToleratesWrappingNoise(t *testing.T) {
	raw := []byte("Here is the answer:\n```json\n{\"title\":\"Dune\",\"type\":\"movie\"}\n```\nThanks!")
	obj, err := extractFirstJSONObject(raw)
	require.NoError(t, err)

	var parsed rawGuess
	require.NoError(t, json.Unmarshal(obj, &parsed))
	assert.Equal(t, "Dune", parsed.Title)
}
