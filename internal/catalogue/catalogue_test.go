package catalogue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantonx/clearmedia/internal/analyser"
	"github.com/mantonx/clearmedia/internal/apperr"
)

func TestSearchDisabledAlwaysYieldsNoMatch(t *testing.T) {
	c := New(Config{Enabled: false}, hclog.NewNullLogger())
	_, err := c.Search(context.Background(), analyser.Guess{Title: "Dune", Type: "movie"})
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindNoMatch, appErr.Kind)
}

func TestSearchReturnsTopResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"id":27205,"title":"Inception","release_date":"2010-07-16"}]}`))
	}))
	defer server.Close()

	c := New(Config{Enabled: true, BaseURL: server.URL}, hclog.NewNullLogger())
	match, err := c.Search(context.Background(), analyser.Guess{Title: "Inception", Type: "movie", Year: 2010})
	require.NoError(t, err)
	assert.Equal(t, int64(27205), match.TmdbID)
	assert.Equal(t, "movie", match.Type)
	assert.Equal(t, 2010, match.Year)
}

func TestSearchHybridFallsBackToOppositeType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/search/movie" {
			_, _ = w.Write([]byte(`{"results":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"id":87108,"name":"Chernobyl","first_air_date":"2019-05-06"}]}`))
	}))
	defer server.Close()

	c := New(Config{Enabled: true, BaseURL: server.URL}, hclog.NewNullLogger())
	match, err := c.Search(context.Background(), analyser.Guess{Title: "Chernobyl", Type: "movie", Season: 1, Episode: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(87108), match.TmdbID)
	assert.Equal(t, "tv", match.Type)
	assert.Equal(t, 1, match.Season)
	assert.Equal(t, 2, match.Episode)
}

func TestSearchBothTypesEmptyYieldsNoMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	c := New(Config{Enabled: true, BaseURL: server.URL}, hclog.NewNullLogger())
	_, err := c.Search(context.Background(), analyser.Guess{Title: "Unknown Thing", Type: "movie"})
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindNoMatch, appErr.Kind)
}

func TestSearchPermanentOn4xx(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := New(Config{Enabled: true, BaseURL: server.URL}, hclog.NewNullLogger())
	_, err := c.Search(context.Background(), analyser.Guess{Title: "X", Type: "movie"})
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindCataloguePermanent, appErr.Kind)
	assert.Equal(t, 1, calls)
}
