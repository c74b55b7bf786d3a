// Package pathgen is the pure function from a catalogue match and the
// original file extension to the canonical destination path (§4.5). It has
// no side effects and no dependency on the rest of the pipeline: given the
// same Match it always returns the same path.
package pathgen

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mantonx/clearmedia/internal/apperr"
)

// Match is the subset of a catalogue result the path generator needs.
type Match struct {
	Type    string // "movie" or "tv"
	Title   string
	Year    int // 0 means unknown
	TmdbID  int64
	Season  int // tv only, 0 means "not yet known"
	Episode int // tv only, 0 means "not yet known"
}

var disallowed = strings.NewReplacer(
	"/", "", "\\", "", ":", "", "*", "", "?", "", `"`, "",
	"<", "", ">", "", "|", "", "\x00", "",
)

// SanitiseTitle strips characters disallowed by common filesystems and
// collapses internal whitespace, per §4.5.
func SanitiseTitle(title string) string {
	cleaned := disallowed.Replace(title)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	cleaned = strings.Trim(cleaned, " .")
	return cleaned
}

// Generate computes the absolute destination path under root for m and the
// original file's extension (including its leading dot, e.g. ".mkv").
func Generate(root string, m Match, ext string) (string, error) {
	title := SanitiseTitle(m.Title)
	if title == "" {
		return "", apperr.NewPathInsufficient("sanitised title is empty")
	}

	yearSuffix := ""
	if m.Year > 0 {
		yearSuffix = fmt.Sprintf(" (%d)", m.Year)
	}

	switch m.Type {
	case "movie":
		dirName := title + yearSuffix
		fileName := title + yearSuffix + ext
		return filepath.Join(root, "Movies", dirName, fileName), nil

	case "tv":
		season := m.Season
		if season == 0 {
			season = 1
		}
		if m.Episode == 0 {
			return "", apperr.NewPathInsufficient("tv match is missing an episode number")
		}
		dirName := title + yearSuffix
		seasonDir := fmt.Sprintf("Season %02d", season)
		fileName := fmt.Sprintf("%s - S%02dE%02d%s", title, season, m.Episode, ext)
		return filepath.Join(root, "TV", dirName, seasonDir, fileName), nil

	default:
		return "", apperr.NewPathInsufficient(fmt.Sprintf("unknown match type %q", m.Type))
	}
}
