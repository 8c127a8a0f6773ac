// Package filter decides from an item's name alone whether it can be excluded
// without calling the detail API.
package filter

import (
	"regexp"
	"strings"
)

// defaultKeywords are substrings that typically mark non-game entries.
var defaultKeywords = []string{
	// demos and trials
	"demo", "trial", "test", "preview", "beta", "alpha",
	// trailers and media
	"trailer", "video", "movie", "cinematic", "cutscene",
	// DLC and expansions
	"dlc", "expansion", "addon", "pack", "bundle",
	// software and tools
	"editor", "creator", "tool", "sdk", "kit", "mod",
	// content types
	"soundtrack", "ost", "music", "artbook", "guide", "manual",
	// platform and engine
	"steam", "workshop", "source", "unity", "unreal",
	// delisting markers
	"removed", "delisted", "discontinued", "obsolete",
	"test_", "_test", "_demo", "_trailer", "_dlc",
}

var defaultPatterns = []*regexp.Regexp{
	regexp.MustCompile(`demo$`),
	regexp.MustCompile(`trailer$`),
	regexp.MustCompile(`dlc$`),
	regexp.MustCompile(`soundtrack$`),
	regexp.MustCompile(`^test`),
	regexp.MustCompile(`^steam`),
	regexp.MustCompile(`\s+demo\s+`),
	regexp.MustCompile(`\s+trailer\s+`),
	regexp.MustCompile(`\s+dlc\s+`),
}

// Heuristic matches lower-cased names against keyword and pattern lists. It is an
// approximation that accepts some false exclusions; a name that does not match
// says nothing about whether the item is a game.
type Heuristic struct {
	keywords []string
	patterns []*regexp.Regexp
}

// NewHeuristic builds a Heuristic from the default lists plus extra keywords.
func NewHeuristic(extraKeywords ...string) *Heuristic {
	keywords := append([]string(nil), defaultKeywords...)
	for _, kw := range extraKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return &Heuristic{keywords: keywords, patterns: defaultPatterns}
}

var defaultHeuristic = NewHeuristic()

// LikelyExcluded applies the default heuristic.
func LikelyExcluded(name string) bool {
	return defaultHeuristic.LikelyExcluded(name)
}

// LikelyExcluded reports whether name looks like a non-game entry. It returns on
// the first matching rule.
func (h *Heuristic) LikelyExcluded(name string) bool {
	lower := strings.ToLower(name)
	if lower == "" {
		return false
	}
	for _, kw := range h.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	for _, p := range h.patterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

// Keywords returns a copy of the configured keyword list.
func (h *Heuristic) Keywords() []string {
	return append([]string(nil), h.keywords...)
}

// Disabled never excludes anything; it backs the --no-name-filter mode.
type Disabled struct{}

// LikelyExcluded always returns false.
func (Disabled) LikelyExcluded(string) bool { return false }
