// Package search matches gigs against the marketplace filters.
package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"gigflow/internal/models"
)

// fold lowercases s, strips diacritics and collapses whitespace.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

// NormalizeCityKey reduces "São Paulo/SP", "São Paulo, SP" or "São Paulo - SP"
// to "sao paulo".
func NormalizeCityKey(raw string) string {
	s := raw
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, ","); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, " - "); i >= 0 {
		s = s[:i]
	}
	return fold(s)
}

// CityMatches reports whether the gig city starts with the filter. An empty
// filter matches every city.
func CityMatches(gigCity, filter string) bool {
	key := NormalizeCityKey(filter)
	if key == "" {
		return true
	}
	return strings.HasPrefix(NormalizeCityKey(gigCity), key)
}

type Filter struct {
	City  string
	Genre string
	Query string
}

func (f Filter) IsZero() bool {
	return strings.TrimSpace(f.City) == "" && strings.TrimSpace(f.Genre) == "" && strings.TrimSpace(f.Query) == ""
}

// Matches applies every non-empty part of f to g.
func (f Filter) Matches(g *models.Gig) bool {
	if !CityMatches(g.City, f.City) {
		return false
	}
	if genre := strings.TrimSpace(f.Genre); genre != "" && !g.HasGenre(genre) {
		return false
	}
	if q := fold(f.Query); q != "" {
		haystack := fold(g.Title + " " + g.Description + " " + g.Location)
		for _, word := range strings.Fields(q) {
			if !strings.Contains(haystack, word) {
				return false
			}
		}
	}
	return true
}

// FilterGigs keeps the gigs matching f, in input order.
func FilterGigs(gigs []models.Gig, f Filter) []models.Gig {
	if f.IsZero() {
		return gigs
	}
	out := make([]models.Gig, 0, len(gigs))
	for i := range gigs {
		if f.Matches(&gigs[i]) {
			out = append(out, gigs[i])
		}
	}
	return out
}
