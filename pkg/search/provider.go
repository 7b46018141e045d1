// Package search implements the external image search fallback used when
// the sign catalog has no answer. Its results are unverified and flagged as
// low confidence.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/menkyo-prep/sign-engine/pkg/models"
)

// Provider finds an image for a free-text query outside the catalog.
// A nil result with a nil error means nothing usable was found.
type Provider interface {
	Search(ctx context.Context, query string) (*models.ImageResult, error)
}

// Candidate is one raw hit returned by an image search endpoint.
type Candidate struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	ContextURL string `json:"context_url,omitempty"`
}

// rejectMarkers flag drawn artwork. A rejected candidate is only ever used
// as the terminal first-raw-result fallback.
var rejectMarkers = []string{
	"illustration",
	"vector",
	"clipart",
	"clip-art",
	"clip_art",
	"clip art",
	"cartoon",
	"icon",
	"イラスト",
	"素材",
}

// preferMarkers flag real photographs and encyclopedia sources.
var preferMarkers = []string{
	"photo",
	"写真",
	"wikipedia",
	"wikimedia",
	"flickr",
}

// Templates expands a query into the bilingual search phrasings issued
// against the provider, most specific first.
func Templates(query, countryHint string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	country := strings.TrimSpace(countryHint)

	templates := []string{
		fmt.Sprintf("%s road sign %s real photo", query, country),
		fmt.Sprintf("%s 道路標識 写真", query),
		fmt.Sprintf("%s actual sign %s", query, country),
	}
	for i, t := range templates {
		templates[i] = strings.Join(strings.Fields(t), " ")
	}
	return templates
}

// SelectCandidate picks the best hit: the first preferred non-illustration,
// else the first non-illustration, else the first raw result.
func SelectCandidate(candidates []Candidate) *Candidate {
	var firstAcceptable *Candidate
	var firstRaw *Candidate

	for i := range candidates {
		c := &candidates[i]
		if strings.TrimSpace(c.URL) == "" {
			continue
		}
		if firstRaw == nil {
			firstRaw = c
		}

		text := strings.ToLower(c.URL + " " + c.Title + " " + c.ContextURL)
		if containsAny(text, rejectMarkers) {
			continue
		}
		if containsAny(text, preferMarkers) {
			return c
		}
		if firstAcceptable == nil {
			firstAcceptable = c
		}
	}

	if firstAcceptable != nil {
		return firstAcceptable
	}
	return firstRaw
}

// isPreferred reports whether the candidate would win SelectCandidate
// outright, which lets callers stop issuing further templates.
func isPreferred(c Candidate) bool {
	text := strings.ToLower(c.URL + " " + c.Title + " " + c.ContextURL)
	return !containsAny(text, rejectMarkers) && containsAny(text, preferMarkers)
}

// NewExternalResult wraps a chosen candidate as a low-confidence ImageResult.
func NewExternalResult(c *Candidate) *models.ImageResult {
	return &models.ImageResult{
		StorageURL:    c.URL,
		FileName:      c.Title,
		SourcePageURL: c.ContextURL,
		Source:        models.ImageSourceExternal,
		MatchedBy:     models.MatchByExternal,
		LowConfidence: true,
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
