// Package models contains domain types for sign-engine.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SignCategory is the road-sign family a catalog image belongs to.
type SignCategory string

const (
	CategoryRegulatory   SignCategory = "regulatory"
	CategoryWarning      SignCategory = "warning"
	CategoryIndication   SignCategory = "indication"
	CategoryGuidance     SignCategory = "guidance"
	CategoryAuxiliary    SignCategory = "auxiliary"
	CategoryRoadMarkings SignCategory = "road-markings"
)

// String returns the string representation of a SignCategory.
func (c SignCategory) String() string {
	return string(c)
}

// IsValid returns true if the category is one of the known sign families.
func (c SignCategory) IsValid() bool {
	switch c {
	case CategoryRegulatory, CategoryWarning, CategoryIndication,
		CategoryGuidance, CategoryAuxiliary, CategoryRoadMarkings:
		return true
	default:
		return false
	}
}

// ParseSignCategory normalizes a free-form hint into a SignCategory.
// Returns false when the hint does not name a known category.
func ParseSignCategory(hint string) (SignCategory, bool) {
	c := SignCategory(strings.ToLower(strings.TrimSpace(hint)))
	if c == "road_markings" || c == "roadmarkings" {
		c = CategoryRoadMarkings
	}
	return c, c.IsValid()
}

// Provider values for SignImageRecord.Provider
const (
	ProviderWikimedia = "wikimedia"
	ProviderManual    = "manual"
)

// SignImageRecord is one catalog image. Stored in the sign_images table.
//
// Optional text columns are surfaced as empty strings; the repository layer
// converts NULLs at the boundary so matching code never deals with pointers.
type SignImageRecord struct {
	ID               uuid.UUID    `json:"id"`
	SignCode         string       `json:"sign_code,omitempty"`
	FileName         string       `json:"file_name,omitempty"`
	FileNameSlug     string       `json:"file_name_slug,omitempty"`
	ProviderFileName string       `json:"provider_file_name,omitempty"`
	NameEn           string       `json:"name_en,omitempty"`
	NameJp           string       `json:"name_jp,omitempty"`
	MeaningText      string       `json:"meaning_text,omitempty"`
	Category         SignCategory `json:"category,omitempty"`
	StorageURL       string       `json:"storage_url"`
	IsVerified       bool         `json:"is_verified"`
	Provider         string       `json:"provider,omitempty"`
	Attribution      string       `json:"attribution,omitempty"`
	LicenseInfo      string       `json:"license_info,omitempty"`
	SourcePageURL    string       `json:"source_page_url,omitempty"`
	ArtistName       string       `json:"artist_name,omitempty"`
	UsageCount       int64        `json:"usage_count"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// IsEligible reports whether the record may be returned to end users.
func (r *SignImageRecord) IsEligible() bool {
	return r != nil && r.IsVerified && r.StorageURL != ""
}

// FileNames returns the non-empty filename-family values of the record.
func (r *SignImageRecord) FileNames() []string {
	names := make([]string, 0, 3)
	for _, n := range []string{r.FileName, r.FileNameSlug, r.ProviderFileName} {
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}

// DisplayFileName returns the most descriptive filename available.
func (r *SignImageRecord) DisplayFileName() string {
	if names := r.FileNames(); len(names) > 0 {
		return names[0]
	}
	return ""
}

// SignImageField selects a free-text column for partial matching.
type SignImageField string

const (
	FieldNameEn      SignImageField = "name_en"
	FieldNameJp      SignImageField = "name_jp"
	FieldMeaningText SignImageField = "meaning_text"
)

// Value returns the record's value for the field.
func (f SignImageField) Value(r *SignImageRecord) string {
	switch f {
	case FieldNameEn:
		return r.NameEn
	case FieldNameJp:
		return r.NameJp
	case FieldMeaningText:
		return r.MeaningText
	default:
		return ""
	}
}

// KeywordMapEntry maps a normalized search phrase to a canonical sign code.
// Stored in the sign_keywords table.
type KeywordMapEntry struct {
	Keyword  string `json:"keyword" yaml:"keyword"`
	SignCode string `json:"sign_code" yaml:"sign_code"`
}

// Source values for ImageResult.Source
const (
	ImageSourceCatalog  = "catalog"
	ImageSourceExternal = "external"
)

// Match layers reported in ImageResult.MatchedBy
const (
	MatchByID          = "sign_id"
	MatchByCode        = "sign_code"
	MatchByNameEn      = "name_en"
	MatchByNameJp      = "name_jp"
	MatchByMeaningText = "meaning_text"
	MatchByRanked      = "ranked"
	MatchByExternal    = "external_search"
)

// ImageResult is the image descriptor returned to callers.
type ImageResult struct {
	StorageURL    string `json:"storage_url"`
	SourceID      string `json:"source_id,omitempty"`
	FileName      string `json:"file_name,omitempty"`
	NameEn        string `json:"name_en,omitempty"`
	NameJp        string `json:"name_jp,omitempty"`
	SignCode      string `json:"sign_code,omitempty"`
	Attribution   string `json:"attribution,omitempty"`
	LicenseInfo   string `json:"license_info,omitempty"`
	SourcePageURL string `json:"source_page_url,omitempty"`
	ArtistName    string `json:"artist_name,omitempty"`
	Source        string `json:"source"`
	MatchedBy     string `json:"matched_by"`
	// LowConfidence marks results that did not come from the curated catalog.
	// They must not be written back into sign_images.
	LowConfidence bool `json:"low_confidence,omitempty"`
}

// NewImageResult builds a catalog ImageResult from the winning record.
func NewImageResult(r *SignImageRecord, matchedBy string) *ImageResult {
	return &ImageResult{
		StorageURL:    r.StorageURL,
		SourceID:      r.ID.String(),
		FileName:      r.DisplayFileName(),
		NameEn:        r.NameEn,
		NameJp:        r.NameJp,
		SignCode:      r.SignCode,
		Attribution:   r.Attribution,
		LicenseInfo:   r.LicenseInfo,
		SourcePageURL: r.SourcePageURL,
		ArtistName:    r.ArtistName,
		Source:        ImageSourceCatalog,
		MatchedBy:     matchedBy,
	}
}
