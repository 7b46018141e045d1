package services

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/menkyo-prep/sign-engine/pkg/logging"
	"github.com/menkyo-prep/sign-engine/pkg/models"
	"github.com/menkyo-prep/sign-engine/pkg/repositories"
)

// signCodePattern finds a 3-digit sign number with an optional numeric
// suffix and an optional single-letter variant, e.g. "326", "212-3",
// "116_2_a". Digits adjacent to the match disqualify it, so "1326" does
// not yield "326".
var signCodePattern = regexp.MustCompile(`(?:^|[^0-9])(\d{3}(?:[-_]\d+)?(?:[-_][a-z]\b)?)(?:[^0-9]|$)`)

// canonicalCodePattern validates an already canonical sign code.
var canonicalCodePattern = regexp.MustCompile(`^\d{3}(?:-\d+)?(?:-[A-Z])?$`)

// IsSignCode reports whether code is a well-formed sign code once canonicalized.
func IsSignCode(code string) bool {
	return canonicalCodePattern.MatchString(models.CanonicalSignCode(code))
}

// codeMetadataLimit bounds the catalog rows scanned when recovering a code
// from a name match.
const codeMetadataLimit = 20

// SignCodeExtractor recovers a canonical sign code from free text.
type SignCodeExtractor interface {
	// Extract returns the canonical code for query, or "" when none is found.
	// Store failures are logged and treated as a miss at that step.
	Extract(ctx context.Context, query string) string
}

type signCodeExtractor struct {
	keywordRepo repositories.KeywordRepository
	signRepo    repositories.SignImageRepository
	logger      *zap.Logger
}

// NewSignCodeExtractor creates a new SignCodeExtractor.
func NewSignCodeExtractor(
	keywordRepo repositories.KeywordRepository,
	signRepo repositories.SignImageRepository,
	logger *zap.Logger,
) SignCodeExtractor {
	return &signCodeExtractor{
		keywordRepo: keywordRepo,
		signRepo:    signRepo,
		logger:      logger.Named("sign-code-extractor"),
	}
}

var _ SignCodeExtractor = (*signCodeExtractor)(nil)

// Extract tries, in order: the whole query against the keyword map, each
// term against the keyword map, catalog names that already carry a code,
// and finally a numeric pattern scan. Curated keywords always win over a
// number that happens to appear in the query.
func (e *signCodeExtractor) Extract(ctx context.Context, query string) string {
	normalized := models.NormalizeKeyword(query)
	if normalized == "" {
		return ""
	}

	if code := e.lookupKeyword(ctx, normalized); code != "" {
		return code
	}

	terms := strings.Fields(normalized)
	if len(terms) > 1 {
		for _, term := range terms {
			if utf8.RuneCountInString(term) < 2 {
				continue
			}
			if code := e.lookupKeyword(ctx, term); code != "" {
				return code
			}
		}
	}

	if code := e.codeFromCatalogNames(ctx, normalized); code != "" {
		return code
	}

	return ScanSignCode(normalized)
}

func (e *signCodeExtractor) lookupKeyword(ctx context.Context, keyword string) string {
	code, err := e.keywordRepo.Lookup(ctx, keyword)
	if err != nil {
		e.logger.Warn("Keyword lookup failed",
			zap.String("keyword", logging.SanitizeQuery(keyword)),
			zap.String("error", logging.SanitizeError(err)))
		return ""
	}
	if code == "" {
		return ""
	}
	return models.CanonicalSignCode(code)
}

// codeFromCatalogNames returns the code of the first verified record whose
// English or Japanese name contains the query and that has a code set.
func (e *signCodeExtractor) codeFromCatalogNames(ctx context.Context, query string) string {
	for _, field := range []models.SignImageField{models.FieldNameEn, models.FieldNameJp} {
		records, err := e.signRepo.FindByFieldContains(ctx, field, query, codeMetadataLimit)
		if err != nil {
			e.logger.Warn("Catalog name scan failed",
				zap.String("field", string(field)),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}
		for _, r := range records {
			if r.IsVerified && r.SignCode != "" {
				return models.CanonicalSignCode(r.SignCode)
			}
		}
	}
	return ""
}

// ScanSignCode returns the first sign-code-shaped substring of s in
// canonical form, or "".
func ScanSignCode(s string) string {
	m := signCodePattern.FindStringSubmatch(strings.ToLower(s))
	if m == nil {
		return ""
	}
	return models.CanonicalSignCode(m[1])
}
