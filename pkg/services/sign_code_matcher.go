package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/menkyo-prep/sign-engine/pkg/models"
	"github.com/menkyo-prep/sign-engine/pkg/repositories"
)

// fileNameCandidateLimit bounds rows pulled by the filename fallback.
const fileNameCandidateLimit = 50

// compositePattern detects filenames depicting more than one sign,
// e.g. "Japan_road_sign_326_and_327.svg" or "stop & slow.png".
var compositePattern = regexp.MustCompile(`(?i)(?:^|[^a-z])and(?:[^a-z]|$)|&`)

// SignCodeMatcher selects the single best catalog record for a sign code.
// It never approximates: a code either finds a legitimate candidate or nothing.
type SignCodeMatcher interface {
	MatchByCode(ctx context.Context, code string) (*models.SignImageRecord, error)
}

type signCodeMatcher struct {
	signRepo repositories.SignImageRepository
	logger   *zap.Logger
}

// NewSignCodeMatcher creates a new SignCodeMatcher.
func NewSignCodeMatcher(signRepo repositories.SignImageRepository, logger *zap.Logger) SignCodeMatcher {
	return &signCodeMatcher{
		signRepo: signRepo,
		logger:   logger.Named("sign-code-matcher"),
	}
}

var _ SignCodeMatcher = (*signCodeMatcher)(nil)

func (m *signCodeMatcher) MatchByCode(ctx context.Context, code string) (*models.SignImageRecord, error) {
	hyphen, underscore := models.SignCodeVariants(code)
	if hyphen == "" {
		return nil, nil
	}

	candidates, err := m.candidates(ctx, hyphen, underscore)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	best := selectBest(candidates, hyphen)
	if best != nil {
		m.logger.Debug("Matched sign code",
			zap.String("code", hyphen),
			zap.String("image_id", best.ID.String()),
			zap.Int("candidates", len(candidates)))
	}
	return best, nil
}

// candidates gathers eligible rows for the code: exact sign_code rows first,
// filename matches only when no row carries the code.
func (m *signCodeMatcher) candidates(ctx context.Context, hyphen, underscore string) ([]*models.SignImageRecord, error) {
	rows, err := m.signRepo.FindByCode(ctx, hyphen)
	if err != nil {
		return nil, fmt.Errorf("failed to find by code: %w", err)
	}
	if len(rows) == 0 && underscore != hyphen {
		rows, err = m.signRepo.FindByCode(ctx, underscore)
		if err != nil {
			return nil, fmt.Errorf("failed to find by code: %w", err)
		}
	}
	if eligible := filterCodeCandidates(rows, hyphen); len(eligible) > 0 {
		return eligible, nil
	}

	fragments := []string{hyphen}
	if underscore != hyphen {
		fragments = append(fragments, underscore)
	}
	rows, err = m.signRepo.FindByFileNameContains(ctx, fragments, fileNameCandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to find by filename: %w", err)
	}

	// A substring hit is only a candidate if the code stands alone in the
	// filename ("326" must not match "3261") and the row is not explicitly
	// tagged with some other code.
	var eligible []*models.SignImageRecord
	for _, r := range filterCodeCandidates(rows, hyphen) {
		if fileNameHasCode(r, hyphen) {
			eligible = append(eligible, r)
		}
	}
	return eligible, nil
}

// filterCodeCandidates keeps eligible rows whose sign_code is empty or equal to code.
func filterCodeCandidates(rows []*models.SignImageRecord, code string) []*models.SignImageRecord {
	var out []*models.SignImageRecord
	for _, r := range rows {
		if !r.IsEligible() {
			continue
		}
		if r.SignCode != "" && !models.SameSignCode(r.SignCode, code) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// selectBest applies the precedence exact sign_code, then filename match,
// then query order, and demotes composite images when a single-sign
// alternative for the same code exists.
func selectBest(candidates []*models.SignImageRecord, code string) *models.SignImageRecord {
	exact := func(r *models.SignImageRecord) bool { return models.SameSignCode(r.SignCode, code) }
	byName := func(r *models.SignImageRecord) bool { return fileNameHasCode(r, code) }

	var best *models.SignImageRecord
	for _, pred := range []func(*models.SignImageRecord) bool{exact, byName} {
		if best = firstWhere(candidates, pred); best != nil {
			break
		}
	}
	if best == nil {
		best = candidates[0]
	}

	if !isComposite(best) {
		return best
	}
	for _, pred := range []func(*models.SignImageRecord) bool{exact, byName} {
		alt := firstWhere(candidates, func(r *models.SignImageRecord) bool {
			return r != best && pred(r) && !isComposite(r)
		})
		if alt != nil {
			return alt
		}
	}
	return best
}

func firstWhere(rows []*models.SignImageRecord, pred func(*models.SignImageRecord) bool) *models.SignImageRecord {
	for _, r := range rows {
		if pred(r) {
			return r
		}
	}
	return nil
}

// isComposite reports whether any filename suggests several signs in one image.
func isComposite(r *models.SignImageRecord) bool {
	for _, name := range r.FileNames() {
		if compositePattern.MatchString(name) {
			return true
		}
	}
	return false
}

// fileNameHasCode reports whether a filename embeds code (either spelling)
// without adjoining digits.
func fileNameHasCode(r *models.SignImageRecord, code string) bool {
	hyphen, underscore := models.SignCodeVariants(code)
	for _, name := range r.FileNames() {
		upper := strings.ToUpper(name)
		if containsCodeToken(upper, hyphen) || containsCodeToken(upper, underscore) {
			return true
		}
	}
	return false
}

func containsCodeToken(s, code string) bool {
	if code == "" {
		return false
	}
	for start := 0; ; {
		i := strings.Index(s[start:], code)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(code)
		if (i == 0 || !isDigit(s[i-1])) && (end == len(s) || !isDigit(s[end])) {
			return true
		}
		start = i + 1
	}
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
