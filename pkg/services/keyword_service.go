package services

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/menkyo-prep/sign-engine/pkg/apperrors"
	"github.com/menkyo-prep/sign-engine/pkg/database"
	"github.com/menkyo-prep/sign-engine/pkg/models"
	"github.com/menkyo-prep/sign-engine/pkg/repositories"
)

// KeywordSeed is the on-disk layout of a curated keyword file:
//
//	keywords:
//	  - keyword: stop sign
//	    sign_code: "330-A"
type KeywordSeed struct {
	Keywords []models.KeywordMapEntry `yaml:"keywords"`
}

// KeywordService manages the curated keyword map.
type KeywordService interface {
	// ImportFile loads a seed file and makes it the keyword map.
	ImportFile(ctx context.Context, path string) (int, error)
	// Import replaces the keyword map with already-parsed entries. An empty
	// set leaves the map untouched.
	Import(ctx context.Context, entries []models.KeywordMapEntry) (int, error)
	List(ctx context.Context) ([]models.KeywordMapEntry, error)
}

type keywordService struct {
	keywordRepo repositories.KeywordRepository
	getScope    database.ScopeFunc
	logger      *zap.Logger
}

// NewKeywordService creates a new KeywordService.
func NewKeywordService(
	keywordRepo repositories.KeywordRepository,
	getScope database.ScopeFunc,
	logger *zap.Logger,
) KeywordService {
	return &keywordService{
		keywordRepo: keywordRepo,
		getScope:    getScope,
		logger:      logger.Named("keyword-service"),
	}
}

var _ KeywordService = (*keywordService)(nil)

// ParseKeywordSeed decodes and validates a seed file. Keywords are
// normalized and codes canonicalized; a duplicate keyword is an error.
func ParseKeywordSeed(r io.Reader) ([]models.KeywordMapEntry, error) {
	var seed KeywordSeed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse keyword seed: %w", err)
	}

	seen := make(map[string]string, len(seed.Keywords))
	entries := make([]models.KeywordMapEntry, 0, len(seed.Keywords))
	for i, e := range seed.Keywords {
		keyword := models.NormalizeKeyword(e.Keyword)
		if keyword == "" {
			return nil, fmt.Errorf("entry %d: keyword is required", i)
		}
		if !IsSignCode(e.SignCode) {
			return nil, fmt.Errorf("entry %d (%q): %w: %q", i, keyword, apperrors.ErrInvalidSignCode, e.SignCode)
		}
		code := models.CanonicalSignCode(e.SignCode)
		if prev, dup := seen[keyword]; dup {
			return nil, fmt.Errorf("entry %d: keyword %q already mapped to %s: %w", i, keyword, prev, apperrors.ErrConflict)
		}
		seen[keyword] = code
		entries = append(entries, models.KeywordMapEntry{Keyword: keyword, SignCode: code})
	}
	return entries, nil
}

func (s *keywordService) ImportFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open keyword seed: %w", err)
	}
	defer f.Close()

	entries, err := ParseKeywordSeed(f)
	if err != nil {
		return 0, err
	}

	n, err := s.Import(ctx, entries)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Imported keyword seed", zap.String("path", path), zap.Int("entries", n))
	return n, nil
}

func (s *keywordService) Import(ctx context.Context, entries []models.KeywordMapEntry) (int, error) {
	if len(entries) == 0 {
		s.logger.Warn("Keyword seed is empty, keeping current map")
		return 0, nil
	}
	scopedCtx, cleanup, err := s.getScope(ctx)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	return s.keywordRepo.Replace(scopedCtx, entries)
}

func (s *keywordService) List(ctx context.Context) ([]models.KeywordMapEntry, error) {
	scopedCtx, cleanup, err := s.getScope(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return s.keywordRepo.List(scopedCtx)
}
