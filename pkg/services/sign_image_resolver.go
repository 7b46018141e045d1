package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menkyo-prep/sign-engine/pkg/config"
	"github.com/menkyo-prep/sign-engine/pkg/database"
	"github.com/menkyo-prep/sign-engine/pkg/logging"
	"github.com/menkyo-prep/sign-engine/pkg/models"
	"github.com/menkyo-prep/sign-engine/pkg/ranking"
	"github.com/menkyo-prep/sign-engine/pkg/repositories"
	"github.com/menkyo-prep/sign-engine/pkg/search"
)

// ResolveRequest is the input to SignImageResolver.Resolve.
type ResolveRequest struct {
	Query        string
	CategoryHint string
	// SignID turns the request into an identity lookup when set.
	SignID uuid.UUID
}

// SignImageResolver is the entry point of the sign image pipeline.
//
// A nil result with a nil error means "no image". Store failures, including
// a failure to obtain a connection, are logged and degrade to a miss, so
// Resolve still reaches the external provider when the catalog is down.
type SignImageResolver interface {
	// Resolve runs the identity lookup, the layered catalog search and,
	// if the catalog has nothing, the external provider.
	Resolve(ctx context.Context, req ResolveRequest) (*models.ImageResult, error)

	// ResolveCatalog runs only the layered catalog search.
	ResolveCatalog(ctx context.Context, query, categoryHint string) (*models.ImageResult, error)

	ExtractSignCode(ctx context.Context, query string) (string, error)
	MatchExactByCode(ctx context.Context, code string) (*models.SignImageRecord, error)

	// RecordImageUsage schedules a usage increment. Fire-and-forget.
	RecordImageUsage(ctx context.Context, imageID uuid.UUID)
}

type signImageResolver struct {
	signRepo  repositories.SignImageRepository
	extractor SignCodeExtractor
	matcher   SignCodeMatcher
	ranker    ranking.Ranker
	external  search.Provider
	usage     UsageRecorder
	getScope  database.ScopeFunc
	cfg       config.ResolverConfig
	logger    *zap.Logger
}

// NewSignImageResolver creates a new SignImageResolver.
// external may be nil when no search provider is configured.
func NewSignImageResolver(
	signRepo repositories.SignImageRepository,
	extractor SignCodeExtractor,
	matcher SignCodeMatcher,
	ranker ranking.Ranker,
	external search.Provider,
	usage UsageRecorder,
	getScope database.ScopeFunc,
	cfg config.ResolverConfig,
	logger *zap.Logger,
) SignImageResolver {
	return &signImageResolver{
		signRepo:  signRepo,
		extractor: extractor,
		matcher:   matcher,
		ranker:    ranker,
		external:  external,
		usage:     usage,
		getScope:  getScope,
		cfg:       cfg,
		logger:    logger.Named("sign-image-resolver"),
	}
}

var _ SignImageResolver = (*signImageResolver)(nil)

const defaultRankedPageSize = 500

func (s *signImageResolver) Resolve(ctx context.Context, req ResolveRequest) (*models.ImageResult, error) {
	if req.SignID != uuid.Nil {
		return s.resolveByID(ctx, req.SignID)
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, nil
	}

	result, err := s.ResolveCatalog(ctx, query, req.CategoryHint)
	if err != nil || result != nil {
		return result, err
	}

	return s.searchExternal(ctx, query), nil
}

// resolveByID returns the record only if it is eligible. It never falls
// through to search.
func (s *signImageResolver) resolveByID(ctx context.Context, id uuid.UUID) (*models.ImageResult, error) {
	scopedCtx, cleanup, err := s.getScope(ctx)
	if err != nil {
		s.logger.Warn("Catalog unavailable for identity lookup",
			zap.String("image_id", id.String()),
			zap.String("error", logging.SanitizeError(err)))
		return nil, nil
	}
	defer cleanup()

	rec, err := s.signRepo.GetByID(scopedCtx, id)
	if err != nil {
		s.logger.Warn("Identity lookup failed",
			zap.String("image_id", id.String()),
			zap.String("error", logging.SanitizeError(err)))
		return nil, nil
	}
	if !rec.IsEligible() {
		return nil, nil
	}
	return s.finish(ctx, rec, models.MatchByID), nil
}

// ResolveCatalog runs the catalog layers in order and stops at the first hit:
//
//  1. extracted code, exact match
//  2. name_en contains query (only when no code was extracted)
//  3. name_jp contains query
//  4. meaning_text contains query
//  5. ranked approximate search
func (s *signImageResolver) ResolveCatalog(ctx context.Context, query, categoryHint string) (*models.ImageResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	scopedCtx, cleanup, err := s.getScope(ctx)
	if err != nil {
		s.logger.Warn("Catalog unavailable, skipping catalog layers",
			zap.String("query", logging.SanitizeQuery(query)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, nil
	}
	defer cleanup()

	category := s.parseCategory(categoryHint)

	code := s.extractor.Extract(scopedCtx, query)
	if code != "" {
		rec, err := s.matcher.MatchByCode(scopedCtx, code)
		if err != nil {
			s.logger.Warn("Exact code layer failed",
				zap.String("code", code),
				zap.String("error", logging.SanitizeError(err)))
		}
		if rec != nil {
			return s.finish(ctx, rec, models.MatchByCode), nil
		}
		s.logger.Debug("Extracted code has no catalog image", zap.String("code", code))
	}

	layers := []struct {
		field     models.SignImageField
		matchedBy string
	}{
		{models.FieldNameEn, models.MatchByNameEn},
		{models.FieldNameJp, models.MatchByNameJp},
		{models.FieldMeaningText, models.MatchByMeaningText},
	}
	for _, layer := range layers {
		// An extracted code already stood in for the English name.
		if layer.field == models.FieldNameEn && code != "" {
			continue
		}
		if rec := s.matchField(scopedCtx, layer.field, query); rec != nil {
			if layer.field == models.FieldMeaningText {
				s.logger.Info("Resolved by meaning text substring",
					zap.String("query", logging.SanitizeQuery(query)),
					zap.String("image_id", rec.ID.String()))
			}
			return s.finish(ctx, rec, layer.matchedBy), nil
		}
	}

	if rec := s.rank(scopedCtx, query, category); rec != nil {
		return s.finish(ctx, rec, models.MatchByRanked), nil
	}
	return nil, nil
}

// matchField is the single field-contains-query matcher shared by the
// name and meaning layers.
func (s *signImageResolver) matchField(ctx context.Context, field models.SignImageField, query string) *models.SignImageRecord {
	records, err := s.signRepo.FindByFieldContains(ctx, field, query, s.cfg.NameMatchLimit)
	if err != nil {
		s.logger.Warn("Field match layer failed",
			zap.String("field", string(field)),
			zap.String("error", logging.SanitizeError(err)))
		return nil
	}
	for _, r := range records {
		if r.IsEligible() {
			return r
		}
	}
	return nil
}

// rank scores the whole eligible catalog, read in pages of RankedPageSize.
func (s *signImageResolver) rank(ctx context.Context, query string, category models.SignCategory) *models.SignImageRecord {
	if s.ranker == nil {
		return nil
	}
	pageSize := s.cfg.RankedPageSize
	if pageSize <= 0 {
		pageSize = defaultRankedPageSize
	}

	var pool []*models.SignImageRecord
	for offset := 0; ; offset += pageSize {
		page, err := s.signRepo.ListVerified(ctx, category, pageSize, offset)
		if err != nil {
			s.logger.Warn("Ranked layer failed",
				zap.Int("offset", offset),
				zap.String("error", logging.SanitizeError(err)))
			return nil
		}
		pool = append(pool, page...)
		if len(page) < pageSize {
			break
		}
	}
	if len(pool) == 0 {
		return nil
	}

	scored := s.ranker.Rank(query, category, pool)
	if len(scored) == 0 {
		return nil
	}
	return scored[0].Record
}

func (s *signImageResolver) searchExternal(ctx context.Context, query string) *models.ImageResult {
	if s.external == nil {
		return nil
	}
	result, err := s.external.Search(ctx, query)
	if err != nil {
		s.logger.Warn("External image search failed",
			zap.String("query", logging.SanitizeQuery(query)),
			zap.String("error", logging.SanitizeError(err)))
		return nil
	}
	return result
}

// finish converts the winning record and schedules usage accounting.
func (s *signImageResolver) finish(ctx context.Context, rec *models.SignImageRecord, matchedBy string) *models.ImageResult {
	s.RecordImageUsage(ctx, rec.ID)
	return models.NewImageResult(rec, matchedBy)
}

// parseCategory validates a hint. Unknown hints are ignored rather than
// failing the resolution.
func (s *signImageResolver) parseCategory(hint string) models.SignCategory {
	if strings.TrimSpace(hint) == "" {
		return ""
	}
	category, ok := models.ParseSignCategory(hint)
	if !ok {
		s.logger.Info("Ignoring unknown category hint", zap.String("category", hint))
		return ""
	}
	return category
}

func (s *signImageResolver) ExtractSignCode(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", nil
	}
	scopedCtx, cleanup, err := s.getScope(ctx)
	if err != nil {
		return "", err
	}
	defer cleanup()

	return s.extractor.Extract(scopedCtx, query), nil
}

func (s *signImageResolver) MatchExactByCode(ctx context.Context, code string) (*models.SignImageRecord, error) {
	if strings.TrimSpace(code) == "" {
		return nil, nil
	}
	scopedCtx, cleanup, err := s.getScope(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	return s.matcher.MatchByCode(scopedCtx, code)
}

func (s *signImageResolver) RecordImageUsage(ctx context.Context, imageID uuid.UUID) {
	if s.usage == nil || imageID == uuid.Nil {
		return
	}
	s.usage.RecordUsage(ctx, imageID)
}
