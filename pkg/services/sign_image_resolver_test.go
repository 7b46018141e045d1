package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/menkyo-prep/sign-engine/pkg/config"
	"github.com/menkyo-prep/sign-engine/pkg/models"
	"github.com/menkyo-prep/sign-engine/pkg/ranking"
)

// resolverTestContext wires a resolver over in-memory collaborators.
type resolverTestContext struct {
	signs    *mockSignImageRepo
	keywords *mockKeywordRepo
	ranker   *mockRanker
	external *mockExternalProvider
	usage    *mockUsageRecorder
	cfg      config.ResolverConfig
}

func newResolverTestContext(records ...*models.SignImageRecord) *resolverTestContext {
	return &resolverTestContext{
		signs:    newMockSignImageRepo(records...),
		keywords: newMockKeywordRepo(),
		ranker:   &mockRanker{},
		external: &mockExternalProvider{},
		usage:    &mockUsageRecorder{},
		cfg: config.ResolverConfig{
			NameMatchLimit: 10,
			RankedPageSize: 500,
		},
	}
}

func (tc *resolverTestContext) resolver() SignImageResolver {
	logger := zap.NewNop()
	return NewSignImageResolver(
		tc.signs,
		NewSignCodeExtractor(tc.keywords, tc.signs, logger),
		NewSignCodeMatcher(tc.signs, logger),
		tc.ranker,
		tc.external,
		tc.usage,
		noopScope(),
		tc.cfg,
		logger,
	)
}

// ============================================================================
// Scenarios
// ============================================================================

func TestResolve_KeywordMappedQuery(t *testing.T) {
	stop := verifiedRecord(func(r *models.SignImageRecord) {
		r.SignCode = "326"
		r.Attribution = "Wikimedia Commons"
		r.LicenseInfo = "Public domain"
	})
	tc := newResolverTestContext(stop)
	tc.keywords = newMockKeywordRepo("stop sign", "326")

	got, err := tc.resolver().Resolve(context.Background(), ResolveRequest{Query: "stop sign"})

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, stop.StorageURL, got.StorageURL)
	assert.Equal(t, "326", got.SignCode)
	assert.Equal(t, models.MatchByCode, got.MatchedBy)
	assert.Equal(t, "Wikimedia Commons", got.Attribution)
	assert.Equal(t, "Public domain", got.LicenseInfo)
	assert.Equal(t, []uuid.UUID{stop.ID}, tc.usage.ids)
}

func TestResolve_PatternExtractedCode(t *testing.T) {
	want := verifiedRecord(func(r *models.SignImageRecord) { r.SignCode = "212-3" })
	tc := newResolverTestContext(want)

	got, err := tc.resolver().Resolve(context.Background(), ResolveRequest{Query: "212-3"})

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.ID.String(), got.SourceID)
	assert.Equal(t, models.MatchByCode, got.MatchedBy)
}

func TestResolve_OnlyRankedLayerAnswers(t *testing.T) {
	x := verifiedRecord(func(r *models.SignImageRecord) { r.NameEn = "Yield" })
	tc := newResolverTestContext(x)
	tc.ranker.result = []ranking.Scored{{Record: x, Score: 0.9}}

	got, err := tc.resolver().Resolve(context.Background(), ResolveRequest{Query: "give way"})

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, x.ID.String(), got.SourceID)
	assert.Equal(t, models.MatchByRanked, got.MatchedBy)
	assert.Equal(t, 1, tc.ranker.calls)
	assert.Zero(t, tc.external.calls)
	assert.Zero(t, tc.signs.count("FindByCode"), "no code was extractable")
}

func TestResolve_EmptyQuery(t *testing.T) {
	tc := newResolverTestContext(verifiedRecord(nil))

	got, err := tc.resolver().Resolve(context.Background(), ResolveRequest{Query: "  "})

	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, tc.keywords.lookups)
	assert.Empty(t, tc.signs.calls)
	assert.Zero(t, tc.external.calls)
}

// ============================================================================
// Properties
// ============================================================================

func TestResolve_KeywordWinsOverEmbeddedNumber(t *testing.T) {
	stop := verifiedRecord(func(r *models.SignImageRecord) { r.SignCode = "330-A" })
	other := verifiedRecord(func(r *models.SignImageRecord) { r.SignCode = "326" })
	tc := newResolverTestContext(other, stop)
	tc.keywords = newMockKeywordRepo("stop", "330-A")

	got, err := tc.resolver().Resolve(context.Background(), ResolveRequest{Query: "326 stop"})

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "330-A", got.SignCode)
}

func TestResolve_CodeMatchShortCircuits(t *testing.T) {
	rec := verifiedRecord(func(r *models.SignImageRecord) {
		r.SignCode = "326"
		r.NameEn = "Stop"
	})
	tc := newResolverTestContext(rec)
	tc.keywords = newMockKeywordRepo("stop", "326")

	_, err := tc.resolver().Resolve(context.Background(), ResolveRequest{Query: "stop"})

	require.NoError(t, err)
	assert.Zero(t, tc.signs.count("FindByFieldContains"), "name and meaning layers must not run")
	assert.Zero(t, tc.signs.count("ListVerified"))
	assert.Zero(t, tc.ranker.calls)
	assert.Zero(t, tc.external.calls)
}

func TestResolve_EmptyCatalog(t *testing.T) {
	tc := newResolverTestContext()

	r := NewSignImageResolver(tc.signs, NewSignCodeExtractor(tc.keywords, tc.signs, zap.NewNop()),
		NewSignCodeMatcher(tc.signs, zap.NewNop()), ranking.NewTokenOverlapRanker(nil), nil,
		tc.usage, noopScope(), tc.cfg, zap.NewNop())

	for _, q := range []string{"stop", "326", "止まれ", "give way"} {
		got, err := r.Resolve(context.Background(), ResolveRequest{Query: q})
		require.NoError(t, err)
		assert.Nil(t, got, q)
	}
	assert.Empty(t, tc.usage.ids)
}

// ============================================================================
// Layer Order
// ============================================================================

func TestResolve_LayerOrder(t *testing.T) {
	en := verifiedRecord(func(r *models.SignImageRecord) { r.NameEn = "Slow Down" })
	jp := verifiedRecord(func(r *models.SignImageRecord) { r.NameJp = "徐行" })
	meaning := verifiedRecord(func(r *models.SignImageRecord) { r.MeaningText = "Vehicles must slow down to a crawl" })

	tests := []struct {
		name      string
		records   []*models.SignImageRecord
		query     string
		want      *models.SignImageRecord
		matchedBy string
	}{
		{"english name first", []*models.SignImageRecord{meaning, en}, "slow down", en, models.MatchByNameEn},
		{"japanese name", []*models.SignImageRecord{jp}, "徐行", jp, models.MatchByNameJp},
		{"meaning text last", []*models.SignImageRecord{meaning}, "crawl", meaning, models.MatchByMeaningText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newResolverTestContext(tt.records...)

			got, err := tc.resolver().Resolve(context.Background(), ResolveRequest{Query: tt.query})

			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want.ID.String(), got.SourceID)
			assert.Equal(t, tt.matchedBy, got.MatchedBy)
			assert.Zero(t, tc.ranker.calls)
		})
	}
}

func TestResolve_LayerErrorsContinue(t *testing.T) {
	meaning := verifiedRecord(func(r *models.SignImageRecord) { r.MeaningText = "Yield to crossing traffic" })
	tc := newResolverTestContext(meaning)
	tc.signs.findByFieldErr[models.FieldNameEn] = errors.New("connection reset")
	tc.signs.findByFieldErr[models.FieldNameJp] = errors.New("malformed row")

	got, err := tc.resolver().Resolve(context.Background(), ResolveRequest{Query: "yield"})

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.MatchByMeaningText, got.MatchedBy)
}

func TestResolve_AllLayersFailReturnsNil(t *testing.T) {
	tc := newResolverTestContext()
	tc.keywords.lookupErr = errors.New("down")
	tc.signs.findByCodeErr = errors.New("down")
	tc.signs.findByFieldErr[models.FieldNameEn] = errors.New("down")
	tc.signs.findByFieldErr[models.FieldNameJp] = errors.New("down")
	tc.signs.findByFieldErr[models.FieldMeaningText] = errors.New("down")
	tc.signs.listVerifiedErr = errors.New("down")
	tc.external.err = errors.New("down")

	got, err := tc.resolver().Resolve(context.Background(), ResolveRequest{Query: "stop"})

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolve_CodeMissContinuesToLaterLayers(t *testing.T) {
	limit := verifiedRecord(func(r *models.SignImageRecord) { r.MeaningText = "max speed 100 km/h" })
	tc := newResolverTestContext(limit)

	got, err := tc.resolver().ResolveCatalog(context.Background(), "max speed 100", "")

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, limit.ID.String(), got.SourceID)
	assert.Equal(t, models.MatchByMeaningText, got.MatchedBy)
	assert.Positive(t, tc.signs.count("FindByCode"), "the extracted code is tried first")
}

func TestResolve_CodeMissSkipsEnglishNameLayer(t *testing.T) {
	named := verifiedRecord(func(r *models.SignImageRecord) { r.NameEn = "Route 999" })
	tc := newResolverTestContext(named)
	tc.ranker.result = []ranking.Scored{{Record: named}}

	got, err := tc.resolver().ResolveCatalog(context.Background(), "999", "")

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.MatchByRanked, got.MatchedBy)
	assert.Equal(t, 1, tc.ranker.calls)
	// The extractor scans both name columns once; only name_jp and
	// meaning_text run again as resolution layers.
	assert.Equal(t, 1, tc.signs.count("FindByFieldContains:name_en"))
	assert.Equal(t, 2, tc.signs.count("FindByFieldContains:name_jp"))
	assert.Equal(t, 1, tc.signs.count("FindByFieldContains:meaning_text"))
}

func TestResolve_RankedLayerReadsWholeCatalog(t *testing.T) {
	records := []*models.SignImageRecord{
		verifiedRecord(nil), verifiedRecord(nil), verifiedRecord(nil),
		verifiedRecord(nil), verifiedRecord(nil),
	}
	tc := newResolverTestContext(records...)
	tc.cfg.RankedPageSize = 2
	tc.ranker.result = []ranking.Scored{{Record: records[4]}}

	got, err := tc.resolver().ResolveCatalog(context.Background(), "give way", "")

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, records[4].ID.String(), got.SourceID)
	assert.Len(t, tc.ranker.candidates, 5, "every eligible row reaches the ranker")
	assert.Equal(t, 3, tc.signs.count("ListVerified"))
}

func TestResolve_UnknownCategoryIgnored(t *testing.T) {
	x := verifiedRecord(func(r *models.SignImageRecord) { r.Category = models.CategoryWarning })
	tc := newResolverTestContext(x)
	tc.ranker.result = []ranking.Scored{{Record: x}}

	got, err := tc.resolver().Resolve(context.Background(), ResolveRequest{Query: "slippery", CategoryHint: "billboards"})

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, x.ID.String(), got.SourceID)
}

// ============================================================================
// External Fallback
// ============================================================================

func TestResolve_ExternalFallback(t *testing.T) {
	tc := newResolverTestContext()
	tc.external.result = &models.ImageResult{
		StorageURL:    "https://upload.wikimedia.org/stop.jpg",
		Source:        models.ImageSourceExternal,
		MatchedBy:     models.MatchByExternal,
		LowConfidence: true,
	}

	got, err := tc.resolver().Resolve(context.Background(), ResolveRequest{Query: "stop"})

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.LowConfidence)
	assert.Equal(t, 1, tc.external.calls)
	assert.Empty(t, tc.usage.ids, "external results are not usage-counted")
}

func TestResolve_ExternalErrorIsNotFound(t *testing.T) {
	tc := newResolverTestContext()
	tc.external.err = errors.New("quota exceeded")

	got, err := tc.resolver().Resolve(context.Background(), ResolveRequest{Query: "stop"})

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolveCatalog_NeverCallsExternal(t *testing.T) {
	tc := newResolverTestContext()
	tc.external.result = &models.ImageResult{StorageURL: "https://x"}

	got, err := tc.resolver().ResolveCatalog(context.Background(), "stop", "")

	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, tc.external.calls)
}

// ============================================================================
// Identity Lookup
// ============================================================================

func TestResolve_BySignID(t *testing.T) {
	rec := verifiedRecord(func(r *models.SignImageRecord) { r.NameEn = "Stop" })
	tc := newResolverTestContext(rec)

	got, err := tc.resolver().Resolve(context.Background(), ResolveRequest{Query: "ignored", SignID: rec.ID})

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.MatchByID, got.MatchedBy)
	assert.Empty(t, tc.keywords.lookups, "identity lookup bypasses search")
	assert.Equal(t, []uuid.UUID{rec.ID}, tc.usage.ids)
}

func TestResolve_BySignID_Ineligible(t *testing.T) {
	rec := verifiedRecord(func(r *models.SignImageRecord) { r.IsVerified = false })
	tc := newResolverTestContext(rec)

	got, err := tc.resolver().Resolve(context.Background(), ResolveRequest{SignID: rec.ID})

	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, tc.external.calls)
}

func TestResolve_BySignID_Unknown(t *testing.T) {
	tc := newResolverTestContext()

	got, err := tc.resolver().Resolve(context.Background(), ResolveRequest{Query: "stop", SignID: uuid.New()})

	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, tc.external.calls)
}

// ============================================================================
// Scope Handling
// ============================================================================

func TestResolve_ScopeFailureFallsBackToExternal(t *testing.T) {
	tc := newResolverTestContext()
	tc.external.result = &models.ImageResult{
		StorageURL:    "https://upload.wikimedia.org/stop.jpg",
		Source:        models.ImageSourceExternal,
		MatchedBy:     models.MatchByExternal,
		LowConfidence: true,
	}
	failing := func(ctx context.Context) (context.Context, func(), error) {
		return nil, nil, errors.New("connection refused")
	}
	r := NewSignImageResolver(tc.signs, NewSignCodeExtractor(tc.keywords, tc.signs, zap.NewNop()),
		NewSignCodeMatcher(tc.signs, zap.NewNop()), tc.ranker, tc.external, tc.usage,
		failing, tc.cfg, zap.NewNop())

	got, err := r.Resolve(context.Background(), ResolveRequest{Query: "stop"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.LowConfidence)
	assert.Equal(t, 1, tc.external.calls)

	got, err = r.Resolve(context.Background(), ResolveRequest{SignID: uuid.New()})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 1, tc.external.calls, "identity lookup never searches")

	got, err = r.ResolveCatalog(context.Background(), "stop", "")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = r.ExtractSignCode(context.Background(), "stop")
	assert.Error(t, err)
}

func TestExtractSignCode_And_MatchExactByCode(t *testing.T) {
	rec := verifiedRecord(func(r *models.SignImageRecord) { r.SignCode = "212-3" })
	tc := newResolverTestContext(rec)
	r := tc.resolver()

	code, err := r.ExtractSignCode(context.Background(), "sign 212_3")
	require.NoError(t, err)
	assert.Equal(t, "212-3", code)

	got, err := r.MatchExactByCode(context.Background(), code)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ID, got.ID)
	assert.Empty(t, tc.usage.ids, "direct matcher access does not count usage")

	got, err = r.MatchExactByCode(context.Background(), " ")
	require.NoError(t, err)
	assert.Nil(t, got)
}
