package services

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/menkyo-prep/sign-engine/pkg/apperrors"
	"github.com/menkyo-prep/sign-engine/pkg/database"
	"github.com/menkyo-prep/sign-engine/pkg/models"
	"github.com/menkyo-prep/sign-engine/pkg/ranking"
)

// ============================================================================
// Mock Implementations for Sign Image Tests
// ============================================================================

// mockSignImageRepo is an in-memory catalog that counts calls per method.
type mockSignImageRepo struct {
	mu      sync.Mutex
	records []*models.SignImageRecord
	calls   map[string]int

	getByIDErr       error
	findByCodeErr    error
	findByFileErr    error
	findByFieldErr   map[models.SignImageField]error
	listVerifiedErr  error
	incrementErr     error
	getUsageErr      error
	setUsageErr      error
	findByFieldQuery []string
}

func newMockSignImageRepo(records ...*models.SignImageRecord) *mockSignImageRepo {
	return &mockSignImageRepo{
		records:        records,
		calls:          make(map[string]int),
		findByFieldErr: make(map[models.SignImageField]error),
	}
}

func (m *mockSignImageRepo) count(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *mockSignImageRepo) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[method]++
}

func (m *mockSignImageRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.SignImageRecord, error) {
	m.record("GetByID")
	if m.getByIDErr != nil {
		return nil, m.getByIDErr
	}
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (m *mockSignImageRepo) FindByCode(ctx context.Context, code string) ([]*models.SignImageRecord, error) {
	m.record("FindByCode")
	if m.findByCodeErr != nil {
		return nil, m.findByCodeErr
	}
	var out []*models.SignImageRecord
	for _, r := range m.records {
		if r.IsEligible() && strings.EqualFold(r.SignCode, strings.TrimSpace(code)) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockSignImageRepo) FindByFileNameContains(ctx context.Context, fragments []string, limit int) ([]*models.SignImageRecord, error) {
	m.record("FindByFileNameContains")
	if m.findByFileErr != nil {
		return nil, m.findByFileErr
	}
	var out []*models.SignImageRecord
	for _, r := range m.records {
		if !r.IsEligible() {
			continue
		}
	match:
		for _, name := range r.FileNames() {
			for _, f := range fragments {
				if strings.Contains(strings.ToLower(name), strings.ToLower(f)) {
					out = append(out, r)
					break match
				}
			}
		}
	}
	return out, nil
}

func (m *mockSignImageRepo) FindByFieldContains(ctx context.Context, field models.SignImageField, query string, limit int) ([]*models.SignImageRecord, error) {
	m.record("FindByFieldContains")
	m.record("FindByFieldContains:" + string(field))
	m.mu.Lock()
	m.findByFieldQuery = append(m.findByFieldQuery, query)
	m.mu.Unlock()
	if err := m.findByFieldErr[field]; err != nil {
		return nil, err
	}
	var out []*models.SignImageRecord
	for _, r := range m.records {
		v := field.Value(r)
		if r.IsEligible() && v != "" && strings.Contains(strings.ToLower(v), strings.ToLower(query)) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockSignImageRepo) ListVerified(ctx context.Context, category models.SignCategory, limit, offset int) ([]*models.SignImageRecord, error) {
	m.record("ListVerified")
	if m.listVerifiedErr != nil {
		return nil, m.listVerifiedErr
	}
	var out []*models.SignImageRecord
	for _, r := range m.records {
		if r.IsEligible() && (category == "" || r.Category == category) {
			out = append(out, r)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockSignImageRepo) find(id uuid.UUID) *models.SignImageRecord {
	for _, r := range m.records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (m *mockSignImageRepo) IncrementUsage(ctx context.Context, id uuid.UUID) (int64, error) {
	m.record("IncrementUsage")
	if m.incrementErr != nil {
		return 0, m.incrementErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.find(id)
	if r == nil {
		return 0, apperrors.ErrNotFound
	}
	r.UsageCount++
	return r.UsageCount, nil
}

func (m *mockSignImageRepo) GetUsageCount(ctx context.Context, id uuid.UUID) (int64, error) {
	m.record("GetUsageCount")
	if m.getUsageErr != nil {
		return 0, m.getUsageErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.find(id)
	if r == nil {
		return 0, apperrors.ErrNotFound
	}
	return r.UsageCount, nil
}

func (m *mockSignImageRepo) SetUsageCount(ctx context.Context, id uuid.UUID, count int64) error {
	m.record("SetUsageCount")
	if m.setUsageErr != nil {
		return m.setUsageErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.find(id)
	if r == nil {
		return apperrors.ErrNotFound
	}
	r.UsageCount = count
	return nil
}

func (m *mockSignImageRepo) Upsert(ctx context.Context, rec *models.SignImageRecord) error {
	m.record("Upsert")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// mockKeywordRepo is an in-memory keyword map.
type mockKeywordRepo struct {
	entries   map[string]string
	lookups   []string
	lookupErr error
	replaceErr error
	replaced   []models.KeywordMapEntry
}

func newMockKeywordRepo(pairs ...string) *mockKeywordRepo {
	m := &mockKeywordRepo{entries: make(map[string]string)}
	for i := 0; i+1 < len(pairs); i += 2 {
		m.entries[models.NormalizeKeyword(pairs[i])] = pairs[i+1]
	}
	return m
}

func (m *mockKeywordRepo) Lookup(ctx context.Context, keyword string) (string, error) {
	m.lookups = append(m.lookups, keyword)
	if m.lookupErr != nil {
		return "", m.lookupErr
	}
	return m.entries[models.NormalizeKeyword(keyword)], nil
}

func (m *mockKeywordRepo) Replace(ctx context.Context, entries []models.KeywordMapEntry) (int, error) {
	if m.replaceErr != nil {
		return 0, m.replaceErr
	}
	m.replaced = append([]models.KeywordMapEntry(nil), entries...)
	m.entries = make(map[string]string, len(entries))
	for _, e := range entries {
		m.entries[e.Keyword] = e.SignCode
	}
	return len(entries), nil
}

func (m *mockKeywordRepo) List(ctx context.Context) ([]models.KeywordMapEntry, error) {
	var out []models.KeywordMapEntry
	for k, v := range m.entries {
		out = append(out, models.KeywordMapEntry{Keyword: k, SignCode: v})
	}
	return out, nil
}

// mockRanker returns a fixed ranking and counts calls.
type mockRanker struct {
	result     []ranking.Scored
	calls      int
	candidates []*models.SignImageRecord
}

func (m *mockRanker) Rank(query string, category models.SignCategory, candidates []*models.SignImageRecord) []ranking.Scored {
	m.calls++
	m.candidates = candidates
	return m.result
}

// mockExternalProvider returns a fixed result and counts calls.
type mockExternalProvider struct {
	result *models.ImageResult
	err    error
	calls  int
}

func (m *mockExternalProvider) Search(ctx context.Context, query string) (*models.ImageResult, error) {
	m.calls++
	return m.result, m.err
}

// mockUsageRecorder records scheduled increments synchronously.
type mockUsageRecorder struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (m *mockUsageRecorder) RecordUsage(ctx context.Context, imageID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, imageID)
}

func (m *mockUsageRecorder) Increment(ctx context.Context, imageID uuid.UUID) (int64, error) {
	m.RecordUsage(ctx, imageID)
	return int64(len(m.ids)), nil
}

func (m *mockUsageRecorder) Wait() {}

// noopScope returns a ScopeFunc that passes the context through.
func noopScope() database.ScopeFunc {
	return func(ctx context.Context) (context.Context, func(), error) {
		return ctx, func() {}, nil
	}
}

func verifiedRecord(mutate func(r *models.SignImageRecord)) *models.SignImageRecord {
	r := &models.SignImageRecord{
		ID:         uuid.New(),
		StorageURL: "https://cdn.example/" + uuid.NewString() + ".svg",
		IsVerified: true,
		Provider:   models.ProviderWikimedia,
	}
	if mutate != nil {
		mutate(r)
	}
	return r
}
