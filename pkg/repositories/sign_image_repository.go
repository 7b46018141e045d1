package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/menkyo-prep/sign-engine/pkg/apperrors"
	"github.com/menkyo-prep/sign-engine/pkg/database"
	"github.com/menkyo-prep/sign-engine/pkg/models"
)

// SignImageRepository provides data access for the sign image catalog.
// Every Find*/List* method returns only eligible rows (verified, with a
// storage URL).
type SignImageRepository interface {
	// GetByID returns the record with the given id, eligible or not.
	GetByID(ctx context.Context, id uuid.UUID) (*models.SignImageRecord, error)

	// FindByCode returns rows whose sign_code equals code, case-insensitively.
	FindByCode(ctx context.Context, code string) ([]*models.SignImageRecord, error)

	// FindByFileNameContains returns rows where file_name, file_name_slug or
	// provider_file_name contains any of the fragments.
	FindByFileNameContains(ctx context.Context, fragments []string, limit int) ([]*models.SignImageRecord, error)

	// FindByFieldContains returns rows whose field contains query, most used first.
	FindByFieldContains(ctx context.Context, field models.SignImageField, query string, limit int) ([]*models.SignImageRecord, error)

	// ListVerified returns one page of the ranking pool, optionally narrowed
	// to a category. Pages are ordered by id so offsets stay stable.
	ListVerified(ctx context.Context, category models.SignCategory, limit, offset int) ([]*models.SignImageRecord, error)

	// IncrementUsage atomically bumps usage_count and returns the new value.
	IncrementUsage(ctx context.Context, id uuid.UUID) (int64, error)
	GetUsageCount(ctx context.Context, id uuid.UUID) (int64, error)
	SetUsageCount(ctx context.Context, id uuid.UUID, count int64) error

	// Upsert inserts or replaces a catalog row. Used by ingestion tooling and tests.
	Upsert(ctx context.Context, rec *models.SignImageRecord) error
}

type signImageRepository struct{}

// NewSignImageRepository creates a new SignImageRepository.
func NewSignImageRepository() SignImageRepository {
	return &signImageRepository{}
}

var _ SignImageRepository = (*signImageRepository)(nil)

const signImageColumns = `
	id, sign_code, file_name, file_name_slug, provider_file_name,
	name_en, name_jp, meaning_text, category, storage_url, is_verified,
	provider, attribution, license_info, source_page_url, artist_name,
	usage_count, created_at, updated_at`

const eligiblePredicate = `is_verified AND storage_url IS NOT NULL AND storage_url <> ''`

// fieldColumns whitelists the columns FindByFieldContains may scan.
var fieldColumns = map[models.SignImageField]string{
	models.FieldNameEn:      "name_en",
	models.FieldNameJp:      "name_jp",
	models.FieldMeaningText: "meaning_text",
}

// ============================================================================
// Lookups
// ============================================================================

func (r *signImageRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SignImageRecord, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + signImageColumns + ` FROM sign_images WHERE id = $1`

	rec, err := scanSignImage(scope.Conn.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (r *signImageRepository) FindByCode(ctx context.Context, code string) ([]*models.SignImageRecord, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT ` + signImageColumns + `
		FROM sign_images
		WHERE upper(sign_code) = upper($1) AND ` + eligiblePredicate + `
		ORDER BY created_at, id`

	return querySignImages(ctx, scope, query, strings.TrimSpace(code))
}

func (r *signImageRepository) FindByFileNameContains(ctx context.Context, fragments []string, limit int) ([]*models.SignImageRecord, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	patterns := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f = strings.TrimSpace(f); f != "" {
			patterns = append(patterns, containsPattern(f))
		}
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + signImageColumns + `
		FROM sign_images
		WHERE ` + eligiblePredicate + `
		  AND (file_name ILIKE ANY($1)
		       OR file_name_slug ILIKE ANY($1)
		       OR provider_file_name ILIKE ANY($1))
		ORDER BY created_at, id
		LIMIT $2`

	return querySignImages(ctx, scope, query, patterns, limit)
}

func (r *signImageRepository) FindByFieldContains(ctx context.Context, field models.SignImageField, q string, limit int) ([]*models.SignImageRecord, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	column, ok := fieldColumns[field]
	if !ok {
		return nil, fmt.Errorf("unsupported match field %q", field)
	}
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}

	query := `
		SELECT ` + signImageColumns + `
		FROM sign_images
		WHERE ` + eligiblePredicate + `
		  AND ` + column + ` ILIKE $1 ESCAPE '\'
		ORDER BY usage_count DESC, created_at, id
		LIMIT $2`

	return querySignImages(ctx, scope, query, containsPattern(q), limit)
}

func (r *signImageRepository) ListVerified(ctx context.Context, category models.SignCategory, limit, offset int) ([]*models.SignImageRecord, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	if category == "" {
		query := `
			SELECT ` + signImageColumns + `
			FROM sign_images
			WHERE ` + eligiblePredicate + `
			ORDER BY id
			LIMIT $1 OFFSET $2`
		return querySignImages(ctx, scope, query, limit, offset)
	}

	query := `
		SELECT ` + signImageColumns + `
		FROM sign_images
		WHERE ` + eligiblePredicate + ` AND category = $1
		ORDER BY id
		LIMIT $2 OFFSET $3`
	return querySignImages(ctx, scope, query, string(category), limit, offset)
}

// ============================================================================
// Usage Counter
// ============================================================================

func (r *signImageRepository) IncrementUsage(ctx context.Context, id uuid.UUID) (int64, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no database scope in context")
	}

	var count *int64
	err := scope.Conn.QueryRow(ctx, `SELECT increment_sign_image_usage($1)`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}
	if count == nil {
		return 0, apperrors.ErrNotFound
	}
	return *count, nil
}

func (r *signImageRepository) GetUsageCount(ctx context.Context, id uuid.UUID) (int64, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no database scope in context")
	}

	var count int64
	err := scope.Conn.QueryRow(ctx, `SELECT usage_count FROM sign_images WHERE id = $1`, id).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.ErrNotFound
		}
		return 0, fmt.Errorf("failed to read usage count: %w", err)
	}
	return count, nil
}

func (r *signImageRepository) SetUsageCount(ctx context.Context, id uuid.UUID, count int64) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx,
		`UPDATE sign_images SET usage_count = $2, updated_at = now() WHERE id = $1`, id, count)
	if err != nil {
		return fmt.Errorf("failed to write usage count: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ============================================================================
// Ingestion
// ============================================================================

func (r *signImageRepository) Upsert(ctx context.Context, rec *models.SignImageRecord) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Category != "" && !rec.Category.IsValid() {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidCategory, rec.Category)
	}
	now := time.Now()

	query := `
		INSERT INTO sign_images (
			id, sign_code, file_name, file_name_slug, provider_file_name,
			name_en, name_jp, meaning_text, category, storage_url, is_verified,
			provider, attribution, license_info, source_page_url, artist_name,
			usage_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $18)
		ON CONFLICT (id) DO UPDATE SET
			sign_code = EXCLUDED.sign_code,
			file_name = EXCLUDED.file_name,
			file_name_slug = EXCLUDED.file_name_slug,
			provider_file_name = EXCLUDED.provider_file_name,
			name_en = EXCLUDED.name_en,
			name_jp = EXCLUDED.name_jp,
			meaning_text = EXCLUDED.meaning_text,
			category = EXCLUDED.category,
			storage_url = EXCLUDED.storage_url,
			is_verified = EXCLUDED.is_verified,
			provider = EXCLUDED.provider,
			attribution = EXCLUDED.attribution,
			license_info = EXCLUDED.license_info,
			source_page_url = EXCLUDED.source_page_url,
			artist_name = EXCLUDED.artist_name,
			updated_at = EXCLUDED.updated_at
		RETURNING usage_count, created_at, updated_at`

	var signCode *string
	if rec.SignCode != "" {
		code := models.CanonicalSignCode(rec.SignCode)
		signCode = &code
	}

	err := scope.Conn.QueryRow(ctx, query,
		rec.ID,
		signCode,
		nullString(rec.FileName),
		nullString(rec.FileNameSlug),
		nullString(rec.ProviderFileName),
		nullString(rec.NameEn),
		nullString(rec.NameJp),
		nullString(rec.MeaningText),
		nullString(string(rec.Category)),
		nullString(rec.StorageURL),
		rec.IsVerified,
		nullString(rec.Provider),
		nullString(rec.Attribution),
		nullString(rec.LicenseInfo),
		nullString(rec.SourcePageURL),
		nullString(rec.ArtistName),
		rec.UsageCount,
		now,
	).Scan(&rec.UsageCount, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert sign image: %w", err)
	}
	if signCode != nil {
		rec.SignCode = *signCode
	}

	return nil
}

// ============================================================================
// Helper Functions
// ============================================================================

func querySignImages(ctx context.Context, scope *database.Scope, query string, args ...any) ([]*models.SignImageRecord, error) {
	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sign images: %w", err)
	}
	defer rows.Close()

	var records []*models.SignImageRecord
	for rows.Next() {
		rec, err := scanSignImage(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sign images: %w", err)
	}

	return records, nil
}

// scanSignImage converts a row into a validated record. NULL text columns
// become empty strings.
func scanSignImage(row pgx.Row) (*models.SignImageRecord, error) {
	var rec models.SignImageRecord
	var signCode, fileName, fileNameSlug, providerFileName *string
	var nameEn, nameJp, meaningText, category, storageURL *string
	var provider, attribution, licenseInfo, sourcePageURL, artistName *string

	err := row.Scan(
		&rec.ID,
		&signCode,
		&fileName,
		&fileNameSlug,
		&providerFileName,
		&nameEn,
		&nameJp,
		&meaningText,
		&category,
		&storageURL,
		&rec.IsVerified,
		&provider,
		&attribution,
		&licenseInfo,
		&sourcePageURL,
		&artistName,
		&rec.UsageCount,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan sign image: %w", err)
	}

	rec.SignCode = deref(signCode)
	rec.FileName = deref(fileName)
	rec.FileNameSlug = deref(fileNameSlug)
	rec.ProviderFileName = deref(providerFileName)
	rec.NameEn = deref(nameEn)
	rec.NameJp = deref(nameJp)
	rec.MeaningText = deref(meaningText)
	rec.StorageURL = strings.TrimSpace(deref(storageURL))
	rec.Provider = deref(provider)
	rec.Attribution = deref(attribution)
	rec.LicenseInfo = deref(licenseInfo)
	rec.SourcePageURL = deref(sourcePageURL)
	rec.ArtistName = deref(artistName)

	// Unknown categories are dropped rather than trusted.
	if c := models.SignCategory(deref(category)); c.IsValid() {
		rec.Category = c
	}

	return &rec, nil
}

// containsPattern builds an ILIKE pattern matching s anywhere, with LIKE
// metacharacters escaped so "212_3" does not match "212x3".
func containsPattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
