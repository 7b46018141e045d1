package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/menkyo-prep/sign-engine/pkg/database"
	"github.com/menkyo-prep/sign-engine/pkg/models"
)

// KeywordRepository provides data access for the curated keyword map.
type KeywordRepository interface {
	// Lookup returns the sign code for a normalized keyword, or "" when unmapped.
	Lookup(ctx context.Context, keyword string) (string, error)
	// Replace swaps the whole map for entries in one transaction and returns
	// how many were written. Keywords absent from entries are removed.
	Replace(ctx context.Context, entries []models.KeywordMapEntry) (int, error)
	List(ctx context.Context) ([]models.KeywordMapEntry, error)
}

type keywordRepository struct{}

// NewKeywordRepository creates a new KeywordRepository.
func NewKeywordRepository() KeywordRepository {
	return &keywordRepository{}
}

var _ KeywordRepository = (*keywordRepository)(nil)

func (r *keywordRepository) Lookup(ctx context.Context, keyword string) (string, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return "", fmt.Errorf("no database scope in context")
	}

	keyword = models.NormalizeKeyword(keyword)
	if keyword == "" {
		return "", nil
	}

	var code string
	err := scope.Conn.QueryRow(ctx, `SELECT sign_code FROM sign_keywords WHERE keyword = $1`, keyword).Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to look up keyword: %w", err)
	}
	return code, nil
}

func (r *keywordRepository) Replace(ctx context.Context, entries []models.KeywordMapEntry) (int, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO sign_keywords (keyword, sign_code, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (keyword) DO UPDATE SET
			sign_code = EXCLUDED.sign_code,
			updated_at = now()`

	batch := &pgx.Batch{}
	for _, e := range entries {
		keyword := models.NormalizeKeyword(e.Keyword)
		code := models.CanonicalSignCode(e.SignCode)
		if keyword == "" || code == "" {
			continue
		}
		batch.Queue(query, keyword, code)
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM sign_keywords`); err != nil {
		return 0, fmt.Errorf("failed to clear keywords: %w", err)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return 0, fmt.Errorf("failed to write keywords: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit keywords: %w", err)
	}

	return batch.Len(), nil
}

func (r *keywordRepository) List(ctx context.Context) ([]models.KeywordMapEntry, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `SELECT keyword, sign_code FROM sign_keywords ORDER BY keyword`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keywords: %w", err)
	}
	defer rows.Close()

	var entries []models.KeywordMapEntry
	for rows.Next() {
		var e models.KeywordMapEntry
		if err := rows.Scan(&e.Keyword, &e.SignCode); err != nil {
			return nil, fmt.Errorf("failed to scan keyword: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keywords: %w", err)
	}

	return entries, nil
}
