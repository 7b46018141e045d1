package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/menkyo-prep/sign-engine/pkg/apperrors"
	"github.com/menkyo-prep/sign-engine/pkg/config"
	"github.com/menkyo-prep/sign-engine/pkg/logging"
	"github.com/menkyo-prep/sign-engine/pkg/models"
	"github.com/menkyo-prep/sign-engine/pkg/retry"
)

// maxErrorBody bounds how much of an error response is kept for logging.
const maxErrorBody = 512

// GoogleClient queries the Google Custom Search JSON API in image mode.
type GoogleClient struct {
	httpClient *http.Client
	cfg        config.SearchConfig
	retryCfg   *retry.Config
	logger     *zap.Logger
}

// NewGoogleClient creates a client for the configured search engine.
// Returns apperrors.ErrProviderUnavailable when the API key or engine id is missing.
func NewGoogleClient(cfg config.SearchConfig, logger *zap.Logger) (*GoogleClient, error) {
	if !cfg.IsAvailable() {
		return nil, apperrors.ErrProviderUnavailable
	}
	return &GoogleClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cfg:      cfg,
		retryCfg: retry.SearchConfig(),
		logger:   logger.Named("search"),
	}, nil
}

var _ Provider = (*GoogleClient)(nil)

// searchResponse is the subset of the Custom Search response we read.
type searchResponse struct {
	Items []struct {
		Title string `json:"title"`
		Link  string `json:"link"`
		Image struct {
			ContextLink string `json:"contextLink"`
		} `json:"image"`
	} `json:"items"`
}

// Search issues up to MaxQueries templated queries. It stops early once a
// preferred photograph is seen; otherwise all hits are pooled and passed
// through SelectCandidate.
func (c *GoogleClient) Search(ctx context.Context, query string) (*models.ImageResult, error) {
	templates := Templates(query, c.cfg.CountryHint)
	if len(templates) > c.cfg.MaxQueries {
		templates = templates[:c.cfg.MaxQueries]
	}
	if len(templates) == 0 {
		return nil, nil
	}

	var pool []Candidate
	var lastErr error
	failures := 0

	for _, q := range templates {
		candidates, err := c.fetch(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures++
			lastErr = err
			c.logger.Warn("Image search query failed",
				zap.String("query", logging.SanitizeQuery(q)),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}

		pool = append(pool, candidates...)
		for _, cand := range candidates {
			if isPreferred(cand) {
				return NewExternalResult(&cand), nil
			}
		}
	}

	if failures == len(templates) {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrProviderUnavailable, lastErr)
	}

	best := SelectCandidate(pool)
	if best == nil {
		return nil, nil
	}
	return NewExternalResult(best), nil
}

// fetch runs one query with retries on transient failures.
func (c *GoogleClient) fetch(ctx context.Context, q string) ([]Candidate, error) {
	endpoint, err := c.buildURL(q)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	err = retry.DoIfRetryable(ctx, c.retryCfg, func() error {
		var ferr error
		candidates, ferr = c.doRequest(ctx, endpoint)
		return ferr
	})
	return candidates, err
}

func (c *GoogleClient) doRequest(ctx context.Context, endpoint string) ([]Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Querying image search", zap.String("url", logging.SanitizeURL(endpoint)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call image search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &retry.StatusError{
			StatusCode: resp.StatusCode,
			Body:       logging.TruncateString(string(body), maxErrorBody),
		}
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	candidates := make([]Candidate, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		candidates = append(candidates, Candidate{
			URL:        item.Link,
			Title:      item.Title,
			ContextURL: item.Image.ContextLink,
		})
	}
	return candidates, nil
}

func (c *GoogleClient) buildURL(q string) (string, error) {
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid search endpoint: %w", err)
	}
	params := u.Query()
	params.Set("key", c.cfg.APIKey)
	params.Set("cx", c.cfg.EngineID)
	params.Set("q", q)
	params.Set("searchType", "image")
	params.Set("safe", "active")
	params.Set("num", "10")
	u.RawQuery = params.Encode()
	return u.String(), nil
}
